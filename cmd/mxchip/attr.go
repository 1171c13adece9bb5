package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/mxchip/internal/attributes"
	"github.com/fentz26/mxchip/internal/schema"
)

var attrCmd = &cobra.Command{
	Use:   "attr",
	Short: "Manage beamline attribute readings",
}

var attrSetCmd = &cobra.Command{
	Use:   "set [name] [value]",
	Short: "Record an attribute reading",
	Args:  cobra.ExactArgs(2),
	RunE:  runAttrSet,
}

var attrListCmd = &cobra.Command{
	Use:   "list",
	Short: "List attribute readings",
	RunE:  runAttrList,
}

var attrMin, attrMax float64

func init() {
	attrCmd.AddCommand(attrSetCmd, attrListCmd)
	attrSetCmd.Flags().Float64Var(&attrMin, "min", 0, "Lower limit (requires --max)")
	attrSetCmd.Flags().Float64Var(&attrMax, "max", 0, "Upper limit (requires --min)")
	attrSetCmd.MarkFlagsRequiredTogether("min", "max")
}

func runAttrSet(cmd *cobra.Command, args []string) error {
	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", args[1], err)
	}

	body := map[string]any{"value": value}
	if cmd.Flags().Changed("min") {
		body["limits"] = schema.Limit{Min: attrMin, Max: attrMax}
	}

	resp, err := apiPut("/attributes/"+url.PathEscape(args[0]), body)
	if err != nil {
		return err
	}

	var a attributes.Attribute
	if err := json.Unmarshal(resp, &a); err != nil {
		return err
	}
	fmt.Printf("%s = %g\n", a.Name, a.Value)
	return nil
}

func runAttrList(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/attributes")
	if err != nil {
		return err
	}

	var list []attributes.Attribute
	if err := json.Unmarshal(resp, &list); err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Println("No attributes recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVALUE\tLIMITS\tUPDATED")
	for _, a := range list {
		limits := ""
		if a.Limits != nil {
			limits = fmt.Sprintf("[%g, %g]", a.Limits.Min, a.Limits.Max)
		}
		fmt.Fprintf(w, "%s\t%g\t%s\t%s\n", a.Name, a.Value, limits, a.UpdatedAt.Format(time.RFC3339))
	}
	w.Flush()
	return nil
}
