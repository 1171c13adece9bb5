package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/mxchip/internal/schema"
	"github.com/fentz26/mxchip/internal/taskform"
	"github.com/fentz26/mxchip/internal/tasks"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect task forms",
}

var schemaTypesCmd = &cobra.Command{
	Use:   "types",
	Short: "List task types",
	RunE:  runSchemaTypes,
}

var schemaShowCmd = &cobra.Command{
	Use:   "show [type]",
	Short: "Show the resolved form of a task type",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaShow,
}

var schemaExisting bool

func init() {
	schemaCmd.AddCommand(schemaTypesCmd, schemaShowCmd)
	schemaShowCmd.Flags().BoolVar(&schemaExisting, "existing", false, "Resolve as for an edit of a queued task")
}

func runSchemaTypes(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/types")
	if err != nil {
		return err
	}

	var types []tasks.Type
	if err := json.Unmarshal(resp, &types); err != nil {
		return err
	}
	for _, t := range types {
		fmt.Println(t)
	}
	return nil
}

func runSchemaShow(cmd *cobra.Command, args []string) error {
	path := "/schemas/" + url.PathEscape(args[0])
	if schemaExisting {
		path += "?existing=true"
	}
	resp, err := apiGet(path)
	if err != nil {
		return err
	}

	var form taskform.Form
	if err := json.Unmarshal(resp, &form); err != nil {
		return err
	}

	fmt.Printf("%s (%s)\n", form.Title, form.Type)
	fmt.Printf("Path:     %s\n", form.Path)
	fmt.Printf("Filename: %s\n\n", form.Filename)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FIELD\tTYPE\tDEFAULT\tRANGE\tREQUIRED")
	for _, name := range form.Order {
		f, ok := form.Schema.Field(name)
		if !ok {
			continue
		}
		def := ""
		if f.Default != nil {
			def = fmt.Sprint(f.Default)
		}
		required := ""
		if f.Required {
			required = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", name, f.Type, def, fieldRange(f), required)
	}
	w.Flush()
	return nil
}

func fieldRange(f schema.Field) string {
	switch {
	case len(f.Enum) > 0:
		return fmt.Sprint(f.Enum)
	case f.ExclusiveMinimum != nil && f.ExclusiveMaximum != nil:
		return fmt.Sprintf("(%g, %g)", *f.ExclusiveMinimum, *f.ExclusiveMaximum)
	case f.ExclusiveMinimum != nil:
		return fmt.Sprintf("> %g", *f.ExclusiveMinimum)
	case f.ExclusiveMaximum != nil:
		return fmt.Sprintf("< %g", *f.ExclusiveMaximum)
	}
	return ""
}
