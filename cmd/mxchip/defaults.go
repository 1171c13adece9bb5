package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var defaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Manage remembered task parameters",
}

var defaultsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the parameters remembered for every task type",
	RunE:  runDefaultsReset,
}

func init() {
	defaultsCmd.AddCommand(defaultsResetCmd)
}

func runDefaultsReset(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/defaults/reset", nil)
	if err != nil {
		return err
	}

	var result map[string]int64
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}
	fmt.Printf("Reset defaults of %d task types\n", result["reset"])
	return nil
}
