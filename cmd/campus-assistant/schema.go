package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/koscakluka/ema-campus/core/prompts"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the campus data file",
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := json.MarshalIndent(prompts.CampusSchema(), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal schema: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(schema))
		return nil
	},
}
