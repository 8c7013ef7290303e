package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Validate RPS and NFSe documents",
	Long: `Load one or more documents and check them for completeness.

Checks performed:
  - RPS number, series and issue date
  - Service list item, description and municipality code
  - Provider and customer CPF/CNPJ length
  - Special tax regime and non-negative monetary values

Examples:
  nfse validate nota.xml
  nfse validate rps/ -f table`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to validate")
	}

	results := make([]*ValidationResult, 0, len(files))
	allValid := true
	for _, r := range loadFiles(files, true) {
		result := &ValidationResult{File: r.File, Provider: r.Provider, Valid: true}
		if r.Error != "" {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("parse error: %s", r.Error))
		}
		if len(r.Issues) > 0 {
			result.Valid = false
			result.Errors = append(result.Errors, r.Issues...)
		}
		if !result.Valid {
			allValid = false
		}
		results = append(results, result)
	}

	if outputFormat == "json" {
		if err := writeJSON(os.Stdout, results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Valid {
				fmt.Printf("✓ %s: VALID (%s)\n", r.File, r.Provider)
				continue
			}
			fmt.Printf("✗ %s: INVALID\n", r.File)
			for _, e := range r.Errors {
				fmt.Printf("  - %s\n", e)
			}
		}
	}

	if !allValid {
		return fmt.Errorf("validation failed for some files")
	}
	return nil
}

// ValidationResult holds the result of validating a single file
type ValidationResult struct {
	File     string   `json:"file"`
	Provider string   `json:"provider,omitempty"`
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
}
