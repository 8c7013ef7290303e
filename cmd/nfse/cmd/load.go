package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/nfse-abrasf/internal/model"
	"github.com/rezonia/nfse-abrasf/internal/processor"
)

var (
	outputFile string
	timeout    = 2 * time.Minute
	workers    int
)

var loadCmd = &cobra.Command{
	Use:   "load [files...]",
	Short: "Load RPS and NFSe documents",
	Long: `Load one or more RPS or CompNfse documents into the invoice model.

The provider variant of each file is detected from its content unless
--provider is given. Directories are walked for .xml files.

Examples:
  nfse load nota.xml
  nfse load notas/ -f table
  nfse load *.xml -f csv -o notas.csv
  nfse load rps.xml --provider SimplISS`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	loadCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Timeout for the whole run")
	loadCmd.Flags().IntVar(&workers, "workers", 0, "Files loaded concurrently (default: number of CPUs)")
}

func runLoad(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to load")
	}

	printVerbose("Found %d files to load\n", len(files))

	results := loadFiles(files, false)
	return outputResults(results)
}

// loadFiles runs files through the pipeline with the configured variant
// handling and accent setting
func loadFiles(files []string, validate bool) []*LoadResult {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	opts := []processor.PipelineOption{
		processor.WithValidation(validate),
		processor.WithRemoveAccents(cfg.RemoveAccents),
		processor.WithWorkers(workers),
	}
	if v := forcedVariant(); v != nil {
		opts = append(opts, processor.WithVariant(v))
	}
	pipeline := processor.NewPipeline(opts...)

	results := make([]*LoadResult, 0, len(files))
	for _, r := range pipeline.ProcessFiles(ctx, files) {
		out := &LoadResult{
			File:     r.Source,
			Provider: string(r.Provider),
			Invoice:  r.Invoice,
			Issues:   r.Issues,
		}
		if r.Error != nil {
			out.Error = r.Error.Error()
			printVerbose("  %s: %s\n", r.Source, out.Error)
		}
		results = append(results, out)
	}
	return results
}

func collectFiles(args []string) ([]string, error) {
	var files []string

	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", arg, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(arg); err != nil {
				return nil, fmt.Errorf("file not found: %s", arg)
			}
			matches = []string{arg}
		}

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				continue
			}
			if !info.IsDir() {
				// explicit names are taken whatever their extension
				if len(matches) == 1 || isXMLFile(match) {
					files = append(files, match)
				}
				continue
			}

			err = filepath.Walk(match, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && isXMLFile(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}

	return files, nil
}

func isXMLFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xml")
}

func outputResults(results []*LoadResult) error {
	var w io.Writer = os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch outputFormat {
	case "json":
		return writeJSON(w, results)
	case "table":
		return outputTable(w, results)
	case "csv":
		return outputCSV(w, results)
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func outputTable(w io.Writer, results []*LoadResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tPROVIDER\tRPS\tNFSE\tISSUED\tAMOUNT\tSTATUS")
	fmt.Fprintln(tw, "----\t--------\t---\t----\t------\t------\t------")

	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(tw, "%s\tERROR: %s\t\t\t\t\t\n", r.File, r.Error)
			continue
		}
		if r.Invoice == nil {
			continue
		}

		inv := r.Invoice
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.File,
			r.Provider,
			rpsLabel(inv),
			inv.NFSe.Number,
			issuedDate(inv),
			inv.Service.Values.ServiceAmount.StringFixed(2),
			inv.Status.String(),
		)
	}

	return tw.Flush()
}

func outputCSV(w io.Writer, results []*LoadResult) error {
	fmt.Fprintln(w, "file,provider,rps_number,rps_series,nfse_number,verification_code,issued,provider_tax_id,customer_name,customer_tax_id,service_amount,iss,status,error")

	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(w, "%s,%s,,,,,,,,,,,,%s\n", r.File, r.Provider, escapeCSV(r.Error))
			continue
		}
		if r.Invoice == nil {
			continue
		}

		inv := r.Invoice
		fmt.Fprintf(w, "%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,\n",
			r.File,
			r.Provider,
			inv.Rps.Number,
			escapeCSV(inv.Rps.Series),
			inv.NFSe.Number,
			escapeCSV(inv.NFSe.VerificationCode),
			issuedDate(inv),
			inv.ServiceProvider.TaxID,
			escapeCSV(inv.Customer.Name),
			inv.Customer.TaxID,
			inv.Service.Values.ServiceAmount.StringFixed(2),
			inv.Service.Values.Iss.StringFixed(2),
			inv.Status.String(),
		)
	}

	return nil
}

func rpsLabel(inv *model.Invoice) string {
	if inv.Rps.Series == "" {
		return inv.Rps.Number
	}
	return inv.Rps.Number + "/" + inv.Rps.Series
}

func issuedDate(inv *model.Invoice) string {
	at := inv.NFSe.IssueDate
	if at.IsZero() {
		at = inv.Rps.IssueDate
	}
	if at.IsZero() {
		return ""
	}
	return at.Format("2006-01-02")
}

func escapeCSV(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return "\"" + strings.ReplaceAll(s, "\"", "\"\"") + "\""
	}
	return s
}

// LoadResult holds the outcome of loading a single file
type LoadResult struct {
	File     string         `json:"file"`
	Provider string         `json:"provider,omitempty"`
	Invoice  *model.Invoice `json:"invoice,omitempty"`
	Issues   []string       `json:"issues,omitempty"`
	Error    string         `json:"error,omitempty"`
}
