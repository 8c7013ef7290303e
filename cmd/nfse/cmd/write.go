package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rezonia/nfse-abrasf/internal/abrasf"
	"github.com/rezonia/nfse-abrasf/internal/model"
)

var (
	writeKind   string
	writeOutDir string
)

var writeCmd = &cobra.Command{
	Use:   "write [files...]",
	Short: "Render JSON invoices as RPS or NFSe XML",
	Long: `Render invoices from JSON (as printed by "nfse load") as ABRASF XML.

Each file holds one invoice object, one load result or an array of either.
Documents are printed to stdout, or written to --out-dir as
Rps-{number}.xml / NFSe-{number}.xml.

Examples:
  nfse write invoice.json
  nfse write invoices.json --kind nfse --out-dir out/
  nfse load nota.xml | nfse write - --provider SimplISS`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWrite,
}

func init() {
	rootCmd.AddCommand(writeCmd)

	writeCmd.Flags().StringVarP(&writeKind, "kind", "k", "rps", "Document to render (rps, nfse)")
	writeCmd.Flags().StringVar(&writeOutDir, "out-dir", "", "Write one file per invoice into this directory")
}

func runWrite(cmd *cobra.Command, args []string) error {
	v, err := configuredVariant()
	if err != nil {
		return err
	}
	engine := abrasf.NewEngine(v, abrasf.WithRemoveAccents(cfg.RemoveAccents))

	render, prefix := engine.WriteRPS, "Rps-"
	switch strings.ToLower(writeKind) {
	case "rps":
	case "nfse":
		render, prefix = engine.WriteNFSe, "NFSe-"
	default:
		return fmt.Errorf("unsupported kind: %s (expected rps or nfse)", writeKind)
	}

	var invoices []*model.Invoice
	for _, arg := range args {
		loaded, err := readInvoices(arg)
		if err != nil {
			return fmt.Errorf("%s: %w", arg, err)
		}
		invoices = append(invoices, loaded...)
	}

	for _, inv := range invoices {
		out, err := render(inv)
		if err != nil {
			return err
		}

		if writeOutDir == "" {
			fmt.Println(out)
			continue
		}

		number := inv.Rps.Number
		if prefix == "NFSe-" {
			number = inv.NFSe.Number
		}
		path := filepath.Join(writeOutDir, prefix+number+".xml")
		if err := os.MkdirAll(writeOutDir, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		printVerbose("Wrote %s\n", path)
	}

	return nil
}

// readInvoices accepts an invoice, a LoadResult or an array of either;
// "-" reads stdin
func readInvoices(path string) ([]*model.Invoice, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	data = bytes.TrimSpace(data)
	var raws []json.RawMessage
	if bytes.HasPrefix(data, []byte("[")) {
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	} else {
		raws = []json.RawMessage{data}
	}

	invoices := make([]*model.Invoice, 0, len(raws))
	for _, raw := range raws {
		var wrapped LoadResult
		if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Invoice != nil {
			invoices = append(invoices, wrapped.Invoice)
			continue
		}

		var inv model.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, fmt.Errorf("invalid invoice JSON: %w", err)
		}
		invoices = append(invoices, &inv)
	}
	return invoices, nil
}
