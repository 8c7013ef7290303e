package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/nfse-abrasf/internal/signature"
	"github.com/rezonia/nfse-abrasf/internal/signature/trust"
	"github.com/rezonia/nfse-abrasf/internal/signature/xml"
)

var (
	rootsFile string
	skipOCSP  bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify [files...]",
	Short: "Verify digital signatures",
	Long: `Verify every XMLDSig signature of NFSe documents.

Each Signature is checked on its own: RPS, lot, issued NFSe, cancellation
and substitution blocks all carry one.

Verifies:
  - Digest and signature value against the referenced Id
  - Certificate chain to the configured trust roots (ICP-Brasil)
  - Certificate revocation (OCSP, unless --skip-ocsp)
  - Signer information

Examples:
  # Verify with the roots from the config file
  nfse verify nota.xml --config nfse.yaml

  # Verify against a PEM bundle
  nfse verify --roots icp-brasil.pem notas/

  # Skip OCSP revocation check
  nfse verify --skip-ocsp nota.xml -f table`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVar(&rootsFile, "roots", "", "Trusted root certificates (PEM), overrides config")
	verifyCmd.Flags().BoolVar(&skipOCSP, "skip-ocsp", false, "Skip OCSP revocation check")
}

func runVerify(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to verify")
	}

	trustStore, err := loadTrustStore()
	if err != nil {
		return err
	}
	verifier := xml.NewXMLVerifier(trustStore)

	results := make([]*VerifyResult, 0, len(files))
	allValid := true
	for _, file := range files {
		printVerbose("Verifying: %s\n", file)

		result := verifyFile(verifier, file)
		results = append(results, result)
		if !result.Valid {
			allValid = false
		}
	}

	if outputFormat == "json" {
		if err := writeJSON(os.Stdout, results); err != nil {
			return err
		}
	} else {
		printVerifyTable(results)
	}

	if !allValid {
		return fmt.Errorf("verification failed for some files")
	}
	return nil
}

func loadTrustStore() (*trust.TrustStore, error) {
	var opts []trust.TrustStoreOption
	if skipOCSP || cfg.Certificate.SkipOCSP {
		opts = append(opts, trust.WithoutOCSP())
	}
	if cfg.Certificate.OCSPSoftFail {
		opts = append(opts, trust.WithSoftFail())
	}

	path := rootsFile
	if path == "" {
		path = cfg.Certificate.RootsFile
	}
	ts, err := trust.LoadTrustStore(path, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trust store: %w", err)
	}
	if ts.Len() == 0 {
		printVerbose("No trust roots configured; every chain will be rejected\n")
	}
	return ts, nil
}

func verifyFile(verifier signature.Verifier, filePath string) *VerifyResult {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	result := &VerifyResult{File: filePath}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.Error = fmt.Sprintf("failed to read file: %v", err)
		return result
	}

	report, err := verifier.Verify(ctx, data)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Valid = report.Valid
	result.Root = report.Root
	result.Signatures = report.Signatures
	return result
}

func printVerifyTable(results []*VerifyResult) {
	for _, r := range results {
		statusIcon, statusText := "✓", "VALID"
		if !r.Valid {
			statusIcon, statusText = "✗", "INVALID"
		}
		fmt.Printf("%s %s: %s\n", statusIcon, r.File, statusText)

		if r.Error != "" {
			fmt.Printf("  ✗ %s\n", r.Error)
			continue
		}

		for _, s := range r.Signatures {
			fmt.Printf("  %s %s\n", s.Location, s.ReferenceURI)
			if s.Signer != nil {
				fmt.Printf("    Signer: %s\n", s.Signer.Name)
				if s.Signer.Issuer != "" {
					fmt.Printf("    Issuer: %s\n", s.Signer.Issuer)
				}
			}
			fmt.Printf("    Signature:   %s\n", mark(s.SignatureValid))
			fmt.Printf("    Cert Chain:  %s\n", mark(s.CertChainValid))
			if skipOCSP {
				fmt.Println("    Not Revoked: - (skipped)")
			} else {
				fmt.Printf("    Not Revoked: %s\n", mark(s.NotRevoked))
			}
			for _, e := range s.Errors {
				fmt.Printf("    ✗ %s\n", e)
			}
			for _, w := range s.Warnings {
				fmt.Printf("    ⚠ %s\n", w)
			}
		}
	}
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

// VerifyResult holds the result of verifying a single file
type VerifyResult struct {
	File       string                          `json:"file"`
	Valid      bool                            `json:"valid"`
	Root       string                          `json:"root,omitempty"`
	Signatures []*signature.VerificationResult `json:"signatures,omitempty"`
	Error      string                          `json:"error,omitempty"`
}
