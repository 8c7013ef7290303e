package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/beevik/etree"
	"github.com/spf13/cobra"

	"github.com/rezonia/nfse-abrasf/internal/abrasf"
	sigxml "github.com/rezonia/nfse-abrasf/internal/signature/xml"
)

var infoCmd = &cobra.Command{
	Use:   "info [files...]",
	Short: "Show information about NFSe files",
	Long: `Display information about XML files without loading them.

Shows:
  - Document shape (RPS, NFSe, envelope or response)
  - Detected provider variant
  - Number of signatures
  - File metadata

Examples:
  nfse info nota.xml
  nfse info notas/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found")
	}

	registry := abrasf.NewRegistry()
	for _, file := range files {
		printFileInfo(registry, file)
		fmt.Println()
	}

	return nil
}

func printFileInfo(registry *abrasf.Registry, filePath string) {
	fmt.Printf("File: %s\n", filePath)

	info, err := os.Stat(filePath)
	if err != nil {
		fmt.Printf("  Error: %v\n", err)
		return
	}
	fmt.Printf("  Size: %d bytes\n", info.Size())
	fmt.Printf("  Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))

	data, err := os.ReadFile(filePath)
	if err != nil {
		fmt.Printf("  Error reading file: %v\n", err)
		return
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil || doc.Root() == nil {
		fmt.Println("  Shape: not XML")
		return
	}
	root := doc.Root()
	fmt.Printf("  Root: %s\n", root.Tag)
	fmt.Printf("  Shape: %s\n", shapeName(root))

	if v, err := registry.Detect(data); err == nil {
		fmt.Printf("  Provider: %s\n", v.Name)
	} else {
		fmt.Println("  Provider: Unknown")
	}

	extractor := sigxml.NewSignatureExtractor()
	if extractor.CanExtract(data) {
		if res, err := extractor.Extract(data); err == nil {
			fmt.Printf("  Signatures: %d\n", len(res.Signatures))
			for _, s := range res.Signatures {
				fmt.Printf("    - %s %s\n", s.Location, s.ReferenceURI)
			}
		}
	} else {
		fmt.Println("  Signatures: 0")
	}

	if preview := getPreview(string(data), 200); preview != "" {
		fmt.Printf("  Preview: %s\n", preview)
	}
}

// shapeName classifies a document by its root element
func shapeName(root *etree.Element) string {
	switch tag := root.Tag; {
	case tag == "Rps" || root.FindElement("//InfRps") != nil && !strings.HasSuffix(tag, "Envio"):
		return "RPS"
	case tag == "CompNfse":
		return "NFSe"
	case strings.HasSuffix(tag, "Envio"):
		return "Request envelope"
	case strings.HasSuffix(tag, "Resposta") || strings.HasSuffix(tag, "Result") || tag == "RetCancelamento":
		return "Response"
	case tag == "Envelope":
		return "SOAP envelope"
	default:
		return "Unknown"
	}
}

func getPreview(content string, maxLen int) string {
	if idx := strings.Index(content, "?>"); idx >= 0 {
		content = content[idx+2:]
	}

	content = strings.Join(strings.Fields(content), " ")
	if len(content) > maxLen {
		content = content[:maxLen] + "..."
	}
	return content
}
