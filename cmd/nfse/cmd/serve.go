package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/nfse-abrasf/internal/logger"
	"github.com/rezonia/nfse-abrasf/internal/server"
)

var (
	serverAddr   string
	serverDebug  bool
	readTimeout  time.Duration
	writeTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP API server for mapping and building NFSe documents.

The API provides endpoints for:
  - POST /api/v1/load                   - Load RPS/NFSe XML to JSON
  - POST /api/v1/write/rps              - Render JSON invoice as RPS
  - POST /api/v1/write/nfse             - Render JSON invoice as CompNfse
  - POST /api/v1/validate               - Validate RPS/NFSe XML
  - POST /api/v1/envelope/:operation    - Build an operation envelope
  - POST /api/v1/response/:operation    - Parse an authority response
  - POST /api/v1/verify                 - Verify signatures
  - GET  /api/v1/providers              - List provider variants
  - GET  /health                        - Health check

Flags override the server section of the config file.

Examples:
  nfse serve
  nfse serve --address :9090 -c nfse.yaml
  nfse serve --debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverAddr, "address", "", "Server listen address (default from config, :8080)")
	serveCmd.Flags().BoolVar(&serverDebug, "debug", false, "Enable debug mode")
	serveCmd.Flags().DurationVar(&readTimeout, "read-timeout", 0, "HTTP read timeout")
	serveCmd.Flags().DurationVar(&writeTimeout, "write-timeout", 0, "HTTP write timeout")
	serveCmd.Flags().StringVar(&rootsFile, "roots", "", "Trusted root certificates (PEM) for /verify")
	serveCmd.Flags().BoolVar(&skipOCSP, "skip-ocsp", false, "Skip OCSP revocation check in /verify")
}

func runServe(cmd *cobra.Command, args []string) error {
	sc := cfg.Server
	if serverAddr != "" {
		sc.Address = serverAddr
	}
	if serverDebug {
		sc.Debug = true
	}
	if readTimeout > 0 {
		sc.ReadTimeout = readTimeout
	}
	if writeTimeout > 0 {
		sc.WriteTimeout = writeTimeout
	}

	trustStore, err := loadTrustStore()
	if err != nil {
		return err
	}

	log := logger.WithComponent("server")
	srv := server.NewServer(&server.Config{
		Address:       sc.Address,
		ReadTimeout:   sc.ReadTimeout,
		WriteTimeout:  sc.WriteTimeout,
		Debug:         sc.Debug,
		Issuer:        cfg.Issuer,
		RemoveAccents: cfg.RemoveAccents,
		TrustStore:    trustStore,
		Logger:        &log,
	})

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nShutting down server...")
		os.Exit(0)
	}()

	fmt.Printf("Starting server on %s (provider %s, %s)\n", sc.Address, cfg.Provider, cfg.Environment)
	return srv.Run()
}
