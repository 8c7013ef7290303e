package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/nfse-abrasf/internal/abrasf"
	"github.com/rezonia/nfse-abrasf/internal/logger"
	"github.com/rezonia/nfse-abrasf/internal/model"
	"github.com/rezonia/nfse-abrasf/internal/signature/xml"
	"github.com/rezonia/nfse-abrasf/internal/storage"
	"github.com/rezonia/nfse-abrasf/internal/transport"
)

var (
	opTimeout time.Duration

	submitLot  int
	submitSync bool

	rpsSeries string
	rpsType   string

	rangeNFSe             int
	rangeStart            string
	rangeEnd              string
	rangeCustomer         string
	rangeCustomerIM       string
	rangeIntermediaryName string
	rangeIntermediaryID   string
	rangeIntermediaryIM   string

	cancelCode string
)

var submitCmd = &cobra.Command{
	Use:   "submit [files...]",
	Short: "Submit a lot of RPS",
	Long: `Load RPS documents and send them as one lot.

The lot is signed with the configured certificate (each InfRps, then the
LoteRps) before it is sent. With --sync up to 3 RPS are converted into
NFSe in the same call (GerarNfse).

Examples:
  nfse submit rps/*.xml --lot 12 -c nfse.yaml
  nfse submit rps-1.xml --lot 13 --sync`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

var statusCmd = &cobra.Command{
	Use:   "status <protocol>",
	Short: "Query the processing status of a lot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProvider(func(ctx context.Context, p *abrasf.Provider) (interface{}, bool, error) {
			res, err := p.Status(ctx, args[0])
			return res, res != nil && res.Success, err
		})
	},
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query issued NFSe",
	Long: `Query issued NFSe by lot protocol, by RPS identification or by range.

Examples:
  nfse query batch PROT-0001
  nfse query rps 15 --series A
  nfse query range --start 2024-03-01 --end 2024-03-31`,
}

var queryBatchCmd = &cobra.Command{
	Use:   "batch <protocol>",
	Short: "Fetch the NFSe issued for a lot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProvider(func(ctx context.Context, p *abrasf.Provider) (interface{}, bool, error) {
			res, err := p.BatchQuery(ctx, args[0], nil)
			return res, res != nil && res.Success, err
		})
	},
}

var queryRpsCmd = &cobra.Command{
	Use:   "rps <number>",
	Short: "Fetch the NFSe issued for one RPS",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid RPS number %q", args[0])
		}
		q := abrasf.RpsQuery{Number: number, Series: rpsSeries, Type: model.ParseRpsType(rpsType)}
		return withProvider(func(ctx context.Context, p *abrasf.Provider) (interface{}, bool, error) {
			res, err := p.RpsQuery(ctx, q, nil)
			return res, res != nil && res.Success, err
		})
	},
}

var queryRangeCmd = &cobra.Command{
	Use:   "range",
	Short: "Fetch NFSe by number, period, customer or intermediary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := abrasf.RangeQuery{
			NFSeNumber:                        rangeNFSe,
			CustomerTaxID:                     rangeCustomer,
			CustomerMunicipalRegistration:     rangeCustomerIM,
			IntermediaryName:                  rangeIntermediaryName,
			IntermediaryTaxID:                 rangeIntermediaryID,
			IntermediaryMunicipalRegistration: rangeIntermediaryIM,
		}
		var err error
		if q.Start, err = parseDate(rangeStart); err != nil {
			return err
		}
		if q.End, err = parseDate(rangeEnd); err != nil {
			return err
		}
		return withProvider(func(ctx context.Context, p *abrasf.Provider) (interface{}, bool, error) {
			res, err := p.RangeQuery(ctx, q, nil)
			return res, res != nil && res.Success, err
		})
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <nfse-number>",
	Short: "Cancel an issued NFSe",
	Long: `Request the cancellation of an issued NFSe.

Examples:
  nfse cancel 1001 --code 1 -c nfse.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := abrasf.CancelRequest{NFSeNumber: args[0], Code: cancelCode}
		return withProvider(func(ctx context.Context, p *abrasf.Provider) (interface{}, bool, error) {
			res, err := p.Cancel(ctx, req, nil)
			return res, res != nil && res.Success, err
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{submitCmd, statusCmd, queryCmd, cancelCmd} {
		rootCmd.AddCommand(c)
	}
	queryCmd.AddCommand(queryBatchCmd, queryRpsCmd, queryRangeCmd)

	for _, c := range []*cobra.Command{submitCmd, statusCmd, queryCmd, cancelCmd} {
		c.PersistentFlags().DurationVar(&opTimeout, "timeout", 2*time.Minute, "Timeout of the whole operation")
	}

	submitCmd.Flags().IntVar(&submitLot, "lot", 0, "Lot number")
	submitCmd.Flags().BoolVar(&submitSync, "sync", false, "Issue synchronously (GerarNfse, up to 3 RPS)")

	queryRpsCmd.Flags().StringVar(&rpsSeries, "series", "", "RPS series")
	queryRpsCmd.Flags().StringVar(&rpsType, "type", model.RpsTypeRPS.Code(), "RPS type (1 RPS, 2 mixed, 3 coupon)")

	queryRangeCmd.Flags().IntVar(&rangeNFSe, "nfse-number", 0, "NFSe number")
	queryRangeCmd.Flags().StringVar(&rangeStart, "start", "", "Start of issue period (YYYY-MM-DD)")
	queryRangeCmd.Flags().StringVar(&rangeEnd, "end", "", "End of issue period (YYYY-MM-DD)")
	queryRangeCmd.Flags().StringVar(&rangeCustomer, "customer", "", "Customer CPF/CNPJ")
	queryRangeCmd.Flags().StringVar(&rangeCustomerIM, "customer-im", "", "Customer municipal registration")
	queryRangeCmd.Flags().StringVar(&rangeIntermediaryName, "intermediary-name", "", "Intermediary name")
	queryRangeCmd.Flags().StringVar(&rangeIntermediaryID, "intermediary", "", "Intermediary CPF/CNPJ")
	queryRangeCmd.Flags().StringVar(&rangeIntermediaryIM, "intermediary-im", "", "Intermediary municipal registration")

	cancelCmd.Flags().StringVar(&cancelCode, "code", "", "Cancellation code")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	results := loadFiles(files, false)
	batch := model.NewBatch()
	for _, r := range results {
		if r.Error != "" {
			return fmt.Errorf("%s: %s", r.File, r.Error)
		}
		batch.Add(r.Invoice)
	}
	printVerbose("Loaded %d RPS\n", batch.Len())

	return withProvider(func(ctx context.Context, p *abrasf.Provider) (interface{}, bool, error) {
		submit := p.Submit
		if submitSync {
			submit = p.SubmitSync
		}
		res, err := submit(ctx, submitLot, batch)
		return res, res != nil && res.Success, err
	})
}

// withProvider builds the provider from the configuration, runs call and
// prints its result
func withProvider(call func(ctx context.Context, p *abrasf.Provider) (interface{}, bool, error)) error {
	p, err := newProvider()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, ok, err := call(ctx, p)
	if err != nil {
		return err
	}
	if err := writeJSON(os.Stdout, res); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("operation was not successful")
	}
	return nil
}

func newProvider() (*abrasf.Provider, error) {
	v, err := configuredVariant()
	if err != nil {
		return nil, err
	}
	engine := abrasf.NewEngine(v,
		abrasf.WithLogger(logger.WithComponent("abrasf")),
		abrasf.WithRemoveAccents(cfg.RemoveAccents),
	)

	tcfg := cfg.Transport()
	tlog := logger.WithComponent("transport")
	tcfg.Logger = &tlog
	client, err := transport.New(v, tcfg)
	if err != nil {
		return nil, err
	}

	opts := []abrasf.ProviderOption{abrasf.WithProviderLogger(logger.WithComponent("provider"))}

	if cfg.Certificate.CertFile != "" {
		signer, err := xml.LoadSigner(cfg.Certificate.CertFile, cfg.Certificate.KeyFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, abrasf.WithSigner(signer))
	}

	if cfg.Storage.Dir != "" {
		storeOpts := []storage.Option{storage.WithLogger(logger.WithComponent("storage"))}
		if cfg.Storage.SplitByMonth {
			storeOpts = append(storeOpts, storage.SplitByMonth())
		}
		if !cfg.Storage.SaveRpsEnabled() {
			storeOpts = append(storeOpts, storage.SkipRps())
		}
		if !cfg.Storage.SaveNFSeEnabled() {
			storeOpts = append(storeOpts, storage.SkipNFSe())
		}
		store, err := storage.NewFileStore(cfg.Storage.Dir, storeOpts...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, abrasf.WithStore(store))
	}

	return abrasf.NewProvider(engine, cfg.Issuer, client, opts...), nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}
