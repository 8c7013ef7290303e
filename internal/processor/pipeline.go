package processor

import (
	"context"
	"io"
	"os"
	"runtime"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rezonia/nfse-abrasf/internal/abrasf"
	"github.com/rezonia/nfse-abrasf/internal/model"
)

// Result is the outcome of loading one document
type Result struct {
	Source   string         `json:"source,omitempty"`
	Invoice  *model.Invoice `json:"invoice,omitempty"`
	Provider model.Provider `json:"provider"`
	// Issues lists validation failures; the invoice is still returned
	Issues []string `json:"issues,omitempty"`
	Error  error    `json:"-"`
}

// Valid reports whether the document loaded without validation issues
func (r *Result) Valid() bool {
	return r.Error == nil && len(r.Issues) == 0
}

// Pipeline loads ABRASF documents, detecting the municipal variant of each one
type Pipeline struct {
	registry      *abrasf.Registry
	variant       *abrasf.Variant
	removeAccents bool
	validate      bool
	workers       int
	logger        zerolog.Logger
}

// PipelineOption configures a Pipeline
type PipelineOption func(*Pipeline)

// WithRegistry replaces the variant registry used for detection
func WithRegistry(r *abrasf.Registry) PipelineOption {
	return func(p *Pipeline) {
		p.registry = r
	}
}

// WithVariant skips detection and loads everything with v
func WithVariant(v *abrasf.Variant) PipelineOption {
	return func(p *Pipeline) {
		p.variant = v
	}
}

// WithValidation runs Invoice.Validate on every loaded document
func WithValidation(enabled bool) PipelineOption {
	return func(p *Pipeline) {
		p.validate = enabled
	}
}

// WithRemoveAccents is passed to every engine the pipeline creates
func WithRemoveAccents(enabled bool) PipelineOption {
	return func(p *Pipeline) {
		p.removeAccents = enabled
	}
}

// WithWorkers bounds the number of documents loaded concurrently
func WithWorkers(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// NewPipeline creates a new processing pipeline
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		registry: abrasf.NewRegistry(),
		workers:  runtime.NumCPU(),
		logger:   log.Logger.With().Str("component", "processor").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessXML reads r fully and loads it
func (p *Pipeline) ProcessXML(ctx context.Context, r io.Reader) *Result {
	data, err := io.ReadAll(r)
	if err != nil {
		return &Result{Provider: model.ProviderUnknown, Error: model.NewParseError(model.ProviderUnknown, "", "failed to read input", err)}
	}
	return p.ProcessXMLBytes(ctx, data)
}

// ProcessXMLBytes loads one RPS or CompNfse document
func (p *Pipeline) ProcessXMLBytes(ctx context.Context, data []byte) *Result {
	result := &Result{Provider: model.ProviderUnknown}
	if err := ctx.Err(); err != nil {
		result.Error = err
		return result
	}

	v := p.variant
	if v == nil {
		detected, err := p.registry.Detect(data)
		if err != nil {
			result.Error = err
			return result
		}
		v = detected
	}
	result.Provider = v.Name

	engine := abrasf.NewEngine(v, abrasf.WithRemoveAccents(p.removeAccents))
	inv, err := engine.Load(data)
	if err != nil {
		result.Error = err
		return result
	}
	result.Invoice = inv

	if p.validate {
		if err := inv.Validate(); err != nil {
			if merr, ok := err.(*multierror.Error); ok {
				for _, e := range merr.Errors {
					result.Issues = append(result.Issues, e.Error())
				}
			} else {
				result.Issues = append(result.Issues, err.Error())
			}
		}
	}

	return result
}

// ProcessFile loads the document at path
func (p *Pipeline) ProcessFile(ctx context.Context, path string) *Result {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Result{Source: path, Provider: model.ProviderUnknown, Error: err}
	}
	result := p.ProcessXMLBytes(ctx, data)
	result.Source = path
	if result.Invoice != nil {
		result.Invoice.SourceFile = path
	}
	return result
}

// ProcessFiles loads paths concurrently. Results keep the input order.
func (p *Pipeline) ProcessFiles(ctx context.Context, paths []string) []*Result {
	results := make([]*Result, len(paths))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(p.workers, len(paths)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = p.ProcessFile(ctx, paths[i])
			}
		}()
	}

	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
		}
	}
	p.logger.Debug().Int("documents", len(paths)).Int("failed", failed).Msg("batch processed")

	return results
}

// Collect gathers the loaded invoices into a batch, skipping failures
func Collect(results []*Result) *model.Batch {
	batch := model.NewBatch()
	for _, r := range results {
		if r.Invoice != nil {
			batch.Add(r.Invoice)
		}
	}
	return batch
}
