package nfselib

import (
	"context"
	"fmt"
	"io"

	"github.com/rezonia/nfse-abrasf/internal/model"
	"github.com/rezonia/nfse-abrasf/internal/processor"
)

// Options configures a Processor
type Options struct {
	// Provider forces a variant; empty detects it per document
	Provider Provider
	// Validate runs the model checks after loading
	Validate      bool
	RemoveAccents bool
	// Workers bounds concurrent loads in ProcessBatch (default: number of CPUs)
	Workers int
}

// DefaultOptions returns default processor options
func DefaultOptions() Options {
	return Options{Validate: true}
}

// Result is one loaded document
type Result struct {
	Invoice  *model.Invoice
	Provider Provider
	Issues   []string
}

// Valid reports whether the document passed validation
func (r *Result) Valid() bool {
	return len(r.Issues) == 0
}

// Processor loads RPS and NFSe documents
type Processor struct {
	pipeline *processor.Pipeline
	options  Options
}

// NewProcessor creates a processor; an unknown Provider is an error
func NewProcessor(opts Options) (*Processor, error) {
	popts := []processor.PipelineOption{
		processor.WithValidation(opts.Validate),
		processor.WithRemoveAccents(opts.RemoveAccents),
		processor.WithWorkers(opts.Workers),
	}
	if opts.Provider != "" {
		v := VariantFor(opts.Provider)
		if v == nil {
			return nil, fmt.Errorf("unknown provider %q, expected one of %v", opts.Provider, Variants())
		}
		popts = append(popts, processor.WithVariant(v))
	}

	return &Processor{
		pipeline: processor.NewPipeline(popts...),
		options:  opts,
	}, nil
}

// Process loads one document from r
func (p *Processor) Process(ctx context.Context, r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &model.ParseError{Provider: model.ProviderUnknown, Message: "failed to read input", Cause: err}
	}
	return convert(p.pipeline.ProcessXMLBytes(ctx, data))
}

// ProcessFiles loads paths concurrently; results keep the input order and
// a failed file leaves a nil entry
func (p *Processor) ProcessFiles(ctx context.Context, paths []string) ([]*Result, error) {
	results := make([]*Result, len(paths))
	var firstErr error
	for i, r := range p.pipeline.ProcessFiles(ctx, paths) {
		res, err := convert(r)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", paths[i], err)
			}
			continue
		}
		results[i] = res
	}
	return results, firstErr
}

// ProcessBatch loads every input concurrently
func (p *Processor) ProcessBatch(ctx context.Context, inputs []io.Reader) ([]*Result, error) {
	results := make([]*Result, len(inputs))
	errCh := make(chan error, len(inputs))

	for i, input := range inputs {
		go func(idx int, r io.Reader) {
			result, err := p.Process(ctx, r)
			if err != nil {
				errCh <- err
				return
			}
			results[idx] = result
			errCh <- nil
		}(i, input)
	}

	var firstErr error
	for range inputs {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return results, firstErr
}

// Collect gathers loaded invoices into a batch, skipping nil results
func Collect(results []*Result) *Batch {
	batch := model.NewBatch()
	for _, r := range results {
		if r != nil && r.Invoice != nil {
			batch.Add(r.Invoice)
		}
	}
	return batch
}

func convert(r *processor.Result) (*Result, error) {
	if r.Error != nil {
		return nil, r.Error
	}
	return &Result{Invoice: r.Invoice, Provider: r.Provider, Issues: r.Issues}, nil
}
