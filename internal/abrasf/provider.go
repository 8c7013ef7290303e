package abrasf

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rezonia/nfse-abrasf/internal/model"
)

// Signer inserts an enveloped signature after every element named element
// found inside a container named container. It is called once per step of
// SigningPlan, innermost first.
type Signer interface {
	Sign(doc, container, element string) (string, error)
}

// Transport delivers an envelope to the authority endpoint of op and
// returns the raw response. Timeouts and retries are its own business.
type Transport interface {
	Send(ctx context.Context, op Operation, message string) (string, error)
}

// DocumentStore persists generated and received documents. Write failures
// are logged and never fail an operation.
type DocumentStore interface {
	Write(name, content string, at time.Time) error
}

// Provider runs the prepare, sign, send, parse cycle of every operation
type Provider struct {
	engine    *Engine
	builder   *Builder
	parser    *Parser
	signer    Signer
	transport Transport
	logger    zerolog.Logger
}

// ProviderOption configures a Provider
type ProviderOption func(*providerOptions)

type providerOptions struct {
	signer Signer
	store  DocumentStore
	parser []ParserOption
	logger *zerolog.Logger
}

// WithSigner sets the signer; without one envelopes are sent unsigned
func WithSigner(s Signer) ProviderOption {
	return func(o *providerOptions) {
		o.signer = s
	}
}

// WithStore sets the document store
func WithStore(s DocumentStore) ProviderOption {
	return func(o *providerOptions) {
		o.store = s
	}
}

// WithParserOptions forwards options to the response parser
func WithParserOptions(opts ...ParserOption) ProviderOption {
	return func(o *providerOptions) {
		o.parser = append(o.parser, opts...)
	}
}

// WithProviderLogger overrides the engine's logger for operation logs
func WithProviderLogger(l zerolog.Logger) ProviderOption {
	return func(o *providerOptions) {
		o.logger = &l
	}
}

// NewProvider wires builder, signer, transport and parser for engine
func NewProvider(engine *Engine, issuer Issuer, transport Transport, opts ...ProviderOption) *Provider {
	var o providerOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger := engine.logger
	if o.logger != nil {
		logger = *o.logger
	}
	return &Provider{
		engine:    engine,
		builder:   NewBuilder(engine, issuer, o.store),
		parser:    NewParser(engine, o.store, o.parser...),
		signer:    o.signer,
		transport: transport,
		logger:    logger.With().Str("stage", "provider").Logger(),
	}
}

// Engine returns the mapping engine
func (p *Provider) Engine() *Engine {
	return p.engine
}

// Builder returns the envelope builder
func (p *Provider) Builder() *Builder {
	return p.builder
}

// Parser returns the response parser
func (p *Provider) Parser() *Parser {
	return p.parser
}

// Submit sends an asynchronous lot
func (p *Provider) Submit(ctx context.Context, lot int, batch *model.Batch) (*SubmitResult, error) {
	batch = ensure(batch)
	res := &SubmitResult{Result: Result{Operation: OpSubmit}, Lot: lot}

	req, err := p.builder.Submit(lot, batch)
	if err != nil {
		return nil, err
	}
	resp, ok, err := p.exchange(ctx, &res.Result, req)
	if err != nil || !ok {
		return res, err
	}
	p.parser.Submit(res, resp, batch)
	p.done(&res.Result, func(e *zerolog.Event) { e.Int("lot", lot).Str("protocol", res.Protocol) })
	return res, nil
}

// SubmitSync sends up to MaxSyncRps documents and reconciles the issued NFSe
func (p *Provider) SubmitSync(ctx context.Context, lot int, batch *model.Batch) (*SubmitResult, error) {
	batch = ensure(batch)
	res := &SubmitResult{Result: Result{Operation: OpSubmitSync}, Lot: lot, Sync: true}

	req, err := p.builder.SubmitSync(lot, batch)
	if err != nil {
		return nil, err
	}
	resp, ok, err := p.exchange(ctx, &res.Result, req)
	if err != nil || !ok {
		return res, err
	}
	p.parser.SubmitSync(res, resp, batch)
	p.done(&res.Result, func(e *zerolog.Event) { e.Int("lot", lot).Int("nfse", len(res.Invoices)) })
	return res, nil
}

// Status asks for the processing situation of a lot
func (p *Provider) Status(ctx context.Context, protocol string) (*StatusResult, error) {
	res := &StatusResult{Result: Result{Operation: OpStatus}, Protocol: protocol}

	req, err := p.builder.Status(protocol)
	if err != nil {
		return nil, err
	}
	resp, ok, err := p.exchange(ctx, &res.Result, req)
	if err != nil || !ok {
		return res, err
	}
	p.parser.Status(res, resp)
	p.done(&res.Result, func(e *zerolog.Event) { e.Str("protocol", protocol).Str("situation", res.Situation) })
	return res, nil
}

// BatchQuery fetches the NFSe issued for a lot and reconciles them into batch
func (p *Provider) BatchQuery(ctx context.Context, protocol string, batch *model.Batch) (*BatchQueryResult, error) {
	batch = ensure(batch)
	res := &BatchQueryResult{Result: Result{Operation: OpBatchQuery}, Protocol: protocol}

	req, err := p.builder.BatchQuery(protocol)
	if err != nil {
		return nil, err
	}
	resp, ok, err := p.exchange(ctx, &res.Result, req)
	if err != nil || !ok {
		return res, err
	}
	p.parser.BatchQuery(res, resp, batch)
	p.done(&res.Result, func(e *zerolog.Event) { e.Str("protocol", protocol).Int("nfse", len(res.Invoices)) })
	return res, nil
}

// RpsQuery fetches the NFSe issued for one RPS
func (p *Provider) RpsQuery(ctx context.Context, q RpsQuery, batch *model.Batch) (*RpsQueryResult, error) {
	batch = ensure(batch)
	res := &RpsQueryResult{Result: Result{Operation: OpRpsQuery}, Query: q}

	req, err := p.builder.RpsQuery(q)
	if err != nil {
		return nil, err
	}
	resp, ok, err := p.exchange(ctx, &res.Result, req)
	if err != nil || !ok {
		return res, err
	}
	p.parser.RpsQuery(res, resp, batch)
	p.done(&res.Result, func(e *zerolog.Event) { e.Int("rps", q.Number) })
	return res, nil
}

// RangeQuery fetches issued NFSe matching q and appends them to batch
func (p *Provider) RangeQuery(ctx context.Context, q RangeQuery, batch *model.Batch) (*RangeQueryResult, error) {
	batch = ensure(batch)
	res := &RangeQueryResult{Result: Result{Operation: OpRangeQuery}, Query: q}

	req, err := p.builder.RangeQuery(q)
	if err != nil {
		return nil, err
	}
	resp, ok, err := p.exchange(ctx, &res.Result, req)
	if err != nil || !ok {
		return res, err
	}
	p.parser.RangeQuery(res, resp, batch)
	p.done(&res.Result, func(e *zerolog.Event) { e.Int("nfse", len(res.Invoices)) })
	return res, nil
}

// Cancel requests cancellation of an issued NFSe
func (p *Provider) Cancel(ctx context.Context, c CancelRequest, batch *model.Batch) (*CancelResult, error) {
	batch = ensure(batch)
	res := &CancelResult{Result: Result{Operation: OpCancel}, NFSeNumber: c.NFSeNumber, Code: c.Code}

	req, err := p.builder.Cancel(c)
	if err != nil {
		return nil, err
	}
	resp, ok, err := p.exchange(ctx, &res.Result, req)
	if err != nil || !ok {
		return res, err
	}
	p.parser.Cancel(res, resp, batch)
	p.done(&res.Result, func(e *zerolog.Event) { e.Str("nfse", res.NFSeNumber).Time("cancelled_at", res.CancelledAt) })
	return res, nil
}

// CancelBatch returns an error matching model.ErrNotImplemented
func (p *Provider) CancelBatch(_ context.Context, batch *model.Batch) (*Result, error) {
	_, err := p.builder.CancelBatch(batch)
	return nil, err
}

// Substitute returns an error matching model.ErrNotImplemented
func (p *Provider) Substitute(_ context.Context, inv *model.Invoice, nfseNumber, code string) (*Result, error) {
	_, err := p.builder.Substitute(inv, nfseNumber, code)
	return nil, err
}

// exchange signs and sends req. ok is false when preconditions failed,
// in which case nothing was sent.
func (p *Provider) exchange(ctx context.Context, res *Result, req *Request) (string, bool, error) {
	res.Alerts = append(res.Alerts, req.Alerts...)
	if !req.Valid() {
		res.Errors = append(res.Errors, req.Errors...)
		p.logger.Info().Str("operation", string(res.Operation)).Int("errors", len(res.Errors)).Msg("preconditions failed")
		return "", false, nil
	}

	signed, err := p.sign(req)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", req.Operation, err)
	}
	res.RequestXML = signed

	if p.transport == nil {
		return "", false, fmt.Errorf("%s: no transport configured", req.Operation)
	}
	resp, err := p.transport.Send(ctx, req.Operation, signed)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", req.Operation, err)
	}
	return resp, true, nil
}

// sign applies the signing plan in order
func (p *Provider) sign(req *Request) (string, error) {
	doc := req.XML
	if p.signer == nil {
		if len(req.Signing) > 0 {
			p.logger.Debug().Str("operation", string(req.Operation)).Msg("no signer configured, sending unsigned")
		}
		return doc, nil
	}
	for _, step := range req.Signing {
		signed, err := p.signer.Sign(doc, step.Container, step.Element)
		if err != nil {
			return "", fmt.Errorf("sign %s/%s: %w", step.Container, step.Element, err)
		}
		doc = signed
	}
	return doc, nil
}

func (p *Provider) done(res *Result, fields func(*zerolog.Event)) {
	e := p.logger.Info()
	if !res.Success {
		e = p.logger.Warn()
	}
	e = e.Str("operation", string(res.Operation)).
		Str("provider", string(p.engine.variant.Name)).
		Bool("success", res.Success).
		Int("errors", len(res.Errors))
	fields(e)
	e.Msg("operation finished")
}

func ensure(batch *model.Batch) *model.Batch {
	if batch == nil {
		return model.NewBatch()
	}
	return batch
}
