package abrasf

import (
	"fmt"
	"strconv"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"

	"github.com/rezonia/nfse-abrasf/internal/model"
)

// MaxSyncRps is the most RPS accepted by a synchronous submission
const MaxSyncRps = 3

// Issuer is the provider on whose behalf envelopes are built
type Issuer struct {
	TaxID                 string `json:"tax_id" yaml:"tax_id"`
	MunicipalRegistration string `json:"municipal_registration" yaml:"municipal_registration"`
	MunicipalityCode      int    `json:"municipality_code" yaml:"municipality_code"`
}

// SignStep names one signing pass: every Element inside a Container
type SignStep struct {
	Container string `json:"container"`
	Element   string `json:"element"`
}

// Request is a built, unsigned envelope
type Request struct {
	Operation Operation     `json:"operation"`
	XML       string        `json:"xml,omitempty"`
	Signing   []SignStep    `json:"signing,omitempty"`
	Errors    []model.Event `json:"errors,omitempty"`
	Alerts    []string      `json:"alerts,omitempty"`
}

// Valid reports whether every precondition held
func (r *Request) Valid() bool {
	return len(r.Errors) == 0
}

func (r *Request) fail(code, message string) {
	r.Errors = append(r.Errors, model.Event{Code: code, Message: message})
}

// SigningPlan returns the signing passes of op, innermost first.
// Per-document signatures must be applied before the lot signature that
// covers them. Queries are not signed.
func SigningPlan(op Operation) []SignStep {
	switch op {
	case OpSubmit:
		return []SignStep{{"Rps", "InfRps"}, {"EnviarLoteRpsEnvio", "LoteRps"}}
	case OpSubmitSync:
		return []SignStep{{"Rps", "InfRps"}, {"GerarNfseEnvio", "LoteRps"}}
	case OpCancel:
		return []SignStep{{"Pedido", "InfPedidoCancelamento"}}
	default:
		return nil
	}
}

// Builder assembles operation envelopes for one variant and issuer
type Builder struct {
	engine *Engine
	issuer Issuer
	store  DocumentStore
	logger zerolog.Logger
}

// NewBuilder creates a builder; store may be nil
func NewBuilder(engine *Engine, issuer Issuer, store DocumentStore) *Builder {
	return &Builder{
		engine: engine,
		issuer: issuer,
		store:  store,
		logger: engine.logger.With().Str("stage", "envelope").Logger(),
	}
}

// Issuer returns the issuer envelopes are built for
func (b *Builder) Issuer() Issuer {
	return b.issuer
}

func (b *Builder) begin(op Operation) (*Request, error) {
	if !b.engine.variant.Supports(op) {
		return nil, model.NewUnsupportedError(b.engine.variant.Name, string(op))
	}
	return &Request{Operation: op, Signing: SigningPlan(op)}, nil
}

func (b *Builder) root(name string) *etree.Element {
	el := etree.NewElement(name)
	b.engine.variant.NamespaceAttr(el)
	return el
}

// Submit builds EnviarLoteRpsEnvio for an asynchronous lot
func (b *Builder) Submit(lot int, batch *model.Batch) (*Request, error) {
	req, err := b.begin(OpSubmit)
	if err != nil {
		return nil, err
	}
	b.checkLot(req, lot, batch)
	if !req.Valid() {
		return req, nil
	}

	root := b.root("EnviarLoteRpsEnvio")
	t := b.engine.newTagger()
	b.lot(t, root, lot, batch, false)
	req.Alerts = t.Alerts()
	return b.finish(req, root, false)
}

// SubmitSync builds GerarNfseEnvio; at most MaxSyncRps documents
func (b *Builder) SubmitSync(lot int, batch *model.Batch) (*Request, error) {
	req, err := b.begin(OpSubmitSync)
	if err != nil {
		return nil, err
	}
	b.checkLot(req, lot, batch)
	if batch.Len() > MaxSyncRps {
		req.fail("0", "Apenas 3 RPS podem ser enviados em modo Sincrono.")
	}
	if !req.Valid() {
		return req, nil
	}

	root := b.root("GerarNfseEnvio")
	t := b.engine.newTagger()
	b.lot(t, root, lot, batch, true)
	req.Alerts = t.Alerts()
	return b.finish(req, root, true)
}

func (b *Builder) checkLot(req *Request, lot int, batch *model.Batch) {
	if lot == 0 {
		req.fail("0", "Lote não informado.")
	}
	if batch.Len() == 0 {
		req.fail("0", "RPS não informado.")
	}
}

// lot writes LoteRps with every RPS of batch and persists each one
func (b *Builder) lot(t *Tagger, root *etree.Element, lot int, batch *model.Batch, versioned bool) {
	el := root.CreateElement("LoteRps")
	el.CreateAttr("Id", "L"+strconv.Itoa(lot))
	if versioned {
		el.CreateAttr("versao", "1.00")
	}

	t.Add(el, KindInt, "NumeroLote", 1, 15, Required, lot)
	t.Add(el, KindStrNumber, "Cnpj", 14, 14, Required, b.issuerCnpj())
	t.Add(el, KindStr, "InscricaoMunicipal", 1, 15, Required, b.issuer.MunicipalRegistration)
	t.Add(el, KindInt, "QuantidadeRps", 1, 4, Required, batch.Len())

	list := el.CreateElement("ListaRps")
	for _, inv := range batch.Items() {
		rps := b.engine.rpsElement(t, inv)
		list.AddChild(rps)

		name := fmt.Sprintf("Rps-%s-%s.xml", inv.Rps.IssueDate.In(b.engine.location).Format("20060102"), inv.Rps.Number)
		b.persist(name, serialize(rps, false), inv)
	}
}

func (b *Builder) persist(name, content string, inv *model.Invoice) {
	if b.store == nil {
		return
	}
	if err := b.store.Write(name, content, inv.Rps.IssueDate); err != nil {
		b.logger.Error().Err(err).Str("file", name).Msg("failed to persist RPS")
	}
}

// Status builds ConsultarSituacaoLoteRpsEnvio
func (b *Builder) Status(protocol string) (*Request, error) {
	return b.protocolQuery(OpStatus, "ConsultarSituacaoLoteRpsEnvio", protocol)
}

// BatchQuery builds ConsultarLoteRpsEnvio
func (b *Builder) BatchQuery(protocol string) (*Request, error) {
	return b.protocolQuery(OpBatchQuery, "ConsultarLoteRpsEnvio", protocol)
}

func (b *Builder) protocolQuery(op Operation, rootName, protocol string) (*Request, error) {
	req, err := b.begin(op)
	if err != nil {
		return nil, err
	}
	root := b.root(rootName)
	t := b.engine.newTagger()
	b.prestador(t, root)
	t.Add(root, KindStr, "Protocolo", 1, 50, Required, protocol)
	req.Alerts = t.Alerts()
	return b.finish(req, root, false)
}

// RpsQuery builds ConsultarNfseRpsEnvio
func (b *Builder) RpsQuery(q RpsQuery) (*Request, error) {
	req, err := b.begin(OpRpsQuery)
	if err != nil {
		return nil, err
	}
	if q.Number < 1 {
		req.fail("0", "Número da RPS não informado para a consulta.")
		return req, nil
	}

	root := b.root("ConsultarNfseRpsEnvio")
	t := b.engine.newTagger()
	writeRpsIdentification(t, root, "IdentificacaoRps", strconv.Itoa(q.Number), q.Series, q.Type)
	b.prestador(t, root)
	req.Alerts = t.Alerts()
	return b.finish(req, root, false)
}

// RangeQuery builds ConsultarNfseEnvio. The period is sent only when both
// ends are set, the intermediary only with both name and tax id.
func (b *Builder) RangeQuery(q RangeQuery) (*Request, error) {
	req, err := b.begin(OpRangeQuery)
	if err != nil {
		return nil, err
	}

	root := b.root("ConsultarNfseEnvio")
	t := b.engine.newTagger()
	b.prestador(t, root)

	t.Add(root, KindInt, "NumeroNfse", 1, 15, PositiveOnly, q.NFSeNumber)

	if !q.Start.IsZero() && !q.End.IsZero() {
		period := root.CreateElement("PeriodoEmissao")
		t.Add(period, KindDate, "DataInicial", 10, 10, Required, q.Start)
		t.Add(period, KindDate, "DataFinal", 10, 10, Required, q.End)
	}

	if model.OnlyDigits(q.CustomerTaxID) != "" {
		tomador := root.CreateElement("Tomador")
		queryCpfCnpj(t, tomador.CreateElement("CpfCnpj"), q.CustomerTaxID)
		t.Add(tomador, KindStr, "InscricaoMunicipal", 1, 15, Optional, q.CustomerMunicipalRegistration)
	}

	if q.IntermediaryName != "" && model.OnlyDigits(q.IntermediaryTaxID) != "" {
		inter := root.CreateElement("IntermediarioServico")
		t.Add(inter, KindStr, "RazaoSocial", 1, 115, Required, q.IntermediaryName)
		queryCpfCnpj(t, inter.CreateElement("CpfCnpj"), q.IntermediaryTaxID)
		t.Add(inter, KindStr, "InscricaoMunicipal", 1, 15, Optional, q.IntermediaryMunicipalRegistration)
	}

	req.Alerts = t.Alerts()
	return b.finish(req, root, false)
}

// queryCpfCnpj writes Cnpj for a 14-digit id, otherwise Cpf zero-filled to 11
func queryCpfCnpj(t *Tagger, parent *etree.Element, taxID string) {
	digits := model.OnlyDigits(taxID)
	if model.IsCNPJ(digits) {
		t.Add(parent, KindStrNumber, "Cnpj", 14, 14, Required, digits)
		return
	}
	t.Add(parent, KindStrNumber, "Cpf", 11, 11, Required, model.ZeroFill(digits, 11))
}

// Cancel builds CancelarNfseEnvio
func (b *Builder) Cancel(c CancelRequest) (*Request, error) {
	req, err := b.begin(OpCancel)
	if err != nil {
		return nil, err
	}
	if c.NFSeNumber == "" || c.Code == "" {
		req.fail("AC0001", "Número da NFSe/Codigo de cancelamento não informado para cancelamento.")
		return req, nil
	}

	root := b.root("CancelarNfseEnvio")
	t := b.engine.newTagger()
	inf := root.CreateElement("Pedido").CreateElement("InfPedidoCancelamento")
	inf.CreateAttr("Id", "N"+c.NFSeNumber)

	ide := inf.CreateElement("IdentificacaoNfse")
	t.Add(ide, KindStrNumber, "Numero", 1, 15, Required, c.NFSeNumber)
	t.Add(ide, KindStrNumber, "Cnpj", 14, 14, Required, b.issuerCnpj())
	t.Add(ide, KindStr, "InscricaoMunicipal", 1, 15, Required, b.issuer.MunicipalRegistration)
	t.Add(ide, KindStrNumber, "CodigoMunicipio", 1, 7, Required, b.issuer.MunicipalityCode)
	t.Add(inf, KindStrNumber, "CodigoCancelamento", 1, 4, Required, c.Code)

	req.Alerts = t.Alerts()
	return b.finish(req, root, false)
}

// CancelBatch is not part of ABRASF 1.00; every known variant rejects it
func (b *Builder) CancelBatch(batch *model.Batch) (*Request, error) {
	if _, err := b.begin(OpCancelBatch); err != nil {
		return nil, err
	}
	return nil, model.NewUnsupportedError(b.engine.variant.Name, string(OpCancelBatch))
}

// Substitute is not part of ABRASF 1.00; every known variant rejects it
func (b *Builder) Substitute(inv *model.Invoice, nfseNumber, code string) (*Request, error) {
	if _, err := b.begin(OpSubstitute); err != nil {
		return nil, err
	}
	return nil, model.NewUnsupportedError(b.engine.variant.Name, string(OpSubstitute))
}

func (b *Builder) prestador(t *Tagger, parent *etree.Element) {
	p := parent.CreateElement("Prestador")
	t.Add(p, KindStrNumber, "Cnpj", 14, 14, Required, b.issuerCnpj())
	t.Add(p, KindStr, "InscricaoMunicipal", 1, 15, Required, b.issuer.MunicipalRegistration)
}

func (b *Builder) issuerCnpj() string {
	return model.ZeroFill(model.OnlyDigits(b.issuer.TaxID), 14)
}

func (b *Builder) finish(req *Request, root *etree.Element, declaration bool) (*Request, error) {
	doc := etree.NewDocument()
	if declaration {
		doc = newDocument()
	}
	doc.SetRoot(root)
	out, err := render(doc, false)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", req.Operation, err)
	}
	req.XML = out
	return req, nil
}
