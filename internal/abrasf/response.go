package abrasf

import (
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"

	"github.com/rezonia/nfse-abrasf/internal/model"
)

// Parser interprets authority responses and folds them into the
// caller's batch. It never returns Go errors: every failure is an event
// in the result. A nil batch is treated as an empty one.
type Parser struct {
	engine *Engine
	store  DocumentStore
	now    func() time.Time
	logger zerolog.Logger
}

// ParserOption configures a Parser
type ParserOption func(*Parser)

// WithClock replaces time.Now as fallback issue date of returned NFSe
func WithClock(now func() time.Time) ParserOption {
	return func(p *Parser) {
		p.now = now
	}
}

// NewParser creates a parser; store may be nil
func NewParser(engine *Engine, store DocumentStore, opts ...ParserOption) *Parser {
	p := &Parser{
		engine: engine,
		store:  store,
		now:    time.Now,
		logger: engine.logger.With().Str("stage", "response").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// open parses the response and scans the generic message lists. It
// returns nil when the call must stop here.
func (p *Parser) open(res *Result, response string, extraLists ...string) *etree.Element {
	res.ResponseXML = response

	doc := etree.NewDocument()
	if err := doc.ReadFromString(strings.TrimSpace(response)); err != nil || doc.Root() == nil {
		res.addError("0", "Resposta do provedor não é um XML válido.")
		return nil
	}
	root := doc.Root()

	list, item := p.engine.variant.messageNames()
	p.scanMessages(res, root, list, item)
	for _, l := range extraLists {
		p.scanMessages(res, root, l, item)
	}
	if res.HasErrors() {
		return nil
	}

	if r := find(root, p.engine.variant.ResponseRoot(res.Operation)); r != nil {
		return r
	}
	return root
}

func (p *Parser) scanMessages(res *Result, root *etree.Element, list, item string) {
	el := find(root, list)
	for _, msg := range children(el, item) {
		res.Errors = append(res.Errors, model.Event{
			Code:       text(msg, "Codigo"),
			Message:    text(msg, "Mensagem"),
			Correction: text(msg, "Correcao"),
		})
	}
}

// Submit reads DataRecebimento and Protocolo; on success every invoice of
// batch is stamped with the lot number.
func (p *Parser) Submit(res *SubmitResult, response string, batch *model.Batch) {
	batch = ensure(batch)
	root := p.open(&res.Result, response)
	if root == nil {
		return
	}
	p.receipt(res, root)
	if res.Success {
		batch.SetLotNumber(res.Lot)
	}
}

func (p *Parser) receipt(res *SubmitResult, root *etree.Element) {
	res.ReceivedAt = timeValue(p.engine.location, root, "DataRecebimento")
	res.Protocol = text(root, "Protocolo")
	res.Success = res.Protocol != ""
}

// SubmitSync reads the receipt like Submit, then reconciles ListaNfse
func (p *Parser) SubmitSync(res *SubmitResult, response string, batch *model.Batch) {
	batch = ensure(batch)
	root := p.open(&res.Result, response, "ListaMensagemRetornoLote")
	if root == nil {
		return
	}
	p.receipt(res, root)
	if !res.Success {
		return
	}
	batch.SetLotNumber(res.Lot)

	list := child(root, "ListaNfse")
	if list == nil {
		res.Success = false
		res.addError("0", "Lista de NFSe não encontrada! (ListaNfse)")
		return
	}
	res.Invoices = p.reconcile(list, batch)
}

// Status reads NumeroLote and Situacao
func (p *Parser) Status(res *StatusResult, response string) {
	root := p.open(&res.Result, response)
	if root == nil {
		return
	}
	res.Lot = intValue(root, "NumeroLote")
	res.Situation = text(root, "Situacao")
	res.Success = !res.HasErrors()
}

// BatchQuery reconciles every returned CompNfse against batch
func (p *Parser) BatchQuery(res *BatchQueryResult, response string, batch *model.Batch) {
	batch = ensure(batch)
	root := p.open(&res.Result, response)
	if root == nil {
		return
	}
	list := child(root, "ListaNfse")
	if list == nil {
		res.addError("0", "Lista de NFSe não encontrada! (ListaNfse)")
		return
	}
	res.Success = true
	res.Invoices = p.reconcile(list, batch)
}

// RpsQuery reconciles the single returned CompNfse
func (p *Parser) RpsQuery(res *RpsQueryResult, response string, batch *model.Batch) {
	batch = ensure(batch)
	root := p.open(&res.Result, response)
	if root == nil {
		return
	}
	comp := child(root, "CompNfse")
	if comp == nil {
		res.addError("0", "Nota Fiscal não encontrada! (CompNfse)")
		return
	}
	res.Invoice = p.reconcileOne(comp, batch, batch.IndexByRps())
	if res.Invoice == nil {
		res.addError("0", "Nota Fiscal inválida! (CompNfse/Nfse/InfNfse)")
		return
	}
	res.Success = true
}

// RangeQuery loads every returned CompNfse and appends it to batch
func (p *Parser) RangeQuery(res *RangeQueryResult, response string, batch *model.Batch) {
	batch = ensure(batch)
	root := p.open(&res.Result, response)
	if root == nil {
		return
	}
	list := child(root, "ListaNfse")
	if list == nil {
		res.addError("0", "Lista de NFSe não encontrada! (ListaNfse)")
		return
	}
	for _, comp := range children(list, "CompNfse") {
		p.persist(comp)
		inv, err := p.engine.LoadElement(comp)
		if err != nil {
			p.skip(&res.Result, err)
			continue
		}
		batch.Add(inv)
		res.Invoices = append(res.Invoices, inv)
	}
	res.Success = true
}

// Cancel reads the confirmation at the variant's path. The call succeeds
// only when DataHoraCancelamento was recovered; the matching invoice of
// batch is then flipped to Cancelled.
func (p *Parser) Cancel(res *CancelResult, response string, batch *model.Batch) {
	batch = ensure(batch)
	root := p.open(&res.Result, response)
	if root == nil {
		return
	}
	conf := child(root, p.engine.variant.CancelConfirmation...)
	if conf == nil {
		res.addError("0", "Confirmação do cancelamento não encontrada!")
		return
	}

	infPedido := child(conf, "Pedido", "InfPedidoCancelamento")
	res.CancelledAt = timeValue(p.engine.location, conf, "DataHoraCancelamento")
	res.Code = text(infPedido, "CodigoCancelamento")
	res.NFSeNumber = text(infPedido, "IdentificacaoNfse", "Numero")
	res.Success = !res.CancelledAt.IsZero()
	if !res.Success {
		return
	}

	inv := batch.FindByNFSe(res.NFSeNumber)
	if inv == nil {
		return
	}
	inv.Status = model.StatusCancelled
	inv.Cancellation.NFSeNumber = res.NFSeNumber
	inv.Cancellation.Code = res.Code
	inv.Cancellation.DateTime = res.CancelledAt
}

// reconcile applies every CompNfse of list to batch and returns the
// touched invoices in response order
func (p *Parser) reconcile(list *etree.Element, batch *model.Batch) []*model.Invoice {
	idx := batch.IndexByRps()
	var out []*model.Invoice
	for _, comp := range children(list, "CompNfse") {
		if inv := p.reconcileOne(comp, batch, idx); inv != nil {
			out = append(out, inv)
		}
	}
	return out
}

// reconcileOne updates the first invoice of batch with the same RPS
// number, or loads and appends a new one
func (p *Parser) reconcileOne(comp *etree.Element, batch *model.Batch, idx map[string]*model.Invoice) *model.Invoice {
	inf := child(comp, "Nfse", "InfNfse")
	number := text(inf, "Numero")
	key := text(inf, "CodigoVerificacao")
	issued := issueDateOr(p.engine.location, inf, p.now())
	rpsNumber := text(inf, "IdentificacaoRps", "Numero")

	p.persistAs(comp, number, key, issued)

	if inv, ok := idx[rpsNumber]; ok {
		inv.NFSe.Number = number
		inv.NFSe.VerificationCode = key
		inv.NFSe.IssueDate = issued
		inv.RawXML = serialize(comp, false)
		return inv
	}

	inv, err := p.engine.LoadElement(comp)
	if err != nil {
		p.logger.Warn().Err(err).Str("nfse", number).Msg("skipping unreadable CompNfse")
		return nil
	}
	batch.Add(inv)
	if _, ok := idx[inv.Rps.Number]; !ok {
		idx[inv.Rps.Number] = inv
	}
	return inv
}

func (p *Parser) skip(res *Result, err error) {
	p.logger.Warn().Err(err).Msg("skipping unreadable CompNfse")
	res.Alerts = append(res.Alerts, err.Error())
}

func (p *Parser) persist(comp *etree.Element) {
	inf := child(comp, "Nfse", "InfNfse")
	p.persistAs(comp, text(inf, "Numero"), text(inf, "CodigoVerificacao"), issueDateOr(p.engine.location, inf, p.now()))
}

func (p *Parser) persistAs(comp *etree.Element, number, key string, at time.Time) {
	if p.store == nil {
		return
	}
	name := fmt.Sprintf("NFSe-%s-%s-.xml", number, key)
	if err := p.store.Write(name, serialize(comp, true), at); err != nil {
		p.logger.Error().Err(err).Str("file", name).Msg("failed to persist NFSe")
	}
}
