package abrasf

import (
	"bytes"
	"time"

	"github.com/beevik/etree"

	dec "github.com/rezonia/nfse-abrasf/internal/decimal"
	"github.com/rezonia/nfse-abrasf/internal/model"
)

// Load parses an RPS or NFSe document into an Invoice.
//
// The shape is chosen by the CompNfse marker, falling back to Rps. Every
// field read is permissive: an absent element leaves the zero value of the
// field (empty string, 0, zero decimal, zero time). Only an unrecognised
// root shape or malformed XML is an error.
func (e *Engine) Load(data []byte) (*model.Invoice, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(bytes.TrimSpace(data)); err != nil {
		return nil, model.NewParseError(e.variant.Name, "root", "malformed XML", err)
	}
	if doc.Root() == nil {
		return nil, model.NewParseError(e.variant.Name, "root", "empty document", nil)
	}

	inv, err := e.LoadElement(doc.Root())
	if err != nil {
		return nil, err
	}
	inv.RawXML = string(data)
	return inv, nil
}

// LoadElement is Load over an already parsed tree. RawXML is set to the
// serialized CompNfse or Rps element.
func (e *Engine) LoadElement(root *etree.Element) (*model.Invoice, error) {
	var (
		infDoc  *etree.Element
		canc    *etree.Element
		subst   *etree.Element
		isNFSe  bool
		shapeEl *etree.Element
	)

	if comp := find(root, "CompNfse"); comp != nil {
		isNFSe = true
		shapeEl = comp
		infDoc = child(comp, "Nfse", "InfNfse")
		canc = child(comp, "NfseCancelamento")
		subst = child(comp, "NfseSubstituicao")
	} else if rps := find(root, "Rps"); rps != nil {
		shapeEl = rps
		infDoc = child(rps, "InfRps")
	}

	if infDoc == nil {
		return nil, model.NewParseError(e.variant.Name, "root", "XML de RPS ou NFSe inválido", nil)
	}

	inv := &model.Invoice{
		Provider: e.variant.Name,
		RawXML:   serialize(shapeEl, false),
	}

	if isNFSe {
		inv.NFSe.Number = text(infDoc, "Numero")
		inv.NFSe.VerificationCode = text(infDoc, "CodigoVerificacao")
		inv.NFSe.IssueDate = timeValue(e.location, infDoc, "DataEmissao")
		inv.Rps.IssueDate = timeValue(e.location, infDoc, "DataEmissaoRps")
		inv.Signature = loadSignature(child(infDoc.Parent(), "Signature"))
	} else {
		inv.Rps.IssueDate = timeValue(e.location, infDoc, "DataEmissao")
		if text(infDoc, "Status") == "2" {
			inv.Status = model.StatusCancelled
		}
	}

	if ide := child(infDoc, "IdentificacaoRps"); ide != nil {
		inv.Rps.Number = text(ide, "Numero")
		inv.Rps.Series = text(ide, "Serie")
		inv.Rps.Type = model.ParseRpsType(text(ide, "Tipo"))
	}

	inv.OperationNature = intValue(infDoc, "NaturezaOperacao")
	inv.SpecialRegime = loadRegime(infDoc)
	switch intValue(infDoc, "IncentivadorCultural") {
	case 1:
		inv.CulturalIncentive = model.Yes
	case 2:
		inv.CulturalIncentive = model.No
	}

	if sub := child(infDoc, "RpsSubstituido"); sub != nil {
		inv.Substitution.RpsNumber = text(sub, "Numero")
		inv.Substitution.RpsSeries = text(sub, "Serie")
		inv.Substitution.RpsType = model.ParseRpsType(text(sub, "Tipo"))
	}

	if isNFSe {
		inv.Competence = timeValue(e.location, infDoc, "Competencia")
		inv.Substitution.SubstitutedNFSe = text(infDoc, "NfseSubstituida")
		inv.OtherInformation = text(infDoc, "OutrasInformacoes")
	}

	e.loadService(inv, infDoc, isNFSe)

	if isNFSe {
		inv.CreditValue = decimalValue(infDoc, "ValorCredito")
		inv.ServiceProvider = loadIssuedProvider(child(infDoc, "PrestadorServico"))
		inv.Customer = loadCustomer(child(infDoc, "TomadorServico"))
	} else {
		inv.ServiceProvider = loadRequestProvider(child(infDoc, "Prestador"))
		inv.Customer = loadCustomer(child(infDoc, "Tomador"))
	}

	inv.Intermediary = loadIntermediary(child(infDoc, "IntermediarioServico"))

	if isNFSe {
		if og := child(infDoc, "OrgaoGerador"); og != nil {
			inv.IssuingAuthority.MunicipalityCode = intValue(og, "CodigoMunicipio")
			inv.IssuingAuthority.State = text(og, "Uf")
		}
	}

	if cc := child(infDoc, "ConstrucaoCivil"); cc != nil {
		inv.Construction.WorkCode = text(cc, "CodigoObra")
		inv.Construction.Art = text(cc, "Art")
	}

	if canc != nil {
		loadCancellation(e.location, inv, canc)
	}
	if subst != nil {
		if s := child(subst, "SubstituicaoNfse"); s != nil {
			inv.Substitution.ID = attr(s, "Id")
			inv.Substitution.SubstitutingNFSe = text(s, "NfseSubstituidora")
			inv.Substitution.Signature = loadSignature(child(s, "Signature"))
		}
	}

	return inv, nil
}

// loadRegime folds OptanteSimplesNacional=1 into RegimeSimplesNacional;
// otherwise codes 1-6 map to themselves and anything else is RegimeNone.
func loadRegime(el *etree.Element) model.SpecialRegime {
	if intValue(el, "OptanteSimplesNacional") == 1 {
		return model.RegimeSimplesNacional
	}
	code := intValue(el, "RegimeEspecialTributacao")
	if code >= 1 && code <= 6 {
		return model.SpecialRegime(code)
	}
	return model.RegimeNone
}

func (e *Engine) loadService(inv *model.Invoice, infDoc *etree.Element, isNFSe bool) {
	servico := child(infDoc, "Servico")
	if servico == nil {
		return
	}

	if v := child(servico, "Valores"); v != nil {
		values := &inv.Service.Values
		values.ServiceAmount = decimalValue(v, "ValorServicos")
		values.Deductions = decimalValue(v, "ValorDeducoes")
		values.Pis = decimalValue(v, "ValorPis")
		values.Cofins = decimalValue(v, "ValorCofins")
		values.Inss = decimalValue(v, "ValorInss")
		values.Ir = decimalValue(v, "ValorIr")
		values.Csll = decimalValue(v, "ValorCsll")
		if intValue(v, "IssRetido") == 1 {
			values.IssWithheld = model.IssWithheld
		}
		values.Iss = decimalValue(v, "ValorIss")
		values.IssWithheldAmount = decimalValue(v, "ValorIssRetido")
		values.OtherWithholdings = decimalValue(v, "OutrasRetencoes")
		values.CalculationBase = decimalValue(v, "BaseCalculo")
		values.Rate = decimalValue(v, "Aliquota")
		if isNFSe || e.variant.RpsRate == RateFraction {
			values.Rate = dec.FractionToPercent(values.Rate)
		}
		values.NetAmount = decimalValue(v, "ValorLiquidoNfse")
		values.UnconditionalDiscount = decimalValue(v, "DescontoIncondicionado")
		values.ConditionalDiscount = decimalValue(v, "DescontoCondicionado")
	}

	inv.Service.ServiceListItem = text(servico, "ItemListaServico")
	inv.Service.CnaeCode = text(servico, "CodigoCnae")
	inv.Service.MunicipalTaxCode = text(servico, "CodigoTributacaoMunicipio")
	inv.Service.Description = text(servico, "Discriminacao")
	inv.Service.MunicipalityCode = intValue(servico, "CodigoMunicipio")

	if e.variant.LoadServiceItems != nil {
		inv.Service.Items = e.variant.LoadServiceItems(servico)
	}
}

// cpfOrCnpj returns Cpf when present, else Cnpj
func cpfOrCnpj(el *etree.Element) string {
	return firstText(el, "Cpf", "Cnpj")
}

func loadRequestProvider(el *etree.Element) model.Party {
	var p model.Party
	if el == nil {
		return p
	}
	p.TaxID = cpfOrCnpj(el)
	if p.TaxID == "" {
		p.TaxID = cpfOrCnpj(child(el, "CpfCnpj"))
	}
	p.MunicipalRegistration = text(el, "InscricaoMunicipal")
	return p
}

func loadIssuedProvider(el *etree.Element) model.Party {
	var p model.Party
	if el == nil {
		return p
	}
	if ide := child(el, "IdentificacaoPrestador"); ide != nil {
		p.TaxID = cpfOrCnpj(ide)
		p.MunicipalRegistration = text(ide, "InscricaoMunicipal")
	}
	p.Name = text(el, "RazaoSocial")
	p.TradeName = text(el, "NomeFantasia")
	p.Address = loadAddress(child(el, "Endereco"))
	p.Contact = loadContact(child(el, "Contato"))
	return p
}

func loadCustomer(el *etree.Element) model.Party {
	var p model.Party
	if el == nil {
		return p
	}
	if ide := child(el, "IdentificacaoTomador"); ide != nil {
		p.TaxID = cpfOrCnpj(child(ide, "CpfCnpj"))
		p.MunicipalRegistration = text(ide, "InscricaoMunicipal")
	}
	p.Name = text(el, "RazaoSocial")
	p.Address = loadAddress(child(el, "Endereco"))
	p.Contact = loadContact(child(el, "Contato"))
	return p
}

func loadIntermediary(el *etree.Element) model.Party {
	var p model.Party
	if el == nil {
		return p
	}
	p.Name = text(el, "RazaoSocial")
	p.TaxID = cpfOrCnpj(child(el, "CpfCnpj"))
	p.MunicipalRegistration = text(el, "InscricaoMunicipal")
	return p
}

func loadAddress(el *etree.Element) model.Address {
	if el == nil {
		return model.Address{}
	}
	return model.Address{
		Street:           text(el, "Endereco"),
		Number:           text(el, "Numero"),
		Complement:       text(el, "Complemento"),
		District:         text(el, "Bairro"),
		MunicipalityCode: intValue(el, "CodigoMunicipio"),
		State:            text(el, "Uf"),
		PostalCode:       text(el, "Cep"),
	}
}

// loadContact keeps the phone as written; the area code is not split back out
func loadContact(el *etree.Element) model.Contact {
	if el == nil {
		return model.Contact{}
	}
	return model.Contact{
		Phone: text(el, "Telefone"),
		Email: text(el, "Email"),
	}
}

func loadCancellation(loc *time.Location, inv *model.Invoice, canc *etree.Element) {
	inv.Status = model.StatusCancelled

	conf := child(canc, "Confirmacao")
	pedido := child(conf, "Pedido")
	infPedido := child(pedido, "InfPedidoCancelamento")

	inv.Cancellation.ID = attr(infPedido, "Id")
	if inv.Cancellation.ID == "" {
		inv.Cancellation.ID = attr(pedido, "Id")
	}
	inv.Cancellation.NFSeNumber = text(infPedido, "IdentificacaoNfse", "Numero")
	inv.Cancellation.Code = text(infPedido, "CodigoCancelamento")
	inv.Cancellation.DateTime = timeValue(loc, conf, "DataHoraCancelamento")

	sig := child(conf, "Signature")
	if sig == nil {
		sig = child(canc, "Signature")
	}
	inv.Cancellation.Signature = loadSignature(sig)
	inv.Cancellation.RequestSignature = loadSignature(child(pedido, "Signature"))
}

// issueDateOr returns the NFSe issue date read from infNfse, or fallback
func issueDateOr(loc *time.Location, infNfse *etree.Element, fallback time.Time) time.Time {
	if t := timeValue(loc, infNfse, "DataEmissao"); !t.IsZero() {
		return t
	}
	return fallback
}
