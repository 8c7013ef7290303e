package abrasf

import (
	"fmt"
	"strconv"

	"github.com/beevik/etree"

	dec "github.com/rezonia/nfse-abrasf/internal/decimal"
	"github.com/rezonia/nfse-abrasf/internal/model"
)

// WriteRPS renders the invoice as a standalone Rps document
func (e *Engine) WriteRPS(inv *model.Invoice) (string, error) {
	doc := newDocument()
	doc.SetRoot(e.rpsElement(e.newTagger(), inv))
	out, err := render(doc, true)
	if err != nil {
		return "", fmt.Errorf("write rps %s: %w", inv.Rps.Number, err)
	}
	return out, nil
}

// WriteNFSe renders the invoice as a CompNfse document, including the
// cancellation block when cancelled and the substitution block when a
// substituting NFSe is set.
func (e *Engine) WriteNFSe(inv *model.Invoice) (string, error) {
	t := e.newTagger()

	comp := etree.NewElement("CompNfse")
	e.variant.NamespaceAttr(comp)
	e.writeNFSe(t, comp, inv)
	e.writeCancellation(t, comp, inv)
	e.writeSubstitution(t, comp, inv)

	doc := newDocument()
	doc.SetRoot(comp)
	out, err := render(doc, true)
	if err != nil {
		return "", fmt.Errorf("write nfse %s: %w", inv.NFSe.Number, err)
	}
	return out, nil
}

// rpsElement builds Rps/InfRps[Id=R{number}]
func (e *Engine) rpsElement(t *Tagger, inv *model.Invoice) *etree.Element {
	rps := etree.NewElement("Rps")
	inf := rps.CreateElement("InfRps")
	inf.CreateAttr("Id", "R"+inv.Rps.Number)

	writeRpsIdentification(t, inf, "IdentificacaoRps", inv.Rps.Number, inv.Rps.Series, inv.Rps.Type)
	t.Add(inf, KindDateTime, "DataEmissao", 19, 20, Required, inv.Rps.IssueDate)
	t.Add(inf, KindInt, "NaturezaOperacao", 1, 1, Required, inv.OperationNature)

	regime, optante := regimeCodes(inv.SpecialRegime)
	if inv.SpecialRegime == model.RegimeNone {
		regime = ""
	}
	t.Add(inf, KindInt, "RegimeEspecialTributacao", 1, 1, Optional, regime)
	t.Add(inf, KindInt, "OptanteSimplesNacional", 1, 1, Required, optante)
	t.Add(inf, KindInt, "IncentivadorCultural", 1, 1, Required, incentiveCode(inv.CulturalIncentive))

	status := "1"
	if inv.Status == model.StatusCancelled {
		status = "2"
	}
	t.Add(inf, KindInt, "Status", 1, 1, Required, status)

	if inv.Substitution.RpsNumber != "" {
		writeRpsIdentification(t, inf, "RpsSubstituido", inv.Substitution.RpsNumber, inv.Substitution.RpsSeries, inv.Substitution.RpsType)
	}

	e.writeService(t, inf, inv, e.variant.RpsRate)

	prestador := inf.CreateElement("Prestador")
	t.AddCpfCnpj(prestador, inv.ServiceProvider.TaxID)
	t.Add(prestador, KindStr, "InscricaoMunicipal", 1, 15, Optional, inv.ServiceProvider.MunicipalRegistration)

	writeCustomer(t, inf, "Tomador", inv.Customer)
	writeIntermediary(t, inf, inv.Intermediary)
	writeConstruction(t, inf, inv.Construction)

	return rps
}

func (e *Engine) writeNFSe(t *Tagger, comp *etree.Element, inv *model.Invoice) {
	nfse := comp.CreateElement("Nfse")
	inf := nfse.CreateElement("InfNfse")
	inf.CreateAttr("Id", inv.NFSe.Number)

	t.Add(inf, KindInt, "Numero", 1, 15, Required, inv.NFSe.Number)
	t.Add(inf, KindStr, "CodigoVerificacao", 1, 15, Required, inv.NFSe.VerificationCode)
	t.Add(inf, KindDateTime, "DataEmissao", 19, 20, Required, inv.NFSe.IssueDate)
	writeRpsIdentification(t, inf, "IdentificacaoRps", inv.Rps.Number, inv.Rps.Series, inv.Rps.Type)
	t.Add(inf, KindDateTime, "DataEmissaoRps", 19, 20, Required, inv.Rps.IssueDate)
	t.Add(inf, KindInt, "NaturezaOperacao", 1, 1, Required, inv.OperationNature)

	regime, optante := regimeCodes(inv.SpecialRegime)
	t.Add(inf, KindInt, "RegimeEspecialTributacao", 1, 1, Optional, regime)
	t.Add(inf, KindInt, "OptanteSimplesNacional", 1, 1, Required, optante)
	t.Add(inf, KindInt, "IncentivadorCultural", 1, 1, Required, incentiveCode(inv.CulturalIncentive))
	t.Add(inf, KindDate, "Competencia", 10, 10, Required, inv.Competence)

	if inv.Substitution.RpsNumber != "" {
		writeRpsIdentification(t, inf, "RpsSubstituido", inv.Substitution.RpsNumber, inv.Substitution.RpsSeries, inv.Substitution.RpsType)
	}
	t.Add(inf, KindInt, "NfseSubstituida", 1, 15, Optional, inv.Substitution.SubstitutedNFSe)
	t.Add(inf, KindStr, "OutrasInformacoes", 1, 255, Optional, inv.OtherInformation)

	// issued documents always carry the rate as a fraction
	e.writeService(t, inf, inv, RateFraction)
	t.Add(inf, KindDe2, "ValorCredito", 1, 15, PositiveOnly, inv.CreditValue)

	p := inv.ServiceProvider
	prestador := inf.CreateElement("PrestadorServico")
	ide := prestador.CreateElement("IdentificacaoPrestador")
	t.AddCpfCnpj(ide, p.TaxID)
	t.Add(ide, KindStr, "InscricaoMunicipal", 1, 15, Optional, p.MunicipalRegistration)
	t.Add(prestador, KindStr, "RazaoSocial", 1, 115, Optional, p.Name)
	t.Add(prestador, KindStr, "NomeFantasia", 1, 60, Optional, p.TradeName)
	writeAddress(t, prestador, p.Address)
	writeContact(t, prestador, p.Contact)

	writeCustomer(t, inf, "TomadorServico", inv.Customer)
	writeIntermediary(t, inf, inv.Intermediary)
	writeConstruction(t, inf, inv.Construction)

	if inv.IssuingAuthority.MunicipalityCode != 0 {
		og := inf.CreateElement("OrgaoGerador")
		t.Add(og, KindStrNumber, "CodigoMunicipio", 1, 7, Optional, inv.IssuingAuthority.MunicipalityCode)
		t.Add(og, KindStr, "Uf", 2, 2, Optional, inv.IssuingAuthority.State)
	}

	writeSignature(nfse, inv.Signature)
}

func (e *Engine) writeCancellation(t *Tagger, comp *etree.Element, inv *model.Invoice) {
	if inv.Status != model.StatusCancelled {
		return
	}
	c := inv.Cancellation

	conf := comp.CreateElement("NfseCancelamento").CreateElement("Confirmacao")
	writeSignature(conf, c.Signature)

	pedido := conf.CreateElement("Pedido")
	pedido.CreateAttr("Id", c.ID)
	infPedido := pedido.CreateElement("InfPedidoCancelamento")
	infPedido.CreateAttr("Id", c.ID)

	number := c.NFSeNumber
	if number == "" {
		number = inv.NFSe.Number
	}
	ide := infPedido.CreateElement("IdentificacaoNfse")
	t.Add(ide, KindStrNumber, "Numero", 1, 15, Required, number)
	t.AddCpfCnpj(ide, model.ZeroFill(model.OnlyDigits(inv.ServiceProvider.TaxID), 14))
	t.Add(ide, KindStrNumber, "InscricaoMunicipal", 1, 15, Required, inv.ServiceProvider.MunicipalRegistration)
	t.Add(ide, KindStrNumber, "CodigoMunicipio", 1, 7, Required, inv.ServiceProvider.Address.MunicipalityCode)
	t.Add(infPedido, KindStrNumber, "CodigoCancelamento", 1, 4, Required, c.Code)

	writeSignature(pedido, c.RequestSignature)
	t.Add(conf, KindDateTime, "DataHoraCancelamento", 19, 20, Required, c.DateTime)
}

func (e *Engine) writeSubstitution(t *Tagger, comp *etree.Element, inv *model.Invoice) {
	s := inv.Substitution
	if s.SubstitutingNFSe == "" {
		return
	}
	sub := comp.CreateElement("NfseSubstituicao").CreateElement("SubstituicaoNfse")
	sub.CreateAttr("Id", s.ID)
	t.Add(sub, KindInt, "NfseSubstituidora", 1, 15, Required, s.SubstitutingNFSe)
	writeSignature(sub, s.Signature)
}

// writeService builds Servico{Valores, classification codes}; the
// variant may append its own line items after CodigoMunicipio.
func (e *Engine) writeService(t *Tagger, parent *etree.Element, inv *model.Invoice, rate RateMode) {
	svc := inv.Service
	v := svc.Values

	servico := parent.CreateElement("Servico")
	valores := servico.CreateElement("Valores")

	t.Add(valores, KindDe2, "ValorServicos", 1, 15, Required, v.ServiceAmount)
	t.Add(valores, KindDe2, "ValorDeducoes", 1, 15, PositiveOnly, v.Deductions)
	t.Add(valores, KindDe2, "ValorPis", 1, 15, PositiveOnly, v.Pis)
	t.Add(valores, KindDe2, "ValorCofins", 1, 15, PositiveOnly, v.Cofins)
	t.Add(valores, KindDe2, "ValorInss", 1, 15, PositiveOnly, v.Inss)
	t.Add(valores, KindDe2, "ValorIr", 1, 15, PositiveOnly, v.Ir)
	t.Add(valores, KindDe2, "ValorCsll", 1, 15, PositiveOnly, v.Csll)

	retido := 2
	if v.IssWithheld == model.IssWithheld {
		retido = 1
	}
	t.Add(valores, KindInt, "IssRetido", 1, 1, Required, retido)

	t.Add(valores, KindDe2, "ValorIss", 1, 15, PositiveOnly, v.Iss)
	t.Add(valores, KindDe2, "ValorIssRetido", 1, 15, PositiveOnly, v.IssWithheldAmount)
	t.Add(valores, KindDe2, "OutrasRetencoes", 1, 15, PositiveOnly, v.OtherWithholdings)
	t.Add(valores, KindDe2, "BaseCalculo", 1, 15, PositiveOnly, v.CalculationBase)

	aliquota := v.Rate
	if rate == RateFraction {
		aliquota = dec.PercentToFraction(v.Rate)
	}
	t.Add(valores, KindDe4, "Aliquota", 1, 15, PositiveOnly, aliquota)
	t.Add(valores, KindDe2, "ValorLiquidoNfse", 1, 15, PositiveOnly, v.NetAmount)
	t.Add(valores, KindDe2, "DescontoIncondicionado", 1, 15, PositiveOnly, v.UnconditionalDiscount)
	t.Add(valores, KindDe2, "DescontoCondicionado", 1, 15, PositiveOnly, v.ConditionalDiscount)

	t.Add(servico, KindStr, "ItemListaServico", 1, 5, Required, svc.ServiceListItem)
	t.Add(servico, KindStrNumber, "CodigoCnae", 1, 7, Optional, svc.CnaeCode)
	t.Add(servico, KindStr, "CodigoTributacaoMunicipio", 1, 20, Optional, svc.MunicipalTaxCode)
	t.Add(servico, KindStr, "Discriminacao", 1, 2000, Required, svc.Description)
	t.Add(servico, KindStrNumber, "CodigoMunicipio", 1, 7, Required, svc.MunicipalityCode)

	if e.variant.WriteServiceItems != nil {
		e.variant.WriteServiceItems(t, servico, svc.Items)
	}
}

func writeRpsIdentification(t *Tagger, parent *etree.Element, name, number, series string, typ model.RpsType) {
	ide := parent.CreateElement(name)
	t.Add(ide, KindInt, "Numero", 1, 15, Required, number)
	t.Add(ide, KindStr, "Serie", 1, 5, Required, series)
	t.Add(ide, KindInt, "Tipo", 1, 1, Required, typ.Code())
}

func writeCustomer(t *Tagger, parent *etree.Element, name string, p model.Party) {
	tomador := parent.CreateElement(name)
	ide := tomador.CreateElement("IdentificacaoTomador")
	if model.OnlyDigits(p.TaxID) != "" {
		t.AddCpfCnpj(ide.CreateElement("CpfCnpj"), p.TaxID)
	}
	t.Add(ide, KindStr, "InscricaoMunicipal", 1, 15, Optional, p.MunicipalRegistration)
	t.Add(tomador, KindStr, "RazaoSocial", 1, 115, Optional, p.Name)
	writeAddress(t, tomador, p.Address)
	writeContact(t, tomador, p.Contact)
}

// writeIntermediary emits IntermediarioServico only when a name is set
func writeIntermediary(t *Tagger, parent *etree.Element, p model.Party) {
	if p.Name == "" {
		return
	}
	el := parent.CreateElement("IntermediarioServico")
	t.Add(el, KindStr, "RazaoSocial", 1, 115, Required, p.Name)
	t.AddCpfCnpj(el.CreateElement("CpfCnpj"), p.TaxID)
	t.Add(el, KindStr, "InscricaoMunicipal", 1, 15, Optional, p.MunicipalRegistration)
}

func writeConstruction(t *Tagger, parent *etree.Element, c model.Construction) {
	if c.WorkCode == "" {
		return
	}
	el := parent.CreateElement("ConstrucaoCivil")
	t.Add(el, KindStr, "CodigoObra", 1, 15, Optional, c.WorkCode)
	t.Add(el, KindStr, "Art", 1, 15, Required, c.Art)
}

func writeAddress(t *Tagger, parent *etree.Element, a model.Address) {
	if a.IsEmpty() {
		return
	}
	el := parent.CreateElement("Endereco")
	t.Add(el, KindStr, "Endereco", 1, 125, Optional, a.Street)
	t.Add(el, KindStr, "Numero", 1, 10, Optional, a.Number)
	t.Add(el, KindStr, "Complemento", 1, 60, Optional, a.Complement)
	t.Add(el, KindStr, "Bairro", 1, 60, Optional, a.District)
	t.Add(el, KindInt, "CodigoMunicipio", 7, 7, PositiveOnly, a.MunicipalityCode)
	t.Add(el, KindStr, "Uf", 2, 2, Optional, a.State)
	t.Add(el, KindStrNumber, "Cep", 8, 8, Optional, a.PostalCode)
}

func writeContact(t *Tagger, parent *etree.Element, c model.Contact) {
	if c.IsEmpty() {
		return
	}
	el := parent.CreateElement("Contato")
	t.Add(el, KindStrNumber, "Telefone", 1, 11, Optional, c.AreaCode+c.Phone)
	t.Add(el, KindStr, "Email", 1, 80, Optional, c.Email)
}

// regimeCodes returns (RegimeEspecialTributacao, OptanteSimplesNacional)
func regimeCodes(r model.SpecialRegime) (string, string) {
	if r == model.RegimeSimplesNacional {
		return "6", "1"
	}
	return strconv.Itoa(int(r)), "2"
}

func incentiveCode(y model.YesNo) int {
	if y == model.Yes {
		return 1
	}
	return 2
}
