package model

import (
	"github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"

	dec "github.com/rezonia/nfse-abrasf/internal/decimal"
)

// Validate checks the fields an RPS needs before it can be written and sent.
// It does not judge whether the computed tax values are correct.
func (inv *Invoice) Validate() error {
	var result *multierror.Error

	if inv.Rps.Number == "" {
		result = multierror.Append(result, NewValidationError("rps.number", nil, "required", "missing RPS number"))
	}
	if inv.Rps.Series == "" {
		result = multierror.Append(result, NewValidationError("rps.series", nil, "required", "missing RPS series"))
	}
	if inv.Rps.IssueDate.IsZero() {
		result = multierror.Append(result, NewValidationError("rps.issue_date", nil, "required", "missing RPS issue date"))
	}

	taxID := OnlyDigits(inv.ServiceProvider.TaxID)
	if taxID == "" {
		result = multierror.Append(result, NewValidationError("service_provider.tax_id", nil, "required", "missing service provider CPF/CNPJ"))
	} else if !IsCPF(taxID) && !IsCNPJ(taxID) {
		result = multierror.Append(result, NewValidationError("service_provider.tax_id", inv.ServiceProvider.TaxID, "cpf_cnpj", "tax id must have 11 or 14 digits"))
	}
	if ct := OnlyDigits(inv.Customer.TaxID); ct != "" && !IsCPF(ct) && !IsCNPJ(ct) {
		result = multierror.Append(result, NewValidationError("customer.tax_id", inv.Customer.TaxID, "cpf_cnpj", "tax id must have 11 or 14 digits"))
	}

	if inv.Service.ServiceListItem == "" {
		result = multierror.Append(result, NewValidationError("service.service_list_item", nil, "required", "missing service list item"))
	}
	if inv.Service.Description == "" {
		result = multierror.Append(result, NewValidationError("service.description", nil, "required", "missing service description"))
	}
	if inv.Service.MunicipalityCode <= 0 {
		result = multierror.Append(result, NewValidationError("service.municipality_code", inv.Service.MunicipalityCode, "positive", "missing service municipality code"))
	}

	if inv.SpecialRegime < RegimeNone || inv.SpecialRegime > RegimeSimplesNacional {
		result = multierror.Append(result, NewValidationError("special_regime", inv.SpecialRegime, "enum", "unknown special tax regime"))
	}

	for _, m := range inv.Service.Values.monetary() {
		if !dec.IsNonNegative(m.value) {
			result = multierror.Append(result, NewValidationError(m.field, m.value.String(), "non_negative", "monetary value must not be negative"))
		}
	}

	return result.ErrorOrNil()
}

type monetaryField struct {
	field string
	value decimal.Decimal
}

// monetary lists the amounts in wire order
func (v Values) monetary() []monetaryField {
	return []monetaryField{
		{"values.service_amount", v.ServiceAmount},
		{"values.deductions", v.Deductions},
		{"values.pis", v.Pis},
		{"values.cofins", v.Cofins},
		{"values.inss", v.Inss},
		{"values.ir", v.Ir},
		{"values.csll", v.Csll},
		{"values.iss_withheld_amount", v.IssWithheldAmount},
		{"values.iss", v.Iss},
		{"values.other_withholdings", v.OtherWithholdings},
		{"values.calculation_base", v.CalculationBase},
		{"values.rate", v.Rate},
		{"values.net_amount", v.NetAmount},
		{"values.unconditional_discount", v.UnconditionalDiscount},
		{"values.conditional_discount", v.ConditionalDiscount},
	}
}
