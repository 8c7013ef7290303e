package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/nfse-abrasf/internal/model"
)

func validInvoice() *model.Invoice {
	return &model.Invoice{
		Rps: model.RpsIdentification{
			Number:    "101",
			Series:    "A1",
			Type:      model.RpsTypeRPS,
			IssueDate: time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
		},
		OperationNature: 1,
		ServiceProvider: model.Party{TaxID: "12.345.678/0001-95", MunicipalRegistration: "998877"},
		Service: model.ServiceInfo{
			ServiceListItem:  "1.07",
			Description:      "Suporte técnico",
			MunicipalityCode: 3550308,
			Values: model.Values{
				ServiceAmount: decimal.RequireFromString("1500.00"),
				Rate:          decimal.RequireFromString("5"),
			},
		},
	}
}

func TestRpsType_Codes(t *testing.T) {
	tests := []struct {
		typ  model.RpsType
		code string
	}{
		{model.RpsTypeRPS, "1"},
		{model.RpsTypeConjugada, "2"},
		{model.RpsTypeCupom, "3"},
		{model.RpsType(9), "0"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.typ.Code())
		})
	}

	assert.Equal(t, model.RpsTypeCupom, model.ParseRpsType("3"))
	assert.Equal(t, model.RpsTypeRPS, model.ParseRpsType(""))
	assert.Equal(t, model.RpsTypeRPS, model.ParseRpsType("7"))
}

func TestAddress_IsEmpty(t *testing.T) {
	assert.True(t, model.Address{}.IsEmpty())
	assert.False(t, model.Address{PostalCode: "01001000"}.IsEmpty())
	assert.False(t, model.Address{MunicipalityCode: 3550308}.IsEmpty())
}

func TestContact_IsEmpty(t *testing.T) {
	assert.True(t, model.Contact{}.IsEmpty())
	assert.False(t, model.Contact{AreaCode: "11"}.IsEmpty())
}

func TestSignature_IsEmpty(t *testing.T) {
	var sig *model.Signature
	assert.True(t, sig.IsEmpty())
	assert.True(t, (&model.Signature{ID: "x"}).IsEmpty())
	assert.False(t, (&model.Signature{DigestValue: "abc="}).IsEmpty())
}

func TestInvoice_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		require.NoError(t, validInvoice().Validate())
	})

	t.Run("missing fields accumulate", func(t *testing.T) {
		inv := validInvoice()
		inv.Rps.Number = ""
		inv.ServiceProvider.TaxID = "123"
		inv.Service.Values.Deductions = decimal.NewFromInt(-1)

		err := inv.Validate()
		require.Error(t, err)

		var merr *multierror.Error
		require.True(t, errors.As(err, &merr))
		assert.Len(t, merr.Errors, 3)

		var verr *model.ValidationError
		require.True(t, errors.As(merr.Errors[0], &verr))
	})

	t.Run("negative amounts reported in field order", func(t *testing.T) {
		inv := validInvoice()
		inv.Service.Values.NetAmount = decimal.NewFromInt(-3)
		inv.Service.Values.Deductions = decimal.NewFromInt(-1)
		inv.Service.Values.Iss = decimal.NewFromInt(-2)

		for i := 0; i < 5; i++ {
			var merr *multierror.Error
			require.True(t, errors.As(inv.Validate(), &merr))

			fields := make([]string, 0, len(merr.Errors))
			for _, e := range merr.Errors {
				var verr *model.ValidationError
				require.True(t, errors.As(e, &verr))
				fields = append(fields, verr.Field)
			}
			assert.Equal(t, []string{"values.deductions", "values.iss", "values.net_amount"}, fields)
		}
	})

	t.Run("customer cpf accepted", func(t *testing.T) {
		inv := validInvoice()
		inv.Customer.TaxID = "123.456.789-09"
		require.NoError(t, inv.Validate())
	})
}

func TestBatch_IndexByRpsKeepsFirstMatch(t *testing.T) {
	first := &model.Invoice{Rps: model.RpsIdentification{Number: "10"}}
	dup := &model.Invoice{Rps: model.RpsIdentification{Number: "10"}}
	other := &model.Invoice{Rps: model.RpsIdentification{Number: "11"}}

	b := model.NewBatch(first, dup, other, nil)
	assert.Equal(t, 3, b.Len())

	idx := b.IndexByRps()
	assert.Same(t, first, idx["10"])
	assert.Same(t, other, idx["11"])
}

func TestBatch_FindByNFSe(t *testing.T) {
	inv := &model.Invoice{NFSe: model.NFSeIdentification{Number: " 2026000123 "}}
	b := model.NewBatch(inv)

	assert.Same(t, inv, b.FindByNFSe("2026000123"))
	assert.Nil(t, b.FindByNFSe("1"))
}

func TestBatch_SetLotNumber(t *testing.T) {
	b := model.NewBatch(&model.Invoice{}, &model.Invoice{})
	b.SetLotNumber(42)
	for _, inv := range b.Items() {
		assert.Equal(t, 42, inv.LotNumber)
	}
}

func TestTaxID(t *testing.T) {
	assert.Equal(t, "12345678000195", model.OnlyDigits("12.345.678/0001-95"))
	assert.True(t, model.IsCNPJ("12.345.678/0001-95"))
	assert.True(t, model.IsCPF("123.456.789-09"))
	assert.Equal(t, "00012345678901", model.ZeroFill("12345678901", 14))
	assert.Equal(t, "123", model.ZeroFill("123", 2))
}

func TestUnsupportedError_IsNotImplemented(t *testing.T) {
	err := model.NewUnsupportedError(model.ProviderABRASF, "SubstituirNfse")
	assert.True(t, errors.Is(err, model.ErrNotImplemented))
	assert.Contains(t, err.Error(), "SubstituirNfse")
}

func TestParseError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := model.NewParseError(model.ProviderSimplISS, "root", "bad", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[SimplISS] root: bad (boom)", err.Error())
}
