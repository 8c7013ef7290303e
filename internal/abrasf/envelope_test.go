package abrasf_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/nfse-abrasf/internal/abrasf"
	"github.com/rezonia/nfse-abrasf/internal/model"
)

func TestSigningPlan(t *testing.T) {
	tests := []struct {
		op   abrasf.Operation
		want []abrasf.SignStep
	}{
		{abrasf.OpSubmit, []abrasf.SignStep{{Container: "Rps", Element: "InfRps"}, {Container: "EnviarLoteRpsEnvio", Element: "LoteRps"}}},
		{abrasf.OpSubmitSync, []abrasf.SignStep{{Container: "Rps", Element: "InfRps"}, {Container: "GerarNfseEnvio", Element: "LoteRps"}}},
		{abrasf.OpCancel, []abrasf.SignStep{{Container: "Pedido", Element: "InfPedidoCancelamento"}}},
		{abrasf.OpStatus, nil},
		{abrasf.OpBatchQuery, nil},
		{abrasf.OpRpsQuery, nil},
		{abrasf.OpRangeQuery, nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			assert.Equal(t, tt.want, abrasf.SigningPlan(tt.op))
		})
	}
}

func TestBuilder_SubmitSync(t *testing.T) {
	store := &memStore{}
	b := abrasf.NewBuilder(abrasf.NewEngine(nil), issuer, store)

	req, err := b.SubmitSync(5, sampleBatch("1", "2", "3"))
	require.NoError(t, err)
	require.True(t, req.Valid())

	assert.True(t, strings.HasPrefix(req.XML, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, req.XML, `<LoteRps Id="L5" versao="1.00">`)
	assert.Contains(t, req.XML, "<QuantidadeRps>3</QuantidadeRps>")
	assert.Equal(t, abrasf.SigningPlan(abrasf.OpSubmitSync), req.Signing)
	assert.Len(t, store.names(), 3)
}

func TestBuilder_Alerts(t *testing.T) {
	b := abrasf.NewBuilder(abrasf.NewEngine(nil), issuer, nil)

	inv := sampleInvoice("1")
	inv.Rps.Series = "SERIE-LONGA"
	req, err := b.Submit(1, model.NewBatch(inv))
	require.NoError(t, err)
	require.True(t, req.Valid())
	require.Len(t, req.Alerts, 1)
	assert.Contains(t, req.Alerts[0], "Serie")
	assert.Contains(t, req.XML, "<Serie>SERIE-LONGA</Serie>")
}

func TestBuilder_NoNamespace(t *testing.T) {
	b := abrasf.NewBuilder(abrasf.NewEngine(abrasf.NewSimplISSVariant()), issuer, nil)

	req, err := b.Status("P1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(req.XML, "<ConsultarSituacaoLoteRpsEnvio><Prestador><Cnpj>01234567000199</Cnpj>"))
}

func TestBuilder_RangeQueryIntermediary(t *testing.T) {
	b := abrasf.NewBuilder(abrasf.NewEngine(nil), issuer, nil)

	req, err := b.RangeQuery(abrasf.RangeQuery{
		NFSeNumber:        12,
		IntermediaryName:  "Intermediadora SA",
		IntermediaryTaxID: "98765432000110",
	})
	require.NoError(t, err)
	assert.Contains(t, req.XML, "<NumeroNfse>12</NumeroNfse>")
	assert.Contains(t, req.XML, "<IntermediarioServico><RazaoSocial>Intermediadora SA</RazaoSocial><CpfCnpj><Cnpj>98765432000110</Cnpj></CpfCnpj></IntermediarioServico>")
	assert.NotContains(t, req.XML, "PeriodoEmissao")
	assert.NotContains(t, req.XML, "<Tomador>")
}

func TestBuilder_UnsupportedOperations(t *testing.T) {
	b := abrasf.NewBuilder(abrasf.NewEngine(nil), issuer, nil)

	_, err := b.CancelBatch(sampleBatch("1"))
	assert.True(t, errors.Is(err, model.ErrNotImplemented))

	_, err = b.Substitute(sampleInvoice("1"), "1", "1")
	assert.True(t, errors.Is(err, model.ErrNotImplemented))
}
