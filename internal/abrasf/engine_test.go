package abrasf_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/nfse-abrasf/internal/abrasf"
	"github.com/rezonia/nfse-abrasf/internal/model"
)

func assertMandatoryFields(t *testing.T, want, got *model.Invoice) {
	t.Helper()
	assert.Equal(t, want.Rps.Number, got.Rps.Number)
	assert.Equal(t, want.Rps.Series, got.Rps.Series)
	assert.Equal(t, want.Rps.Type, got.Rps.Type)
	assert.True(t, want.Rps.IssueDate.Equal(got.Rps.IssueDate), "rps issue date")
	assert.Equal(t, want.OperationNature, got.OperationNature)
	assert.Equal(t, want.SpecialRegime, got.SpecialRegime)
	assert.Equal(t, want.CulturalIncentive, got.CulturalIncentive)
	assert.Equal(t, want.Status, got.Status)

	assert.True(t, want.Service.Values.ServiceAmount.Equal(got.Service.Values.ServiceAmount), "service amount")
	assert.True(t, want.Service.Values.Rate.Equal(got.Service.Values.Rate), "rate %s != %s", want.Service.Values.Rate, got.Service.Values.Rate)
	assert.True(t, want.Service.Values.Iss.Equal(got.Service.Values.Iss), "iss")
	assert.Equal(t, want.Service.Values.IssWithheld, got.Service.Values.IssWithheld)
	assert.Equal(t, want.Service.ServiceListItem, got.Service.ServiceListItem)
	assert.Equal(t, want.Service.Description, got.Service.Description)
	assert.Equal(t, want.Service.MunicipalityCode, got.Service.MunicipalityCode)

	assert.Equal(t, want.ServiceProvider.TaxID, got.ServiceProvider.TaxID)
	assert.Equal(t, want.ServiceProvider.MunicipalRegistration, got.ServiceProvider.MunicipalRegistration)
	assert.Equal(t, want.Customer.TaxID, got.Customer.TaxID)
	assert.Equal(t, want.Customer.Name, got.Customer.Name)
	assert.Equal(t, want.Customer.Address, got.Customer.Address)
	assert.Equal(t, want.Customer.Contact, got.Customer.Contact)
}

func TestEngine_RpsRoundTrip(t *testing.T) {
	engine := abrasf.NewEngine(abrasf.NewBaselineVariant())
	inv := sampleInvoice("42")

	out, err := engine.WriteRPS(inv)
	require.NoError(t, err)
	assert.Contains(t, out, `<InfRps Id="R42">`)
	assert.Contains(t, out, "<Aliquota>0.0500</Aliquota>")
	assert.Contains(t, out, "<ValorServicos>1000.00</ValorServicos>")
	assert.Contains(t, out, "<Cnpj>12345678000199</Cnpj>")
	assert.Contains(t, out, "<Cpf>12345678901</Cpf>")
	assert.NotContains(t, out, "ValorDeducoes")

	loaded, err := engine.Load([]byte(out))
	require.NoError(t, err)
	assertMandatoryFields(t, inv, loaded)
	assert.Equal(t, model.ProviderABRASF, loaded.Provider)
	assert.Equal(t, out, loaded.RawXML)

	// optional absent fields come back as zero values
	assert.Empty(t, loaded.NFSe.Number)
	assert.True(t, loaded.Service.Values.Deductions.IsZero())
	assert.Empty(t, loaded.Intermediary)
	assert.Empty(t, loaded.Construction)
	assert.Nil(t, loaded.Signature)
}

func TestEngine_DateTimeLocation(t *testing.T) {
	brt := time.FixedZone("BRT", -3*60*60)
	issued := time.Date(2024, 3, 15, 10, 30, 0, 0, brt)

	tests := []struct {
		name string
		loc  *time.Location
		wire string
	}{
		{name: "same zone", loc: brt, wire: "<DataEmissao>2024-03-15T10:30:00</DataEmissao>"},
		{name: "utc engine", loc: time.UTC, wire: "<DataEmissao>2024-03-15T13:30:00</DataEmissao>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := abrasf.NewEngine(nil, abrasf.WithLocation(tt.loc))
			assert.Equal(t, tt.loc, engine.Location())

			inv := sampleInvoice("7")
			inv.Rps.IssueDate = issued
			inv.NFSe = model.NFSeIdentification{Number: "70", VerificationCode: "K7", IssueDate: issued}
			inv.Competence = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
			inv.Status = model.StatusCancelled
			inv.Cancellation = model.Cancellation{NFSeNumber: "70", Code: "1", DateTime: issued.Add(2 * time.Hour)}

			rps, err := engine.WriteRPS(inv)
			require.NoError(t, err)
			assert.Contains(t, rps, tt.wire)

			loaded, err := engine.Load([]byte(rps))
			require.NoError(t, err)
			assert.True(t, issued.Equal(loaded.Rps.IssueDate), "rps issue date %s", loaded.Rps.IssueDate)

			nfse, err := engine.WriteNFSe(inv)
			require.NoError(t, err)
			loaded, err = engine.Load([]byte(nfse))
			require.NoError(t, err)
			assert.True(t, issued.Equal(loaded.NFSe.IssueDate), "nfse issue date")
			assert.True(t, inv.Cancellation.DateTime.Equal(loaded.Cancellation.DateTime), "cancellation time")
			assert.True(t, inv.Competence.Equal(loaded.Competence), "competence")
		})
	}
}

func TestEngine_NFSeRoundTrip(t *testing.T) {
	engine := abrasf.NewEngine(nil)

	inv := sampleInvoice("7")
	inv.NFSe = model.NFSeIdentification{Number: "1001", VerificationCode: "ABCD1234", IssueDate: issuedAt.Add(time.Hour)}
	inv.Competence = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	inv.ServiceProvider.Name = "Empresa Exemplo Ltda"
	inv.ServiceProvider.TradeName = "Exemplo"
	inv.ServiceProvider.Address = model.Address{Street: "Av. Paulista", Number: "1000", MunicipalityCode: 3550308, State: "SP"}
	inv.Intermediary = model.Party{TaxID: "98765432000110", Name: "Intermediadora SA", MunicipalRegistration: "999"}
	inv.Construction = model.Construction{WorkCode: "OBRA1", Art: "ART9"}
	inv.IssuingAuthority = model.IssuingAuthority{MunicipalityCode: 3550308, State: "SP"}
	inv.Signature = &model.Signature{ReferenceURI: "#1001", DigestValue: "ZGlnZXN0", SignatureValue: "c2ln", X509Certificate: "Y2VydA=="}

	out, err := engine.WriteNFSe(inv)
	require.NoError(t, err)
	assert.Contains(t, out, `<InfNfse Id="1001">`)
	assert.Contains(t, out, "<Competencia>2024-03-01</Competencia>")
	assert.Contains(t, out, "<OrgaoGerador>")
	assert.NotContains(t, out, "NfseCancelamento")
	assert.NotContains(t, out, "NfseSubstituicao")

	loaded, err := engine.Load([]byte(out))
	require.NoError(t, err)
	assertMandatoryFields(t, inv, loaded)

	assert.Equal(t, "1001", loaded.NFSe.Number)
	assert.Equal(t, "ABCD1234", loaded.NFSe.VerificationCode)
	assert.True(t, inv.NFSe.IssueDate.Equal(loaded.NFSe.IssueDate))
	assert.True(t, inv.Competence.Equal(loaded.Competence))
	assert.Equal(t, inv.ServiceProvider.Name, loaded.ServiceProvider.Name)
	assert.Equal(t, inv.ServiceProvider.TradeName, loaded.ServiceProvider.TradeName)
	assert.Equal(t, inv.ServiceProvider.Address, loaded.ServiceProvider.Address)
	assert.Equal(t, inv.Intermediary, loaded.Intermediary)
	assert.Equal(t, inv.Construction, loaded.Construction)
	assert.Equal(t, inv.IssuingAuthority, loaded.IssuingAuthority)
	require.NotNil(t, loaded.Signature)
	assert.Equal(t, *inv.Signature, *loaded.Signature)
}

func TestEngine_CancellationAndSubstitution(t *testing.T) {
	engine := abrasf.NewEngine(nil)

	inv := sampleInvoice("7")
	inv.NFSe = model.NFSeIdentification{Number: "1001", VerificationCode: "K", IssueDate: issuedAt}
	inv.ServiceProvider.Address.MunicipalityCode = 3550308
	inv.Status = model.StatusCancelled
	inv.Cancellation = model.Cancellation{
		ID:        "C1001",
		Code:      "2",
		DateTime:  time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC),
		Signature: &model.Signature{SignatureValue: "Y29uZg=="},
	}
	inv.Substitution.ID = "S1"
	inv.Substitution.SubstitutingNFSe = "1002"

	out, err := engine.WriteNFSe(inv)
	require.NoError(t, err)
	assert.Contains(t, out, `<Pedido Id="C1001">`)
	assert.Contains(t, out, "<CodigoMunicipio>3550308</CodigoMunicipio>")

	loaded, err := engine.Load([]byte(out))
	require.NoError(t, err)

	assert.Equal(t, model.StatusCancelled, loaded.Status)
	assert.Equal(t, "C1001", loaded.Cancellation.ID)
	assert.Equal(t, "1001", loaded.Cancellation.NFSeNumber)
	assert.Equal(t, "2", loaded.Cancellation.Code)
	assert.True(t, inv.Cancellation.DateTime.Equal(loaded.Cancellation.DateTime))
	require.NotNil(t, loaded.Cancellation.Signature)
	assert.Equal(t, "Y29uZg==", loaded.Cancellation.Signature.SignatureValue)
	assert.Nil(t, loaded.Cancellation.RequestSignature)
	// only the confirmation carried a signature; empty ones leave no element
	assert.Equal(t, 1, strings.Count(out, "<Signature"))

	assert.Equal(t, "S1", loaded.Substitution.ID)
	assert.Equal(t, "1002", loaded.Substitution.SubstitutingNFSe)
}

func TestEngine_RegimeBijection(t *testing.T) {
	engine := abrasf.NewEngine(nil)

	regimes := []model.SpecialRegime{
		model.RegimeSimplesNacional,
		model.RegimeNone,
		model.RegimeMicroEmpresaMunicipal,
		model.RegimeEstimativa,
		model.RegimeSociedadeProfissionais,
		model.RegimeCooperativa,
		model.RegimeMicroEmpresarioIndividual,
		model.RegimeMicroEmpresarioEmpresaPP,
	}

	for _, r := range regimes {
		inv := sampleInvoice("1")
		inv.SpecialRegime = r
		inv.NFSe.Number = "10"

		rps, err := engine.WriteRPS(inv)
		require.NoError(t, err)
		nfse, err := engine.WriteNFSe(inv)
		require.NoError(t, err)

		for shape, out := range map[string]string{"rps": rps, "nfse": nfse} {
			loaded, err := engine.Load([]byte(out))
			require.NoError(t, err)
			assert.Equal(t, r, loaded.SpecialRegime, "%s regime %d", shape, r)

			if r == model.RegimeSimplesNacional {
				assert.Contains(t, out, "<RegimeEspecialTributacao>6</RegimeEspecialTributacao>")
				assert.Contains(t, out, "<OptanteSimplesNacional>1</OptanteSimplesNacional>")
			} else {
				assert.Contains(t, out, "<OptanteSimplesNacional>2</OptanteSimplesNacional>")
			}
		}
	}
}

func TestEngine_RpsOmitsRegimeNone(t *testing.T) {
	engine := abrasf.NewEngine(nil)
	inv := sampleInvoice("1")
	inv.SpecialRegime = model.RegimeNone

	out, err := engine.WriteRPS(inv)
	require.NoError(t, err)
	assert.NotContains(t, out, "RegimeEspecialTributacao")
}

func TestEngine_OptionalBlocks(t *testing.T) {
	engine := abrasf.NewEngine(nil)

	t.Run("no address or contact", func(t *testing.T) {
		inv := sampleInvoice("1")
		inv.Customer.Address = model.Address{}
		inv.Customer.Contact = model.Contact{}

		out, err := engine.WriteRPS(inv)
		require.NoError(t, err)
		assert.NotContains(t, out, "<Endereco>")
		assert.NotContains(t, out, "<Contato>")
	})

	t.Run("contact joins area code", func(t *testing.T) {
		inv := sampleInvoice("1")
		inv.Customer.Contact = model.Contact{AreaCode: "11", Phone: "5555-1234"}

		out, err := engine.WriteRPS(inv)
		require.NoError(t, err)
		assert.Contains(t, out, "<Telefone>1155551234</Telefone>")
	})

	t.Run("intermediary needs a name", func(t *testing.T) {
		inv := sampleInvoice("1")
		inv.Intermediary = model.Party{TaxID: "98765432000110"}

		out, err := engine.WriteRPS(inv)
		require.NoError(t, err)
		assert.NotContains(t, out, "IntermediarioServico")
	})

	t.Run("construction needs a work code", func(t *testing.T) {
		inv := sampleInvoice("1")
		inv.Construction = model.Construction{Art: "ART"}

		out, err := engine.WriteRPS(inv)
		require.NoError(t, err)
		assert.NotContains(t, out, "ConstrucaoCivil")
	})

	t.Run("substituted rps only when numbered", func(t *testing.T) {
		inv := sampleInvoice("2")
		out, err := engine.WriteRPS(inv)
		require.NoError(t, err)
		assert.NotContains(t, out, "RpsSubstituido")

		inv.Substitution = model.Substitution{RpsNumber: "1", RpsSeries: "A", RpsType: model.RpsTypeCupom}
		out, err = engine.WriteRPS(inv)
		require.NoError(t, err)
		assert.Contains(t, out, "<RpsSubstituido>")

		loaded, err := engine.Load([]byte(out))
		require.NoError(t, err)
		assert.Equal(t, "1", loaded.Substitution.RpsNumber)
		assert.Equal(t, model.RpsTypeCupom, loaded.Substitution.RpsType)
	})
}

func TestEngine_LoadStatusAndIncentive(t *testing.T) {
	engine := abrasf.NewEngine(nil)

	inv := sampleInvoice("1")
	inv.Status = model.StatusCancelled
	inv.CulturalIncentive = model.Yes
	inv.Service.Values.IssWithheld = model.IssWithheld

	out, err := engine.WriteRPS(inv)
	require.NoError(t, err)
	assert.Contains(t, out, "<Status>2</Status>")
	assert.Contains(t, out, "<IssRetido>1</IssRetido>")

	loaded, err := engine.Load([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, loaded.Status)
	assert.Equal(t, model.Yes, loaded.CulturalIncentive)
	assert.Equal(t, model.IssWithheld, loaded.Service.Values.IssWithheld)
}

func TestEngine_LoadPermissive(t *testing.T) {
	engine := abrasf.NewEngine(nil)

	loaded, err := engine.Load([]byte(`<Rps><InfRps Id="R1"><IdentificacaoRps><Numero>1</Numero></IdentificacaoRps></InfRps></Rps>`))
	require.NoError(t, err)

	assert.Equal(t, "1", loaded.Rps.Number)
	assert.Empty(t, loaded.Rps.Series)
	assert.True(t, loaded.Rps.IssueDate.IsZero())
	assert.Equal(t, model.RegimeNone, loaded.SpecialRegime)
	assert.Equal(t, model.YesNoUnset, loaded.CulturalIncentive)
	assert.Equal(t, model.StatusNormal, loaded.Status)
	assert.True(t, loaded.Service.Values.ServiceAmount.IsZero())
	assert.Empty(t, loaded.ServiceProvider.TaxID)
}

func TestEngine_LoadNamespaced(t *testing.T) {
	engine := abrasf.NewEngine(nil)

	doc := `<ns2:CompNfse xmlns:ns2="` + abrasf.Namespace + `"><ns2:Nfse><ns2:InfNfse>` +
		`<ns2:Numero>55</ns2:Numero><ns2:IdentificacaoRps><ns2:Numero>3</ns2:Numero></ns2:IdentificacaoRps>` +
		`<ns2:Servico><ns2:Valores><ns2:Aliquota>0.02</ns2:Aliquota></ns2:Valores></ns2:Servico>` +
		`</ns2:InfNfse></ns2:Nfse></ns2:CompNfse>`

	loaded, err := engine.Load([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "55", loaded.NFSe.Number)
	assert.Equal(t, "3", loaded.Rps.Number)
	assert.True(t, decimal.NewFromInt(2).Equal(loaded.Service.Values.Rate))
}

func TestEngine_LoadErrors(t *testing.T) {
	engine := abrasf.NewEngine(nil)

	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown root", content: `<Invoice><Numero>1</Numero></Invoice>`},
		{name: "rps without InfRps", content: `<Rps><Outro/></Rps>`},
		{name: "malformed", content: `<Rps><InfRps>`},
		{name: "empty", content: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Load([]byte(tt.content))
			require.Error(t, err)

			var pe *model.ParseError
			assert.True(t, errors.As(err, &pe))
		})
	}
}

func TestEngine_SimplISSItems(t *testing.T) {
	engine := abrasf.NewEngine(abrasf.NewSimplISSVariant())

	inv := sampleInvoice("9")
	inv.Service.Items = []model.ServiceItem{
		{Description: "Hora técnica", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.RequireFromString("80.00")},
		{Description: "Deslocamento", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString("200.00")},
	}

	out, err := engine.WriteRPS(inv)
	require.NoError(t, err)
	assert.Contains(t, out, "<Aliquota>5.0000</Aliquota>")
	assert.Equal(t, 2, strings.Count(out, "<ItensServico>"))
	assert.Contains(t, out, "<Quantidade>10.00</Quantidade>")
	assert.Less(t, strings.Index(out, "<CodigoMunicipio>3550308</CodigoMunicipio>"), strings.Index(out, "<ItensServico>"))

	loaded, err := engine.Load([]byte(out))
	require.NoError(t, err)
	assertMandatoryFields(t, inv, loaded)
	require.Len(t, loaded.Service.Items, 2)
	assert.Equal(t, "Hora técnica", loaded.Service.Items[0].Description)
	assert.True(t, decimal.RequireFromString("80").Equal(loaded.Service.Items[0].UnitPrice))

	// issued documents keep the fraction even for SimplISS
	inv.NFSe.Number = "1"
	nfse, err := engine.WriteNFSe(inv)
	require.NoError(t, err)
	assert.Contains(t, nfse, "<Aliquota>0.0500</Aliquota>")
	assert.NotContains(t, nfse, "xmlns=")
}

func TestEngine_RatePrecision(t *testing.T) {
	tests := []struct {
		name    string
		variant *abrasf.Variant
		wire    string
		want    string
	}{
		{name: "fraction keeps two percent digits", variant: abrasf.NewBaselineVariant(), wire: "<Aliquota>0.0212</Aliquota>", want: "2.12"},
		{name: "raw percentage keeps four digits", variant: abrasf.NewSimplISSVariant(), wire: "<Aliquota>2.1234</Aliquota>", want: "2.1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := abrasf.NewEngine(tt.variant)
			inv := sampleInvoice("8")
			inv.Service.Values.Rate = decimal.RequireFromString("2.1234")

			out, err := engine.WriteRPS(inv)
			require.NoError(t, err)
			assert.Contains(t, out, tt.wire)

			loaded, err := engine.Load([]byte(out))
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(loaded.Service.Values.Rate), "got %s", loaded.Service.Values.Rate)
		})
	}
}

func TestEngine_RemoveAccents(t *testing.T) {
	engine := abrasf.NewEngine(nil, abrasf.WithRemoveAccents(true))

	out, err := engine.WriteRPS(sampleInvoice("1"))
	require.NoError(t, err)
	assert.Contains(t, out, "Suporte tecnico em informatica")
}

func TestRegistry_Detect(t *testing.T) {
	registry := abrasf.NewRegistry()

	tests := []struct {
		name     string
		content  string
		expected model.Provider
	}{
		{
			name:     "baseline rps",
			content:  `<Rps><InfRps Id="R1"/></Rps>`,
			expected: model.ProviderABRASF,
		},
		{
			name:     "baseline nfse",
			content:  `<CompNfse><Nfse/></CompNfse>`,
			expected: model.ProviderABRASF,
		},
		{
			name:     "simpliss items",
			content:  `<Rps><InfRps><Servico><ItensServico/></Servico></InfRps></Rps>`,
			expected: model.ProviderSimplISS,
		},
		{
			name:     "simpliss response",
			content:  `<ConsultarLoteRpsResult><ListaNfse/></ConsultarLoteRpsResult>`,
			expected: model.ProviderSimplISS,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := registry.Detect([]byte(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v.Name)
		})
	}

	_, err := registry.Detect([]byte(`<Invoice/>`))
	assert.Error(t, err)
}

func TestRegistry_GetAndRegister(t *testing.T) {
	registry := abrasf.NewRegistry()
	assert.Equal(t, []model.Provider{model.ProviderSimplISS, model.ProviderABRASF}, registry.Names())
	assert.NotNil(t, registry.Get(model.ProviderSimplISS))
	assert.Nil(t, registry.Get("Betha"))

	custom := abrasf.NewBaselineVariant()
	custom.Name = "Betha"
	custom.Matches = func(content []byte) bool { return strings.Contains(string(content), "betha") }
	registry.Register(custom)

	v, err := registry.Detect([]byte(`<Rps xmlns="betha"><InfRps/></Rps>`))
	require.NoError(t, err)
	assert.Equal(t, model.Provider("Betha"), v.Name)
}

func TestVariant_Supports(t *testing.T) {
	base := abrasf.NewBaselineVariant()
	simpliss := abrasf.NewSimplISSVariant()

	for _, op := range abrasf.Operations {
		switch op {
		case abrasf.OpCancelBatch, abrasf.OpSubstitute:
			assert.False(t, base.Supports(op), op)
			assert.False(t, simpliss.Supports(op), op)
		case abrasf.OpSubmitSync:
			assert.True(t, base.Supports(op))
			assert.False(t, simpliss.Supports(op))
		default:
			assert.True(t, base.Supports(op), op)
			assert.True(t, simpliss.Supports(op), op)
		}
	}

	assert.Equal(t, "ConsultarLoteRpsResposta", base.ResponseRoot(abrasf.OpBatchQuery))
	assert.Equal(t, "ConsultarLoteRpsResult", simpliss.ResponseRoot(abrasf.OpBatchQuery))
	assert.Equal(t, "CancelarNfseResposta", simpliss.ResponseRoot(abrasf.OpCancel))
}

func TestParseOperation(t *testing.T) {
	tests := []struct {
		in   string
		want abrasf.Operation
	}{
		{"submit", abrasf.OpSubmit},
		{"Submit-Sync", abrasf.OpSubmitSync},
		{"batch-query", abrasf.OpBatchQuery},
		{"ConsultarNfsePorRps", abrasf.OpRpsQuery},
		{"CancelarNfse", abrasf.OpCancel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			op, err := abrasf.ParseOperation(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, op)
		})
	}

	_, err := abrasf.ParseOperation("consultarnfse")
	assert.Error(t, err)
}
