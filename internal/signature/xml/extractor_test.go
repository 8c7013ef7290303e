package xml_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sigxml "github.com/rezonia/nfse-abrasf/internal/signature/xml"
)

func TestSignatureExtractor_CanExtract(t *testing.T) {
	extractor := sigxml.NewSignatureExtractor()

	tests := []struct {
		name string
		data string
		want bool
	}{
		{"unprefixed Signature", `<CompNfse><Nfse><Signature/></Nfse></CompNfse>`, true},
		{"prefixed Signature", `<CompNfse><ds:Signature xmlns:ds="x"/></CompNfse>`, true},
		{"no Signature", `<Rps><InfRps Id="R1"/></Rps>`, false},
		{"not XML", `{"type": "json"}`, false},
		{"empty", ``, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractor.CanExtract([]byte(tt.data)))
		})
	}
}

func TestSignatureExtractor_Extract(t *testing.T) {
	doc := `<CompNfse xmlns="http://www.abrasf.org.br/nfse.xsd">` +
		`<Nfse><InfNfse Id="101"><Numero>101</Numero></InfNfse>` +
		`<Signature xmlns="http://www.w3.org/2000/09/xmldsig#"><SignedInfo><Reference URI="#101"/></SignedInfo></Signature></Nfse>` +
		`<NfseCancelamento><Confirmacao><Pedido><InfPedidoCancelamento Id="C101"/>` +
		`<Signature xmlns="http://www.w3.org/2000/09/xmldsig#"><SignedInfo><Reference URI="#C101"/></SignedInfo></Signature>` +
		`</Pedido><DataHoraCancelamento>2024-03-20T10:00:00</DataHoraCancelamento></Confirmacao></NfseCancelamento>` +
		`</CompNfse>`

	result, err := sigxml.NewSignatureExtractor().Extract([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "CompNfse", result.Root)
	require.Len(t, result.Signatures, 2)

	first := result.Signatures[0]
	assert.Equal(t, "CompNfse/Nfse", first.Location)
	assert.Equal(t, "#101", first.ReferenceURI)
	require.NotNil(t, first.Target)
	assert.Equal(t, "InfNfse", first.Target.Tag)

	second := result.Signatures[1]
	assert.Equal(t, "CompNfse/NfseCancelamento/Confirmacao/Pedido", second.Location)
	require.NotNil(t, second.Target)
	assert.Equal(t, "InfPedidoCancelamento", second.Target.Tag)
}

func TestSignatureExtractor_Extract_Errors(t *testing.T) {
	extractor := sigxml.NewSignatureExtractor()

	t.Run("no signature", func(t *testing.T) {
		result, err := extractor.Extract([]byte(`<Rps><InfRps Id="R1"/></Rps>`))
		assert.Error(t, err)
		require.NotNil(t, result)
		assert.Empty(t, result.Signatures)
	})

	t.Run("invalid XML", func(t *testing.T) {
		result, err := extractor.Extract([]byte(`not xml`))
		assert.Error(t, err)
		assert.Nil(t, result)
	})

	t.Run("dangling reference", func(t *testing.T) {
		result, err := extractor.Extract([]byte(`<Rps><InfRps Id="R1"/>` +
			`<Signature><SignedInfo><Reference URI="#R9"/></SignedInfo></Signature></Rps>`))
		require.NoError(t, err)
		require.Len(t, result.Signatures, 1)
		assert.Nil(t, result.Signatures[0].Target)
	})
}

func TestExtractCertificates(t *testing.T) {
	pair := keyPair(t, "PRESTADORA LTDA")
	signer, err := sigxml.NewSigner(pair)
	require.NoError(t, err)

	signed, err := signer.Sign(lotEnvelope, "Rps", "InfRps")
	require.NoError(t, err)

	result, err := sigxml.NewSignatureExtractor().Extract([]byte(signed))
	require.NoError(t, err)
	require.NotEmpty(t, result.Signatures)

	cert, intermediates, err := sigxml.ExtractCertificates(result.Signatures[0].Signature)
	require.NoError(t, err)
	assert.Equal(t, "PRESTADORA LTDA", cert.Subject.CommonName)
	assert.Empty(t, intermediates)

	noCert, err := sigxml.NewSignatureExtractor().Extract([]byte(`<Rps><InfRps Id="R1"/>` + emptySigFor("R1") + `</Rps>`))
	require.NoError(t, err)
	_, _, err = sigxml.ExtractCertificates(noCert.Signatures[0].Signature)
	assert.Error(t, err)
}

func emptySigFor(id string) string {
	return `<Signature xmlns="http://www.w3.org/2000/09/xmldsig#"><SignedInfo>` +
		`<Reference URI="#` + id + `"/></SignedInfo><SignatureValue/></Signature>`
}
