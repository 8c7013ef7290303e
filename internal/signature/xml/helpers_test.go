package xml_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// keyPair generates a self-signed RSA certificate usable for signing
func keyPair(t *testing.T, cn string) tls.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"ICP-Brasil"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: cert}
}

const lotEnvelope = `<EnviarLoteRpsEnvio xmlns="http://www.abrasf.org.br/nfse.xsd">` +
	`<LoteRps Id="L1"><NumeroLote>1</NumeroLote><Cnpj>12345678000199</Cnpj>` +
	`<InscricaoMunicipal>123456</InscricaoMunicipal><QuantidadeRps>2</QuantidadeRps><ListaRps>` +
	`<Rps><InfRps Id="R1"><IdentificacaoRps><Numero>1</Numero><Serie>A</Serie><Tipo>1</Tipo></IdentificacaoRps></InfRps></Rps>` +
	`<Rps><InfRps Id="R2"><IdentificacaoRps><Numero>2</Numero><Serie>A</Serie><Tipo>1</Tipo></IdentificacaoRps></InfRps></Rps>` +
	`</ListaRps></LoteRps></EnviarLoteRpsEnvio>`
