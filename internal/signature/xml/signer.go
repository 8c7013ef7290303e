package xml

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/rezonia/nfse-abrasf/internal/signature"
)

// Signer produces ABRASF enveloped signatures: RSA-SHA1 over C14N 1.0,
// unprefixed, referencing the signed element's Id and placed right after it.
type Signer struct {
	ctx  *dsig.SigningContext
	cert *x509.Certificate
}

// NewSigner builds a signer from an RSA key pair
func NewSigner(pair tls.Certificate) (*Signer, error) {
	if len(pair.Certificate) == 0 {
		return nil, signature.ErrKeyInvalid(fmt.Errorf("no certificate in key pair"))
	}

	ks := dsig.TLSCertKeyStore(pair)
	if _, _, err := ks.GetKeyPair(); err != nil {
		return nil, signature.ErrKeyInvalid(err)
	}

	cert := pair.Leaf
	if cert == nil {
		parsed, err := x509.ParseCertificate(pair.Certificate[0])
		if err != nil {
			return nil, signature.ErrKeyInvalid(err)
		}
		cert = parsed
	}

	ctx := dsig.NewDefaultSigningContext(ks)
	ctx.Prefix = ""
	ctx.IdAttribute = IDAttribute
	ctx.Canonicalizer = dsig.MakeC14N10RecCanonicalizer()
	if err := ctx.SetSignatureMethod(dsig.RSASHA1SignatureMethod); err != nil {
		return nil, signature.ErrKeyInvalid(err)
	}

	return &Signer{ctx: ctx, cert: cert}, nil
}

// LoadSigner reads a PEM certificate and key from disk
func LoadSigner(certFile, keyFile string) (*Signer, error) {
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, signature.ErrKeyInvalid(err)
	}
	return NewSigner(pair)
}

// Certificate returns the signing certificate
func (s *Signer) Certificate() *x509.Certificate {
	return s.cert
}

// Sign signs the first element child of every container in document.
// A Signature already next to the element is replaced.
func (s *Signer) Sign(document, container, element string) (string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(document); err != nil {
		return "", fmt.Errorf("failed to parse XML: %w", err)
	}
	if doc.Root() == nil {
		return "", signature.ErrTargetNotFound(container, element)
	}

	containers := findAll(doc.Root(), container)
	if len(containers) == 0 {
		return "", signature.ErrTargetNotFound(container, element)
	}

	for _, c := range containers {
		target := c.SelectElement(element)
		if target == nil {
			return "", signature.ErrTargetNotFound(container, element)
		}
		if target.SelectAttrValue(IDAttribute, "") == "" {
			return "", signature.ErrMissingID(element)
		}

		sig, err := s.ctx.ConstructSignature(detach(target), true)
		if err != nil {
			return "", signature.ErrSigningFailed(element, err)
		}

		for _, old := range c.SelectElements("Signature") {
			c.RemoveChild(old)
		}
		c.InsertChildAt(target.Index()+1, sig)
	}

	return doc.WriteToString()
}
