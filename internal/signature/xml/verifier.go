package xml

import (
	"context"
	"crypto/x509"
	"fmt"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/rezonia/nfse-abrasf/internal/signature"
	"github.com/rezonia/nfse-abrasf/internal/signature/trust"
)

// XMLVerifier verifies every XMLDSig signature of an ABRASF document
type XMLVerifier struct {
	trustStore *trust.TrustStore
	extractor  *SignatureExtractor
	logger     zerolog.Logger
}

// NewXMLVerifier creates a new XML signature verifier
func NewXMLVerifier(ts *trust.TrustStore) *XMLVerifier {
	if ts == nil {
		ts = trust.NewTrustStore()
	}
	return &XMLVerifier{
		trustStore: ts,
		extractor:  NewSignatureExtractor(),
		logger:     log.Logger.With().Str("component", "xmldsig").Logger(),
	}
}

var _ signature.Verifier = (*XMLVerifier)(nil)

// Verify checks each Signature found in data. Failures of one signature
// are recorded in its result and do not stop the others.
func (v *XMLVerifier) Verify(ctx context.Context, data []byte) (*signature.Report, error) {
	extraction, err := v.extractor.Extract(data)
	if err != nil {
		if extraction == nil {
			return nil, signature.NewSignatureError(signature.ErrCodeNoSignature, "", "document is not XML", err)
		}
		return &signature.Report{Root: extraction.Root}, signature.ErrNoSignature()
	}

	report := &signature.Report{Root: extraction.Root}
	for _, loc := range extraction.Signatures {
		res := v.verifyOne(ctx, loc)
		v.logger.Debug().
			Str("location", res.Location).
			Str("reference", res.ReferenceURI).
			Bool("valid", res.Valid).
			Msg("signature checked")
		report.Add(res)
	}

	return report, nil
}

func (v *XMLVerifier) verifyOne(ctx context.Context, loc Located) *signature.VerificationResult {
	res := signature.NewVerificationResult(loc.Location)
	res.ReferenceURI = loc.ReferenceURI
	res.SignatureFound = true

	cert, intermediates, err := ExtractCertificates(loc.Signature)
	if err != nil {
		res.AddError(err.Error())
		return res
	}
	res.SetSigner(cert)

	if loc.Target == nil {
		res.AddError(fmt.Sprintf("referenced element %q not found", loc.ReferenceURI))
	} else if err := validate(loc, cert); err != nil {
		res.AddError(signature.ErrInvalidSignature(err).Error())
	} else {
		res.SignatureValid = true
	}

	chain, err := v.trustStore.VerifyChain(cert, intermediates)
	if err != nil {
		res.AddError(signature.ErrChainInvalid(err).Error())
		res.ComputeValidity()
		return res
	}
	res.CertChain = chain
	res.CertChainValid = true

	if len(chain) < 2 {
		res.NotRevoked = true
		res.AddWarning("revocation check skipped: no issuer certificate in chain")
		res.ComputeValidity()
		return res
	}

	notRevoked, err := v.trustStore.CheckRevocation(ctx, cert, chain[1])
	switch {
	case err != nil && v.trustStore.IsSoftFail():
		res.AddWarning(fmt.Sprintf("OCSP check: %v (soft-fail enabled)", err))
		res.NotRevoked = true
	case err != nil:
		res.AddError(signature.ErrOCSPUnavailable(err).Error())
	case !notRevoked:
		res.AddError(signature.ErrCertRevoked(cert.Subject.CommonName).Error())
	default:
		res.NotRevoked = true
	}

	res.ComputeValidity()
	return res
}

// validate checks digest and signature value. goxmldsig expects the
// Signature inside the signed element, so a detached copy of the target
// is built with the Signature appended as its last child.
func validate(loc Located, cert *x509.Certificate) error {
	signed := detach(loc.Target)
	for _, old := range signed.SelectElements("Signature") {
		signed.RemoveChild(old)
	}
	signed.AddChild(loc.Signature.Copy())

	vctx := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{cert},
	})
	vctx.IdAttribute = IDAttribute

	_, err := vctx.Validate(signed)
	return err
}

// VerifyElement is a convenience for callers holding a parsed tree
func (v *XMLVerifier) VerifyElement(ctx context.Context, root *etree.Element) (*signature.Report, error) {
	doc := etree.NewDocument()
	doc.SetRoot(root.Copy())
	data, err := doc.WriteToBytes()
	if err != nil {
		return nil, err
	}
	return v.Verify(ctx, data)
}
