package signature

import (
	"crypto/x509"
	"time"
)

// VerificationResult is the outcome for one Signature element
type VerificationResult struct {
	// Overall validity, true only if all checks pass
	Valid bool `json:"valid"`

	// Where the signature sits (e.g. "CompNfse/Nfse") and what it references
	Location     string `json:"location"`
	ReferenceURI string `json:"reference_uri,omitempty"`

	SignatureFound bool `json:"signature_found"`
	SignatureValid bool `json:"signature_valid"`
	CertChainValid bool `json:"cert_chain_valid"`
	NotRevoked     bool `json:"not_revoked"`

	Signer *SignerInfo `json:"signer,omitempty"`

	// Certificate chain (not serialized to JSON)
	CertChain []*x509.Certificate `json:"-"`

	Warnings []string `json:"warnings,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// SignerInfo contains certificate subject information
type SignerInfo struct {
	// Common name (CN)
	Name string `json:"name"`

	// Organization (O)
	Organization string `json:"organization,omitempty"`

	SerialNumber string `json:"serial_number"`
	Issuer       string `json:"issuer"`

	ValidFrom time.Time `json:"valid_from"`
	ValidTo   time.Time `json:"valid_to"`
}

// NewVerificationResult creates a new empty result
func NewVerificationResult(location string) *VerificationResult {
	return &VerificationResult{
		Location: location,
		Warnings: make([]string, 0),
		Errors:   make([]string, 0),
	}
}

// AddWarning adds a warning message to the result
func (r *VerificationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// AddError adds an error message and sets Valid to false
func (r *VerificationResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Valid = false
}

// SetSigner populates SignerInfo from an x509 certificate
func (r *VerificationResult) SetSigner(cert *x509.Certificate) {
	if cert == nil {
		return
	}

	signer := &SignerInfo{
		Name:         cert.Subject.CommonName,
		SerialNumber: cert.SerialNumber.String(),
		ValidFrom:    cert.NotBefore,
		ValidTo:      cert.NotAfter,
	}
	if len(cert.Subject.Organization) > 0 {
		signer.Organization = cert.Subject.Organization[0]
	}

	if cert.Issuer.CommonName != "" {
		signer.Issuer = cert.Issuer.CommonName
	} else if len(cert.Issuer.Organization) > 0 {
		signer.Issuer = cert.Issuer.Organization[0]
	}

	r.Signer = signer
}

// ComputeValidity sets the Valid field based on individual check results
func (r *VerificationResult) ComputeValidity() {
	r.Valid = r.SignatureFound &&
		r.SignatureValid &&
		r.CertChainValid &&
		r.NotRevoked &&
		len(r.Errors) == 0
}

// Report aggregates the results of every signature in one document.
// An NFSe can carry up to three: the issued note, the cancellation
// confirmation and the substitution block.
type Report struct {
	Valid      bool                  `json:"valid"`
	Root       string                `json:"root"`
	Signatures []*VerificationResult `json:"signatures"`
}

// Add appends a result and recomputes the document validity
func (r *Report) Add(res *VerificationResult) {
	r.Signatures = append(r.Signatures, res)
	r.Valid = true
	for _, s := range r.Signatures {
		if !s.Valid {
			r.Valid = false
			return
		}
	}
}

// Errors flattens the errors of every signature, prefixed by location
func (r *Report) Errors() []string {
	var out []string
	for _, s := range r.Signatures {
		for _, e := range s.Errors {
			out = append(out, s.Location+": "+e)
		}
	}
	return out
}
