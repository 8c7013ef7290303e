package signature

import "fmt"

// Error codes for signing and verification
const (
	ErrCodeNoSignature      = "NO_SIGNATURE"
	ErrCodeInvalidSignature = "INVALID_SIGNATURE"
	ErrCodeCertExpired      = "CERT_EXPIRED"
	ErrCodeCertNotYetValid  = "CERT_NOT_YET_VALID"
	ErrCodeCertRevoked      = "CERT_REVOKED"
	ErrCodeChainInvalid     = "CHAIN_INVALID"
	ErrCodeUntrustedRoot    = "UNTRUSTED_ROOT"
	ErrCodeOCSPUnavailable  = "OCSP_UNAVAILABLE"
	ErrCodeKeyInvalid       = "KEY_INVALID"
	ErrCodeTargetNotFound   = "TARGET_NOT_FOUND"
	ErrCodeMissingID        = "MISSING_ID"
	ErrCodeSigningFailed    = "SIGNING_FAILED"
)

// SignatureError represents a signing or verification failure
type SignatureError struct {
	Code    string
	Field   string
	Message string
	Cause   error
}

func (e *SignatureError) Error() string {
	if e.Field != "" && e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Code, e.Field, e.Message, e.Cause)
	}
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *SignatureError) Unwrap() error {
	return e.Cause
}

// NewSignatureError creates a new signature error
func NewSignatureError(code, field, message string, cause error) *SignatureError {
	return &SignatureError{
		Code:    code,
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}

// ErrNoSignature returns error when no signature found in document
func ErrNoSignature() *SignatureError {
	return NewSignatureError(ErrCodeNoSignature, "", "no signature found in document", nil)
}

// ErrInvalidSignature returns error when signature validation fails
func ErrInvalidSignature(cause error) *SignatureError {
	return NewSignatureError(ErrCodeInvalidSignature, "signature", "signature validation failed", cause)
}

// ErrCertExpired returns error when certificate has expired
func ErrCertExpired(subject string) *SignatureError {
	return NewSignatureError(ErrCodeCertExpired, "certificate", fmt.Sprintf("certificate expired: %s", subject), nil)
}

// ErrCertNotYetValid returns error when certificate is not yet valid
func ErrCertNotYetValid(subject string) *SignatureError {
	return NewSignatureError(ErrCodeCertNotYetValid, "certificate", fmt.Sprintf("certificate not yet valid: %s", subject), nil)
}

// ErrCertRevoked returns error when certificate has been revoked
func ErrCertRevoked(subject string) *SignatureError {
	return NewSignatureError(ErrCodeCertRevoked, "certificate", fmt.Sprintf("certificate revoked: %s", subject), nil)
}

// ErrChainInvalid returns error when certificate chain is invalid
func ErrChainInvalid(cause error) *SignatureError {
	return NewSignatureError(ErrCodeChainInvalid, "chain", "certificate chain validation failed", cause)
}

// ErrUntrustedRoot returns error when root CA is not trusted
func ErrUntrustedRoot(issuer string) *SignatureError {
	return NewSignatureError(ErrCodeUntrustedRoot, "chain", fmt.Sprintf("root CA not trusted: %s", issuer), nil)
}

// ErrOCSPUnavailable returns error when OCSP check fails
func ErrOCSPUnavailable(cause error) *SignatureError {
	return NewSignatureError(ErrCodeOCSPUnavailable, "ocsp", "OCSP check unavailable", cause)
}

// ErrKeyInvalid is returned when the signing key pair cannot be used
func ErrKeyInvalid(cause error) *SignatureError {
	return NewSignatureError(ErrCodeKeyInvalid, "key", "signing key pair is not usable", cause)
}

// ErrTargetNotFound is returned when the document has no element to sign
func ErrTargetNotFound(container, element string) *SignatureError {
	return NewSignatureError(ErrCodeTargetNotFound, element, fmt.Sprintf("no %s/%s in document", container, element), nil)
}

// ErrMissingID is returned when the signed element carries no Id attribute
func ErrMissingID(element string) *SignatureError {
	return NewSignatureError(ErrCodeMissingID, element, "element has no Id attribute to reference", nil)
}

// ErrSigningFailed wraps a failure while building the signature
func ErrSigningFailed(element string, cause error) *SignatureError {
	return NewSignatureError(ErrCodeSigningFailed, element, "signature construction failed", cause)
}
