package signature

import "context"

// Verifier checks every enveloped signature of an ABRASF document
type Verifier interface {
	// Verify returns a per-signature report. A document without any
	// Signature element yields ErrNoSignature.
	Verify(ctx context.Context, data []byte) (*Report, error)
}
