package server

import (
	"github.com/rezonia/nfse-abrasf/internal/abrasf"
	"github.com/rezonia/nfse-abrasf/internal/model"
)

// LoadResponse is the response for the load endpoint
type LoadResponse struct {
	Provider string         `json:"provider"`
	Invoice  *model.Invoice `json:"invoice"`
	Issues   []string       `json:"issues,omitempty"`
}

// ValidationResponse is the response for validate endpoint
type ValidationResponse struct {
	Valid    bool     `json:"valid"`
	Provider string   `json:"provider,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// ProviderInfo describes one registered variant
type ProviderInfo struct {
	Name       string   `json:"name"`
	Namespace  string   `json:"namespace,omitempty"`
	Schema     string   `json:"schema"`
	Operations []string `json:"operations"`
}

// EnvelopeRequest carries the inputs of every protocol operation; each
// operation reads only the fields it needs.
type EnvelopeRequest struct {
	Issuer   *abrasf.Issuer        `json:"issuer,omitempty"`
	Lot      int                   `json:"lot,omitempty"`
	Invoices []*model.Invoice      `json:"invoices,omitempty"`
	Protocol string                `json:"protocol,omitempty"`
	Rps      *abrasf.RpsQuery      `json:"rps,omitempty"`
	Range    *abrasf.RangeQuery    `json:"range,omitempty"`
	Cancel   *abrasf.CancelRequest `json:"cancel,omitempty"`
}

func (r *EnvelopeRequest) batch() *model.Batch {
	b := model.NewBatch()
	for _, inv := range r.Invoices {
		b.Add(inv)
	}
	return b
}

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
