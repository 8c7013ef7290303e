package abrasf

import (
	"time"

	"github.com/rezonia/nfse-abrasf/internal/model"
)

// Result is the outcome shared by every operation.
//
// Authority business errors, failed preconditions and structurally
// incomplete responses land in Errors; they are never returned as Go
// errors.
type Result struct {
	Operation   Operation     `json:"operation"`
	Success     bool          `json:"success"`
	Errors      []model.Event `json:"errors,omitempty"`
	Alerts      []string      `json:"alerts,omitempty"`
	RequestXML  string        `json:"request_xml,omitempty"`
	ResponseXML string        `json:"response_xml,omitempty"`
}

func (r *Result) addError(code, message string) {
	r.Errors = append(r.Errors, model.Event{Code: code, Message: message})
}

// HasErrors reports whether any error event was recorded
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// Base returns the shared part of a typed result
func (r *Result) Base() *Result {
	return r
}

// SubmitResult is returned by Submit and SubmitSync
type SubmitResult struct {
	Result
	Lot        int              `json:"lot"`
	Sync       bool             `json:"sync"`
	ReceivedAt time.Time        `json:"received_at"`
	Protocol   string           `json:"protocol"`
	Invoices   []*model.Invoice `json:"invoices,omitempty"`
}

// StatusResult is returned by Status
type StatusResult struct {
	Result
	Protocol  string `json:"protocol"`
	Lot       int    `json:"lot"`
	Situation string `json:"situation"`
}

// BatchQueryResult is returned by BatchQuery
type BatchQueryResult struct {
	Result
	Protocol string           `json:"protocol"`
	Invoices []*model.Invoice `json:"invoices,omitempty"`
}

// RpsQueryResult is returned by RpsQuery
type RpsQueryResult struct {
	Result
	Query   RpsQuery       `json:"query"`
	Invoice *model.Invoice `json:"invoice,omitempty"`
}

// RangeQueryResult is returned by RangeQuery
type RangeQueryResult struct {
	Result
	Query    RangeQuery       `json:"query"`
	Invoices []*model.Invoice `json:"invoices,omitempty"`
}

// CancelResult is returned by Cancel
type CancelResult struct {
	Result
	NFSeNumber  string    `json:"nfse_number"`
	Code        string    `json:"code"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// RpsQuery selects one RPS by its identity
type RpsQuery struct {
	Number int           `json:"number"`
	Series string        `json:"series"`
	Type   model.RpsType `json:"type"`
}

// RangeQuery filters issued NFSe. Zero fields are not sent.
type RangeQuery struct {
	NFSeNumber int       `json:"nfse_number,omitempty"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`

	CustomerTaxID                 string `json:"customer_tax_id,omitempty"`
	CustomerMunicipalRegistration string `json:"customer_municipal_registration,omitempty"`

	IntermediaryName                  string `json:"intermediary_name,omitempty"`
	IntermediaryTaxID                 string `json:"intermediary_tax_id,omitempty"`
	IntermediaryMunicipalRegistration string `json:"intermediary_municipal_registration,omitempty"`
}

// CancelRequest identifies the NFSe to cancel and the reason code
type CancelRequest struct {
	NFSeNumber string `json:"nfse_number"`
	Code       string `json:"code"`
}
