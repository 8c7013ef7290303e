// Package nfselib provides a public API for ABRASF municipal service invoices.
//
// This package exposes the invoice model, the mapping engine that converts
// it to and from RPS/CompNfse XML, and a processor for loading documents.
//
// Example usage:
//
//	proc, err := nfselib.NewProcessor(nfselib.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := proc.Process(ctx, reader)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Invoice.Service.Values.ServiceAmount)
package nfselib

import "github.com/rezonia/nfse-abrasf/internal/model"

// Re-export core types for public API
type (
	Invoice            = model.Invoice
	NFSeIdentification = model.NFSeIdentification
	RpsIdentification  = model.RpsIdentification
	ServiceInfo        = model.ServiceInfo
	Values             = model.Values
	ServiceItem        = model.ServiceItem
	Party              = model.Party
	Address            = model.Address
	Contact            = model.Contact
	Construction       = model.Construction
	Cancellation       = model.Cancellation
	Substitution       = model.Substitution
	Signature          = model.Signature
	Batch              = model.Batch
	Event              = model.Event
	Provider           = model.Provider
	RpsType            = model.RpsType
	SpecialRegime      = model.SpecialRegime
	Status             = model.Status
)

// Re-export provider constants
const (
	ProviderABRASF   = model.ProviderABRASF
	ProviderSimplISS = model.ProviderSimplISS
	ProviderUnknown  = model.ProviderUnknown
)

// Re-export RPS types
const (
	RpsTypeRPS       = model.RpsTypeRPS
	RpsTypeConjugada = model.RpsTypeConjugada
	RpsTypeCupom     = model.RpsTypeCupom
)

// Re-export statuses
const (
	StatusNormal    = model.StatusNormal
	StatusCancelled = model.StatusCancelled
)

// Re-export error types
type (
	ParseError       = model.ParseError
	ValidationError  = model.ValidationError
	UnsupportedError = model.UnsupportedError
)

// ErrNotImplemented matches every UnsupportedError
var ErrNotImplemented = model.ErrNotImplemented

// NewBatch creates a batch holding invoices in order
func NewBatch(invoices ...*Invoice) *Batch {
	return model.NewBatch(invoices...)
}
