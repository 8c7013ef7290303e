package nfselib

import (
	"github.com/rezonia/nfse-abrasf/internal/abrasf"
	"github.com/rezonia/nfse-abrasf/internal/model"
)

// Re-export mapping and protocol types
type (
	Variant       = abrasf.Variant
	Engine        = abrasf.Engine
	Operation     = abrasf.Operation
	Issuer        = abrasf.Issuer
	Request       = abrasf.Request
	Builder       = abrasf.Builder
	RpsQuery      = abrasf.RpsQuery
	RangeQuery    = abrasf.RangeQuery
	CancelRequest = abrasf.CancelRequest
)

// Mapper converts between the invoice model and ABRASF XML
type Mapper interface {
	// Load reads an RPS or CompNfse document
	Load(data []byte) (*model.Invoice, error)

	// WriteRPS renders Rps/InfRps
	WriteRPS(inv *model.Invoice) (string, error)

	// WriteNFSe renders CompNfse with cancellation and substitution blocks
	WriteNFSe(inv *model.Invoice) (string, error)
}

var _ Mapper = (*abrasf.Engine)(nil)

// Variants returns the names of the built-in provider variants
func Variants() []Provider {
	return abrasf.NewRegistry().Names()
}

// VariantFor returns the built-in variant called name, or nil
func VariantFor(name Provider) *Variant {
	return abrasf.NewRegistry().Get(name)
}

// DetectVariant picks the variant whose markers appear in content
func DetectVariant(content []byte) (*Variant, error) {
	return abrasf.NewRegistry().Detect(content)
}

// NewMapper returns the mapping engine of v; nil means the ABRASF baseline
func NewMapper(v *Variant, removeAccents bool) *Engine {
	return abrasf.NewEngine(v, abrasf.WithRemoveAccents(removeAccents))
}

// NewBuilder returns an envelope builder for issuer
func NewBuilder(v *Variant, issuer Issuer) *Builder {
	return abrasf.NewBuilder(abrasf.NewEngine(v), issuer, nil)
}
