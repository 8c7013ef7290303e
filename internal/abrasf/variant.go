package abrasf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/rezonia/nfse-abrasf/internal/model"
)

// Namespace of the ABRASF 1.00 schema
const Namespace = "http://www.abrasf.org.br/ABRASF/arquivos/nfse.xsd"

// Operation is a protocol operation offered by the authority web service
type Operation string

const (
	OpSubmit      Operation = "RecepcionarLoteRps"
	OpSubmitSync  Operation = "GerarNfse"
	OpStatus      Operation = "ConsultarSituacaoLoteRps"
	OpBatchQuery  Operation = "ConsultarLoteRps"
	OpRpsQuery    Operation = "ConsultarNfsePorRps"
	OpRangeQuery  Operation = "ConsultarNfse"
	OpCancel      Operation = "CancelarNfse"
	OpCancelBatch Operation = "CancelarNfseLote"
	OpSubstitute  Operation = "SubstituirNfse"
)

// Operations lists every operation in protocol order
var Operations = []Operation{
	OpSubmit, OpSubmitSync, OpStatus, OpBatchQuery, OpRpsQuery,
	OpRangeQuery, OpCancel, OpCancelBatch, OpSubstitute,
}

var operationAliases = map[string]Operation{
	"submit":       OpSubmit,
	"submit-sync":  OpSubmitSync,
	"status":       OpStatus,
	"batch-query":  OpBatchQuery,
	"rps-query":    OpRpsQuery,
	"range-query":  OpRangeQuery,
	"cancel":       OpCancel,
	"cancel-batch": OpCancelBatch,
	"substitute":   OpSubstitute,
}

// ParseOperation accepts a protocol name ("ConsultarLoteRps") or its
// short alias ("batch-query").
func ParseOperation(name string) (Operation, error) {
	if op, ok := operationAliases[strings.ToLower(name)]; ok {
		return op, nil
	}
	for _, op := range Operations {
		if string(op) == name {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation %q", name)
}

// RateMode says how the tax rate percentage is put on the wire
type RateMode int

const (
	RateFraction RateMode = iota // 5% -> 0.0500
	RatePercent                  // 5% -> 5.0000
)

// Variant is the set of overrides a municipality applies on top of the
// baseline ABRASF mapping. Zero-valued fields keep the baseline behavior.
type Variant struct {
	Name model.Provider

	// Namespace is put on envelope roots; empty emits no xmlns
	Namespace string
	Schema    string

	// RpsRate applies to the RPS service block; issued NFSe always use fractions
	RpsRate RateMode

	// WriteServiceItems and LoadServiceItems replace the line-item sub-tree
	// of the service block
	WriteServiceItems func(t *Tagger, servico *etree.Element, items []model.ServiceItem)
	LoadServiceItems  func(servico *etree.Element) []model.ServiceItem

	Unsupported map[Operation]bool

	// ResponseRoots overrides the root element expected per operation
	ResponseRoots map[Operation]string
	// CancelConfirmation is the path from the response root to Confirmacao
	CancelConfirmation []string

	MessageList string
	MessageItem string

	// Client names the transport implementation used for this variant
	Client string

	// Matches reports whether raw content looks like this variant's output
	Matches func(content []byte) bool
}

var baselineRoots = map[Operation]string{
	OpSubmit:     "EnviarLoteRpsResposta",
	OpSubmitSync: "GerarNfseResposta",
	OpStatus:     "ConsultarSituacaoLoteRpsResposta",
	OpBatchQuery: "ConsultarLoteRpsResposta",
	OpRpsQuery:   "ConsultarNfseRpsResposta",
	OpRangeQuery: "ConsultarNfseResposta",
	OpCancel:     "CancelarNfseResposta",
}

// NewBaselineVariant returns the plain ABRASF 1.00 variant
func NewBaselineVariant() *Variant {
	return &Variant{
		Name:      model.ProviderABRASF,
		Namespace: Namespace,
		Schema:    "nfse.xsd",
		RpsRate:   RateFraction,
		Unsupported: map[Operation]bool{
			OpCancelBatch: true,
			OpSubstitute:  true,
		},
		CancelConfirmation: []string{"RetCancelamento", "NfseCancelamento", "Confirmacao"},
		MessageList:        "ListaMensagemRetorno",
		MessageItem:        "MensagemRetorno",
		Client:             "abrasf",
		Matches: func(content []byte) bool {
			return bytes.Contains(content, []byte("CompNfse")) || bytes.Contains(content, []byte("InfRps"))
		},
	}
}

// Supports reports whether op is implemented by the variant
func (v *Variant) Supports(op Operation) bool {
	return !v.Unsupported[op]
}

// ResponseRoot returns the expected root element of op's response
func (v *Variant) ResponseRoot(op Operation) string {
	if name, ok := v.ResponseRoots[op]; ok {
		return name
	}
	return baselineRoots[op]
}

// NamespaceAttr sets xmlns on el unless the variant has no namespace
func (v *Variant) NamespaceAttr(el *etree.Element) {
	if v.Namespace != "" {
		el.CreateAttr("xmlns", v.Namespace)
	}
}

func (v *Variant) messageNames() (string, string) {
	list, item := v.MessageList, v.MessageItem
	if list == "" {
		list = "ListaMensagemRetorno"
	}
	if item == "" {
		item = "MensagemRetorno"
	}
	return list, item
}

// Registry holds all known variants
type Registry struct {
	variants []*Variant
}

// NewRegistry creates registry with all variants
// Order matters: more specific variants should come before the baseline
func NewRegistry() *Registry {
	return &Registry{
		variants: []*Variant{
			NewSimplISSVariant(), // <ItensServico>, no namespace
			NewBaselineVariant(), // plain ABRASF 1.00, last
		},
	}
}

// Detect identifies the variant from document content
func (r *Registry) Detect(content []byte) (*Variant, error) {
	for _, v := range r.variants {
		if v.Matches != nil && v.Matches(content) {
			return v, nil
		}
	}
	return nil, model.NewParseError(model.ProviderUnknown, "root", "unknown XML format, no matching provider found", nil)
}

// Register adds a custom variant; custom variants take priority
func (r *Registry) Register(v *Variant) {
	r.variants = append([]*Variant{v}, r.variants...)
}

// Get returns the variant with the given name, or nil
func (r *Registry) Get(name model.Provider) *Variant {
	for _, v := range r.variants {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// Names lists registered variant names in priority order
func (r *Registry) Names() []model.Provider {
	names := make([]model.Provider, 0, len(r.variants))
	for _, v := range r.variants {
		names = append(names, v.Name)
	}
	return names
}
