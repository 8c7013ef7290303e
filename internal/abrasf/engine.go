package abrasf

import (
	"time"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Engine maps between model.Invoice and the two ABRASF document shapes
// (Rps/InfRps and CompNfse/Nfse/InfNfse) for one variant.
//
// An Engine holds no per-document state and may be shared between
// goroutines.
type Engine struct {
	variant       *Variant
	logger        zerolog.Logger
	removeAccents bool
	location      *time.Location
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger used for field alerts
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRemoveAccents strips diacritics from free-text fields on write
func WithRemoveAccents(remove bool) Option {
	return func(e *Engine) {
		e.removeAccents = remove
	}
}

// WithLocation sets the zone of offset-less date-times on the wire. Writes
// convert to it and reads interpret in it; the default is time.Local.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// NewEngine creates an engine for v; a nil variant means the baseline
func NewEngine(v *Variant, opts ...Option) *Engine {
	if v == nil {
		v = NewBaselineVariant()
	}
	e := &Engine{
		variant:  v,
		location: time.Local,
		logger:   log.Logger.With().Str("component", "abrasf").Str("provider", string(v.Name)).Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Variant returns the variant the engine was built for
func (e *Engine) Variant() *Variant {
	return e.variant
}

// Location returns the zone date-times are written and read in
func (e *Engine) Location() *time.Location {
	return e.location
}

func (e *Engine) newTagger() *Tagger {
	t := NewTagger(e.logger, e.removeAccents)
	t.location = e.location
	return t
}

// newDocument returns an empty document carrying the XML declaration
func newDocument() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	return doc
}

func render(doc *etree.Document, indent bool) (string, error) {
	if indent {
		doc.Indent(2)
	}
	return doc.WriteToString()
}
