package abrasf

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	dec "github.com/rezonia/nfse-abrasf/internal/decimal"
	"github.com/rezonia/nfse-abrasf/internal/model"
)

// Kind is the data kind of a tagged field
type Kind int

const (
	KindInt       Kind = iota // integer
	KindDe2                   // decimal, 2 digits
	KindDe4                   // decimal, 4 digits
	KindStr                   // free text
	KindStrNumber             // digits only
	KindDate                  // yyyy-MM-dd
	KindDateTime              // yyyy-MM-ddTHH:mm:ss
)

// Occurrence is the emission policy of a tagged field
type Occurrence int

const (
	Required     Occurrence = iota // always emitted, empty if no value
	Optional                       // emitted only when non-empty
	PositiveOnly                   // emitted only when numerically > 0
)

// Wire layouts
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02T15:04:05"
)

// Tagger emits fields through a single primitive that knows data kind,
// length bounds and occurrence. Length and required-field problems are
// collected as alerts; the field is still emitted.
type Tagger struct {
	removeAccents bool
	logger        zerolog.Logger
	location      *time.Location
	alerts        []string
}

// NewTagger creates a tagger
func NewTagger(logger zerolog.Logger, removeAccents bool) *Tagger {
	return &Tagger{logger: logger, removeAccents: removeAccents}
}

// Alerts returns the alerts raised so far
func (t *Tagger) Alerts() []string {
	return t.alerts
}

// Add creates <name> under parent and returns it, or nil when the
// occurrence policy says the value must not be emitted.
func (t *Tagger) Add(parent *etree.Element, kind Kind, name string, min, max int, occ Occurrence, value interface{}) *etree.Element {
	text, positive := t.format(kind, value)

	if text == "" {
		if occ != Required {
			return nil
		}
		t.alert(name, "campo obrigatório não informado")
	} else if occ == PositiveOnly && !positive {
		return nil
	}

	if text != "" && kind != KindDate && kind != KindDateTime {
		if n := utf8.RuneCountInString(text); n < min || n > max {
			t.alert(name, fmt.Sprintf("tamanho %d fora do intervalo [%d,%d]", n, min, max))
		}
	}

	el := parent.CreateElement(name)
	if text != "" {
		el.SetText(text)
	}
	return el
}

// AddCpfCnpj emits <Cpf> for an 11-digit id, otherwise <Cnpj> zero-filled to 14
func (t *Tagger) AddCpfCnpj(parent *etree.Element, taxID string) *etree.Element {
	digits := model.OnlyDigits(taxID)
	switch {
	case digits == "":
		return nil
	case len(digits) == 11:
		return t.Add(parent, KindStrNumber, "Cpf", 11, 11, Required, digits)
	default:
		return t.Add(parent, KindStrNumber, "Cnpj", 14, 14, Required, model.ZeroFill(digits, 14))
	}
}

func (t *Tagger) alert(name, msg string) {
	a := fmt.Sprintf("%s: %s", name, msg)
	t.alerts = append(t.alerts, a)
	t.logger.Warn().Str("field", name).Msg(msg)
}

// format renders value for kind and reports whether it is numerically positive
func (t *Tagger) format(kind Kind, value interface{}) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return t.formatString(kind, v)
	case int:
		return t.formatInt(kind, int64(v))
	case int64:
		return t.formatInt(kind, v)
	case decimal.Decimal:
		return formatDecimal(kind, v), dec.IsPositive(v)
	case time.Time:
		if v.IsZero() {
			return "", false
		}
		if kind == KindDate {
			return v.Format(DateLayout), true
		}
		if t.location != nil {
			v = v.In(t.location)
		}
		return v.Format(DateTimeLayout), true
	default:
		return fmt.Sprint(v), true
	}
}

func (t *Tagger) formatString(kind Kind, s string) (string, bool) {
	s = strings.TrimSpace(s)
	switch kind {
	case KindStrNumber:
		s = model.OnlyDigits(s)
	case KindStr:
		if t.removeAccents {
			s = stripAccents(s)
		}
	case KindDe2, KindDe4:
		if s == "" {
			return "", false
		}
		d := dec.Parse(s)
		return formatDecimal(kind, d), dec.IsPositive(d)
	}
	n, err := strconv.ParseFloat(s, 64)
	return s, err == nil && n > 0
}

func (t *Tagger) formatInt(kind Kind, n int64) (string, bool) {
	switch kind {
	case KindDe2, KindDe4:
		return formatDecimal(kind, decimal.NewFromInt(n)), n > 0
	}
	return strconv.FormatInt(n, 10), n > 0
}

func formatDecimal(kind Kind, d decimal.Decimal) string {
	if kind == KindDe4 {
		return dec.Rate(d)
	}
	return dec.Money(d)
}

func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
