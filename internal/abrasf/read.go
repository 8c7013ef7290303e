package abrasf

import (
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	dec "github.com/rezonia/nfse-abrasf/internal/decimal"
)

// Readers below never fail: a missing element or unparsable value yields the
// zero value of the target type. Element names are matched on local name,
// whatever namespace prefix the authority used.

// child walks path from el by local name; nil when any step is missing
func child(el *etree.Element, path ...string) *etree.Element {
	cur := el
	for _, name := range path {
		if cur == nil {
			return nil
		}
		var next *etree.Element
		for _, c := range cur.ChildElements() {
			if c.Tag == name {
				next = c
				break
			}
		}
		cur = next
	}
	return cur
}

// children returns every direct child of el named name
func children(el *etree.Element, name string) []*etree.Element {
	if el == nil {
		return nil
	}
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if c.Tag == name {
			out = append(out, c)
		}
	}
	return out
}

// find returns el itself or its first descendant named name, depth first
func find(el *etree.Element, name string) *etree.Element {
	if el == nil {
		return nil
	}
	if el.Tag == name {
		return el
	}
	for _, c := range el.ChildElements() {
		if found := find(c, name); found != nil {
			return found
		}
	}
	return nil
}

func text(el *etree.Element, path ...string) string {
	c := child(el, path...)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.Text())
}

func intValue(el *etree.Element, path ...string) int {
	n, err := strconv.Atoi(text(el, path...))
	if err != nil {
		return 0
	}
	return n
}

func decimalValue(el *etree.Element, path ...string) decimal.Decimal {
	return dec.Parse(text(el, path...))
}

var dateTimeLayouts = []string{
	DateTimeLayout,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z07:00",
}

var dateLayouts = []string{
	DateLayout,
	"02/01/2006",
}

// timeValue reads a date-time. Values without an offset are taken as wall
// clock in loc; date-only values are calendar days at midnight UTC.
func timeValue(loc *time.Location, el *etree.Element, path ...string) time.Time {
	s := text(el, path...)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// firstText returns the first non-empty text among the given child names
func firstText(el *etree.Element, names ...string) string {
	for _, name := range names {
		if s := text(el, name); s != "" {
			return s
		}
	}
	return ""
}

// serialize renders el as a standalone document, without declaration
func serialize(el *etree.Element, indent bool) string {
	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())
	if indent {
		doc.Indent(2)
	}
	s, err := doc.WriteToString()
	if err != nil {
		return ""
	}
	return s
}

func attr(el *etree.Element, name string) string {
	if el == nil {
		return ""
	}
	return el.SelectAttrValue(name, "")
}
