package transport

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// SOAP 1.1 envelope namespace
const SOAPNamespace = "http://schemas.xmlsoap.org/soap/envelope/"

// Fault is a SOAP fault returned by the web service
type Fault struct {
	Code   string
	String string
	Detail string
}

func (f *Fault) Error() string {
	if f.Detail != "" {
		return fmt.Sprintf("soap fault %s: %s (%s)", f.Code, f.String, f.Detail)
	}
	return fmt.Sprintf("soap fault %s: %s", f.Code, f.String)
}

// newEnvelope returns a soap:Envelope document and its Body
func newEnvelope(namespaces map[string]string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)

	env := doc.CreateElement("soap:Envelope")
	env.CreateAttr("xmlns:soap", SOAPNamespace)
	for prefix, uri := range namespaces {
		env.CreateAttr("xmlns:"+prefix, uri)
	}
	return doc, env.CreateElement("soap:Body")
}

// cdata appends a child whose content is raw XML kept as character data
func cdata(parent *etree.Element, name, xml string) *etree.Element {
	el := parent.CreateElement(name)
	el.CreateCData(xml)
	return el
}

// Unwrap extracts the authority message from a SOAP response. Escaped or
// CDATA payloads (outputXML, return, *Result) are returned as text; an
// inline payload is returned serialized. Content that is not a SOAP
// envelope is returned unchanged for the response parser to judge.
func Unwrap(body []byte) (string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil || doc.Root() == nil || doc.Root().Tag != "Envelope" {
		return string(body), nil
	}

	soapBody := doc.Root().SelectElement("Body")
	if soapBody == nil {
		return "", fmt.Errorf("soap envelope without Body")
	}

	if fault := soapBody.SelectElement("Fault"); fault != nil {
		return "", &Fault{
			Code:   childText(fault, "faultcode"),
			String: childText(fault, "faultstring"),
			Detail: strings.TrimSpace(detailText(fault)),
		}
	}

	response := firstChild(soapBody)
	if response == nil {
		return "", fmt.Errorf("soap Body is empty")
	}

	if text := embedded(response); text != "" {
		return text, nil
	}

	payload := firstChild(response)
	if payload == nil {
		payload = response
	}
	out := etree.NewDocument()
	out.SetRoot(payload.Copy())
	return out.WriteToString()
}

// embedded returns the response text, or that of a leaf child, when it
// is itself an XML document
func embedded(response *etree.Element) string {
	candidates := []*etree.Element{response}
	candidates = append(candidates, response.ChildElements()...)
	for _, el := range candidates {
		if len(el.ChildElements()) > 0 {
			continue
		}
		if text := strings.TrimSpace(el.Text()); strings.HasPrefix(text, "<") {
			return text
		}
	}
	return ""
}

func firstChild(el *etree.Element) *etree.Element {
	children := el.ChildElements()
	if len(children) == 0 {
		return nil
	}
	return children[0]
}

func childText(el *etree.Element, name string) string {
	if c := el.SelectElement(name); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

func detailText(fault *etree.Element) string {
	detail := fault.SelectElement("detail")
	if detail == nil {
		return ""
	}
	var buf bytes.Buffer
	for _, c := range detail.ChildElements() {
		buf.WriteString(strings.TrimSpace(c.Text()))
	}
	if buf.Len() == 0 {
		return detail.Text()
	}
	return buf.String()
}

// parseFragment parses message and returns its root, detached
func parseFragment(message string) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(message); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("invalid message: no root element")
	}
	return doc.Root().Copy(), nil
}
