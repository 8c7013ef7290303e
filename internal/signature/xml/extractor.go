package xml

import (
	"bytes"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// XML namespaces
const (
	XMLDSigNamespace = "http://www.w3.org/2000/09/xmldsig#"
)

// IDAttribute is the attribute ABRASF references point at
const IDAttribute = "Id"

// SignatureExtractor locates enveloped XMLDSig blocks in ABRASF documents.
// ABRASF places a Signature as the next sibling of the element it signs
// (InfRps, InfNfse, LoteRps, InfPedidoCancelamento, SubstituicaoNfse),
// so the signed element is resolved through the Reference URI.
type SignatureExtractor struct{}

// NewSignatureExtractor creates a new signature extractor
func NewSignatureExtractor() *SignatureExtractor {
	return &SignatureExtractor{}
}

// Located is one Signature together with the element it references
type Located struct {
	Signature *etree.Element
	// Target is nil when the Reference URI matches no element
	Target       *etree.Element
	ReferenceURI string
	// Location is the path of the Signature's parent, e.g. "CompNfse/Nfse"
	Location string
}

// ExtractionResult contains the parsed document and every located signature
type ExtractionResult struct {
	Document   *etree.Document
	Root       string
	Signatures []Located
}

// Extract parses data and collects every Signature element in document order
func (e *SignatureExtractor) Extract(data []byte) (*ExtractionResult, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}

	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("empty XML document")
	}

	ids := make(map[string]*etree.Element)
	indexIDs(root, ids)

	result := &ExtractionResult{Document: doc, Root: root.Tag}
	for _, sig := range findAll(root, "Signature") {
		uri := referenceURI(sig)
		result.Signatures = append(result.Signatures, Located{
			Signature:    sig,
			Target:       ids[strings.TrimPrefix(uri, "#")],
			ReferenceURI: uri,
			Location:     pathOf(sig.Parent()),
		})
	}

	if len(result.Signatures) == 0 {
		return result, fmt.Errorf("no Signature element found in document")
	}
	return result, nil
}

// CanExtract returns true if the data appears to be XML with a signature
func (e *SignatureExtractor) CanExtract(data []byte) bool {
	if len(data) < 5 {
		return false
	}

	trimmed := bytes.TrimSpace(data)
	if !bytes.HasPrefix(trimmed, []byte("<")) {
		return false
	}

	return bytes.Contains(data, []byte("<Signature")) ||
		bytes.Contains(data, []byte(":Signature"))
}

// ExtractCertificates decodes KeyInfo/X509Data. The first certificate is
// the signer; the rest are returned as intermediates.
func ExtractCertificates(sig *etree.Element) (*x509.Certificate, []*x509.Certificate, error) {
	var certs []*x509.Certificate
	for _, el := range findAll(sig, "X509Certificate") {
		text := strings.Join(strings.Fields(el.Text()), "")
		if text == "" {
			continue
		}
		der, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decode certificate: %w", err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}

	if len(certs) == 0 {
		return nil, nil, fmt.Errorf("no X509Certificate found in Signature")
	}
	return certs[0], certs[1:], nil
}

func referenceURI(sig *etree.Element) string {
	for _, ref := range findAll(sig, "Reference") {
		return ref.SelectAttrValue("URI", "")
	}
	return ""
}

func indexIDs(el *etree.Element, ids map[string]*etree.Element) {
	if id := el.SelectAttrValue(IDAttribute, ""); id != "" {
		if _, dup := ids[id]; !dup {
			ids[id] = el
		}
	}
	for _, c := range el.ChildElements() {
		indexIDs(c, ids)
	}
}

// findAll returns el and its descendants whose local name is name, depth first
func findAll(el *etree.Element, name string) []*etree.Element {
	var out []*etree.Element
	if el.Tag == name {
		out = append(out, el)
	}
	for _, c := range el.ChildElements() {
		out = append(out, findAll(c, name)...)
	}
	return out
}

func pathOf(el *etree.Element) string {
	var parts []string
	for ; el != nil; el = el.Parent() {
		if el.Tag == "" {
			break
		}
		parts = append([]string{el.Tag}, parts...)
	}
	return strings.Join(parts, "/")
}

// detach copies el and declares on the copy every namespace it inherits,
// so the copy canonicalizes as it would in place.
func detach(el *etree.Element) *etree.Element {
	cp := el.Copy()
	for p := el.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			if !(a.Space == "" && a.Key == "xmlns") && a.Space != "xmlns" {
				continue
			}
			key := a.FullKey()
			if cp.SelectAttr(key) == nil {
				cp.CreateAttr(key, a.Value)
			}
		}
	}
	return cp
}
