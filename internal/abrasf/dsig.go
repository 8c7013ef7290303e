package abrasf

import (
	"github.com/beevik/etree"

	"github.com/rezonia/nfse-abrasf/internal/model"
)

// XMLDSig identifiers used by ABRASF 1.00 signatures
const (
	DSigNamespace    = "http://www.w3.org/2000/09/xmldsig#"
	c14nAlgorithm    = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	rsaSHA1Algorithm = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	sha1Algorithm    = "http://www.w3.org/2000/09/xmldsig#sha1"
	envelopedXform   = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// writeSignature appends an already computed signature block to parent.
// Nothing is written for an empty signature; the signer inserts a fresh one.
func writeSignature(parent *etree.Element, sig *model.Signature) {
	if sig.IsEmpty() {
		return
	}

	el := parent.CreateElement("Signature")
	el.CreateAttr("xmlns", DSigNamespace)
	if sig.ID != "" {
		el.CreateAttr("Id", sig.ID)
	}

	signedInfo := el.CreateElement("SignedInfo")
	signedInfo.CreateElement("CanonicalizationMethod").CreateAttr("Algorithm", c14nAlgorithm)
	signedInfo.CreateElement("SignatureMethod").CreateAttr("Algorithm", rsaSHA1Algorithm)

	ref := signedInfo.CreateElement("Reference")
	ref.CreateAttr("URI", sig.ReferenceURI)
	transforms := ref.CreateElement("Transforms")
	transforms.CreateElement("Transform").CreateAttr("Algorithm", envelopedXform)
	transforms.CreateElement("Transform").CreateAttr("Algorithm", c14nAlgorithm)
	ref.CreateElement("DigestMethod").CreateAttr("Algorithm", sha1Algorithm)
	ref.CreateElement("DigestValue").SetText(sig.DigestValue)

	el.CreateElement("SignatureValue").SetText(sig.SignatureValue)
	el.CreateElement("KeyInfo").CreateElement("X509Data").CreateElement("X509Certificate").SetText(sig.X509Certificate)
}

// loadSignature reads a Signature element; nil when absent
func loadSignature(el *etree.Element) *model.Signature {
	if el == nil {
		return nil
	}
	sig := &model.Signature{
		ID:              attr(el, "Id"),
		ReferenceURI:    attr(child(el, "SignedInfo", "Reference"), "URI"),
		DigestValue:     text(el, "SignedInfo", "Reference", "DigestValue"),
		SignatureValue:  text(el, "SignatureValue"),
		X509Certificate: text(el, "KeyInfo", "X509Data", "X509Certificate"),
	}
	if sig.IsEmpty() && sig.ID == "" {
		return nil
	}
	return sig
}
