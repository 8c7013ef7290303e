package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Provider identifies the municipal ABRASF variant that produced or consumes a document
type Provider string

const (
	ProviderABRASF   Provider = "ABRASF"
	ProviderSimplISS Provider = "SimplISS"
	ProviderUnknown  Provider = "UNKNOWN"
)

// RpsType is the kind of provisional request (TipoRps)
type RpsType int

const (
	RpsTypeRPS       RpsType = iota // 1 on the wire
	RpsTypeConjugada                // 2, NF conjugada (mista)
	RpsTypeCupom                    // 3
)

// Code returns the wire code; unknown values map to "0"
func (t RpsType) Code() string {
	switch t {
	case RpsTypeRPS:
		return "1"
	case RpsTypeConjugada:
		return "2"
	case RpsTypeCupom:
		return "3"
	default:
		return "0"
	}
}

// ParseRpsType maps a wire code back to RpsType. Anything unrecognised is RPS.
func ParseRpsType(code string) RpsType {
	switch strings.TrimSpace(code) {
	case "2":
		return RpsTypeConjugada
	case "3":
		return RpsTypeCupom
	default:
		return RpsTypeRPS
	}
}

// SpecialRegime is RegimeEspecialTributacao, with SimplesNacional folded in
type SpecialRegime int

const (
	RegimeNone                      SpecialRegime = 0
	RegimeMicroEmpresaMunicipal     SpecialRegime = 1
	RegimeEstimativa                SpecialRegime = 2
	RegimeSociedadeProfissionais    SpecialRegime = 3
	RegimeCooperativa               SpecialRegime = 4
	RegimeMicroEmpresarioIndividual SpecialRegime = 5
	RegimeMicroEmpresarioEmpresaPP  SpecialRegime = 6
	// RegimeSimplesNacional is written as code 6 with OptanteSimplesNacional=1
	RegimeSimplesNacional SpecialRegime = 7
)

// YesNo is the ABRASF 1/2 flag with an unset state
type YesNo int

const (
	YesNoUnset YesNo = iota
	Yes
	No
)

// Status of an RPS or NFSe
type Status int

const (
	StatusNormal Status = iota
	StatusCancelled
)

func (s Status) String() string {
	if s == StatusCancelled {
		return "Cancelled"
	}
	return "Normal"
}

// IssWithholding tells whether ISS is withheld by the customer (IssRetido)
type IssWithholding int

const (
	IssNormal IssWithholding = iota
	IssWithheld
)

// Invoice is one service invoice, from RPS request to issued NFSe.
//
// Optional elements absent from a loaded document are left at their zero
// value: empty string, zero number, zero decimal or zero time.
type Invoice struct {
	Provider Provider `json:"provider"`

	// Issued NFSe identity, canonical once set
	NFSe NFSeIdentification `json:"nfse"`
	// RPS identity: (number, series, type) until issued
	Rps RpsIdentification `json:"rps"`

	LotNumber         int             `json:"lot_number,omitempty"`
	OperationNature   int             `json:"operation_nature"`
	SpecialRegime     SpecialRegime   `json:"special_regime"`
	CulturalIncentive YesNo           `json:"cultural_incentive"`
	Status            Status          `json:"status"`
	Competence        time.Time       `json:"competence"`
	OtherInformation  string          `json:"other_information,omitempty"`
	CreditValue       decimal.Decimal `json:"credit_value"`

	Service ServiceInfo `json:"service"`

	ServiceProvider Party `json:"service_provider"`
	Customer        Party `json:"customer"`
	Intermediary    Party `json:"intermediary"`

	Construction     Construction     `json:"construction"`
	IssuingAuthority IssuingAuthority `json:"issuing_authority"`
	Substitution     Substitution     `json:"substitution"`
	Cancellation     Cancellation     `json:"cancellation"`

	// Signature of the issued document (Nfse/Signature)
	Signature *Signature `json:"signature,omitempty"`

	// Metadata
	RawXML     string `json:"-"`           // Original XML for audit
	SourceFile string `json:"source_file"` // Source file path
}

// NFSeIdentification holds the number and verification key given by the authority
type NFSeIdentification struct {
	Number           string    `json:"number"`
	VerificationCode string    `json:"verification_code"`
	IssueDate        time.Time `json:"issue_date"`
}

// RpsIdentification identifies the provisional request
type RpsIdentification struct {
	Number    string    `json:"number"`
	Series    string    `json:"series"`
	Type      RpsType   `json:"type"`
	IssueDate time.Time `json:"issue_date"`
}

// ServiceInfo holds the service classification and the monetary breakdown
type ServiceInfo struct {
	Values           Values        `json:"values"`
	ServiceListItem  string        `json:"service_list_item"`
	CnaeCode         string        `json:"cnae_code,omitempty"`
	MunicipalTaxCode string        `json:"municipal_tax_code,omitempty"`
	Description      string        `json:"description"`
	MunicipalityCode int           `json:"municipality_code"`
	Items            []ServiceItem `json:"items,omitempty"` // item-level variants only
}

// Values is the monetary block. Money carries 2 decimals; Rate is a percentage with 4.
type Values struct {
	ServiceAmount         decimal.Decimal `json:"service_amount"`
	Deductions            decimal.Decimal `json:"deductions"`
	Pis                   decimal.Decimal `json:"pis"`
	Cofins                decimal.Decimal `json:"cofins"`
	Inss                  decimal.Decimal `json:"inss"`
	Ir                    decimal.Decimal `json:"ir"`
	Csll                  decimal.Decimal `json:"csll"`
	IssWithheld           IssWithholding  `json:"iss_withheld"`
	Iss                   decimal.Decimal `json:"iss"`
	IssWithheldAmount     decimal.Decimal `json:"iss_withheld_amount"`
	OtherWithholdings     decimal.Decimal `json:"other_withholdings"`
	CalculationBase       decimal.Decimal `json:"calculation_base"`
	Rate                  decimal.Decimal `json:"rate"`
	NetAmount             decimal.Decimal `json:"net_amount"`
	UnconditionalDiscount decimal.Decimal `json:"unconditional_discount"`
	ConditionalDiscount   decimal.Decimal `json:"conditional_discount"`
}

// ServiceItem is one line of an itemised service block
type ServiceItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Party represents the service provider, the customer or the intermediary
type Party struct {
	TaxID                 string  `json:"tax_id"` // CPF (11 digits) or CNPJ (14 digits)
	MunicipalRegistration string  `json:"municipal_registration,omitempty"`
	Name                  string  `json:"name,omitempty"`
	TradeName             string  `json:"trade_name,omitempty"`
	Address               Address `json:"address"`
	Contact               Contact `json:"contact"`
}

// Address of a party
type Address struct {
	Street           string `json:"street,omitempty"`
	Number           string `json:"number,omitempty"`
	Complement       string `json:"complement,omitempty"`
	District         string `json:"district,omitempty"`
	MunicipalityCode int    `json:"municipality_code,omitempty"`
	State            string `json:"state,omitempty"`
	PostalCode       string `json:"postal_code,omitempty"`
}

// IsEmpty reports whether no address field is filled
func (a Address) IsEmpty() bool {
	return a.Street == "" && a.Number == "" && a.Complement == "" && a.District == "" &&
		a.MunicipalityCode <= 0 && a.State == "" && a.PostalCode == ""
}

// Contact of a party
type Contact struct {
	AreaCode string `json:"area_code,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
}

// IsEmpty reports whether no contact field is filled
func (c Contact) IsEmpty() bool {
	return c.AreaCode == "" && c.Phone == "" && c.Email == ""
}

// Construction is the civil construction block
type Construction struct {
	WorkCode string `json:"work_code,omitempty"`
	Art      string `json:"art,omitempty"`
}

// IssuingAuthority is the municipality that generated the NFSe (OrgaoGerador)
type IssuingAuthority struct {
	MunicipalityCode int    `json:"municipality_code,omitempty"`
	State            string `json:"state,omitempty"`
}

// Substitution links a document to the one it replaces or is replaced by
type Substitution struct {
	ID               string     `json:"id,omitempty"`
	RpsNumber        string     `json:"rps_number,omitempty"`
	RpsSeries        string     `json:"rps_series,omitempty"`
	RpsType          RpsType    `json:"rps_type"`
	SubstitutedNFSe  string     `json:"substituted_nfse,omitempty"`  // NfseSubstituida
	SubstitutingNFSe string     `json:"substituting_nfse,omitempty"` // NfseSubstituidora
	Signature        *Signature `json:"signature,omitempty"`
}

// Cancellation holds the cancellation request and its confirmation
type Cancellation struct {
	ID               string     `json:"id,omitempty"`
	NFSeNumber       string     `json:"nfse_number,omitempty"`
	Code             string     `json:"code,omitempty"`
	DateTime         time.Time  `json:"date_time"`
	Signature        *Signature `json:"signature,omitempty"`         // Confirmacao signature
	RequestSignature *Signature `json:"request_signature,omitempty"` // Pedido signature
}

// Signature is an XMLDSig block as carried inside ABRASF documents
type Signature struct {
	ID              string `json:"id,omitempty"`
	ReferenceURI    string `json:"reference_uri,omitempty"`
	DigestValue     string `json:"digest_value,omitempty"`
	SignatureValue  string `json:"signature_value,omitempty"`
	X509Certificate string `json:"x509_certificate,omitempty"`
}

// IsEmpty reports whether the signature has not been filled by a signer
func (s *Signature) IsEmpty() bool {
	return s == nil || (s.DigestValue == "" && s.SignatureValue == "" && s.X509Certificate == "")
}

// IsIssued reports whether the authority has attached an NFSe number
func (inv *Invoice) IsIssued() bool {
	return strings.TrimSpace(inv.NFSe.Number) != ""
}
