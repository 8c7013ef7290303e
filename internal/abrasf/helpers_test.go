package abrasf_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rezonia/nfse-abrasf/internal/abrasf"
	"github.com/rezonia/nfse-abrasf/internal/model"
)

var issuedAt = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func sampleInvoice(number string) *model.Invoice {
	return &model.Invoice{
		Rps: model.RpsIdentification{
			Number:    number,
			Series:    "A",
			Type:      model.RpsTypeRPS,
			IssueDate: issuedAt,
		},
		OperationNature:   1,
		SpecialRegime:     model.RegimeMicroEmpresaMunicipal,
		CulturalIncentive: model.No,
		Service: model.ServiceInfo{
			Values: model.Values{
				ServiceAmount: decimal.RequireFromString("1000.00"),
				Iss:           decimal.RequireFromString("50.00"),
				Rate:          decimal.NewFromInt(5),
				NetAmount:     decimal.RequireFromString("1000.00"),
			},
			ServiceListItem:  "01.07",
			Description:      "Suporte técnico em informática",
			MunicipalityCode: 3550308,
		},
		ServiceProvider: model.Party{
			TaxID:                 "12345678000199",
			MunicipalRegistration: "123456",
		},
		Customer: model.Party{
			TaxID: "12345678901",
			Name:  "Fulano de Tal",
			Address: model.Address{
				Street:           "Rua das Flores",
				Number:           "100",
				District:         "Centro",
				MunicipalityCode: 3550308,
				State:            "SP",
				PostalCode:       "01001000",
			},
			Contact: model.Contact{Email: "fulano@example.com"},
		},
	}
}

func sampleBatch(numbers ...string) *model.Batch {
	b := model.NewBatch()
	for _, n := range numbers {
		b.Add(sampleInvoice(n))
	}
	return b
}

func compNfse(nfse, key, rps string) string {
	return fmt.Sprintf(`<CompNfse><Nfse><InfNfse Id="%[1]s">`+
		`<Numero>%[1]s</Numero><CodigoVerificacao>%[2]s</CodigoVerificacao>`+
		`<DataEmissao>2024-03-16T08:00:00</DataEmissao>`+
		`<IdentificacaoRps><Numero>%[3]s</Numero><Serie>A</Serie><Tipo>1</Tipo></IdentificacaoRps>`+
		`<DataEmissaoRps>2024-03-15T10:30:00</DataEmissaoRps><NaturezaOperacao>1</NaturezaOperacao>`+
		`<OptanteSimplesNacional>2</OptanteSimplesNacional><IncentivadorCultural>2</IncentivadorCultural>`+
		`<Competencia>2024-03-01</Competencia>`+
		`<Servico><Valores><ValorServicos>1000.00</ValorServicos><IssRetido>2</IssRetido></Valores>`+
		`<ItemListaServico>01.07</ItemListaServico><Discriminacao>Suporte</Discriminacao>`+
		`<CodigoMunicipio>3550308</CodigoMunicipio></Servico>`+
		`<PrestadorServico><IdentificacaoPrestador><Cnpj>12345678000199</Cnpj></IdentificacaoPrestador></PrestadorServico>`+
		`<TomadorServico><RazaoSocial>Fulano</RazaoSocial></TomadorServico>`+
		`</InfNfse></Nfse></CompNfse>`, nfse, key, rps)
}

type storedDoc struct {
	name    string
	content string
	at      time.Time
}

type memStore struct {
	mu   sync.Mutex
	docs []storedDoc
}

func (s *memStore) Write(name, content string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, storedDoc{name: name, content: content, at: at})
	return nil
}

func (s *memStore) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d.name)
	}
	return out
}

type fakeTransport struct {
	response string
	err      error
	calls    []abrasf.Operation
	messages []string
}

func (f *fakeTransport) Send(_ context.Context, op abrasf.Operation, message string) (string, error) {
	f.calls = append(f.calls, op)
	f.messages = append(f.messages, message)
	return f.response, f.err
}

type recordingSigner struct {
	steps []abrasf.SignStep
}

func (r *recordingSigner) Sign(doc, container, element string) (string, error) {
	r.steps = append(r.steps, abrasf.SignStep{Container: container, Element: element})
	return strings.Replace(doc, "</"+element+">", "</"+element+"><Signature/>", 1), nil
}
