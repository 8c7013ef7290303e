package abrasf

import (
	"bytes"

	"github.com/beevik/etree"

	"github.com/rezonia/nfse-abrasf/internal/model"
)

// NewSimplISSVariant returns the SimplISS 1.00 variant.
//
// SimplISS differs from the baseline in:
//   - no namespace on envelopes, schema nfse_3.xsd
//   - RPS rate sent as the raw percentage
//   - repeated ItensServico after CodigoMunicipio
//   - no synchronous submission
//   - *Result response roots and Cancelamento/Confirmacao
func NewSimplISSVariant() *Variant {
	return &Variant{
		Name:              model.ProviderSimplISS,
		Namespace:         "",
		Schema:            "nfse_3.xsd",
		RpsRate:           RatePercent,
		WriteServiceItems: writeSimplISSItems,
		LoadServiceItems:  loadSimplISSItems,
		Unsupported: map[Operation]bool{
			OpSubmitSync:  true,
			OpCancelBatch: true,
			OpSubstitute:  true,
		},
		ResponseRoots: map[Operation]string{
			OpBatchQuery: "ConsultarLoteRpsResult",
			OpRpsQuery:   "ConsultarNfsePorRpsResult",
			OpRangeQuery: "ConsultarNfseResult",
		},
		CancelConfirmation: []string{"Cancelamento", "Confirmacao"},
		MessageList:        "ListaMensagemRetorno",
		MessageItem:        "MensagemRetorno",
		Client:             "simpliss",
		Matches: func(content []byte) bool {
			for _, marker := range simplISSMarkers {
				if bytes.Contains(content, marker) {
					return true
				}
			}
			return false
		},
	}
}

var simplISSMarkers = [][]byte{
	[]byte("<ItensServico"),
	[]byte("simpliss"),
	[]byte("ConsultarLoteRpsResult"),
	[]byte("ConsultarNfsePorRpsResult"),
	[]byte("ConsultarNfseResult"),
}

func writeSimplISSItems(t *Tagger, servico *etree.Element, items []model.ServiceItem) {
	for _, item := range items {
		el := servico.CreateElement("ItensServico")
		t.Add(el, KindStr, "Descricao", 1, 100, Required, item.Description)
		t.Add(el, KindDe2, "Quantidade", 4, 15, Required, item.Quantity)
		t.Add(el, KindDe2, "ValorUnitario", 4, 15, Required, item.UnitPrice)
	}
}

func loadSimplISSItems(servico *etree.Element) []model.ServiceItem {
	var items []model.ServiceItem
	for _, el := range children(servico, "ItensServico") {
		items = append(items, model.ServiceItem{
			Description: text(el, "Descricao"),
			Quantity:    decimalValue(el, "Quantidade"),
			UnitPrice:   decimalValue(el, "ValorUnitario"),
		})
	}
	return items
}
