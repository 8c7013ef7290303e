package transport

import (
	"context"
	"fmt"

	"github.com/rezonia/nfse-abrasf/internal/abrasf"
)

// Version sent in cabecalho and versaoDados
const Version = "1.00"

// ServiceNamespace is the namespace of the ABRASF web service operations
const ServiceNamespace = "http://www.abrasf.org.br/nfse.xsd"

// ABRASFClient speaks the ABRASF 1.00 style: every operation takes the
// header message and the data message as escaped XML strings.
type ABRASFClient struct {
	soapClient
}

// NewABRASFClient creates the baseline SOAP client
func NewABRASFClient(cfg Config) *ABRASFClient {
	return &ABRASFClient{soapClient: newSOAPClient(cfg, ClientABRASF)}
}

var _ abrasf.Transport = (*ABRASFClient)(nil)

// Header returns the cabecalho message
func Header() string {
	return fmt.Sprintf(`<cabecalho versao="%[1]s" xmlns="%[2]s"><versaoDados>%[1]s</versaoDados></cabecalho>`,
		Version, ServiceNamespace)
}

// Envelope wraps message for op
func (c *ABRASFClient) Envelope(op abrasf.Operation, message string) (string, error) {
	doc, body := newEnvelope(map[string]string{"nfse": ServiceNamespace})

	call := body.CreateElement("nfse:" + string(op) + "Request")
	cdata(call, "nfseCabecMsg", Header())
	cdata(call, "nfseDadosMsg", message)

	return doc.WriteToString()
}

// Send posts message to the operation endpoint and returns the authority reply
func (c *ABRASFClient) Send(ctx context.Context, op abrasf.Operation, message string) (string, error) {
	env, err := c.Envelope(op, message)
	if err != nil {
		return "", err
	}
	return c.post(ctx, op, ServiceNamespace+"/"+string(op), env)
}
