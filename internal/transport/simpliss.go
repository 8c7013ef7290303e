package transport

import (
	"context"

	"github.com/rezonia/nfse-abrasf/internal/abrasf"
)

// SimplISS web service namespaces
const (
	SimplISSNamespace       = "http://www.sistema.com.br/Sistema.Ws.Nfse"
	SimplISSParamsNamespace = "http://www.sistema.com.br/Sistema.Ws.Nfse.Cn"
)

// SimplISSClient puts the message inline in the operation element and
// authenticates each call with pParam user/password.
type SimplISSClient struct {
	soapClient
}

// NewSimplISSClient creates the SimplISS SOAP client
func NewSimplISSClient(cfg Config) *SimplISSClient {
	return &SimplISSClient{soapClient: newSOAPClient(cfg, ClientSimplISS)}
}

var _ abrasf.Transport = (*SimplISSClient)(nil)

// Envelope wraps message for op
func (c *SimplISSClient) Envelope(op abrasf.Operation, message string) (string, error) {
	doc, body := newEnvelope(map[string]string{
		"sis":  SimplISSNamespace,
		"sis1": SimplISSParamsNamespace,
	})

	call := body.CreateElement("sis:" + string(op))
	if message != "" {
		inner, err := parseFragment(message)
		if err != nil {
			return "", err
		}
		call.AddChild(inner)
	}

	param := call.CreateElement("sis:pParam")
	param.CreateElement("sis1:P1").SetText(c.cfg.User)
	param.CreateElement("sis1:P2").SetText(c.cfg.Password)

	return doc.WriteToString()
}

// Send posts message to the operation endpoint and returns the authority reply
func (c *SimplISSClient) Send(ctx context.Context, op abrasf.Operation, message string) (string, error) {
	env, err := c.Envelope(op, message)
	if err != nil {
		return "", err
	}
	return c.post(ctx, op, SimplISSNamespace+"/INfseService/"+string(op), env)
}
