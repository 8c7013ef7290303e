package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rezonia/nfse-abrasf/internal/abrasf"
)

// DefaultTimeout bounds one web service call
const DefaultTimeout = 60 * time.Second

// CorrelationHeader carries the per-call id, also logged on both ends
const CorrelationHeader = "X-Correlation-ID"

// ErrNoEndpoint is returned when no URL is configured for an operation
var ErrNoEndpoint = errors.New("no endpoint configured")

// Config describes how to reach one municipality's web service
type Config struct {
	// Endpoints per operation; Default is used for operations not listed
	Endpoints map[abrasf.Operation]string
	Default   string

	// Credentials, sent inline by clients that require them
	User     string
	Password string

	Timeout time.Duration
	Logger  *zerolog.Logger
}

// URL returns the endpoint of op
func (c Config) URL(op abrasf.Operation) (string, error) {
	if u := c.Endpoints[op]; u != "" {
		return u, nil
	}
	if c.Default != "" {
		return c.Default, nil
	}
	return "", fmt.Errorf("%s: %w", op, ErrNoEndpoint)
}

// New returns the transport matching the variant's client name
func New(v *abrasf.Variant, cfg Config) (abrasf.Transport, error) {
	if v == nil {
		v = abrasf.NewBaselineVariant()
	}
	switch v.Client {
	case "", ClientABRASF:
		return NewABRASFClient(cfg), nil
	case ClientSimplISS:
		return NewSimplISSClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown transport client %q for provider %s", v.Client, v.Name)
	}
}

// Client names
const (
	ClientABRASF   = "abrasf"
	ClientSimplISS = "simpliss"
)

// soapClient is the resty plumbing shared by every SOAP style
type soapClient struct {
	cfg    Config
	http   *resty.Client
	logger zerolog.Logger
}

func newSOAPClient(cfg Config, name string) soapClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return soapClient{
		cfg: cfg,
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "text/xml; charset=utf-8"),
		logger: logger.With().Str("component", "transport").Str("client", name).Logger(),
	}
}

// post sends envelope and unwraps the reply
func (c *soapClient) post(ctx context.Context, op abrasf.Operation, action, envelope string) (string, error) {
	url, err := c.cfg.URL(op)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	logger := c.logger.With().Str("operation", string(op)).Str("correlation_id", id).Logger()
	logger.Debug().Str("url", url).Int("bytes", len(envelope)).Msg("sending request")

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("SOAPAction", action).
		SetHeader(CorrelationHeader, id).
		SetBody(envelope).
		Post(url)
	if err != nil {
		logger.Error().Err(err).Msg("request failed")
		return "", fmt.Errorf("post %s: %w", url, err)
	}

	logger.Debug().
		Int("status", resp.StatusCode()).
		Dur("elapsed", time.Since(start)).
		Msg("response received")

	message, err := Unwrap(resp.Body())
	if err != nil {
		return "", err
	}
	// SOAP faults arrive with 500 and are reported above
	if resp.StatusCode() >= http.StatusBadRequest {
		return "", fmt.Errorf("%s returned HTTP %d", url, resp.StatusCode())
	}
	return message, nil
}
