package trust

import (
	"context"
	"crypto"
	"crypto/x509"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/crypto/ocsp"
)

const (
	// DefaultOCSPTimeout bounds one responder round trip
	DefaultOCSPTimeout = 10 * time.Second
	// DefaultOCSPCacheTTL is how long a responder answer is reused
	DefaultOCSPCacheTTL = time.Hour
)

// OCSPCache remembers responder answers keyed by issuer and serial number.
// Expired entries are dropped on lookup.
type OCSPCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	answers map[string]cachedAnswer
}

type cachedAnswer struct {
	good  bool
	until time.Time
}

// NewOCSPCache creates an empty cache whose entries live for ttl
func NewOCSPCache(ttl time.Duration) *OCSPCache {
	return &OCSPCache{ttl: ttl, answers: map[string]cachedAnswer{}}
}

// Get reports the cached answer for cert and whether one was found
func (c *OCSPCache) Get(cert *x509.Certificate) (notRevoked bool, found bool) {
	if cert == nil {
		return false, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := serialKey(cert)
	a, ok := c.answers[key]
	if !ok {
		return false, false
	}
	if !time.Now().Before(a.until) {
		delete(c.answers, key)
		return false, false
	}
	return a.good, true
}

// Set stores the answer for cert; nil is ignored
func (c *OCSPCache) Set(cert *x509.Certificate, notRevoked bool) {
	if cert == nil {
		return
	}
	c.mu.Lock()
	c.answers[serialKey(cert)] = cachedAnswer{good: notRevoked, until: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Clear forgets every answer
func (c *OCSPCache) Clear() {
	c.mu.Lock()
	clear(c.answers)
	c.mu.Unlock()
}

// Size returns the number of stored answers, expired ones included
func (c *OCSPCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.answers)
}

func serialKey(cert *x509.Certificate) string {
	return cert.Issuer.String() + "#" + cert.SerialNumber.Text(16)
}

// OCSPClient queries OCSP responders over HTTP
type OCSPClient struct {
	http *resty.Client
}

// NewOCSPClient creates a responder client with the given timeout
func NewOCSPClient(timeout time.Duration) *OCSPClient {
	return &OCSPClient{
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/ocsp-request").
			SetHeader("Accept", "application/ocsp-response"),
	}
}

// Check performs an OCSP check for a certificate, trying every advertised responder
func (c *OCSPClient) Check(ctx context.Context, cert, issuer *x509.Certificate) (revoked bool, err error) {
	if len(cert.OCSPServer) == 0 {
		return false, fmt.Errorf("no OCSP server URL in certificate")
	}

	ocspRequest, err := ocsp.CreateRequest(cert, issuer, &ocsp.RequestOptions{
		Hash: crypto.SHA256,
	})
	if err != nil {
		return false, fmt.Errorf("failed to create OCSP request: %w", err)
	}

	var lastErr error
	for _, server := range cert.OCSPServer {
		revoked, err := c.query(ctx, server, ocspRequest, issuer)
		if err == nil {
			return revoked, nil
		}
		lastErr = err
	}

	return false, fmt.Errorf("all OCSP servers failed: %w", lastErr)
}

func (c *OCSPClient) query(ctx context.Context, serverURL string, request []byte, issuer *x509.Certificate) (revoked bool, err error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(request).
		Post(serverURL)
	if err != nil {
		return false, fmt.Errorf("OCSP request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return false, fmt.Errorf("OCSP server returned status %d", resp.StatusCode())
	}

	ocspResp, err := ocsp.ParseResponseForCert(resp.Body(), nil, issuer)
	if err != nil {
		return false, fmt.Errorf("failed to parse OCSP response: %w", err)
	}

	switch ocspResp.Status {
	case ocsp.Good:
		return false, nil
	case ocsp.Revoked:
		return true, nil
	case ocsp.Unknown:
		return false, fmt.Errorf("OCSP status unknown")
	default:
		return false, fmt.Errorf("unexpected OCSP status: %d", ocspResp.Status)
	}
}
