// Package config loads the service configuration.
//
// Sources are applied in order: an optional .env file (joho/godotenv),
// an optional YAML file with ${VAR} expansion, then NFSE_* environment
// variables. The result is validated before use.
//
// # Example
//
//	provider: SimplISS
//	environment: homologation
//	issuer:
//	  tax_id: "12345678000199"
//	  municipal_registration: "123456"
//	  municipality_code: 3550308
//	certificate:
//	  cert_file: /etc/nfse/cert.pem
//	  key_file: /etc/nfse/key.pem
//	endpoints:
//	  default: https://homologacao.example.gov.br/nfse.svc
//	storage:
//	  dir: /var/lib/nfse
//	  split_by_month: true
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rezonia/nfse-abrasf/internal/abrasf"
	"github.com/rezonia/nfse-abrasf/internal/logger"
	"github.com/rezonia/nfse-abrasf/internal/model"
	"github.com/rezonia/nfse-abrasf/internal/transport"
)

// Environment of the authority web service
const (
	Production   = "production"
	Homologation = "homologation"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "NFSE_"

// Config is the root configuration structure
type Config struct {
	Provider      string        `yaml:"provider"`
	Environment   string        `yaml:"environment"`
	Issuer        abrasf.Issuer `yaml:"issuer"`
	RemoveAccents bool          `yaml:"remove_accents"`

	Certificate CertificateConfig `yaml:"certificate"`
	Endpoints   EndpointsConfig   `yaml:"endpoints"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Storage     StorageConfig     `yaml:"storage"`
	Log         logger.Config     `yaml:"log"`
	Server      ServerConfig      `yaml:"server"`

	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// CertificateConfig points at the signing key pair and the trust roots
type CertificateConfig struct {
	CertFile  string `yaml:"cert_file"`
	KeyFile   string `yaml:"key_file"`
	RootsFile string `yaml:"roots_file"`
	// OCSPSoftFail keeps verification valid when responders are unreachable
	OCSPSoftFail bool `yaml:"ocsp_soft_fail"`
	SkipOCSP     bool `yaml:"skip_ocsp"`
}

// EndpointsConfig holds the web service URLs
type EndpointsConfig struct {
	Default    string            `yaml:"default"`
	Operations map[string]string `yaml:"operations"`
}

// CredentialsConfig holds inline SOAP credentials (SimplISS)
type CredentialsConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// StorageConfig configures the document store
type StorageConfig struct {
	Dir          string `yaml:"dir"`
	SaveRps      *bool  `yaml:"save_rps"`
	SaveNFSe     *bool  `yaml:"save_nfse"`
	SplitByMonth bool   `yaml:"split_by_month"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string        `yaml:"address"`
	Debug        bool          `yaml:"debug"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Provider:    string(model.ProviderABRASF),
		Environment: Homologation,
		Log:         logger.DefaultConfig(),
		HTTPTimeout: transport.DefaultTimeout,
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
	}
}

// Load reads .env, then path (when not empty), then the environment
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}
	var errs error
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("PROVIDER", &c.Provider)
	str("ENVIRONMENT", &c.Environment)
	str("ISSUER_TAX_ID", &c.Issuer.TaxID)
	str("ISSUER_MUNICIPAL_REGISTRATION", &c.Issuer.MunicipalRegistration)
	if v, ok := os.LookupEnv(EnvPrefix + "ISSUER_MUNICIPALITY_CODE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%sISSUER_MUNICIPALITY_CODE: %w", EnvPrefix, err))
		} else {
			c.Issuer.MunicipalityCode = n
		}
	}
	str("CERT_FILE", &c.Certificate.CertFile)
	str("KEY_FILE", &c.Certificate.KeyFile)
	str("ROOTS_FILE", &c.Certificate.RootsFile)
	boolean("OCSP_SOFT_FAIL", &c.Certificate.OCSPSoftFail)
	boolean("SKIP_OCSP", &c.Certificate.SkipOCSP)
	str("ENDPOINT", &c.Endpoints.Default)
	str("USER", &c.Credentials.User)
	str("PASSWORD", &c.Credentials.Password)
	str("STORAGE_DIR", &c.Storage.Dir)
	boolean("STORAGE_SPLIT_BY_MONTH", &c.Storage.SplitByMonth)
	boolean("REMOVE_ACCENTS", &c.RemoveAccents)
	duration("HTTP_TIMEOUT", &c.HTTPTimeout)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("SERVER_ADDRESS", &c.Server.Address)
	boolean("SERVER_DEBUG", &c.Server.Debug)

	return errs
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs error

	if c.Environment != Production && c.Environment != Homologation {
		errs = multierror.Append(errs, fmt.Errorf("environment must be %q or %q, got %q", Production, Homologation, c.Environment))
	}
	if _, err := c.Variant(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if id := c.Issuer.TaxID; id != "" && !model.IsCPF(id) && !model.IsCNPJ(id) {
		errs = multierror.Append(errs, fmt.Errorf("issuer.tax_id %q is not a CPF or CNPJ", c.Issuer.TaxID))
	}
	if (c.Certificate.CertFile == "") != (c.Certificate.KeyFile == "") {
		errs = multierror.Append(errs, fmt.Errorf("certificate.cert_file and certificate.key_file must be set together"))
	}
	for op := range c.Endpoints.Operations {
		if _, err := abrasf.ParseOperation(op); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("endpoints.operations: unknown operation %q", op))
		}
	}
	if c.HTTPTimeout < 0 {
		errs = multierror.Append(errs, fmt.Errorf("http_timeout must not be negative"))
	}

	return errs
}

// Variant resolves the configured provider
func (c *Config) Variant() (*abrasf.Variant, error) {
	registry := abrasf.NewRegistry()
	if v := registry.Get(model.Provider(c.Provider)); v != nil {
		return v, nil
	}
	return nil, fmt.Errorf("unknown provider %q, expected one of %v", c.Provider, registry.Names())
}

// Transport returns the transport settings
func (c *Config) Transport() transport.Config {
	endpoints := make(map[abrasf.Operation]string, len(c.Endpoints.Operations))
	for name, url := range c.Endpoints.Operations {
		if op, err := abrasf.ParseOperation(name); err == nil {
			endpoints[op] = url
		}
	}
	return transport.Config{
		Endpoints: endpoints,
		Default:   c.Endpoints.Default,
		User:      c.Credentials.User,
		Password:  c.Credentials.Password,
		Timeout:   c.HTTPTimeout,
	}
}

// SaveRpsEnabled reports whether outgoing RPS are persisted (default true)
func (s StorageConfig) SaveRpsEnabled() bool {
	return s.SaveRps == nil || *s.SaveRps
}

// SaveNFSeEnabled reports whether received NFSe are persisted (default true)
func (s StorageConfig) SaveNFSeEnabled() bool {
	return s.SaveNFSe == nil || *s.SaveNFSe
}
