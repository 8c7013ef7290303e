package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rezonia/nfse-abrasf/internal/abrasf"
	"github.com/rezonia/nfse-abrasf/internal/model"
	"github.com/rezonia/nfse-abrasf/internal/processor"
	"github.com/rezonia/nfse-abrasf/internal/signature"
	"github.com/rezonia/nfse-abrasf/internal/signature/trust"
	"github.com/rezonia/nfse-abrasf/internal/signature/xml"
)

// RequestIDHeader carries the id assigned to every API request
const RequestIDHeader = "X-Request-ID"

// Config holds server configuration
type Config struct {
	Address       string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	Debug         bool
	Issuer        abrasf.Issuer
	RemoveAccents bool
	// TrustStore backs /verify; nil means an empty store
	TrustStore *trust.TrustStore
	Logger     *zerolog.Logger
}

// Server represents the HTTP API server
type Server struct {
	config   *Config
	router   *gin.Engine
	registry *abrasf.Registry
	pipeline *processor.Pipeline
	verifier signature.Verifier
	logger   zerolog.Logger
}

// NewServer creates a new API server
func NewServer(config *Config) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := log.Logger.With().Str("component", "server").Logger()
	if config.Logger != nil {
		logger = *config.Logger
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID(logger))
	if config.Debug {
		router.Use(gin.Logger())
	}

	registry := abrasf.NewRegistry()
	s := &Server{
		config:   config,
		router:   router,
		registry: registry,
		pipeline: processor.NewPipeline(
			processor.WithRegistry(registry),
			processor.WithValidation(true),
			processor.WithRemoveAccents(config.RemoveAccents),
		),
		verifier: xml.NewXMLVerifier(config.TrustStore),
		logger:   logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/providers", s.handleProviders)

		// Mapping engine
		v1.POST("/load", s.handleLoad)
		v1.POST("/write/rps", s.handleWrite(false))
		v1.POST("/write/nfse", s.handleWrite(true))
		v1.POST("/validate", s.handleValidate)

		// Protocol operations
		v1.POST("/envelope/:operation", s.handleEnvelope)
		v1.POST("/response/:operation", s.handleResponse)

		v1.POST("/verify", s.handleVerify)
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.logger.Info().Str("address", s.config.Address).Msg("listening")
	return srv.ListenAndServe()
}

// Handler returns the http.Handler for use with custom servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// requestID tags every request with an id, echoing one sent by the caller
func requestID(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)

		start := time.Now()
		c.Next()

		logger.Debug().
			Str("request_id", id).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleProviders(c *gin.Context) {
	var out []ProviderInfo
	for _, name := range s.registry.Names() {
		v := s.registry.Get(name)
		info := ProviderInfo{Name: string(name), Namespace: v.Namespace, Schema: v.Schema}
		for _, op := range abrasf.Operations {
			if v.Supports(op) {
				info.Operations = append(info.Operations, string(op))
			}
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

func (s *Server) handleLoad(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}

	pipeline, ok := s.pipelineFor(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	result := pipeline.ProcessXMLBytes(ctx, body)
	if result.Error != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: result.Error.Error()})
		return
	}

	c.JSON(http.StatusOK, LoadResponse{
		Provider: string(result.Provider),
		Invoice:  result.Invoice,
		Issues:   result.Issues,
	})
}

func (s *Server) handleWrite(nfse bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var inv model.Invoice
		if err := c.ShouldBindJSON(&inv); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid invoice JSON", Details: err.Error()})
			return
		}

		engine, ok := s.engineFor(c)
		if !ok {
			return
		}

		write := engine.WriteRPS
		if nfse {
			write = engine.WriteNFSe
		}
		out, err := write(&inv)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(out))
	}
}

func (s *Server) handleValidate(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}

	pipeline, ok := s.pipelineFor(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	result := pipeline.ProcessXMLBytes(ctx, body)
	if result.Error != nil {
		c.JSON(http.StatusUnprocessableEntity, ValidationResponse{
			Valid:  false,
			Errors: []string{result.Error.Error()},
		})
		return
	}

	c.JSON(http.StatusOK, ValidationResponse{
		Valid:    result.Valid(),
		Provider: string(result.Provider),
		Errors:   result.Issues,
	})
}

func (s *Server) handleEnvelope(c *gin.Context) {
	op, err := abrasf.ParseOperation(c.Param("operation"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}

	var in EnvelopeRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request JSON", Details: err.Error()})
		return
	}

	engine, ok := s.engineFor(c)
	if !ok {
		return
	}

	issuer := s.config.Issuer
	if in.Issuer != nil {
		issuer = *in.Issuer
	}
	builder := abrasf.NewBuilder(engine, issuer, nil)

	req, err := build(builder, op, &in)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, model.ErrNotImplemented) {
			status = http.StatusNotImplemented
		}
		c.JSON(status, ErrorResponse{Error: err.Error()})
		return
	}

	if !req.Valid() {
		c.JSON(http.StatusUnprocessableEntity, req)
		return
	}
	c.JSON(http.StatusOK, req)
}

func build(b *abrasf.Builder, op abrasf.Operation, in *EnvelopeRequest) (*abrasf.Request, error) {
	switch op {
	case abrasf.OpSubmit:
		return b.Submit(in.Lot, in.batch())
	case abrasf.OpSubmitSync:
		return b.SubmitSync(in.Lot, in.batch())
	case abrasf.OpStatus:
		return b.Status(in.Protocol)
	case abrasf.OpBatchQuery:
		return b.BatchQuery(in.Protocol)
	case abrasf.OpRpsQuery:
		var q abrasf.RpsQuery
		if in.Rps != nil {
			q = *in.Rps
		}
		return b.RpsQuery(q)
	case abrasf.OpRangeQuery:
		var q abrasf.RangeQuery
		if in.Range != nil {
			q = *in.Range
		}
		return b.RangeQuery(q)
	case abrasf.OpCancel:
		var cr abrasf.CancelRequest
		if in.Cancel != nil {
			cr = *in.Cancel
		}
		return b.Cancel(cr)
	case abrasf.OpCancelBatch:
		return b.CancelBatch(in.batch())
	default:
		var inv *model.Invoice
		if len(in.Invoices) > 0 {
			inv = in.Invoices[0]
		}
		var number, code string
		if in.Cancel != nil {
			number, code = in.Cancel.NFSeNumber, in.Cancel.Code
		}
		return b.Substitute(inv, number, code)
	}
}

func (s *Server) handleResponse(c *gin.Context) {
	op, err := abrasf.ParseOperation(c.Param("operation"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}

	body, ok := readBody(c)
	if !ok {
		return
	}

	engine, ok := s.engineFor(c)
	if !ok {
		return
	}

	lot, _ := strconv.Atoi(c.Query("lot"))
	parser := abrasf.NewParser(engine, nil)
	batch := model.NewBatch()
	response := string(body)

	var out interface{}
	switch op {
	case abrasf.OpSubmit, abrasf.OpSubmitSync:
		res := &abrasf.SubmitResult{Result: abrasf.Result{Operation: op}, Lot: lot, Sync: op == abrasf.OpSubmitSync}
		if res.Sync {
			parser.SubmitSync(res, response, batch)
		} else {
			parser.Submit(res, response, batch)
		}
		out = res
	case abrasf.OpStatus:
		res := &abrasf.StatusResult{Result: abrasf.Result{Operation: op}, Protocol: c.Query("protocol")}
		parser.Status(res, response)
		out = res
	case abrasf.OpBatchQuery:
		res := &abrasf.BatchQueryResult{Result: abrasf.Result{Operation: op}, Protocol: c.Query("protocol")}
		parser.BatchQuery(res, response, batch)
		out = res
	case abrasf.OpRpsQuery:
		res := &abrasf.RpsQueryResult{Result: abrasf.Result{Operation: op}}
		parser.RpsQuery(res, response, batch)
		out = res
	case abrasf.OpRangeQuery:
		res := &abrasf.RangeQueryResult{Result: abrasf.Result{Operation: op}}
		parser.RangeQuery(res, response, batch)
		out = res
	case abrasf.OpCancel:
		res := &abrasf.CancelResult{Result: abrasf.Result{Operation: op}}
		parser.Cancel(res, response, batch)
		out = res
	default:
		c.JSON(http.StatusNotImplemented, ErrorResponse{
			Error: model.NewUnsupportedError(engine.Variant().Name, string(op)).Error(),
		})
		return
	}

	c.JSON(http.StatusOK, out)
}

func (s *Server) handleVerify(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	report, err := s.verifier.Verify(ctx, body)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "signature verification failed", Details: err.Error()})
		return
	}

	if report.Valid {
		c.JSON(http.StatusOK, report)
	} else {
		c.JSON(http.StatusUnprocessableEntity, report)
	}
}

// Helper functions

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read request body"})
		return nil, false
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "empty request body"})
		return nil, false
	}
	return body, true
}

// variantFor resolves the ?provider= query parameter. An absent parameter
// returns nil, leaving the choice to detection or the baseline.
func (s *Server) variantFor(c *gin.Context) (*abrasf.Variant, bool) {
	name := c.Query("provider")
	if name == "" {
		return nil, true
	}
	v := s.registry.Get(model.Provider(name))
	if v == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown provider " + strconv.Quote(name)})
		return nil, false
	}
	return v, true
}

func (s *Server) engineFor(c *gin.Context) (*abrasf.Engine, bool) {
	v, ok := s.variantFor(c)
	if !ok {
		return nil, false
	}
	return abrasf.NewEngine(v, abrasf.WithRemoveAccents(s.config.RemoveAccents)), true
}

func (s *Server) pipelineFor(c *gin.Context) (*processor.Pipeline, bool) {
	v, ok := s.variantFor(c)
	if !ok {
		return nil, false
	}
	if v == nil {
		return s.pipeline, true
	}
	return processor.NewPipeline(
		processor.WithVariant(v),
		processor.WithValidation(true),
		processor.WithRemoveAccents(s.config.RemoveAccents),
	), true
}
