package api

import (
	"errors"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"

	"DiceVault/internal/dice"
	"DiceVault/internal/ledger"
	"DiceVault/internal/logger"
	"DiceVault/internal/metrics"
)

const (
	// maxTxSize is the maximum instruction size in bytes.
	maxTxSize = 64 << 10 // 64 KB

	// shutdownTimeout bounds graceful shutdown.
	shutdownTimeout = 5 * time.Second
)

// Config holds the server's dependencies.
type Config struct {
	Addr    string           // Addr is the HTTP listen address
	Engine  *dice.Engine     // Engine settles wagers
	Ledger  *ledger.Ledger   // Ledger holds token accounts
	Metrics *metrics.Metrics // Metrics is served at /metrics (optional)
	Faucet  bool             // Faucet enables POST /faucet
}

// Server is the HTTP API server.
type Server struct {
	addr    string             // addr is the HTTP listen address
	app     *fiber.App         // app routes requests
	engine  *dice.Engine       // engine settles wagers
	ledger  *ledger.Ledger     // ledger holds token accounts
	metrics *metrics.Metrics   // metrics counts requests
	log     *zap.SugaredLogger // log tags entries with the api component
	ln      net.Listener       // ln is set by Start
}

// New creates the server and registers its routes.
func New(cfg Config) *Server {
	s := &Server{
		addr:    cfg.Addr,
		engine:  cfg.Engine,
		ledger:  cfg.Ledger,
		metrics: cfg.Metrics,
		log:     logger.With("component", "api"),
	}

	s.app = fiber.New(fiber.Config{
		BodyLimit:             maxTxSize,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          handleError,
	})

	s.app.Use(s.countRequests)

	s.app.Post("/tx", s.handleSubmitTx)
	s.app.Get("/pools/:id", s.handlePool)
	s.app.Get("/accounts/:id", s.handleAccount)
	s.app.Get("/authority/:pool", s.handleAuthority)
	s.app.Get("/settlements", s.handleSettlements)
	s.app.Get("/health", s.handleHealth)

	if cfg.Faucet {
		s.app.Post("/faucet", s.handleFaucet)
	}

	if cfg.Metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	return s
}

// App exposes the router, mainly for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start binds the listen address and serves in a goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.ln = ln

	go func() {
		s.log.Infow("http api started", "addr", ln.Addr().String())

		if err := s.app.Listener(ln); err != nil {
			s.log.Errorw("http server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}

	return s.addr
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.ln == nil {
		return nil
	}

	return s.app.ShutdownWithTimeout(shutdownTimeout)
}

// countRequests records each request by its route pattern.
func (s *Server) countRequests(c *fiber.Ctx) error {
	err := c.Next()
	s.metrics.ObserveRequest(c.Method(), c.Route().Path)

	return err
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleError renders every error as {"error", "kind"} JSON.
func handleError(c *fiber.Ctx, err error) error {
	status := statusOf(err)

	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}

	if status >= fiber.StatusInternalServerError {
		logger.Error("request failed", "path", c.Path(), "error", err)
	}

	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
		"kind":  kindOf(err),
	})
}
