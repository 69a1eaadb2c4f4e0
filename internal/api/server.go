package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/routegroup"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/andrey/allowlist-attestor/docs"
	"github.com/andrey/allowlist-attestor/internal/api/handlers"
	"github.com/andrey/allowlist-attestor/internal/api/middleware"
	"github.com/andrey/allowlist-attestor/internal/config"
)

// Server is the HTTP boundary (C6): routing, middleware, and the bounded
// http.Server lifecycle.
type Server struct {
	proposals handlers.ProposalStore
	proofs    handlers.ProofGenerator
	logger    lgr.L
	config    *config.Config
}

// NewServer builds a Server bound to the proposal store and proof service.
func NewServer(proposals handlers.ProposalStore, proofs handlers.ProofGenerator, logger lgr.L, cfg *config.Config) *Server {
	return &Server{proposals: proposals, proofs: proofs, logger: logger, config: cfg}
}

// SetupRoutes configures all HTTP routes and middleware.
func (s *Server) SetupRoutes() http.Handler {
	healthHandler := handlers.NewHealthHandler(s.logger, s.checkProposalStore)
	proposalHandler := handlers.NewProposalHandler(s.proposals, s.proofs, s.logger)

	router := routegroup.New(http.NewServeMux())

	router.Use(rest.RealIP)
	router.Use(rest.Trace)
	router.Use(rest.SizeLimit(1024 * 1024)) // 1MB request size limit
	router.Use(middleware.Logging(s.logger))
	router.Use(middleware.Recovery(s.logger))
	router.Use(rest.AppInfo("allowlist-attestor", "andrey", "1.0.0"))
	router.Use(rest.Ping)

	router.HandleFunc("GET /health", healthHandler.HandleHealth)
	router.HandleFunc("GET /swagger/*", httpSwagger.Handler())

	router.HandleFunc("GET /proposal", proposalHandler.HandleList)
	router.HandleFunc("POST /proposal", proposalHandler.HandleCreate)
	router.HandleFunc("GET /proposal/{id}", proposalHandler.HandleGet)
	router.HandleFunc("GET /proposal/{id}/csv", proposalHandler.HandleCSV)
	router.HandleFunc("POST /proposal/{id}/inclusion_proof", proposalHandler.HandleInclusionProof)
	router.HandleFunc("POST /proposal/{id}/absense_proof", proposalHandler.HandleAbsenceProof)

	return router
}

// Start wraps SetupRoutes in a per-request timeout and runs the HTTP
// server with hardened socket-level timeouts.
func (s *Server) Start() error {
	timeout := time.Duration(s.config.Server.RequestTimeoutSeconds) * time.Second
	handler := http.TimeoutHandler(s.SetupRoutes(), timeout, `{"error":"request timed out"}`)

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.logger.Logf("INFO starting server on %s", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

func (s *Server) checkProposalStore() error {
	if s.proposals == nil {
		return fmt.Errorf("proposal store not initialized")
	}
	return nil
}
