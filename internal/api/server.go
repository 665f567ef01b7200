// Package api exposes the keyledger service over a JSON HTTP API.
package api

import (
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"keyledger/internal/core"
)

const sessionPath = "/api/session"

// Config carries the HTTP layer settings.
type Config struct {
	AdminEmail    string
	AdminPassword string
	SessionTTL    time.Duration
}

// ConfigFromEnv reads KEYLEDGER_ADMIN_EMAIL and KEYLEDGER_ADMIN_PASSWORD.
func ConfigFromEnv() Config {
	return Config{
		AdminEmail:    os.Getenv("KEYLEDGER_ADMIN_EMAIL"),
		AdminPassword: os.Getenv("KEYLEDGER_ADMIN_PASSWORD"),
	}
}

// Server routes HTTP requests to the service.
type Server struct {
	svc    *core.Service
	auth   *Auth
	logger core.Logger
	router *mux.Router
	// createMu spans a duplicate check and the insert that follows it.
	createMu sync.Mutex
}

// NewServer builds the router. A nil logger discards request logs.
func NewServer(svc *core.Service, cfg Config, logger core.Logger) (*Server, error) {
	auth, err := NewAuth(cfg.AdminEmail, cfg.AdminPassword, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = discardLogger{}
	}
	s := &Server{svc: svc, auth: auth, logger: logger}
	s.router = s.routes()
	return s, nil
}

// Router exposes the mux so the binary can mount extra handlers.
func (s *Server) Router() *mux.Router { return s.router }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.logRequests)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.auth.Middleware)

	api.HandleFunc("/session", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/session", s.handleLogout).Methods(http.MethodDelete)

	api.HandleFunc("/product-keys", s.handleListProductKeys).Methods(http.MethodGet)
	api.HandleFunc("/product-keys", s.handleCreateProductKey).Methods(http.MethodPost)
	api.HandleFunc("/product-keys/generate", s.handleGenerateProductKey).Methods(http.MethodGet)
	api.HandleFunc("/product-keys/{id}", s.handleUpdateProductKey).Methods(http.MethodPut)
	api.HandleFunc("/product-keys/{id}", s.handleDeleteProductKey).Methods(http.MethodDelete)

	api.HandleFunc("/categories", s.handleListCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories", s.handleCreateCategory).Methods(http.MethodPost)
	api.HandleFunc("/categories/{id}", s.handleUpdateCategory).Methods(http.MethodPut)
	api.HandleFunc("/categories/{id}", s.handleDeleteCategory).Methods(http.MethodDelete)

	api.HandleFunc("/customers", s.handleListCustomers).Methods(http.MethodGet)
	api.HandleFunc("/customers", s.handleCreateCustomer).Methods(http.MethodPost)
	api.HandleFunc("/customers/{id}", s.handleUpdateCustomer).Methods(http.MethodPut)
	api.HandleFunc("/customers/{id}", s.handleDeleteCustomer).Methods(http.MethodDelete)

	api.HandleFunc("/allocations", s.handleListAllocations).Methods(http.MethodGet)
	api.HandleFunc("/allocations", s.handleAllocate).Methods(http.MethodPost)
	api.HandleFunc("/allocations/{productKeyId}", s.handleDeallocate).Methods(http.MethodDelete)

	api.HandleFunc("/inventory", s.handleListInventory).Methods(http.MethodGet)
	api.HandleFunc("/inventory", s.handleCreateInventoryItem).Methods(http.MethodPost)
	api.HandleFunc("/inventory/{id}", s.handleUpdateInventoryItem).Methods(http.MethodPut)
	api.HandleFunc("/inventory/{id}", s.handleDeleteInventoryItem).Methods(http.MethodDelete)
	api.HandleFunc("/inventory/{id}/purchases", s.handleRecordPurchase).Methods(http.MethodPost)
	api.HandleFunc("/inventory/{id}/usages", s.handleRecordUsage).Methods(http.MethodPost)

	api.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration_ms", time.Since(started).Milliseconds())
	})
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}
