package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/opensnatch/snatchd/pkg/events"
	"github.com/opensnatch/snatchd/pkg/metrics"
	"github.com/opensnatch/snatchd/pkg/oci"
	"github.com/opensnatch/snatchd/pkg/profile"
	"github.com/opensnatch/snatchd/pkg/registry"
	"github.com/opensnatch/snatchd/pkg/types"
	"github.com/opensnatch/snatchd/pkg/worker"
)

// DefaultRequestTimeout bounds every handler; exceeding it returns 504.
const DefaultRequestTimeout = 30 * time.Second

// ClientFactory builds a profile's client bundle, optionally validating
// credentials first.
type ClientFactory func(ctx context.Context, p *types.Profile, validate bool) (*oci.Clients, error)

// Server is the REST surface of the orchestrator.
type Server struct {
	registry *registry.Registry
	profiles *profile.Store
	pool     *worker.Pool
	broker   *events.Broker
	clients  ClientFactory
	sessions *sessionStore

	apiKey  string
	timeout time.Duration
}

// Config carries the server's construction parameters.
type Config struct {
	Registry *registry.Registry
	Profiles *profile.Store
	Pool     *worker.Pool
	Broker   *events.Broker

	// APIKey enables Bearer authentication when non-empty.
	APIKey string
	// Timeout overrides DefaultRequestTimeout when positive.
	Timeout time.Duration
}

// NewServer creates a server with production wiring.
func NewServer(cfg Config) *Server {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Server{
		registry: cfg.Registry,
		profiles: cfg.Profiles,
		pool:     cfg.Pool,
		broker:   cfg.Broker,
		clients:  oci.NewClients,
		sessions: newSessionStore(),
		apiKey:   cfg.APIKey,
		timeout:  timeout,
	}
}

// publish mirrors a handler-side state change onto the broker.
func (s *Server) publish(ev *events.Event) {
	if s.broker != nil {
		s.broker.Publish(ev)
	}
}

// webOriginated reports whether the request carries a live panel
// session. Session-driven actions skip Telegram: the operator is
// already looking at the result.
func (s *Server) webOriginated(r *http.Request) bool {
	_, ok := s.sessionAlias(r)
	return ok
}

// SetClientFactory replaces the SDK client factory.
func (s *Server) SetClientFactory(f ClientFactory) { s.clients = f }

// Router assembles the chi router with the full endpoint set.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.metricsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(s.timeoutMiddleware)

		r.Get("/profiles", s.handleListProfiles)
		r.Post("/profiles", s.handleUpsertProfile)
		r.Get("/profiles/{alias}", s.handleGetProfile)
		r.Delete("/profiles/{alias}", s.handleDeleteProfile)
		r.Post("/profiles/order", s.handleSetProfileOrder)

		r.Post("/session", s.handleOpenSession)

		r.Get("/instances", s.handleListInstancesSession)
		r.Get("/{alias}/instances", s.handleListInstances)
		r.Post("/{alias}/instance-action", s.handleInstanceAction)
		r.Post("/{alias}/launch-instance", s.handleLaunchInstance)
		r.Post("/{alias}/create-instance", s.handleCreateInstance)

		r.Get("/tasks/snatching/running", s.handleRunningSnatches)
		r.Get("/tasks/snatching/completed", s.handleCompletedSnatches)
		r.Get("/task_status/{id}", s.handleTaskStatus)
		r.Post("/tasks/{id}/stop", s.handleStopTask)
		r.Post("/tasks/resume", s.handleResumeTasks)
		r.Delete("/tasks/{id}", s.handleDeleteTask)

		r.Get("/tg-config", s.handleGetTelegramConfig)
		r.Post("/tg-config", s.handleSetTelegramConfig)
		r.Get("/cloudflare-config", s.handleGetCloudflareConfig)
		r.Post("/cloudflare-config", s.handleSetCloudflareConfig)
		r.Get("/default-ssh-key", s.handleGetDefaultSSHKey)
		r.Post("/default-ssh-key", s.handleSetDefaultSSHKey)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON renders v with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders the uniform error envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON decodes the request body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
