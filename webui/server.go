package webui

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"smartnotes/core"
	"smartnotes/db"
	"smartnotes/extractor"
	"smartnotes/handlers"
	"smartnotes/logging"
	"smartnotes/metrics"
	"smartnotes/orchestrator"
)

// Server is the HTTP organism wiring the page, the JSON API, downloads,
// auth, and the websocket hub in front of the orchestrator.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	config     ServerConfig

	orch      *orchestrator.Orchestrator
	repo      *db.Repository
	collector metrics.Collector
	hub       *Hub
	auth      *Authenticator
	loggingMw *LoggingMiddleware
	log       *logging.Logger
}

// ServerConfig configures the Server.
type ServerConfig struct {
	// Host to bind to
	Host string
	// Port to listen on
	Port int
	// UploadsDir is where uploaded files are stored
	UploadsDir string
	// MaxUploadBytes caps upload size (0 = handlers.DefaultMaxUploadBytes)
	MaxUploadBytes int64
	// Password enables session auth when non-empty
	Password string
	// SessionTTL for authenticated sessions
	SessionTTL time.Duration
	// ReadTimeout for requests
	ReadTimeout time.Duration
	// WriteTimeout for responses. Generation runs block the request, so
	// this must exceed the processing timeout.
	WriteTimeout time.Duration
	// IdleTimeout for keep-alive connections
	IdleTimeout time.Duration
	// ShutdownTimeout for graceful shutdown
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns defaults matching a local deployment.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            5000,
		UploadsDir:      "./uploads",
		MaxUploadBytes:  handlers.DefaultMaxUploadBytes,
		SessionTTL:      24 * time.Hour,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    16 * time.Minute,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Deps carries the server's dependencies. Hub is optional; passing one
// lets the caller wire the orchestrator's progress reporter to the same
// hub the server exposes at /ws.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Repo         *db.Repository
	Collector    metrics.Collector
	Hub          *Hub
	Logger       *logging.Logger
}

// NewServer wires up routes, middleware, auth (when a password is
// configured), and the websocket hub.
func NewServer(config ServerConfig, deps Deps) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = handlers.DefaultMaxUploadBytes
	}
	hub := deps.Hub
	if hub == nil {
		hub = NewHub(logger)
	}

	s := &Server{
		mux:       http.NewServeMux(),
		config:    config,
		orch:      deps.Orchestrator,
		repo:      deps.Repo,
		collector: deps.Collector,
		hub:       hub,
		loggingMw: NewLoggingMiddleware(logger, []string{"/health", "/api/status"}),
		log:       logger.Named("webui"),
	}

	if config.Password != "" {
		auth, err := NewAuthenticator(config.Password, AuthConfig{SessionTTL: config.SessionTTL}, logger)
		if err != nil {
			return nil, fmt.Errorf("auth setup: %w", err)
		}
		s.auth = auth
	}

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.loggingMw.Handler(s.mux),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	s.log.Infow("server created", "addr", addr, "auth_enabled", s.auth != nil)
	return s, nil
}

func (s *Server) setupRoutes() {
	// Unauthenticated endpoints.
	s.mux.HandleFunc("/health", s.handleHealth)
	if s.auth != nil {
		s.mux.HandleFunc("/login", s.auth.LoginHandler())
		s.mux.HandleFunc("/logout", s.auth.LogoutHandler())
	}

	// Everything else sits behind auth when enabled.
	s.protect("/", s.handleIndex)
	s.protect("/upload", s.handleUpload)
	s.protect("/documents", s.handleListDocuments)
	s.protect("/load_document/", s.handleLoadDocument)
	s.protect("/update_granularity", s.handleUpdateGranularity)
	s.protect("/merge_topics", s.handleMergeTopics)
	s.protect("/generate_notes", s.handleGenerateNotes)
	s.protect("/instruction", s.handleInstruction)
	s.protect("/download", s.handleDownload)
	s.protect("/download_all", s.handleDownloadAll)
	s.protect("/view", s.handleView)
	s.protect("/api/status", s.handleStatus)
	s.protect("/ws", s.hub.HandleConnection)
}

func (s *Server) protect(pattern string, handler http.HandlerFunc) {
	if s.auth != nil {
		s.mux.Handle(pattern, s.auth.Middleware(handler))
		return
	}
	s.mux.HandleFunc(pattern, handler)
}

// Hub returns the websocket hub; it implements handlers.ProgressSink so
// the orchestrator's progress reporter can publish into it.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start runs the hub and listens for HTTP requests. Blocks until the
// server shuts down.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	if s.auth != nil {
		s.auth.Sessions().StartCleanupTicker(ctx, 5*time.Minute)
		s.auth.Limiter().StartCleanupTicker(ctx, 5*time.Minute)
	}

	s.log.Infow("server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Infow("server stopped")
	return nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	docs, err := s.repo.ListDocuments(r.Context())
	if err != nil {
		s.log.Errorw("list documents failed", "error", err.Error())
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	renderIndex(w, indexData{
		Documents:    documentSummaries(docs),
		AuthEnabled:  s.auth != nil,
		MaxUploadMB:  s.config.MaxUploadBytes >> 20,
		SupportedExt: supportedExtensions(),
	})
}

func supportedExtensions() []string {
	return extractor.SupportedExtensions()
}

// documentSummary is the JSON/template shape for a document row.
type documentSummary struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Granularity int       `json:"granularity"`
	CreatedAt   time.Time `json:"created_at"`
}

func documentSummaries(docs []db.DocumentRecord) []documentSummary {
	out := make([]documentSummary, 0, len(docs))
	for _, doc := range docs {
		out = append(out, documentSummary{
			ID:          doc.ID,
			Filename:    doc.Filename,
			Granularity: doc.Granularity,
			CreatedAt:   doc.CreatedAt,
		})
	}
	return out
}

// noteSummary is the JSON shape for a note.
type noteSummary struct {
	TopicID string      `json:"topic_id"`
	Title   string      `json:"title"`
	Content string      `json:"content"`
	Format  core.Format `json:"format"`
}

func noteSummaries(notes []db.NoteRecord) []noteSummary {
	out := make([]noteSummary, 0, len(notes))
	for _, note := range notes {
		out = append(out, noteSummary{
			TopicID: note.TopicID,
			Title:   note.Title,
			Content: note.Content,
			Format:  note.Format,
		})
	}
	return out
}
