package services

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"github.com/curatorlabs/curator/asr"
	"github.com/curatorlabs/curator/llm"
	"github.com/curatorlabs/curator/pdfcards"
	"github.com/curatorlabs/curator/repository"
	"github.com/curatorlabs/curator/srs"
	ws "github.com/curatorlabs/curator/websocket"
)

// Server holds all server dependencies
type Server struct {
	config *Config
	gormDB *repository.GORMRepository
	rawDB  *gorm.DB

	llmClient   llm.Client
	transcriber asr.Transcriber
	lecture     *asr.LectureTranslatorClient

	store             *srs.Store
	files             *FileStore
	actionService     *ActionService
	collectionService *CollectionService
	streamService     *StreamService
	generator         *pdfcards.Generator

	authService      *AuthService
	authEndpoints    *AuthEndpoints
	apiEndpoints     *APIEndpoints
	websocketHandler *WebSocketHandler
	wsHub            *ws.Hub
	upgrader         websocket.Upgrader
}

// NewServer creates a new server instance
func NewServer(config *Config) *Server {
	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return CheckOrigin(r, config.WebSocket.AllowedOrigins)
			},
		},
	}
}

// SetDatabase sets the database connection
func (s *Server) SetDatabase(db *repository.GORMRepository, rawDB *gorm.DB) {
	s.gormDB = db
	s.rawDB = rawDB
}

// InitializeServices initializes all server services
func (s *Server) InitializeServices() error {
	ctx := context.Background()

	// Language model backend
	switch s.config.LLM.Backend {
	case "lmstudio":
		if s.config.LLM.LMStudioURL != "" {
			s.llmClient = llm.NewLoggingClient(llm.NewLMStudioClient(s.config.LLM.LMStudioURL, s.config.LLM.LMStudioModel))
			slog.Info("LM Studio client initialized", "url", s.config.LLM.LMStudioURL)
		} else {
			slog.Warn("LM Studio backend selected but LMSTUDIO_BASE_URL not set")
		}
	default:
		if s.config.LLM.GeminiAPIKey != "" {
			client, err := llm.NewGeminiClient(ctx, s.config.LLM.GeminiAPIKey, s.config.LLM.GeminiModel)
			if err != nil {
				return err
			}
			s.llmClient = llm.NewLoggingClient(client)
			slog.Info("Gemini client initialized")
		} else {
			slog.Warn("Gemini backend selected but GEMINI_API_KEY not set")
		}
	}

	// Speech recognition backend
	switch s.config.ASR.Backend {
	case "lecture_translator":
		if s.config.ASR.LectureTranslatorURL != "" {
			s.lecture = asr.NewLectureTranslatorClient(s.config.ASR.LectureTranslatorURL, s.config.ASR.LectureTranslatorAuth)
			slog.Info("Lecture Translator client initialized", "url", s.config.ASR.LectureTranslatorURL)
		} else {
			slog.Warn("Lecture Translator backend selected but ASR_LECTURE_TRANSLATOR_URL not set")
		}
	default:
		if s.config.LLM.GeminiAPIKey != "" {
			transcriber, err := asr.NewGeminiTranscriber(ctx, s.config.LLM.GeminiAPIKey, s.config.GeminiASRModel())
			if err != nil {
				return err
			}
			s.transcriber = transcriber
			slog.Info("Gemini transcriber initialized")
		} else {
			slog.Warn("Gemini ASR backend selected but GEMINI_API_KEY not set")
		}
	}

	// Collection storage and services
	if s.gormDB != nil && s.rawDB != nil {
		s.store = srs.NewStore(repository.NewSRSRepository(s.rawDB))
		s.files = NewFileStore(s.config.Storage.Dir, s.gormDB)
		if count, size, err := s.files.Stats(); err == nil {
			slog.Info("Package storage ready", "files", count, "bytes", size)
		}
		s.collectionService = NewCollectionService(s.store, s.files)
		slog.Info("Collection services initialized", "storage_dir", s.config.Storage.Dir)

		if s.config.Database.SeedDemoData {
			seeder := NewDatabaseSeeder(s.gormDB, s.store)
			if err := seeder.SeedDatabase(ctx); err != nil {
				slog.Error("Database seeding failed", "error", err)
			}
		}
	}

	var convRepo *repository.ConversationRepository
	if s.rawDB != nil {
		convRepo = repository.NewConversationRepository(s.rawDB)
	}

	if s.store != nil && s.llmClient != nil && convRepo != nil {
		s.actionService = NewActionService(
			convRepo,
			s.store,
			s.llmClient,
			s.transcriber,
			s.config.LLM.FuzzyThreshold,
			s.config.Conversation.HistoryLimit,
		)
		slog.Info("Action service initialized")
	}

	if s.llmClient != nil {
		s.generator = pdfcards.NewGenerator(s.llmClient)
		slog.Info("PDF card generator initialized")
	}

	// Streaming recognition
	if s.lecture != nil {
		s.streamService = NewStreamService(nil, s.lecture)
		slog.Info("Stream service initialized", "backend", "lecture_translator")
	} else if s.transcriber != nil {
		s.streamService = NewStreamService(asr.NewStreamManager(s.transcriber), nil)
		slog.Info("Stream service initialized", "backend", s.transcriber.Description())
	}

	// Authentication
	if s.config.JWT.Secret != "" && s.gormDB != nil {
		s.authService = NewAuthService(s.gormDB, s.config.JWT.Secret)
		s.authEndpoints = NewAuthEndpoints(s.authService)
		slog.Info("Authentication service initialized")
	}

	// REST endpoints
	if s.files != nil && s.collectionService != nil {
		s.apiEndpoints = NewAPIEndpoints(s.files, s.collectionService, s.store, convRepo, s.transcriber, s.generator)
	}

	// WebSocket handler
	if s.gormDB != nil && s.actionService != nil && s.collectionService != nil {
		s.websocketHandler = NewWebSocketHandler(s.gormDB, s.actionService, s.collectionService, s.streamService)
		slog.Info("WebSocket handler initialized")
	}

	// WebSocket hub
	s.wsHub = ws.NewHub()
	go s.wsHub.Run()

	return nil
}

// SetupRoutes configures all HTTP routes
func (s *Server) SetupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthHandler)

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket route (protected when auth is configured)
		if s.authService != nil {
			r.Group(func(r chi.Router) {
				r.Use(s.authService.Middleware)
				r.Get("/ws", s.websocketHandlerFunc)
			})
		} else {
			r.Get("/ws", s.websocketHandlerFunc)
		}

		if s.authEndpoints != nil {
			r.Route("/auth", func(r chi.Router) {
				r.Post("/login", s.authEndpoints.LoginHandler)
				r.Post("/signup", s.authEndpoints.SignupHandler)
				r.Post("/refresh", s.authEndpoints.RefreshHandler)

				r.Group(func(r chi.Router) {
					r.Use(s.authService.Middleware)
					r.Post("/logout", s.authEndpoints.LogoutHandler)
					r.Get("/me", s.authEndpoints.MeHandler)
				})
			})
		}

		// The REST surface is always mounted. Without a JWT secret the user
		// comes from the request itself, as on the socket surface.
		if s.apiEndpoints != nil {
			r.Group(func(r chi.Router) {
				if s.authService != nil {
					r.Use(s.authService.Middleware)
				} else {
					r.Use(UserParamMiddleware(s.gormDB))
				}
				s.apiEndpoints.RegisterRoutes(r)
			})
		}
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start() {
	port := s.config.Server.Port
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: s.SetupRoutes(),
	}

	go func() {
		slog.Info("Starting server", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exited")
}

// CheckOrigin validates the origin of WebSocket connections to prevent CSRF attacks
func CheckOrigin(r *http.Request, allowedOriginsStr string) bool {
	origin := r.Header.Get("Origin")

	// No configured origins means deny everything.
	if allowedOriginsStr == "" {
		slog.Warn("WebSocket connection rejected: no allowed origins configured", "origin", origin)
		return false
	}

	allowedOrigins := strings.Split(allowedOriginsStr, ",")
	for i := range allowedOrigins {
		allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
	}

	for _, allowed := range allowedOrigins {
		if allowed == origin {
			return true
		}
	}

	slog.Warn("WebSocket connection rejected: origin not allowed", "origin", origin, "allowed_origins", allowedOriginsStr)
	return false
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "not configured"

	if s.rawDB != nil {
		if sqlDB, err := s.rawDB.DB(); err == nil {
			if err := sqlDB.Ping(); err != nil {
				dbStatus = "down"
				status = "degraded"
			} else {
				dbStatus = "up"
			}
		} else {
			dbStatus = "down"
			status = "degraded"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"` + status + `","database":"` + dbStatus + `"}`))
}

func (s *Server) websocketHandlerFunc(w http.ResponseWriter, r *http.Request) {
	var userName string
	if user, ok := UserFromContext(r.Context()); ok {
		userName = user.Name
	} else if s.authService != nil {
		slog.Error("WebSocket connection failed - user not found in context")
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	slog.Info("WebSocket connection established", "user", userName)

	client := s.wsHub.RegisterClient(conn, userName)
	if s.websocketHandler != nil {
		client.EventHandler = s.websocketHandler.HandleEvent
	}

	go client.ReadPump()
	go client.WritePump()
}
