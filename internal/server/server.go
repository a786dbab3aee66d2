package server

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"studentbot-web/internal/config"
	"studentbot-web/internal/responder"
	"studentbot-web/internal/store"
	"studentbot-web/internal/types"
	"studentbot-web/internal/web"
)

const (
	// MaxMessageLength is counted in characters, not bytes.
	MaxMessageLength = 500

	EmptyMessageReply   = "Please enter a message!"
	MessageTooLongReply = "Message too long! Please keep it under 500 characters."

	maxBodyBytes = 1 << 20
)

type Server struct {
	router    *chi.Mux
	cfg       config.Config
	bot       responder.Responder
	sessions  *store.SessionStore
	templates *template.Template
}

// NewServer wires the HTTP routes around bot. A nil sessions gets a store
// whose sessions expire with the cookie.
func NewServer(cfg config.Config, bot responder.Responder, sessions *store.SessionStore) (*Server, error) {
	if bot == nil {
		return nil, errors.New("responder is required")
	}
	tmpl, err := web.Templates()
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = store.NewSessionStore(cfg.SessionHistory, CookieMaxAge)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.AllowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s := &Server{
		router:    r,
		cfg:       cfg,
		bot:       bot,
		sessions:  sessions,
		templates: tmpl,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.Get("/", s.handleIndex)
	s.router.Post("/chat", s.handleChat)
	s.router.Get("/api/health", s.handleHealth)
	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(web.Static()))))
}

func (s *Server) Router() http.Handler { return s.router }

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("bot", s.cfg.BotName).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := s.templates.ExecuteTemplate(w, "index.html", web.IndexData{
		BotName:   s.cfg.BotName,
		MaxLength: MaxMessageLength,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to render index")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChatRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			// Anything past the body cap is far beyond MaxMessageLength.
			s.writeReply(w, MessageTooLongReply)
			return
		}
		// Unreadable bodies are answered like an empty message.
		log.Debug().Err(err).Msg("chat request body not decodable")
		req = types.ChatRequest{}
	}

	if req.Message == "" {
		s.writeReply(w, EmptyMessageReply)
		return
	}
	if utf8.RuneCountInString(req.Message) > MaxMessageLength {
		s.writeReply(w, MessageTooLongReply)
		return
	}

	sid := getOrCreateSessionID(r, w)
	ctx := responder.WithConversation(r.Context(), responder.Conversation{
		ID:      sid,
		History: s.sessions.Get(sid),
	})

	reply, err := s.bot.Respond(ctx, req.Message)
	if err != nil {
		log.Error().Err(err).Str("session", sid).Msg("responder failed")
		s.writeError(w, http.StatusInternalServerError, "the bot could not answer right now")
		return
	}

	s.sessions.Append(sid,
		store.Message{Role: store.RoleUser, Content: req.Message},
		store.Message{Role: store.RoleAssistant, Content: reply},
	)
	s.writeReply(w, reply)
}

// decodeChatRequest requires the body to hold exactly one JSON value. An empty
// body decodes to the zero request.
func decodeChatRequest(body io.Reader) (types.ChatRequest, error) {
	var req types.ChatRequest
	dec := json.NewDecoder(body)
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return types.ChatRequest{}, nil
		}
		return types.ChatRequest{}, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected data after request object")
		}
		return types.ChatRequest{}, err
	}
	return req, nil
}

func (s *Server) writeReply(w http.ResponseWriter, reply string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(types.ChatResponse{Response: reply})
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg})
}

// getOrCreateSessionID reads the session cookie, minting a new session when absent.
func getOrCreateSessionID(r *http.Request, w http.ResponseWriter) string {
	if sid, err := GetSessionCookie(r); err == nil && sid != "" {
		return sid
	}
	sid := uuid.NewString()
	log.Debug().Str("session", sid).Msg("creating new session")
	SetSessionCookie(w, r, sid)
	return sid
}
