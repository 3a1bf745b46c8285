// Package server is the HTTP backend of the question page.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/caffeineduck/codearena/activity"
	"github.com/caffeineduck/codearena/autosave"
	"github.com/caffeineduck/codearena/executor"
	"github.com/caffeineduck/codearena/internal/contestapi"
	"github.com/caffeineduck/codearena/internal/question"
	"github.com/caffeineduck/codearena/judge"
	"github.com/caffeineduck/codearena/store"
)

// DefaultSessionTTL is how long an activity session survives without requests.
const DefaultSessionTTL = 30 * time.Minute

// Runtime is the interpreter as the server sees it. *executor.Executor
// implements it.
type Runtime interface {
	judge.Runner
	Load(ctx context.Context) error
	Status() executor.Status
}

// Questions resolves question identifiers.
type Questions interface {
	Question(ctx context.Context, id string) (question.Question, error)
}

type Config struct {
	Runtime   Runtime
	Questions Questions
	// Submitter records submissions; nil disables the submit endpoint.
	Submitter judge.Submitter
	Store     store.Store
	Sink      activity.Sink
	// JWTSecret enables HS256 bearer verification. The token subject scopes
	// stored buffers.
	JWTSecret []byte
	// ForwardToken passes the caller's bearer token on to the contest API.
	ForwardToken  bool
	AutosaveDelay time.Duration
	// SessionTTL expires activity sessions idle for longer than this.
	SessionTTL time.Duration
	Logger     *slog.Logger
}

type session struct {
	team     string
	monitor  *activity.Monitor
	lastUsed atomic.Int64 // unix nanoseconds
}

func (ss *session) touch(now time.Time) {
	ss.lastUsed.Store(now.UnixNano())
}

func (ss *session) idle(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, ss.lastUsed.Load()))
}

// Server routes question-page requests.
type Server struct {
	cfg      Config
	log      *slog.Logger
	router   *mux.Router
	sessions *xsync.MapOf[string, *session]
	savers   *xsync.MapOf[string, *autosave.Saver]

	stop     chan struct{}
	stopOnce sync.Once
}

func New(cfg Config) *Server {
	if cfg.Store == nil {
		cfg.Store = store.NewMemory()
	}
	if cfg.AutosaveDelay == 0 {
		cfg.AutosaveDelay = autosave.DefaultDelay
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		log:      log.With("component", "server"),
		sessions: xsync.NewMapOf[string, *session](),
		savers:   xsync.NewMapOf[string, *autosave.Saver](),
		stop:     make(chan struct{}),
	}
	s.router = s.routes()
	go s.cleanup()
	return s
}

// cleanup closes sessions that have been idle for longer than the TTL.
func (s *Server) cleanup() {
	every := min(time.Minute, s.cfg.SessionTTL/2)
	if every <= 0 {
		every = time.Millisecond
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.sessions.Range(func(id string, sess *session) bool {
				if sess.idle(now) > s.cfg.SessionTTL {
					sess.monitor.Close()
					s.sessions.Delete(id)
					s.log.Debug("session expired", "session", id)
				}
				return true
			})
		}
	}
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(s.authenticate)
	api.HandleFunc("/runtime", s.handleRuntime).Methods(http.MethodGet)
	api.HandleFunc("/runtime/retry", s.handleRetry).Methods(http.MethodPost)
	api.HandleFunc("/run", s.handleRun).Methods(http.MethodPost)
	api.HandleFunc("/questions/{id}/run", s.handleQuestionRun).Methods(http.MethodPost)
	api.HandleFunc("/questions/{id}/submit", s.handleSubmit).Methods(http.MethodPost)
	api.HandleFunc("/questions/{id}/code", s.handleGetCode).Methods(http.MethodGet)
	api.HandleFunc("/questions/{id}/code", s.handlePutCode).Methods(http.MethodPut)
	api.HandleFunc("/questions/{id}/code", s.handleResetCode).Methods(http.MethodDelete)
	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/events", s.handleSessionEvent).Methods(http.MethodPost)
	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close(shutdownCtx)
	return err
}

// Close flushes pending autosaves and tears down activity sessions.
func (s *Server) Close(ctx context.Context) {
	s.stopOnce.Do(func() { close(s.stop) })
	s.savers.Range(func(key string, sv *autosave.Saver) bool {
		if err := sv.Close(ctx); err != nil {
			s.log.Warn("flush autosave", "key", key, "error", err)
		}
		s.savers.Delete(key)
		return true
	})
	s.sessions.Range(func(id string, sess *session) bool {
		sess.monitor.Close()
		s.sessions.Delete(id)
		return true
	})
}

func (s *Server) storeFor(team string) store.Store {
	if team == "" {
		return s.cfg.Store
	}
	return store.Scoped(s.cfg.Store, "team:"+team+":")
}

func (s *Server) questions(r *http.Request) Questions {
	if c, ok := s.cfg.Questions.(*contestapi.Client); ok && s.cfg.ForwardToken {
		if tok := bearerToken(r); tok != "" {
			return c.WithBearer(tok)
		}
	}
	return s.cfg.Questions
}

func (s *Server) submitter(r *http.Request) judge.Submitter {
	if c, ok := s.cfg.Submitter.(*contestapi.Client); ok && s.cfg.ForwardToken {
		if tok := bearerToken(r); tok != "" {
			return c.WithBearer(tok)
		}
	}
	return s.cfg.Submitter
}
