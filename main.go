package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/juniorT34/disposable-backend/config"
	"github.com/juniorT34/disposable-backend/events"
	"github.com/juniorT34/disposable-backend/manager"
	"github.com/juniorT34/disposable-backend/runtime"
	"github.com/juniorT34/disposable-backend/session"
	"github.com/juniorT34/disposable-backend/store"
)

const (
	wsReadDeadline  = 60 * time.Second
	wsPingInterval  = 30 * time.Second
	wsWriteDeadline = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

type server struct {
	mgr      *manager.Manager
	hub      *events.Hub
	dbHealth healthCache
}

type healthCache struct {
	mu         sync.RWMutex
	status     string
	lastCheck  time.Time
	cacheValid bool
}

func main() {
	log.Println("disposable backend starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.Printf("environment: %s, parent domain: %s", cfg.Environment, cfg.ParentDomain)

	var st store.Store = store.Noop{}
	var pg *store.Postgres
	if cfg.DatabaseURL != "" {
		startDB := time.Now()
		log.Println("connecting to database")
		pg, err = store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		if err := pg.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("failed to prepare database schema: %v", err)
		}
		st = pg
		log.Printf("database connected (took %dms)", time.Since(startDB).Milliseconds())
	} else {
		log.Println("DATABASE_URL not set, session history disabled")
	}

	docker, err := runtime.NewDockerClient()
	if err != nil {
		log.Fatalf("failed to create docker client: %v", err)
	}

	hub := events.NewHub()
	mgr := manager.New(cfg, docker, st, hub)

	reconcileCtx, reconcileCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := mgr.ReconcileLostSessions(reconcileCtx); err != nil {
		log.Printf("WARNING: %v", err)
	}
	reconcileCancel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := manager.NewSweeper(mgr)
	sweeper.Start(ctx)

	srv := &server{mgr: mgr, hub: hub}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", srv.handleHealth(pg))
	mux.HandleFunc("POST /api/v1/sessions", srv.handleStart)
	mux.HandleFunc("GET /api/v1/sessions", srv.handleList)
	mux.HandleFunc("GET /api/v1/sessions/{sessionId}", srv.handleStatus)
	mux.HandleFunc("DELETE /api/v1/sessions/{sessionId}", srv.handleStop)
	mux.HandleFunc("POST /api/v1/sessions/{sessionId}/extend", srv.handleExtend)
	mux.HandleFunc("POST /api/v1/cleanup", srv.handleCleanup)
	mux.HandleFunc("GET /api/v1/events", srv.handleEvents)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	log.Println("disposable backend ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan
	log.Printf("received signal %s, shutting down", sig)
	signal.Stop(sigChan)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		httpCtx, httpCancel := context.WithTimeout(context.Background(), 15*time.Second)
		log.Println("shutting down HTTP server")
		if err := httpServer.Shutdown(httpCtx); err != nil {
			log.Printf("http server shutdown error: %v", err)
		}
		httpCancel()

		cancel()

		log.Println("closing event hub")
		hub.Close()

		log.Println("stopping sweeper")
		sweeper.Stop()

		log.Println("closing manager")
		mgr.Close()

		if pg != nil {
			log.Println("closing database")
			pg.Close()
		}
		docker.Close()
	}()

	select {
	case <-shutdownDone:
		log.Println("shutdown complete")
	case <-time.After(60 * time.Second):
		log.Println("shutdown timed out after 60s, forcing exit")
		os.Exit(1)
	}
}

// caller extracts the identity resolved upstream by the auth gateway.
// Requests without an identity are rejected; credential validation
// itself is not this service's job.
func caller(r *http.Request) (session.Caller, bool) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		return session.Caller{}, false
	}

	role := session.RoleUser
	if r.Header.Get("X-User-Role") == string(session.RoleAdmin) {
		role = session.RoleAdmin
	}
	return session.Caller{UserID: userID, Role: role}, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
	case errors.Is(err, session.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, session.ErrLimitExceeded):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to process request"})
	}
}

type startRequest struct {
	Type      string `json:"type"`
	TargetURL string `json:"targetUrl,omitempty"`
	Flavor    string `json:"flavor,omitempty"`
}

func (s *server) handleStart(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing identity"})
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	rec, err := s.mgr.Start(r.Context(), c, session.Type(req.Type), session.StartOptions{
		TargetURL: req.TargetURL,
		Flavor:    req.Flavor,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *server) handleStop(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing identity"})
		return
	}

	if err := s.mgr.Stop(r.Context(), c, r.PathValue("sessionId")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "session stopped"})
}

type extendRequest struct {
	AdditionalSeconds int64 `json:"additionalSeconds"`
}

func (s *server) handleExtend(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing identity"})
		return
	}

	var req extendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	expiresAt, err := s.mgr.Extend(r.Context(), c, r.PathValue("sessionId"), req.AdditionalSeconds)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expiresAt": expiresAt})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing identity"})
		return
	}

	rec, err := s.mgr.Status(r.Context(), c, r.PathValue("sessionId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing identity"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.mgr.List(r.Context(), c)})
}

func (s *server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing identity"})
		return
	}

	writeJSON(w, http.StatusOK, s.mgr.Cleanup(r.Context(), c))
}

// handleEvents streams lifecycle events over a websocket. Non-admin
// callers only receive events for their own sessions.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing identity"})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(c.UserID, c.Role == session.RoleAdmin)

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.hub.Unsubscribe(sub)
		})
	}
	defer cleanup()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	})

	go func() {
		defer cleanup()
		for {
			if err := conn.SetReadDeadline(time.Now().Add(wsReadDeadline)); err != nil {
				return
			}
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case data := <-sub.Send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-sub.Done:
			return
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *server) handleHealth(pg *store.Postgres) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbStatus := "disabled"
		if pg != nil {
			s.dbHealth.mu.RLock()
			cacheValid := s.dbHealth.cacheValid && time.Since(s.dbHealth.lastCheck) < 5*time.Second
			cachedStatus := s.dbHealth.status
			s.dbHealth.mu.RUnlock()

			if cacheValid {
				dbStatus = cachedStatus
			} else {
				healthCtx, healthCancel := context.WithTimeout(r.Context(), 2*time.Second)
				dbStatus = "ok"
				if err := pg.Health(healthCtx); err != nil {
					dbStatus = "unhealthy"
				}
				healthCancel()

				s.dbHealth.mu.Lock()
				s.dbHealth.status = dbStatus
				s.dbHealth.lastCheck = time.Now()
				s.dbHealth.cacheValid = true
				s.dbHealth.mu.Unlock()
			}
		}

		overallStatus := "ok"
		if dbStatus == "unhealthy" {
			overallStatus = "degraded"
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  overallStatus,
			"service": "disposable-backend",
			"components": map[string]string{
				"database": dbStatus,
			},
		})
	}
}
