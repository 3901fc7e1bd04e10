package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"parkserv/internal/config"
	"parkserv/internal/events"
	"parkserv/internal/hub"
	"parkserv/internal/parking"
	"parkserv/internal/registry"
)

// Server exposes the operator API on central: lot status, event trail and
// manual gate/floor controls. Commands are queued on the hub and picked up
// by the owning node's relay connection.
type Server struct {
	http  *http.Server
	cfg   config.WebConfig
	lot   *parking.Lot
	reg   *registry.Store
	evbuf events.Buffer
	hub   *hub.Hub

	groundNode string
}

func New(cfg config.WebConfig, lot *parking.Lot, reg *registry.Store, evbuf events.Buffer, h *hub.Hub, groundNode string) *Server {
	s := &Server{
		cfg:        cfg,
		lot:        lot,
		reg:        reg,
		evbuf:      evbuf,
		hub:        h,
		groundNode: groundNode,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/gates/", s.handleGateAPI)
	mux.HandleFunc("/api/v1/floors/", s.handleFloorAPI)
	mux.HandleFunc("/api/v1/emergency", s.handleEmergency)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           withCommonHeaders(mux),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		log.Printf("[web] listening on http://%s", s.http.Addr)
		if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shCtx); err != nil {
			log.Printf("[web] shutdown error: %v", err)
		} else {
			log.Printf("[web] stopped")
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func withCommonHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "600")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
