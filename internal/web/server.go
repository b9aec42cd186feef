// Package web exposes the camera screen over HTTP: controls as POST
// routes, the cart and its thumbnails, and a status stream (SSE) carrying
// view states, screen events and debug output.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cjeanneret/pickcam/internal/debug"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer creates a server configured for the given address.
func NewServer(addr string, handlers *Handlers) *Server {
	return &Server{
		addr:     addr,
		handlers: handlers,
	}
}

// Router returns the chi router with all routes registered.
func (s *Server) Router() http.Handler {
	h := s.handlers
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recovery)

	r.Post("/shutter", h.Shutter)
	r.Post("/flash", h.Flash)
	r.Post("/rotate", h.Rotate)
	r.Post("/focus", h.Focus)
	r.Post("/stack", h.Stack)
	r.Post("/done", h.Done)
	r.Post("/close", h.Close)
	r.Post("/location", h.Location)

	r.Get("/state", h.State)
	r.Get("/devices", h.Devices)
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.Cart)
		r.Delete("/{id}", h.RemoveFromCart)
		r.Get("/{id}/thumbnail", h.Thumbnail)
	})
	r.Get("/status/stream", h.StatusStream)

	return r
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
// Request contexts derive from ctx, so open status streams end with it.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("web server listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		<-errCh
		return err
	}
}
