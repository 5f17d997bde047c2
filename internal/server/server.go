// Package server runs the receiver's HTTP listener.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"
)

// Config holds listener settings. Empty TLS paths serve plain HTTP.
type Config struct {
	Port         string
	TLSCert      string
	TLSKey       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server represents an HTTP server
type Server struct {
	srv     *http.Server
	tlsCert string
	tlsKey  string
	errCh   chan error
}

// New creates a new server instance
func New(handler http.Handler, config Config) *Server {
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 30 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 30 * time.Second
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = 120 * time.Second
	}

	return &Server{
		srv: &http.Server{
			Addr:              ":" + config.Port,
			Handler:           handler,
			ReadTimeout:       config.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      config.WriteTimeout,
			IdleTimeout:       config.IdleTimeout,
		},
		tlsCert: config.TLSCert,
		tlsKey:  config.TLSKey,
		errCh:   make(chan error, 1),
	}
}

// Start binds the listener and serves in the background. Bind failures are
// returned directly; later serve failures arrive on Errors.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener in the background.
func (s *Server) Serve(ln net.Listener) error {
	useTLS := s.tlsCert != "" && s.tlsKey != ""
	if useTLS {
		s.srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	go func() {
		var err error
		if useTLS {
			err = s.srv.ServeTLS(ln, s.tlsCert, s.tlsKey)
		} else {
			err = s.srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errCh <- err
		}
		close(s.errCh)
	}()
	return nil
}

// Errors reports a fatal serve error. It is closed when serving stops.
func (s *Server) Errors() <-chan error {
	return s.errCh
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
