// Package api serves scenario summaries, overviews and run reports over HTTP.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/floodqc/runqc/pkg/config"
	"github.com/floodqc/runqc/pkg/report"
)

const shutdownTimeout = 10 * time.Second

// DetailsFunc gathers the run directory context of a run report. It may be
// nil, in which case reports are built from the record alone.
type DetailsFunc func(ctx context.Context, scenario, runID string) (report.RunDetails, error)

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
	// Handler returns the router without listening.
	Handler() http.Handler
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.Config
	source     Source
	details    DetailsFunc
	users      map[string][]byte
	now        func() time.Time
	router     http.Handler
	httpServer *http.Server
	wg         sync.WaitGroup
	done       chan struct{}
}

// NewServer creates a new API server. Plain-text basic auth passwords are
// hashed with bcrypt up front.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
	source Source,
	details DetailsFunc,
) (Server, error) {
	s := &server{
		log:     log.WithField("component", "api"),
		cfg:     cfg,
		source:  source,
		details: details,
		users:   make(map[string][]byte, len(cfg.API.Auth.Basic.Users)),
		now:     time.Now,
		done:    make(chan struct{}),
	}

	if cfg.API.Auth.Basic.Enabled {
		for _, u := range cfg.API.Auth.Basic.Users {
			hash := []byte(u.Password)

			if !u.IsHashed() {
				h, err := bcrypt.GenerateFromPassword(hash, bcrypt.DefaultCost)
				if err != nil {
					return nil, fmt.Errorf("hashing password of %s: %w", u.Username, err)
				}

				hash = h
			}

			s.users[u.Username] = hash
		}
	}

	s.router = s.buildRouter()

	return s, nil
}

func (s *server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves in the background.
func (s *server) Start(_ context.Context) error {
	listen := s.cfg.API.Server.Listen

	s.httpServer = &http.Server{
		Addr:              listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", listen).Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *server) Stop() error {
	close(s.done)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	s.log.Info("API server stopped")

	return nil
}
