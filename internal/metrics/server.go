package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/Iron-Ham/ihmm/internal/errors"
	"github.com/Iron-Ham/ihmm/internal/logging"
)

const shutdownTimeout = 5 * time.Second

// Server exposes a recorder on /metrics.
type Server struct {
	srv      *http.Server
	listener net.Listener
	done     chan error
}

// Listen binds addr and starts serving r in the background. Use port 0 to
// pick a free port; Addr reports the bound address.
func (r *Recorder) Listen(addr string, log *logging.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", addr)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	s := &Server{
		srv:      &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		listener: ln,
		done:     make(chan error, 1),
	}

	log = logging.OrNop(log)
	log.Info("metrics server listening", "addr", ln.Addr().String())
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			log.Error("metrics server stopped", "error", err.Error())
		}
		s.done <- err
	}()
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server, waiting up to a few seconds for in-flight
// scrapes.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "shutdown metrics server")
	}
	return <-s.done
}
