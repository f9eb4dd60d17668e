package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"magpie/internal/logging"
)

// EventSocket serves the hub's global event stream as newline-delimited JSON
// over a Unix domain socket. Every accepted connection becomes a passive
// observer of all jobs.
type EventSocket struct {
	path     string
	hub      *Hub
	logger   *slog.Logger
	listener net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEventSocket listens on the given socket path. A stale socket file from
// a previous run is removed first.
func NewEventSocket(ctx context.Context, path string, hub *Hub, logger *slog.Logger) (*EventSocket, error) {
	if hub == nil {
		return nil, fmt.Errorf("event socket requires hub")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	socketCtx, cancel := context.WithCancel(ctx)
	return &EventSocket{
		path:     path,
		hub:      hub,
		logger:   logging.NewComponentLogger(logger, "events-socket"),
		listener: listener,
		ctx:      socketCtx,
		cancel:   cancel,
	}, nil
}

// Serve starts accepting observer connections until the context is canceled.
func (s *EventSocket) Serve() {
	s.logger.Debug("events socket listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "events_accept_failed"),
					logging.String(logging.FieldErrorHint, "check socket permissions"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.stream(c)
			}(conn)
		}
	}()
}

func (s *EventSocket) stream(conn net.Conn) {
	defer conn.Close()

	events, cancel := s.hub.SubscribeAll()
	defer cancel()

	encoder := json.NewEncoder(conn)
	for {
		select {
		case <-s.ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := encoder.Encode(evt); err != nil {
				s.logger.Debug("observer disconnected", logging.Error(err))
				return
			}
		}
	}
}

// Close stops the socket and removes the socket file.
func (s *EventSocket) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "events_socket_cleanup_failed"))
	}
}
