package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sort"
	"strings"
	"sync"

	"log/slog"

	"magpie/internal/creds"
	"magpie/internal/daemon"
	"magpie/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
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

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Magpie", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
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
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually or rerun magpie stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.LockPath = status.LockFilePath
	resp.LedgerDBPath = status.LedgerDBPath
	resp.JobStats = make(map[string]int, len(status.JobStats))
	for state, count := range status.JobStats {
		resp.JobStats[string(state)] = count
	}
	resp.LedgerCount = status.LedgerStats.Entries
	resp.LedgerSize = status.LedgerStats.TotalSize
	return nil
}

func (s *service) Parse(req ParseRequest, resp *ParseResponse) error {
	info, err := s.daemon.Parse(req.URL)
	if err != nil {
		return err
	}
	resp.Platform = info
	return nil
}

func (s *service) Platforms(_ PlatformsRequest, resp *PlatformsResponse) error {
	resp.Platforms = s.daemon.Platforms()
	return nil
}

func (s *service) HistoryList(_ HistoryListRequest, resp *HistoryListResponse) error {
	entries, err := s.daemon.HistoryList(s.ctx)
	if err != nil {
		return err
	}
	resp.Entries = make([]HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, HistoryEntry{
			Folder:      entry.Folder,
			Path:        entry.Path,
			CreatedAt:   entry.CreatedAt,
			Size:        entry.Size,
			Title:       entry.Title,
			Platform:    entry.Platform,
			ContentType: entry.ContentType,
		})
	}
	return nil
}

func (s *service) HistoryRemove(req HistoryRemoveRequest, resp *HistoryRemoveResponse) error {
	folder := strings.TrimSpace(req.Folder)
	if folder == "" {
		return errors.New("history remove requires a folder")
	}
	if err := s.daemon.HistoryRemove(s.ctx, folder); err != nil {
		return err
	}
	resp.Removed = folder
	s.log().Info("history entry removed",
		logging.String(logging.FieldEventType, "history_remove"),
		logging.String(logging.FieldFolder, folder))
	return nil
}

func (s *service) CredentialSet(req CredentialSetRequest, resp *CredentialSetResponse) error {
	validity, err := creds.ParseValidity(req.Validity)
	if err != nil {
		return err
	}
	if err := s.daemon.CredentialSet(req.Platform, req.Token, validity); err != nil {
		return err
	}
	resp.Stored = true
	s.log().Info("credential stored",
		logging.String(logging.FieldEventType, "credential_set"),
		logging.Platform(req.Platform))
	return nil
}

func (s *service) CredentialRemove(req CredentialRemoveRequest, resp *CredentialRemoveResponse) error {
	if err := s.daemon.CredentialRemove(req.Platform); err != nil {
		return err
	}
	resp.Removed = true
	s.log().Info("credential removed",
		logging.String(logging.FieldEventType, "credential_remove"),
		logging.Platform(req.Platform))
	return nil
}

func (s *service) CredentialList(_ CredentialListRequest, resp *CredentialListResponse) error {
	snapshot := s.daemon.CredentialList()
	resp.Credentials = make([]CredentialInfo, 0, len(snapshot))
	for id, rec := range snapshot {
		resp.Credentials = append(resp.Credentials, CredentialInfo{
			Platform:  id,
			Validity:  string(rec.Validity),
			UpdatedAt: rec.UpdatedAt,
		})
	}
	sort.Slice(resp.Credentials, func(i, j int) bool {
		return resp.Credentials[i].Platform < resp.Credentials[j].Platform
	})
	return nil
}
