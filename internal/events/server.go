package events

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
)

// Server accepts TCP subscribers for the line feed. A client may send
// "SUBSCRIBE <language>" to follow one catalog, or "SUBSCRIBE *" for all.
type Server struct {
	Addr   string
	Hub    *Hub
	Logger *slog.Logger

	mu sync.Mutex
	ln net.Listener
}

func NewServer(addr string, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Addr: addr, Hub: hub, Logger: logger.With("component", "events-tcp")}
}

// Run blocks until Close is called or the listener fails.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.Logger.Info("listening", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.Logger.Warn("accept failed", "error", err)
			continue
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	sub, err := s.Hub.SubscribeTCP(conn, "")
	if err != nil {
		s.Logger.Warn("welcome failed", "remote", remote, "error", err)
		return
	}
	s.Logger.Info("client connected", "remote", remote)
	defer func() {
		s.Hub.Unsubscribe(sub)
		s.Logger.Info("client disconnected", "remote", remote)
	}()

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		language, ok := ParseSubscribe(sc.Text())
		if !ok {
			continue
		}
		if err := s.Hub.Follow(sub, language); err != nil {
			return
		}
		s.Logger.Info("subscription changed", "remote", remote, "language", language)
	}
}

// ParseSubscribe reads a "SUBSCRIBE <language>" command. "*" or a missing
// language means every catalog.
func ParseSubscribe(line string) (language string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || len(fields) > 2 || !strings.EqualFold(fields[0], "SUBSCRIBE") {
		return "", false
	}
	if len(fields) == 1 || fields[1] == "*" {
		return "", true
	}
	return fields[1], true
}

func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}
