// Package server implements the daemon's WebSocket listener:
// HTTP routing via gorilla/mux, connection upgrade via gorilla/websocket,
// and graceful shutdown (close frames, bounded drain, force-kill
// stragglers).
package server

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/spaceterm/muxd/internal/metadata"
	"github.com/spaceterm/muxd/internal/rpc"
	"github.com/spaceterm/muxd/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Config bounds the listener and the shutdown sequence.
type Config struct {
	ListenAddress    string
	Version          string
	ShutdownDrain    time.Duration
}

// Server accepts WebSocket connections on ListenAddress and routes each to
// its own Dispatcher.
type Server struct {
	cfg       Config
	manager   *session.Manager
	metaStore *metadata.Store
	templates *metadata.TemplateStore
	bookmarks *metadata.BookmarkStore
	logger    *log.Logger
	startedAt time.Time

	httpServer *http.Server
	listener   net.Listener

	mu        sync.Mutex
	conns     map[*connection]struct{}
	accepting bool
}

func New(cfg Config, manager *session.Manager, metaStore *metadata.Store, templates *metadata.TemplateStore, bookmarks *metadata.BookmarkStore, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		cfg:       cfg,
		manager:   manager,
		metaStore: metaStore,
		templates: templates,
		bookmarks: bookmarks,
		logger:    logger,
		startedAt: time.Now(),
		conns:     make(map[*connection]struct{}),
		accepting: true,
	}

	router := mux.NewRouter()
	router.HandleFunc("/ws", s.handleWS)
	router.HandleFunc("/healthz", s.handleHealthz)
	s.httpServer = &http.Server{Handler: router}
	return s
}

// Serve binds ListenAddress and blocks accepting connections until the
// daemon shuts down. Returns the bind error immediately if the address is
// already in use.
func (s *Server) Serve() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Printf("listening on %s", ln.Addr())
	err = s.httpServer.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	accepting := s.accepting
	s.mu.Unlock()
	if !accepting {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("websocket upgrade failed: %v", err)
		return
	}

	conn := newConnection(ws, s.logger)
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	dispatcher := rpc.New(rpc.Deps{
		Manager:   s.manager,
		MetaStore: s.metaStore,
		Templates: s.templates,
		Bookmarks: s.bookmarks,
		Logger:    s.logger,
		Version:   s.cfg.Version,
		StartedAt: s.startedAt,
		Shutdown:  s.triggerShutdown,
	}, conn)

	conn.serve(dispatcher)

	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// triggerShutdown is invoked by the server_shutdown RPC method; it runs
// the same sequence as an operator-issued Shutdown.
func (s *Server) triggerShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownDrain+5*time.Second)
	defer cancel()
	s.Shutdown(ctx)
}

// Shutdown stops accepting new connections, sends close frames, drains
// queues up to ShutdownDrain, then force-kills remaining panes: stop
// accepting → signal all pumps → await a bounded drain → kill stragglers.
func (s *Server) Shutdown(ctx context.Context) {
	s.mu.Lock()
	s.accepting = false
	conns := make([]*connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if s.listener != nil {
		s.httpServer.Shutdown(ctx)
	}

	// Every connection drains independently and in parallel, so one slow
	// drainer never delays closing the rest.
	var g errgroup.Group
	for _, c := range conns {
		c := c
		g.Go(func() error {
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down"),
				time.Now().Add(time.Second))
			c.drain(s.cfg.ShutdownDrain)
			c.Close()
			return nil
		})
	}
	g.Wait()

	s.manager.StopAllHealthMonitors()
	s.manager.KillAll()
}
