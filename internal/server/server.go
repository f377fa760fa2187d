package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"gazemap-go/internal/surface"
	"gazemap-go/internal/types"
)

//go:embed web/*
var webFS embed.FS

// Controller is the session lifecycle driven by subscriber commands.
type Controller interface {
	Start() error
	Stop() error
	Status() map[string]any
}

type Options struct {
	Port     int
	Surfaces []surface.Surface
	Buffer   int

	Controller Controller
	// DeviceStatus, when set, is reported under "device" on /status.
	DeviceStatus func() any
	Logger       *slog.Logger
}

type Server struct {
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]*sync.Mutex
	mu       sync.Mutex

	opts     Options
	logger   *slog.Logger
	messages chan types.GazeMessage
	dropped  atomic.Uint64
	sent     atomic.Uint64
}

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10
)

func New(opts Options) *Server {
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:  make(map[*websocket.Conn]*sync.Mutex),
		opts:     opts,
		logger:   logger.With("component", "server"),
		messages: make(chan types.GazeMessage, opts.Buffer),
	}
}

// Emit queues a gaze event for every subscriber. It never blocks; when the
// broadcast queue is full the event is dropped and counted.
func (s *Server) Emit(event types.GazeEvent) {
	select {
	case s.messages <- types.GazeMessage{Type: "gazeData", Data: event}:
	default:
		s.dropped.Add(1)
	}
}

// SetController attaches the session driven by subscriber commands. It must
// be called before serving.
func (s *Server) SetController(c Controller) {
	s.opts.Controller = c
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if sub, err := fs.Sub(webFS, "web"); err == nil {
		mux.Handle("/", http.FileServer(http.FS(sub)))
	}
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Run serves HTTP and websocket subscribers until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(s.opts.Port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	go s.broadcast(ctx)

	s.logger.Info("listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.mu.Lock()
	writeMu := &sync.Mutex{}
	s.clients[conn] = writeMu
	s.mu.Unlock()
	s.logger.Info("subscriber connected", "remote", conn.RemoteAddr().String())

	payload := s.configPayload()
	payload["type"] = "config"
	_ = s.writeJSON(conn, writeMu, payload)

	go func() {
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(pingEvery)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if err := s.writeMessage(conn, writeMu, websocket.PingMessage, nil); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()
		defer close(done)
		defer s.disconnect(conn)
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			var request struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(payload, &request); err != nil {
				continue
			}
			if request.Type == "status_request" {
				_ = s.writeJSON(conn, writeMu, types.StatusMessage{Type: "status", Status: s.statusPayload()})
				continue
			}
			cmd, ok := ParseCommand(request.Type)
			if !ok {
				continue
			}
			s.dispatch(cmd)
		}
	}()
}

func (s *Server) dispatch(cmd Command) {
	if s.opts.Controller == nil {
		return
	}
	var err error
	switch cmd {
	case CommandStart:
		err = s.opts.Controller.Start()
	case CommandStop:
		err = s.opts.Controller.Stop()
	}
	if err != nil {
		s.logger.Error("command failed", "command", cmd.String(), "err", err)
	}
}

// disconnect drops the subscriber and stops the shared session.
func (s *Server) disconnect(conn *websocket.Conn) {
	s.removeClient(conn)
	s.logger.Info("subscriber disconnected", "remote", conn.RemoteAddr().String())
	s.dispatch(CommandStop)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.configPayload())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.statusPayload())
}

func (s *Server) configPayload() map[string]any {
	surfaces := make([]map[string]any, 0, len(s.opts.Surfaces))
	for _, sf := range s.opts.Surfaces {
		surfaces = append(surfaces, map[string]any{
			"name":       sf.Name,
			"width":      sf.Size.Width,
			"height":     sf.Size.Height,
			"marker_ids": sf.MarkerIDs(),
		})
	}
	return map[string]any{
		"port":     s.opts.Port,
		"surfaces": surfaces,
	}
}

func (s *Server) statusPayload() map[string]any {
	payload := map[string]any{}
	if s.opts.Controller != nil {
		payload = s.opts.Controller.Status()
	}
	if s.opts.DeviceStatus != nil {
		payload["device"] = s.opts.DeviceStatus()
	}
	payload["ws_clients"] = s.clientCount()
	payload["broadcast_sent_total"] = s.sent.Load()
	payload["broadcast_dropped_total"] = s.dropped.Load()
	return payload
}

func (s *Server) broadcast(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-s.messages:
			payload, err := json.Marshal(message)
			if err != nil {
				s.logger.Warn("encode gaze message", "err", err)
				continue
			}
			var stale []*websocket.Conn
			s.mu.Lock()
			for conn, writeMu := range s.clients {
				if err := s.writeMessage(conn, writeMu, websocket.TextMessage, payload); err != nil {
					stale = append(stale, conn)
				}
			}
			s.mu.Unlock()
			s.sent.Add(1)
			for _, conn := range stale {
				s.removeClient(conn)
			}
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) writeJSON(conn *websocket.Conn, writeMu *sync.Mutex, payload any) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(payload)
}

func (s *Server) writeMessage(conn *websocket.Conn, writeMu *sync.Mutex, messageType int, payload []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, payload)
}
