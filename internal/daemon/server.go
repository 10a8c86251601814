package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mbenevides/hermes/internal/bus"
	"github.com/mbenevides/hermes/internal/config"
	"github.com/mbenevides/hermes/internal/metrics"
	"github.com/mbenevides/hermes/internal/presence"
	"github.com/mbenevides/hermes/internal/protocol"
	"github.com/mbenevides/hermes/internal/registry"
	"github.com/mbenevides/hermes/internal/store"
	"github.com/mbenevides/hermes/internal/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is the HTTP edge of the hub: the websocket endpoint plus
// health and metrics.
type Server struct {
	cfg        *config.Config
	db         *store.DB
	reg        *registry.Registry
	tracker    *presence.Tracker
	dispatcher *protocol.Dispatcher
	metrics    *metrics.Metrics
	upgrader   websocket.Upgrader
	httpSrv    *http.Server
	logger     *zap.Logger
}

// NewServer wires the HTTP routes and returns the server ready to Start.
func NewServer(cfg *config.Config, db *store.DB, reg *registry.Registry, tracker *presence.Tracker, dispatcher *protocol.Dispatcher, m *metrics.Metrics, promReg *prometheus.Registry, logger *zap.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		db:         db,
		reg:        reg,
		tracker:    tracker,
		dispatcher: dispatcher,
		metrics:    m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.Named("http"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/chat/{conversationID}", s.handleChatSocket)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))

	s.httpSrv = &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start listens and serves until Stop is called. It returns nil on a
// clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("listening", zap.String("addr", s.cfg.Server.Listen))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop(ctx context.Context) {
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Warn("shutdown", zap.Error(err))
	}
}

func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	conversationID, err := strconv.ParseInt(r.PathValue("conversationID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	if _, err := s.db.GetConversation(conversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		s.logger.Error("loading conversation", zap.Int64("conversation_id", conversationID), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	identity, err := ws.Authenticate(r, []byte(s.cfg.Auth.JWTSecret), s.db)
	if err != nil {
		s.logger.Info("rejecting unauthenticated connection",
			zap.Int64("conversation_id", conversationID),
			zap.Error(err))
		s.closeWith(sock, ws.CloseUnauthenticated, "authentication required")
		return
	}

	conn := ws.NewConn(uuid.New().String(), identity, conversationID, sock, ws.Options{
		SendBuffer:     s.cfg.Hub.SendBuffer,
		FramesPerSec:   s.cfg.Hub.FramesPerSec,
		FrameBurst:     s.cfg.Hub.FrameBurst,
		OnFrame:        s.metrics.FramesReceived.Inc,
		OnFrameDropped: s.metrics.FramesRateLimited.Inc,
	}, s.logger)

	rooms := []string{bus.ConversationRoom(conversationID), bus.UserRoom(identity.UserID)}
	if err := s.reg.Register(conn, rooms...); err != nil {
		s.closeWith(sock, ws.CloseUnauthenticated, "authentication required")
		return
	}
	s.metrics.ConnectionsActive.Inc()
	s.logger.Info("connection open",
		zap.String("conn_id", conn.ID()),
		zap.Int64("user_id", identity.UserID),
		zap.Int64("conversation_id", conversationID))

	if err := s.tracker.Connected(identity, conversationID); err != nil {
		s.logger.Warn("marking user online", zap.Int64("user_id", identity.UserID), zap.Error(err))
	}

	conn.Run(s.dispatcher)

	s.reg.Unregister(conn.ID())
	s.metrics.ConnectionsActive.Dec()
	if err := s.tracker.Disconnected(identity, conversationID); err != nil {
		s.logger.Warn("marking user offline", zap.Int64("user_id", identity.UserID), zap.Error(err))
	}
	s.logger.Info("connection closed",
		zap.String("conn_id", conn.ID()),
		zap.Int64("user_id", identity.UserID))
}

func (s *Server) closeWith(sock *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(5 * time.Second)
	_ = sock.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = sock.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
