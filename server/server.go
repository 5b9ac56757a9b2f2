package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"AzzKaraoke/cache"
	"AzzKaraoke/config"
	"AzzKaraoke/core/auth"
	"AzzKaraoke/core/room"
	"AzzKaraoke/logger"
)

// ViewerCounter reports how many viewers are watching a session.
type ViewerCounter interface {
	ActiveViewerCount(ctx context.Context, roomID string) (int64, error)
}

// PlaybackReader returns the last reported playback position of a session.
type PlaybackReader interface {
	GetPlayback(ctx context.Context, roomID string) (*cache.PlaybackSnapshot, error)
}

// Deps are the collaborators of a Server. Viewers and Playback may be nil.
type Deps struct {
	Config   *config.Config
	Manager  *room.Manager
	Hub      *room.Hub
	Tokens   *auth.TokenManager
	Viewers  ViewerCounter
	Playback PlaybackReader
}

// Server is the karaoke HTTP + WebSocket API.
type Server struct {
	deps     Deps
	router   *mux.Router
	handler  http.Handler
	upgrader websocket.Upgrader
}

// New builds the router.
func New(deps Deps) *Server {
	s := &Server{
		deps:   deps,
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	// CORS 在路由之外，预检请求不经过方法匹配
	s.handler = corsMiddleware(s.router)
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(logMiddleware)

	r.HandleFunc("/healthz", s.HealthHandler).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sessions", s.CreateSessionHandler).Methods(http.MethodPost)
	api.HandleFunc("/sessions", s.ListSessionsHandler).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.GetSessionHandler).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.AuthMiddleware(s.DeleteSessionHandler)).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/video", s.AuthMiddleware(s.ReplaceVideoHandler)).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{id}/video", s.VideoHandler).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/sessions/{id}/export/srt", s.ExportSubtitleHandler).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/export/json", s.ExportStructuredHandler).Methods(http.MethodGet)

	r.HandleFunc("/ws/sessions/{id}", s.WebSocketHandler)

	// 浏览器端静态文件
	if dir := s.deps.Config.WebDir; dir != "" {
		if _, err := os.Stat(dir); err == nil {
			r.PathPrefix("/").Handler(http.FileServer(http.Dir(dir)))
		} else {
			logger.Warn("静态文件目录不存在", logger.String("dir", dir))
		}
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.deps.Config.Addr(),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

// HealthHandler reports liveness.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
