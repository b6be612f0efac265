package server

import (
	"context"
	"dtn_chat/internal/metrics"
	"dtn_chat/internal/service/bridge"
	"dtn_chat/internal/utils/log"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

type (
	Runner interface {
		Run(ctx context.Context, live bridge.LiveChannel) error
	}

	// HttpServer accepts one websocket client at a time and bridges it to
	// the forwarding agent.
	HttpServer struct {
		runner Runner
		addr   string

		mu     sync.Mutex
		active bool

		fatal chan error
	}
)

func NewHttpServer(runner Runner, addr string) *HttpServer {
	return &HttpServer{
		runner: runner,
		addr:   addr,
		fatal:  make(chan error, 1),
	}
}

func (s *HttpServer) Router() *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.HandleBridgeWS()).Methods(http.MethodGet)
	r.HandleFunc("/", s.HandleBridgeWS()).Methods(http.MethodGet)
	return r
}

// Run serves until ctx is done or a bridge stops on a security violation,
// in which case that error is returned.
func (s *HttpServer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Router(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("websocket server started", zap.String("addr", "ws://"+s.addr))
		errCh <- srv.ListenAndServe()
	}()

	var fatal error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case fatal = <-s.fatal:
	case <-ctx.Done():
	}

	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown", zap.Error(err))
	}
	return fatal
}

func (s *HttpServer) HandleBridgeWS() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // Allow all origins
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !s.acquire() {
			http.Error(w, "bridge already in use", http.StatusConflict)
			return
		}
		defer s.release()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("websocket upgrade failed", zap.Error(err))
			return
		}
		log.Info("websocket client connected", zap.String("remote", r.RemoteAddr))

		err = s.runner.Run(r.Context(), newWSChannel(conn))
		if err == nil {
			log.Info("websocket client session ended", zap.String("remote", r.RemoteAddr))
			return
		}

		log.Error("bridge failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		if errors.Is(err, bridge.ErrRevocationMismatch) || errors.Is(err, bridge.ErrUnexpectedPayload) {
			select {
			case s.fatal <- err:
			default:
			}
		}
	}
}

func (s *HttpServer) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return false
	}
	s.active = true
	return true
}

func (s *HttpServer) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}
