package wsserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-arena/internal/arena"
	"github.com/park285/cheese-arena/internal/broadcast"
	"github.com/park285/cheese-arena/internal/protocol"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

const (
	writeTimeout   = 5 * time.Second
	pingTimeout    = 5 * time.Second
	maxFrameBytes  = 64 << 10
	defaultPingGap = 30 * time.Second
)

// Authenticator resolves the user behind an upgrade request.
type Authenticator func(r *http.Request) (userID string, err error)

// Server upgrades requests to websocket sessions bound to one user.
type Server struct {
	hub     *arena.Hub
	router  *broadcast.Router
	auth    Authenticator
	ping    time.Duration
	origins []string
	log     *zap.Logger
}

type Option func(*Server)

func WithPingInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.ping = d
		}
	}
}

// WithOriginPatterns allows cross-origin upgrades from the given host patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.origins = append(s.origins, patterns...) }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

func New(hub *arena.Hub, router *broadcast.Router, auth Authenticator, opts ...Option) *Server {
	s := &Server{hub: hub, router: router, auth: auth, ping: defaultPingGap, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth(r)
	if err != nil || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		OriginPatterns:  s.origins,
	})
	if err != nil {
		s.log.Warn("ws_accept_failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	connID := uuid.NewString()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := s.router.Attach(connID, userID)
	if err := s.hub.Do(ctx, func(c *arena.Coordinator) { c.Connect(connID, userID) }); err != nil {
		s.router.Detach(connID)
		_ = conn.Close(websocket.StatusTryAgainLater, "server shutting down")
		return
	}
	s.log.Info("ws_connected", zap.String("conn_id", connID), zap.String("user_id", userID))

	defer func() {
		s.router.Detach(connID)
		dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.hub.Do(dctx, func(c *arena.Coordinator) { c.Disconnect(connID, userID) })
		dcancel()
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
		s.log.Info("ws_disconnected", zap.String("conn_id", connID), zap.String("user_id", userID))
	}()

	go s.writeLoop(ctx, cancel, conn, out)
	go s.pingLoop(ctx, cancel, conn)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if !errors.Is(err, context.Canceled) {
					s.log.Debug("ws_read_failed", zap.String("conn_id", connID), zap.Error(err))
				}
			}
			return
		}
		req, perr := protocol.Decode(data)
		var herr error
		if perr != nil {
			herr = s.hub.Do(ctx, func(c *arena.Coordinator) { c.Reject(connID, userID, perr) })
		} else {
			herr = s.hub.Do(ctx, func(c *arena.Coordinator) { _ = c.Dispatch(connID, userID, req) })
		}
		if herr != nil {
			return
		}
	}
}

// writeLoop drains the outbox. A closed outbox means the router dropped this
// connection as too slow.
func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out <-chan arenadto.Event) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-out:
			if !ok {
				_ = conn.Close(websocket.StatusPolicyViolation, "slow consumer")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, ev)
			wcancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) pingLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	t := time.NewTicker(s.ping)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, pcancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				cancel()
				return
			}
		}
	}
}
