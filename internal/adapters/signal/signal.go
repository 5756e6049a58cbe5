package signal

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicechat/internal/app/orch"
	"github.com/dkeye/voicechat/internal/auth"
	"github.com/dkeye/voicechat/internal/core"
	"github.com/dkeye/voicechat/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// SessionTokenKey is where POST /api/session keeps the credential for browser
// clients, which cannot set headers on a WebSocket handshake.
const SessionTokenKey = "token"

type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (domain.Identity, error)
}

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	Verifier IdentityVerifier
	Limiter  *RoomRateLimiter
	opts     Options
}

func NewSignalWSController(o *orch.Orchestrator, v IdentityVerifier, limiter *RoomRateLimiter, opts Options) *SignalWSController {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 32768
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	return &SignalWSController{Orch: o, Verifier: v, Limiter: limiter, opts: opts}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Credential picks the bearer credential from the Authorization header, the
// token query parameter or the cookie session, in that order.
func Credential(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(h[len("Bearer "):])
	}
	if q := c.Query("token"); q != "" {
		return q
	}
	if tok, ok := sessions.Default(c).Get(SessionTokenKey).(string); ok {
		return tok
	}
	return ""
}

// HandleSignal verifies the credential, refusing the handshake before upgrade
// on failure, then registers the connection and starts its pumps.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ident, err := ctl.Verifier.Verify(c.Request.Context(), Credential(c))
	if err != nil {
		reason, ok := auth.Reason(err)
		if !ok {
			log.Error().Err(err).Str("module", "signal").Msg("identity verification unavailable")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "identity verification unavailable"})
			return
		}
		log.Info().Str("module", "signal").Str("reason", reason).Msg("handshake refused")
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": reason})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}
	connCtx, cancel := context.WithCancel(ctx)
	entry := ctl.Orch.Connect(ident, conn, cancel)
	log.Info().Str("module", "signal").Str("cid", string(entry.ID)).Str("user", string(ident.UserID)).Msg("new WS connection")

	go ctl.writePump(connCtx, conn)
	go ctl.readPump(connCtx, entry.ID, ident, conn)
}
