package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/proximity-voice/internal/app"
	"github.com/dkeye/proximity-voice/internal/app/orch"
	"github.com/dkeye/proximity-voice/internal/core"
	"github.com/dkeye/proximity-voice/internal/domain"
)

var (
	ErrBackpressure     = errors.New("backpressure")
	ErrConnectionClosed = errors.New("connection closed")
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Policy  app.Policy
	Toggles *ToggleLimiter
	opts    Options
}

func NewSignalWSController(o *orch.Orchestrator, policy app.Policy, toggles *ToggleLimiter, opts Options) *SignalWSController {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if policy == nil {
		policy = app.SimplePolicy{}
	}
	return &SignalWSController{
		Orch:    o,
		Policy:  policy,
		Toggles: toggles,
		opts:    opts,
	}
}

// wsClient is the transport side of one session: it is the session's
// core.Connection, its outbound PeerQueue and its SignalConnection.
type wsClient struct {
	id   domain.ClientID
	conn *websocket.Conn
	send chan core.Frame
	ctl  *SignalWSController

	mu     sync.RWMutex
	closed bool
	hooks  []func()
}

var (
	_ core.Connection       = (*wsClient)(nil)
	_ core.PeerQueue        = (*wsClient)(nil)
	_ core.SignalConnection = (*wsClient)(nil)
)

func newWsClient(id domain.ClientID, conn *websocket.Conn, buffer int, ctl *SignalWSController) *wsClient {
	return &wsClient{
		id:   id,
		conn: conn,
		send: make(chan core.Frame, buffer),
		ctl:  ctl,
	}
}

func (c *wsClient) ID() domain.ClientID { return c.id }

func (c *wsClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// OnDisconnect hooks run in registration order; late registrations on a
// closed client run immediately.
func (c *wsClient) OnDisconnect(fn func()) {
	c.mu.Lock()
	if !c.closed {
		c.hooks = append(c.hooks, fn)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	fn()
}

func (c *wsClient) PeerQueue() core.PeerQueue { return c }

func (c *wsClient) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsClient) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
	hooks := c.hooks
	c.hooks = nil
	c.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	id, err := domain.ParseClientID(c.GetString("client_token"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(id)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	if ctl.opts.ReadLimit > 0 {
		ws.SetReadLimit(ctl.opts.ReadLimit)
	}

	client := newWsClient(id, ws, ctl.opts.SendBuffer, ctl)
	user := &domain.User{ID: id, Username: defaultUsername(id)}
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Connect(client, user, client, cancel)
	client.OnDisconnect(func() {
		if ctl.Toggles != nil {
			ctl.Toggles.Forget(id)
		}
	})

	go func() {
		<-ctx.Done()
		client.Close()
	}()
	go ctl.writePump(ctx, client)
	go ctl.readPump(ctx, cancel, client)
}

// onBackpressure applies the policy to a client whose send buffer is full.
func (ctl *SignalWSController) onBackpressure(id domain.ClientID) {
	sess, ok := ctl.Orch.Registry.Lookup(id)
	if !ok {
		return
	}
	action := ctl.Policy.OnBackPressure(sess)
	log.Warn().Str("module", "signal").Str("sid", string(id)).Int("action", int(action)).Msg("send buffer full")
	if action == app.KickMember {
		ctl.Orch.Kick(id)
	}
}
