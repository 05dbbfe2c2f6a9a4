package relay

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// 附件以 base64 随消息传输，上限需覆盖一张大图。
	maxMessageSize = 64 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 << 10,
	WriteBufferSize: 32 << 10,
	CheckOrigin: func(r *http.Request) bool {
		// 受限侧来自浏览器扩展（chrome-extension:// 等），不做来源校验。
		return true
	},
}

type wsTransport struct {
	conn *websocket.Conn
	wmu  sync.Mutex

	closeOnce sync.Once
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Send(m Message) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := t.conn.WriteJSON(m); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// Recv 不感知 ctx：Peer.Run 在 ctx 结束时关闭连接来打断阻塞读。
func (t *wsTransport) Recv(_ context.Context) (Message, error) {
	var m Message
	if err := t.conn.ReadJSON(&m); err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return Message{}, ErrClosed
		}
		return Message{}, err
	}
	return m, nil
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.wmu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		t.wmu.Unlock()
		err = t.conn.Close()
	})
	return err
}

func (t *wsTransport) keepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			t.wmu.Lock()
			err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			t.wmu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// NewWSPeer 把已建立的 websocket 连接包装为 Peer（读循环需调用方 Run）。
func NewWSPeer(conn *websocket.Conn, logger zerolog.Logger) *Peer {
	return newPeer(newWSTransport(conn), logger.With().Str("component", "relay").Str("transport", "ws").Logger())
}

// DialWS 连接特权侧的 relay 端点，并在后台启动读循环。
func DialWS(ctx context.Context, rawURL string, header http.Header, logger zerolog.Logger) (*Peer, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	p := NewWSPeer(conn, logger.With().Str("side", "restricted").Logger())
	go p.Run(context.Background())
	return p, nil
}

// Hub 跟踪已连接的受限侧 Peer，用于推送 tab-active 这类通知。
type Hub struct {
	mu     sync.RWMutex
	peers  map[*Peer]struct{}
	setup  func(*Peer)
	logger zerolog.Logger
}

// NewHub 的 setup 在每个新连接上注册特权侧消息处理。
func NewHub(logger zerolog.Logger, setup func(*Peer)) *Hub {
	return &Hub{
		peers:  make(map[*Peer]struct{}),
		setup:  setup,
		logger: logger.With().Str("component", "relay-hub").Logger(),
	}
}

// ServeHTTP 升级为 websocket 并阻塞到连接关闭。
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket 升级失败")
		return
	}
	p := NewWSPeer(conn, h.logger.With().Str("side", "privileged").Str("remote", r.RemoteAddr).Logger())
	if h.setup != nil {
		h.setup(p)
	}

	h.mu.Lock()
	h.peers[p] = struct{}{}
	h.mu.Unlock()
	h.logger.Info().Str("remote", r.RemoteAddr).Msg("relay 连接建立")

	err = p.Run(r.Context())

	h.mu.Lock()
	delete(h.peers, p)
	h.mu.Unlock()
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		h.logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("relay 连接结束")
	}
}

// Broadcast 向全部连接发送通知；单个连接失败只记录日志。
func (h *Hub) Broadcast(ctx context.Context, name string, data any) error {
	h.mu.RLock()
	peers := make([]*Peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	for _, p := range peers {
		if err := p.Notify(ctx, name, data); err != nil {
			h.logger.Warn().Err(err).Str("name", name).Msg("推送通知失败")
		}
	}
	return ctx.Err()
}

// Count 返回当前连接数。
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Notify 等同于 Broadcast，使 Hub 与单个 Peer 可以互换作为通知出口。
func (h *Hub) Notify(ctx context.Context, name string, data any) error {
	return h.Broadcast(ctx, name, data)
}
