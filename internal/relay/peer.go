package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Channel 是受限侧看到的 relay 能力。
type Channel interface {
	// Call 发送请求并阻塞到回复、通道关闭或 ctx 结束。relay 本身不设超时。
	Call(ctx context.Context, name string, data any) (json.RawMessage, error)
	// Notify 发送单向通知。
	Notify(ctx context.Context, name string, data any) error
}

// HandlerFunc 处理一个请求或通知；返回值作为回复载荷（通知的返回值被丢弃）。
type HandlerFunc func(ctx context.Context, msg Message) (any, error)

// RemoteError 是对端处理请求失败时回传的错误文本。
type RemoteError struct {
	Name    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// transport 是帧的收发层。Recv 在连接关闭后返回 ErrClosed（或底层错误）。
type transport interface {
	Send(m Message) error
	Recv(ctx context.Context) (Message, error)
	Close() error
}

// Peer 是通道的一端：既可以发起请求，也可以处理对端请求。
//
// 约束：
// - 回复按 ID 路由到等待者；未知 ID 的回复被丢弃
// - 每个请求在独立 goroutine 中处理，并且恰好回复一次
// - 通道关闭后所有未决 Call 返回 ErrClosed
type Peer struct {
	t      transport
	logger zerolog.Logger

	mu       sync.Mutex
	pending  map[string]chan Message
	handlers map[string]HandlerFunc

	done      chan struct{}
	closeOnce sync.Once
}

func newPeer(t transport, logger zerolog.Logger) *Peer {
	return &Peer{
		t:        t,
		logger:   logger,
		pending:  make(map[string]chan Message),
		handlers: make(map[string]HandlerFunc),
		done:     make(chan struct{}),
	}
}

// Handle 注册消息处理函数（同名覆盖）。
func (p *Peer) Handle(name string, h HandlerFunc) {
	p.mu.Lock()
	p.handlers[name] = h
	p.mu.Unlock()
}

// Done 在通道关闭后关闭。
func (p *Peer) Done() <-chan struct{} { return p.done }

func (p *Peer) Call(ctx context.Context, name string, data any) (json.RawMessage, error) {
	raw, err := encodeData(data)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	ch := make(chan Message, 1)

	p.mu.Lock()
	select {
	case <-p.done:
		p.mu.Unlock()
		return nil, ErrClosed
	default:
	}
	p.pending[id] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	if err := p.t.Send(Message{ID: id, Name: name, Data: raw}); err != nil {
		return nil, err
	}

	select {
	case m := <-ch:
		if m.Error != "" {
			return nil, &RemoteError{Name: name, Message: m.Error}
		}
		return m.Data, nil
	case <-p.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Peer) Notify(ctx context.Context, name string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := encodeData(data)
	if err != nil {
		return err
	}
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	return p.t.Send(Message{Name: name, Data: raw})
}

// Run 读取帧直到传输关闭或 ctx 结束，然后关闭 Peer。
func (p *Peer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer p.Close()

	if ka, ok := p.t.(interface{ keepAlive(<-chan struct{}) }); ok {
		go ka.keepAlive(p.done)
	}
	go func() {
		select {
		case <-ctx.Done():
			p.Close()
		case <-p.done:
		}
	}()

	for {
		m, err := p.t.Recv(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if m.Reply {
			p.deliver(m)
			continue
		}
		go p.dispatch(ctx, m)
	}
}

// Close 关闭传输并唤醒全部等待者。可重复调用。
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		err = p.t.Close()
	})
	return err
}

func (p *Peer) deliver(m Message) {
	p.mu.Lock()
	ch, ok := p.pending[m.ID]
	p.mu.Unlock()
	if !ok {
		p.logger.Debug().Str("id", m.ID).Str("name", m.Name).Msg("丢弃无主回复")
		return
	}
	select {
	case ch <- m:
	default:
	}
}

func (p *Peer) dispatch(ctx context.Context, m Message) {
	p.mu.Lock()
	h := p.handlers[m.Name]
	p.mu.Unlock()

	var (
		out any
		err error
	)
	if h == nil {
		err = fmt.Errorf("未知消息 %q", m.Name)
	} else {
		out, err = safeHandle(ctx, h, m)
	}

	if m.ID == "" {
		if err != nil {
			p.logger.Warn().Err(err).Str("name", m.Name).Msg("通知处理失败")
		}
		return
	}

	reply := Message{ID: m.ID, Name: m.Name, Reply: true}
	if err != nil {
		reply.Error = err.Error()
	} else if reply.Data, err = encodeData(out); err != nil {
		reply.Data, reply.Error = nil, err.Error()
	}
	if err := p.t.Send(reply); err != nil && !errors.Is(err, ErrClosed) {
		p.logger.Warn().Err(err).Str("name", m.Name).Str("id", m.ID).Msg("发送回复失败")
	}
}

func safeHandle(ctx context.Context, h HandlerFunc, m Message) (out any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, fmt.Errorf("处理 %q panic：%v", m.Name, rec)
		}
	}()
	return h(ctx, m)
}

func encodeData(v any) (json.RawMessage, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return x, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("编码消息载荷失败：%w", err)
	}
	return b, nil
}
