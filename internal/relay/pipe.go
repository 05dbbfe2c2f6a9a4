package relay

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Pipe 返回一对进程内相连的 Peer（受限侧、特权侧），读循环已启动。
// 任一端 Close 都会关闭整条管道。
func Pipe(logger zerolog.Logger) (restricted, privileged *Peer) {
	ab := make(chan Message, 64)
	ba := make(chan Message, 64)
	closed := make(chan struct{})
	once := &sync.Once{}

	a := &pipeEnd{in: ba, out: ab, closed: closed, once: once}
	b := &pipeEnd{in: ab, out: ba, closed: closed, once: once}

	restricted = newPeer(a, logger.With().Str("component", "relay").Str("side", "restricted").Logger())
	privileged = newPeer(b, logger.With().Str("component", "relay").Str("side", "privileged").Logger())
	go restricted.Run(context.Background())
	go privileged.Run(context.Background())
	return restricted, privileged
}

type pipeEnd struct {
	in     <-chan Message
	out    chan<- Message
	closed chan struct{}
	once   *sync.Once
}

func (e *pipeEnd) Send(m Message) error {
	select {
	case <-e.closed:
		return ErrClosed
	default:
	}
	select {
	case e.out <- m:
		return nil
	case <-e.closed:
		return ErrClosed
	}
}

func (e *pipeEnd) Recv(ctx context.Context) (Message, error) {
	select {
	case m := <-e.in:
		return m, nil
	case <-e.closed:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (e *pipeEnd) Close() error {
	e.once.Do(func() { close(e.closed) })
	return nil
}
