package broadcast

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/draft-relay/internal/types"
)

// Conn is the delivery side of a client connection. Send must not block
// past ctx.
type Conn interface {
	ID() string
	Send(ctx context.Context, payload []byte) error
}

type Options struct {
	// SendTimeout bounds a single delivery attempt.
	SendTimeout time.Duration
	// MaxParallel caps concurrent deliveries within one broadcast.
	MaxParallel int
}

type Broadcaster struct {
	log  *zap.Logger
	opts Options
}

func New(log *zap.Logger, opts Options) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 3 * time.Second
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 8
	}
	return &Broadcaster{log: log, opts: opts}
}

// Broadcast delivers msg to every conn. A failed delivery is logged and
// skipped; it never stops the others and never unregisters the conn.
func (b *Broadcaster) Broadcast(ctx context.Context, conns []Conn, msg any) {
	payload, err := types.Encode(msg)
	if err != nil {
		b.log.Error("encode broadcast", zap.Error(err))
		return
	}

	b.log.Debug("broadcast", zap.Int("conns", len(conns)))

	var g errgroup.Group
	g.SetLimit(b.opts.MaxParallel)
	for _, c := range conns {
		g.Go(func() error {
			b.deliver(ctx, c, payload)
			return nil
		})
	}
	_ = g.Wait()
}

func (b *Broadcaster) Unicast(ctx context.Context, conn Conn, msg any) {
	payload, err := types.Encode(msg)
	if err != nil {
		b.log.Error("encode unicast", zap.Error(err))
		return
	}
	b.deliver(ctx, conn, payload)
}

func (b *Broadcaster) deliver(ctx context.Context, c Conn, payload []byte) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.SendTimeout)
	defer cancel()
	if err := c.Send(ctx, payload); err != nil {
		b.log.Warn("error sending message", zap.String("conn", c.ID()), zap.Error(err))
	}
}
