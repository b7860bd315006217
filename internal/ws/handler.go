package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/draft-relay/internal/session"
)

type Options struct {
	OutboxSize     int
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration // zero waits forever
	OriginPatterns []string
}

// Handler upgrades the request and runs the connection until either side
// closes it. Room, role and style come from the chi route params of the
// same names.
func Handler(m *session.Manager, log *zap.Logger, opts Options) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = 16
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 3 * time.Second
	}

	return func(w http.ResponseWriter, r *http.Request) {
		params := session.Params{
			Room:    chi.URLParam(r, "room"),
			Role:    chi.URLParam(r, "role"),
			StyleID: chi.URLParam(r, "style"),
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("accept", zap.Error(err))
			return
		}

		client := newClient(uuid.NewString(), conn, opts.OutboxSize, opts.WriteTimeout, log)
		defer func() {
			_ = client.Close()
			<-client.Done()
		}()

		ctx := r.Context()
		s, err := m.OnConnect(ctx, client, params)
		if err != nil {
			return
		}
		defer m.OnDisconnect(ctx, s)

		// Reader loop
		for {
			_, data, err := read(ctx, conn, opts.ReadTimeout)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("read", zap.String("conn", client.ID()), zap.Error(err))
				}
				return
			}
			if err := m.OnMessage(ctx, s, string(data)); err != nil {
				if !errors.Is(err, session.ErrClosing) {
					log.Warn("message", zap.String("conn", client.ID()), zap.Error(err))
				}
				return
			}
		}
	}
}

func read(ctx context.Context, conn *websocket.Conn, timeout time.Duration) (websocket.MessageType, []byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return conn.Read(ctx)
}
