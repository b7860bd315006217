package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/draft-relay/internal/broadcast"
	"github.com/DoyleJ11/draft-relay/internal/engine"
	"github.com/DoyleJ11/draft-relay/internal/hub"
	"github.com/DoyleJ11/draft-relay/internal/lobby"
	"github.com/DoyleJ11/draft-relay/internal/types"
)

var ErrNoRoom = errors.New("no room specified")
var ErrNotJoined = errors.New("connection has not joined a room")
var ErrClosing = errors.New("connection is closing")

// releaseTimeout bounds the cleanup Leave sent after an interrupted join.
const releaseTimeout = 2 * time.Second

type State int

const (
	StateConnecting State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Conn is a client connection as seen by the session layer.
type Conn interface {
	broadcast.Conn
	Close() error
}

// Params are the values a client connects with. StyleID only matters for
// the first join to a room.
type Params struct {
	Room    string
	Role    string
	StyleID string
}

// Session tracks one connection. Its methods on Manager must be called from
// the connection's own goroutine.
type Session struct {
	Params
	Conn Conn

	state   State
	closing bool // sender was closed after the draft ended
	lobby   *lobby.Lobby
	log     *zap.Logger
}

func (s *Session) State() State { return s.state }

type Manager struct {
	hub          *hub.Hub
	bc           *broadcast.Broadcaster
	log          *zap.Logger
	defaultStyle string
	now          func() time.Time
}

type Option func(*Manager)

// WithDefaultStyle sets the style used when a client omits one.
func WithDefaultStyle(id string) Option {
	return func(m *Manager) { m.defaultStyle = id }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(h *hub.Hub, bc *broadcast.Broadcaster, log *zap.Logger, opts ...Option) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{hub: h, bc: bc, log: log, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnConnect joins conn to its room. On failure the client is told why, the
// connection is closed and the returned session is already StateClosed.
func (m *Manager) OnConnect(ctx context.Context, conn Conn, p Params) (*Session, error) {
	s := &Session{
		Params: p,
		Conn:   conn,
		state:  StateConnecting,
		log:    m.log.With(zap.String("room", p.Room), zap.String("role", p.Role), zap.String("conn", conn.ID())),
	}

	if p.Room == "" {
		m.reject(ctx, s, types.StatusNoRoom)
		return s, ErrNoRoom
	}
	if s.StyleID == "" {
		s.StyleID = m.defaultStyle
	}

	out, err := m.hub.Join(ctx, p.Room, p.Role, s.StyleID, conn, func(r *lobby.Room, first bool) {
		history := r.Draft.History()
		if first && len(history) == 0 {
			return
		}
		m.bc.Unicast(ctx, conn, types.Replay(history))
	})
	switch {
	case err == nil:
	case errors.Is(err, hub.ErrRoleTaken):
		m.reject(ctx, s, types.StatusRoleTaken)
		return s, err
	case errors.Is(err, engine.ErrUnknownStyle):
		m.reject(ctx, s, types.StatusUnknownStyle)
		return s, err
	default:
		s.log.Error("join failed", zap.Error(err))
		// The lobby may have registered conn before the join was cut short.
		m.release(s)
		s.state = StateClosed
		_ = conn.Close()
		return s, fmt.Errorf("join %s: %w", p.Room, err)
	}

	s.lobby = out.Lobby
	s.state = StateJoined
	s.log.Info("joined", zap.Bool("first", out.FirstInRoom))
	return s, nil
}

// OnMessage applies one pick or ban from the session's side.
func (m *Manager) OnMessage(ctx context.Context, s *Session, payload string) error {
	if s.state != StateJoined {
		return ErrNotJoined
	}
	if s.closing {
		return ErrClosing
	}
	s.log.Debug("received message", zap.String("payload", payload))

	var ended bool
	err := s.lobby.Exec(ctx, func(r *lobby.Room) {
		if r.Draft.Ended() {
			ended = true
			m.bc.Broadcast(ctx, r.Conns(), types.NewNotice(m.now(), types.NoticeDraftEnded))
			return
		}

		ev, err := r.Draft.Submit(engine.Side(s.Role), payload)
		switch {
		case err == nil:
			s.log.Debug("committed", zap.Int("index", ev.Index), zap.String("hero", ev.Payload))
			m.bc.Broadcast(ctx, r.Conns(), types.FromEvent(ev))
		case errors.Is(err, engine.ErrNotYourTurn):
			m.bc.Unicast(ctx, s.Conn, types.NewNotice(m.now(), types.NoticeNotYourTurn))
		case errors.Is(err, engine.ErrDraftEnded):
			ended = true
			m.bc.Broadcast(ctx, r.Conns(), types.NewNotice(m.now(), types.NoticeDraftEnded))
		default:
			s.log.Error("submit", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("room %s: %w", s.Room, err)
	}

	if ended {
		s.closing = true
		s.log.Info("draft has ended, closing sender")
		if err := s.Conn.Close(); err != nil {
			s.log.Debug("close", zap.Error(err))
		}
	}
	return nil
}

// OnDisconnect releases the session's role. Sessions that never joined have
// nothing to release.
func (m *Manager) OnDisconnect(ctx context.Context, s *Session) {
	joined := s.state == StateJoined
	s.state = StateClosed
	if !joined {
		return
	}

	if err := m.hub.Leave(ctx, s.Room, s.Role, s.Conn.ID()); err != nil && !errors.Is(err, lobby.ErrLobbyClosed) && !errors.Is(err, hub.ErrHubClosed) {
		s.log.Warn("leave", zap.Error(err))
		return
	}
	s.log.Info("left")
}

func (m *Manager) release(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	err := m.hub.Leave(ctx, s.Room, s.Role, s.Conn.ID())
	if err != nil && !errors.Is(err, hub.ErrNoSuchRoom) && !errors.Is(err, lobby.ErrLobbyClosed) && !errors.Is(err, hub.ErrHubClosed) {
		s.log.Warn("release after failed join", zap.Error(err))
	}
}

func (m *Manager) reject(ctx context.Context, s *Session, status string) {
	s.log.Info("join rejected", zap.String("reason", status))
	m.bc.Unicast(ctx, s.Conn, types.NewError(status))
	s.state = StateClosed
	if err := s.Conn.Close(); err != nil {
		s.log.Debug("close", zap.Error(err))
	}
}
