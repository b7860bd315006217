package lobby

import (
	"context"
	"errors"
	"io"
	"sort"

	"go.uber.org/zap"

	"github.com/DoyleJ11/draft-relay/internal/broadcast"
	"github.com/DoyleJ11/draft-relay/internal/engine"
)

var ErrRoleTaken = errors.New("role already taken")
var ErrLobbyClosed = errors.New("lobby closed")

type Msg interface{ isLobbyMsg() }

// Join registers Conn under Role. OnJoined, when set, runs on the lobby
// goroutine right after registration, before any later message is handled.
type Join struct {
	Role     string
	Conn     broadcast.Conn
	OnJoined func(r *Room, first bool)
	Reply    chan JoinResult
}

func (Join) isLobbyMsg() {}

type JoinResult struct {
	First bool // no other connection was in the room
	Err   error
}

// Leave drops Role from the room. When ConnID is set the entry is only
// removed if it still belongs to that connection.
type Leave struct {
	Role   string
	ConnID string
	Reply  chan int // connections left in the room
}

func (Leave) isLobbyMsg() {}

// Exec runs Fn on the lobby goroutine with exclusive access to the room.
type Exec struct {
	Fn   func(*Room)
	Done chan struct{}
}

func (Exec) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type View struct {
	Room       string
	StyleID    string
	Turn       int
	Ended      bool
	NumClients int
	Roles      []string
}

// Room is the state a lobby guards. It is only touched from the lobby
// goroutine.
type Room struct {
	ID    string
	Draft *engine.Draft

	clients map[string]broadcast.Conn
}

// Conns returns the connections in the room ordered by role.
func (r *Room) Conns() []broadcast.Conn {
	out := make([]broadcast.Conn, 0, len(r.clients))
	for _, role := range r.roles() {
		out = append(out, r.clients[role])
	}
	return out
}

func (r *Room) Conn(role string) (broadcast.Conn, bool) {
	c, ok := r.clients[role]
	return c, ok
}

func (r *Room) roles() []string {
	roles := make([]string, 0, len(r.clients))
	for role := range r.clients {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

type Lobby struct {
	inbox  chan Msg
	room   *Room
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewLobby(parent context.Context, id string, draft *engine.Draft, log *zap.Logger) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}

	l := &Lobby{
		inbox: make(chan Msg, 64),
		room: &Room{
			ID:      id,
			Draft:   draft,
			clients: make(map[string]broadcast.Conn),
		},
		log:    log.With(zap.String("room", id)),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go l.loop()
	return l
}

func (l *Lobby) ID() string { return l.room.ID }

func (l *Lobby) loop() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				if _, taken := l.room.clients[msg.Role]; taken {
					l.log.Info("role already specified", zap.String("role", msg.Role))
					msg.Reply <- JoinResult{Err: ErrRoleTaken}
					break
				}
				first := len(l.room.clients) == 0
				l.room.clients[msg.Role] = msg.Conn
				l.log.Debug("joined", zap.String("role", msg.Role), zap.Int("clients", len(l.room.clients)))
				if msg.OnJoined != nil {
					msg.OnJoined(l.room, first)
				}
				msg.Reply <- JoinResult{First: first}

			case Leave:
				if c, ok := l.room.clients[msg.Role]; ok && (msg.ConnID == "" || c.ID() == msg.ConnID) {
					delete(l.room.clients, msg.Role)
					l.log.Debug("left", zap.String("role", msg.Role), zap.Int("clients", len(l.room.clients)))
				}
				if msg.Reply != nil {
					msg.Reply <- len(l.room.clients)
				}

			case Exec:
				msg.Fn(l.room)
				close(msg.Done)

			case GetState:
				msg.Reply <- View{
					Room:       l.room.ID,
					StyleID:    l.room.Draft.StyleID(),
					Turn:       l.room.Draft.Turn(),
					Ended:      l.room.Draft.Ended(),
					NumClients: len(l.room.clients),
					Roles:      l.room.roles(),
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) shutdown() {
	for role, c := range l.room.clients {
		if cl, ok := c.(io.Closer); ok {
			if err := cl.Close(); err != nil {
				l.log.Debug("close client", zap.String("role", role), zap.Error(err))
			}
		}
		delete(l.room.clients, role)
	}
	l.cancel()
}

// Expose the inbox so tests or the hub can send messages directly.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Done is closed once the lobby goroutine has exited.
func (l *Lobby) Done() <-chan struct{} { return l.done }

func (l *Lobby) send(ctx context.Context, m Msg) error {
	select {
	case l.inbox <- m:
		return nil
	case <-l.done:
		return ErrLobbyClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, l *Lobby, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-l.done:
		return zero, ErrLobbyClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (l *Lobby) Join(ctx context.Context, role string, conn broadcast.Conn, onJoined func(*Room, bool)) (bool, error) {
	reply := make(chan JoinResult, 1)
	if err := l.send(ctx, Join{Role: role, Conn: conn, OnJoined: onJoined, Reply: reply}); err != nil {
		return false, err
	}
	res, err := await[JoinResult](ctx, l, reply)
	if err != nil {
		return false, err
	}
	return res.First, res.Err
}

// Leave returns the number of connections still in the room.
func (l *Lobby) Leave(ctx context.Context, role, connID string) (int, error) {
	reply := make(chan int, 1)
	if err := l.send(ctx, Leave{Role: role, ConnID: connID, Reply: reply}); err != nil {
		return 0, err
	}
	return await[int](ctx, l, reply)
}

// Exec blocks until fn has run on the lobby goroutine.
func (l *Lobby) Exec(ctx context.Context, fn func(*Room)) error {
	done := make(chan struct{})
	if err := l.send(ctx, Exec{Fn: fn, Done: done}); err != nil {
		return err
	}
	_, err := await[struct{}](ctx, l, done)
	return err
}

func (l *Lobby) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := l.send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	return await[View](ctx, l, reply)
}

// Close stops the lobby and waits for its goroutine to exit.
func (l *Lobby) Close() {
	l.cancel()
	<-l.done
}
