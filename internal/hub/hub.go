package hub

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/DoyleJ11/draft-relay/internal/broadcast"
	"github.com/DoyleJ11/draft-relay/internal/engine"
	"github.com/DoyleJ11/draft-relay/internal/lobby"
)

var (
	ErrRoleTaken  = lobby.ErrRoleTaken
	ErrHubClosed  = errors.New("hub closed")
	ErrNoSuchRoom = errors.New("no such room")
)

type HubMsg interface{ isHubMsg() }

// EnsureLobby returns the room's lobby, creating it with a fresh draft of
// StyleID when the room is unknown. StyleID is ignored for existing rooms.
type EnsureLobby struct {
	Code    string
	StyleID string
	Reply   chan EnsureResult
}

type EnsureResult struct {
	Lobby   *lobby.Lobby
	Created bool
	Err     error
}

type GetLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type ListLobbies struct {
	Reply chan []*lobby.Lobby
}

type ShutdownHub struct{}

func (EnsureLobby) isHubMsg() {}
func (GetLobby) isHubMsg()    {}
func (ListLobbies) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

// Hub is the room registry. Lobbies are kept after their last connection
// leaves so a rejoin sees the same draft.
type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	catalog *engine.Catalog
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewHub(parent context.Context, catalog *engine.Catalog, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		catalog: catalog,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Catalog() *engine.Catalog { return h.catalog }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureLobby:
				if lb := h.lobbies[msg.Code]; lb != nil {
					msg.Reply <- EnsureResult{Lobby: lb}
					break
				}
				d, err := engine.NewDraft(h.catalog, msg.StyleID)
				if err != nil {
					msg.Reply <- EnsureResult{Err: err}
					break
				}
				lb := lobby.NewLobby(h.ctx, msg.Code, d, h.log)
				h.lobbies[msg.Code] = lb
				h.log.Info("room created", zap.String("room", msg.Code), zap.String("style", msg.StyleID))
				msg.Reply <- EnsureResult{Lobby: lb, Created: true}

			case GetLobby:
				msg.Reply <- h.lobbies[msg.Code] // May be nil

			case ListLobbies:
				out := make([]*lobby.Lobby, 0, len(h.lobbies))
				for _, lb := range h.lobbies {
					out = append(out, lb)
				}
				msg.Reply <- out

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for _, lb := range h.lobbies {
		lb.Close()
	}
	clear(h.lobbies)
	h.cancel()
}

// Shutdown stops every lobby and the hub goroutine.
func (h *Hub) Shutdown() {
	h.cancel()
	<-h.done
}

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func recv[T any](ctx context.Context, h *Hub, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-h.done:
		return zero, ErrHubClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// GetOrCreate returns the lobby for room, creating one for styleID if the
// room has never been seen. Unknown styles fail with engine.ErrUnknownStyle.
func (h *Hub) GetOrCreate(ctx context.Context, room, styleID string) (*lobby.Lobby, bool, error) {
	reply := make(chan EnsureResult, 1)
	if err := h.send(ctx, EnsureLobby{Code: room, StyleID: styleID, Reply: reply}); err != nil {
		return nil, false, err
	}
	res, err := recv[EnsureResult](ctx, h, reply)
	if err != nil {
		return nil, false, err
	}
	return res.Lobby, res.Created, res.Err
}

// Lookup returns nil without error when the room does not exist.
func (h *Hub) Lookup(ctx context.Context, room string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	if err := h.send(ctx, GetLobby{Code: room, Reply: reply}); err != nil {
		return nil, err
	}
	return recv[*lobby.Lobby](ctx, h, reply)
}

type JoinOutcome struct {
	Lobby       *lobby.Lobby
	FirstInRoom bool
}

// Join registers conn under (room, role), creating the room on first use.
// onJoined runs inside the room's lobby right after registration.
func (h *Hub) Join(ctx context.Context, room, role, styleID string, conn broadcast.Conn, onJoined func(*lobby.Room, bool)) (JoinOutcome, error) {
	lb, _, err := h.GetOrCreate(ctx, room, styleID)
	if err != nil {
		return JoinOutcome{}, err
	}
	first, err := lb.Join(ctx, role, conn, onJoined)
	if err != nil {
		return JoinOutcome{}, err
	}
	return JoinOutcome{Lobby: lb, FirstInRoom: first}, nil
}

// Leave removes role from room. connID guards against removing a newer
// connection that took the role over.
func (h *Hub) Leave(ctx context.Context, room, role, connID string) error {
	lb, err := h.Lookup(ctx, room)
	if err != nil {
		return err
	}
	if lb == nil {
		return ErrNoSuchRoom
	}
	left, err := lb.Leave(ctx, role, connID)
	if err != nil {
		return err
	}
	if left == 0 {
		h.log.Debug("room empty", zap.String("room", room))
	}
	return nil
}

func (h *Hub) ConnectionsInRoom(ctx context.Context, room string) ([]broadcast.Conn, error) {
	lb, err := h.Lookup(ctx, room)
	if err != nil {
		return nil, err
	}
	if lb == nil {
		return nil, nil
	}
	var conns []broadcast.Conn
	err = lb.Exec(ctx, func(r *lobby.Room) { conns = r.Conns() })
	return conns, err
}

// ActiveRooms lists rooms with at least one connection, sorted.
func (h *Hub) ActiveRooms(ctx context.Context) ([]string, error) {
	reply := make(chan []*lobby.Lobby, 1)
	if err := h.send(ctx, ListLobbies{Reply: reply}); err != nil {
		return nil, err
	}
	lobbies, err := recv[[]*lobby.Lobby](ctx, h, reply)
	if err != nil {
		return nil, err
	}

	var active []string
	for _, lb := range lobbies {
		v, err := lb.View(ctx)
		if err != nil {
			if errors.Is(err, lobby.ErrLobbyClosed) {
				continue
			}
			return nil, err
		}
		if v.NumClients > 0 {
			active = append(active, v.Room)
		}
	}
	sort.Strings(active)
	return active, nil
}
