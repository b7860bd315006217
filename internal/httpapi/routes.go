package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/draft-relay/internal/hub"
	"github.com/DoyleJ11/draft-relay/internal/session"
	"github.com/DoyleJ11/draft-relay/internal/ws"
)

type Deps struct {
	Hub          *hub.Hub
	Sessions     *session.Manager
	Log          *zap.Logger
	WS           ws.Options
	DefaultStyle string
}

func SetupRoutes(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/styles/{styleID}", GetStyle(d.Hub.Catalog()))
	r.Get("/heroes", ListHeroes)
	r.Get("/rooms", ListRooms(d.Hub))
	r.Post("/rooms", CreateRoom(d.Hub, d.DefaultStyle, d.Log))

	// /chatsocket is what existing draft pages dial; /draftsocket is an alias.
	socket := ws.Handler(d.Sessions, d.Log, d.WS)
	for _, base := range []string{"/chatsocket", "/draftsocket"} {
		r.Get(base, socket)
		r.Get(base+"/{room:[a-zA-Z0-9]+}/{role:[a-zA-Z0-9]+}", socket)
		r.Get(base+"/{room:[a-zA-Z0-9]+}/{role:[a-zA-Z0-9]+}/{style:[a-zA-Z0-9]+}", socket)
	}
	return r
}
