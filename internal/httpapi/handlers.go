package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/draft-relay/internal/engine"
	"github.com/DoyleJ11/draft-relay/internal/hub"
)

const (
	codeAttempts = 8
	codeLength   = 6
	codeCharset  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var codeAlphabetSize = big.NewInt(int64(len(codeCharset)))

// GenerateCode returns n characters drawn uniformly from codeCharset. Room
// codes only use characters accepted by the socket route pattern.
func GenerateCode(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	for b.Len() < n {
		idx, err := rand.Int(rand.Reader, codeAlphabetSize)
		if err != nil {
			return "", fmt.Errorf("room code: %w", err)
		}
		b.WriteByte(codeCharset[idx.Int64()])
	}
	return b.String(), nil
}

// CreateRoom reserves a fresh room code with a draft of the requested style.
func CreateRoom(h *hub.Hub, defaultStyle string, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		style := r.URL.Query().Get("style")
		if style == "" {
			style = defaultStyle
		}
		if _, err := h.Catalog().Lookup(style); err != nil {
			http.Error(w, "unknown draft style", http.StatusBadRequest)
			return
		}

		for i := 0; i < codeAttempts; i++ {
			code, err := GenerateCode(codeLength)
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			_, created, err := h.GetOrCreate(r.Context(), code, style)
			if err != nil {
				log.Error("create room", zap.Error(err))
				http.Error(w, "failed to create room", http.StatusInternalServerError)
				return
			}
			if !created {
				log.Debug("collision on code, regenerating", zap.String("code", code))
				continue
			}

			writeJSON(w, http.StatusCreated, struct {
				Code  string `json:"code"`
				Style string `json:"style"`
			}{Code: code, Style: style})
			return
		}
		http.Error(w, "failed to allocate room code", http.StatusServiceUnavailable)
	}
}

func GetStyle(c *engine.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := c.Lookup(chi.URLParam(r, "styleID"))
		if err != nil {
			http.Error(w, "unknown draft style", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// ListHeroes serves the hero roster shown by draft pages.
func ListHeroes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Heroes []string `json:"heroes"`
	}{Heroes: engine.Heroes()})
}

func ListRooms(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms, err := h.ActiveRooms(r.Context())
		if err != nil {
			http.Error(w, "failed to list rooms", http.StatusInternalServerError)
			return
		}
		if rooms == nil {
			rooms = []string{}
		}
		writeJSON(w, http.StatusOK, struct {
			Rooms []string `json:"rooms"`
		}{Rooms: rooms})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
