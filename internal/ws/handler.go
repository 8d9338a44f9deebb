// Package ws bridges server-side websocket connections to draft rooms.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mido3801/pokedraft/internal/hub"
	"github.com/mido3801/pokedraft/internal/room"
	"github.com/mido3801/pokedraft/internal/types"
)

// Handler upgrades GET /ws?draft=ID to a websocket and pumps frames between
// the connection and its room.
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		draftID := r.URL.Query().Get("draft")
		if draftID == "" {
			http.Error(w, "missing draft id", http.StatusBadRequest)
			return
		}

		reply := make(chan *room.Room, 1)
		h.Inbox() <- hub.GetRoom{ID: draftID, Reply: reply}
		rm := <-reply
		if rm == nil {
			http.Error(w, "draft not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		connID := uuid.NewString()
		out := make(chan types.Envelope, 16)

		rm.Inbox() <- room.Join{ConnID: connID, Outbox: out}
		defer func() { rm.Inbox() <- room.Leave{ConnID: connID} }()

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for env := range out {
				raw, err := env.Encode()
				if err != nil {
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				_ = conn.Write(ctx, websocket.MessageText, raw)
				cancel()
			}
		}()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			env, err := types.DecodeEnvelope(data)
			if err != nil || env.Event == "" {
				errEnv, _ := types.NewEnvelope(types.EvtError, types.ErrorMsg{Code: types.CodeBadFrame, Message: "bad json"})
				raw, _ := errEnv.Encode()
				_ = conn.Write(r.Context(), websocket.MessageText, raw)
				continue
			}

			rm.Inbox() <- room.FromClient{ConnID: connID, Env: env}
		}
	}
}
