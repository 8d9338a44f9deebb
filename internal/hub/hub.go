// Package hub is the registry of live draft rooms, itself an actor so room
// creation and lookup serialize without locks.
package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/mido3801/pokedraft/internal/engine"
	"github.com/mido3801/pokedraft/internal/filter"
	"github.com/mido3801/pokedraft/internal/room"
)

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	ID    string
	State engine.State
	Reply chan *room.Room
}

type GetRoom struct {
	ID    string
	Reply chan *room.Room
}

type EnsureRoom struct {
	ID    string
	State engine.State // only used if creation happens
	Reply chan *room.Room
}

type RemoveRoom struct {
	ID string
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox   chan HubMsg
	rooms   map[string]*room.Room
	catalog []filter.Species
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, catalog []filter.Species, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		rooms:   make(map[string]*room.Room),
		catalog: catalog,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if r := h.rooms[msg.ID]; r != nil {
					msg.Reply <- r
					break
				}
				msg.Reply <- h.createRoom(msg.ID, msg.State)

			case GetRoom:
				msg.Reply <- h.rooms[msg.ID] // may be nil

			case EnsureRoom:
				if r := h.rooms[msg.ID]; r != nil {
					msg.Reply <- r
					break
				}
				msg.Reply <- h.createRoom(msg.ID, msg.State)

			case RemoveRoom:
				delete(h.rooms, msg.ID)
				h.log.Info("room removed", zap.String("draft", msg.ID))

			case ShutdownHub:
				for _, r := range h.rooms {
					r.Inbox() <- room.Shutdown{}
				}
				clear(h.rooms)
				h.cancel()
			}
		}
	}
}

// createRoom starts a room and a reaper that unregisters it once the room
// retires (draft finished and every connection gone).
func (h *Hub) createRoom(id string, state engine.State) *room.Room {
	r := room.New(h.ctx, id, state, h.catalog, h.log)
	h.rooms[id] = r
	go func() {
		select {
		case <-r.Done():
			select {
			case h.inbox <- RemoveRoom{ID: id}:
			case <-h.ctx.Done():
			}
		case <-h.ctx.Done():
		}
	}()
	return r
}
