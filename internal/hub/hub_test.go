package hub

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mido3801/pokedraft/internal/engine"
	"github.com/mido3801/pokedraft/internal/room"
	"github.com/mido3801/pokedraft/internal/types"
)

func reply(t *testing.T, ch chan *room.Room) *room.Room {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(time.Second):
		t.Fatalf("no reply from hub")
		return nil
	}
}

func TestCreateThenGetReturnsSameRoom(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewHub(ctx, nil, zap.NewNop())

	state := engine.NewState(engine.FormatSnake, engine.Rules{RosterSize: 2})

	ch := make(chan *room.Room, 1)
	h.Inbox() <- CreateRoom{ID: "ABC123", State: state, Reply: ch}
	created := reply(t, ch)
	if created == nil {
		t.Fatal("create returned nil")
	}

	h.Inbox() <- GetRoom{ID: "ABC123", Reply: ch}
	if got := reply(t, ch); got != created {
		t.Fatalf("get returned a different room")
	}

	// Creating the same ID again must not replace the live room.
	h.Inbox() <- CreateRoom{ID: "ABC123", State: state, Reply: ch}
	if got := reply(t, ch); got != created {
		t.Fatalf("duplicate create replaced the room")
	}
}

func TestGetUnknownRoomIsNil(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewHub(ctx, nil, zap.NewNop())

	ch := make(chan *room.Room, 1)
	h.Inbox() <- GetRoom{ID: "NOPE", Reply: ch}
	if got := reply(t, ch); got != nil {
		t.Fatalf("expected nil for unknown room, got %v", got)
	}
}

func TestEnsureRoomCreatesOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewHub(ctx, nil, zap.NewNop())

	state := engine.NewState(engine.FormatLinear, engine.Rules{RosterSize: 3})

	ch := make(chan *room.Room, 1)
	h.Inbox() <- EnsureRoom{ID: "XYZ789", State: state, Reply: ch}
	first := reply(t, ch)

	h.Inbox() <- EnsureRoom{ID: "XYZ789", State: state, Reply: ch}
	if got := reply(t, ch); got != first {
		t.Fatalf("ensure created a second room for the same ID")
	}
}

func TestFinishedRoomIsReaped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewHub(ctx, nil, zap.NewNop())

	ch := make(chan *room.Room, 1)
	state := engine.NewState(engine.FormatLinear, engine.Rules{RosterSize: 1, PickTimerSec: 60})
	h.Inbox() <- CreateRoom{ID: "REAP01", State: state, Reply: ch}
	r := reply(t, ch)

	outA := make(chan types.Envelope, 32)
	outB := make(chan types.Envelope, 32)
	r.Inbox() <- room.Join{ConnID: "c1", Outbox: outA}
	r.Inbox() <- room.Join{ConnID: "c2", Outbox: outB}
	r.Inbox() <- intent(t, "c1", types.EvtJoinDraft, types.JoinDraft{TeamID: "a", TeamName: "Team A"})
	r.Inbox() <- intent(t, "c2", types.EvtJoinDraft, types.JoinDraft{TeamID: "b", TeamName: "Team B"})
	r.Inbox() <- intent(t, "c1", types.EvtStartDraft, types.StartDraft{})
	r.Inbox() <- intent(t, "c1", types.EvtMakePick, types.MakePick{PokemonID: 7})
	r.Inbox() <- intent(t, "c2", types.EvtMakePick, types.MakePick{PokemonID: 3})
	r.Inbox() <- room.Leave{ConnID: "c1"}
	r.Inbox() <- room.Leave{ConnID: "c2"}

	deadline := time.Now().Add(2 * time.Second)
	for {
		h.Inbox() <- GetRoom{ID: "REAP01", Reply: ch}
		if got := reply(t, ch); got == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("finished room was never removed from the hub")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func intent(t *testing.T, connID, event string, payload any) room.FromClient {
	t.Helper()
	env, err := types.NewEnvelope(event, payload)
	if err != nil {
		t.Fatalf("encoding %s: %v", event, err)
	}
	return room.FromClient{ConnID: connID, Env: env}
}

func TestRemoveRoomForgetsIt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewHub(ctx, nil, zap.NewNop())

	ch := make(chan *room.Room, 1)
	h.Inbox() <- CreateRoom{ID: "GONE01", State: engine.NewState(engine.FormatSnake, engine.Rules{RosterSize: 1}), Reply: ch}
	reply(t, ch)

	h.Inbox() <- RemoveRoom{ID: "GONE01"}
	h.Inbox() <- GetRoom{ID: "GONE01", Reply: ch}
	if got := reply(t, ch); got != nil {
		t.Fatalf("room should be forgotten after removal")
	}
}
