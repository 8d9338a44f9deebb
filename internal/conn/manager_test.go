package conn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/mido3801/pokedraft/internal/types"
)

func testPolicy() Policy {
	return Policy{BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, MaxAttempts: 5}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// statusRecorder collects lifecycle transitions on a channel so tests can
// wait for them without polling.
type statusRecorder struct {
	ch chan statusChange
}

type statusChange struct {
	status Status
	err    error
}

func newStatusRecorder() *statusRecorder {
	return &statusRecorder{ch: make(chan statusChange, 16)}
}

func (r *statusRecorder) record(s Status, err error) {
	r.ch <- statusChange{status: s, err: err}
}

func (r *statusRecorder) wait(t *testing.T, want Status, within time.Duration) statusChange {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case c := <-r.ch:
			if c.status == want {
				return c
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %v", want)
			return statusChange{}
		}
	}
}

func TestConnectSendsJoinHandshake(t *testing.T) {
	joined := make(chan types.JoinDraft, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "bye")
		_, data, err := c.Read(r.Context())
		if err != nil {
			return
		}
		env, _ := types.DecodeEnvelope(data)
		if env.Event == types.EvtJoinDraft {
			var j types.JoinDraft
			_ = env.Decode(&j)
			joined <- j
		}
		// Hold the connection open until the client leaves.
		_, _, _ = c.Read(r.Context())
	}))
	defer srv.Close()

	rec := newStatusRecorder()
	m := New(context.Background(), wsURL(srv), types.JoinDraft{TeamID: "a", UserToken: "tok"}, testPolicy(), nil)
	m.OnStatus(rec.record)
	m.Connect()

	rec.wait(t, StatusOpen, time.Second)
	select {
	case j := <-joined:
		require.Equal(t, "a", j.TeamID)
		require.Equal(t, "tok", j.UserToken)
	case <-time.After(time.Second):
		t.Fatal("server never saw join_draft")
	}
	m.Close()
}

func TestDispatchSurvivesMalformedFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "bye")
		_, _, _ = c.Read(r.Context()) // join
		_ = c.Write(r.Context(), websocket.MessageText, []byte("{not json"))
		env, _ := types.NewEnvelope(types.EvtTimerTick, types.TimerTick{RemainingSec: 42})
		raw, _ := env.Encode()
		_ = c.Write(r.Context(), websocket.MessageText, raw)
		_, _, _ = c.Read(r.Context())
	}))
	defer srv.Close()

	got := make(chan int, 1)
	m := New(context.Background(), wsURL(srv), types.JoinDraft{}, testPolicy(), nil)
	m.OnEvent(types.EvtTimerTick, func(data json.RawMessage) {
		var tick types.TimerTick
		require.NoError(t, json.Unmarshal(data, &tick))
		got <- tick.RemainingSec
	})
	m.Connect()
	defer m.Close()

	select {
	case v := <-got:
		require.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("frame after malformed frame was not dispatched")
	}
}

func TestReconnectsAfterUnexpectedDrop(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := count.Add(1)
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		if n == 1 {
			// Abrupt teardown; not a policy violation.
			c.Close(websocket.StatusInternalError, "oops")
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "bye")
		_, _, _ = c.Read(r.Context())
		_, _, _ = c.Read(r.Context())
	}))
	defer srv.Close()

	rec := newStatusRecorder()
	m := New(context.Background(), wsURL(srv), types.JoinDraft{}, testPolicy(), nil)
	m.OnStatus(rec.record)
	m.Connect()

	rec.wait(t, StatusReconnecting, time.Second)
	rec.wait(t, StatusOpen, time.Second)
	require.GreaterOrEqual(t, count.Load(), int32(2))
	m.Close()
}

func TestPolicyViolationCloseIsTerminal(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		_, _, _ = c.Read(r.Context()) // join
		c.Close(websocket.StatusPolicyViolation, "banned")
	}))
	defer srv.Close()

	rec := newStatusRecorder()
	m := New(context.Background(), wsURL(srv), types.JoinDraft{}, testPolicy(), nil)
	m.OnStatus(rec.record)
	m.Connect()

	c := rec.wait(t, StatusClosed, time.Second)
	require.ErrorIs(t, c.err, ErrRejected)

	// No reconnect should follow a deliberate rejection.
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int32(1), count.Load())
}

func TestForbiddenDialIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	rec := newStatusRecorder()
	m := New(context.Background(), wsURL(srv), types.JoinDraft{}, testPolicy(), nil)
	m.OnStatus(rec.record)
	m.Connect()

	c := rec.wait(t, StatusClosed, time.Second)
	require.ErrorIs(t, c.err, ErrRejected)
}

func TestStatusTransitionsObservedInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rec := newStatusRecorder()
	p := Policy{BaseDelay: 5 * time.Millisecond, MaxDelay: 10 * time.Millisecond, MaxAttempts: 2}
	m := New(context.Background(), wsURL(srv), types.JoinDraft{}, p, nil)
	m.OnStatus(rec.record)
	m.Connect()

	var got []Status
	deadline := time.After(2 * time.Second)
collect:
	for {
		select {
		case c := <-rec.ch:
			got = append(got, c.status)
			if c.status == StatusClosed {
				break collect
			}
		case <-deadline:
			t.Fatalf("never reached closed; saw %v", got)
		}
	}

	// Dial and retry strictly alternate until the cap; any other order means
	// notifications raced each other.
	want := []Status{
		StatusConnecting, StatusReconnecting,
		StatusConnecting, StatusReconnecting,
		StatusConnecting, StatusClosed,
	}
	require.Equal(t, want, got)
}

func TestGivesUpAfterAttemptCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rec := newStatusRecorder()
	p := Policy{BaseDelay: 5 * time.Millisecond, MaxDelay: 10 * time.Millisecond, MaxAttempts: 3}
	m := New(context.Background(), wsURL(srv), types.JoinDraft{}, p, nil)
	m.OnStatus(rec.record)
	m.Connect()

	c := rec.wait(t, StatusClosed, 2*time.Second)
	require.ErrorIs(t, c.err, ErrRetriesExhausted)
}

func TestIntentionalCloseDoesNotReconnect(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "bye")
		_, _, _ = c.Read(r.Context())
		_, _, _ = c.Read(r.Context())
	}))
	defer srv.Close()

	rec := newStatusRecorder()
	m := New(context.Background(), wsURL(srv), types.JoinDraft{}, testPolicy(), nil)
	m.OnStatus(rec.record)
	m.Connect()
	rec.wait(t, StatusOpen, time.Second)

	m.Close()
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int32(1), count.Load())
	require.NotEqual(t, StatusReconnecting, m.Status())
}
