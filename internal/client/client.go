// Package client is the facade over the sync engine: bootstrap the caller's
// identity, open the managed connection, and keep the state mirror current.
// Presentation consumes the store and auction views through here.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mido3801/pokedraft/internal/auction"
	"github.com/mido3801/pokedraft/internal/bootstrap"
	"github.com/mido3801/pokedraft/internal/conn"
	"github.com/mido3801/pokedraft/internal/engine"
	"github.com/mido3801/pokedraft/internal/store"
	"github.com/mido3801/pokedraft/internal/types"
)

var ErrNotYourTurn = errors.New("not your turn")
var ErrSpectator = errors.New("spectators cannot act")
var ErrNotPending = errors.New("draft already started")

// Update notifies subscribers that the mirrored state changed. Rejections
// from the server arrive as Kind "reject" with Err set; terminal connection
// failures as Kind "connection".
type Update struct {
	Kind   string
	Status conn.Status
	Err    error
}

type Options struct {
	URL        string
	SessionID  string
	UserToken  string
	Sessions   bootstrap.SessionStore
	Identities bootstrap.IdentityResolver
	Policy     conn.Policy
	Logger     *zap.Logger
}

// Client owns one session view. All state mutation funnels through mu, so
// dispatch and caller intents serialize into a single logical thread.
type Client struct {
	log      *zap.Logger
	identity bootstrap.Identity

	mu  sync.Mutex
	st  *store.Store
	auc *auction.Handler
	mgr *conn.Manager

	subMu sync.Mutex
	subs  []func(Update)
}

// Join resolves the caller's identity and opens the connection.
func Join(ctx context.Context, opts Options) (*Client, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	identity, err := bootstrap.Resolve(ctx, opts.SessionID, opts.UserToken, opts.Sessions, opts.Identities, log)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	policy := opts.Policy
	if policy.MaxAttempts == 0 {
		policy = conn.PrimaryPolicy()
	}
	st := store.New(log)
	c := &Client{
		log:      log,
		identity: identity,
		st:       st,
		auc:      auction.New(st, log),
	}
	join := types.JoinDraft{TeamID: identity.TeamID, UserToken: identity.UserToken}
	c.mgr = conn.New(ctx, opts.URL, join, policy, log)
	c.registerHandlers()
	c.mgr.OnStatus(func(s conn.Status, err error) {
		c.notify(Update{Kind: "connection", Status: s, Err: err})
	})
	c.mgr.Connect()
	return c, nil
}

// Subscribe registers an observer for state changes. Observers may be added
// at any time without touching the connection.
func (c *Client) Subscribe(fn func(Update)) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subs = append(c.subs, fn)
}

func (c *Client) notify(u Update) {
	c.subMu.Lock()
	var subs []func(Update)
	subs = append(subs, c.subs...)
	c.subMu.Unlock()
	for _, fn := range subs {
		fn(u)
	}
}

func (c *Client) registerHandlers() {
	c.mgr.OnEvent(types.EvtDraftState, c.onDraftState)
	c.mgr.OnEvent(types.EvtDraftStarted, func(json.RawMessage) {
		c.locked(func() { c.st.SetStatus(string(engine.StatusLive)) })
		c.notify(Update{Kind: "started"})
	})
	c.mgr.OnEvent(types.EvtPickMade, c.onPickMade)
	c.mgr.OnEvent(types.EvtTurnStart, c.onTurnStart)
	c.mgr.OnEvent(types.EvtTimerTick, c.onTimerTick)
	c.mgr.OnEvent(types.EvtDraftComplete, func(json.RawMessage) {
		c.locked(func() { c.st.SetStatus(string(engine.StatusCompleted)) })
		c.notify(Update{Kind: "complete"})
	})
	c.mgr.OnEvent(types.EvtUserJoined, c.onUserJoined)
	c.mgr.OnEvent(types.EvtUserLeft, func(json.RawMessage) {
		c.notify(Update{Kind: "presence"})
	})
	c.mgr.OnEvent(types.EvtNomination, c.onNomination)
	c.mgr.OnEvent(types.EvtBidUpdate, c.onBidUpdate)
	c.mgr.OnEvent(types.EvtError, c.onError)
}

func (c *Client) onDraftState(data json.RawMessage) {
	var snap types.DraftSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.log.Warn("bad draft_state payload", zap.Error(err))
		return
	}
	c.mu.Lock()
	err := c.st.ReplaceState(snap)
	if err == nil && snap.Nomination != nil {
		c.auc.HandleNomination(*snap.Nomination)
	}
	c.mu.Unlock()
	if err != nil {
		c.log.Error("snapshot rejected", zap.Error(err))
		return
	}
	c.notify(Update{Kind: "state"})
}

func (c *Client) onPickMade(data json.RawMessage) {
	var p types.PickMade
	if err := json.Unmarshal(data, &p); err != nil {
		c.log.Warn("bad pick_made payload", zap.Error(err))
		return
	}
	c.mu.Lock()
	err := c.st.ApplyPick(p)
	c.mu.Unlock()
	if errors.Is(err, store.ErrOutOfSequence) {
		// Local incremental state is suspect; ask for a fresh snapshot.
		c.requestResync()
		return
	}
	c.notify(Update{Kind: "pick"})
}

func (c *Client) onTurnStart(data json.RawMessage) {
	var t types.TurnStart
	if err := json.Unmarshal(data, &t); err != nil {
		c.log.Warn("bad turn_start payload", zap.Error(err))
		return
	}
	c.mu.Lock()
	c.st.SetTurn(t.TeamID, t.Deadline)
	if c.st.Session().Format == string(engine.FormatAuction) {
		c.auc.HandleTurnStart(t)
	}
	c.mu.Unlock()
	c.notify(Update{Kind: "turn"})
}

func (c *Client) onTimerTick(data json.RawMessage) {
	var t types.TimerTick
	if err := json.Unmarshal(data, &t); err != nil {
		return
	}
	c.locked(func() { c.st.TickRemaining(t.RemainingSec) })
	c.notify(Update{Kind: "tick"})
}

func (c *Client) onUserJoined(data json.RawMessage) {
	var u types.UserJoined
	if err := json.Unmarshal(data, &u); err != nil {
		return
	}
	c.locked(func() { c.st.AddTeam(u.TeamID, u.TeamName) })
	c.notify(Update{Kind: "presence"})
}

func (c *Client) onNomination(data json.RawMessage) {
	var n types.NominationInfo
	if err := json.Unmarshal(data, &n); err != nil {
		c.log.Warn("bad nomination payload", zap.Error(err))
		return
	}
	c.locked(func() { c.auc.HandleNomination(n) })
	c.notify(Update{Kind: "nomination"})
}

func (c *Client) onBidUpdate(data json.RawMessage) {
	var b types.BidUpdate
	if err := json.Unmarshal(data, &b); err != nil {
		c.log.Warn("bad bid_update payload", zap.Error(err))
		return
	}
	c.locked(func() { c.auc.HandleBidUpdate(b) })
	c.notify(Update{Kind: "bid"})
}

func (c *Client) onError(data json.RawMessage) {
	var e types.ErrorMsg
	if err := json.Unmarshal(data, &e); err != nil {
		return
	}
	// Intent rejections are per-action, never connection-fatal.
	c.notify(Update{Kind: "reject", Err: fmt.Errorf("%s: %s", e.Code, e.Message)})
}

// requestResync asks the server for a full snapshot by re-sending the join
// intent; the server answers every join with draft_state.
func (c *Client) requestResync() {
	join := types.JoinDraft{TeamID: c.identity.TeamID, UserToken: c.identity.UserToken}
	if err := c.mgr.Send(context.Background(), types.EvtJoinDraft, join); err != nil {
		c.log.Warn("resync request failed", zap.Error(err))
	}
}

func (c *Client) locked(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}

// Start asks the server to begin the draft. Only the owner (position 0) of a
// pending session with at least two teams may start it.
func (c *Client) Start(ctx context.Context) error {
	if c.identity.Spectator() {
		return ErrSpectator
	}
	c.mu.Lock()
	t, ok := c.st.Team(c.identity.TeamID)
	status := c.st.Session().Status
	teams := len(c.st.Order())
	c.mu.Unlock()
	if status != string(engine.StatusPending) {
		return ErrNotPending
	}
	if !ok || t.Position != 0 {
		return engine.ErrNotOwner
	}
	if teams < 2 {
		return engine.ErrNotEnoughTeams
	}
	return c.mgr.Send(ctx, types.EvtStartDraft, types.StartDraft{})
}

// MakePick claims a pokemon in a snake or linear draft. The store is not
// touched; it mutates only when the server confirms with pick_made.
func (c *Client) MakePick(ctx context.Context, pokemonID int) error {
	if c.identity.Spectator() {
		return ErrSpectator
	}
	c.mu.Lock()
	active, ok := c.st.ActiveTeam()
	_, taken := c.st.Claimed(pokemonID)
	full := c.st.RosterFull(c.identity.TeamID)
	c.mu.Unlock()
	if !ok || active != c.identity.TeamID {
		return ErrNotYourTurn
	}
	if full {
		return engine.ErrRosterFull
	}
	if taken {
		return engine.ErrIllegalPick
	}
	return c.mgr.Send(ctx, types.EvtMakePick, types.MakePick{PokemonID: pokemonID})
}

// Nominate puts a pokemon up for bidding.
func (c *Client) Nominate(ctx context.Context, pokemonID int) error {
	if c.identity.Spectator() {
		return ErrSpectator
	}
	c.mu.Lock()
	err := c.auc.CanNominate(c.identity.TeamID, pokemonID)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.mgr.Send(ctx, types.EvtNominate, types.Nominate{PokemonID: pokemonID})
}

// PlaceBid bids on the open lot.
func (c *Client) PlaceBid(ctx context.Context, pokemonID, amount int) error {
	if c.identity.Spectator() {
		return ErrSpectator
	}
	c.mu.Lock()
	err := c.auc.CanBid(c.identity.TeamID, amount)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.mgr.Send(ctx, types.EvtPlaceBid, types.PlaceBid{PokemonID: pokemonID, Amount: amount})
}

// Leave tears the view down: the close is marked intentional, pending timers
// are cancelled, and no reconnect follows.
func (c *Client) Leave() {
	c.mgr.Close()
}

func (c *Client) Identity() bootstrap.Identity { return c.identity }

func (c *Client) Connection() conn.Status { return c.mgr.Status() }

// View runs fn with the store and auction handler under the client's lock.
func (c *Client) View(fn func(st *store.Store, auc *auction.Handler)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.st, c.auc)
}
