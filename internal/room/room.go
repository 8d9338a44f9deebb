// Package room runs the authoritative loop for one draft session. Every
// mutation flows through the inbox, one message at a time, in arrival order.
package room

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mido3801/pokedraft/internal/engine"
	"github.com/mido3801/pokedraft/internal/filter"
	"github.com/mido3801/pokedraft/internal/types"
)

type Msg interface{ isRoomMsg() }

// Join registers a connection's outbox. The team binding happens when the
// connection sends its join_draft intent.
type Join struct {
	ConnID string
	Outbox chan types.Envelope
}

func (Join) isRoomMsg() {}

type Leave struct{ ConnID string }

func (Leave) isRoomMsg() {}

// FromClient carries one decoded intent frame from a connection.
type FromClient struct {
	ConnID string
	Env    types.Envelope
}

func (FromClient) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

// GetState reflects internal state without data races; test-only.
type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type timerFired struct{ gen int }

func (timerFired) isRoomMsg() {}

type View struct {
	State      engine.State
	NumClients int
	Deadline   time.Time
}

type clientConn struct {
	teamID string
	outbox chan types.Envelope
}

// Room is the per-draft actor. Catalog lookups are passed in explicitly;
// handlers never reach into shared globals.
type Room struct {
	inbox   chan Msg
	id      string
	state   engine.State
	catalog []filter.Species
	names   map[int]string
	picks   []types.PickMade
	clients map[string]*clientConn
	done    chan struct{}
	log     *zap.Logger

	timerGen int
	timer    *time.Timer
	deadline time.Time
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

func New(parent context.Context, id string, initial engine.State, catalog []filter.Species, log *zap.Logger) *Room {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	names := make(map[int]string, len(catalog))
	for _, sp := range catalog {
		names[sp.ID] = sp.Name
	}
	r := &Room{
		inbox:   make(chan Msg, 64),
		id:      id,
		state:   initial,
		catalog: catalog,
		names:   names,
		clients: map[string]*clientConn{},
		done:    make(chan struct{}),
		log:     log.With(zap.String("draft", id)),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done closes when the room has shut down, either explicitly or because the
// draft completed and the last connection left.
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) loop() {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case <-tick.C:
			r.broadcastTick()

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.clients[msg.ConnID] = &clientConn{outbox: msg.Outbox}

			case Leave:
				r.handleLeave(msg.ConnID)

			case FromClient:
				r.handleIntent(msg.ConnID, msg.Env)

			case timerFired:
				if msg.gen == r.timerGen {
					r.handleTimeout()
				}

			case GetState:
				msg.Reply <- View{State: r.state, NumClients: len(r.clients), Deadline: r.deadline}

			case Shutdown:
				r.shutdown()
				return
			}
			// A finished draft with nobody connected has no further work.
			if r.state.Status == engine.StatusCompleted && len(r.clients) == 0 {
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) handleIntent(connID string, env types.Envelope) {
	cl, ok := r.clients[connID]
	if !ok {
		return
	}
	switch env.Event {
	case types.EvtJoinDraft:
		var j types.JoinDraft
		if err := env.Decode(&j); err != nil {
			r.sendError(connID, types.CodeBadFrame, "bad join payload")
			return
		}
		r.handleJoinDraft(connID, cl, j)

	case types.EvtStartDraft:
		r.applyAndBroadcast(connID, engine.Command{Type: engine.CmdStartDraft, TeamID: cl.teamID})

	case types.EvtMakePick:
		var p types.MakePick
		if err := env.Decode(&p); err != nil {
			r.sendError(connID, types.CodeBadFrame, "bad pick payload")
			return
		}
		r.applyAndBroadcast(connID, engine.Command{Type: engine.CmdMakePick, TeamID: cl.teamID, PokemonID: p.PokemonID})

	case types.EvtNominate:
		var n types.Nominate
		if err := env.Decode(&n); err != nil {
			r.sendError(connID, types.CodeBadFrame, "bad nomination payload")
			return
		}
		r.applyAndBroadcast(connID, engine.Command{Type: engine.CmdNominate, TeamID: cl.teamID, PokemonID: n.PokemonID})

	case types.EvtPlaceBid:
		var b types.PlaceBid
		if err := env.Decode(&b); err != nil {
			r.sendError(connID, types.CodeBadFrame, "bad bid payload")
			return
		}
		r.applyAndBroadcast(connID, engine.Command{Type: engine.CmdPlaceBid, TeamID: cl.teamID, PokemonID: b.PokemonID, Amount: b.Amount})

	default:
		r.sendError(connID, types.CodeBadFrame, "unknown event "+env.Event)
	}
}

// handleJoinDraft answers every join with a full snapshot, which doubles as
// the resync path for clients that detected a dropped event.
func (r *Room) handleJoinDraft(connID string, cl *clientConn, j types.JoinDraft) {
	if j.TeamID != "" {
		cl.teamID = j.TeamID
		events, ns, err := engine.Apply(r.state, engine.Command{Type: engine.CmdAddTeam, TeamID: j.TeamID, TeamName: j.TeamName})
		if err == nil {
			r.state = ns
			if engine.ContainsEvent(events, engine.EvtTeamAdded) {
				r.broadcast(types.EvtUserJoined, types.UserJoined{TeamID: j.TeamID, TeamName: j.TeamName})
			}
		}
	}
	r.sendTo(connID, types.EvtDraftState, r.snapshot())
}

func (r *Room) handleLeave(connID string) {
	cl, ok := r.clients[connID]
	if !ok {
		return
	}
	delete(r.clients, connID)
	// Closing the outbox releases the connection's writer goroutine.
	close(cl.outbox)
	if cl.teamID != "" {
		r.broadcast(types.EvtUserLeft, types.UserLeft{TeamID: cl.teamID})
	}
}

func (r *Room) applyAndBroadcast(connID string, cmd engine.Command) {
	events, ns, err := engine.Apply(r.state, cmd)
	if err != nil {
		r.sendError(connID, errCode(err), err.Error())
		return
	}
	r.state = ns
	r.emit(events)
}

// emit translates engine events into wire events and re-arms timers.
func (r *Room) emit(events []engine.Event) {
	completed := false
	advanced := false
	for _, ev := range events {
		switch ev.Type {
		case engine.EvtDraftStarted:
			r.broadcast(types.EvtDraftStarted, types.DraftStarted{Format: string(r.state.Format), StartedAt: r.now()})
			advanced = true
		case engine.EvtPickMade:
			pm := types.PickMade{
				PickNumber:  ev.PickNumber,
				TeamID:      ev.TeamID,
				PokemonID:   ev.PokemonID,
				PokemonName: r.names[ev.PokemonID],
				Cost:        ev.Cost,
				MadeAt:      r.now(),
			}
			r.picks = append(r.picks, pm)
			r.broadcast(types.EvtPickMade, pm)
		case engine.EvtNominated:
			r.deadline = r.now().Add(time.Duration(r.state.Rules.BidTimerSec) * time.Second)
			r.armTimer(r.deadline)
			r.broadcast(types.EvtNomination, types.NominationInfo{
				PokemonID: ev.PokemonID,
				TeamID:    ev.TeamID,
				MinBid:    ev.Amount,
				Deadline:  r.deadline,
			})
		case engine.EvtBidPlaced:
			// Every accepted bid pushes the deadline out again.
			r.deadline = r.now().Add(time.Duration(r.state.Rules.BidTimerSec) * time.Second)
			r.armTimer(r.deadline)
			r.broadcast(types.EvtBidUpdate, types.BidUpdate{
				PokemonID: ev.PokemonID,
				TeamID:    ev.TeamID,
				Amount:    ev.Amount,
				Deadline:  r.deadline,
			})
		case engine.EvtTurnAdvanced:
			advanced = true
		case engine.EvtDraftCompleted:
			completed = true
		}
	}
	if completed {
		r.stopTimer()
		r.broadcast(types.EvtDraftComplete, types.DraftComplete{TotalPicks: r.state.PickCount})
		return
	}
	if advanced {
		r.startTurn()
	}
}

// startTurn announces the next turn holder and arms the per-turn timer.
func (r *Room) startTurn() {
	var teamID string
	var ok bool
	var window int
	if r.state.Format == engine.FormatAuction {
		teamID, ok = r.state.Nominator()
		window = r.state.Rules.NomTimerSec
	} else {
		teamID, ok = r.state.ActivePicker()
		window = r.state.Rules.PickTimerSec
	}
	if !ok {
		return
	}
	r.deadline = r.now().Add(time.Duration(window) * time.Second)
	r.armTimer(r.deadline)
	r.broadcast(types.EvtTurnStart, types.TurnStart{
		TeamID:     teamID,
		PickNumber: r.state.PickCount,
		Deadline:   r.deadline,
	})
}

func (r *Room) handleTimeout() {
	switch {
	case r.state.Format == engine.FormatAuction && r.state.Current != nil:
		events, ns, err := engine.Apply(r.state, engine.Command{Type: engine.CmdBidTimeout})
		if err != nil {
			r.log.Warn("bid timeout apply failed", zap.Error(err))
			return
		}
		r.state = ns
		r.emit(events)

	case r.state.Format == engine.FormatAuction:
		events, ns, err := engine.Apply(r.state, engine.Command{Type: engine.CmdNomTimeout})
		if err != nil {
			return
		}
		r.state = ns
		r.emit(events)

	default:
		// Pick window lapsed; lock in the first eligible pokemon so the
		// draft keeps moving.
		id, ok := r.autoPick()
		if !ok {
			return
		}
		events, ns, err := engine.Apply(r.state, engine.Command{Type: engine.CmdPickTimeout, PokemonID: id})
		if err != nil {
			r.log.Warn("auto-pick failed", zap.Error(err))
			return
		}
		r.state = ns
		r.emit(events)
	}
}

func (r *Room) autoPick() (int, bool) {
	for _, sp := range r.catalog {
		if _, taken := r.state.Claimed[sp.ID]; !taken {
			return sp.ID, true
		}
	}
	return 0, false
}

func (r *Room) armTimer(deadline time.Time) {
	r.timerGen++
	gen := r.timerGen
	if r.timer != nil {
		r.timer.Stop()
	}
	d := time.Until(deadline)
	r.timer = time.AfterFunc(d, func() {
		select {
		case r.inbox <- timerFired{gen: gen}:
		case <-r.ctx.Done():
		}
	})
}

func (r *Room) stopTimer() {
	r.timerGen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.deadline = time.Time{}
}

func (r *Room) broadcastTick() {
	if r.state.Status != engine.StatusLive || r.deadline.IsZero() {
		return
	}
	remaining := int(time.Until(r.deadline).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	r.broadcast(types.EvtTimerTick, types.TimerTick{RemainingSec: remaining})
}

func (r *Room) snapshot() types.DraftSnapshot {
	s := r.state
	teams := make([]types.TeamInfo, 0, len(s.Order))
	for _, id := range s.Order {
		t := s.Teams[id]
		teams = append(teams, types.TeamInfo{
			ID:       t.ID,
			Name:     t.Name,
			Position: t.Position,
			Budget:   t.Budget,
			Roster:   append([]int(nil), t.Roster...),
		})
	}
	snap := types.DraftSnapshot{
		Picks: append([]types.PickMade(nil), r.picks...),
		Session: types.SessionInfo{
			ID:           r.id,
			Format:       string(s.Format),
			Status:       string(s.Status),
			RosterSize:   s.Rules.RosterSize,
			PickCount:    s.PickCount,
			Order:        append([]string(nil), s.Order...),
			Budget:       s.Rules.Budget,
			MinBid:       s.Rules.MinBid,
			BidIncrement: s.Rules.BidIncrement,
			PickTimerSec: s.Rules.PickTimerSec,
			NomTimerSec:  s.Rules.NomTimerSec,
			BidTimerSec:  s.Rules.BidTimerSec,
		},
		Teams: teams,
	}
	if s.Current != nil {
		snap.Nomination = &types.NominationInfo{
			PokemonID: s.Current.PokemonID,
			TeamID:    s.Current.Nominator,
			MinBid:    s.Current.MinBid,
			Deadline:  r.deadline,
		}
	}
	if !r.deadline.IsZero() {
		d := r.deadline
		snap.Deadline = &d
	}
	return snap
}

func (r *Room) sendTo(connID, event string, payload any) {
	cl, ok := r.clients[connID]
	if !ok {
		return
	}
	env, err := types.NewEnvelope(event, payload)
	if err != nil {
		r.log.Error("encoding frame", zap.Error(err))
		return
	}
	select {
	case cl.outbox <- env:
	default:
		// Slow client; drop it rather than stall the loop.
		close(cl.outbox)
		delete(r.clients, connID)
	}
}

func (r *Room) sendError(connID, code, message string) {
	r.sendTo(connID, types.EvtError, types.ErrorMsg{Code: code, Message: message})
}

func (r *Room) broadcast(event string, payload any) {
	env, err := types.NewEnvelope(event, payload)
	if err != nil {
		r.log.Error("encoding frame", zap.Error(err))
		return
	}
	for id, cl := range r.clients {
		select {
		case cl.outbox <- env:
		default:
			close(cl.outbox)
			delete(r.clients, id)
		}
	}
}

func (r *Room) shutdown() {
	r.stopTimer()
	for id, cl := range r.clients {
		close(cl.outbox)
		delete(r.clients, id)
	}
	r.cancel()
	close(r.done)
}

func errCode(err error) string {
	switch err {
	case engine.ErrWrongTurn:
		return types.CodeWrongTurn
	case engine.ErrIllegalPick:
		return types.CodeIllegalPick
	case engine.ErrRosterFull:
		return types.CodeRosterFull
	case engine.ErrBidTooLow, engine.ErrNoNomination, engine.ErrNominationOpen:
		return types.CodeBidTooLow
	case engine.ErrInsufficientBudget:
		return types.CodeInsufficientBudget
	case engine.ErrNotOwner, engine.ErrNotEnoughTeams:
		return types.CodeNotOwner
	default:
		return types.CodeBadState
	}
}
