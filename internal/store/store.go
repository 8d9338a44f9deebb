// Package store holds the client-side mirror of one draft session. It only
// mutates on server-confirmed events; local intents never touch it.
package store

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mido3801/pokedraft/internal/engine"
	"github.com/mido3801/pokedraft/internal/filter"
	"github.com/mido3801/pokedraft/internal/types"
)

// ErrOutOfSequence signals a dropped or misordered pick event. The caller
// must recover with a full snapshot via ReplaceState, never by guessing.
var ErrOutOfSequence = errors.New("pick number does not match counter")

var ErrBadSnapshot = errors.New("malformed snapshot")

type Team struct {
	ID       string
	Name     string
	Position int
	Budget   *int
	Roster   []int
}

// Store mirrors one session for one view. Not safe for concurrent use; the
// connection dispatch path is its single writer.
type Store struct {
	log *zap.Logger

	session types.SessionInfo
	order   []string
	teams   map[string]*Team
	picks   []types.PickMade
	claimed map[int]string

	activeTeam   string
	deadline     time.Time
	remainingSec int
}

func New(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		log:     log,
		teams:   map[string]*Team{},
		claimed: map[int]string{},
	}
}

// ReplaceState swallows an authoritative full-state push, discarding any
// incremental state. Used on initial sync and on resync after reconnect.
func (s *Store) ReplaceState(snap types.DraftSnapshot) error {
	if snap.Session.ID == "" || snap.Session.RosterSize <= 0 {
		return ErrBadSnapshot
	}
	if len(snap.Session.Order) != len(snap.Teams) {
		return ErrBadSnapshot
	}
	teams := make(map[string]*Team, len(snap.Teams))
	claimed := map[int]string{}
	for _, ti := range snap.Teams {
		t := &Team{ID: ti.ID, Name: ti.Name, Position: ti.Position, Budget: ti.Budget}
		t.Roster = append(t.Roster, ti.Roster...)
		for _, id := range ti.Roster {
			claimed[id] = ti.ID
		}
		teams[ti.ID] = t
	}
	for _, id := range snap.Session.Order {
		if _, ok := teams[id]; !ok {
			return ErrBadSnapshot
		}
	}
	s.session = snap.Session
	s.order = append([]string(nil), snap.Session.Order...)
	s.teams = teams
	s.claimed = claimed
	s.picks = append([]types.PickMade(nil), snap.Picks...)
	// Countdown state belongs to the snapshot, not the previous session view.
	s.deadline = time.Time{}
	s.remainingSec = 0
	if snap.Deadline != nil {
		s.deadline = *snap.Deadline
	}
	s.log.Debug("replaced draft state",
		zap.String("session", snap.Session.ID),
		zap.Int("pick_count", snap.Session.PickCount))
	return nil
}

// ApplyPick appends a confirmed pick. A pick number that does not equal the
// current counter means an event was dropped or reordered; the store refuses
// the mutation so the caller can request a resync.
func (s *Store) ApplyPick(p types.PickMade) error {
	if p.PickNumber != s.session.PickCount {
		s.log.Warn("pick out of sequence, resync required",
			zap.Int("got", p.PickNumber),
			zap.Int("want", s.session.PickCount))
		return ErrOutOfSequence
	}
	t, ok := s.teams[p.TeamID]
	if !ok {
		s.log.Warn("pick for unknown team", zap.String("team", p.TeamID))
		return ErrOutOfSequence
	}
	t.Roster = append(t.Roster, p.PokemonID)
	if p.Cost != nil && t.Budget != nil {
		b := *t.Budget - *p.Cost
		t.Budget = &b
	}
	s.claimed[p.PokemonID] = p.TeamID
	s.picks = append(s.picks, p)
	s.session.PickCount++
	return nil
}

// AddTeam registers a newly joined team. Re-adding an existing id is a
// no-op, not a duplicate insert.
func (s *Store) AddTeam(id, name string) {
	if _, ok := s.teams[id]; ok {
		return
	}
	t := &Team{ID: id, Name: name, Position: len(s.order)}
	if s.session.Budget != nil {
		b := *s.session.Budget
		t.Budget = &b
	}
	s.teams[id] = t
	s.order = append(s.order, id)
	s.session.Order = append(s.session.Order, id)
}

// SetStatus advances the session status. Status never regresses except the
// live/paused pair; anything else is dropped and logged.
func (s *Store) SetStatus(status string) {
	if !statusAllowed(s.session.Status, status) {
		s.log.Warn("ignoring status regression",
			zap.String("from", s.session.Status),
			zap.String("to", status))
		return
	}
	s.session.Status = status
}

func statusAllowed(from, to string) bool {
	if from == to {
		return true
	}
	switch from {
	case "", string(engine.StatusPending):
		return true
	case string(engine.StatusLive):
		return to == string(engine.StatusPaused) || to == string(engine.StatusCompleted)
	case string(engine.StatusPaused):
		return to == string(engine.StatusLive) || to == string(engine.StatusCompleted)
	default:
		return false
	}
}

// SetTurn records the team the server declared active.
func (s *Store) SetTurn(teamID string, deadline time.Time) {
	s.activeTeam = teamID
	s.deadline = deadline
}

// SetTimerDeadline and TickRemaining feed the presentation countdown. They
// carry no legality weight.
func (s *Store) SetTimerDeadline(t time.Time) { s.deadline = t }

func (s *Store) TickRemaining(sec int) { s.remainingSec = sec }

func (s *Store) Session() types.SessionInfo { return s.session }

func (s *Store) Order() []string { return append([]string(nil), s.order...) }

func (s *Store) PickCount() int { return s.session.PickCount }

func (s *Store) Picks() []types.PickMade { return append([]types.PickMade(nil), s.picks...) }

func (s *Store) Deadline() time.Time { return s.deadline }

func (s *Store) Remaining() int { return s.remainingSec }

func (s *Store) Team(id string) (Team, bool) {
	t, ok := s.teams[id]
	if !ok {
		return Team{}, false
	}
	out := *t
	out.Roster = append([]int(nil), t.Roster...)
	return out, true
}

func (s *Store) Teams() []Team {
	out := make([]Team, 0, len(s.order))
	for _, id := range s.order {
		if t, ok := s.Team(id); ok {
			out = append(out, t)
		}
	}
	return out
}

// ActiveTeam recomputes the turn holder from the pick counter. For auctions
// the server-announced turn (nomination rights) is reported instead.
func (s *Store) ActiveTeam() (string, bool) {
	if s.session.Format == string(engine.FormatAuction) {
		return s.activeTeam, s.activeTeam != ""
	}
	return engine.ActiveTeam(s.session.PickCount, s.order, engine.Format(s.session.Format))
}

// Claimed reports which team holds a pokemon, if any.
func (s *Store) Claimed(pokemonID int) (string, bool) {
	team, ok := s.claimed[pokemonID]
	return team, ok
}

// Pool derives the remaining eligible pool from a catalog and filter config.
func (s *Store) Pool(catalog []filter.Species, cfg filter.Config) []filter.Species {
	claimed := make(map[int]bool, len(s.claimed))
	for id := range s.claimed {
		claimed[id] = true
	}
	return filter.Pool(catalog, claimed, cfg)
}

// RosterFull reports whether a team has used all roster slots.
func (s *Store) RosterFull(teamID string) bool {
	t, ok := s.teams[teamID]
	if !ok {
		return true
	}
	return len(t.Roster) >= s.session.RosterSize
}
