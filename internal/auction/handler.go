// Package auction layers the nomination/bidding sub-protocol on top of the
// connection manager. It mirrors the server's bid state and answers
// affordability and roster-space questions so the view can disable illegal
// actions; the server remains authoritative.
package auction

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mido3801/pokedraft/internal/engine"
	"github.com/mido3801/pokedraft/internal/store"
	"github.com/mido3801/pokedraft/internal/types"
)

var ErrNotNominating = errors.New("not your nomination turn")
var ErrNoOpenLot = errors.New("no nomination open")
var ErrLotOpen = errors.New("nomination already open")
var ErrAlreadyClaimed = errors.New("pokemon already claimed")

type Phase string

const (
	PhaseAwaitingNomination Phase = "awaiting_nomination"
	PhaseNominated          Phase = "nominated"
)

// Handler tracks the auction phase for one session view. Single-writer, like
// the store it reads from: all calls come off the dispatch path.
type Handler struct {
	log *zap.Logger
	st  *store.Store

	phase      Phase
	current    *types.NominationInfo
	highBid    int
	highBidder string
	bidCount   int
	deadline   time.Time
}

func New(st *store.Store, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{log: log, st: st, phase: PhaseAwaitingNomination}
}

// HandleNomination enters the bidding phase for an announced lot.
func (h *Handler) HandleNomination(n types.NominationInfo) {
	h.phase = PhaseNominated
	h.current = &n
	h.highBid = 0
	h.highBidder = ""
	h.bidCount = 0
	h.deadline = n.Deadline
}

// HandleBidUpdate records a server-accepted bid. The deadline moves with
// every bid; a live-auction urgency reset, not a fixed end time.
func (h *Handler) HandleBidUpdate(b types.BidUpdate) {
	if h.current == nil || h.current.PokemonID != b.PokemonID {
		h.log.Warn("bid update without matching nomination", zap.Int("pokemon", b.PokemonID))
		return
	}
	h.highBid = b.Amount
	h.highBidder = b.TeamID
	h.bidCount++
	h.deadline = b.Deadline
}

// HandleTurnStart resets to the nomination phase. The server sends a
// turn_start after every resolution, whether the lot sold or passed back to
// the pool.
func (h *Handler) HandleTurnStart(t types.TurnStart) {
	h.phase = PhaseAwaitingNomination
	h.current = nil
	h.highBid = 0
	h.highBidder = ""
	h.bidCount = 0
	h.deadline = t.Deadline
}

func (h *Handler) Phase() Phase { return h.phase }

func (h *Handler) Current() (types.NominationInfo, bool) {
	if h.current == nil {
		return types.NominationInfo{}, false
	}
	return *h.current, true
}

// HighBid returns the current best bid and its owner.
func (h *Handler) HighBid() (amount int, teamID string, ok bool) {
	if h.current == nil || h.bidCount == 0 {
		return 0, "", false
	}
	return h.highBid, h.highBidder, true
}

func (h *Handler) Deadline() time.Time { return h.deadline }

// CanNominate checks nomination legality for teamID: open phase, nomination
// turn held, roster space, pokemon unclaimed.
func (h *Handler) CanNominate(teamID string, pokemonID int) error {
	if h.phase != PhaseAwaitingNomination {
		return ErrLotOpen
	}
	if active, ok := h.st.ActiveTeam(); !ok || active != teamID {
		return ErrNotNominating
	}
	if h.st.RosterFull(teamID) {
		return engine.ErrRosterFull
	}
	if _, taken := h.st.Claimed(pokemonID); taken {
		return ErrAlreadyClaimed
	}
	return nil
}

// CanBid checks bid legality for teamID: a lot must be open, the amount must
// clear the minimum or the increment over the high bid, and the team needs
// both budget and roster space. Rejections leave bid state untouched.
func (h *Handler) CanBid(teamID string, amount int) error {
	if h.current == nil {
		return ErrNoOpenLot
	}
	if h.st.RosterFull(teamID) {
		return engine.ErrRosterFull
	}
	sess := h.st.Session()
	if !engine.LegalBid(amount, h.highBid, h.bidCount, h.current.MinBid, sess.BidIncrement) {
		return engine.ErrBidTooLow
	}
	if t, ok := h.st.Team(teamID); ok && t.Budget != nil && amount > *t.Budget {
		return engine.ErrInsufficientBudget
	}
	return nil
}
