package types

import (
	"time"

	json "github.com/goccy/go-json"
)

// Envelope is the wire frame used in both directions: a tagged event name
// plus an event-specific payload left undecoded until dispatch.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into a tagged frame.
func NewEnvelope(event string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}

// Encode renders the frame for the wire.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// DecodeEnvelope parses a raw frame.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// Client -> server intents.
const (
	EvtJoinDraft  = "join_draft"
	EvtStartDraft = "start_draft"
	EvtMakePick   = "make_pick"
	EvtNominate   = "nominate"
	EvtPlaceBid   = "place_bid"
)

// Server -> client events.
const (
	EvtDraftState    = "draft_state"
	EvtDraftStarted  = "draft_started"
	EvtPickMade      = "pick_made"
	EvtTurnStart     = "turn_start"
	EvtTimerTick     = "timer_tick"
	EvtDraftComplete = "draft_complete"
	EvtUserJoined    = "user_joined"
	EvtUserLeft      = "user_left"
	EvtNomination    = "nomination"
	EvtBidUpdate     = "bid_update"
	EvtError         = "error"
)

type JoinDraft struct {
	TeamID    string `json:"team_id,omitempty"`
	TeamName  string `json:"team_name,omitempty"`
	UserToken string `json:"user_token,omitempty"`
}

type StartDraft struct{}

type MakePick struct {
	PokemonID int `json:"item_id"`
}

type Nominate struct {
	PokemonID int `json:"item_id"`
}

type PlaceBid struct {
	PokemonID int `json:"item_id"`
	Amount    int `json:"amount"`
}

// TeamInfo is the snapshot form of one team.
type TeamInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	Budget   *int   `json:"budget,omitempty"`
	Roster   []int  `json:"roster"`
}

// SessionInfo is the snapshot form of the session settings and counters.
type SessionInfo struct {
	ID           string   `json:"id"`
	Format       string   `json:"format"`
	Status       string   `json:"status"`
	RosterSize   int      `json:"roster_size"`
	PickCount    int      `json:"pick_count"`
	Order        []string `json:"order"`
	Budget       *int     `json:"budget,omitempty"`
	MinBid       int      `json:"min_bid,omitempty"`
	BidIncrement int      `json:"bid_increment,omitempty"`
	PickTimerSec int      `json:"pick_timer_sec,omitempty"`
	NomTimerSec  int      `json:"nom_timer_sec,omitempty"`
	BidTimerSec  int      `json:"bid_timer_sec,omitempty"`
}

// DraftSnapshot is the full authoritative state push. Sent on join and on
// resync; the client replaces its mirror wholesale rather than replaying.
type DraftSnapshot struct {
	Session    SessionInfo     `json:"session"`
	Teams      []TeamInfo      `json:"teams"`
	Picks      []PickMade      `json:"picks"`
	Nomination *NominationInfo `json:"nomination,omitempty"`
	Deadline   *time.Time      `json:"deadline,omitempty"`
}

type DraftStarted struct {
	Format    string    `json:"format"`
	StartedAt time.Time `json:"started_at"`
}

type PickMade struct {
	PickNumber  int       `json:"pick_number"`
	TeamID      string    `json:"team_id"`
	PokemonID   int       `json:"item_id"`
	PokemonName string    `json:"item_name"`
	Cost        *int      `json:"cost,omitempty"`
	MadeAt      time.Time `json:"made_at"`
}

type TurnStart struct {
	TeamID     string    `json:"team_id"`
	PickNumber int       `json:"pick_number"`
	Deadline   time.Time `json:"deadline"`
}

type TimerTick struct {
	RemainingSec int `json:"remaining_sec"`
}

type DraftComplete struct {
	TotalPicks int `json:"total_picks"`
}

type UserJoined struct {
	TeamID   string `json:"team_id"`
	TeamName string `json:"team_name"`
}

type UserLeft struct {
	TeamID string `json:"team_id"`
}

// NominationInfo announces an item put up for bidding.
type NominationInfo struct {
	PokemonID int       `json:"item_id"`
	TeamID    string    `json:"team_id"`
	MinBid    int       `json:"min_bid"`
	Deadline  time.Time `json:"deadline"`
}

// BidUpdate carries the new highest bid; every accepted bid moves Deadline.
type BidUpdate struct {
	PokemonID int       `json:"item_id"`
	TeamID    string    `json:"team_id"`
	Amount    int       `json:"amount"`
	Deadline  time.Time `json:"deadline"`
}

type ErrorMsg struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error codes the server attaches to rejected intents.
const (
	CodeWrongTurn          = "wrong_turn"
	CodeIllegalPick        = "illegal_pick"
	CodeRosterFull         = "roster_full"
	CodeBidTooLow          = "bid_too_low"
	CodeInsufficientBudget = "insufficient_budget"
	CodeNotOwner           = "not_owner"
	CodeBadState           = "bad_state"
	CodeBadFrame           = "bad_frame"
)
