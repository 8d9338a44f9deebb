package engine

import (
	"errors"
	"maps"
	"slices"
)

var ErrWrongTurn = errors.New("invalid turn")
var ErrIllegalPick = errors.New("illegal pokemon")
var ErrRosterFull = errors.New("roster full")
var ErrBidTooLow = errors.New("bid too low")
var ErrInsufficientBudget = errors.New("insufficient budget")
var ErrNoNomination = errors.New("no open nomination")
var ErrNominationOpen = errors.New("nomination already open")
var ErrBadStatus = errors.New("draft not in required status")
var ErrNotOwner = errors.New("only the draft owner may do that")
var ErrNotEnoughTeams = errors.New("need at least two teams")
var ErrUnsupportedCommand = errors.New("unsupported command")
var ErrDraftCompleted = errors.New("draft already completed")

type Format string

const (
	FormatSnake   Format = "snake"
	FormatLinear  Format = "linear"
	FormatAuction Format = "auction"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusLive      Status = "live"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

type Rules struct {
	RosterSize   int
	Budget       *int
	MinBid       int
	BidIncrement int
	PickTimerSec int
	NomTimerSec  int
	BidTimerSec  int
}

type Team struct {
	ID       string
	Name     string
	Position int
	Budget   *int
	Roster   []int
}

// Nomination is the open auction lot, if any.
type Nomination struct {
	PokemonID  int
	Nominator  string
	MinBid     int
	HighBid    int
	HighBidder string
	BidCount   int
}

// State is the authoritative draft state. Apply treats it as immutable and
// returns a derived copy; maps that change are cloned first.
type State struct {
	Format          Format
	Status          Status
	Rules           Rules
	Order           []string
	Teams           map[string]Team
	Claimed         map[int]string
	PickCount       int
	NominationCount int
	Current         *Nomination
}

func NewState(format Format, rules Rules) State {
	return State{
		Format:  format,
		Status:  StatusPending,
		Rules:   rules,
		Teams:   map[string]Team{},
		Claimed: map[int]string{},
	}
}

type CommandType string

const (
	CmdAddTeam     CommandType = "AddTeam"
	CmdStartDraft  CommandType = "StartDraft"
	CmdMakePick    CommandType = "MakePick"
	CmdNominate    CommandType = "Nominate"
	CmdPlaceBid    CommandType = "PlaceBid"
	CmdBidTimeout  CommandType = "BidTimeout"
	CmdNomTimeout  CommandType = "NomTimeout"
	CmdPickTimeout CommandType = "PickTimeout"
	CmdPauseDraft  CommandType = "PauseDraft"
	CmdResumeDraft CommandType = "ResumeDraft"
)

type Command struct {
	Type      CommandType
	TeamID    string
	TeamName  string
	PokemonID int
	Amount    int
}

type EventType string

const (
	EvtTeamAdded        EventType = "TeamAdded"
	EvtDraftStarted     EventType = "DraftStarted"
	EvtPickMade         EventType = "PickMade"
	EvtTurnAdvanced     EventType = "TurnAdvanced"
	EvtNominated        EventType = "Nominated"
	EvtBidPlaced        EventType = "BidPlaced"
	EvtNominationPassed EventType = "NominationPassed"
	EvtDraftPaused      EventType = "DraftPaused"
	EvtDraftResumed     EventType = "DraftResumed"
	EvtDraftCompleted   EventType = "DraftCompleted"
)

type Event struct {
	Type       EventType
	TeamID     string
	PokemonID  int
	PickNumber int
	Amount     int
	Cost       *int
}

// ActivePicker returns the team holding the pick turn in a snake or linear
// draft.
func (s State) ActivePicker() (string, bool) {
	if s.Format == FormatAuction {
		return "", false
	}
	return ActiveTeam(s.PickCount, s.Order, s.Format)
}

// Nominator returns the team holding the nomination turn in an auction,
// skipping teams whose rosters are already full.
func (s State) Nominator() (string, bool) {
	n := len(s.Order)
	start, ok := ActiveIndex(s.NominationCount, n, FormatLinear)
	if !ok {
		return "", false
	}
	for i := 0; i < n; i++ {
		id := s.Order[(start+i)%n]
		if !s.RosterFull(id) {
			return id, true
		}
	}
	return "", false
}

func (s State) RosterFull(teamID string) bool {
	t, ok := s.Teams[teamID]
	if !ok {
		return true
	}
	return len(t.Roster) >= s.Rules.RosterSize
}

func (s State) Complete() bool {
	if len(s.Order) == 0 {
		return false
	}
	for _, id := range s.Order {
		if !s.RosterFull(id) {
			return false
		}
	}
	return true
}

// Apply validates cmd against s and returns the emitted events plus the next
// state. On error the returned state is s unchanged.
func Apply(s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdAddTeam:
		return applyAddTeam(s, cmd)
	case CmdStartDraft:
		return applyStartDraft(s, cmd)
	case CmdMakePick:
		return applyMakePick(s, cmd)
	case CmdPickTimeout:
		// Caller chose the auto-pick; legality checks are identical.
		active, ok := s.ActivePicker()
		if !ok {
			return nil, s, ErrBadStatus
		}
		cmd.TeamID = active
		cmd.Type = CmdMakePick
		return applyMakePick(s, cmd)
	case CmdNominate:
		return applyNominate(s, cmd)
	case CmdPlaceBid:
		return applyPlaceBid(s, cmd)
	case CmdBidTimeout:
		return applyBidTimeout(s)
	case CmdNomTimeout:
		return applyNomTimeout(s)
	case CmdPauseDraft:
		return applySetPaused(s, cmd, true)
	case CmdResumeDraft:
		return applySetPaused(s, cmd, false)
	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func applyAddTeam(s State, cmd Command) ([]Event, State, error) {
	if _, exists := s.Teams[cmd.TeamID]; exists {
		// Rejoin, not a duplicate insert.
		return nil, s, nil
	}
	if s.Status != StatusPending {
		return nil, s, ErrBadStatus
	}
	ns := s
	ns.Teams = maps.Clone(s.Teams)
	var budget *int
	if s.Rules.Budget != nil {
		b := *s.Rules.Budget
		budget = &b
	}
	ns.Teams[cmd.TeamID] = Team{
		ID:       cmd.TeamID,
		Name:     cmd.TeamName,
		Position: len(s.Order),
		Budget:   budget,
	}
	ns.Order = append(slices.Clone(s.Order), cmd.TeamID)
	return []Event{{Type: EvtTeamAdded, TeamID: cmd.TeamID}}, ns, nil
}

func applyStartDraft(s State, cmd Command) ([]Event, State, error) {
	if s.Status != StatusPending {
		return nil, s, ErrBadStatus
	}
	if t, ok := s.Teams[cmd.TeamID]; !ok || t.Position != 0 {
		return nil, s, ErrNotOwner
	}
	if len(s.Order) < 2 {
		return nil, s, ErrNotEnoughTeams
	}
	ns := s
	ns.Status = StatusLive
	return []Event{{Type: EvtDraftStarted}}, ns, nil
}

func applyMakePick(s State, cmd Command) ([]Event, State, error) {
	if s.Status == StatusCompleted {
		return nil, s, ErrDraftCompleted
	}
	if s.Status != StatusLive || s.Format == FormatAuction {
		return nil, s, ErrBadStatus
	}
	active, ok := s.ActivePicker()
	if !ok || active != cmd.TeamID {
		return nil, s, ErrWrongTurn
	}
	if err := canClaim(s, cmd.TeamID, cmd.PokemonID); err != nil {
		return nil, s, err
	}
	pickNo := s.PickCount
	ns := claim(s, cmd.TeamID, cmd.PokemonID, nil)
	events := []Event{
		{Type: EvtPickMade, TeamID: cmd.TeamID, PokemonID: cmd.PokemonID, PickNumber: pickNo},
		{Type: EvtTurnAdvanced},
	}
	if ns.Complete() {
		ns.Status = StatusCompleted
		events = append(events, Event{Type: EvtDraftCompleted})
	}
	return events, ns, nil
}

func applyNominate(s State, cmd Command) ([]Event, State, error) {
	if s.Status != StatusLive || s.Format != FormatAuction {
		return nil, s, ErrBadStatus
	}
	if s.Current != nil {
		return nil, s, ErrNominationOpen
	}
	nominator, ok := s.Nominator()
	if !ok || nominator != cmd.TeamID {
		return nil, s, ErrWrongTurn
	}
	if err := canClaim(s, cmd.TeamID, cmd.PokemonID); err != nil {
		return nil, s, err
	}
	ns := s
	ns.Current = &Nomination{
		PokemonID: cmd.PokemonID,
		Nominator: cmd.TeamID,
		MinBid:    max(s.Rules.MinBid, 1),
	}
	ev := Event{Type: EvtNominated, TeamID: cmd.TeamID, PokemonID: cmd.PokemonID, Amount: ns.Current.MinBid}
	return []Event{ev}, ns, nil
}

func applyPlaceBid(s State, cmd Command) ([]Event, State, error) {
	if s.Status != StatusLive || s.Format != FormatAuction {
		return nil, s, ErrBadStatus
	}
	nom := s.Current
	if nom == nil || nom.PokemonID != cmd.PokemonID {
		return nil, s, ErrNoNomination
	}
	t, ok := s.Teams[cmd.TeamID]
	if !ok {
		return nil, s, ErrWrongTurn
	}
	if s.RosterFull(cmd.TeamID) {
		return nil, s, ErrRosterFull
	}
	if !LegalBid(cmd.Amount, nom.HighBid, nom.BidCount, nom.MinBid, s.Rules.BidIncrement) {
		return nil, s, ErrBidTooLow
	}
	if t.Budget != nil && cmd.Amount > *t.Budget {
		return nil, s, ErrInsufficientBudget
	}
	ns := s
	next := *nom
	next.HighBid = cmd.Amount
	next.HighBidder = cmd.TeamID
	next.BidCount++
	ns.Current = &next
	ev := Event{Type: EvtBidPlaced, TeamID: cmd.TeamID, PokemonID: cmd.PokemonID, Amount: cmd.Amount}
	return []Event{ev}, ns, nil
}

func applyBidTimeout(s State) ([]Event, State, error) {
	if s.Status != StatusLive || s.Format != FormatAuction {
		return nil, s, ErrBadStatus
	}
	nom := s.Current
	if nom == nil {
		return nil, s, ErrNoNomination
	}
	ns := s
	ns.Current = nil
	ns.NominationCount++
	if nom.BidCount == 0 {
		// Unbid lot goes back to the pool; it is not auto-awarded to the
		// nominator.
		events := []Event{
			{Type: EvtNominationPassed, PokemonID: nom.PokemonID},
			{Type: EvtTurnAdvanced},
		}
		return events, ns, nil
	}
	pickNo := ns.PickCount
	cost := nom.HighBid
	ns = claim(ns, nom.HighBidder, nom.PokemonID, &cost)
	events := []Event{
		{Type: EvtPickMade, TeamID: nom.HighBidder, PokemonID: nom.PokemonID, PickNumber: pickNo, Cost: &cost},
		{Type: EvtTurnAdvanced},
	}
	if ns.Complete() {
		ns.Status = StatusCompleted
		events = append(events, Event{Type: EvtDraftCompleted})
	}
	return events, ns, nil
}

// applyNomTimeout skips a team that let its nomination window lapse.
func applyNomTimeout(s State) ([]Event, State, error) {
	if s.Status != StatusLive || s.Format != FormatAuction {
		return nil, s, ErrBadStatus
	}
	if s.Current != nil {
		return nil, s, ErrNominationOpen
	}
	ns := s
	ns.NominationCount++
	return []Event{{Type: EvtTurnAdvanced}}, ns, nil
}

func applySetPaused(s State, cmd Command, pause bool) ([]Event, State, error) {
	if t, ok := s.Teams[cmd.TeamID]; !ok || t.Position != 0 {
		return nil, s, ErrNotOwner
	}
	ns := s
	if pause {
		if s.Status != StatusLive {
			return nil, s, ErrBadStatus
		}
		ns.Status = StatusPaused
		return []Event{{Type: EvtDraftPaused}}, ns, nil
	}
	if s.Status != StatusPaused {
		return nil, s, ErrBadStatus
	}
	ns.Status = StatusLive
	return []Event{{Type: EvtDraftResumed}}, ns, nil
}

// LegalBid reports whether amount may be accepted against the current high
// bid. The opening bid must meet the nomination minimum; later bids must
// exceed the high bid by at least the increment.
func LegalBid(amount, highBid, bidCount, minBid, increment int) bool {
	if bidCount == 0 {
		return amount >= minBid
	}
	return amount >= highBid+max(increment, 1)
}

func canClaim(s State, teamID string, pokemonID int) error {
	if s.RosterFull(teamID) {
		return ErrRosterFull
	}
	if _, taken := s.Claimed[pokemonID]; taken {
		return ErrIllegalPick
	}
	return nil
}

// claim transfers a pokemon to a team: roster append, claimed index, pick
// counter, and budget debit for auction wins.
func claim(s State, teamID string, pokemonID int, cost *int) State {
	ns := s
	ns.Teams = maps.Clone(s.Teams)
	ns.Claimed = maps.Clone(s.Claimed)
	t := ns.Teams[teamID]
	t.Roster = append(slices.Clone(t.Roster), pokemonID)
	if cost != nil && t.Budget != nil {
		b := *t.Budget - *cost
		t.Budget = &b
	}
	ns.Teams[teamID] = t
	ns.Claimed[pokemonID] = teamID
	ns.PickCount++
	return ns
}
