package engine

// ActiveIndex maps a global pick index to a position in the draft order.
// Linear repeats the order every round; snake reverses it on odd rounds.
// Auction drafts use the same arithmetic, applied to the nomination counter
// instead of the pick counter. Returns false when no teams have joined.
func ActiveIndex(pickIndex, numTeams int, format Format) (int, bool) {
	if numTeams <= 0 || pickIndex < 0 {
		return 0, false
	}
	round := pickIndex / numTeams
	pos := pickIndex % numTeams
	if format == FormatSnake && round%2 == 1 {
		pos = numTeams - 1 - pos
	}
	return pos, true
}

// ActiveTeam resolves the team holding the turn for a given pick index.
func ActiveTeam(pickIndex int, order []string, format Format) (string, bool) {
	idx, ok := ActiveIndex(pickIndex, len(order), format)
	if !ok {
		return "", false
	}
	return order[idx], true
}
