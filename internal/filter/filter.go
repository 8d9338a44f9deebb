package filter

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Species is immutable reference data for one pool item. The mutable pool is
// derived elsewhere as catalog minus claimed ids.
type Species struct {
	ID         int            `json:"id"`
	Name       string         `json:"name"`
	Types      []string       `json:"types"`
	Generation int            `json:"generation"`
	Stage      int            `json:"stage"`
	BST        int            `json:"bst"`
	Legendary  bool           `json:"legendary"`
	Mythical   bool           `json:"mythical"`
	Stats      map[string]int `json:"stats,omitempty"`
}

// Config selects which species are currently draftable. Zero value allows
// everything.
type Config struct {
	Include        map[int]bool
	Exclude        map[int]bool
	Generations    map[int]bool
	Stages         map[int]bool
	AllowLegendary bool
	AllowMythical  bool
	Types          []string
	MinBST         int
	MaxBST         int // 0 means unbounded
}

// Allow builds a config that permits every species, the usual starting point
// before a league tightens the rules.
func Allow() Config {
	return Config{AllowLegendary: true, AllowMythical: true}
}

// Eligible evaluates the filter rules in precedence order, first match wins:
// inclusion, exclusion, generation, stage, rarity toggles, type allow-list,
// BST range. Pure and deterministic for a given (species, config) pair.
func (c Config) Eligible(sp Species) bool {
	if c.Include[sp.ID] {
		return true
	}
	if c.Exclude[sp.ID] {
		return false
	}
	if len(c.Generations) > 0 && !c.Generations[sp.Generation] {
		return false
	}
	if len(c.Stages) > 0 && !c.Stages[sp.Stage] {
		return false
	}
	if sp.Legendary && !c.AllowLegendary {
		return false
	}
	if sp.Mythical && !c.AllowMythical {
		return false
	}
	if len(c.Types) > 0 && !hasAnyType(sp.Types, c.Types) {
		return false
	}
	if sp.BST < c.MinBST {
		return false
	}
	if c.MaxBST > 0 && sp.BST > c.MaxBST {
		return false
	}
	return true
}

// Pool returns the eligible, unclaimed slice of the catalog, preserving
// catalog order.
func Pool(catalog []Species, claimed map[int]bool, cfg Config) []Species {
	out := make([]Species, 0, len(catalog))
	for _, sp := range catalog {
		if claimed[sp.ID] {
			continue
		}
		if cfg.Eligible(sp) {
			out = append(out, sp)
		}
	}
	return out
}

// Fingerprint is a stable digest of the config, usable as a memoization key
// for eligibility results.
func (c Config) Fingerprint() string {
	var b strings.Builder
	writeSet := func(tag string, set map[int]bool) {
		ids := make([]int, 0, len(set))
		for id, on := range set {
			if on {
				ids = append(ids, id)
			}
		}
		sort.Ints(ids)
		fmt.Fprintf(&b, "%s:%v;", tag, ids)
	}
	writeSet("inc", c.Include)
	writeSet("exc", c.Exclude)
	writeSet("gen", c.Generations)
	writeSet("stg", c.Stages)
	ts := append([]string(nil), c.Types...)
	sort.Strings(ts)
	fmt.Fprintf(&b, "leg:%t;myt:%t;typ:%v;bst:%d-%d", c.AllowLegendary, c.AllowMythical, ts, c.MinBST, c.MaxBST)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func hasAnyType(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}
