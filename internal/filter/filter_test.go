package filter

import "testing"

func sample() Species {
	return Species{
		ID:         5,
		Name:       "Charmeleon",
		Types:      []string{"fire"},
		Generation: 1,
		Stage:      2,
		BST:        405,
	}
}

func TestEligiblePrecedence(t *testing.T) {
	cases := []struct {
		name string
		sp   Species
		cfg  Config
		want bool
	}{
		{
			name: "zero restrictions allow",
			sp:   sample(),
			cfg:  Allow(),
			want: true,
		},
		{
			name: "inclusion wins over exclusion",
			sp:   sample(),
			cfg: func() Config {
				c := Allow()
				c.Include = map[int]bool{5: true}
				c.Exclude = map[int]bool{5: true}
				return c
			}(),
			want: true,
		},
		{
			name: "inclusion wins over every other rule",
			sp:   Species{ID: 5, Generation: 9, Stage: 1, BST: 999, Legendary: true, Mythical: true},
			cfg: Config{
				Include:     map[int]bool{5: true},
				Generations: map[int]bool{1: true},
				Stages:      map[int]bool{3: true},
				Types:       []string{"water"},
				MaxBST:      100,
			},
			want: true,
		},
		{
			name: "excluded",
			sp:   sample(),
			cfg: func() Config {
				c := Allow()
				c.Exclude = map[int]bool{5: true}
				return c
			}(),
			want: false,
		},
		{
			name: "generation not allowed",
			sp:   sample(),
			cfg: func() Config {
				c := Allow()
				c.Generations = map[int]bool{3: true, 4: true}
				return c
			}(),
			want: false,
		},
		{
			name: "stage not allowed",
			sp:   sample(),
			cfg: func() Config {
				c := Allow()
				c.Stages = map[int]bool{3: true}
				return c
			}(),
			want: false,
		},
		{
			name: "legendary toggled off",
			sp: func() Species {
				sp := sample()
				sp.Legendary = true
				return sp
			}(),
			cfg: Config{AllowMythical: true},
			want: false,
		},
		{
			name: "mythical toggled off",
			sp: func() Species {
				sp := sample()
				sp.Mythical = true
				return sp
			}(),
			cfg: Config{AllowLegendary: true},
			want: false,
		},
		{
			name: "type allow-list mismatch",
			sp:   sample(),
			cfg: func() Config {
				c := Allow()
				c.Types = []string{"water", "grass"}
				return c
			}(),
			want: false,
		},
		{
			name: "type allow-list match",
			sp:   sample(),
			cfg: func() Config {
				c := Allow()
				c.Types = []string{"Fire"}
				return c
			}(),
			want: true,
		},
		{
			name: "bst below minimum",
			sp:   sample(),
			cfg: func() Config {
				c := Allow()
				c.MinBST = 500
				return c
			}(),
			want: false,
		},
		{
			name: "bst above maximum",
			sp:   sample(),
			cfg: func() Config {
				c := Allow()
				c.MaxBST = 400
				return c
			}(),
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cfg.Eligible(tc.sp); got != tc.want {
				t.Fatalf("Eligible: got %v, want %v", got, tc.want)
			}
			// Re-evaluation must agree; the predicate is memoizable.
			if got := tc.cfg.Eligible(tc.sp); got != tc.want {
				t.Fatalf("Eligible not idempotent")
			}
		})
	}
}

func TestPoolExcludesClaimed(t *testing.T) {
	catalog := []Species{
		{ID: 1, BST: 300}, {ID: 2, BST: 300}, {ID: 3, BST: 300},
	}
	got := Pool(catalog, map[int]bool{2: true}, Allow())
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 3 {
		t.Fatalf("pool: got %+v", got)
	}
}

func TestFingerprintStableAcrossMapOrder(t *testing.T) {
	a := Config{Include: map[int]bool{1: true, 2: true, 3: true}, Types: []string{"fire", "water"}}
	b := Config{Include: map[int]bool{3: true, 2: true, 1: true}, Types: []string{"water", "fire"}}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("fingerprint should not depend on iteration order")
	}
	c := a
	c.MinBST = 100
	if a.Fingerprint() == c.Fingerprint() {
		t.Fatalf("different configs must not collide")
	}
}
