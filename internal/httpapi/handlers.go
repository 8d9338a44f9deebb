package httpapi

import (
	"crypto/rand"
	"math/big"
	"net/http"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mido3801/pokedraft/internal/engine"
	"github.com/mido3801/pokedraft/internal/hub"
	"github.com/mido3801/pokedraft/internal/room"
)

type CreateDraftRequest struct {
	Format       string `json:"format"`
	RosterSize   int    `json:"roster_size"`
	Budget       *int   `json:"budget,omitempty"`
	MinBid       int    `json:"min_bid,omitempty"`
	BidIncrement int    `json:"bid_increment,omitempty"`
	PickTimerSec int    `json:"pick_timer_sec,omitempty"`
	NomTimerSec  int    `json:"nom_timer_sec,omitempty"`
	BidTimerSec  int    `json:"bid_timer_sec,omitempty"`
}

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

func CreateDraft(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateDraftRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}

		format := engine.Format(req.Format)
		switch format {
		case engine.FormatSnake, engine.FormatLinear, engine.FormatAuction:
		default:
			http.Error(w, "unknown format", http.StatusBadRequest)
			return
		}
		if req.RosterSize <= 0 {
			http.Error(w, "roster_size must be positive", http.StatusBadRequest)
			return
		}

		rules := engine.Rules{
			RosterSize:   req.RosterSize,
			Budget:       req.Budget,
			MinBid:       req.MinBid,
			BidIncrement: req.BidIncrement,
			PickTimerSec: req.PickTimerSec,
			NomTimerSec:  req.NomTimerSec,
			BidTimerSec:  req.BidTimerSec,
		}
		if rules.PickTimerSec <= 0 {
			rules.PickTimerSec = 60
		}
		if rules.NomTimerSec <= 0 {
			rules.NomTimerSec = 30
		}
		if rules.BidTimerSec <= 0 {
			rules.BidTimerSec = 10
		}

		var code string
		for {
			c, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			reply := make(chan *room.Room, 1)
			h.Inbox() <- hub.GetRoom{ID: c, Reply: reply}
			if <-reply == nil {
				code = c
				break
			}
			log.Info("draft code collision, regenerating", zap.String("code", c))
		}

		reply := make(chan *room.Room, 1)
		h.Inbox() <- hub.EnsureRoom{ID: code, State: engine.NewState(format, rules), Reply: reply}
		if <-reply == nil {
			http.Error(w, "failed to create draft", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(struct {
			Code string `json:"code"`
		}{Code: code})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
