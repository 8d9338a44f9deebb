package conn

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy caps reconnect behavior for one connection class. The primary draft
// connection gets a higher attempt cap than the secondary trade/waiver
// notification connection; losing the former ends the session view, the
// latter is best-effort.
type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func PrimaryPolicy() Policy {
	return Policy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, MaxAttempts: 12}
}

func NotifyPolicy() Policy {
	return Policy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, MaxAttempts: 5}
}

// Delay returns the wait before reconnect attempt n (0-based):
// min(base*2^n, max), no jitter, so the schedule is predictable in tests.
func (p Policy) Delay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = p.MaxDelay
	d := b.NextBackOff()
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
