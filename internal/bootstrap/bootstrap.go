// Package bootstrap resolves which participant a caller is before the draft
// connection opens: first from persisted session data, then from a server
// identity lookup, falling back to spectator.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mido3801/pokedraft/internal/filter"
)

// Credentials is what the persisted-session store keeps per session.
type Credentials struct {
	SessionToken string
	TeamID       string
	RejoinCode   string
}

// SessionStore is the persisted-session collaborator, keyed by session id.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (Credentials, bool, error)
	Set(ctx context.Context, sessionID string, creds Credentials) error
	Clear(ctx context.Context, sessionID string) error
}

// IdentityResolver is the session-identity collaborator: maps a credential
// to the caller's team.
type IdentityResolver interface {
	Resolve(ctx context.Context, userToken string) (teamID string, err error)
}

// Catalog is the static item-metadata collaborator.
type Catalog interface {
	Species(id int) (filter.Species, bool)
	All() []filter.Species
}

// Identity is what the connection layer needs to join.
type Identity struct {
	TeamID     string
	UserToken  string
	RejoinCode string
}

// Spectator reports whether the caller has no team of their own.
func (id Identity) Spectator() bool { return id.TeamID == "" }

// Resolve determines the caller's identity for sessionID. Order: persisted
// credentials win, then the identity lookup (result is persisted for next
// time), then spectator.
func Resolve(ctx context.Context, sessionID, userToken string, sessions SessionStore, ids IdentityResolver, log *zap.Logger) (Identity, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if sessions != nil {
		creds, ok, err := sessions.Get(ctx, sessionID)
		if err != nil {
			return Identity{}, fmt.Errorf("reading persisted session: %w", err)
		}
		if ok && creds.TeamID != "" {
			log.Debug("identity from persisted session",
				zap.String("session", sessionID),
				zap.String("team", creds.TeamID))
			return Identity{TeamID: creds.TeamID, UserToken: creds.SessionToken, RejoinCode: creds.RejoinCode}, nil
		}
	}
	if userToken != "" && ids != nil {
		teamID, err := ids.Resolve(ctx, userToken)
		if err != nil {
			return Identity{}, fmt.Errorf("identity lookup: %w", err)
		}
		if teamID != "" {
			if sessions != nil {
				err := sessions.Set(ctx, sessionID, Credentials{SessionToken: userToken, TeamID: teamID})
				if err != nil {
					log.Warn("persisting session failed", zap.Error(err))
				}
			}
			return Identity{TeamID: teamID, UserToken: userToken}, nil
		}
	}
	return Identity{UserToken: userToken}, nil
}

// MemoryStore is an in-process SessionStore, the default when no persistence
// collaborator is supplied.
type MemoryStore struct {
	creds map[string]Credentials
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: map[string]Credentials{}}
}

func (m *MemoryStore) Get(_ context.Context, sessionID string) (Credentials, bool, error) {
	c, ok := m.creds[sessionID]
	return c, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, sessionID string, creds Credentials) error {
	m.creds[sessionID] = creds
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, sessionID string) error {
	delete(m.creds, sessionID)
	return nil
}
