// Package store defines the persistence interface for the wager engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/esquilo/wager-engine/internal/model"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	// Absence is not exceptional for lookups; callers decide what it means.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicate is returned when an insert violates a uniqueness
	// constraint, e.g. a (match, user) participant pair.
	ErrDuplicate = errors.New("store: duplicate")
)

// SettlementEntry is one participant's ledger delta applied when a match
// settles. A win bumps the win counter and credits Payout; a loss bumps
// the loss counter. The account is created if it does not exist yet.
type SettlementEntry struct {
	UserID string
	Won    bool
	Payout decimal.Decimal
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Match operations ---

	// CreateMatch persists a new match and assigns its ID.
	CreateMatch(ctx context.Context, m *model.Match) error

	// GetMatch retrieves a match by its internal ID.
	GetMatch(ctx context.Context, id int64) (*model.Match, error)

	// GetMatchByRoomCode retrieves a match by its external room code.
	GetMatchByRoomCode(ctx context.Context, code string) (*model.Match, error)

	// ListMatchesByStatus returns a guild's matches in one status,
	// oldest first. An empty status returns every match.
	ListMatchesByStatus(ctx context.Context, guildID, status string) ([]model.Match, error)

	// UpdateMatchStatus writes a bare status transition.
	UpdateMatchStatus(ctx context.Context, id int64, status string) error

	// SetMatchMediator records the mediator driving the confirmation flow.
	SetMatchMediator(ctx context.Context, id int64, mediatorID string) error

	// ConfirmMatch marks the match confirmed with its confirmation time.
	ConfirmMatch(ctx context.Context, id int64, at time.Time) error

	// SettleMatch marks the match completed with its winner and applies
	// every participant's ledger entry in a single transaction. Either
	// the status transition and all account updates land, or none do.
	SettleMatch(ctx context.Context, id int64, guildID, winnerTeam string, at time.Time, entries []SettlementEntry) error

	// --- Participant operations ---

	// AddParticipant inserts a queue membership. Returns ErrDuplicate if
	// the user is already in the match.
	AddParticipant(ctx context.Context, p *model.Participant) error

	// RemoveParticipant deletes a queue membership. Returns ErrNotFound
	// if the user is not in the match.
	RemoveParticipant(ctx context.Context, matchID int64, userID string) error

	// ListParticipants returns a match's participants in join order.
	ListParticipants(ctx context.Context, matchID int64) ([]model.Participant, error)

	// --- Account operations ---

	// GetAccount retrieves a user's per-guild account.
	GetAccount(ctx context.Context, guildID, userID string) (*model.Account, error)

	// UpsertAccount creates or updates an account's identity fields
	// (username, mediator flag, Pix identity). Counters and balance are
	// written only through SettleMatch.
	UpsertAccount(ctx context.Context, a *model.Account) error

	// --- Audit log ---

	// InsertAuditEvent appends an immutable audit record.
	InsertAuditEvent(ctx context.Context, e *model.AuditEvent) error

	// ListAuditEvents returns a guild's most recent audit records,
	// newest first, capped at limit.
	ListAuditEvents(ctx context.Context, guildID string, limit int) ([]model.AuditEvent, error)
}
