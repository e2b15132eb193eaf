// Package model defines the core domain types shared across the wager engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Match lifecycle statuses. Transitions are one-directional along
// waiting → full → confirmed → completed; cancelled is reachable from
// any non-terminal status.
const (
	StatusWaiting   = "waiting"
	StatusFull      = "full"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Winning sides for a completed match.
const (
	Team1 = "team1"
	Team2 = "team2"
)

// Terminal reports whether a status admits no further transitions.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

// Match represents one organized, wagered contest instance.
type Match struct {
	ID           int64           `json:"id" db:"id"`
	GuildID      string          `json:"guild_id" db:"guild_id"`
	RoomCode     string          `json:"room_code" db:"room_code"`         // 6 chars, A-Z0-9, shown to players
	RoomPassword string          `json:"room_password" db:"room_password"` // 4 digits
	Mode         string          `json:"mode" db:"mode"`                   // "1v1".."4v4"
	Stake        decimal.Decimal `json:"stake" db:"stake"`
	Status       string          `json:"status" db:"status"`
	WinnerTeam   string          `json:"winner_team,omitempty" db:"winner_team"` // team1 or team2, empty until settled
	MediatorID   string          `json:"mediator_id,omitempty" db:"mediator_id"` // set when a confirmation panel opens
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	ConfirmedAt  *time.Time      `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// Participant is a user's membership in one match's queue.
// The (MatchID, UserID) pair is unique. Team is assigned at join time,
// alternating by join order, so settlement can tell winners from losers.
type Participant struct {
	MatchID  int64     `json:"match_id" db:"match_id"`
	UserID   string    `json:"user_id" db:"user_id"`
	Team     string    `json:"team" db:"team"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
}

// Account is a user's per-guild balance and record. Win/loss counters and
// balance change only through settlement, exactly once per completed match.
type Account struct {
	UserID     string          `json:"user_id" db:"user_id"`
	GuildID    string          `json:"guild_id" db:"guild_id"`
	Username   string          `json:"username" db:"username"`
	Wins       int             `json:"wins" db:"wins"`
	Losses     int             `json:"losses" db:"losses"`
	Balance    decimal.Decimal `json:"balance" db:"balance"`
	IsMediator bool            `json:"is_mediator" db:"is_mediator"`
	PixBank    string          `json:"pix_bank,omitempty" db:"pix_bank"`
	PixHolder  string          `json:"pix_holder,omitempty" db:"pix_holder"`
	PixKey     string          `json:"pix_key,omitempty" db:"pix_key"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// WinRate returns the percentage of played matches won, rounded to one
// decimal place. Zero when no matches have been played.
func (a *Account) WinRate() decimal.Decimal {
	played := a.Wins + a.Losses
	if played == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(a.Wins)).
		Div(decimal.NewFromInt(int64(played))).
		Mul(decimal.NewFromInt(100)).
		Round(1)
}

// AuditEvent is an append-only record of a notable action. The engine only
// produces these; persistence and fan-out belong to the hosting layer.
type AuditEvent struct {
	ID        string    `json:"id" db:"id"`
	GuildID   string    `json:"guild_id" db:"guild_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Action    string    `json:"action" db:"action"` // join_queue, leave_queue, match_confirmed, ...
	RoomCode  string    `json:"room_code,omitempty" db:"room_code"`
	Details   string    `json:"details,omitempty" db:"details"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
