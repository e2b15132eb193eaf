package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/esquilo/wager-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// Uniqueness (room code, (match, user) participant pair) is enforced by
// unique indexes; violations surface as ErrDuplicate.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// translate maps driver errors onto the store sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func (s *PostgresStore) CreateMatch(ctx context.Context, m *model.Match) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO matches (guild_id, room_code, room_password, mode, stake, status, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7)
		 RETURNING id`,
		m.GuildID, m.RoomCode, m.RoomPassword, m.Mode,
		m.Stake.String(), m.Status, m.CreatedAt,
	).Scan(&m.ID)
	return translate(err)
}

const matchColumns = `id, guild_id, room_code, room_password, mode,
	        stake::TEXT, status,
	        COALESCE(winner_team, ''), COALESCE(mediator_id, ''),
	        created_at, confirmed_at, completed_at`

func scanMatch(row pgx.Row) (*model.Match, error) {
	var m model.Match
	var stake string

	err := row.Scan(&m.ID, &m.GuildID, &m.RoomCode, &m.RoomPassword, &m.Mode,
		&stake, &m.Status,
		&m.WinnerTeam, &m.MediatorID,
		&m.CreatedAt, &m.ConfirmedAt, &m.CompletedAt)
	if err != nil {
		return nil, err
	}

	m.Stake, _ = decimal.NewFromString(stake)
	return &m, nil
}

func (s *PostgresStore) GetMatch(ctx context.Context, id int64) (*model.Match, error) {
	m, err := scanMatch(s.pool.QueryRow(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get match %d: %w", id, translate(err))
	}
	return m, nil
}

func (s *PostgresStore) GetMatchByRoomCode(ctx context.Context, code string) (*model.Match, error) {
	m, err := scanMatch(s.pool.QueryRow(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE room_code = $1`, code))
	if err != nil {
		return nil, fmt.Errorf("get match by room code %s: %w", code, translate(err))
	}
	return m, nil
}

func (s *PostgresStore) ListMatchesByStatus(ctx context.Context, guildID, status string) ([]model.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE guild_id = $1`
	args := []any{guildID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []model.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

func (s *PostgresStore) UpdateMatchStatus(ctx context.Context, id int64, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE matches SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetMatchMediator(ctx context.Context, id int64, mediatorID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE matches SET mediator_id = $2 WHERE id = $1`, id, mediatorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ConfirmMatch(ctx context.Context, id int64, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE matches SET status = $2, confirmed_at = $3 WHERE id = $1`,
		id, model.StatusConfirmed, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SettleMatch runs the completion transition and all ledger upserts in
// one transaction; a failure on any statement rolls everything back.
func (s *PostgresStore) SettleMatch(ctx context.Context, id int64, guildID, winnerTeam string, at time.Time, entries []SettlementEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin settlement: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE matches SET status = $2, winner_team = $3, completed_at = $4 WHERE id = $1`,
		id, model.StatusCompleted, winnerTeam, at)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	for _, e := range entries {
		wins, losses := 0, 0
		credit := decimal.Zero
		if e.Won {
			wins = 1
			credit = e.Payout
		} else {
			losses = 1
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO accounts (user_id, guild_id, wins, losses, balance, is_mediator, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5::NUMERIC, FALSE, NOW(), NOW())
			 ON CONFLICT (guild_id, user_id) DO UPDATE
			 SET wins = accounts.wins + EXCLUDED.wins,
			     losses = accounts.losses + EXCLUDED.losses,
			     balance = accounts.balance + EXCLUDED.balance,
			     updated_at = NOW()`,
			e.UserID, guildID, wins, losses, credit.String())
		if err != nil {
			return translate(err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) AddParticipant(ctx context.Context, p *model.Participant) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO match_participants (match_id, user_id, team, joined_at)
		 VALUES ($1, $2, $3, $4)`,
		p.MatchID, p.UserID, p.Team, p.JoinedAt)
	return translate(err)
}

func (s *PostgresStore) RemoveParticipant(ctx context.Context, matchID int64, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM match_participants WHERE match_id = $1 AND user_id = $2`,
		matchID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListParticipants(ctx context.Context, matchID int64) ([]model.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT match_id, user_id, COALESCE(team, ''), joined_at
		 FROM match_participants WHERE match_id = $1 ORDER BY joined_at, user_id`,
		matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []model.Participant
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.MatchID, &p.UserID, &p.Team, &p.JoinedAt); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (s *PostgresStore) GetAccount(ctx context.Context, guildID, userID string) (*model.Account, error) {
	var a model.Account
	var balance string

	err := s.pool.QueryRow(ctx,
		`SELECT user_id, guild_id, COALESCE(username, ''), wins, losses,
		        balance::TEXT, is_mediator,
		        COALESCE(pix_bank, ''), COALESCE(pix_holder, ''), COALESCE(pix_key, ''),
		        created_at, updated_at
		 FROM accounts WHERE guild_id = $1 AND user_id = $2`, guildID, userID).
		Scan(&a.UserID, &a.GuildID, &a.Username, &a.Wins, &a.Losses,
			&balance, &a.IsMediator,
			&a.PixBank, &a.PixHolder, &a.PixKey,
			&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get account %s/%s: %w", guildID, userID, translate(err))
	}

	a.Balance, _ = decimal.NewFromString(balance)
	return &a, nil
}

func (s *PostgresStore) UpsertAccount(ctx context.Context, a *model.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (user_id, guild_id, username, wins, losses, balance, is_mediator,
		                       pix_bank, pix_holder, pix_key, created_at, updated_at)
		 VALUES ($1, $2, $3, 0, 0, 0, $4, $5, $6, $7, NOW(), NOW())
		 ON CONFLICT (guild_id, user_id) DO UPDATE
		 SET username = EXCLUDED.username,
		     is_mediator = EXCLUDED.is_mediator,
		     pix_bank = EXCLUDED.pix_bank,
		     pix_holder = EXCLUDED.pix_holder,
		     pix_key = EXCLUDED.pix_key,
		     updated_at = NOW()`,
		a.UserID, a.GuildID, a.Username, a.IsMediator,
		a.PixBank, a.PixHolder, a.PixKey)
	return translate(err)
}

func (s *PostgresStore) InsertAuditEvent(ctx context.Context, e *model.AuditEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_events (id, guild_id, user_id, action, room_code, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.GuildID, e.UserID, e.Action, e.RoomCode, e.Details, e.CreatedAt)
	return translate(err)
}

func (s *PostgresStore) ListAuditEvents(ctx context.Context, guildID string, limit int) ([]model.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, guild_id, user_id, action, COALESCE(room_code, ''), COALESCE(details, ''), created_at
		 FROM audit_events WHERE guild_id = $1 ORDER BY created_at DESC LIMIT $2`,
		guildID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var e model.AuditEvent
		if err := rows.Scan(&e.ID, &e.GuildID, &e.UserID, &e.Action, &e.RoomCode, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
