// Package match implements the match lifecycle coordinator: queue
// admission, capacity detection, confirmation quorum, and settlement,
// plus the HTTP handlers that expose them.
//
// Every mutating operation on a match runs inside a per-match critical
// section so concurrent interactions cannot observe half-applied
// transitions. All monetary values use shopspring/decimal.
package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/esquilo/wager-engine/internal/metrics"
	"github.com/esquilo/wager-engine/internal/mode"
	"github.com/esquilo/wager-engine/internal/model"
	"github.com/esquilo/wager-engine/internal/pix"
	"github.com/esquilo/wager-engine/internal/room"
	"github.com/esquilo/wager-engine/internal/stakes"
	"github.com/esquilo/wager-engine/internal/store"
)

var (
	ErrMatchNotFound      = errors.New("match: not found")
	ErrAlreadyQueued      = errors.New("match: user already queued")
	ErrNotQueued          = errors.New("match: user not queued")
	ErrWrongState         = errors.New("match: operation invalid for current status")
	ErrTerminalState      = errors.New("match: already completed or cancelled")
	ErrNoOpenConfirmation = errors.New("match: no open confirmation")
	ErrInvalidWinner      = errors.New("match: winner must be team1 or team2")
	ErrAlreadySettled     = errors.New("match: result already recorded")
	ErrNotMediator        = errors.New("match: requester is not the mediator")
	ErrInvalidStake       = errors.New("match: invalid stake amount")
)

// createRetries caps room-code regeneration attempts on code collision.
const createRetries = 5

// confirmation is the ephemeral per-match quorum tracker. It exists only
// while the match sits in full status; it is discarded on quorum, on a
// participant leaving, and on cancellation.
type confirmation struct {
	mediatorID string
	confirmed  map[string]bool
}

// Service coordinates match lifecycles. One instance owns all mutable
// per-match state (locks and confirmation trackers); the store below it
// is the durable source of truth.
type Service struct {
	store  store.Store
	pix    *pix.Builder
	stakes *stakes.Config
	hub    *Hub // optional event hub for real-time broadcasts

	mu            sync.Mutex
	locks         map[int64]*sync.Mutex
	confirmations map[int64]*confirmation
}

// NewService creates a new match service. Pass nil for hub if event
// broadcasting is not needed; pass nil for stakeCfg to accept any
// positive stake.
func NewService(st store.Store, builder *pix.Builder, stakeCfg *stakes.Config, hub *Hub) *Service {
	return &Service{
		store:         st,
		pix:           builder,
		stakes:        stakeCfg,
		hub:           hub,
		locks:         make(map[int64]*sync.Mutex),
		confirmations: make(map[int64]*confirmation),
	}
}

// lockFor returns the mutex serializing mutations on one match.
func (s *Service) lockFor(matchID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[matchID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[matchID] = l
	}
	return l
}

func (s *Service) dropConfirmation(matchID int64) {
	s.mu.Lock()
	delete(s.confirmations, matchID)
	s.mu.Unlock()
}

func (s *Service) confirmationFor(matchID int64) (*confirmation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.confirmations[matchID]
	return c, ok
}

// audit appends an audit event. Audit failures are logged, never fatal:
// the domain transition has already been persisted.
func (s *Service) audit(ctx context.Context, guildID, userID, action, roomCode, details string) {
	e := &model.AuditEvent{
		ID:        uuid.New().String(),
		GuildID:   guildID,
		UserID:    userID,
		Action:    action,
		RoomCode:  roomCode,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertAuditEvent(ctx, e); err != nil {
		slog.Warn("audit insert failed", "action", action, "room", roomCode, "err", err)
	}
}

// --- Creation and lookup ---

// Create opens a new queue slot: a waiting match with a fresh room code
// and password. The stake must be positive and, when a stake list is
// configured, one of its values.
func (s *Service) Create(ctx context.Context, guildID, modeDescriptor string, stake decimal.Decimal) (*model.Match, error) {
	m, err := mode.Parse(modeDescriptor)
	if err != nil {
		return nil, err
	}
	if !stake.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStake, stake)
	}
	if s.stakes != nil && !s.stakes.Allowed(stake) {
		return nil, fmt.Errorf("%w: %s not in configured stake list", ErrInvalidStake, stake)
	}

	match := &model.Match{
		GuildID:   guildID,
		Mode:      m.Descriptor,
		Stake:     stake,
		Status:    model.StatusWaiting,
		CreatedAt: time.Now().UTC(),
	}

	// Room codes are random; dedup against the registry by retrying on
	// collision.
	for attempt := 0; ; attempt++ {
		match.RoomCode = room.NewCode()
		match.RoomPassword = room.NewPassword()

		err := s.store.CreateMatch(ctx, match)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrDuplicate) && attempt < createRetries {
			continue
		}
		return nil, fmt.Errorf("create match: %w", err)
	}

	metrics.MatchesCreated.Inc()
	metrics.ActiveMatches.Inc()
	s.audit(ctx, guildID, "", "queue_opened", match.RoomCode,
		fmt.Sprintf("%s R$ %s", m.Descriptor, stake.StringFixed(2)))
	s.broadcast("match_created", match, 0)

	slog.Info("match created",
		"id", match.ID,
		"room", match.RoomCode,
		"mode", match.Mode,
		"stake", stake.String(),
	)
	return match, nil
}

// GetByID looks a match up by internal ID.
func (s *Service) GetByID(ctx context.Context, id int64) (*model.Match, error) {
	m, err := s.store.GetMatch(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMatchNotFound
	}
	return m, err
}

// GetByRoomCode looks a match up by its external room code.
func (s *Service) GetByRoomCode(ctx context.Context, code string) (*model.Match, error) {
	m, err := s.store.GetMatchByRoomCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMatchNotFound
	}
	return m, err
}

// List returns a guild's matches, optionally filtered by status.
func (s *Service) List(ctx context.Context, guildID, status string) ([]model.Match, error) {
	return s.store.ListMatchesByStatus(ctx, guildID, status)
}

// Participants returns a match's roster in join order.
func (s *Service) Participants(ctx context.Context, matchID int64) ([]model.Participant, error) {
	if _, err := s.GetByID(ctx, matchID); err != nil {
		return nil, err
	}
	return s.store.ListParticipants(ctx, matchID)
}

// Cancel moves a non-terminal match to cancelled. Only the assigned
// mediator may cancel.
func (s *Service) Cancel(ctx context.Context, matchID int64, requesterID string) error {
	l := s.lockFor(matchID)
	l.Lock()
	defer l.Unlock()

	m, err := s.GetByID(ctx, matchID)
	if err != nil {
		return err
	}
	if m.MediatorID == "" || m.MediatorID != requesterID {
		return fmt.Errorf("%w: %s", ErrNotMediator, requesterID)
	}
	return s.cancelLocked(ctx, m, requesterID, "match_cancelled")
}

// cancelLocked performs the cancellation transition. The per-match lock
// must already be held.
func (s *Service) cancelLocked(ctx context.Context, m *model.Match, actorID, action string) error {
	if model.Terminal(m.Status) {
		return fmt.Errorf("%w: %s", ErrTerminalState, m.Status)
	}
	if err := s.store.UpdateMatchStatus(ctx, m.ID, model.StatusCancelled); err != nil {
		return fmt.Errorf("cancel match %d: %w", m.ID, err)
	}

	s.dropConfirmation(m.ID)
	metrics.MatchesCancelled.Inc()
	if m.Status == model.StatusWaiting || m.Status == model.StatusFull {
		metrics.ActiveMatches.Dec()
	}
	s.audit(ctx, m.GuildID, actorID, action, m.RoomCode, "was "+m.Status)
	m.Status = model.StatusCancelled
	s.broadcast(action, m, 0)

	slog.Info("match cancelled", "id", m.ID, "room", m.RoomCode, "by", actorID)
	return nil
}

// ExpireStale cancels waiting matches older than ttl. This is the idle
// queue cleanup hook scheduled by the host; it bypasses the mediator
// check since no mediator is assigned while a match is waiting.
func (s *Service) ExpireStale(ctx context.Context, guildID string, ttl time.Duration) (int, error) {
	matches, err := s.store.ListMatchesByStatus(ctx, guildID, model.StatusWaiting)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-ttl)
	expired := 0
	for i := range matches {
		m := &matches[i]
		if m.CreatedAt.After(cutoff) {
			continue
		}

		l := s.lockFor(m.ID)
		l.Lock()
		// Re-read under the lock; the queue may have moved on.
		current, err := s.GetByID(ctx, m.ID)
		if err == nil && current.Status == model.StatusWaiting {
			if err := s.cancelLocked(ctx, current, "", "queue_expired"); err == nil {
				expired++
			}
		}
		l.Unlock()
	}
	return expired, nil
}

// --- Queue ---

// JoinResult reports the queue state right after a join.
type JoinResult struct {
	MatchID    int64  `json:"match_id"`
	RoomCode   string `json:"room_code"`
	Team       string `json:"team"`
	Count      int    `json:"count"`
	Capacity   int    `json:"capacity"`
	BecameFull bool   `json:"became_full"`
}

// Join admits a user into a waiting match's queue. Teams alternate by
// join order (1st, 3rd, ... → team1; 2nd, 4th, ... → team2), so a full
// queue always splits into two even sides. When the post-join count
// reaches capacity the match flips to full exactly once.
func (s *Service) Join(ctx context.Context, matchID int64, userID string) (*JoinResult, error) {
	l := s.lockFor(matchID)
	l.Lock()
	defer l.Unlock()

	m, err := s.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if model.Terminal(m.Status) {
		return nil, fmt.Errorf("%w: %s", ErrTerminalState, m.Status)
	}
	if m.Status != model.StatusWaiting {
		return nil, fmt.Errorf("%w: join requires waiting, match is %s", ErrWrongState, m.Status)
	}

	md, err := mode.Parse(m.Mode)
	if err != nil {
		return nil, fmt.Errorf("match %d has unparseable mode %q: %w", matchID, m.Mode, err)
	}
	capacity := md.Capacity()

	participants, err := s.store.ListParticipants(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	for _, p := range participants {
		if p.UserID == userID {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyQueued, userID)
		}
	}

	team := model.Team1
	if len(participants)%2 == 1 {
		team = model.Team2
	}

	p := &model.Participant{
		MatchID:  matchID,
		UserID:   userID,
		Team:     team,
		JoinedAt: time.Now().UTC(),
	}
	if err := s.store.AddParticipant(ctx, p); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyQueued, userID)
		}
		return nil, fmt.Errorf("add participant: %w", err)
	}

	count := len(participants) + 1
	becameFull := count >= capacity
	if becameFull {
		if err := s.store.UpdateMatchStatus(ctx, matchID, model.StatusFull); err != nil {
			return nil, fmt.Errorf("mark match full: %w", err)
		}
		m.Status = model.StatusFull
	}

	metrics.QueueJoins.Inc()
	s.audit(ctx, m.GuildID, userID, "join_queue", m.RoomCode, team)
	if becameFull {
		s.broadcast("queue_full", m, count)
		slog.Info("queue full", "id", m.ID, "room", m.RoomCode, "capacity", capacity)
	}

	return &JoinResult{
		MatchID:    matchID,
		RoomCode:   m.RoomCode,
		Team:       team,
		Count:      count,
		Capacity:   capacity,
		BecameFull: becameFull,
	}, nil
}

// Leave removes a user from a match's queue. Leaving a full match
// reverts it to waiting and discards any confirmation in progress — the
// quorum target just changed under the mediator's feet.
func (s *Service) Leave(ctx context.Context, matchID int64, userID string) error {
	l := s.lockFor(matchID)
	l.Lock()
	defer l.Unlock()

	m, err := s.GetByID(ctx, matchID)
	if err != nil {
		return err
	}
	if model.Terminal(m.Status) {
		return fmt.Errorf("%w: %s", ErrTerminalState, m.Status)
	}
	if m.Status != model.StatusWaiting && m.Status != model.StatusFull {
		return fmt.Errorf("%w: leave requires waiting or full, match is %s", ErrWrongState, m.Status)
	}

	if err := s.store.RemoveParticipant(ctx, matchID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotQueued, userID)
		}
		return fmt.Errorf("remove participant: %w", err)
	}

	if m.Status == model.StatusFull {
		if err := s.store.UpdateMatchStatus(ctx, matchID, model.StatusWaiting); err != nil {
			return fmt.Errorf("revert match to waiting: %w", err)
		}
		s.dropConfirmation(matchID)
	}

	metrics.QueueLeaves.Inc()
	s.audit(ctx, m.GuildID, userID, "leave_queue", m.RoomCode, "")
	return nil
}

// --- Confirmation ---

// ConfirmResult reports quorum progress after a confirmation.
type ConfirmResult struct {
	MatchID    int64  `json:"match_id"`
	RoomCode   string `json:"room_code"`
	Confirmed  int    `json:"confirmed"`
	Required   int    `json:"required"`
	Quorum     bool   `json:"quorum"`
	PixPayload string `json:"pix_payload,omitempty"`
}

// OpenConfirmation creates the confirmation quorum tracker for a full
// match and records its mediator. Reopening replaces any existing
// tracker with a fresh, empty one.
func (s *Service) OpenConfirmation(ctx context.Context, matchID int64, mediatorID string) error {
	l := s.lockFor(matchID)
	l.Lock()
	defer l.Unlock()

	m, err := s.GetByID(ctx, matchID)
	if err != nil {
		return err
	}
	if m.Status != model.StatusFull {
		return fmt.Errorf("%w: confirmation requires full, match is %s", ErrWrongState, m.Status)
	}

	if err := s.store.SetMatchMediator(ctx, matchID, mediatorID); err != nil {
		return fmt.Errorf("set mediator: %w", err)
	}

	s.mu.Lock()
	s.confirmations[matchID] = &confirmation{
		mediatorID: mediatorID,
		confirmed:  make(map[string]bool),
	}
	s.mu.Unlock()

	s.audit(ctx, m.GuildID, mediatorID, "confirmation_opened", m.RoomCode, "")
	slog.Info("confirmation opened", "id", m.ID, "room", m.RoomCode, "mediator", mediatorID)
	return nil
}

// Confirm records one participant's readiness. Re-confirming is a no-op.
// Quorum requires every current participant's ID to be in the confirmed
// set; once reached the match flips to confirmed and the Pix payment
// payload for the stake is returned.
func (s *Service) Confirm(ctx context.Context, matchID int64, userID string) (*ConfirmResult, error) {
	l := s.lockFor(matchID)
	l.Lock()
	defer l.Unlock()

	m, err := s.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}

	c, ok := s.confirmationFor(matchID)
	if !ok || m.Status != model.StatusFull {
		return nil, ErrNoOpenConfirmation
	}

	c.confirmed[userID] = true

	participants, err := s.store.ListParticipants(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	// Quorum check direction matters: every participant must be in the
	// confirmed set. Stray confirmations from non-participants count
	// toward nothing.
	confirmed := 0
	quorum := true
	for _, p := range participants {
		if c.confirmed[p.UserID] {
			confirmed++
		} else {
			quorum = false
		}
	}

	res := &ConfirmResult{
		MatchID:   matchID,
		RoomCode:  m.RoomCode,
		Confirmed: confirmed,
		Required:  len(participants),
		Quorum:    quorum,
	}
	if !quorum {
		return res, nil
	}

	// Build the payment request before persisting the transition: a
	// misconfigured Pix key must not leave a confirmed match with no way
	// to request the stake. Confirm is idempotent, so the caller can fix
	// the key and retry.
	payload, err := s.pix.BuildPayload(m.Stake, "Aposta "+m.RoomCode)
	if err != nil {
		return nil, fmt.Errorf("build payment code: %w", err)
	}

	now := time.Now().UTC()
	if err := s.store.ConfirmMatch(ctx, matchID, now); err != nil {
		return nil, fmt.Errorf("confirm match %d: %w", matchID, err)
	}

	s.dropConfirmation(matchID)
	res.PixPayload = payload

	metrics.MatchesConfirmed.Inc()
	metrics.ActiveMatches.Dec()
	metrics.PixPayloadsBuilt.Inc()
	s.audit(ctx, m.GuildID, userID, "match_confirmed", m.RoomCode, "")
	m.Status = model.StatusConfirmed
	s.broadcast("match_confirmed", m, len(participants))

	slog.Info("match confirmed",
		"id", m.ID,
		"room", m.RoomCode,
		"participants", len(participants),
		"stake", m.Stake.String(),
	)
	return res, nil
}

// --- Settlement ---

// RecordResult settles a confirmed match: winners gain a win and the
// stake amount, losers gain a loss. The completion transition and all
// ledger updates persist in one transaction; a duplicate call fails
// with ErrAlreadySettled and never double-credits.
func (s *Service) RecordResult(ctx context.Context, matchID int64, winnerTeam string) error {
	if winnerTeam != model.Team1 && winnerTeam != model.Team2 {
		return fmt.Errorf("%w: %q", ErrInvalidWinner, winnerTeam)
	}

	l := s.lockFor(matchID)
	l.Lock()
	defer l.Unlock()

	m, err := s.GetByID(ctx, matchID)
	if err != nil {
		return err
	}
	if m.Status == model.StatusCompleted {
		return ErrAlreadySettled
	}
	if m.Status != model.StatusConfirmed {
		return fmt.Errorf("%w: settlement requires confirmed, match is %s", ErrWrongState, m.Status)
	}

	participants, err := s.store.ListParticipants(ctx, matchID)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}

	entries := make([]store.SettlementEntry, 0, len(participants))
	for _, p := range participants {
		entries = append(entries, store.SettlementEntry{
			UserID: p.UserID,
			Won:    p.Team == winnerTeam,
			Payout: m.Stake,
		})
	}

	// Status transition and every ledger entry commit atomically; on
	// failure the match stays confirmed and the call can be retried
	// without double-crediting anyone.
	now := time.Now().UTC()
	if err := s.store.SettleMatch(ctx, matchID, m.GuildID, winnerTeam, now, entries); err != nil {
		return fmt.Errorf("settle match %d: %w", matchID, err)
	}

	metrics.MatchesSettled.Inc()
	s.audit(ctx, m.GuildID, "", "match_result_registered", m.RoomCode, "winner "+winnerTeam)
	m.Status = model.StatusCompleted
	m.WinnerTeam = winnerTeam
	s.broadcast("match_completed", m, len(participants))

	slog.Info("match settled",
		"id", m.ID,
		"room", m.RoomCode,
		"winner", winnerTeam,
		"stake", m.Stake.String(),
	)
	return nil
}

// BuildPaymentCode builds the Pix payload for a match's stake without
// touching its state. Useful when the payment request must be re-rendered.
func (s *Service) BuildPaymentCode(ctx context.Context, matchID int64) (string, error) {
	m, err := s.GetByID(ctx, matchID)
	if err != nil {
		return "", err
	}
	payload, err := s.pix.BuildPayload(m.Stake, "Aposta "+m.RoomCode)
	if err != nil {
		return "", err
	}
	metrics.PixPayloadsBuilt.Inc()
	return payload, nil
}

func (s *Service) broadcast(eventType string, m *model.Match, participants int) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(Event{
		Type:         eventType,
		MatchID:      m.ID,
		GuildID:      m.GuildID,
		RoomCode:     m.RoomCode,
		Mode:         m.Mode,
		Stake:        m.Stake.String(),
		Status:       m.Status,
		WinnerTeam:   m.WinnerTeam,
		Participants: participants,
	})
}
