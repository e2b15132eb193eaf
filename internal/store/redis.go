package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/esquilo/wager-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot lookups: match by ID, match by room code, and accounts.
// Writes go to the primary store and invalidate the cache; reads check
// Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateMatch(ctx context.Context, m *model.Match) error {
	if err := s.primary.CreateMatch(ctx, m); err != nil {
		return err
	}
	s.cacheMatch(ctx, m)
	return nil
}

func (s *CachedStore) UpdateMatchStatus(ctx context.Context, id int64, status string) error {
	if err := s.primary.UpdateMatchStatus(ctx, id, status); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, matchKey(id))
	return nil
}

func (s *CachedStore) SetMatchMediator(ctx context.Context, id int64, mediatorID string) error {
	if err := s.primary.SetMatchMediator(ctx, id, mediatorID); err != nil {
		return err
	}
	s.rdb.Del(ctx, matchKey(id))
	return nil
}

func (s *CachedStore) ConfirmMatch(ctx context.Context, id int64, at time.Time) error {
	if err := s.primary.ConfirmMatch(ctx, id, at); err != nil {
		return err
	}
	s.rdb.Del(ctx, matchKey(id))
	return nil
}

func (s *CachedStore) SettleMatch(ctx context.Context, id int64, guildID, winnerTeam string, at time.Time, entries []SettlementEntry) error {
	if err := s.primary.SettleMatch(ctx, id, guildID, winnerTeam, at, entries); err != nil {
		return err
	}
	s.rdb.Del(ctx, matchKey(id))
	for _, e := range entries {
		s.rdb.Del(ctx, accountCacheKey(guildID, e.UserID))
	}
	return nil
}

func (s *CachedStore) UpsertAccount(ctx context.Context, a *model.Account) error {
	if err := s.primary.UpsertAccount(ctx, a); err != nil {
		return err
	}
	s.rdb.Del(ctx, accountCacheKey(a.GuildID, a.UserID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMatch(ctx context.Context, id int64) (*model.Match, error) {
	data, err := s.rdb.Get(ctx, matchKey(id)).Bytes()
	if err == nil {
		var m model.Match
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	m, err := s.primary.GetMatch(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheMatch(ctx, m)
	return m, nil
}

func (s *CachedStore) GetMatchByRoomCode(ctx context.Context, code string) (*model.Match, error) {
	// Try cache via roomCode→matchID mapping.
	idStr, err := s.rdb.Get(ctx, roomCodeKey(code)).Result()
	if err == nil {
		var id int64
		if _, scanErr := fmt.Sscan(idStr, &id); scanErr == nil {
			return s.GetMatch(ctx, id)
		}
	}

	m, err := s.primary.GetMatchByRoomCode(ctx, code)
	if err != nil {
		return nil, err
	}

	// Cache both the match and the roomCode→ID mapping.
	s.cacheMatch(ctx, m)
	return m, nil
}

func (s *CachedStore) GetAccount(ctx context.Context, guildID, userID string) (*model.Account, error) {
	data, err := s.rdb.Get(ctx, accountCacheKey(guildID, userID)).Bytes()
	if err == nil {
		var a model.Account
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.GetAccount(ctx, guildID, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, accountCacheKey(guildID, userID), data, s.ttl)
	}
	return a, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListMatchesByStatus(ctx context.Context, guildID, status string) ([]model.Match, error) {
	return s.primary.ListMatchesByStatus(ctx, guildID, status)
}

func (s *CachedStore) AddParticipant(ctx context.Context, p *model.Participant) error {
	return s.primary.AddParticipant(ctx, p)
}

func (s *CachedStore) RemoveParticipant(ctx context.Context, matchID int64, userID string) error {
	return s.primary.RemoveParticipant(ctx, matchID, userID)
}

func (s *CachedStore) ListParticipants(ctx context.Context, matchID int64) ([]model.Participant, error) {
	return s.primary.ListParticipants(ctx, matchID)
}

func (s *CachedStore) InsertAuditEvent(ctx context.Context, e *model.AuditEvent) error {
	return s.primary.InsertAuditEvent(ctx, e)
}

func (s *CachedStore) ListAuditEvents(ctx context.Context, guildID string, limit int) ([]model.AuditEvent, error) {
	return s.primary.ListAuditEvents(ctx, guildID, limit)
}

// --- Cache helpers ---

func (s *CachedStore) cacheMatch(ctx context.Context, m *model.Match) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, matchKey(m.ID), data, s.ttl)
		s.rdb.Set(ctx, roomCodeKey(m.RoomCode), fmt.Sprint(m.ID), s.ttl)
	}
}

func matchKey(id int64) string                     { return fmt.Sprintf("match:%d", id) }
func roomCodeKey(code string) string               { return fmt.Sprintf("room:%s", code) }
func accountCacheKey(guildID, userID string) string { return fmt.Sprintf("account:%s:%s", guildID, userID) }
