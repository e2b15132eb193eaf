package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/esquilo/wager-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu           sync.RWMutex
	nextID       int64
	matches      map[int64]*model.Match
	participants map[int64][]model.Participant
	accounts     map[string]*model.Account // key: guildID|userID
	audit        []model.AuditEvent
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		matches:      make(map[int64]*model.Match),
		participants: make(map[int64][]model.Participant),
		accounts:     make(map[string]*model.Account),
	}
}

func accountKey(guildID, userID string) string {
	return guildID + "|" + userID
}

func (s *MemoryStore) CreateMatch(_ context.Context, m *model.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.matches {
		if existing.RoomCode == m.RoomCode {
			return ErrDuplicate
		}
	}

	s.nextID++
	m.ID = s.nextID

	// Store a copy to avoid external mutation.
	copy := *m
	s.matches[m.ID] = &copy
	return nil
}

func (s *MemoryStore) GetMatch(_ context.Context, id int64) (*model.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *m
	return &copy, nil
}

func (s *MemoryStore) GetMatchByRoomCode(_ context.Context, code string) (*model.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.matches {
		if m.RoomCode == code {
			copy := *m
			return &copy, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListMatchesByStatus(_ context.Context, guildID, status string) ([]model.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []model.Match
	for _, m := range s.matches {
		if m.GuildID != guildID {
			continue
		}
		if status != "" && m.Status != status {
			continue
		}
		matches = append(matches, *m)
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})
	return matches, nil
}

func (s *MemoryStore) UpdateMatchStatus(_ context.Context, id int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[id]
	if !ok {
		return ErrNotFound
	}
	m.Status = status
	return nil
}

func (s *MemoryStore) SetMatchMediator(_ context.Context, id int64, mediatorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[id]
	if !ok {
		return ErrNotFound
	}
	m.MediatorID = mediatorID
	return nil
}

func (s *MemoryStore) ConfirmMatch(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[id]
	if !ok {
		return ErrNotFound
	}
	m.Status = model.StatusConfirmed
	t := at
	m.ConfirmedAt = &t
	return nil
}

// SettleMatch applies the completion transition and every ledger entry
// under one mutex hold, so readers never observe a completed match with
// a half-applied ledger.
func (s *MemoryStore) SettleMatch(_ context.Context, id int64, guildID, winnerTeam string, at time.Time, entries []SettlementEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[id]
	if !ok {
		return ErrNotFound
	}
	m.Status = model.StatusCompleted
	m.WinnerTeam = winnerTeam
	t := at
	m.CompletedAt = &t

	now := time.Now().UTC()
	for _, e := range entries {
		key := accountKey(guildID, e.UserID)
		a, ok := s.accounts[key]
		if !ok {
			a = &model.Account{
				UserID:    e.UserID,
				GuildID:   guildID,
				Balance:   decimal.Zero,
				CreatedAt: now,
			}
			s.accounts[key] = a
		}
		if e.Won {
			a.Wins++
			a.Balance = a.Balance.Add(e.Payout)
		} else {
			a.Losses++
		}
		a.UpdatedAt = now
	}
	return nil
}

func (s *MemoryStore) AddParticipant(_ context.Context, p *model.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.participants[p.MatchID] {
		if existing.UserID == p.UserID {
			return ErrDuplicate
		}
	}
	s.participants[p.MatchID] = append(s.participants[p.MatchID], *p)
	return nil
}

func (s *MemoryStore) RemoveParticipant(_ context.Context, matchID int64, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.participants[matchID]
	for i, p := range list {
		if p.UserID == userID {
			s.participants[matchID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) ListParticipants(_ context.Context, matchID int64) ([]model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.participants[matchID]
	out := make([]model.Participant, len(list))
	copy(out, list)
	return out, nil
}

func (s *MemoryStore) GetAccount(_ context.Context, guildID, userID string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[accountKey(guildID, userID)]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *a
	return &copy, nil
}

func (s *MemoryStore) UpsertAccount(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := accountKey(a.GuildID, a.UserID)
	now := time.Now().UTC()

	existing, ok := s.accounts[key]
	if !ok {
		copy := *a
		copy.CreatedAt = now
		copy.UpdatedAt = now
		s.accounts[key] = &copy
		return nil
	}

	// Identity fields only; counters and balance stay as settled.
	existing.Username = a.Username
	existing.IsMediator = a.IsMediator
	existing.PixBank = a.PixBank
	existing.PixHolder = a.PixHolder
	existing.PixKey = a.PixKey
	existing.UpdatedAt = now
	return nil
}

func (s *MemoryStore) InsertAuditEvent(_ context.Context, e *model.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audit = append(s.audit, *e)
	return nil
}

func (s *MemoryStore) ListAuditEvents(_ context.Context, guildID string, limit int) ([]model.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.AuditEvent
	for i := len(s.audit) - 1; i >= 0; i-- {
		if s.audit[i].GuildID != guildID {
			continue
		}
		result = append(result, s.audit[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}
