package match

import (
	"context"
	"errors"
	"fmt"

	"github.com/esquilo/wager-engine/internal/model"
	"github.com/esquilo/wager-engine/internal/store"
)

// Profile returns a user's per-guild account, creating an empty one on
// first sight the way the original panels did.
func (s *Service) Profile(ctx context.Context, guildID, userID, username string) (*model.Account, error) {
	a, err := s.store.GetAccount(ctx, guildID, userID)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	a = &model.Account{
		UserID:   userID,
		GuildID:  guildID,
		Username: username,
	}
	if err := s.store.UpsertAccount(ctx, a); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return s.store.GetAccount(ctx, guildID, userID)
}

// SetMediator toggles a user's mediator flag.
func (s *Service) SetMediator(ctx context.Context, guildID, userID, username string, enrol bool) error {
	a, err := s.Profile(ctx, guildID, userID, username)
	if err != nil {
		return err
	}

	a.IsMediator = enrol
	if username != "" {
		a.Username = username
	}
	if err := s.store.UpsertAccount(ctx, a); err != nil {
		return fmt.Errorf("set mediator flag: %w", err)
	}

	action := "mediator_login"
	if !enrol {
		action = "mediator_logout"
	}
	s.audit(ctx, guildID, userID, action, "", "")
	return nil
}

// SetPixIdentity records a user's payment-recipient details, used when
// they act as mediator and collect the stakes.
func (s *Service) SetPixIdentity(ctx context.Context, guildID, userID, bank, holder, key string) error {
	a, err := s.Profile(ctx, guildID, userID, "")
	if err != nil {
		return err
	}

	a.PixBank = bank
	a.PixHolder = holder
	a.PixKey = key
	if err := s.store.UpsertAccount(ctx, a); err != nil {
		return fmt.Errorf("set pix identity: %w", err)
	}

	s.audit(ctx, guildID, userID, "pix_configured", "", "")
	return nil
}

// AuditLog returns a guild's most recent audit events.
func (s *Service) AuditLog(ctx context.Context, guildID string, limit int) ([]model.AuditEvent, error) {
	return s.store.ListAuditEvents(ctx, guildID, limit)
}
