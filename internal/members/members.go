// Package members manages household member accounts.
package members

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/family-bank/internal/clock"
	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/dvloznov/family-bank/internal/logger"
	"github.com/dvloznov/family-bank/internal/store"
	"github.com/google/uuid"
)

const maxNameLength = 40

// Profile is the editable part of a member.
type Profile struct {
	Name   string
	Avatar string
	PIN    string
}

// Service creates, edits and deletes members.
type Service struct {
	members store.MemberRepository
	txs     store.TransactionRepository
	clock   clock.Clock
}

// NewService creates a member service.
func NewService(members store.MemberRepository, txs store.TransactionRepository, clk clock.Clock) *Service {
	return &Service{members: members, txs: txs, clock: clk}
}

func (p *Profile) normalize() error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return domain.NewValidationError("name", "is required")
	}
	if len([]rune(p.Name)) > maxNameLength {
		return domain.NewValidationError("name", "must be at most %d characters", maxNameLength)
	}
	if p.Avatar == "" {
		p.Avatar = domain.Avatars[0]
	}
	if !domain.ValidAvatar(p.Avatar) {
		return domain.NewValidationError("avatar", "unknown avatar %q", p.Avatar)
	}
	return domain.ValidatePIN(p.PIN)
}

// Create adds a member. Both createdAt and the settlement watermark start
// at the current time, so interest accrues from creation.
func (s *Service) Create(ctx context.Context, householdID string, p Profile) (*domain.Member, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}

	now := clock.NowMillis(s.clock)
	m := &domain.Member{
		ID:               uuid.NewString(),
		Name:             p.Name,
		Avatar:           p.Avatar,
		PIN:              p.PIN,
		CreatedAt:        now,
		LastInterestDate: now,
	}
	if err := s.members.InsertMember(ctx, householdID, m); err != nil {
		return nil, &domain.WriteFailure{Op: "create member", Err: err}
	}

	log := logger.ForMember(logger.FromContext(ctx), householdID, m.ID)
	log.Info().Str("name", m.Name).Msg("Member created")
	return m, nil
}

// UpdateProfile changes name, avatar and PIN. The watermark is never
// touched here.
func (s *Service) UpdateProfile(ctx context.Context, householdID, memberID string, p Profile) (*domain.Member, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}

	m, err := s.members.GetMember(ctx, householdID, memberID)
	if err != nil {
		return nil, fmt.Errorf("UpdateProfile: %w", err)
	}
	m.Name = p.Name
	m.Avatar = p.Avatar
	m.PIN = p.PIN

	if err := s.members.UpdateMemberProfile(ctx, householdID, m); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, &domain.WriteFailure{Op: "update member", Err: err}
	}
	return m, nil
}

// Delete removes a member and then every transaction that belonged to it.
func (s *Service) Delete(ctx context.Context, householdID, memberID string) error {
	if err := s.members.DeleteMember(ctx, householdID, memberID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return &domain.WriteFailure{Op: "delete member", Err: err}
	}

	n, err := s.txs.DeleteMemberTransactions(ctx, householdID, memberID)
	if err != nil {
		return &domain.WriteFailure{Op: "delete member transactions", Err: err}
	}

	log := logger.ForMember(logger.FromContext(ctx), householdID, memberID)
	log.Info().Int("transactions_deleted", n).Msg("Member deleted")
	return nil
}

// Get returns one member.
func (s *Service) Get(ctx context.Context, householdID, memberID string) (*domain.Member, error) {
	m, err := s.members.GetMember(ctx, householdID, memberID)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return m, nil
}

// List returns every member of the household, oldest first.
func (s *Service) List(ctx context.Context, householdID string) ([]*domain.Member, error) {
	ms, err := s.members.ListMembers(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return ms, nil
}

// CheckPIN reports whether pin unlocks the member.
func (s *Service) CheckPIN(ctx context.Context, householdID, memberID, pin string) (bool, error) {
	m, err := s.Get(ctx, householdID, memberID)
	if err != nil {
		return false, err
	}
	return m.PIN == pin, nil
}
