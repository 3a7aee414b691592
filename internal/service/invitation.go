package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"TG_group_guardian/internal/model"
	"TG_group_guardian/internal/repository"
	"TG_group_guardian/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const inviteCodeLength = 12

// InvitationService is the attribution ledger: it owns invite codes and
// every counter mutation that records a join or leave against one.
type InvitationService struct {
	invites  InvitationRepository
	members  MemberRepository
	links    InviteLinkCreator
	pageSize int
}

func NewInvitationService(invites InvitationRepository, members MemberRepository, links InviteLinkCreator, pageSize int) *InvitationService {
	return &InvitationService{
		invites:  invites,
		members:  members,
		links:    links,
		pageSize: pageSize,
	}
}

// generateInviteCode derives a 12-char upper-hex code from the member id,
// the current time and a uuid fragment.
func generateInviteCode(memberID int64) string {
	raw := fmt.Sprintf("%d_%d_%s", memberID, time.Now().UTC().Unix(), uuid.NewString()[:8])
	sum := md5.Sum([]byte(raw))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:inviteCodeLength])
}

// ParseInviteCode recognizes a deep-link start parameter as an invite
// code. Anything that is not 12 upper-case alphanumerics is rejected.
func ParseInviteCode(param string) (string, bool) {
	if len(param) != inviteCodeLength {
		return "", false
	}
	for _, r := range param {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'A' && r <= 'Z':
		default:
			return "", false
		}
	}
	return param, true
}

// GetOrCreateInviteLink is idempotent: repeated requests return the same
// invitation while it remains active.
func (s *InvitationService) GetOrCreateInviteLink(ctx context.Context, memberID int64) (*model.Invitation, error) {
	existing, err := s.invites.GetActiveInvitationByMember(ctx, memberID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	m, err := s.members.GetMemberByTelegramID(ctx, memberID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}

	code := generateInviteCode(memberID)
	link, err := s.links.CreateInviteLink(ctx, m, code)
	if err != nil {
		return nil, fmt.Errorf("failed to create invite link: %w", err)
	}

	inv := &model.Invitation{
		Code:      code,
		MemberID:  memberID,
		Link:      link,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.invites.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}

	logger.Logger().Info("invite link created",
		zap.Int64("member_id", memberID),
		zap.String("code", code))

	return inv, nil
}

func (s *InvitationService) RecordJoin(ctx context.Context, invitedID int64, code string) error {
	err := s.invites.RecordJoin(ctx, code, invitedID, time.Now().UTC())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrInvalidOrInactiveCode):
		return ErrInvalidOrInactiveCode
	case errors.Is(err, repository.ErrAlreadyAttributed):
		return ErrAlreadyAttributed
	default:
		return err
	}
}

// RecordLeave is idempotent: unattributed members and duplicate leave
// events are silent no-ops.
func (s *InvitationService) RecordLeave(ctx context.Context, memberID int64) error {
	err := s.invites.RecordLeave(ctx, memberID, time.Now().UTC())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		logger.Logger().Debug("leave event for unattributed member",
			zap.Int64("member_id", memberID))
		return nil
	case errors.Is(err, repository.ErrAlreadyLeft):
		logger.Logger().Debug("duplicate leave event ignored",
			zap.Int64("member_id", memberID))
		return nil
	default:
		return err
	}
}

// ResolveLinkCode maps a Telegram invite link from a join event back to
// the owning invite code. An untracked link resolves to the empty code.
func (s *InvitationService) ResolveLinkCode(ctx context.Context, link string) (string, error) {
	if link == "" {
		return "", nil
	}
	inv, err := s.invites.GetInvitationByLink(ctx, link)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return inv.Code, nil
}

func (s *InvitationService) MemberStats(ctx context.Context, memberID int64) (*model.InvitationStats, error) {
	inv, err := s.invites.GetActiveInvitationByMember(ctx, memberID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &model.InvitationStats{}, nil
		}
		return nil, err
	}

	// active members is derived, never stored
	return &model.InvitationStats{
		Code:          inv.Code,
		Link:          inv.Link,
		TotalInvited:  inv.TotalInvited,
		TotalLeft:     inv.TotalLeft,
		ActiveMembers: inv.TotalInvited - inv.TotalLeft,
	}, nil
}

// InvitedMembersPage returns one page of the member's invitees plus the
// total page count. Pages are 1-based and clamped to the valid range.
func (s *InvitationService) InvitedMembersPage(ctx context.Context, memberID int64, page int) ([]*model.InvitedMember, int, error) {
	inv, err := s.invites.GetActiveInvitationByMember(ctx, memberID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, 1, nil
		}
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}

	members, total, err := s.invites.ListInvitedMembers(ctx, inv.Code, (page-1)*s.pageSize, s.pageSize)
	if err != nil {
		return nil, 0, err
	}

	totalPages := (total + s.pageSize - 1) / s.pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	return members, totalPages, nil
}

func (s *InvitationService) Deactivate(ctx context.Context, memberID int64) (int, error) {
	n, err := s.invites.DeactivateInvitations(ctx, memberID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Logger().Info("invitations deactivated",
			zap.Int64("member_id", memberID),
			zap.Int("count", n))
	}
	return n, nil
}

func (s *InvitationService) Recount(ctx context.Context, code string) error {
	err := s.invites.RecountInvitation(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidOrInactiveCode
	}
	return err
}
