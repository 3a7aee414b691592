package mocks

import (
	"context"
	"time"

	"TG_group_guardian/internal/locale"
	"TG_group_guardian/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockMemberRepository struct {
	mock.Mock
}

func (m *MockMemberRepository) UpsertMember(ctx context.Context, member *model.Member) error {
	args := m.Called(ctx, member)
	return args.Error(0)
}

func (m *MockMemberRepository) GetMemberByTelegramID(ctx context.Context, telegramID int64) (*model.Member, error) {
	args := m.Called(ctx, telegramID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Member), args.Error(1)
}

func (m *MockMemberRepository) UpdateMemberStatus(ctx context.Context, telegramID int64, status model.MemberStatus) error {
	args := m.Called(ctx, telegramID, status)
	return args.Error(0)
}

func (m *MockMemberRepository) UpdateMemberLanguage(ctx context.Context, telegramID int64, languageCode string) error {
	args := m.Called(ctx, telegramID, languageCode)
	return args.Error(0)
}

type MockChallengeRepository struct {
	mock.Mock
}

func (m *MockChallengeRepository) CreateChallenge(ctx context.Context, c *model.Challenge) (int64, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockChallengeRepository) GetActiveChallenge(ctx context.Context, memberID int64) (*model.Challenge, error) {
	args := m.Called(ctx, memberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Challenge), args.Error(1)
}

func (m *MockChallengeRepository) RegisterAttempt(ctx context.Context, challengeID int64, answer string) (int, error) {
	args := m.Called(ctx, challengeID, answer)
	return args.Int(0), args.Error(1)
}

func (m *MockChallengeRepository) SetChallengeJoinCode(ctx context.Context, challengeID int64, code string) error {
	args := m.Called(ctx, challengeID, code)
	return args.Error(0)
}

func (m *MockChallengeRepository) ResolveChallenge(ctx context.Context, challengeID int64, solved bool, now time.Time) (bool, error) {
	args := m.Called(ctx, challengeID, solved, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockChallengeRepository) ListOverdueChallenges(ctx context.Context, now time.Time) ([]*model.Challenge, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Challenge), args.Error(1)
}

type MockInvitationRepository struct {
	mock.Mock
}

func (m *MockInvitationRepository) GetActiveInvitationByMember(ctx context.Context, memberID int64) (*model.Invitation, error) {
	args := m.Called(ctx, memberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Invitation), args.Error(1)
}

func (m *MockInvitationRepository) GetInvitationByCode(ctx context.Context, code string) (*model.Invitation, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Invitation), args.Error(1)
}

func (m *MockInvitationRepository) GetInvitationByLink(ctx context.Context, link string) (*model.Invitation, error) {
	args := m.Called(ctx, link)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Invitation), args.Error(1)
}

func (m *MockInvitationRepository) CreateInvitation(ctx context.Context, inv *model.Invitation) error {
	args := m.Called(ctx, inv)
	return args.Error(0)
}

func (m *MockInvitationRepository) RecordJoin(ctx context.Context, code string, invitedID int64, now time.Time) error {
	args := m.Called(ctx, code, invitedID, now)
	return args.Error(0)
}

func (m *MockInvitationRepository) RecordLeave(ctx context.Context, memberID int64, now time.Time) error {
	args := m.Called(ctx, memberID, now)
	return args.Error(0)
}

func (m *MockInvitationRepository) ListInvitedMembers(ctx context.Context, code string, offset, limit int) ([]*model.InvitedMember, int, error) {
	args := m.Called(ctx, code, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*model.InvitedMember), args.Int(1), args.Error(2)
}

func (m *MockInvitationRepository) DeactivateInvitations(ctx context.Context, memberID int64) (int, error) {
	args := m.Called(ctx, memberID)
	return args.Int(0), args.Error(1)
}

func (m *MockInvitationRepository) RecountInvitation(ctx context.Context, code string) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

type MockRankingRepository struct {
	mock.Mock
}

func (m *MockRankingRepository) GetRankingPage(ctx context.Context, view model.RankingView, offset, limit int) ([]*model.RankingEntry, error) {
	args := m.Called(ctx, view, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.RankingEntry), args.Error(1)
}

func (m *MockRankingRepository) GetRecentRankingPage(ctx context.Context, since time.Time, offset, limit int) ([]*model.RankingEntry, error) {
	args := m.Called(ctx, since, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.RankingEntry), args.Error(1)
}

func (m *MockRankingRepository) GetMemberRank(ctx context.Context, view model.RankingView, memberID int64) (*model.MemberRank, error) {
	args := m.Called(ctx, view, memberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MemberRank), args.Error(1)
}

func (m *MockRankingRepository) CountRankedMembers(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) SendTemplate(ctx context.Context, memberID int64, key locale.Key, params map[string]string) error {
	args := m.Called(ctx, memberID, key, params)
	return args.Error(0)
}

func (m *MockTransport) RemoveMember(ctx context.Context, memberID int64) error {
	args := m.Called(ctx, memberID)
	return args.Error(0)
}

type MockInviteLinkCreator struct {
	mock.Mock
}

func (m *MockInviteLinkCreator) CreateInviteLink(ctx context.Context, inviter *model.Member, code string) (string, error) {
	args := m.Called(ctx, inviter, code)
	return args.String(0), args.Error(1)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) GetOrCreateInviteLink(ctx context.Context, memberID int64) (*model.Invitation, error) {
	args := m.Called(ctx, memberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Invitation), args.Error(1)
}

func (m *MockLedger) RecordJoin(ctx context.Context, invitedID int64, code string) error {
	args := m.Called(ctx, invitedID, code)
	return args.Error(0)
}

func (m *MockLedger) RecordLeave(ctx context.Context, memberID int64) error {
	args := m.Called(ctx, memberID)
	return args.Error(0)
}

func (m *MockLedger) ResolveLinkCode(ctx context.Context, link string) (string, error) {
	args := m.Called(ctx, link)
	return args.String(0), args.Error(1)
}

func (m *MockLedger) MemberStats(ctx context.Context, memberID int64) (*model.InvitationStats, error) {
	args := m.Called(ctx, memberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.InvitationStats), args.Error(1)
}

func (m *MockLedger) InvitedMembersPage(ctx context.Context, memberID int64, page int) ([]*model.InvitedMember, int, error) {
	args := m.Called(ctx, memberID, page)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*model.InvitedMember), args.Int(1), args.Error(2)
}

func (m *MockLedger) Deactivate(ctx context.Context, memberID int64) (int, error) {
	args := m.Called(ctx, memberID)
	return args.Int(0), args.Error(1)
}

func (m *MockLedger) Recount(ctx context.Context, code string) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

type MockVerification struct {
	mock.Mock
}

func (m *MockVerification) OnJoin(ctx context.Context, member *model.Member, inviteCode string) error {
	args := m.Called(ctx, member, inviteCode)
	return args.Error(0)
}

func (m *MockVerification) OnAnswer(ctx context.Context, memberID int64, text string) error {
	args := m.Called(ctx, memberID, text)
	return args.Error(0)
}

func (m *MockVerification) SweepExpired(ctx context.Context, now time.Time) error {
	args := m.Called(ctx, now)
	return args.Error(0)
}
