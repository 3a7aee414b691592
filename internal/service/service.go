package service

import (
	"context"
	"errors"
	"time"

	"TG_group_guardian/internal/locale"
	"TG_group_guardian/internal/model"
)

var (
	ErrNoActiveChallenge     = errors.New("no active challenge for member")
	ErrInvalidOrInactiveCode = errors.New("invalid or inactive invite code")
	ErrAlreadyAttributed     = errors.New("member already attributed")
	ErrMemberNotFound        = errors.New("member not found")
	ErrUnknownRankingView    = errors.New("unknown ranking view")
)

// Transport is the messaging-platform surface the core drives. The bot
// package implements it; failures there never roll back core state.
type Transport interface {
	SendTemplate(ctx context.Context, memberID int64, key locale.Key, params map[string]string) error
	RemoveMember(ctx context.Context, memberID int64) error
}

// InviteLinkCreator creates a shareable join link for a freshly issued
// code. Implemented by the bot over CreateChatInviteLink.
type InviteLinkCreator interface {
	CreateInviteLink(ctx context.Context, inviter *model.Member, code string) (string, error)
}

type VerificationServiceI interface {
	OnJoin(ctx context.Context, m *model.Member, inviteCode string) error
	OnAnswer(ctx context.Context, memberID int64, text string) error
	SweepExpired(ctx context.Context, now time.Time) error
}

type InvitationServiceI interface {
	GetOrCreateInviteLink(ctx context.Context, memberID int64) (*model.Invitation, error)
	RecordJoin(ctx context.Context, invitedID int64, code string) error
	RecordLeave(ctx context.Context, memberID int64) error
	ResolveLinkCode(ctx context.Context, link string) (string, error)
	MemberStats(ctx context.Context, memberID int64) (*model.InvitationStats, error)
	InvitedMembersPage(ctx context.Context, memberID int64, page int) ([]*model.InvitedMember, int, error)
	Deactivate(ctx context.Context, memberID int64) (int, error)
	Recount(ctx context.Context, code string) error
}

type RankingServiceI interface {
	Leaderboard(ctx context.Context, view model.RankingView, page int) (*model.RankingPage, error)
	RecentLeaderboard(ctx context.Context, days, page int) (*model.RankingPage, error)
	MemberRank(ctx context.Context, view model.RankingView, memberID int64) (*model.MemberRank, error)
}

type MemberServiceI interface {
	GetMember(ctx context.Context, telegramID int64) (*model.Member, error)
	SetLanguage(ctx context.Context, telegramID int64, languageCode string) error
}

type MemberRepository interface {
	UpsertMember(ctx context.Context, m *model.Member) error
	GetMemberByTelegramID(ctx context.Context, telegramID int64) (*model.Member, error)
	UpdateMemberStatus(ctx context.Context, telegramID int64, status model.MemberStatus) error
	UpdateMemberLanguage(ctx context.Context, telegramID int64, languageCode string) error
}

type ChallengeRepository interface {
	CreateChallenge(ctx context.Context, c *model.Challenge) (int64, error)
	GetActiveChallenge(ctx context.Context, memberID int64) (*model.Challenge, error)
	RegisterAttempt(ctx context.Context, challengeID int64, answer string) (int, error)
	SetChallengeJoinCode(ctx context.Context, challengeID int64, code string) error
	ResolveChallenge(ctx context.Context, challengeID int64, solved bool, now time.Time) (bool, error)
	ListOverdueChallenges(ctx context.Context, now time.Time) ([]*model.Challenge, error)
}

type InvitationRepository interface {
	GetActiveInvitationByMember(ctx context.Context, memberID int64) (*model.Invitation, error)
	GetInvitationByCode(ctx context.Context, code string) (*model.Invitation, error)
	GetInvitationByLink(ctx context.Context, link string) (*model.Invitation, error)
	CreateInvitation(ctx context.Context, inv *model.Invitation) error
	RecordJoin(ctx context.Context, code string, invitedID int64, now time.Time) error
	RecordLeave(ctx context.Context, memberID int64, now time.Time) error
	ListInvitedMembers(ctx context.Context, code string, offset, limit int) ([]*model.InvitedMember, int, error)
	DeactivateInvitations(ctx context.Context, memberID int64) (int, error)
	RecountInvitation(ctx context.Context, code string) error
}

type RankingRepository interface {
	GetRankingPage(ctx context.Context, view model.RankingView, offset, limit int) ([]*model.RankingEntry, error)
	GetRecentRankingPage(ctx context.Context, since time.Time, offset, limit int) ([]*model.RankingEntry, error)
	GetMemberRank(ctx context.Context, view model.RankingView, memberID int64) (*model.MemberRank, error)
	CountRankedMembers(ctx context.Context) (int, error)
}
