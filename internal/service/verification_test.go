package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"TG_group_guardian/internal/locale"
	"TG_group_guardian/internal/model"
	"TG_group_guardian/internal/repository"
	"TG_group_guardian/internal/service/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type verificationFixture struct {
	members    *mocks.MockMemberRepository
	challenges *mocks.MockChallengeRepository
	ledger     *mocks.MockLedger
	transport  *mocks.MockTransport
	svc        *VerificationService
}

func newVerificationFixture() *verificationFixture {
	f := &verificationFixture{
		members:    new(mocks.MockMemberRepository),
		challenges: new(mocks.MockChallengeRepository),
		ledger:     new(mocks.MockLedger),
		transport:  new(mocks.MockTransport),
	}
	f.svc = NewVerificationService(f.members, f.challenges, f.ledger, f.transport, newCaptchaWithSeed(1), VerificationConfig{
		ChallengeTimeout: 5 * time.Minute,
		MaxAttempts:      3,
	})
	return f
}

func TestOnJoin_NewMemberGetsChallenge(t *testing.T) {
	f := newVerificationFixture()
	ctx := context.Background()
	m := &model.Member{TelegramID: 42, FirstName: "Ada"}

	f.members.On("GetMemberByTelegramID", ctx, int64(42)).Return(nil, repository.ErrNotFound)
	f.members.On("UpsertMember", ctx, mock.MatchedBy(func(mm *model.Member) bool {
		return mm.TelegramID == 42 && mm.Status == model.StatusPending
	})).Return(nil)
	f.challenges.On("CreateChallenge", ctx, mock.MatchedBy(func(ch *model.Challenge) bool {
		return ch.MemberID == 42 &&
			ch.Question != "" &&
			ch.Answer != "" &&
			ch.JoinCode != nil && *ch.JoinCode == "AB12CD34EF56" &&
			ch.ExpiresAt.Sub(ch.CreatedAt) == 5*time.Minute
	})).Return(int64(1), nil)
	f.transport.On("SendTemplate", ctx, int64(42), locale.VerificationNeeded, mock.Anything).Return(nil)

	err := f.svc.OnJoin(ctx, m, "AB12CD34EF56")

	assert.NoError(t, err)
	f.members.AssertExpectations(t)
	f.challenges.AssertExpectations(t)
	f.transport.AssertExpectations(t)
}

func TestOnJoin_UnattributedJoinHasNoJoinCode(t *testing.T) {
	f := newVerificationFixture()
	ctx := context.Background()

	f.members.On("GetMemberByTelegramID", ctx, int64(43)).Return(nil, repository.ErrNotFound)
	f.members.On("UpsertMember", ctx, mock.Anything).Return(nil)
	f.challenges.On("CreateChallenge", ctx, mock.MatchedBy(func(ch *model.Challenge) bool {
		return ch.JoinCode == nil
	})).Return(int64(2), nil)
	f.transport.On("SendTemplate", ctx, int64(43), locale.VerificationNeeded, mock.Anything).Return(nil)

	err := f.svc.OnJoin(ctx, &model.Member{TelegramID: 43}, "")

	assert.NoError(t, err)
	f.challenges.AssertExpectations(t)
}

func TestOnJoin_DuplicateWhilePendingKeepsTimer(t *testing.T) {
	f := newVerificationFixture()
	ctx := context.Background()
	pending := &model.Member{TelegramID: 42, Status: model.StatusPending}
	code := "AB12CD34EF56"

	f.members.On("GetMemberByTelegramID", ctx, int64(42)).Return(pending, nil)
	f.challenges.On("GetActiveChallenge", ctx, int64(42)).Return(&model.Challenge{
		ID:       7,
		MemberID: 42,
		JoinCode: &code,
	}, nil)

	err := f.svc.OnJoin(ctx, &model.Member{TelegramID: 42}, code)

	assert.NoError(t, err)
	f.challenges.AssertNotCalled(t, "CreateChallenge", mock.Anything, mock.Anything)
	f.challenges.AssertNotCalled(t, "SetChallengeJoinCode", mock.Anything, mock.Anything, mock.Anything)
	f.transport.AssertNotCalled(t, "SendTemplate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOnJoin_DuplicateEventBackfillsJoinCode(t *testing.T) {
	// Telegram delivers one join as two events and only one of them
	// carries the invite link, so the second event may be the first to
	// know the code.
	f := newVerificationFixture()
	ctx := context.Background()

	f.members.On("GetMemberByTelegramID", ctx, int64(42)).Return(&model.Member{
		TelegramID: 42,
		Status:     model.StatusPending,
	}, nil)
	f.challenges.On("GetActiveChallenge", ctx, int64(42)).Return(&model.Challenge{ID: 7, MemberID: 42}, nil)
	f.challenges.On("SetChallengeJoinCode", ctx, int64(7), "AB12CD34EF56").Return(nil)

	err := f.svc.OnJoin(ctx, &model.Member{TelegramID: 42}, "AB12CD34EF56")

	assert.NoError(t, err)
	f.challenges.AssertExpectations(t)
	f.challenges.AssertNotCalled(t, "CreateChallenge", mock.Anything, mock.Anything)
}

func TestOnJoin_FailedMemberRejoinsAsPending(t *testing.T) {
	f := newVerificationFixture()
	ctx := context.Background()

	f.members.On("GetMemberByTelegramID", ctx, int64(42)).Return(&model.Member{
		TelegramID: 42,
		Status:     model.StatusFailed,
	}, nil)
	f.challenges.On("GetActiveChallenge", ctx, int64(42)).Return(nil, repository.ErrNotFound)
	f.members.On("UpsertMember", ctx, mock.MatchedBy(func(mm *model.Member) bool {
		return mm.TelegramID == 42 && mm.Status == model.StatusPending
	})).Return(nil)
	f.challenges.On("CreateChallenge", ctx, mock.Anything).Return(int64(3), nil)
	f.transport.On("SendTemplate", ctx, int64(42), locale.VerificationNeeded, mock.Anything).Return(nil)

	err := f.svc.OnJoin(ctx, &model.Member{TelegramID: 42}, "")

	assert.NoError(t, err)
	f.members.AssertExpectations(t)
	f.challenges.AssertExpectations(t)
}

func TestOnJoin_ConcurrentDuplicateCreatesOneChallenge(t *testing.T) {
	// Telegram delivers one join as two updates, each handled on its own
	// goroutine. Both may pass the member and active-challenge lookups
	// before either insert lands; the guarded insert admits exactly one.
	f := newVerificationFixture()
	ctx := context.Background()

	f.members.On("GetMemberByTelegramID", ctx, int64(42)).Return(nil, repository.ErrNotFound)
	f.members.On("UpsertMember", ctx, mock.Anything).Return(nil)
	f.challenges.On("CreateChallenge", ctx, mock.Anything).Return(int64(1), nil).Once()
	f.challenges.On("CreateChallenge", ctx, mock.Anything).Return(int64(0), repository.ErrChallengePending).Once()
	f.transport.On("SendTemplate", ctx, int64(42), locale.VerificationNeeded, mock.Anything).Return(nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = f.svc.OnJoin(ctx, &model.Member{TelegramID: 42}, "")
		}()
	}
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	f.challenges.AssertNumberOfCalls(t, "CreateChallenge", 2)
	f.transport.AssertNumberOfCalls(t, "SendTemplate", 1)
}

func TestOnJoin_LostInsertRaceKeepsJoinCode(t *testing.T) {
	// the losing event may be the only one carrying the invite link
	f := newVerificationFixture()
	ctx := context.Background()

	f.members.On("GetMemberByTelegramID", ctx, int64(42)).Return(nil, repository.ErrNotFound)
	f.members.On("UpsertMember", ctx, mock.Anything).Return(nil)
	f.challenges.On("CreateChallenge", ctx, mock.Anything).Return(int64(0), repository.ErrChallengePending)
	f.challenges.On("GetActiveChallenge", ctx, int64(42)).Return(&model.Challenge{ID: 7, MemberID: 42}, nil)
	f.challenges.On("SetChallengeJoinCode", ctx, int64(7), "AB12CD34EF56").Return(nil)

	err := f.svc.OnJoin(ctx, &model.Member{TelegramID: 42}, "AB12CD34EF56")

	assert.NoError(t, err)
	f.challenges.AssertExpectations(t)
	f.transport.AssertNotCalled(t, "SendTemplate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOnJoin_VerifiedRejoinSkipsChallenge(t *testing.T) {
	f := newVerificationFixture()
	ctx := context.Background()

	f.members.On("GetMemberByTelegramID", ctx, int64(42)).Return(&model.Member{
		TelegramID: 42,
		Status:     model.StatusVerified,
		FirstName:  "Ada",
	}, nil)
	f.ledger.On("RecordJoin", ctx, int64(42), "AB12CD34EF56").Return(nil)
	f.transport.On("SendTemplate", ctx, int64(42), locale.Welcome, mock.Anything).Return(nil)

	err := f.svc.OnJoin(ctx, &model.Member{TelegramID: 42, FirstName: "Ada"}, "AB12CD34EF56")

	assert.NoError(t, err)
	f.ledger.AssertExpectations(t)
	f.challenges.AssertNotCalled(t, "CreateChallenge", mock.Anything, mock.Anything)
}

func TestOnAnswer_NoActiveChallenge(t *testing.T) {
	f := newVerificationFixture()
	ctx := context.Background()

	f.challenges.On("GetActiveChallenge", ctx, int64(42)).Return(nil, repository.ErrNotFound)

	err := f.svc.OnAnswer(ctx, 42, "10")

	assert.ErrorIs(t, err, ErrNoActiveChallenge)
}

func TestOnAnswer_WrongThenCorrect(t *testing.T) {
	f := newVerificationFixture()
	ctx := context.Background()
	code := "AB12CD34EF56"
	ch := &model.Challenge{ID: 7, MemberID: 42, Question: "7 + 3 = ?", Answer: "10", JoinCode: &code}

	f.challenges.On("GetActiveChallenge", ctx, int64(42)).Return(ch, nil)
	f.challenges.On("RegisterAttempt", ctx, int64(7), "9").Return(1, nil).Once()
	f.transport.On("SendTemplate", ctx, int64(42), locale.WrongAnswer, map[string]string{"remaining": "2"}).Return(nil).Once()

	assert.NoError(t, f.svc.OnAnswer(ctx, 42, "9"))
	f.challenges.AssertNotCalled(t, "ResolveChallenge", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	f.challenges.On("RegisterAttempt", ctx, int64(7), " 10 ").Return(2, nil).Once()
	f.challenges.On("ResolveChallenge", ctx, int64(7), true, mock.Anything).Return(true, nil).Once()
	f.members.On("UpdateMemberStatus", ctx, int64(42), model.StatusVerified).Return(nil).Once()
	f.ledger.On("RecordJoin", ctx, int64(42), code).Return(nil).Once()
	f.members.On("GetMemberByTelegramID", ctx, int64(42)).Return(&model.Member{TelegramID: 42, FirstName: "Ada"}, nil)
	f.transport.On("SendTemplate", ctx, int64(42), locale.CorrectAnswer, map[string]string{"name": "Ada"}).Return(nil).Once()

	assert.NoError(t, f.svc.OnAnswer(ctx, 42, " 10 "))

	f.challenges.AssertExpectations(t)
	f.members.AssertExpectations(t)
	f.ledger.AssertExpectations(t)
	f.transport.AssertExpectations(t)
	f.transport.AssertNotCalled(t, "RemoveMember", mock.Anything, mock.Anything)
}

func TestOnAnswer_StaleCodeStillVerifies(t *testing.T) {
	f := newVerificationFixture()
	ctx := context.Background()
	code := "DEADBEEF0000"
	ch := &model.Challenge{ID: 7, MemberID: 42, Question: "7 + 3 = ?", Answer: "10", JoinCode: &code}

	f.challenges.On("GetActiveChallenge", ctx, int64(42)).Return(ch, nil)
	f.challenges.On("RegisterAttempt", ctx, int64(7), "10").Return(1, nil)
	f.challenges.On("ResolveChallenge", ctx, int64(7), true, mock.Anything).Return(true, nil)
	f.members.On("UpdateMemberStatus", ctx, int64(42), model.StatusVerified).Return(nil)
	f.ledger.On("RecordJoin", ctx, int64(42), code).Return(ErrInvalidOrInactiveCode)
	f.members.On("GetMemberByTelegramID", ctx, int64(42)).Return(&model.Member{TelegramID: 42}, nil)
	f.transport.On("SendTemplate", ctx, int64(42), locale.CorrectAnswer, mock.Anything).Return(nil)

	// the member is verified even though the attribution was refused
	assert.NoError(t, f.svc.OnAnswer(ctx, 42, "10"))
	f.members.AssertExpectations(t)
}

func TestOnAnswer_AttemptsExhausted(t *testing.T) {
	f := newVerificationFixture()
	ctx := context.Background()
	ch := &model.Challenge{ID: 7, MemberID: 42, Question: "7 + 3 = ?", Answer: "10"}

	f.challenges.On("GetActiveChallenge", ctx, int64(42)).Return(ch, nil)
	f.challenges.On("RegisterAttempt", ctx, int64(7), "11").Return(3, nil)
	f.challenges.On("ResolveChallenge", ctx, int64(7), false, mock.Anything).Return(true, nil)
	f.members.On("UpdateMemberStatus", ctx, int64(42), model.StatusFailed).Return(nil)
	f.transport.On("SendTemplate", ctx, int64(42), locale.VerificationFailed, mock.Anything).Return(nil)
	f.transport.On("RemoveMember", ctx, int64(42)).Return(nil)

	assert.NoError(t, f.svc.OnAnswer(ctx, 42, "11"))

	f.transport.AssertNumberOfCalls(t, "RemoveMember", 1)
	f.members.AssertExpectations(t)
}

func TestOnAnswer_LosesRaceToSweeper(t *testing.T) {
	f := newVerificationFixture()
	ctx := context.Background()
	ch := &model.Challenge{ID: 7, MemberID: 42, Question: "7 + 3 = ?", Answer: "10"}

	f.challenges.On("GetActiveChallenge", ctx, int64(42)).Return(ch, nil)
	f.challenges.On("RegisterAttempt", ctx, int64(7), "10").Return(0, repository.ErrChallengeResolved)

	assert.NoError(t, f.svc.OnAnswer(ctx, 42, "10"))

	f.members.AssertNotCalled(t, "UpdateMemberStatus", mock.Anything, mock.Anything, mock.Anything)
	f.transport.AssertNotCalled(t, "SendTemplate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.transport.AssertNotCalled(t, "RemoveMember", mock.Anything, mock.Anything)
}

func TestOnAnswer_ResolveLostAfterAttempt(t *testing.T) {
	// the attempt registered but the sweeper resolved the challenge in
	// between, only one of them may emit the outcome
	f := newVerificationFixture()
	ctx := context.Background()
	ch := &model.Challenge{ID: 7, MemberID: 42, Question: "7 + 3 = ?", Answer: "10"}

	f.challenges.On("GetActiveChallenge", ctx, int64(42)).Return(ch, nil)
	f.challenges.On("RegisterAttempt", ctx, int64(7), "10").Return(1, nil)
	f.challenges.On("ResolveChallenge", ctx, int64(7), true, mock.Anything).Return(false, nil)

	assert.NoError(t, f.svc.OnAnswer(ctx, 42, "10"))

	f.members.AssertNotCalled(t, "UpdateMemberStatus", mock.Anything, mock.Anything, mock.Anything)
	f.ledger.AssertNotCalled(t, "RecordJoin", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweepExpired_RemovesOverdueMembers(t *testing.T) {
	f := newVerificationFixture()
	ctx := context.Background()
	now := time.Now().UTC()

	f.challenges.On("ListOverdueChallenges", ctx, now).Return([]*model.Challenge{
		{ID: 7, MemberID: 42},
		{ID: 8, MemberID: 43},
	}, nil)
	f.challenges.On("ResolveChallenge", ctx, int64(7), false, now).Return(true, nil)
	// the second challenge was answered correctly just before the sweep
	f.challenges.On("ResolveChallenge", ctx, int64(8), false, now).Return(false, nil)
	f.members.On("UpdateMemberStatus", ctx, int64(42), model.StatusExpired).Return(nil)
	f.transport.On("SendTemplate", ctx, int64(42), locale.VerificationTimeout, mock.Anything).Return(nil)
	f.transport.On("RemoveMember", ctx, int64(42)).Return(nil)

	assert.NoError(t, f.svc.SweepExpired(ctx, now))

	f.transport.AssertNumberOfCalls(t, "RemoveMember", 1)
	f.members.AssertNotCalled(t, "UpdateMemberStatus", ctx, int64(43), mock.Anything)
}

func TestSweepExpired_SecondSweepIsNoOp(t *testing.T) {
	f := newVerificationFixture()
	ctx := context.Background()
	now := time.Now().UTC()

	f.challenges.On("ListOverdueChallenges", ctx, now).Return([]*model.Challenge{{ID: 7, MemberID: 42}}, nil)
	f.challenges.On("ResolveChallenge", ctx, int64(7), false, now).Return(true, nil).Once()
	f.challenges.On("ResolveChallenge", ctx, int64(7), false, now).Return(false, nil).Once()
	f.members.On("UpdateMemberStatus", ctx, int64(42), model.StatusExpired).Return(nil)
	f.transport.On("SendTemplate", ctx, int64(42), locale.VerificationTimeout, mock.Anything).Return(nil)
	f.transport.On("RemoveMember", ctx, int64(42)).Return(nil)

	assert.NoError(t, f.svc.SweepExpired(ctx, now))
	assert.NoError(t, f.svc.SweepExpired(ctx, now))

	f.transport.AssertNumberOfCalls(t, "RemoveMember", 1)
	f.members.AssertNumberOfCalls(t, "UpdateMemberStatus", 1)
}

func TestSweepExpired_TransportFailureDoesNotBlockState(t *testing.T) {
	f := newVerificationFixture()
	ctx := context.Background()
	now := time.Now().UTC()

	f.challenges.On("ListOverdueChallenges", ctx, now).Return([]*model.Challenge{{ID: 7, MemberID: 42}}, nil)
	f.challenges.On("ResolveChallenge", ctx, int64(7), false, now).Return(true, nil)
	f.members.On("UpdateMemberStatus", ctx, int64(42), model.StatusExpired).Return(nil)
	f.transport.On("SendTemplate", ctx, int64(42), locale.VerificationTimeout, mock.Anything).Return(assert.AnError)
	f.transport.On("RemoveMember", ctx, int64(42)).Return(assert.AnError)

	assert.NoError(t, f.svc.SweepExpired(ctx, now))
	f.members.AssertExpectations(t)
}
