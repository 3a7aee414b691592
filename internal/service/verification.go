package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"TG_group_guardian/internal/locale"
	"TG_group_guardian/internal/model"
	"TG_group_guardian/internal/repository"
	"TG_group_guardian/pkg/logger"

	"go.uber.org/zap"
)

type VerificationConfig struct {
	ChallengeTimeout time.Duration
	MaxAttempts      int
}

// VerificationService owns the pending → verified/failed/expired lifecycle
// of joining members. The repository's compare-and-set on challenge
// resolution guarantees that an answer and a sweep racing on the same
// challenge produce exactly one terminal outcome.
type VerificationService struct {
	members    MemberRepository
	challenges ChallengeRepository
	ledger     InvitationServiceI
	transport  Transport
	captcha    *Captcha
	cfg        VerificationConfig
}

func NewVerificationService(
	members MemberRepository,
	challenges ChallengeRepository,
	ledger InvitationServiceI,
	transport Transport,
	captcha *Captcha,
	cfg VerificationConfig,
) *VerificationService {
	return &VerificationService{
		members:    members,
		challenges: challenges,
		ledger:     ledger,
		transport:  transport,
		captcha:    captcha,
		cfg:        cfg,
	}
}

// OnJoin handles a join event. New members get a pending record and a
// challenge; members with a challenge already pending are ignored without
// resetting the timer; already-verified members skip re-verification and
// go straight to attribution.
func (s *VerificationService) OnJoin(ctx context.Context, m *model.Member, inviteCode string) error {
	log := logger.Logger()

	existing, err := s.members.GetMemberByTelegramID(ctx, m.TelegramID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	if existing != nil && existing.Status == model.StatusVerified {
		log.Info("verified member rejoined, skipping challenge",
			zap.Int64("member_id", m.TelegramID))
		s.attribute(ctx, m.TelegramID, inviteCode)
		s.sendTemplate(ctx, m.TelegramID, locale.Welcome, map[string]string{"name": m.DisplayName()})
		return nil
	}

	if existing != nil {
		ch, err := s.challenges.GetActiveChallenge(ctx, m.TelegramID)
		if err == nil {
			// Duplicate join event while a challenge is pending: the timer
			// is not reset, but a join code the first event lacked is kept.
			if inviteCode != "" && ch.JoinCode == nil {
				if err := s.challenges.SetChallengeJoinCode(ctx, ch.ID, inviteCode); err != nil {
					return err
				}
			}
			log.Debug("join ignored, challenge already pending",
				zap.Int64("member_id", m.TelegramID))
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
	}

	now := time.Now().UTC()
	m.Status = model.StatusPending
	m.CreatedAt = now
	m.UpdatedAt = now
	if err := s.members.UpsertMember(ctx, m); err != nil {
		return err
	}

	question, answer := s.captcha.Generate()
	ch := &model.Challenge{
		MemberID:  m.TelegramID,
		Question:  question,
		Answer:    answer,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.ChallengeTimeout),
	}
	if inviteCode != "" {
		ch.JoinCode = &inviteCode
	}

	if _, err := s.challenges.CreateChallenge(ctx, ch); err != nil {
		if errors.Is(err, repository.ErrChallengePending) {
			// the twin delivery of this join event won the insert; the
			// member is prompted once, but keep a join code the winner
			// may have lacked
			log.Debug("join ignored, challenge already pending",
				zap.Int64("member_id", m.TelegramID))
			if inviteCode != "" {
				if active, err := s.challenges.GetActiveChallenge(ctx, m.TelegramID); err == nil && active.JoinCode == nil {
					return s.challenges.SetChallengeJoinCode(ctx, active.ID, inviteCode)
				}
			}
			return nil
		}
		return err
	}

	log.Info("challenge created",
		zap.Int64("member_id", m.TelegramID),
		zap.String("question", question),
		zap.Time("expires_at", ch.ExpiresAt))

	s.sendTemplate(ctx, m.TelegramID, locale.VerificationNeeded, map[string]string{
		"name":     m.DisplayName(),
		"question": question,
		"minutes":  strconv.Itoa(int(s.cfg.ChallengeTimeout.Minutes())),
		"attempts": strconv.Itoa(s.cfg.MaxAttempts),
	})

	return nil
}

// OnAnswer validates a submitted answer against the member's pending
// challenge. A losing race against the sweeper is not an error: the
// challenge is already terminal and no side effect is emitted.
func (s *VerificationService) OnAnswer(ctx context.Context, memberID int64, text string) error {
	log := logger.Logger()

	ch, err := s.challenges.GetActiveChallenge(ctx, memberID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNoActiveChallenge
		}
		return err
	}

	attempts, err := s.challenges.RegisterAttempt(ctx, ch.ID, text)
	if err != nil {
		if errors.Is(err, repository.ErrChallengeResolved) {
			log.Debug("answer ignored, challenge already resolved",
				zap.Int64("member_id", memberID))
			return nil
		}
		return err
	}

	now := time.Now().UTC()
	correct := strings.EqualFold(strings.TrimSpace(text), strings.TrimSpace(ch.Answer))

	if correct {
		won, err := s.challenges.ResolveChallenge(ctx, ch.ID, true, now)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}

		if err := s.members.UpdateMemberStatus(ctx, memberID, model.StatusVerified); err != nil {
			return err
		}

		log.Info("member verified",
			zap.Int64("member_id", memberID),
			zap.Int("attempts", attempts))

		if ch.JoinCode != nil {
			s.attribute(ctx, memberID, *ch.JoinCode)
		}

		name := s.displayName(ctx, memberID)
		s.sendTemplate(ctx, memberID, locale.CorrectAnswer, map[string]string{"name": name})
		return nil
	}

	if attempts >= s.cfg.MaxAttempts {
		won, err := s.challenges.ResolveChallenge(ctx, ch.ID, false, now)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}

		if err := s.members.UpdateMemberStatus(ctx, memberID, model.StatusFailed); err != nil {
			return err
		}

		log.Info("member failed verification",
			zap.Int64("member_id", memberID),
			zap.Int("attempts", attempts))

		s.sendTemplate(ctx, memberID, locale.VerificationFailed, nil)
		s.removeMember(ctx, memberID)
		return nil
	}

	s.sendTemplate(ctx, memberID, locale.WrongAnswer, map[string]string{
		"remaining": strconv.Itoa(s.cfg.MaxAttempts - attempts),
	})

	return nil
}

// SweepExpired drives every overdue pending challenge to expired. Each
// challenge is handled independently so one slow removal cannot block the
// rest, and the CAS makes repeat invocations for the same challenge no-ops.
func (s *VerificationService) SweepExpired(ctx context.Context, now time.Time) error {
	log := logger.Logger()

	overdue, err := s.challenges.ListOverdueChallenges(ctx, now)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, ch := range overdue {
		ch := ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.expireOne(ctx, ch, now); err != nil {
				log.Error("failed to expire challenge",
					zap.Int64("challenge_id", ch.ID),
					zap.Int64("member_id", ch.MemberID),
					zap.Error(err))
			}
		}()
	}
	wg.Wait()

	return nil
}

func (s *VerificationService) expireOne(ctx context.Context, ch *model.Challenge, now time.Time) error {
	won, err := s.challenges.ResolveChallenge(ctx, ch.ID, false, now)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	if err := s.members.UpdateMemberStatus(ctx, ch.MemberID, model.StatusExpired); err != nil {
		return err
	}

	logger.Logger().Info("challenge expired",
		zap.Int64("challenge_id", ch.ID),
		zap.Int64("member_id", ch.MemberID))

	s.sendTemplate(ctx, ch.MemberID, locale.VerificationTimeout, nil)
	s.removeMember(ctx, ch.MemberID)
	return nil
}

func (s *VerificationService) attribute(ctx context.Context, memberID int64, code string) {
	if code == "" {
		return
	}
	err := s.ledger.RecordJoin(ctx, memberID, code)
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidOrInactiveCode):
		// join still stands, it just is not attributed to anyone
		logger.Logger().Warn("join via stale invite code, not attributed",
			zap.Int64("member_id", memberID),
			zap.String("code", code))
	case errors.Is(err, ErrAlreadyAttributed):
		logger.Logger().Warn("duplicate attribution attempt ignored",
			zap.Int64("member_id", memberID),
			zap.String("code", code))
	default:
		logger.Logger().Error("failed to record attributed join",
			zap.Int64("member_id", memberID),
			zap.String("code", code),
			zap.Error(err))
	}
}

// Transport failures are logged, never propagated: the state machine's
// state does not roll back because a message or removal failed.
func (s *VerificationService) sendTemplate(ctx context.Context, memberID int64, key locale.Key, params map[string]string) {
	if err := s.transport.SendTemplate(ctx, memberID, key, params); err != nil {
		logger.Logger().Error("failed to send message",
			zap.Int64("member_id", memberID),
			zap.String("template", string(key)),
			zap.Error(err))
	}
}

func (s *VerificationService) removeMember(ctx context.Context, memberID int64) {
	if err := s.transport.RemoveMember(ctx, memberID); err != nil {
		logger.Logger().Error("failed to remove member",
			zap.Int64("member_id", memberID),
			zap.Error(err))
	}
}

func (s *VerificationService) displayName(ctx context.Context, memberID int64) string {
	m, err := s.members.GetMemberByTelegramID(ctx, memberID)
	if err != nil {
		return "there"
	}
	return m.DisplayName()
}
