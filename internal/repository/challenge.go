package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"TG_group_guardian/internal/model"

	"github.com/Masterminds/squirrel"
)

type challenge struct {
	ID           int64      `db:"id"`
	MemberID     int64      `db:"member_id"`
	Question     string     `db:"question"`
	Answer       string     `db:"answer"`
	MemberAnswer *string    `db:"member_answer"`
	JoinCode     *string    `db:"join_code"`
	Solved       bool       `db:"solved"`
	Attempts     int        `db:"attempts"`
	CreatedAt    time.Time  `db:"created_at"`
	ResolvedAt   *time.Time `db:"resolved_at"`
	ExpiresAt    time.Time  `db:"expires_at"`
}

func (c *challenge) toModel() *model.Challenge {
	return &model.Challenge{
		ID:           c.ID,
		MemberID:     c.MemberID,
		Question:     c.Question,
		Answer:       c.Answer,
		MemberAnswer: c.MemberAnswer,
		JoinCode:     c.JoinCode,
		Solved:       c.Solved,
		Attempts:     c.Attempts,
		CreatedAt:    c.CreatedAt,
		ResolvedAt:   c.ResolvedAt,
		ExpiresAt:    c.ExpiresAt,
	}
}

// CreateChallenge opens a member's pending challenge. The conflict target
// is the partial unique index on challenges(member_id) WHERE resolved_at
// IS NULL, so two racing join events insert exactly one row; the loser
// gets ErrChallengePending.
func (r *Repository) CreateChallenge(ctx context.Context, c *model.Challenge) (int64, error) {
	query, args, err := squirrel.
		Insert("challenges").
		SetMap(map[string]interface{}{
			"member_id":  c.MemberID,
			"question":   c.Question,
			"answer":     c.Answer,
			"join_code":  c.JoinCode,
			"solved":     false,
			"attempts":   0,
			"created_at": c.CreatedAt,
			"expires_at": c.ExpiresAt,
		}).
		Suffix("ON CONFLICT (member_id) WHERE resolved_at IS NULL DO NOTHING RETURNING id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build challenge insert query: %w", err)
	}

	var id int64
	err = r.db.GetContext(ctx, &id, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrChallengePending
		}
		return 0, fmt.Errorf("failed to insert challenge: %w", err)
	}

	return id, nil
}

// GetActiveChallenge returns the member's unresolved challenge, ErrNotFound
// if none exists.
func (r *Repository) GetActiveChallenge(ctx context.Context, memberID int64) (*model.Challenge, error) {
	var c challenge
	query, args, err := squirrel.
		Select("*").
		From("challenges").
		Where(squirrel.Eq{"member_id": memberID}).
		Where("resolved_at IS NULL").
		OrderBy("created_at DESC").
		Limit(1).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	err = r.db.GetContext(ctx, &c, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return c.toModel(), nil
}

// RegisterAttempt bumps the attempt counter and stores the submitted answer,
// returning the new counter value. ErrChallengeResolved means the challenge
// was resolved between the caller's read and this write.
func (r *Repository) RegisterAttempt(ctx context.Context, challengeID int64, answer string) (int, error) {
	query, args, err := squirrel.
		Update("challenges").
		Set("attempts", squirrel.Expr("attempts + 1")).
		Set("member_answer", answer).
		Where(squirrel.Eq{"id": challengeID}).
		Where("resolved_at IS NULL").
		Suffix("RETURNING attempts").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, err
	}

	var attempts int
	err = r.db.GetContext(ctx, &attempts, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrChallengeResolved
		}
		return 0, fmt.Errorf("failed to register attempt: %w", err)
	}

	return attempts, nil
}

// SetChallengeJoinCode attaches a joining invite code to a pending
// challenge that was created without one. Telegram delivers a join as two
// events and only one carries the invite link, so the second event may
// arrive with the code after the first already opened the challenge.
func (r *Repository) SetChallengeJoinCode(ctx context.Context, challengeID int64, code string) error {
	query, args, err := squirrel.
		Update("challenges").
		Set("join_code", code).
		Where(squirrel.Eq{"id": challengeID}).
		Where("resolved_at IS NULL").
		Where("join_code IS NULL").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to set challenge join code: %w", err)
	}

	return nil
}

// ResolveChallenge is the linearization point for the answer-vs-sweep race.
// The guarded update succeeds for exactly one caller; everyone else gets
// won=false and must perform no side effect.
func (r *Repository) ResolveChallenge(ctx context.Context, challengeID int64, solved bool, now time.Time) (bool, error) {
	query, args, err := squirrel.
		Update("challenges").
		Set("solved", solved).
		Set("resolved_at", now).
		Where(squirrel.Eq{"id": challengeID}).
		Where("resolved_at IS NULL").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return false, err
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to resolve challenge: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (r *Repository) ListOverdueChallenges(ctx context.Context, now time.Time) ([]*model.Challenge, error) {
	query, args, err := squirrel.
		Select("*").
		From("challenges").
		Where("resolved_at IS NULL").
		Where(squirrel.LtOrEq{"expires_at": now}).
		OrderBy("expires_at ASC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []challenge
	err = r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue challenges: %w", err)
	}

	out := make([]*model.Challenge, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}

	return out, nil
}
