package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"TG_group_guardian/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

type member struct {
	TelegramID   int64     `db:"telegram_id"`
	Username     string    `db:"username"`
	FirstName    string    `db:"first_name"`
	LanguageCode string    `db:"language_code"`
	Status       string    `db:"status"`
	InvitedBy    *int64    `db:"invited_by"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (m *member) toModel() *model.Member {
	return &model.Member{
		TelegramID:   m.TelegramID,
		Username:     m.Username,
		FirstName:    m.FirstName,
		LanguageCode: m.LanguageCode,
		Status:       model.MemberStatus(m.Status),
		InvitedBy:    m.InvitedBy,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// UpsertMember inserts the member or refreshes username, first_name and
// status on a repeat join; a failed or expired member joining again goes
// back to pending here. invited_by and language_code are left untouched
// for existing rows.
func (r *Repository) UpsertMember(ctx context.Context, m *model.Member) error {
	query, args, err := squirrel.
		Insert("members").
		SetMap(map[string]interface{}{
			"telegram_id":   m.TelegramID,
			"username":      m.Username,
			"first_name":    m.FirstName,
			"language_code": m.LanguageCode,
			"status":        string(m.Status),
			"invited_by":    m.InvitedBy,
			"created_at":    m.CreatedAt,
			"updated_at":    m.UpdatedAt,
		}).
		Suffix(`ON CONFLICT (telegram_id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build member upsert query: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to upsert member: %w", err)
	}

	return nil
}

func (r *Repository) GetMemberByTelegramID(ctx context.Context, telegramID int64) (*model.Member, error) {
	var m member
	query, args, err := squirrel.
		Select("*").
		From("members").
		Where(squirrel.Eq{"telegram_id": telegramID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	err = r.db.GetContext(ctx, &m, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return m.toModel(), nil
}

func (r *Repository) UpdateMemberStatus(ctx context.Context, telegramID int64, status model.MemberStatus) error {
	query, args, err := squirrel.
		Update("members").
		Set("status", string(status)).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"telegram_id": telegramID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update member status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *Repository) UpdateMemberLanguage(ctx context.Context, telegramID int64, languageCode string) error {
	query, args, err := squirrel.
		Update("members").
		Set("language_code", languageCode).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"telegram_id": telegramID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update member language: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *Repository) setMemberInviterWithTx(ctx context.Context, tx *sqlx.Tx, telegramID, inviterID int64) error {
	// invited_by is write-once; a second inviter never overwrites the first.
	query, args, err := squirrel.
		Update("members").
		Set("invited_by", inviterID).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"telegram_id": telegramID}).
		Where("invited_by IS NULL").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to set member inviter: %w", err)
	}

	return nil
}
