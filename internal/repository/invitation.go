package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"TG_group_guardian/internal/model"
	"TG_group_guardian/pkg/logger"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type invitation struct {
	Code         string     `db:"code"`
	MemberID     int64      `db:"member_id"`
	Link         string     `db:"link"`
	TotalInvited int        `db:"total_invited"`
	TotalLeft    int        `db:"total_left"`
	Active       bool       `db:"active"`
	CreatedAt    time.Time  `db:"created_at"`
	ExpiresAt    *time.Time `db:"expires_at"`
}

func (i *invitation) toModel() *model.Invitation {
	return &model.Invitation{
		Code:         i.Code,
		MemberID:     i.MemberID,
		Link:         i.Link,
		TotalInvited: i.TotalInvited,
		TotalLeft:    i.TotalLeft,
		Active:       i.Active,
		CreatedAt:    i.CreatedAt,
		ExpiresAt:    i.ExpiresAt,
	}
}

type attribution struct {
	ID       int64      `db:"id"`
	Code     string     `db:"code"`
	MemberID int64      `db:"member_id"`
	HasLeft  bool       `db:"has_left"`
	JoinedAt time.Time  `db:"joined_at"`
	LeftAt   *time.Time `db:"left_at"`
}

type invitedMember struct {
	MemberID  int64      `db:"telegram_id"`
	Username  string     `db:"username"`
	FirstName string     `db:"first_name"`
	HasLeft   bool       `db:"has_left"`
	JoinedAt  time.Time  `db:"joined_at"`
	LeftAt    *time.Time `db:"left_at"`
}

func (r *Repository) cachedInvitation(memberID int64) *model.Invitation {
	r.Lock()
	defer r.Unlock()
	return r.inviteCache[memberID]
}

func (r *Repository) invitationGen(memberID int64) uint64 {
	r.Lock()
	defer r.Unlock()
	return r.inviteGen[memberID]
}

// cacheInvitation stores inv only if no eviction happened since the caller
// read gen, so a row loaded before a counter mutation cannot be cached
// over the eviction that mutation issued.
func (r *Repository) cacheInvitation(inv *model.Invitation, gen uint64) {
	r.Lock()
	defer r.Unlock()
	if r.inviteGen[inv.MemberID] != gen {
		return
	}
	r.inviteCache[inv.MemberID] = inv
}

func (r *Repository) evictInvitation(memberID int64) {
	r.Lock()
	defer r.Unlock()
	delete(r.inviteCache, memberID)
	r.inviteGen[memberID]++
}

// GetActiveInvitationByMember serves from the cache when possible. Cached
// entries are evicted whenever their counters change, so a hit is current.
func (r *Repository) GetActiveInvitationByMember(ctx context.Context, memberID int64) (*model.Invitation, error) {
	if inv := r.cachedInvitation(memberID); inv != nil {
		return inv, nil
	}
	gen := r.invitationGen(memberID)

	var row invitation
	query, args, err := squirrel.
		Select("*").
		From("invitations").
		Where(squirrel.Eq{"member_id": memberID, "active": true}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	err = r.db.GetContext(ctx, &row, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	inv := row.toModel()
	r.cacheInvitation(inv, gen)
	return inv, nil
}

func (r *Repository) GetInvitationByCode(ctx context.Context, code string) (*model.Invitation, error) {
	var row invitation
	query, args, err := squirrel.
		Select("*").
		From("invitations").
		Where(squirrel.Eq{"code": code}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	err = r.db.GetContext(ctx, &row, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return row.toModel(), nil
}

// GetInvitationByLink maps a Telegram chat invite link back to its code.
func (r *Repository) GetInvitationByLink(ctx context.Context, link string) (*model.Invitation, error) {
	var row invitation
	query, args, err := squirrel.
		Select("*").
		From("invitations").
		Where(squirrel.Eq{"link": link, "active": true}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	err = r.db.GetContext(ctx, &row, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return row.toModel(), nil
}

func (r *Repository) CreateInvitation(ctx context.Context, inv *model.Invitation) error {
	gen := r.invitationGen(inv.MemberID)
	query, args, err := squirrel.
		Insert("invitations").
		SetMap(map[string]interface{}{
			"code":          inv.Code,
			"member_id":     inv.MemberID,
			"link":          inv.Link,
			"total_invited": 0,
			"total_left":    0,
			"active":        inv.Active,
			"created_at":    inv.CreatedAt,
			"expires_at":    inv.ExpiresAt,
		}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build invitation insert query: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to insert invitation: %w", err)
	}

	r.cacheInvitation(inv, gen)
	return nil
}

func (r *Repository) lockInvitation(ctx context.Context, tx *sqlx.Tx, code string) (*invitation, error) {
	// Row lock serializes all counter mutation for one code.
	query, args, err := squirrel.
		Select("*").
		From("invitations").
		Where(squirrel.Eq{"code": code}).
		Suffix("FOR UPDATE").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var row invitation
	err = tx.GetContext(ctx, &row, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &row, nil
}

// RecordJoin attributes a verified join to an invite code: one attribution
// row per invited member, total_invited bumped on the owning invitation,
// the member's inviter set if not already set.
func (r *Repository) RecordJoin(ctx context.Context, code string, invitedID int64, now time.Time) error {
	var inviterID int64
	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		inv, err := r.lockInvitation(ctx, tx, code)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrInvalidOrInactiveCode
			}
			return err
		}
		inviterID = inv.MemberID
		if !inv.Active {
			return ErrInvalidOrInactiveCode
		}
		if inv.ExpiresAt != nil && !inv.ExpiresAt.After(now) {
			return ErrInvalidOrInactiveCode
		}

		existsQuery, existsArgs, err := squirrel.
			Select("1").
			From("attributions").
			Where(squirrel.Eq{"member_id": invitedID}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		var one int
		err = tx.GetContext(ctx, &one, existsQuery, existsArgs...)
		if err == nil {
			return ErrAlreadyAttributed
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		insertQuery, insertArgs, err := squirrel.
			Insert("attributions").
			SetMap(map[string]interface{}{
				"code":      code,
				"member_id": invitedID,
				"has_left":  false,
				"joined_at": now,
			}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, insertQuery, insertArgs...)
		if err != nil {
			return fmt.Errorf("failed to insert attribution: %w", err)
		}

		updateQuery, updateArgs, err := squirrel.
			Update("invitations").
			Set("total_invited", squirrel.Expr("total_invited + 1")).
			Where(squirrel.Eq{"code": code}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, updateQuery, updateArgs...)
		if err != nil {
			return fmt.Errorf("failed to update invitation counters: %w", err)
		}

		return r.setMemberInviterWithTx(ctx, tx, invitedID, inv.MemberID)
	})
	if err != nil {
		return err
	}

	// cached copy carries the old counters
	r.evictInvitation(inviterID)
	return nil
}

// RecordLeave marks a member's attribution as left and bumps total_left.
// ErrNotFound means the member was never attributed; ErrAlreadyLeft means a
// duplicate leave event. Both are for the caller to swallow.
func (r *Repository) RecordLeave(ctx context.Context, memberID int64, now time.Time) error {
	var inviterID int64
	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		query, args, err := squirrel.
			Select("*").
			From("attributions").
			Where(squirrel.Eq{"member_id": memberID}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		var attr attribution
		err = tx.GetContext(ctx, &attr, query, args...)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if attr.HasLeft {
			return ErrAlreadyLeft
		}

		inv, err := r.lockInvitation(ctx, tx, attr.Code)
		if err != nil {
			return err
		}
		inviterID = inv.MemberID

		markQuery, markArgs, err := squirrel.
			Update("attributions").
			Set("has_left", true).
			Set("left_at", now).
			Where(squirrel.Eq{"id": attr.ID}).
			Where(squirrel.Eq{"has_left": false}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, markQuery, markArgs...)
		if err != nil {
			return fmt.Errorf("failed to mark attribution left: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrAlreadyLeft
		}

		updateQuery, updateArgs, err := squirrel.
			Update("invitations").
			Set("total_left", squirrel.Expr("total_left + 1")).
			Where(squirrel.Eq{"code": attr.Code}).
			Where("total_left < total_invited").
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, updateQuery, updateArgs...)
		if err != nil {
			return fmt.Errorf("failed to update invitation counters: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	r.evictInvitation(inviterID)
	return nil
}

func (r *Repository) GetAttributionByMember(ctx context.Context, memberID int64) (*model.Attribution, error) {
	var attr attribution
	query, args, err := squirrel.
		Select("*").
		From("attributions").
		Where(squirrel.Eq{"member_id": memberID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	err = r.db.GetContext(ctx, &attr, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &model.Attribution{
		ID:       attr.ID,
		Code:     attr.Code,
		MemberID: attr.MemberID,
		HasLeft:  attr.HasLeft,
		JoinedAt: attr.JoinedAt,
		LeftAt:   attr.LeftAt,
	}, nil
}

// ListInvitedMembers returns one page of an invitation's invitees, newest
// first, plus the total row count for pagination.
func (r *Repository) ListInvitedMembers(ctx context.Context, code string, offset, limit int) ([]*model.InvitedMember, int, error) {
	query, args, err := squirrel.
		Select("m.telegram_id", "m.username", "m.first_name", "a.has_left", "a.joined_at", "a.left_at").
		From("attributions a").
		Join("members m ON m.telegram_id = a.member_id").
		Where(squirrel.Eq{"a.code": code}).
		OrderBy("a.joined_at DESC").
		Offset(uint64(offset)).
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, 0, err
	}

	var rows []invitedMember
	err = r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list invited members: %w", err)
	}

	countQuery, countArgs, err := squirrel.
		Select("COUNT(*)").
		From("attributions").
		Where(squirrel.Eq{"code": code}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, 0, err
	}

	var total int
	err = r.db.GetContext(ctx, &total, countQuery, countArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count invited members: %w", err)
	}

	out := make([]*model.InvitedMember, len(rows))
	for i, row := range rows {
		name := row.Username
		if name == "" {
			name = row.FirstName
		}
		if name == "" {
			name = fmt.Sprintf("User %d", row.MemberID)
		}
		out[i] = &model.InvitedMember{
			MemberID: row.MemberID,
			Name:     name,
			HasLeft:  row.HasLeft,
			JoinedAt: row.JoinedAt,
			LeftAt:   row.LeftAt,
		}
	}

	return out, total, nil
}

func (r *Repository) DeactivateInvitations(ctx context.Context, memberID int64) (int, error) {
	query, args, err := squirrel.
		Update("invitations").
		Set("active", false).
		Where(squirrel.Eq{"member_id": memberID, "active": true}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, err
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate invitations: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	r.evictInvitation(memberID)
	return int(n), nil
}

// RecountInvitation rebuilds an invitation's counters from its attribution
// rows. Admin repair tool for ledgers damaged outside normal operation.
func (r *Repository) RecountInvitation(ctx context.Context, code string) error {
	var inviterID int64
	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		inv, err := r.lockInvitation(ctx, tx, code)
		if err != nil {
			return err
		}
		inviterID = inv.MemberID

		countQuery, countArgs, err := squirrel.
			Select("COUNT(*) AS total", "COUNT(*) FILTER (WHERE has_left) AS gone").
			From("attributions").
			Where(squirrel.Eq{"code": code}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		var counts struct {
			Total int `db:"total"`
			Gone  int `db:"gone"`
		}
		err = tx.GetContext(ctx, &counts, countQuery, countArgs...)
		if err != nil {
			return err
		}

		if counts.Total == inv.TotalInvited && counts.Gone == inv.TotalLeft {
			return nil
		}

		logger.Logger().Info("recounting invitation counters",
			zap.String("code", code),
			zap.Int("total_invited", counts.Total),
			zap.Int("total_left", counts.Gone))

		updateQuery, updateArgs, err := squirrel.
			Update("invitations").
			Set("total_invited", counts.Total).
			Set("total_left", counts.Gone).
			Where(squirrel.Eq{"code": code}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, updateQuery, updateArgs...)
		return err
	})
	if err != nil {
		return err
	}

	r.evictInvitation(inviterID)
	return nil
}
