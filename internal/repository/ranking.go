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

type rankingRow struct {
	MemberID  int64  `db:"telegram_id"`
	Username  string `db:"username"`
	FirstName string `db:"first_name"`
	Count     int    `db:"count"`
}

type memberRankRow struct {
	MemberID int64 `db:"member_id"`
	Count    int   `db:"count"`
	Rank     int   `db:"rank"`
	Total    int   `db:"total"`
}

func rankingCountExpr(view model.RankingView) (string, error) {
	switch view {
	case model.ViewTotalInvited:
		return "COALESCE(SUM(i.total_invited), 0)", nil
	case model.ViewTotalLeft:
		return "COALESCE(SUM(i.total_left), 0)", nil
	case model.ViewNetActive:
		// never persisted, always derived
		return "COALESCE(SUM(i.total_invited - i.total_left), 0)", nil
	}
	return "", fmt.Errorf("unknown ranking view: %s", view)
}

// Ties break on the earlier invitation creation time, then member id, so
// identical ledger state always yields the same order.
func rankingOrder(countExpr string) []string {
	return []string{
		countExpr + " DESC",
		"MIN(i.created_at) ASC NULLS LAST",
		"m.telegram_id ASC",
	}
}

func (r *Repository) GetRankingPage(ctx context.Context, view model.RankingView, offset, limit int) ([]*model.RankingEntry, error) {
	countExpr, err := rankingCountExpr(view)
	if err != nil {
		return nil, err
	}

	query, args, err := squirrel.
		Select(
			"m.telegram_id",
			"m.username",
			"m.first_name",
			countExpr+" AS count",
		).
		From("members m").
		LeftJoin("invitations i ON i.member_id = m.telegram_id").
		GroupBy("m.telegram_id", "m.username", "m.first_name").
		OrderBy(rankingOrder(countExpr)...).
		Offset(uint64(offset)).
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []rankingRow
	err = r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get ranking page: %w", err)
	}

	entries := make([]*model.RankingEntry, len(rows))
	for i, row := range rows {
		name := row.Username
		if name == "" {
			name = row.FirstName
		}
		if name == "" {
			name = fmt.Sprintf("User %d", row.MemberID)
		}
		entries[i] = &model.RankingEntry{
			Rank:     offset + i + 1,
			MemberID: row.MemberID,
			Name:     name,
			Count:    row.Count,
		}
	}

	return entries, nil
}

// GetRecentRankingPage ranks members by attributed joins within the
// window starting at since. Counts come from attribution rows, not the
// cumulative counters, so the window sees individual joins.
func (r *Repository) GetRecentRankingPage(ctx context.Context, since time.Time, offset, limit int) ([]*model.RankingEntry, error) {
	query, args, err := squirrel.
		Select(
			"m.telegram_id",
			"m.username",
			"m.first_name",
			"COUNT(a.member_id) AS count",
		).
		From("members m").
		LeftJoin("invitations i ON i.member_id = m.telegram_id").
		LeftJoin("attributions a ON a.code = i.code AND a.joined_at >= ?", since).
		GroupBy("m.telegram_id", "m.username", "m.first_name").
		OrderBy(
			"COUNT(a.member_id) DESC",
			"MIN(a.joined_at) ASC NULLS LAST",
			"m.telegram_id ASC",
		).
		Offset(uint64(offset)).
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []rankingRow
	err = r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent ranking page: %w", err)
	}

	entries := make([]*model.RankingEntry, len(rows))
	for i, row := range rows {
		name := row.Username
		if name == "" {
			name = row.FirstName
		}
		if name == "" {
			name = fmt.Sprintf("User %d", row.MemberID)
		}
		entries[i] = &model.RankingEntry{
			Rank:     offset + i + 1,
			MemberID: row.MemberID,
			Name:     name,
			Count:    row.Count,
		}
	}

	return entries, nil
}

// GetMemberRank returns a member's own position in a view regardless of
// which page they fall on.
func (r *Repository) GetMemberRank(ctx context.Context, view model.RankingView, memberID int64) (*model.MemberRank, error) {
	countExpr, err := rankingCountExpr(view)
	if err != nil {
		return nil, err
	}

	orderClause := countExpr + " DESC, MIN(i.created_at) ASC NULLS LAST, m.telegram_id ASC"
	inner := squirrel.
		Select(
			"m.telegram_id AS member_id",
			countExpr+" AS count",
			fmt.Sprintf("ROW_NUMBER() OVER (ORDER BY %s) AS rank", orderClause),
			"COUNT(*) OVER () AS total",
		).
		From("members m").
		LeftJoin("invitations i ON i.member_id = m.telegram_id").
		GroupBy("m.telegram_id")

	query, args, err := squirrel.
		Select("member_id", "count", "rank", "total").
		FromSelect(inner, "ranked").
		Where(squirrel.Eq{"member_id": memberID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var row memberRankRow
	err = r.db.GetContext(ctx, &row, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get member rank: %w", err)
	}

	return &model.MemberRank{
		Rank:  row.Rank,
		Count: row.Count,
		Total: row.Total,
	}, nil
}

func (r *Repository) CountRankedMembers(ctx context.Context) (int, error) {
	query, args, err := squirrel.
		Select("COUNT(*)").
		From("members").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, err
	}

	var total int
	err = r.db.GetContext(ctx, &total, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}

	return total, nil
}
