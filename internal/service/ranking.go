package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TG_group_guardian/internal/model"
	"TG_group_guardian/internal/repository"
)

const (
	defaultRecentDays = 7
	maxRecentDays     = 365
)

// RankingService is the read side of the ledger: paginated leaderboards
// plus the requester's own rank. It never mutates anything and reads a
// consistent snapshot per query.
type RankingService struct {
	repo     RankingRepository
	pageSize int
}

func NewRankingService(repo RankingRepository, pageSize int) *RankingService {
	return &RankingService{
		repo:     repo,
		pageSize: pageSize,
	}
}

func (s *RankingService) Leaderboard(ctx context.Context, view model.RankingView, page int) (*model.RankingPage, error) {
	if _, ok := model.ParseRankingView(string(view)); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRankingView, view)
	}

	total, err := s.repo.CountRankedMembers(ctx)
	if err != nil {
		return nil, err
	}

	totalPages := (total + s.pageSize - 1) / s.pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	entries, err := s.repo.GetRankingPage(ctx, view, (page-1)*s.pageSize, s.pageSize)
	if err != nil {
		return nil, err
	}

	return &model.RankingPage{
		View:       view,
		Entries:    entries,
		Page:       page,
		TotalPages: totalPages,
		Total:      total,
	}, nil
}

// RecentLeaderboard ranks members by joins attributed to them in the last
// days days. Out-of-range windows are clamped rather than rejected.
func (s *RankingService) RecentLeaderboard(ctx context.Context, days, page int) (*model.RankingPage, error) {
	if days < 1 {
		days = defaultRecentDays
	}
	if days > maxRecentDays {
		days = maxRecentDays
	}

	total, err := s.repo.CountRankedMembers(ctx)
	if err != nil {
		return nil, err
	}

	totalPages := (total + s.pageSize - 1) / s.pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	entries, err := s.repo.GetRecentRankingPage(ctx, since, (page-1)*s.pageSize, s.pageSize)
	if err != nil {
		return nil, err
	}

	return &model.RankingPage{
		View:       model.ViewTotalInvited,
		Entries:    entries,
		Page:       page,
		TotalPages: totalPages,
		Total:      total,
	}, nil
}

func (s *RankingService) MemberRank(ctx context.Context, view model.RankingView, memberID int64) (*model.MemberRank, error) {
	if _, ok := model.ParseRankingView(string(view)); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRankingView, view)
	}

	rank, err := s.repo.GetMemberRank(ctx, view, memberID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}

	return rank, nil
}
