package service

import (
	"context"
	"errors"
	"fmt"

	"TG_group_guardian/internal/model"
	"TG_group_guardian/internal/repository"
)

type MemberService struct {
	repo MemberRepository
}

func NewMemberService(repo MemberRepository) *MemberService {
	return &MemberService{repo: repo}
}

func (s *MemberService) GetMember(ctx context.Context, telegramID int64) (*model.Member, error) {
	m, err := s.repo.GetMemberByTelegramID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

func (s *MemberService) SetLanguage(ctx context.Context, telegramID int64, languageCode string) error {
	err := s.repo.UpdateMemberLanguage(ctx, telegramID, languageCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMemberNotFound
		}
		return fmt.Errorf("failed to set member language: %w", err)
	}
	return nil
}
