package service

import (
	"context"
	"testing"

	"TG_group_guardian/internal/model"
	"TG_group_guardian/internal/repository"
	"TG_group_guardian/internal/service/mocks"

	"github.com/stretchr/testify/assert"
)

func TestGetMember(t *testing.T) {
	repo := new(mocks.MockMemberRepository)
	svc := NewMemberService(repo)
	ctx := context.Background()

	repo.On("GetMemberByTelegramID", ctx, int64(42)).Return(&model.Member{TelegramID: 42, FirstName: "Ada"}, nil)
	repo.On("GetMemberByTelegramID", ctx, int64(43)).Return(nil, repository.ErrNotFound)

	m, err := svc.GetMember(ctx, 42)
	assert.NoError(t, err)
	assert.Equal(t, "Ada", m.FirstName)

	_, err = svc.GetMember(ctx, 43)
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestSetLanguage(t *testing.T) {
	repo := new(mocks.MockMemberRepository)
	svc := NewMemberService(repo)
	ctx := context.Background()

	repo.On("UpdateMemberLanguage", ctx, int64(42), "es").Return(nil)
	repo.On("UpdateMemberLanguage", ctx, int64(43), "es").Return(repository.ErrNotFound)

	assert.NoError(t, svc.SetLanguage(ctx, 42, "es"))
	assert.ErrorIs(t, svc.SetLanguage(ctx, 43, "es"), ErrMemberNotFound)
}
