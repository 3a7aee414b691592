package bot

import (
	"context"

	"TG_group_guardian/internal/locale"
	"TG_group_guardian/internal/service"
	"TG_group_guardian/pkg/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type Config struct {
	GroupChatID int64
	AdminIDs    []int64
}

// Bot runs the long-poll loop and routes platform events into the core
// services. Every update is handled on its own goroutine so one member's
// event never blocks another's.
type Bot struct {
	api          *tgbotapi.BotAPI
	verification service.VerificationServiceI
	invitations  service.InvitationServiceI
	rankings     service.RankingServiceI
	members      service.MemberServiceI
	catalog      *locale.Catalog
	groupChatID  int64
	admins       map[int64]struct{}
}

func New(
	api *tgbotapi.BotAPI,
	verification service.VerificationServiceI,
	invitations service.InvitationServiceI,
	rankings service.RankingServiceI,
	members service.MemberServiceI,
	catalog *locale.Catalog,
	cfg Config,
) *Bot {
	admins := make(map[int64]struct{}, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		admins[id] = struct{}{}
	}

	return &Bot{
		api:          api,
		verification: verification,
		invitations:  invitations,
		rankings:     rankings,
		members:      members,
		catalog:      catalog,
		groupChatID:  cfg.GroupChatID,
		admins:       admins,
	}
}

func (b *Bot) Run(ctx context.Context) {
	log := logger.Logger()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message", "callback_query", "chat_member"}

	updates := b.api.GetUpdatesChan(u)
	log.Info("bot polling started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			log.Info("bot polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				log.Info("updates channel closed")
				return
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			logger.Logger().Error("panic while handling update", zap.Any("panic", r))
		}
	}()

	switch {
	case update.ChatMember != nil:
		b.handleChatMemberUpdate(ctx, update.ChatMember)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) isAdmin(memberID int64) bool {
	_, ok := b.admins[memberID]
	return ok
}
