package bot

import (
	"context"
	"fmt"

	"TG_group_guardian/internal/locale"
	"TG_group_guardian/internal/model"
	"TG_group_guardian/pkg/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Telegram caps invite link names at 32 characters.
const inviteLinkNameLimit = 32

type MemberLookup interface {
	GetMemberByTelegramID(ctx context.Context, telegramID int64) (*model.Member, error)
}

// Transport is the side of the bot the core services drive: it posts
// localized templates into the group, removes users, and mints chat
// invite links. All calls retry with backoff.
type Transport struct {
	api         *tgbotapi.BotAPI
	members     MemberLookup
	catalog     *locale.Catalog
	groupChatID int64
	groupTitle  string
}

func NewTransport(api *tgbotapi.BotAPI, members MemberLookup, catalog *locale.Catalog, groupChatID int64) *Transport {
	t := &Transport{
		api:         api,
		members:     members,
		catalog:     catalog,
		groupChatID: groupChatID,
	}

	chat, err := api.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: groupChatID},
	})
	if err != nil {
		logger.Logger().Warn("failed to fetch group info", zap.Error(err))
	} else {
		t.groupTitle = chat.Title
	}

	return t
}

func (t *Transport) languageOf(ctx context.Context, memberID int64) string {
	m, err := t.members.GetMemberByTelegramID(ctx, memberID)
	if err != nil || m.LanguageCode == "" {
		return locale.DefaultLanguage
	}
	return m.LanguageCode
}

// SendTemplate posts a localized template into the group, addressed to the
// member via the template's {name} parameter.
func (t *Transport) SendTemplate(ctx context.Context, memberID int64, key locale.Key, params map[string]string) error {
	text := t.catalog.T(t.languageOf(ctx, memberID), key, params)
	msg := tgbotapi.NewMessage(t.groupChatID, text)
	return withRetry(ctx, func() error {
		_, err := t.api.Send(msg)
		return err
	})
}

// RemoveMember kicks the user: ban followed by unban so they may rejoin
// later through a fresh invite.
func (t *Transport) RemoveMember(ctx context.Context, memberID int64) error {
	err := withRetry(ctx, func() error {
		_, err := t.api.Request(tgbotapi.BanChatMemberConfig{
			ChatMemberConfig: tgbotapi.ChatMemberConfig{
				ChatID: t.groupChatID,
				UserID: memberID,
			},
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to ban member %d: %w", memberID, err)
	}

	err = withRetry(ctx, func() error {
		_, err := t.api.Request(tgbotapi.UnbanChatMemberConfig{
			ChatMemberConfig: tgbotapi.ChatMemberConfig{
				ChatID: t.groupChatID,
				UserID: memberID,
			},
			OnlyIfBanned: true,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to unban member %d: %w", memberID, err)
	}

	return nil
}

// CreateInviteLink mints a named group invite link, falling back to a bot
// deep link carrying the code when the group call fails.
func (t *Transport) CreateInviteLink(ctx context.Context, inviter *model.Member, code string) (string, error) {
	name := fmt.Sprintf("Join %s (via %s)", t.groupTitle, inviter.DisplayName())
	if len(name) > inviteLinkNameLimit {
		name = fmt.Sprintf("Join %s", t.groupTitle)
		if len(name) > inviteLinkNameLimit {
			name = name[:inviteLinkNameLimit-3] + "..."
		}
	}

	var link string
	err := withRetry(ctx, func() error {
		resp, err := t.api.Request(tgbotapi.CreateChatInviteLinkConfig{
			ChatConfig: tgbotapi.ChatConfig{ChatID: t.groupChatID},
			Name:       name,
		})
		if err != nil {
			return err
		}

		var created tgbotapi.ChatInviteLink
		if err := json.Unmarshal(resp.Result, &created); err != nil {
			return err
		}
		link = created.InviteLink
		return nil
	})
	if err != nil {
		logger.Logger().Warn("failed to create chat invite link, using bot deep link",
			zap.Int64("member_id", inviter.TelegramID),
			zap.Error(err))
		return fmt.Sprintf("https://t.me/%s?start=%s", t.api.Self.UserName, code), nil
	}

	return link, nil
}
