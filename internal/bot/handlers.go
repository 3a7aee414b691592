package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"TG_group_guardian/internal/locale"
	"TG_group_guardian/internal/model"
	"TG_group_guardian/internal/service"
	"TG_group_guardian/pkg/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func memberFromUser(u *tgbotapi.User) *model.Member {
	return &model.Member{
		TelegramID:   u.ID,
		Username:     u.UserName,
		FirstName:    u.FirstName,
		LanguageCode: u.LanguageCode,
	}
}

func (b *Bot) langOf(ctx context.Context, memberID int64) string {
	m, err := b.members.GetMember(ctx, memberID)
	if err != nil || m.LanguageCode == "" {
		return locale.DefaultLanguage
	}
	return m.LanguageCode
}

func (b *Bot) reply(ctx context.Context, chatID int64, lang string, key locale.Key, params map[string]string) {
	b.sendText(ctx, chatID, b.catalog.T(lang, key, params))
}

func (b *Bot) sendText(ctx context.Context, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	err := withRetry(ctx, func() error {
		_, err := b.api.Send(msg)
		return err
	})
	if err != nil {
		logger.Logger().Error("failed to send message",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
	}
}

// handleChatMemberUpdate carries the invite link a join came through,
// which the service-message path does not.
func (b *Bot) handleChatMemberUpdate(ctx context.Context, cm *tgbotapi.ChatMemberUpdated) {
	if cm.Chat.ID != b.groupChatID {
		return
	}

	log := logger.Logger()
	oldStatus := cm.OldChatMember.Status
	newStatus := cm.NewChatMember.Status
	user := cm.NewChatMember.User
	if user == nil || user.IsBot {
		return
	}

	wasIn := oldStatus == "member" || oldStatus == "administrator" || oldStatus == "restricted"
	isIn := newStatus == "member" || newStatus == "administrator" || newStatus == "restricted"

	switch {
	case !wasIn && isIn:
		var link string
		if cm.InviteLink != nil {
			link = cm.InviteLink.InviteLink
		}
		code, err := b.invitations.ResolveLinkCode(ctx, link)
		if err != nil {
			log.Error("failed to resolve invite link", zap.Error(err))
		}
		if err := b.verification.OnJoin(ctx, memberFromUser(user), code); err != nil {
			log.Error("failed to handle join", zap.Int64("member_id", user.ID), zap.Error(err))
		}
	case wasIn && !isIn:
		if err := b.invitations.RecordLeave(ctx, user.ID); err != nil {
			log.Error("failed to record leave", zap.Int64("member_id", user.ID), zap.Error(err))
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	log := logger.Logger()

	// service-message fallback for groups where chat_member updates are
	// not delivered; OnJoin is idempotent against the double delivery
	if len(msg.NewChatMembers) > 0 && msg.Chat.ID == b.groupChatID {
		for i := range msg.NewChatMembers {
			u := msg.NewChatMembers[i]
			if u.IsBot {
				continue
			}
			if err := b.verification.OnJoin(ctx, memberFromUser(&u), ""); err != nil {
				log.Error("failed to handle join", zap.Int64("member_id", u.ID), zap.Error(err))
			}
		}
		return
	}

	if msg.LeftChatMember != nil && msg.Chat.ID == b.groupChatID {
		if !msg.LeftChatMember.IsBot {
			if err := b.invitations.RecordLeave(ctx, msg.LeftChatMember.ID); err != nil {
				log.Error("failed to record leave",
					zap.Int64("member_id", msg.LeftChatMember.ID),
					zap.Error(err))
			}
		}
		return
	}

	if msg.From == nil {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	if msg.Text == "" {
		return
	}

	err := b.verification.OnAnswer(ctx, msg.From.ID, msg.Text)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveChallenge) {
			// ordinary chatter in the group, only worth a reply in private
			if msg.Chat.IsPrivate() {
				b.reply(ctx, msg.Chat.ID, b.langOf(ctx, msg.From.ID), locale.NothingToAnswer, nil)
			}
			return
		}
		log.Error("failed to handle answer", zap.Int64("member_id", msg.From.ID), zap.Error(err))
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	lang := b.langOf(ctx, msg.From.ID)

	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg, lang)
	case "help":
		b.reply(ctx, msg.Chat.ID, lang, locale.HelpText, nil)
	case "invite":
		b.handleInvite(ctx, msg, lang)
	case "stats":
		b.handleStats(ctx, msg, lang)
	case "members":
		b.handleMembers(ctx, msg, lang)
	case "ranking":
		b.handleRanking(ctx, msg, lang)
	case "language":
		b.handleLanguage(ctx, msg, lang)
	case "deactivate":
		b.handleDeactivate(ctx, msg, lang)
	case "recount":
		b.handleRecount(ctx, msg, lang)
	}
}

// handleStart treats a valid deep-link payload as a join via that code,
// for users arriving through the bot-link fallback.
func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message, lang string) {
	payload := strings.TrimSpace(msg.CommandArguments())
	if code, ok := service.ParseInviteCode(payload); ok {
		if err := b.verification.OnJoin(ctx, memberFromUser(msg.From), code); err != nil {
			logger.Logger().Error("failed to handle deep-link start",
				zap.Int64("member_id", msg.From.ID),
				zap.Error(err))
		}
		return
	}
	b.reply(ctx, msg.Chat.ID, lang, locale.HelpText, nil)
}

func (b *Bot) handleInvite(ctx context.Context, msg *tgbotapi.Message, lang string) {
	inv, err := b.invitations.GetOrCreateInviteLink(ctx, msg.From.ID)
	if err != nil {
		logger.Logger().Error("failed to get invite link",
			zap.Int64("member_id", msg.From.ID),
			zap.Error(err))
		return
	}
	b.reply(ctx, msg.Chat.ID, lang, locale.InviteLinkGenerated, map[string]string{"link": inv.Link})
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message, lang string) {
	stats, err := b.invitations.MemberStats(ctx, msg.From.ID)
	if err != nil {
		logger.Logger().Error("failed to get member stats",
			zap.Int64("member_id", msg.From.ID),
			zap.Error(err))
		return
	}

	var sb strings.Builder
	sb.WriteString(b.catalog.T(lang, locale.InviteStats, map[string]string{
		"total":  strconv.Itoa(stats.TotalInvited),
		"left":   strconv.Itoa(stats.TotalLeft),
		"active": strconv.Itoa(stats.ActiveMembers),
	}))

	for _, view := range []model.RankingView{model.ViewTotalInvited, model.ViewNetActive} {
		rank, err := b.rankings.MemberRank(ctx, view, msg.From.ID)
		if err != nil {
			continue
		}
		sb.WriteString("\n")
		sb.WriteString(b.catalog.T(lang, b.viewTitleKey(view), nil))
		sb.WriteString(": ")
		sb.WriteString(b.catalog.T(lang, locale.YourRank, map[string]string{
			"rank":  strconv.Itoa(rank.Rank),
			"total": strconv.Itoa(rank.Total),
			"count": strconv.Itoa(rank.Count),
		}))
	}

	b.sendText(ctx, msg.Chat.ID, sb.String())
}

func (b *Bot) handleMembers(ctx context.Context, msg *tgbotapi.Message, lang string) {
	page := 1
	if arg := strings.TrimSpace(msg.CommandArguments()); arg != "" {
		if n, err := strconv.Atoi(arg); err == nil {
			page = n
		}
	}

	members, totalPages, err := b.invitations.InvitedMembersPage(ctx, msg.From.ID, page)
	if err != nil {
		logger.Logger().Error("failed to list invited members",
			zap.Int64("member_id", msg.From.ID),
			zap.Error(err))
		return
	}

	if len(members) == 0 {
		b.reply(ctx, msg.Chat.ID, lang, locale.NoMembers, nil)
		return
	}

	var sb strings.Builder
	sb.WriteString(b.catalog.T(lang, locale.InviteMembersTitle, map[string]string{
		"page":        strconv.Itoa(page),
		"total_pages": strconv.Itoa(totalPages),
	}))
	for _, m := range members {
		sb.WriteString("\n")
		key := locale.MemberStatusActive
		if m.HasLeft {
			key = locale.MemberStatusLeft
		}
		sb.WriteString(b.catalog.T(lang, key, map[string]string{"name": m.Name}))
	}

	b.sendText(ctx, msg.Chat.ID, sb.String())
}

// handleRanking shows the all-time board; a numeric argument switches to
// the windowed board for that many days, e.g. /ranking 7.
func (b *Bot) handleRanking(ctx context.Context, msg *tgbotapi.Message, lang string) {
	var (
		text   string
		markup tgbotapi.InlineKeyboardMarkup
		err    error
	)
	if days, convErr := strconv.Atoi(strings.TrimSpace(msg.CommandArguments())); convErr == nil && days > 0 {
		text, markup, err = b.renderRecentRanking(ctx, lang, days, 1)
	} else {
		text, markup, err = b.renderRanking(ctx, lang, model.ViewTotalInvited, 1, msg.From.ID)
	}
	if err != nil {
		logger.Logger().Error("failed to render ranking", zap.Error(err))
		return
	}

	m := tgbotapi.NewMessage(msg.Chat.ID, text)
	m.ReplyMarkup = markup
	sendErr := withRetry(ctx, func() error {
		_, err := b.api.Send(m)
		return err
	})
	if sendErr != nil {
		logger.Logger().Error("failed to send ranking", zap.Error(sendErr))
	}
}

func (b *Bot) handleLanguage(ctx context.Context, msg *tgbotapi.Message, lang string) {
	var rows [][]tgbotapi.InlineKeyboardButton
	for code, name := range b.catalog.Languages() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(name, "lang:"+code),
		))
	}

	m := tgbotapi.NewMessage(msg.Chat.ID, b.catalog.T(lang, locale.ChooseLanguage, nil))
	m.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	err := withRetry(ctx, func() error {
		_, err := b.api.Send(m)
		return err
	})
	if err != nil {
		logger.Logger().Error("failed to send language picker", zap.Error(err))
	}
}

func (b *Bot) handleDeactivate(ctx context.Context, msg *tgbotapi.Message, lang string) {
	if !b.isAdmin(msg.From.ID) {
		b.reply(ctx, msg.Chat.ID, lang, locale.AdminOnly, nil)
		return
	}

	target, err := strconv.ParseInt(strings.TrimSpace(msg.CommandArguments()), 10, 64)
	if err != nil {
		return
	}

	n, err := b.invitations.Deactivate(ctx, target)
	if err != nil {
		logger.Logger().Error("failed to deactivate invitations",
			zap.Int64("target_id", target),
			zap.Error(err))
		return
	}
	b.reply(ctx, msg.Chat.ID, lang, locale.InvitesDeactivated, map[string]string{
		"count": strconv.Itoa(n),
	})
}

func (b *Bot) handleRecount(ctx context.Context, msg *tgbotapi.Message, lang string) {
	if !b.isAdmin(msg.From.ID) {
		b.reply(ctx, msg.Chat.ID, lang, locale.AdminOnly, nil)
		return
	}

	code, ok := service.ParseInviteCode(strings.TrimSpace(msg.CommandArguments()))
	if !ok {
		return
	}

	if err := b.invitations.Recount(ctx, code); err != nil {
		logger.Logger().Error("failed to recount invitation",
			zap.String("code", code),
			zap.Error(err))
		return
	}
	b.reply(ctx, msg.Chat.ID, lang, locale.RecountDone, map[string]string{"code": code})
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	log := logger.Logger()

	defer func() {
		if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			log.Debug("failed to answer callback", zap.Error(err))
		}
	}()

	if cq.Message == nil {
		return
	}
	lang := b.langOf(ctx, cq.From.ID)

	switch {
	case strings.HasPrefix(cq.Data, "lang:"):
		code := strings.TrimPrefix(cq.Data, "lang:")
		if !b.catalog.Supported(code) {
			return
		}
		if err := b.members.SetLanguage(ctx, cq.From.ID, code); err != nil {
			log.Error("failed to set language", zap.Int64("member_id", cq.From.ID), zap.Error(err))
			return
		}
		edit := tgbotapi.NewEditMessageText(cq.Message.Chat.ID, cq.Message.MessageID,
			b.catalog.T(code, locale.LanguageSet, map[string]string{
				"language": b.catalog.Languages()[code],
			}))
		if _, err := b.api.Send(edit); err != nil {
			log.Error("failed to edit language message", zap.Error(err))
		}

	case strings.HasPrefix(cq.Data, "rankd:"):
		parts := strings.Split(cq.Data, ":")
		if len(parts) != 3 {
			return
		}
		days, err := strconv.Atoi(parts[1])
		if err != nil {
			return
		}
		page, err := strconv.Atoi(parts[2])
		if err != nil {
			return
		}

		text, markup, err := b.renderRecentRanking(ctx, lang, days, page)
		if err != nil {
			log.Error("failed to render recent ranking", zap.Error(err))
			return
		}
		edit := tgbotapi.NewEditMessageTextAndMarkup(cq.Message.Chat.ID, cq.Message.MessageID, text, markup)
		if _, err := b.api.Send(edit); err != nil {
			log.Error("failed to edit ranking message", zap.Error(err))
		}

	case strings.HasPrefix(cq.Data, "rank:"):
		parts := strings.Split(cq.Data, ":")
		if len(parts) != 3 {
			return
		}
		view, ok := model.ParseRankingView(parts[1])
		if !ok {
			return
		}
		page, err := strconv.Atoi(parts[2])
		if err != nil {
			return
		}

		text, markup, err := b.renderRanking(ctx, lang, view, page, cq.From.ID)
		if err != nil {
			log.Error("failed to render ranking", zap.Error(err))
			return
		}
		edit := tgbotapi.NewEditMessageTextAndMarkup(cq.Message.Chat.ID, cq.Message.MessageID, text, markup)
		if _, err := b.api.Send(edit); err != nil {
			log.Error("failed to edit ranking message", zap.Error(err))
		}
	}
}

func (b *Bot) viewTitleKey(view model.RankingView) locale.Key {
	switch view {
	case model.ViewTotalLeft:
		return locale.RankingLeft
	case model.ViewNetActive:
		return locale.RankingActive
	default:
		return locale.RankingTotal
	}
}

func (b *Bot) renderRecentRanking(ctx context.Context, lang string, days, page int) (string, tgbotapi.InlineKeyboardMarkup, error) {
	board, err := b.rankings.RecentLeaderboard(ctx, days, page)
	if err != nil {
		return "", tgbotapi.InlineKeyboardMarkup{}, err
	}

	var sb strings.Builder
	sb.WriteString(b.catalog.T(lang, locale.RankingTitle, nil))
	sb.WriteString("\n")
	sb.WriteString(b.catalog.T(lang, locale.RankingRecent, map[string]string{
		"days": strconv.Itoa(days),
	}))
	sb.WriteString("\n\n")

	if len(board.Entries) == 0 {
		sb.WriteString(b.catalog.T(lang, locale.NoRankingData, nil))
	}
	for _, e := range board.Entries {
		sb.WriteString(fmt.Sprintf("%d. %s — %d\n", e.Rank, e.Name, e.Count))
	}

	views := tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(b.catalog.T(lang, locale.RankingTotal, nil), fmt.Sprintf("rank:%s:1", model.ViewTotalInvited)),
		tgbotapi.NewInlineKeyboardButtonData(b.catalog.T(lang, locale.RankingLeft, nil), fmt.Sprintf("rank:%s:1", model.ViewTotalLeft)),
		tgbotapi.NewInlineKeyboardButtonData(b.catalog.T(lang, locale.RankingActive, nil), fmt.Sprintf("rank:%s:1", model.ViewNetActive)),
	)

	var nav []tgbotapi.InlineKeyboardButton
	if board.Page > 1 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("«", fmt.Sprintf("rankd:%d:%d", days, board.Page-1)))
	}
	if board.Page < board.TotalPages {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("»", fmt.Sprintf("rankd:%d:%d", days, board.Page+1)))
	}

	rows := [][]tgbotapi.InlineKeyboardButton{views}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}

	return sb.String(), tgbotapi.NewInlineKeyboardMarkup(rows...), nil
}

func (b *Bot) renderRanking(ctx context.Context, lang string, view model.RankingView, page int, requesterID int64) (string, tgbotapi.InlineKeyboardMarkup, error) {
	board, err := b.rankings.Leaderboard(ctx, view, page)
	if err != nil {
		return "", tgbotapi.InlineKeyboardMarkup{}, err
	}

	var sb strings.Builder
	sb.WriteString(b.catalog.T(lang, locale.RankingTitle, nil))
	sb.WriteString("\n")
	sb.WriteString(b.catalog.T(lang, b.viewTitleKey(view), nil))
	sb.WriteString("\n\n")

	if len(board.Entries) == 0 {
		sb.WriteString(b.catalog.T(lang, locale.NoRankingData, nil))
	}
	for _, e := range board.Entries {
		sb.WriteString(fmt.Sprintf("%d. %s — %d\n", e.Rank, e.Name, e.Count))
	}

	if rank, err := b.rankings.MemberRank(ctx, view, requesterID); err == nil {
		sb.WriteString("\n")
		sb.WriteString(b.catalog.T(lang, locale.YourRank, map[string]string{
			"rank":  strconv.Itoa(rank.Rank),
			"total": strconv.Itoa(rank.Total),
			"count": strconv.Itoa(rank.Count),
		}))
	}

	views := tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(b.catalog.T(lang, locale.RankingTotal, nil), fmt.Sprintf("rank:%s:1", model.ViewTotalInvited)),
		tgbotapi.NewInlineKeyboardButtonData(b.catalog.T(lang, locale.RankingLeft, nil), fmt.Sprintf("rank:%s:1", model.ViewTotalLeft)),
		tgbotapi.NewInlineKeyboardButtonData(b.catalog.T(lang, locale.RankingActive, nil), fmt.Sprintf("rank:%s:1", model.ViewNetActive)),
	)

	var nav []tgbotapi.InlineKeyboardButton
	if board.Page > 1 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("«", fmt.Sprintf("rank:%s:%d", view, board.Page-1)))
	}
	if board.Page < board.TotalPages {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("»", fmt.Sprintf("rank:%s:%d", view, board.Page+1)))
	}

	rows := [][]tgbotapi.InlineKeyboardButton{views}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}

	return sb.String(), tgbotapi.NewInlineKeyboardMarkup(rows...), nil
}
