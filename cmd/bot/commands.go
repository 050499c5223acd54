package main

import (
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/prasetyawidi/gemgram/internal/telegram"
)

// commandAliases maps localized command aliases to their canonical
// command.
var commandAliases = map[string]string{
	"bantuan":    "help",
	"mulaiulang": "newchat",
	"pengaturan": "settings",
	"info":       "status",
}

func (b *Bot) handleCommand(msg *telegram.Message, cmd, args string) {
	if canonical, ok := commandAliases[cmd]; ok {
		cmd = canonical
	}

	switch cmd {
	case "start":
		b.cmdStart(msg)
	case "help":
		b.cmdHelp(msg)
	case "lang":
		b.cmdLang(msg)
	case "settings":
		b.cmdSettings(msg)
	case "status":
		b.cmdStatus(msg)
	case "newchat":
		b.cmdNewChat(msg)
	default:
		if b.cfg.IsGroupTrigger(cmd) {
			// The trigger's argument is the prompt; a bare trigger in
			// reply to a media message still carries that media.
			media, ok := b.replyMedia(msg)
			if !ok {
				return
			}
			if args == "" && len(media) == 0 {
				return
			}
			b.processAI(msg, args, media)
		}
	}
}

func (b *Bot) cmdStart(msg *telegram.Message) {
	lang := b.userLang(msg.From)

	// /start counts against the daily quota but is never rejected.
	if b.cfg.EnableDailyLimit && b.store != nil {
		if _, _, err := b.store.ConsumeQuotaOrReject(msg.From.ID, b.cfg.DailyChatLimit); err != nil {
			log.Printf("[bot] quota update on /start failed for user %d: %v", msg.From.ID, err)
		}
	}

	text := b.tr(lang, "welcome_message", nil) + "\n\n" + b.tr(lang, "language_suggestion", nil)
	b.send(msg.Chat.ID, text, nil)

	// First contact with no stored preference asks for a language.
	if b.store != nil {
		stored, err := b.store.UserLanguage(msg.From.ID)
		if err == nil && stored == "" {
			b.sendLanguageKeyboard(msg.Chat.ID, lang)
		}
	}
}

func (b *Bot) cmdHelp(msg *telegram.Message) {
	lang := b.userLang(msg.From)
	lines := []string{
		b.tr(lang, "help_title", nil),
		b.tr(lang, "help_command_start", nil),
		b.tr(lang, "help_command_help", nil),
		b.tr(lang, "help_command_lang", nil),
		b.tr(lang, "help_command_settings", nil),
		b.tr(lang, "help_command_status", nil),
		b.tr(lang, "help_command_newchat", nil),
		"",
		b.tr(lang, "help_interaction_intro", nil),
		b.tr(lang, "help_interaction_text", nil),
		b.tr(lang, "help_interaction_image", nil),
		b.tr(lang, "help_interaction_audio", nil),
		b.tr(lang, "help_interaction_document", nil),
		"",
		b.tr(lang, "help_footer", nil),
	}

	opts := &telegram.SendOptions{ParseMode: "Markdown"}
	if b.me != nil && b.me.Username != "" {
		opts.ReplyMarkup = &telegram.InlineKeyboardMarkup{
			InlineKeyboard: [][]telegram.InlineKeyboardButton{{
				{
					Text: b.tr(lang, "help_add_to_group_button", nil),
					URL:  "https://t.me/" + b.me.Username + "?startgroup=true",
				},
			}},
		}
	}
	b.send(msg.Chat.ID, strings.Join(lines, "\n"), opts)
}

func (b *Bot) cmdLang(msg *telegram.Message) {
	b.sendLanguageKeyboard(msg.Chat.ID, b.userLang(msg.From))
}

func (b *Bot) sendLanguageKeyboard(chatID int64, lang string) {
	var rows [][]telegram.InlineKeyboardButton
	for _, code := range sortedKeys(b.cfg.AvailableLanguages) {
		rows = append(rows, []telegram.InlineKeyboardButton{{
			Text:         b.cfg.AvailableLanguages[code],
			CallbackData: "set_lang:" + code,
		}})
	}
	b.send(chatID, b.tr(lang, "ask_language", nil), &telegram.SendOptions{
		ReplyMarkup: &telegram.InlineKeyboardMarkup{InlineKeyboard: rows},
	})
}

func (b *Bot) cmdSettings(msg *telegram.Message) {
	lang := b.userLang(msg.From)
	current := b.userModel(msg.From.ID)

	currentName, ok := b.cfg.AvailableModels[current]
	if !ok {
		currentName = b.tr(lang, "settings_no_model_selected", map[string]string{
			"default_model_name": b.cfg.AvailableModels[b.cfg.DefaultModelID],
		})
	}

	var rows [][]telegram.InlineKeyboardButton
	for _, id := range sortedKeys(b.cfg.AvailableModels) {
		label := b.cfg.AvailableModels[id]
		if id == current {
			label = "✅ " + label
		}
		rows = append(rows, []telegram.InlineKeyboardButton{{
			Text:         label,
			CallbackData: "select_model:" + id,
		}})
	}

	text := b.tr(lang, "settings_title", nil) + "\n" +
		b.tr(lang, "settings_select_model_prompt", map[string]string{"current_model_name": currentName})
	b.send(msg.Chat.ID, text, &telegram.SendOptions{
		ParseMode:   "Markdown",
		ReplyMarkup: &telegram.InlineKeyboardMarkup{InlineKeyboard: rows},
	})
}

func (b *Bot) cmdStatus(msg *telegram.Message) {
	lang := b.userLang(msg.From)
	model := b.userModel(msg.From.ID)

	lines := []string{
		b.tr(lang, "user_status_title", nil),
		b.tr(lang, "status_language", map[string]string{"language_name": b.cfg.AvailableLanguages[lang]}),
		b.tr(lang, "status_active_model", map[string]string{"model_name": b.cfg.AvailableModels[model]}),
	}

	switch {
	case !b.cfg.EnableDailyLimit:
		lines = append(lines, b.tr(lang, "status_daily_chats_unlimited", nil))
	case b.store == nil:
		lines = append(lines, b.tr(lang, "status_failed_to_fetch", nil))
	default:
		status, err := b.store.Quota(msg.From.ID)
		if err != nil {
			log.Printf("[bot] failed to read quota for user %d: %v", msg.From.ID, err)
			lines = append(lines, b.tr(lang, "status_failed_to_fetch", nil))
			break
		}
		params := map[string]string{
			"chats_used":  strconv.Itoa(status.Used),
			"limit_count": strconv.Itoa(b.cfg.DailyChatLimit),
		}
		if status.Used >= b.cfg.DailyChatLimit {
			lines = append(lines, b.tr(lang, "status_daily_chats_limit_reached", params))
		} else {
			params["remaining_chats"] = strconv.Itoa(b.cfg.DailyChatLimit - status.Used)
			lines = append(lines, b.tr(lang, "status_daily_chats_info_with_limit", params))
		}
	}

	b.send(msg.Chat.ID, strings.Join(lines, "\n"), &telegram.SendOptions{ParseMode: "Markdown"})
}

func (b *Bot) cmdNewChat(msg *telegram.Message) {
	lang := b.userLang(msg.From)
	if !b.cfg.EnableHistory || b.store == nil {
		b.send(msg.Chat.ID, b.tr(lang, "history_feature_disabled", nil), nil)
		return
	}
	if err := b.store.ClearHistory(msg.From.ID); err != nil {
		log.Printf("[bot] failed to clear history for user %d: %v", msg.From.ID, err)
		b.send(msg.Chat.ID, b.tr(lang, "new_chat_failed", nil), nil)
		return
	}
	b.send(msg.Chat.ID, b.tr(lang, "new_chat_started", nil), nil)
}

func (b *Bot) handleCallback(cb *telegram.CallbackQuery) {
	defer func() {
		if err := b.client.AnswerCallbackQuery(cb.ID); err != nil {
			log.Printf("[bot] failed to answer callback %s: %v", cb.ID, err)
		}
	}()
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	switch {
	case strings.HasPrefix(cb.Data, "set_lang:"):
		code := strings.TrimPrefix(cb.Data, "set_lang:")
		if _, ok := b.cfg.AvailableLanguages[code]; !ok {
			return
		}
		if err := b.setUserLang(cb.From.ID, code); err != nil {
			log.Printf("[bot] failed to store language for user %d: %v", cb.From.ID, err)
			b.send(chatID, b.tr(b.cfg.DefaultLanguage, "internal_error", nil), nil)
			return
		}
		// Confirm in the language that was just chosen.
		if err := b.client.EditMessageText(chatID, cb.Message.MessageID, b.tr(code, "language_changed", nil), nil); err != nil {
			b.send(chatID, b.tr(code, "language_changed", nil), nil)
		}

	case strings.HasPrefix(cb.Data, "select_model:"):
		lang := b.userLang(&cb.From)
		modelID := strings.TrimPrefix(cb.Data, "select_model:")
		name, ok := b.cfg.AvailableModels[modelID]
		if !ok {
			b.send(chatID, b.tr(lang, "settings_model_invalid", nil), nil)
			return
		}
		if err := b.setUserModel(cb.From.ID, modelID); err != nil {
			log.Printf("[bot] failed to store model for user %d: %v", cb.From.ID, err)
			b.send(chatID, b.tr(lang, "settings_model_selection_failed", nil), nil)
			return
		}
		confirmation := b.tr(lang, "settings_model_changed_success", map[string]string{"new_model_name": name})
		if err := b.client.EditMessageText(chatID, cb.Message.MessageID, confirmation, nil); err != nil {
			b.send(chatID, confirmation, nil)
		}
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
