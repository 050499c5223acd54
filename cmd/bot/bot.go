package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/prasetyawidi/gemgram/internal/album"
	"github.com/prasetyawidi/gemgram/internal/config"
	"github.com/prasetyawidi/gemgram/internal/db"
	"github.com/prasetyawidi/gemgram/internal/i18n"
	"github.com/prasetyawidi/gemgram/internal/interaction"
	"github.com/prasetyawidi/gemgram/internal/telegram"
)

// Bot routes Telegram updates to command handlers and the interactor.
type Bot struct {
	cfg        config.Config
	client     *telegram.Client
	table      *i18n.Table
	store      *db.Store
	interactor *interaction.Interactor
	albums     *album.Aggregator
	me         *telegram.User

	// In-memory preference caches in front of the database. Guarded by
	// mu; entries are written through on every change.
	mu         sync.Mutex
	langCache  map[int64]string
	modelCache map[int64]string
}

func newBot(cfg config.Config, client *telegram.Client, table *i18n.Table, store *db.Store, interactor *interaction.Interactor, me *telegram.User) *Bot {
	return &Bot{
		cfg:        cfg,
		client:     client,
		table:      table,
		store:      store,
		interactor: interactor,
		me:         me,
		langCache:  make(map[int64]string),
		modelCache: make(map[int64]string),
	}
}

func (b *Bot) tr(lang, key string, params map[string]string) string {
	return b.table.Translate(key, lang, params)
}

// userLang resolves the user's language: cache, then database, then the
// Telegram client language, then the configured default.
func (b *Bot) userLang(user *telegram.User) string {
	if user == nil {
		return b.cfg.DefaultLanguage
	}

	b.mu.Lock()
	cached, ok := b.langCache[user.ID]
	b.mu.Unlock()
	if ok {
		return cached
	}

	lang := ""
	if b.store != nil {
		stored, err := b.store.UserLanguage(user.ID)
		if err != nil {
			log.Printf("[bot] failed to read language for user %d: %v", user.ID, err)
		} else {
			lang = stored
		}
	}
	if lang == "" {
		if _, ok := b.cfg.AvailableLanguages[user.LanguageCode]; ok {
			lang = user.LanguageCode
		}
	}
	if lang == "" {
		lang = b.cfg.DefaultLanguage
	}

	b.mu.Lock()
	b.langCache[user.ID] = lang
	b.mu.Unlock()
	return lang
}

func (b *Bot) setUserLang(userID int64, lang string) error {
	if b.store != nil {
		if err := b.store.SetUserLanguage(userID, lang); err != nil {
			return err
		}
	}
	b.mu.Lock()
	b.langCache[userID] = lang
	b.mu.Unlock()
	return nil
}

// userModel resolves the user's model choice, falling back to the
// configured default.
func (b *Bot) userModel(userID int64) string {
	b.mu.Lock()
	cached, ok := b.modelCache[userID]
	b.mu.Unlock()
	if ok {
		return cached
	}

	model := ""
	if b.store != nil {
		stored, err := b.store.SelectedModel(userID)
		if err != nil {
			log.Printf("[bot] failed to read model for user %d: %v", userID, err)
		} else {
			stored = strings.TrimSpace(stored)
			if _, ok := b.cfg.AvailableModels[stored]; ok {
				model = stored
			}
		}
	}
	if model == "" {
		model = b.cfg.DefaultModelID
	}

	b.mu.Lock()
	b.modelCache[userID] = model
	b.mu.Unlock()
	return model
}

func (b *Bot) setUserModel(userID int64, modelID string) error {
	if b.store != nil {
		if err := b.store.SetSelectedModel(userID, modelID); err != nil {
			return err
		}
	}
	b.mu.Lock()
	b.modelCache[userID] = modelID
	b.mu.Unlock()
	return nil
}

// HandleUpdate dispatches one update. It is called on its own goroutine
// per update.
func (b *Bot) HandleUpdate(u telegram.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[bot] panic handling update %d: %v", u.UpdateID, r)
		}
	}()

	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(u.CallbackQuery)
	case u.Message != nil:
		b.handleMessage(u.Message)
	}
}

func (b *Bot) handleMessage(msg *telegram.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}

	// Album photos are collected and handled as one batch. With image
	// understanding off they are dropped before buffering, so a disabled
	// feature never produces per-album notices.
	if msg.MediaGroupID != "" && len(msg.Photo) > 0 {
		if !b.cfg.EnableImages {
			return
		}
		key := fmt.Sprintf("%d:%s", msg.Chat.ID, msg.MediaGroupID)
		b.albums.Submit(key, msg)
		return
	}

	if cmd, args, ok := b.parseCommand(msg); ok {
		b.handleCommand(msg, cmd, args)
		return
	}

	switch {
	case len(msg.Photo) > 0, msg.Audio != nil, msg.Voice != nil, msg.Document != nil:
		b.handleMedia(msg)
	case msg.Text != "":
		b.handleText(msg)
	}
}

// parseCommand extracts "/cmd@botname args". A non-command message
// returns ok=false.
func (b *Bot) parseCommand(msg *telegram.Message) (cmd, args string, ok bool) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	rest := text[1:]
	if rest == "" {
		return "", "", false
	}

	cmd = rest
	if idx := strings.IndexAny(rest, " \n"); idx >= 0 {
		cmd = rest[:idx]
		args = strings.TrimSpace(rest[idx+1:])
	}
	if at := strings.Index(cmd, "@"); at >= 0 {
		mention := cmd[at+1:]
		if b.me != nil && !strings.EqualFold(mention, b.me.Username) {
			return "", "", false
		}
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), args, true
}

// handleText routes a plain text message. In groups only replies to the
// bot's own messages are answered; everything else goes through the
// group trigger commands.
func (b *Bot) handleText(msg *telegram.Message) {
	if !msg.Chat.IsPrivate() {
		if msg.ReplyToMessage == nil || msg.ReplyToMessage.From == nil ||
			b.me == nil || msg.ReplyToMessage.From.ID != b.me.ID {
			return
		}
	}

	// A reply to a message with media carries that media along.
	media, ok := b.replyMedia(msg)
	if !ok {
		return
	}
	b.processAI(msg, msg.Text, media)
}

// replyMedia pulls media from the message msg replies to, unless the
// replied message is the bot's own. ok=false means the media was
// unusable and the user was already told.
func (b *Bot) replyMedia(msg *telegram.Message) ([]interaction.MediaItem, bool) {
	reply := msg.ReplyToMessage
	if reply == nil {
		return nil, true
	}
	if reply.From != nil && b.me != nil && reply.From.ID == b.me.ID {
		return nil, true
	}
	return b.mediaFromMessage(reply, b.userLang(msg.From), msg.Chat.ID)
}

// processAI resolves preferences and runs one exchange.
func (b *Bot) processAI(msg *telegram.Message, prompt string, media []interaction.MediaItem) {
	lang := b.userLang(msg.From)
	req := interaction.Request{
		UserID:  msg.From.ID,
		ChatID:  msg.Chat.ID,
		Lang:    lang,
		ModelID: b.userModel(msg.From.ID),
		Prompt:  prompt,
		Media:   media,
		Message: msg,
	}
	if err := b.interactor.Process(context.Background(), req); err != nil {
		log.Printf("[bot] exchange failed in chat %d: %v", msg.Chat.ID, err)
	}
}

func (b *Bot) send(chatID int64, text string, opts *telegram.SendOptions) {
	if _, err := b.client.SendMessage(chatID, text, opts); err != nil {
		log.Printf("[bot] failed to send message to chat %d: %v", chatID, err)
	}
}
