// Package interaction orchestrates one AI exchange: quota, prompt
// synthesis, the provider call, history persistence, and chunked
// delivery of the answer back to Telegram.
package interaction

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/prasetyawidi/gemgram/internal/config"
	"github.com/prasetyawidi/gemgram/internal/db"
	"github.com/prasetyawidi/gemgram/internal/gemini"
	"github.com/prasetyawidi/gemgram/internal/i18n"
	"github.com/prasetyawidi/gemgram/internal/telegram"
	"github.com/prasetyawidi/gemgram/internal/textsplit"
)

// Transport is the slice of the Telegram client the interactor needs.
type Transport interface {
	SendMessage(chatID int64, text string, opts *telegram.SendOptions) (int64, error)
	DeleteMessage(chatID, messageID int64) error
}

// Provider generates a model response for a request.
type Provider interface {
	Generate(ctx context.Context, req gemini.Request) (string, error)
}

// Store is the slice of persistence the interactor needs.
type Store interface {
	AppendHistory(userID int64, role, content string) error
	RecentHistory(userID int64, limit int) ([]db.Turn, error)
	ConsumeQuotaOrReject(userID int64, dailyLimit int) (bool, int, error)
}

// MediaKind distinguishes the attachment types of a request.
type MediaKind int

const (
	MediaImage MediaKind = iota
	MediaAudio
	MediaDocument
)

// MediaItem is one downloaded attachment ready for the provider.
type MediaItem struct {
	Kind     MediaKind
	Data     []byte
	MIMEType string
}

// Request is one user interaction to process.
type Request struct {
	UserID  int64
	ChatID  int64
	Lang    string
	ModelID string
	Prompt  string
	Media   []MediaItem
	Message *telegram.Message
}

// Interactor runs AI exchanges end to end.
type Interactor struct {
	transport  Transport
	provider   Provider
	store      Store
	table      *i18n.Table
	classifier *Classifier
	cfg        config.Config
	botID      int64
}

// New creates an Interactor. store may be nil when the database feature
// is disabled; provider may be nil when the AI feature is disabled.
func New(transport Transport, provider Provider, store Store, table *i18n.Table, classifier *Classifier, cfg config.Config, botID int64) *Interactor {
	return &Interactor{
		transport:  transport,
		provider:   provider,
		store:      store,
		table:      table,
		classifier: classifier,
		cfg:        cfg,
		botID:      botID,
	}
}

func (i *Interactor) tr(lang, key string, params map[string]string) string {
	return i.table.Translate(key, lang, params)
}

// replyTo returns the message id the first chunk should reply to. When
// the user's message is itself a reply to the bot, the answer is sent
// without a reply reference to avoid a reply chain.
func (i *Interactor) replyTo(msg *telegram.Message) int64 {
	if msg == nil {
		return 0
	}
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil && msg.ReplyToMessage.From.ID == i.botID {
		return 0
	}
	return msg.MessageID
}

// Process runs one exchange. All user-visible failures are reported in
// the user's language; the returned error is for logging only.
func (i *Interactor) Process(ctx context.Context, req Request) error {
	lang := req.Lang

	// Daily quota. Storage failures fail open so a broken database does
	// not silence the bot.
	if i.cfg.EnableDailyLimit && i.store != nil {
		allowed, _, err := i.store.ConsumeQuotaOrReject(req.UserID, i.cfg.DailyChatLimit)
		if err != nil {
			log.Printf("quota check failed for user %d: %v", req.UserID, err)
		} else if !allowed {
			text := i.tr(lang, "chat_limit_reached", map[string]string{
				"limit_count": strconv.Itoa(i.cfg.DailyChatLimit),
			})
			_, _ = i.transport.SendMessage(req.ChatID, text, nil)
			return nil
		}
	}

	if !i.cfg.EnableGemini || i.provider == nil {
		_, _ = i.transport.SendMessage(req.ChatID, i.tr(lang, "ai_feature_disabled", nil), nil)
		return nil
	}
	if i.cfg.GeminiAPIKey == "" {
		_, _ = i.transport.SendMessage(req.ChatID, i.tr(lang, "gemini_api_key_not_configured", nil), nil)
		return nil
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = i.defaultPrompt(lang, req.Media)
	}
	if prompt == "" && len(req.Media) == 0 {
		_, _ = i.transport.SendMessage(req.ChatID, i.tr(lang, "gemini_no_content_to_send", nil), nil)
		return nil
	}

	noticeID := i.sendProcessingNotice(req.ChatID, lang, req.Media)

	var history []db.Turn
	if i.cfg.EnableHistory && i.store != nil {
		var err error
		history, err = i.store.RecentHistory(req.UserID, i.cfg.HistoryWindow)
		if err != nil {
			log.Printf("history fetch failed for user %d: %v", req.UserID, err)
			history = nil
		}
	}

	response, genErr := i.provider.Generate(ctx, gemini.Request{
		ModelID: req.ModelID,
		Prompt:  prompt,
		History: toProviderHistory(history),
		Media:   toProviderMedia(req.Media),
	})

	if noticeID != 0 {
		if err := i.transport.DeleteMessage(req.ChatID, noticeID); err != nil {
			log.Printf("failed to delete processing notice in chat %d: %v", req.ChatID, err)
		}
	}

	if genErr != nil {
		text := i.errorReply(lang, genErr)
		_, _ = i.transport.SendMessage(req.ChatID, text, nil)
		return fmt.Errorf("generation failed for user %d: %w", req.UserID, genErr)
	}

	// A reply that matches an error template is relayed verbatim as
	// plain text and never enters the history.
	if i.classifier != nil {
		if _, isError := i.classifier.Classify(response); isError {
			_, _ = i.transport.SendMessage(req.ChatID, response, nil)
			return nil
		}
	}

	if i.cfg.EnableHistory && i.store != nil {
		userTurn := historyUserContent(prompt, req.Media)
		if err := i.store.AppendHistory(req.UserID, db.RoleUser, userTurn); err != nil {
			log.Printf("failed to persist user turn for %d: %v", req.UserID, err)
		}
		if err := i.store.AppendHistory(req.UserID, db.RoleModel, response); err != nil {
			log.Printf("failed to persist model turn for %d: %v", req.UserID, err)
		}
	}

	return i.deliver(req.ChatID, lang, response, req.Message)
}

// defaultPrompt synthesizes a prompt for media sent without a caption.
func (i *Interactor) defaultPrompt(lang string, media []MediaItem) string {
	for _, m := range media {
		switch m.Kind {
		case MediaDocument:
			return i.tr(lang, "default_document_prompt_summarize", nil)
		case MediaAudio:
			return i.tr(lang, "default_audio_prompt_describe", nil)
		}
	}
	if len(media) > 0 {
		return i.tr(lang, "default_image_prompt", nil)
	}
	return ""
}

// sendProcessingNotice posts a transient status message. Documents win
// over audio, audio over images, images over plain text.
func (i *Interactor) sendProcessingNotice(chatID int64, lang string, media []MediaItem) int64 {
	key := "gemini_processing"
	hasImage := false
	for _, m := range media {
		switch m.Kind {
		case MediaDocument:
			key = "processing_document_prompt"
		case MediaAudio:
			if key != "processing_document_prompt" {
				key = "processing_audio_prompt"
			}
		case MediaImage:
			hasImage = true
		}
	}
	if key == "gemini_processing" && hasImage {
		key = "processing_image_prompt"
	}

	id, err := i.transport.SendMessage(chatID, i.tr(lang, key, nil), nil)
	if err != nil {
		log.Printf("failed to send processing notice in chat %d: %v", chatID, err)
		return 0
	}
	return id
}

// errorReply maps a provider failure to its localized template.
func (i *Interactor) errorReply(lang string, err error) string {
	var blocked *gemini.BlockedError
	if errors.As(err, &blocked) {
		return i.tr(lang, "gemini_request_blocked", map[string]string{
			"reasons": strings.Join(blocked.Reasons, ", "),
		})
	}
	var notFound *gemini.ModelNotFoundError
	if errors.As(err, &notFound) {
		return i.tr(lang, "gemini_model_not_found", map[string]string{
			"model_id": notFound.ModelID,
		})
	}
	if errors.Is(err, gemini.ErrNoValidResponse) {
		return i.tr(lang, "gemini_no_valid_response", nil)
	}
	var unavailable *gemini.UnavailableError
	if errors.As(err, &unavailable) {
		return i.tr(lang, "gemini_error_contacting", map[string]string{
			"error_message": unavailable.Err.Error(),
		})
	}
	return i.tr(lang, "gemini_error_contacting", map[string]string{
		"error_message": err.Error(),
	})
}

// deliver splits the response into chunks and sends them in order. The
// first chunk replies to the triggering message; each chunk is sent as
// Markdown with delimiters rebalanced per chunk, falling back to the
// unmodified plain text when Telegram rejects the formatting.
func (i *Interactor) deliver(chatID int64, lang, response string, trigger *telegram.Message) error {
	chunks := textsplit.Split(response, i.cfg.MaxMessageLength)
	if len(chunks) == 0 {
		_, _ = i.transport.SendMessage(chatID, i.tr(lang, "gemini_empty_response", nil), nil)
		return nil
	}

	delivery := newChunkDelivery(i.replyTo(trigger))
	for idx, chunk := range chunks {
		if idx > 0 && i.cfg.ChunkSendDelay > 0 {
			time.Sleep(i.cfg.ChunkSendDelay)
		}

		_, err := i.transport.SendMessage(chatID, textsplit.Rebalance(chunk), delivery.options("Markdown"))
		if err != nil && telegram.IsFormattingRejected(err) {
			_, err = i.transport.SendMessage(chatID, chunk, delivery.options(""))
		}
		if err != nil {
			_, _ = i.transport.SendMessage(chatID, i.tr(lang, "gemini_error_sending_response", nil), nil)
			return fmt.Errorf("failed to deliver chunk %d/%d in chat %d: %w", idx+1, len(chunks), chatID, err)
		}
		delivery.advance()
	}
	return nil
}

// historyUserContent is what gets persisted for the user's turn: the
// prompt followed by one media placeholder, images winning over audio
// over documents.
func historyUserContent(prompt string, media []MediaItem) string {
	images := 0
	hasAudio := false
	hasDocument := false
	for _, m := range media {
		switch m.Kind {
		case MediaImage:
			images++
		case MediaAudio:
			hasAudio = true
		case MediaDocument:
			hasDocument = true
		}
	}

	switch {
	case images > 0:
		return strings.TrimSpace(fmt.Sprintf("%s [%d image(s) processed]", prompt, images))
	case hasAudio:
		return strings.TrimSpace(prompt + " [audio processed]")
	case hasDocument:
		return strings.TrimSpace(prompt + " [document processed]")
	}
	return prompt
}

func toProviderHistory(turns []db.Turn) []gemini.Turn {
	if len(turns) == 0 {
		return nil
	}
	out := make([]gemini.Turn, len(turns))
	for i, t := range turns {
		out[i] = gemini.Turn{Role: t.Role, Content: t.Content}
	}
	return out
}

func toProviderMedia(items []MediaItem) []gemini.MediaPart {
	if len(items) == 0 {
		return nil
	}
	out := make([]gemini.MediaPart, len(items))
	for i, m := range items {
		out[i] = gemini.MediaPart{Data: m.Data, MIMEType: m.MIMEType}
	}
	return out
}
