package interaction

import (
	"context"
	"strings"
	"testing"

	"github.com/prasetyawidi/gemgram/internal/config"
	"github.com/prasetyawidi/gemgram/internal/db"
	"github.com/prasetyawidi/gemgram/internal/gemini"
	"github.com/prasetyawidi/gemgram/internal/i18n"
	"github.com/prasetyawidi/gemgram/internal/telegram"
)

type sentMessage struct {
	ChatID int64
	Text   string
	Opts   *telegram.SendOptions
}

type fakeTransport struct {
	sent           []sentMessage
	deleted        []int64
	rejectMarkdown bool
	nextID         int64
}

func (f *fakeTransport) SendMessage(chatID int64, text string, opts *telegram.SendOptions) (int64, error) {
	if f.rejectMarkdown && opts != nil && opts.ParseMode == "Markdown" {
		return 0, &telegram.APIError{Code: 400, Description: "Bad Request: can't parse entities"}
	}
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text, Opts: opts})
	f.nextID++
	return f.nextID, nil
}

func (f *fakeTransport) DeleteMessage(chatID, messageID int64) error {
	f.deleted = append(f.deleted, messageID)
	return nil
}

type fakeProvider struct {
	response string
	err      error
	calls    int
	lastReq  gemini.Request
}

func (f *fakeProvider) Generate(_ context.Context, req gemini.Request) (string, error) {
	f.calls++
	f.lastReq = req
	return f.response, f.err
}

type appendedTurn struct {
	Role    string
	Content string
}

type fakeStore struct {
	allowed   bool
	remaining int
	quotaErr  error
	history   []db.Turn
	appended  []appendedTurn
}

func (f *fakeStore) AppendHistory(userID int64, role, content string) error {
	f.appended = append(f.appended, appendedTurn{Role: role, Content: content})
	return nil
}

func (f *fakeStore) RecentHistory(userID int64, limit int) ([]db.Turn, error) {
	return f.history, nil
}

func (f *fakeStore) ConsumeQuotaOrReject(userID int64, dailyLimit int) (bool, int, error) {
	return f.allowed, f.remaining, f.quotaErr
}

func testTable(t *testing.T) *i18n.Table {
	t.Helper()
	table, err := i18n.Load("en", []string{"en", "id", "ru"})
	if err != nil {
		t.Fatal(err)
	}
	return table
}

func testConfig() config.Config {
	return config.Config{
		GeminiAPIKey:     "test-key",
		EnableGemini:     true,
		EnableHistory:    true,
		EnableDailyLimit: true,
		DailyChatLimit:   20,
		HistoryWindow:    10,
		MaxMessageLength: 4000,
		ChunkSendDelay:   0,
	}
}

func testInteractor(t *testing.T, transport *fakeTransport, provider *fakeProvider, store *fakeStore, cfg config.Config) *Interactor {
	t.Helper()
	table := testTable(t)
	classifier := NewClassifier(table, []string{"en", "id", "ru"})
	return New(transport, provider, store, table, classifier, cfg, 999)
}

func textRequest(text string) Request {
	return Request{
		UserID:  10,
		ChatID:  10,
		Lang:    "en",
		ModelID: "gemini-2.0-flash",
		Prompt:  text,
		Message: &telegram.Message{
			MessageID: 5,
			From:      &telegram.User{ID: 10},
			Chat:      telegram.Chat{ID: 10, Type: "private"},
			Text:      text,
		},
	}
}

func TestProcess_TextExchange(t *testing.T) {
	transport := &fakeTransport{}
	provider := &fakeProvider{response: "Hello there!"}
	store := &fakeStore{allowed: true, remaining: 19}

	in := testInteractor(t, transport, provider, store, testConfig())
	if err := in.Process(context.Background(), textRequest("hi")); err != nil {
		t.Fatal(err)
	}

	if provider.calls != 1 {
		t.Fatalf("expected one provider call, got %d", provider.calls)
	}
	if provider.lastReq.Prompt != "hi" {
		t.Errorf("wrong prompt: %q", provider.lastReq.Prompt)
	}

	// Processing notice then the answer; the notice was deleted.
	if len(transport.sent) != 2 {
		t.Fatalf("expected 2 sends, got %d: %+v", len(transport.sent), transport.sent)
	}
	if len(transport.deleted) != 1 || transport.deleted[0] != 1 {
		t.Errorf("processing notice not deleted: %v", transport.deleted)
	}

	answer := transport.sent[1]
	if answer.Text != "Hello there!" {
		t.Errorf("wrong answer text: %q", answer.Text)
	}
	if answer.Opts == nil || answer.Opts.ParseMode != "Markdown" {
		t.Error("answer should be sent as Markdown")
	}
	if answer.Opts.ReplyToMessageID != 5 {
		t.Errorf("first chunk should reply to the trigger, got %d", answer.Opts.ReplyToMessageID)
	}

	if len(store.appended) != 2 {
		t.Fatalf("expected 2 persisted turns, got %d", len(store.appended))
	}
	if store.appended[0].Role != db.RoleUser || store.appended[0].Content != "hi" {
		t.Errorf("wrong user turn: %+v", store.appended[0])
	}
	if store.appended[1].Role != db.RoleModel || store.appended[1].Content != "Hello there!" {
		t.Errorf("wrong model turn: %+v", store.appended[1])
	}
}

func TestProcess_QuotaRejected(t *testing.T) {
	transport := &fakeTransport{}
	provider := &fakeProvider{response: "should not be called"}
	store := &fakeStore{allowed: false}

	in := testInteractor(t, transport, provider, store, testConfig())
	if err := in.Process(context.Background(), textRequest("hi")); err != nil {
		t.Fatal(err)
	}

	if provider.calls != 0 {
		t.Error("provider must not be called past the quota")
	}
	if len(transport.sent) != 1 || !strings.Contains(transport.sent[0].Text, "20") {
		t.Errorf("expected limit message mentioning the limit, got %+v", transport.sent)
	}
	if len(store.appended) != 0 {
		t.Error("rejected exchange must not be persisted")
	}
}

func TestProcess_QuotaErrorFailsOpen(t *testing.T) {
	transport := &fakeTransport{}
	provider := &fakeProvider{response: "ok"}
	store := &fakeStore{quotaErr: context.DeadlineExceeded}

	in := testInteractor(t, transport, provider, store, testConfig())
	if err := in.Process(context.Background(), textRequest("hi")); err != nil {
		t.Fatal(err)
	}
	if provider.calls != 1 {
		t.Error("quota storage failure should not block the exchange")
	}
}

func TestProcess_LongResponseChunked(t *testing.T) {
	transport := &fakeTransport{}
	long := strings.Repeat("word ", 1800) // ~9000 chars
	provider := &fakeProvider{response: long}
	store := &fakeStore{allowed: true}

	in := testInteractor(t, transport, provider, store, testConfig())
	if err := in.Process(context.Background(), textRequest("tell me everything")); err != nil {
		t.Fatal(err)
	}

	// notice + 3 chunks
	chunks := transport.sent[1:]
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].Opts.ReplyToMessageID != 5 {
		t.Error("first chunk should reply to the trigger")
	}
	for idx, c := range chunks[1:] {
		if c.Opts.ReplyToMessageID != 0 {
			t.Errorf("follow-up chunk %d must not be a reply", idx+2)
		}
	}
}

func TestProcess_NoReplyWhenAnsweringOwnMessage(t *testing.T) {
	transport := &fakeTransport{}
	provider := &fakeProvider{response: "ok"}
	store := &fakeStore{allowed: true}

	req := textRequest("hi")
	req.Message.ReplyToMessage = &telegram.Message{
		MessageID: 2,
		From:      &telegram.User{ID: 999, IsBot: true},
	}

	in := testInteractor(t, transport, provider, store, testConfig())
	if err := in.Process(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	answer := transport.sent[len(transport.sent)-1]
	if answer.Opts.ReplyToMessageID != 0 {
		t.Error("answer to a reply-to-bot message must not itself be a reply")
	}
}

func TestProcess_FormattingFallback(t *testing.T) {
	transport := &fakeTransport{rejectMarkdown: true}
	provider := &fakeProvider{response: "*broken markdown"}
	store := &fakeStore{allowed: true}

	in := testInteractor(t, transport, provider, store, testConfig())
	if err := in.Process(context.Background(), textRequest("hi")); err != nil {
		t.Fatal(err)
	}

	answer := transport.sent[len(transport.sent)-1]
	if answer.Opts != nil && answer.Opts.ParseMode != "" {
		t.Error("fallback send must be plain text")
	}
	// The fallback carries the original chunk, not the rebalanced one.
	if answer.Text != "*broken markdown" {
		t.Errorf("fallback should send the original chunk, got %q", answer.Text)
	}
}

func TestProcess_ProviderErrorSendsLocalizedReply(t *testing.T) {
	transport := &fakeTransport{}
	provider := &fakeProvider{err: &gemini.ModelNotFoundError{ModelID: "gemini-9.9-pro", Err: context.DeadlineExceeded}}
	store := &fakeStore{allowed: true}

	in := testInteractor(t, transport, provider, store, testConfig())
	err := in.Process(context.Background(), textRequest("hi"))
	if err == nil {
		t.Fatal("expected error to be surfaced for logging")
	}

	answer := transport.sent[len(transport.sent)-1]
	if !strings.Contains(answer.Text, "gemini-9.9-pro") {
		t.Errorf("error reply should name the model, got %q", answer.Text)
	}
	if answer.Opts != nil && answer.Opts.ParseMode != "" {
		t.Error("error reply must be plain text")
	}
	if len(store.appended) != 0 {
		t.Error("failed exchange must not be persisted")
	}
}

func TestProcess_ErrorTemplateResponseNotPersisted(t *testing.T) {
	table := testTable(t)
	templateText := table.Translate("gemini_no_valid_response", "en", nil)

	transport := &fakeTransport{}
	provider := &fakeProvider{response: templateText}
	store := &fakeStore{allowed: true}

	in := testInteractor(t, transport, provider, store, testConfig())
	if err := in.Process(context.Background(), textRequest("hi")); err != nil {
		t.Fatal(err)
	}

	answer := transport.sent[len(transport.sent)-1]
	if answer.Text != templateText {
		t.Errorf("template reply should be relayed verbatim, got %q", answer.Text)
	}
	if answer.Opts != nil && answer.Opts.ParseMode != "" {
		t.Error("template reply must be plain text")
	}
	if len(store.appended) != 0 {
		t.Error("template reply must not enter the history")
	}
}

func TestProcess_MediaPlaceholdersPersisted(t *testing.T) {
	transport := &fakeTransport{}
	provider := &fakeProvider{response: "A cat."}
	store := &fakeStore{allowed: true}

	req := textRequest("")
	req.Media = []MediaItem{
		{Kind: MediaImage, Data: []byte{1}, MIMEType: "image/jpeg"},
		{Kind: MediaImage, Data: []byte{2}, MIMEType: "image/jpeg"},
	}

	in := testInteractor(t, transport, provider, store, testConfig())
	if err := in.Process(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	if provider.lastReq.Prompt == "" {
		t.Error("a default prompt should be synthesized for captionless media")
	}
	if len(provider.lastReq.Media) != 2 {
		t.Errorf("media not forwarded: %d", len(provider.lastReq.Media))
	}
	if len(store.appended) == 0 || !strings.HasSuffix(store.appended[0].Content, " [2 image(s) processed]") {
		t.Errorf("user turn should end with the image placeholder: %+v", store.appended)
	}
}

func TestProcess_ProcessingNoticePrecedence(t *testing.T) {
	table := testTable(t)
	cases := []struct {
		name  string
		media []MediaItem
		key   string
	}{
		{"document wins", []MediaItem{{Kind: MediaImage}, {Kind: MediaAudio}, {Kind: MediaDocument}}, "processing_document_prompt"},
		{"audio over image", []MediaItem{{Kind: MediaImage}, {Kind: MediaAudio}}, "processing_audio_prompt"},
		{"image", []MediaItem{{Kind: MediaImage}}, "processing_image_prompt"},
		{"text", nil, "gemini_processing"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			transport := &fakeTransport{}
			provider := &fakeProvider{response: "ok"}
			in := testInteractor(t, transport, provider, &fakeStore{allowed: true}, testConfig())

			req := textRequest("prompt")
			req.Media = tc.media
			if err := in.Process(context.Background(), req); err != nil {
				t.Fatal(err)
			}
			want := table.Translate(tc.key, "en", nil)
			if transport.sent[0].Text != want {
				t.Errorf("expected notice %q, got %q", want, transport.sent[0].Text)
			}
		})
	}
}

func TestProcess_NoContent(t *testing.T) {
	transport := &fakeTransport{}
	provider := &fakeProvider{response: "ok"}
	in := testInteractor(t, transport, provider, &fakeStore{allowed: true}, testConfig())

	if err := in.Process(context.Background(), textRequest("   ")); err != nil {
		t.Fatal(err)
	}
	if provider.calls != 0 {
		t.Error("provider must not be called without content")
	}
	want := testTable(t).Translate("gemini_no_content_to_send", "en", nil)
	if transport.sent[0].Text != want {
		t.Errorf("expected no-content reply, got %q", transport.sent[0].Text)
	}
}

func TestProcess_GeminiDisabled(t *testing.T) {
	transport := &fakeTransport{}
	cfg := testConfig()
	cfg.EnableGemini = false

	in := testInteractor(t, transport, &fakeProvider{}, &fakeStore{allowed: true}, cfg)
	if err := in.Process(context.Background(), textRequest("hi")); err != nil {
		t.Fatal(err)
	}
	want := testTable(t).Translate("ai_feature_disabled", "en", nil)
	if transport.sent[0].Text != want {
		t.Errorf("expected disabled reply, got %q", transport.sent[0].Text)
	}
}

func TestClassifier_MatchesRenderedTemplates(t *testing.T) {
	table := testTable(t)
	c := NewClassifier(table, []string{"en", "id", "ru"})

	parameterized := map[string]ErrorKind{
		"gemini_request_blocked":            ErrorBlocked,
		"gemini_model_not_found":            ErrorModelNotFound,
		"gemini_error_contacting":           ErrorContacting,
		"audio_format_not_supported_gemini": ErrorUnsupportedMedia,
		"document_format_not_supported":     ErrorUnsupportedMedia,
		"audio_too_large":                   ErrorMediaTooLarge,
		"document_too_large":                ErrorMediaTooLarge,
	}
	standins := map[string]string{
		"reasons": "...", "model_id": "...", "error_message": "...",
		"mime_type": "...", "max_size_mb": "...",
	}
	for _, lang := range []string{"en", "id", "ru"} {
		for key, want := range parameterized {
			// Both the "..."-substituted and the raw rendition match.
			for _, params := range []map[string]string{standins, nil} {
				text := table.Translate(key, lang, params)
				kind, ok := c.Classify(text)
				if !ok || kind != want {
					t.Errorf("lang %s key %s params %v: got (%v, %v), want %v", lang, key, params, kind, ok, want)
				}
			}
		}
		for key, want := range map[string]ErrorKind{
			"ai_feature_disabled":            ErrorFeatureDisabled,
			"gemini_no_content_to_send":      ErrorNoContent,
			"error_processing_audio_data":    ErrorMediaProcessing,
			"error_determining_audio_mime":   ErrorMediaProcessing,
			"error_processing_document_data": ErrorMediaProcessing,
			"gemini_api_key_not_configured":  ErrorNotConfigured,
		} {
			kind, ok := c.Classify(table.Translate(key, lang, nil))
			if !ok || kind != want {
				t.Errorf("lang %s key %s: got (%v, %v), want %v", lang, key, kind, ok, want)
			}
		}
	}

	if _, ok := c.Classify("Just a normal answer."); ok {
		t.Error("normal text must not classify as an error")
	}
}

func TestProcess_MediaErrorTemplateResponseRelayedPlain(t *testing.T) {
	table := testTable(t)
	templateText := table.Translate("audio_too_large", "en", map[string]string{"max_size_mb": "..."})

	transport := &fakeTransport{}
	provider := &fakeProvider{response: templateText}
	store := &fakeStore{allowed: true}

	in := testInteractor(t, transport, provider, store, testConfig())
	if err := in.Process(context.Background(), textRequest("hi")); err != nil {
		t.Fatal(err)
	}

	answer := transport.sent[len(transport.sent)-1]
	if answer.Text != templateText {
		t.Errorf("template reply should be relayed verbatim, got %q", answer.Text)
	}
	if answer.Opts != nil && answer.Opts.ParseMode != "" {
		t.Error("template reply must be plain text")
	}
	if len(store.appended) != 0 {
		t.Error("template reply must not enter the history")
	}
}

func TestHistoryUserContent(t *testing.T) {
	cases := []struct {
		prompt string
		media  []MediaItem
		want   string
	}{
		// Images win over audio over documents; only one placeholder.
		{"what is this", []MediaItem{{Kind: MediaImage}, {Kind: MediaAudio}}, "what is this [1 image(s) processed]"},
		{"describe", []MediaItem{{Kind: MediaImage}, {Kind: MediaImage}}, "describe [2 image(s) processed]"},
		{"listen", []MediaItem{{Kind: MediaAudio}, {Kind: MediaDocument}}, "listen [audio processed]"},
		{"summarize", []MediaItem{{Kind: MediaDocument}}, "summarize [document processed]"},
		{"hi", nil, "hi"},
	}
	for _, tc := range cases {
		if got := historyUserContent(tc.prompt, tc.media); got != tc.want {
			t.Errorf("historyUserContent(%q, %d items) = %q, want %q", tc.prompt, len(tc.media), got, tc.want)
		}
	}
}
