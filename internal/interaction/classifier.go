package interaction

import "github.com/prasetyawidi/gemgram/internal/i18n"

// ErrorKind identifies which error template a reply text matches.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorBlocked
	ErrorModelNotFound
	ErrorContacting
	ErrorNoValidResponse
	ErrorEmptyResponse
	ErrorNotConfigured
	ErrorFeatureDisabled
	ErrorNoContent
	ErrorUnsupportedMedia
	ErrorMediaTooLarge
	ErrorMediaProcessing
)

// parameterizedTemplates maps localized error templates that carry
// placeholders to their kind. Each is indexed twice: once rendered with
// "..." stand-ins and once unrendered, in case a translation drops the
// placeholder.
var parameterizedTemplates = map[string]ErrorKind{
	"gemini_request_blocked":            ErrorBlocked,
	"gemini_model_not_found":            ErrorModelNotFound,
	"gemini_error_contacting":           ErrorContacting,
	"audio_format_not_supported_gemini": ErrorUnsupportedMedia,
	"document_format_not_supported":     ErrorUnsupportedMedia,
	"audio_too_large":                   ErrorMediaTooLarge,
	"document_too_large":                ErrorMediaTooLarge,
}

// plainTemplates maps the placeholder-free error templates to their kind.
var plainTemplates = map[string]ErrorKind{
	"ai_feature_disabled":            ErrorFeatureDisabled,
	"gemini_api_key_not_configured":  ErrorNotConfigured,
	"gemini_no_content_to_send":      ErrorNoContent,
	"gemini_no_valid_response":       ErrorNoValidResponse,
	"gemini_empty_response":          ErrorEmptyResponse,
	"error_processing_audio_data":    ErrorMediaProcessing,
	"error_determining_audio_mime":   ErrorMediaProcessing,
	"error_processing_document_data": ErrorMediaProcessing,
}

var templateStandins = map[string]string{
	"reasons":       "...",
	"model_id":      "...",
	"error_message": "...",
	"mime_type":     "...",
	"max_size_mb":   "...",
}

// Classifier recognizes reply texts that are rendered error templates
// rather than model output. Such replies are sent as plain text and
// kept out of the conversation history.
type Classifier struct {
	rendered map[string]ErrorKind
}

// NewClassifier renders every error template in every language and
// indexes the results for exact-match lookup.
func NewClassifier(table *i18n.Table, langs []string) *Classifier {
	rendered := make(map[string]ErrorKind)
	for key, kind := range parameterizedTemplates {
		for _, lang := range langs {
			rendered[table.Translate(key, lang, templateStandins)] = kind
			rendered[table.Translate(key, lang, nil)] = kind
		}
	}
	for key, kind := range plainTemplates {
		for _, lang := range langs {
			rendered[table.Translate(key, lang, nil)] = kind
		}
	}
	return &Classifier{rendered: rendered}
}

// Classify reports whether text is a known error template.
func (c *Classifier) Classify(text string) (ErrorKind, bool) {
	kind, ok := c.rendered[text]
	return kind, ok
}
