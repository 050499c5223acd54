// Package gemini wraps the Gemini API behind a small Provider with
// typed errors, so callers can map failures to user-facing replies
// without parsing provider messages.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Turn is one prior conversation turn replayed to the model.
type Turn struct {
	Role    string // "user" or "model"
	Content string
}

// MediaPart is an inline binary attachment (image, audio, document).
type MediaPart struct {
	Data     []byte
	MIMEType string
}

// Request is one generation call.
type Request struct {
	ModelID string
	Prompt  string
	History []Turn
	Media   []MediaPart
}

// ErrNoValidResponse means the model answered but produced no usable
// text candidate.
var ErrNoValidResponse = errors.New("gemini returned no valid response")

// BlockedError means the prompt was rejected by safety filtering.
type BlockedError struct {
	Reasons []string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("gemini request blocked: %s", strings.Join(e.Reasons, ", "))
}

// ModelNotFoundError means the requested model id does not exist or is
// not accessible with the configured key.
type ModelNotFoundError struct {
	ModelID string
	Err     error
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("gemini model %s not found: %v", e.ModelID, e.Err)
}

func (e *ModelNotFoundError) Unwrap() error { return e.Err }

// UnavailableError wraps transport or server-side failures.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("gemini unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Provider calls the Gemini API.
type Provider struct {
	client *genai.Client
	safety []*genai.SafetySetting
}

// NewProvider creates a Provider authenticated with the given API key.
func NewProvider(ctx context.Context, apiKey string) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Provider{
		client: client,
		safety: defaultSafetySettings(),
	}, nil
}

func defaultSafetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, len(categories))
	for i, cat := range categories {
		settings[i] = &genai.SafetySetting{
			Category:  cat,
			Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
		}
	}
	return settings
}

// Generate runs one generation call: replayed history, then the current
// prompt together with any media parts.
func (p *Provider) Generate(ctx context.Context, req Request) (string, error) {
	var contents []*genai.Content
	for _, turn := range req.History {
		role := genai.RoleUser
		if turn.Role == "model" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, genai.Role(role)))
	}

	var parts []*genai.Part
	for _, m := range req.Media {
		parts = append(parts, genai.NewPartFromBytes(m.Data, m.MIMEType))
	}
	if req.Prompt != "" {
		parts = append(parts, genai.NewPartFromText(req.Prompt))
	}
	if len(parts) == 0 {
		return "", ErrNoValidResponse
	}
	contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))

	resp, err := p.client.Models.GenerateContent(ctx, req.ModelID, contents, &genai.GenerateContentConfig{
		SafetySettings: p.safety,
	})
	if err != nil {
		return "", classifyAPIError(req.ModelID, err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", &BlockedError{Reasons: []string{string(resp.PromptFeedback.BlockReason)}}
	}
	if len(resp.Candidates) == 0 {
		return "", ErrNoValidResponse
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason != "" && candidate.FinishReason != genai.FinishReasonStop {
		if candidate.FinishReason == genai.FinishReasonSafety {
			return "", &BlockedError{Reasons: []string{string(candidate.FinishReason)}}
		}
		return "", ErrNoValidResponse
	}
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", ErrNoValidResponse
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		sb.WriteString(part.Text)
	}
	text := sb.String()
	if text == "" {
		return "", ErrNoValidResponse
	}
	return text, nil
}

// classifyAPIError maps raw API failures to the typed error the caller
// turns into a localized reply.
func classifyAPIError(modelID string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "model") &&
		(strings.Contains(msg, "not found") ||
			strings.Contains(msg, "does not exist") ||
			strings.Contains(msg, "permission")) {
		return &ModelNotFoundError{ModelID: modelID, Err: err}
	}
	if strings.Contains(msg, "blocked") {
		return &BlockedError{Reasons: []string{err.Error()}}
	}
	return &UnavailableError{Err: err}
}
