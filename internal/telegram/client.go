// Package telegram is a minimal Telegram Bot API client covering the
// methods the bot uses: long polling, message send/edit/delete, inline
// keyboards, and file downloads.
package telegram

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to the Telegram Bot API over HTTP.
type Client struct {
	apiBase    string
	fileBase   string
	httpClient *http.Client
}

// NewClient creates a client for the given bot API base URL
// (e.g. "https://api.telegram.org/bot<token>") and file base URL
// (e.g. "https://api.telegram.org/file/bot<token>").
func NewClient(apiBase, fileBase string, requestTimeout time.Duration) *Client {
	return &Client{
		apiBase:  apiBase,
		fileBase: fileBase,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// Response is the generic Telegram API response wrapper.
type Response struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// APIError is a non-OK response from the Bot API.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// IsFormattingRejected reports whether err is the Bot API rejecting a
// message because its formatting entities could not be parsed. Callers
// retry such sends without a parse mode.
func IsFormattingRejected(err error) bool {
	apiErr, ok := err.(*APIError)
	if !ok || apiErr.Code != 400 {
		return false
	}
	desc := strings.ToLower(apiErr.Description)
	return strings.Contains(desc, "can't parse entities") ||
		strings.Contains(desc, "can't parse message text")
}

// GetMe returns the bot's own account.
func (c *Client) GetMe() (*User, error) {
	result, err := c.call("getMe", nil)
	if err != nil {
		return nil, err
	}
	var me User
	if err := json.Unmarshal(result, &me); err != nil {
		return nil, fmt.Errorf("failed to parse getMe result: %w", err)
	}
	return &me, nil
}

// GetUpdates long-polls for new updates starting at offset.
func (c *Client) GetUpdates(offset int64, timeout int) ([]Update, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.Itoa(timeout))

	resp, err := c.httpClient.Get(c.apiBase + "/getUpdates?" + params.Encode())
	if err != nil {
		return nil, fmt.Errorf("telegram getUpdates request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read getUpdates response: %w", err)
	}

	var tgResp Response
	if err := json.Unmarshal(body, &tgResp); err != nil {
		return nil, fmt.Errorf("failed to parse getUpdates response: %w", err)
	}
	if !tgResp.OK {
		return nil, &APIError{Code: tgResp.ErrorCode, Description: tgResp.Description}
	}

	var updates []Update
	if err := json.Unmarshal(tgResp.Result, &updates); err != nil {
		return nil, fmt.Errorf("failed to parse getUpdates result: %w", err)
	}
	return updates, nil
}

// SendOptions are the optional knobs of sendMessage.
type SendOptions struct {
	ParseMode             string
	ReplyToMessageID      int64
	ReplyMarkup           *InlineKeyboardMarkup
	DisableWebPagePreview bool
}

type sendMessageRequest struct {
	ChatID                int64                 `json:"chat_id"`
	Text                  string                `json:"text"`
	ParseMode             string                `json:"parse_mode,omitempty"`
	ReplyToMessageID      int64                 `json:"reply_to_message_id,omitempty"`
	ReplyMarkup           *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
	DisableWebPagePreview bool                  `json:"disable_web_page_preview,omitempty"`
}

// SendMessage sends a text message and returns the sent message's id.
func (c *Client) SendMessage(chatID int64, text string, opts *SendOptions) (int64, error) {
	req := sendMessageRequest{ChatID: chatID, Text: text}
	if opts != nil {
		req.ParseMode = opts.ParseMode
		req.ReplyToMessageID = opts.ReplyToMessageID
		req.ReplyMarkup = opts.ReplyMarkup
		req.DisableWebPagePreview = opts.DisableWebPagePreview
	}

	result, err := c.call("sendMessage", req)
	if err != nil {
		return 0, err
	}
	var sent Message
	if err := json.Unmarshal(result, &sent); err != nil {
		return 0, fmt.Errorf("failed to parse sendMessage result: %w", err)
	}
	return sent.MessageID, nil
}

type editMessageRequest struct {
	ChatID      int64                 `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	Text        string                `json:"text"`
	ParseMode   string                `json:"parse_mode,omitempty"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// EditMessageText replaces the text of an already sent message.
func (c *Client) EditMessageText(chatID, messageID int64, text string, markup *InlineKeyboardMarkup) error {
	_, err := c.call("editMessageText", editMessageRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ReplyMarkup: markup,
	})
	return err
}

type deleteMessageRequest struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

// DeleteMessage deletes a message the bot sent.
func (c *Client) DeleteMessage(chatID, messageID int64) error {
	_, err := c.call("deleteMessage", deleteMessageRequest{ChatID: chatID, MessageID: messageID})
	return err
}

type answerCallbackRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
}

// AnswerCallbackQuery acknowledges a button press so the client stops
// showing a loading spinner.
func (c *Client) AnswerCallbackQuery(callbackID string) error {
	if strings.TrimSpace(callbackID) == "" {
		return nil
	}
	_, err := c.call("answerCallbackQuery", answerCallbackRequest{CallbackQueryID: callbackID})
	return err
}

// DownloadFile resolves a file id via getFile and downloads the bytes
// from the file API. It returns the content and the server-side path
// (useful for inferring the format from its extension).
func (c *Client) DownloadFile(fileID string) ([]byte, string, error) {
	result, err := c.call("getFile", map[string]string{"file_id": fileID})
	if err != nil {
		return nil, "", err
	}
	var file File
	if err := json.Unmarshal(result, &file); err != nil {
		return nil, "", fmt.Errorf("failed to parse getFile result: %w", err)
	}
	if file.FilePath == "" {
		return nil, "", fmt.Errorf("getFile returned no path for file %s", fileID)
	}

	resp, err := c.httpClient.Get(c.fileBase + "/" + file.FilePath)
	if err != nil {
		return nil, "", fmt.Errorf("telegram file download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("telegram file download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read downloaded file: %w", err)
	}
	return data, file.FilePath, nil
}

// call posts a JSON request to an API method and returns the raw result.
func (c *Client) call(method string, payload any) (json.RawMessage, error) {
	var bodyReader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
		}
		bodyReader = strings.NewReader(string(encoded))
	} else {
		bodyReader = strings.NewReader("{}")
	}

	resp, err := c.httpClient.Post(c.apiBase+"/"+method, "application/json", bodyReader)
	if err != nil {
		return nil, fmt.Errorf("telegram %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var tgResp Response
	if err := json.Unmarshal(body, &tgResp); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", method, err)
	}
	if !tgResp.OK {
		return nil, &APIError{Code: tgResp.ErrorCode, Description: tgResp.Description}
	}
	return tgResp.Result, nil
}
