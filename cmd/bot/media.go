package main

import (
	"log"
	"path"
	"strconv"
	"strings"

	"github.com/prasetyawidi/gemgram/internal/config"
	"github.com/prasetyawidi/gemgram/internal/interaction"
	"github.com/prasetyawidi/gemgram/internal/telegram"
)

// mediaFromMessage downloads whatever media src carries, applying the
// feature gates and validation rules. A message without media returns
// (nil, true). When the media is unusable the user is informed in chatID
// and (nil, false) is returned so the caller aborts.
func (b *Bot) mediaFromMessage(src *telegram.Message, lang string, chatID int64) ([]interaction.MediaItem, bool) {
	if src == nil {
		return nil, true
	}
	switch {
	case len(src.Photo) > 0:
		return b.photoMedia(src, lang, chatID)
	case src.Audio != nil || src.Voice != nil:
		return b.audioMedia(src, lang, chatID)
	case src.Document != nil:
		return b.documentMedia(src, lang, chatID)
	}
	return nil, true
}

func (b *Bot) photoMedia(src *telegram.Message, lang string, chatID int64) ([]interaction.MediaItem, bool) {
	if !b.cfg.EnableImages {
		b.send(chatID, b.tr(lang, "image_understanding_disabled", nil), nil)
		return nil, false
	}

	photo := src.LargestPhoto()
	data, filePath, err := b.client.DownloadFile(photo.FileID)
	if err != nil {
		log.Printf("[bot] photo download failed in chat %d: %v", chatID, err)
		b.send(chatID, b.tr(lang, "error_downloading_image", nil), nil)
		return nil, false
	}
	return []interaction.MediaItem{
		{Kind: interaction.MediaImage, Data: data, MIMEType: photoMIMEType(filePath)},
	}, true
}

func (b *Bot) audioMedia(src *telegram.Message, lang string, chatID int64) ([]interaction.MediaItem, bool) {
	if !b.cfg.EnableAudio {
		b.send(chatID, b.tr(lang, "audio_understanding_disabled", nil), nil)
		return nil, false
	}

	var fileID, fileName, declaredMIME string
	var fileSize int64
	isVoice := false
	switch {
	case src.Voice != nil:
		fileID = src.Voice.FileID
		declaredMIME = src.Voice.MIMEType
		fileSize = src.Voice.FileSize
		isVoice = true
	case src.Audio != nil:
		fileID = src.Audio.FileID
		fileName = src.Audio.FileName
		declaredMIME = src.Audio.MIMEType
		fileSize = src.Audio.FileSize
	}

	if fileSize > b.cfg.MaxAudioBytes {
		b.send(chatID, b.tr(lang, "audio_too_large", map[string]string{
			"max_size_mb": strconv.FormatInt(b.cfg.MaxAudioBytes/(1024*1024), 10),
		}), nil)
		return nil, false
	}

	data, filePath, err := b.client.DownloadFile(fileID)
	if err != nil {
		log.Printf("[bot] audio download failed in chat %d: %v", chatID, err)
		b.send(chatID, b.tr(lang, "error_downloading_audio", nil), nil)
		return nil, false
	}
	if len(data) == 0 {
		b.send(chatID, b.tr(lang, "error_processing_audio_data", nil), nil)
		return nil, false
	}

	mimeType := audioMIMEType(declaredMIME, fileName, filePath, isVoice)
	if mimeType == "" {
		b.send(chatID, b.tr(lang, "error_determining_audio_mime", nil), nil)
		return nil, false
	}
	if !config.SupportedAudioMIMETypes[mimeType] {
		b.send(chatID, b.tr(lang, "audio_format_not_supported_gemini", map[string]string{
			"mime_type": mimeType,
		}), nil)
		return nil, false
	}

	return []interaction.MediaItem{
		{Kind: interaction.MediaAudio, Data: data, MIMEType: mimeType},
	}, true
}

func (b *Bot) documentMedia(src *telegram.Message, lang string, chatID int64) ([]interaction.MediaItem, bool) {
	if !b.cfg.EnableDocuments {
		b.send(chatID, b.tr(lang, "document_understanding_disabled", nil), nil)
		return nil, false
	}

	doc := src.Document
	mimeType := doc.MIMEType
	if mimeType == "" && strings.EqualFold(path.Ext(doc.FileName), ".pdf") {
		mimeType = "application/pdf"
	}
	if !config.SupportedDocumentMIMETypes[mimeType] {
		b.send(chatID, b.tr(lang, "document_format_not_supported", map[string]string{
			"mime_type": mimeType,
		}), nil)
		return nil, false
	}
	if doc.FileSize > b.cfg.MaxDocumentBytes {
		b.send(chatID, b.tr(lang, "document_too_large", map[string]string{
			"max_size_mb": strconv.FormatInt(b.cfg.MaxDocumentBytes/(1024*1024), 10),
		}), nil)
		return nil, false
	}

	data, _, err := b.client.DownloadFile(doc.FileID)
	if err != nil {
		log.Printf("[bot] document download failed in chat %d: %v", chatID, err)
		b.send(chatID, b.tr(lang, "error_downloading_document", nil), nil)
		return nil, false
	}
	if len(data) == 0 {
		b.send(chatID, b.tr(lang, "error_processing_document_data", nil), nil)
		return nil, false
	}

	return []interaction.MediaItem{
		{Kind: interaction.MediaDocument, Data: data, MIMEType: mimeType},
	}, true
}

// handleMedia processes a message carrying its own media, using the
// caption as the prompt.
func (b *Bot) handleMedia(msg *telegram.Message) {
	lang := b.userLang(msg.From)
	media, ok := b.mediaFromMessage(msg, lang, msg.Chat.ID)
	if !ok || len(media) == 0 {
		return
	}
	b.processAI(msg, msg.Caption, media)
}

// photoExtMIMETypes maps photo file extensions to MIME types.
var photoExtMIMETypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

// photoMIMEType infers the photo MIME type from the server path's
// extension, defaulting to JPEG.
func photoMIMEType(filePath string) string {
	if mapped, ok := photoExtMIMETypes[strings.ToLower(path.Ext(filePath))]; ok {
		return mapped
	}
	return "image/jpeg"
}

// extensionMIMETypes maps audio file extensions to MIME types when
// Telegram does not declare one.
var extensionMIMETypes = map[string]string{
	".oga":  "audio/ogg",
	".ogg":  "audio/ogg",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/aac",
	".flac": "audio/flac",
	".aiff": "audio/aiff",
}

// audioMIMEType picks the audio MIME type: the declared type, then the
// file extension (original name first, then the server path), then the
// voice-note default. The provider wants audio/mp3, so audio/mpeg is
// normalized. Returns "" when nothing matches.
func audioMIMEType(declared, fileName, filePath string, isVoice bool) string {
	mimeType := strings.ToLower(strings.TrimSpace(declared))
	if mimeType == "" {
		for _, name := range []string{fileName, filePath} {
			if ext := strings.ToLower(path.Ext(name)); ext != "" {
				if mapped, ok := extensionMIMETypes[ext]; ok {
					mimeType = mapped
					break
				}
			}
		}
	}
	if mimeType == "" && isVoice {
		mimeType = "audio/ogg"
	}
	if mimeType == "audio/mpeg" {
		mimeType = "audio/mp3"
	}
	return mimeType
}
