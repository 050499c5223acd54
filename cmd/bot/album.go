package main

import (
	"log"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/prasetyawidi/gemgram/internal/album"
	"github.com/prasetyawidi/gemgram/internal/interaction"
	"github.com/prasetyawidi/gemgram/internal/telegram"
)

// onAlbum processes one completed media group: download every photo in
// parallel, drop failures, and run a single exchange over the survivors.
func (b *Bot) onAlbum(batch album.Batch) {
	if batch.Anchor == nil || batch.Anchor.From == nil {
		return
	}
	anchor := batch.Anchor
	lang := b.userLang(anchor.From)

	if batch.Truncated {
		b.send(anchor.Chat.ID, b.tr(lang, "album_image_limit_notice", map[string]string{
			"max_images": strconv.Itoa(b.cfg.MaxImagesPerAlbum),
		}), nil)
	}

	// Per-index slots keep the album order stable regardless of which
	// download finishes first.
	slots := make([]interaction.MediaItem, len(batch.Messages))
	var g errgroup.Group
	for i, msg := range batch.Messages {
		i, msg := i, msg
		g.Go(func() error {
			photo := msg.LargestPhoto()
			if photo == nil {
				return nil
			}
			data, filePath, err := b.client.DownloadFile(photo.FileID)
			if err != nil {
				log.Printf("[bot] album photo download failed in chat %d: %v", anchor.Chat.ID, err)
				return nil
			}
			slots[i] = interaction.MediaItem{
				Kind:     interaction.MediaImage,
				Data:     data,
				MIMEType: photoMIMEType(filePath),
			}
			return nil
		})
	}
	_ = g.Wait()

	var media []interaction.MediaItem
	for _, item := range slots {
		if item.Data != nil {
			media = append(media, item)
		}
	}
	if len(media) == 0 {
		// The truncation notice already told the user something went
		// sideways with this album.
		if !batch.Truncated {
			b.send(anchor.Chat.ID, b.tr(lang, "error_downloading_image", nil), nil)
		}
		return
	}

	b.processAI(anchor, albumCaption(batch.Messages), media)
}

// albumCaption returns the first non-empty caption in the group; the
// caption can arrive on any message of the group.
func albumCaption(messages []*telegram.Message) string {
	for _, msg := range messages {
		if msg.Caption != "" {
			return strings.TrimSpace(msg.Caption)
		}
	}
	return ""
}
