// Command bot runs the Telegram bot: it long-polls for updates and
// relays text, photos, audio and documents to the Gemini API, replying
// in the user's language.
package main

import (
	"context"
	"log"
	"time"

	"github.com/prasetyawidi/gemgram/internal/album"
	"github.com/prasetyawidi/gemgram/internal/config"
	"github.com/prasetyawidi/gemgram/internal/db"
	"github.com/prasetyawidi/gemgram/internal/gemini"
	"github.com/prasetyawidi/gemgram/internal/i18n"
	"github.com/prasetyawidi/gemgram/internal/interaction"
	"github.com/prasetyawidi/gemgram/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[bot] %v", err)
	}

	table, err := i18n.Load(cfg.DefaultLanguage, cfg.Languages())
	if err != nil {
		log.Fatalf("[bot] failed to load translations: %v", err)
	}

	var store *db.Store
	if cfg.EnableDatabase {
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			log.Fatalf("[bot] %v", err)
		}
		defer database.Close()
		if err := db.InitSchema(database); err != nil {
			log.Fatalf("[bot] failed to init schema: %v", err)
		}
		store = &db.Store{DB: database}
	} else {
		log.Printf("[bot] database disabled; preferences and history are in-memory only")
	}

	// Long-poll requests block for up to PollTimeout, so the HTTP
	// timeout needs headroom on top of it.
	client := telegram.NewClient(
		cfg.TelegramAPIBase,
		cfg.TelegramFileBase,
		time.Duration(cfg.PollTimeout+30)*time.Second,
	)

	me, err := client.GetMe()
	if err != nil {
		log.Fatalf("[bot] getMe failed: %v", err)
	}
	log.Printf("[bot] running as @%s (id %d)", me.Username, me.ID)

	var provider interaction.Provider
	if cfg.EnableGemini {
		p, err := gemini.NewProvider(context.Background(), cfg.GeminiAPIKey)
		if err != nil {
			log.Fatalf("[bot] failed to init gemini: %v", err)
		}
		provider = p
	} else {
		log.Printf("[bot] gemini disabled")
	}

	classifier := interaction.NewClassifier(table, cfg.Languages())

	var interactorStore interaction.Store
	if store != nil {
		interactorStore = store
	}
	interactor := interaction.New(client, provider, interactorStore, table, classifier, cfg, me.ID)

	bot := newBot(cfg, client, table, store, interactor, me)
	bot.albums = album.New(cfg.AlbumDebounce, cfg.MaxImagesPerAlbum, bot.onAlbum)

	var offset int64
	for {
		updates, err := client.GetUpdates(offset, cfg.PollTimeout)
		if err != nil {
			log.Printf("[bot] getUpdates failed: %v", err)
			time.Sleep(time.Duration(cfg.SleepSeconds) * time.Second)
			continue
		}
		for _, u := range updates {
			offset = u.UpdateID + 1
			go bot.HandleUpdate(u)
		}
	}
}
