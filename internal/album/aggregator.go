// Package album collects the individual messages of a Telegram media
// group into one batch. Telegram delivers album photos as separate
// messages sharing a media_group_id, with no marker for the last one,
// so the batch is flushed after a quiet period following the most
// recent item.
package album

import (
	"sync"
	"time"

	"github.com/prasetyawidi/gemgram/internal/telegram"
)

// Batch is one completed media group, ready for processing.
type Batch struct {
	GroupKey    string
	OwnerID     int64
	Anchor      *telegram.Message
	Messages    []*telegram.Message
	TotalPhotos int
	Truncated   bool
}

// FlushFunc receives completed batches. It is called on its own
// goroutine, one call per batch.
type FlushFunc func(Batch)

type pendingAlbum struct {
	messages []*telegram.Message
	timer    *time.Timer
	gen      uint64
}

// Aggregator debounces media-group messages per group key.
type Aggregator struct {
	mu       sync.Mutex
	pending  map[string]*pendingAlbum
	window   time.Duration
	maxItems int
	flush    FlushFunc
}

// New creates an Aggregator that flushes a group once no new item has
// arrived for the given window. maxItems caps how many photo messages a
// flushed batch carries; 0 means no cap.
func New(window time.Duration, maxItems int, flush FlushFunc) *Aggregator {
	return &Aggregator{
		pending:  make(map[string]*pendingAlbum),
		window:   window,
		maxItems: maxItems,
		flush:    flush,
	}
}

// Submit adds one message to its media group and restarts the group's
// quiet-period timer. Messages without a photo are ignored.
func (a *Aggregator) Submit(groupKey string, msg *telegram.Message) {
	if msg == nil || len(msg.Photo) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.pending[groupKey]
	if !ok {
		p = &pendingAlbum{}
		a.pending[groupKey] = p
	}
	p.messages = append(p.messages, msg)

	if p.timer != nil {
		p.timer.Stop()
	}
	// A stopped timer may already have fired and be waiting on the
	// mutex; the generation check in fire makes that firing a no-op.
	p.gen++
	gen := p.gen
	p.timer = time.AfterFunc(a.window, func() {
		a.fire(groupKey, gen)
	})
}

func (a *Aggregator) fire(groupKey string, gen uint64) {
	a.mu.Lock()
	p, ok := a.pending[groupKey]
	if !ok || p.gen != gen {
		a.mu.Unlock()
		return
	}
	delete(a.pending, groupKey)
	a.mu.Unlock()

	batch := Batch{
		GroupKey:    groupKey,
		Messages:    p.messages,
		TotalPhotos: len(p.messages),
	}
	if a.maxItems > 0 && len(batch.Messages) > a.maxItems {
		batch.Messages = batch.Messages[:a.maxItems]
		batch.Truncated = true
	}
	if len(batch.Messages) > 0 {
		batch.Anchor = batch.Messages[0]
		if batch.Anchor.From != nil {
			batch.OwnerID = batch.Anchor.From.ID
		}
	}

	go a.flush(batch)
}

// PendingGroups reports how many media groups are currently waiting.
func (a *Aggregator) PendingGroups() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}
