package interaction

import "github.com/prasetyawidi/gemgram/internal/telegram"

// deliveryState tracks how the next chunk of a response is sent.
type deliveryState int

const (
	// firstChunkAsReply: the next chunk replies to the triggering message.
	firstChunkAsReply deliveryState = iota
	// followupChunk: the next chunk is a plain follow-up message.
	followupChunk
)

// chunkDelivery is the per-response send state machine. The first chunk
// replies to the trigger; once it is sent, every later chunk is a plain
// follow-up. When the trigger was itself a reply to the bot, the machine
// starts in followupChunk to avoid nested reply chains.
type chunkDelivery struct {
	state   deliveryState
	replyTo int64
}

func newChunkDelivery(replyTo int64) *chunkDelivery {
	if replyTo == 0 {
		return &chunkDelivery{state: followupChunk}
	}
	return &chunkDelivery{state: firstChunkAsReply, replyTo: replyTo}
}

// options builds the send options for the current state. parseMode may
// be empty for a plain-text send.
func (d *chunkDelivery) options(parseMode string) *telegram.SendOptions {
	opts := &telegram.SendOptions{ParseMode: parseMode}
	if d.state == firstChunkAsReply {
		opts.ReplyToMessageID = d.replyTo
	}
	return opts
}

// advance records that a chunk was delivered.
func (d *chunkDelivery) advance() {
	d.state = followupChunk
}
