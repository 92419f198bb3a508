// Package events fans out terminal trade records to interested consumers,
// currently the SSE stream of the web server.
package events

import (
	"sync"

	"github.com/vadiminshakov/pegbot/internal/domain"
)

// TradeBroadcaster fans out trade records to all subscribers via buffered
// channels. Slow consumers are dropped rather than blocking the trade path.
type TradeBroadcaster struct {
	mu     sync.RWMutex
	subs   map[chan domain.TradeRecord]struct{}
	buffer int
}

// NewTradeBroadcaster creates a broadcaster with the given per-subscriber
// buffer.
func NewTradeBroadcaster(buffer int) *TradeBroadcaster {
	if buffer < 1 {
		buffer = 64
	}
	return &TradeBroadcaster{
		subs:   make(map[chan domain.TradeRecord]struct{}),
		buffer: buffer,
	}
}

// Publish sends the record to all subscribers, dropping if a reader is slow.
func (b *TradeBroadcaster) Publish(rec domain.TradeRecord) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- rec:
		default:
			// drop slow consumer
		}
	}
}

// Subscribe registers a new consumer channel.
func (b *TradeBroadcaster) Subscribe() chan domain.TradeRecord {
	ch := make(chan domain.TradeRecord, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *TradeBroadcaster) Unsubscribe(ch chan domain.TradeRecord) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Close drops and closes every remaining consumer channel.
func (b *TradeBroadcaster) Close() {
	b.mu.Lock()
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
