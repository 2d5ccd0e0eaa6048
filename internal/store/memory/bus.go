package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/alanyoungcy/twapbot/internal/domain"
)

// Bus is an in-process domain.SignalBus. Slow subscribers drop messages
// rather than block publishers.
type Bus struct {
	mu      sync.Mutex
	subs    map[string][]chan []byte
	streams map[string][]domain.StreamMessage
	maxLen  int
}

// NewBus creates a Bus whose streams keep at most maxLen entries.
func NewBus(maxLen int) *Bus {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &Bus{
		subs:    make(map[string][]chan []byte),
		streams: make(map[string][]domain.StreamMessage),
		maxLen:  maxLen,
	}
}

// Publish fans payload out to current subscribers of channel.
func (b *Bus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel that receives messages until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 256)

	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[channel]
		for i, c := range subs {
			if c == ch {
				b.subs[channel] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

// StreamAppend adds an entry with a monotonically increasing id.
func (b *Bus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.streams[stream]
	var seq uint64 = 1
	if n := len(entries); n > 0 {
		last, _ := strconv.ParseUint(entries[n-1].ID, 10, 64)
		seq = last + 1
	}
	entries = append(entries, domain.StreamMessage{ID: strconv.FormatUint(seq, 10), Payload: payload})
	if len(entries) > b.maxLen {
		entries = entries[len(entries)-b.maxLen:]
	}
	b.streams[stream] = entries
	return nil
}

// StreamRead returns up to count entries after lastID. "0" or "" reads from
// the start.
func (b *Bus) StreamRead(_ context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	var after uint64
	if lastID != "" && lastID != "0" {
		v, err := strconv.ParseUint(lastID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("memory: stream id %q: %w", lastID, domain.ErrValidation)
		}
		after = v
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		id, _ := strconv.ParseUint(m.ID, 10, 64)
		if id <= after {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}
