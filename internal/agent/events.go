package agent

import (
	"fmt"
	"sync"
	"time"
)

/*
EVENT BUFFER - RING BUFFER FOR STREAMING EVENTS

Bounded storage for agent stream events with support for client
disconnect/reconnect via index-based resumption.

	Logical view (indices are monotonically increasing):
	... [purged] ... | startIndex | event | event | ... | lastIndex

	Physical storage: slice that grows up to maxSize, then drops oldest.

Clients poll with since_index:
 1. First poll: since_index = -1 (get all buffered events)
 2. Response includes last_index (highest event index returned)
 3. Next poll: since_index = last_index
 4. If the client falls behind the purge point: error "events purged"

droppedEvents counts buffer overflow. Non-zero means consumers are not
keeping up with the agent's event production rate.
*/

// DefaultEventBufferSize is the default ring buffer capacity
const DefaultEventBufferSize = 1000

// BufferedEvent wraps a stream event with metadata for resumption
type BufferedEvent struct {
	Index     int          `json:"index"`
	Timestamp time.Time    `json:"timestamp"`
	Event     *StreamEvent `json:"event"`
}

// EventBuffer provides a ring buffer for streaming events with resumption support
type EventBuffer struct {
	label         string
	events        []*BufferedEvent
	maxSize       int
	startIndex    int   // Logical index of the first event in the buffer
	droppedEvents int64 // Count of events dropped due to buffer overflow
	mu            sync.RWMutex
}

// BufferStats contains statistics about the event buffer
type BufferStats struct {
	Label         string `json:"label"`
	CurrentSize   int    `json:"current_size"`
	MaxSize       int    `json:"max_size"`
	StartIndex    int    `json:"start_index"`
	LastIndex     int    `json:"last_index"`
	DroppedEvents int64  `json:"dropped_events"`
}

// NewEventBuffer creates a new event buffer with the given label
func NewEventBuffer(label string, maxSize int) *EventBuffer {
	if maxSize <= 0 {
		maxSize = DefaultEventBufferSize
	}
	return &EventBuffer{
		label:   label,
		events:  make([]*BufferedEvent, 0, maxSize),
		maxSize: maxSize,
	}
}

// Append adds an event to the buffer and returns its index
func (b *EventBuffer) Append(event *StreamEvent) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	index := b.startIndex + len(b.events)
	be := &BufferedEvent{
		Index:     index,
		Timestamp: time.Now(),
		Event:     event,
	}

	if len(b.events) >= b.maxSize {
		// Ring buffer - drop oldest event
		b.events = b.events[1:]
		b.startIndex++
		b.droppedEvents++
	}
	b.events = append(b.events, be)
	return index
}

// After returns events after the given index (exclusive)
// Returns error if the requested index has been purged
// Special case: index=-1 returns all available events
func (b *EventBuffer) After(index int) ([]*BufferedEvent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if index < -1 {
		index = -1
	}

	// Requested index already purged from the buffer
	if index != -1 && index < b.startIndex-1 {
		return nil, fmt.Errorf("events purged: requested index %d, oldest available %d", index, b.startIndex)
	}

	offset := index + 1 - b.startIndex
	if offset < 0 {
		offset = 0
	}
	if offset >= len(b.events) {
		return []*BufferedEvent{}, nil
	}

	result := make([]*BufferedEvent, len(b.events)-offset)
	copy(result, b.events[offset:])
	return result, nil
}

// All returns every buffered event
func (b *EventBuffer) All() []*BufferedEvent {
	events, _ := b.After(-1)
	return events
}

// Len returns the number of buffered events
func (b *EventBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

// StartIndex returns the logical index of the oldest buffered event
func (b *EventBuffer) StartIndex() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.startIndex
}

// LastIndex returns the logical index of the newest buffered event, or -1
func (b *EventBuffer) LastIndex() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.startIndex + len(b.events) - 1
}

// DroppedEvents returns the overflow drop count
func (b *EventBuffer) DroppedEvents() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.droppedEvents
}

// Stats returns a snapshot of buffer statistics
func (b *EventBuffer) Stats() BufferStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BufferStats{
		Label:         b.label,
		CurrentSize:   len(b.events),
		MaxSize:       b.maxSize,
		StartIndex:    b.startIndex,
		LastIndex:     b.startIndex + len(b.events) - 1,
		DroppedEvents: b.droppedEvents,
	}
}

// Reset clears the buffer for a new session, preserving nothing
func (b *EventBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = b.events[:0]
	b.startIndex = 0
	b.droppedEvents = 0
}
