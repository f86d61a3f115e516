package license

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// EventType names a notification published on the Bus.
type EventType string

const (
	EventCatalogChanged EventType = "license:catalog"
	EventStatusChanged  EventType = "license:status"
)

// CatalogSnapshot is the payload of EventCatalogChanged.
type CatalogSnapshot struct {
	Licenses []LicenseRecord `json:"licenses"`
	Summary  Summary         `json:"summary"`
}

// Event is delivered to every listener. Exactly one of Catalog and
// Status is set, matching Type.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Catalog   *CatalogSnapshot
	Status    *EntitlementStatus
}

// Payload returns the event body for serialization.
func (e Event) Payload() any {
	if e.Catalog != nil {
		return e.Catalog
	}
	return e.Status
}

// Listener receives bus events. It runs synchronously on the publishing
// goroutine and must not call mutating Engine operations.
type Listener func(Event)

// Bus is a synchronous, in-order callback registry.
type Bus struct {
	mu        sync.RWMutex
	nextID    uint64
	order     []uint64
	listeners map[uint64]Listener
	logger    *slog.Logger
}

// NewBus returns an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{listeners: make(map[uint64]Listener), logger: logger}
}

// Subscribe registers l and returns a function that removes it.
func (b *Bus) Subscribe(l Listener) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.listeners[id] = l
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.listeners, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of subscribed listeners.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}

// Publish delivers e to every listener in subscription order. A
// panicking listener is logged and does not stop delivery.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	listeners := make([]Listener, 0, len(b.order))
	for _, id := range b.order {
		listeners = append(listeners, b.listeners[id])
	}
	b.mu.RUnlock()

	for _, l := range listeners {
		b.deliver(l, e)
	}
}

func (b *Bus) deliver(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("license listener panicked",
				slog.String("event", string(e.Type)),
				slog.String("panic", fmt.Sprint(r)))
		}
	}()
	l(e)
}
