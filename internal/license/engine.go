package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"sellerlicense/internal/storage"
)

// Options configures an Engine. Store is required.
type Options struct {
	Store     storage.Store
	KeyPrefix string
	// DisableSeed leaves an empty store empty instead of writing DefaultCatalog.
	DisableSeed bool
	DeviceID    string
	Clock       func() time.Time
	Bus         *Bus
	Logger      *slog.Logger
	Metrics     *Metrics
	Tracer      trace.Tracer
}

// Engine is the public facade over the catalog, the activation record
// and the evaluator. Every public method runs as one unit under a single
// lock: read, modify, persist, then broadcast.
type Engine struct {
	mu sync.Mutex

	keys        Keys
	catalog     *CatalogStore
	activations *ActivationManager
	bus         *Bus
	clock       func() time.Time
	logger      *slog.Logger
	metrics     *Metrics
	tracer      trace.Tracer

	lastCatalog []byte
	lastStatus  []byte
}

// NewEngine wires an Engine from opts.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("license engine requires a store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "license_engine"))

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	bus := opts.Bus
	if bus == nil {
		bus = NewBus(logger)
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = defaultTracer()
	}

	keys := NewKeys(opts.KeyPrefix)
	return &Engine{
		keys:        keys,
		catalog:     NewCatalogStore(opts.Store, keys.Catalog, !opts.DisableSeed, logger),
		activations: NewActivationManager(opts.Store, keys, opts.DeviceID, logger),
		bus:         bus,
		clock:       clock,
		logger:      logger,
		metrics:     opts.Metrics,
		tracer:      tracer,
	}, nil
}

// Bus returns the bus the engine publishes on.
func (e *Engine) Bus() *Bus { return e.bus }

// Keys returns the persisted key names.
func (e *Engine) Keys() Keys { return e.keys }

func (e *Engine) now() time.Time {
	return e.clock().UTC().Truncate(time.Millisecond)
}

// Start loads (and if needed seeds) the catalog and publishes the
// initial catalog and status.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	list, err := e.catalog.Load(ctx, e.now())
	if err != nil {
		return err
	}
	e.publishCatalog(ctx, list)
	return e.publishStatus(ctx, list)
}

// GetCatalog returns a copy of the catalog, most recently updated first.
func (e *Engine) GetCatalog(ctx context.Context) ([]LicenseRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list, err := e.catalog.Load(ctx, e.now())
	if err != nil {
		return nil, err
	}
	return SortByUpdated(list), nil
}

// GetSummary counts the catalog by type and status.
func (e *Engine) GetSummary(ctx context.Context) (Summary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list, err := e.catalog.Load(ctx, e.now())
	if err != nil {
		return Summary{}, err
	}
	return Summarize(list), nil
}

// GetStatus evaluates the current activation and caches the resulting state.
func (e *Engine) GetStatus(ctx context.Context) (EntitlementStatus, error) {
	ctx, span := e.tracer.Start(ctx, "license.GetStatus")
	e.mu.Lock()
	defer e.mu.Unlock()

	status, err := e.evaluate(ctx)
	if err == nil {
		span.SetAttributes(attribute.String("license.state", string(status.State)))
	}
	endSpan(span, err)
	return status, err
}

// IsActive reports whether the current activation is entitled. Storage
// failures count as not active.
func (e *Engine) IsActive(ctx context.Context) bool {
	status, err := e.GetStatus(ctx)
	return err == nil && status.Active
}

// GetCode returns the activated code, or "" when nothing is activated.
func (e *Engine) GetCode(ctx context.Context) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	act, err := e.activations.Current(ctx)
	if err != nil || act == nil {
		return ""
	}
	return act.Code
}

// Refresh re-reads storage and publishes whatever changed since the last
// broadcast. It is used when another process rewrote the store.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	list, err := e.catalog.Load(ctx, e.now())
	if err != nil {
		return err
	}
	if data, err := json.Marshal(list); err == nil && !bytes.Equal(data, e.lastCatalog) {
		e.publishCatalog(ctx, list)
	}

	act, err := e.activations.Current(ctx)
	if err != nil {
		return err
	}
	status := Evaluate(list, act, e.now())
	if data, err := json.Marshal(status); err == nil && !bytes.Equal(data, e.lastStatus) {
		e.emitStatus(ctx, status)
	}
	return nil
}

func (e *Engine) evaluate(ctx context.Context) (EntitlementStatus, error) {
	list, err := e.catalog.Load(ctx, e.now())
	if err != nil {
		return EntitlementStatus{}, err
	}
	act, err := e.activations.Current(ctx)
	if err != nil {
		return EntitlementStatus{}, err
	}
	status := Evaluate(list, act, e.now())
	e.metrics.recordEvaluation(ctx, status.State)
	e.activations.CacheStatus(ctx, status.State)
	return status, nil
}

// commit persists list and broadcasts the new catalog and status.
func (e *Engine) commit(ctx context.Context, list []LicenseRecord) ([]LicenseRecord, error) {
	saved, err := e.catalog.Save(ctx, list, e.now())
	if err != nil {
		return nil, err
	}
	e.publishCatalog(ctx, saved)
	if err := e.publishStatus(ctx, saved); err != nil {
		return nil, err
	}
	return saved, nil
}

func (e *Engine) publishCatalog(ctx context.Context, list []LicenseRecord) {
	snapshot := &CatalogSnapshot{
		Licenses: cloneList(list),
		Summary:  Summarize(list),
	}
	if data, err := json.Marshal(list); err == nil {
		e.lastCatalog = data
	}
	e.metrics.recordCatalogSize(ctx, len(list))
	e.bus.Publish(Event{Type: EventCatalogChanged, Timestamp: e.now(), Catalog: snapshot})
}

func (e *Engine) publishStatus(ctx context.Context, list []LicenseRecord) error {
	act, err := e.activations.Current(ctx)
	if err != nil {
		return err
	}
	e.emitStatus(ctx, Evaluate(list, act, e.now()))
	return nil
}

func (e *Engine) emitStatus(ctx context.Context, status EntitlementStatus) {
	e.metrics.recordEvaluation(ctx, status.State)
	e.activations.CacheStatus(ctx, status.State)
	if data, err := json.Marshal(status); err == nil {
		e.lastStatus = data
	}
	e.bus.Publish(Event{Type: EventStatusChanged, Timestamp: e.now(), Status: &status})
}

func resultErr(r Result) error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}
