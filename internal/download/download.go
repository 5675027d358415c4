// Package download implements the process-wide download manager (spec
// §4.H): an unbounded pending queue drained into a bounded in-flight
// set, ticked with a wall-clock frame budget, emitting coarsened
// progress and a terminal event per operation. Shared by asset-file
// imports, project icons, and thumbnails — it has no notion of "which
// import operation" a request belongs to.
package download

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is one download operation's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

// Request is one file to fetch: a source URL and where it lands on
// disk. ID is the caller's own identifier, used to dedupe and to
// address the operation for cancellation.
type Request struct {
	ID           string
	URL          string
	OriginalPath string
	DownloadPath string
}

// PollResult is one Handle.Poll observation.
type PollResult struct {
	BytesDone  int64
	TotalBytes int64
	Done       bool
}

// Handle is the live transfer a Transport hands back from Start. Poll
// is called repeatedly by the manager's tick; Release is called
// exactly once, on finalize, regardless of outcome.
type Handle interface {
	Poll(ctx context.Context) (PollResult, error)
	Release()
}

// Transport starts one transfer. Any error from Start finalizes that
// operation as Error; the tick carries on with the other operations.
type Transport interface {
	Start(ctx context.Context, req Request) (Handle, error)
}

// Event is emitted to observers on every progress update and on
// finalize (Done=true).
type Event struct {
	ID         string
	Status     Status
	BytesDone  int64
	TotalBytes int64
	Err        error
	Done       bool
}

const (
	defaultMaxConcurrent     = 10
	defaultMaxFrameDuration  = 20 * time.Millisecond
	progressDeltaThreshold   = 0.05
	progressBytesThresholdMB = 1 << 20
)

type operation struct {
	req              Request
	status           Status
	handle           Handle
	bytesDone        int64
	totalBytes       int64
	lastReportedPct  float64
	lastReportedByte int64
}

// Manager is the process-wide download manager.
type Manager struct {
	mu               sync.Mutex
	pending          []*operation
	inFlight         map[string]*operation
	transport        Transport
	maxConcurrent    int
	maxFrameDuration time.Duration
	observers        []func(Event)
	logger           *zap.Logger
}

// New constructs a Manager. maxConcurrent and maxFrameDuration default
// to the spec's values (10, 20ms) when zero.
func New(transport Transport, maxConcurrent int, maxFrameDuration time.Duration, logger *zap.Logger) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	if maxFrameDuration <= 0 {
		maxFrameDuration = defaultMaxFrameDuration
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		inFlight:         make(map[string]*operation),
		transport:        transport,
		maxConcurrent:    maxConcurrent,
		maxFrameDuration: maxFrameDuration,
		logger:           logger,
	}
}

// Subscribe registers fn to receive progress and terminal events.
// Returns an unsubscribe function.
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
	i := len(m.observers) - 1
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.observers[i] = nil
	}
}

func (m *Manager) emit(ev Event) {
	for _, fn := range m.observers {
		if fn != nil {
			fn(ev)
		}
	}
}

// Enqueue adds req to the pending queue. Newly-arriving requests join
// the queue; they are admitted into the in-flight set by the next
// Tick, respecting maxConcurrent.
func (m *Manager) Enqueue(req Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, &operation{req: req, status: StatusPending})
}

// Cancel marks a pending or in-flight operation Cancelled; its handle
// (if any) is released and a terminal event emitted.
func (m *Manager) Cancel(id string) {
	m.mu.Lock()
	if op, ok := m.inFlight[id]; ok {
		delete(m.inFlight, id)
		m.mu.Unlock()
		m.finalize(op, StatusCancelled, nil)
		return
	}
	for i, op := range m.pending {
		if op.req.ID == id {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			m.mu.Unlock()
			m.finalize(op, StatusCancelled, nil)
			return
		}
	}
	m.mu.Unlock()
}

// Tick admits ready pending operations up to the concurrency ceiling,
// then advances every in-flight operation within the frame's
// wall-clock budget; remaining work is deferred to the next Tick.
func (m *Manager) Tick(ctx context.Context) error {
	deadline := time.Now().Add(m.maxFrameDuration)

	m.admit(ctx)

	m.mu.Lock()
	ops := make([]*operation, 0, len(m.inFlight))
	for _, op := range m.inFlight {
		ops = append(ops, op)
	}
	m.mu.Unlock()

	for _, op := range ops {
		if time.Now().After(deadline) {
			break
		}
		m.advance(ctx, op)
	}
	return nil
}

func (m *Manager) admit(ctx context.Context) {
	m.mu.Lock()
	var toStart []*operation
	for len(m.pending) > 0 && len(m.inFlight) < m.maxConcurrent {
		op := m.pending[0]
		m.pending = m.pending[1:]
		m.inFlight[op.req.ID] = op
		toStart = append(toStart, op)
	}
	m.mu.Unlock()

	for _, op := range toStart {
		handle, err := m.transport.Start(ctx, op.req)
		if err != nil {
			m.finalize(op, StatusError, err)
			continue
		}
		op.handle = handle
		op.status = StatusInProgress
	}
}

func (m *Manager) advance(ctx context.Context, op *operation) {
	result, err := op.handle.Poll(ctx)
	if err != nil {
		// ConnectionError/ProtocolError/DataProcessingError (spec
		// §4.H) all finalize the operation as Error; only their
		// engineerr classification differs for upstream logging.
		m.finalizeLocked(op, StatusError, err)
		return
	}

	op.bytesDone = result.BytesDone
	op.totalBytes = result.TotalBytes

	if result.Done {
		m.finalizeLocked(op, StatusSuccess, nil)
		return
	}

	m.reportProgress(op)
}

func (m *Manager) reportProgress(op *operation) {
	var pct float64
	if op.totalBytes > 0 {
		pct = float64(op.bytesDone) / float64(op.totalBytes)
	}
	deltaBytes := op.bytesDone - op.lastReportedByte
	deltaPct := pct - op.lastReportedPct
	if deltaPct < progressDeltaThreshold && deltaBytes < progressBytesThresholdMB {
		return
	}
	op.lastReportedPct = pct
	op.lastReportedByte = op.bytesDone
	m.emit(Event{ID: op.req.ID, Status: StatusInProgress, BytesDone: op.bytesDone, TotalBytes: op.totalBytes})
}

// finalizeLocked removes op from in-flight (it is looked up by id
// under the manager's lock) and finalizes it.
func (m *Manager) finalizeLocked(op *operation, status Status, err error) {
	m.mu.Lock()
	delete(m.inFlight, op.req.ID)
	m.mu.Unlock()
	m.finalize(op, status, err)
}

func (m *Manager) finalize(op *operation, status Status, err error) {
	op.status = status
	if op.handle != nil {
		op.handle.Release()
	}
	m.emit(Event{
		ID:         op.req.ID,
		Status:     status,
		BytesDone:  op.bytesDone,
		TotalBytes: op.totalBytes,
		Err:        err,
		Done:       true,
	})
}

// Run drains the manager on an interval until ctx is cancelled,
// following the scheduler's ticker+context shutdown shape.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Tick(ctx); err != nil {
				m.logger.Error("download tick failed", zap.Error(err))
			}
		}
	}
}
