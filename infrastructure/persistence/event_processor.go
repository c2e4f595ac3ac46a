package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nomadictuba2005/claude-code-api/domain/persistence"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultWorkerCount = 2
	defaultBufferSize  = 1000
	eventTimeout       = 10 * time.Second
	stopTimeout        = 30 * time.Second
)

// ErrQueueFull is returned when an event is dropped because the queue is full
var ErrQueueFull = errors.New("event processor queue is full")

// EventProcessor implements persistence.EventProcessor. Events are written by
// a fixed pool of workers; a full queue drops the event instead of blocking.
type EventProcessor struct {
	requestRepo persistence.RequestRepository
	eventChan   chan any
	workerCount int
	bufferSize  int

	// State management
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	sendMu         sync.RWMutex
	isRunning      atomic.Bool
	stopped        atomic.Bool
	processedCount atomic.Int64
	errorCount     atomic.Int64
	droppedCount   atomic.Int64
}

// NewEventProcessor creates a new event processor
func NewEventProcessor(requestRepo persistence.RequestRepository, workerCount, bufferSize int) *EventProcessor {
	if workerCount <= 0 {
		workerCount = defaultWorkerCount
	}
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	return &EventProcessor{
		requestRepo: requestRepo,
		eventChan:   make(chan any, bufferSize),
		workerCount: workerCount,
		bufferSize:  bufferSize,
	}
}

// Start begins processing events from the channel. A stopped processor
// cannot be restarted.
func (ep *EventProcessor) Start(ctx context.Context) error {
	if ep.stopped.Load() {
		return fmt.Errorf("event processor has been stopped")
	}
	if !ep.isRunning.CompareAndSwap(false, true) {
		return fmt.Errorf("event processor is already running")
	}

	ep.ctx, ep.cancel = context.WithCancel(ctx)

	for i := 0; i < ep.workerCount; i++ {
		ep.wg.Add(1)
		go ep.worker(i)
	}

	logrus.WithFields(logrus.Fields{
		"worker_count": ep.workerCount,
		"buffer_size":  ep.bufferSize,
	}).Info("Event processor started")

	return nil
}

// Stop stops accepting events, drains the queue and waits for the workers
func (ep *EventProcessor) Stop() error {
	ep.sendMu.Lock()
	if !ep.isRunning.Load() {
		ep.sendMu.Unlock()
		return nil
	}
	ep.isRunning.Store(false)
	ep.stopped.Store(true)
	close(ep.eventChan)
	ep.sendMu.Unlock()

	logrus.Info("Stopping event processor...")

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logrus.Info("Event processor stopped gracefully")
	case <-time.After(stopTimeout):
		logrus.Warn("Event processor stop timed out")
	}

	ep.cancel()
	return nil
}

// ProcessEvent queues an event without blocking
func (ep *EventProcessor) ProcessEvent(event any) error {
	ep.sendMu.RLock()
	defer ep.sendMu.RUnlock()

	if !ep.isRunning.Load() {
		return fmt.Errorf("event processor is not running")
	}

	select {
	case ep.eventChan <- event:
		return nil
	default:
		ep.droppedCount.Add(1)
		logrus.Warn("Event processor queue is full, dropping event")
		return ErrQueueFull
	}
}

// Health returns the health status of the processor
func (ep *EventProcessor) Health() persistence.ProcessorHealth {
	return persistence.ProcessorHealth{
		IsRunning:      ep.isRunning.Load(),
		QueueSize:      len(ep.eventChan),
		ProcessedCount: ep.processedCount.Load(),
		ErrorCount:     ep.errorCount.Load() + ep.droppedCount.Load(),
	}
}

func (ep *EventProcessor) worker(workerID int) {
	defer ep.wg.Done()

	logger := logrus.WithField("worker_id", workerID)
	logger.Debug("Event processor worker started")

	for {
		select {
		case event, ok := <-ep.eventChan:
			if !ok {
				logger.Debug("Event channel closed, worker stopping")
				return
			}

			opCtx, cancel := context.WithTimeout(ep.ctx, eventTimeout)
			if err := ep.processEvent(opCtx, event); err != nil {
				ep.errorCount.Add(1)
				logger.WithError(err).Error("Failed to process event")
			} else {
				ep.processedCount.Add(1)
			}
			cancel()

		case <-ep.ctx.Done():
			logger.Debug("Context cancelled, worker stopping")
			return
		}
	}
}

func (ep *EventProcessor) processEvent(ctx context.Context, event any) error {
	switch e := event.(type) {
	case persistence.PersistenceEvent[persistence.RecordRequestEvent]:
		return ep.handleRecordRequest(ctx, e.Data)
	case persistence.RecordRequestEvent:
		return ep.handleRecordRequest(ctx, e)
	default:
		return fmt.Errorf("unknown event type: %T", event)
	}
}

// handleRecordRequest inserts the request and its metrics in one create
func (ep *EventProcessor) handleRecordRequest(ctx context.Context, event persistence.RecordRequestEvent) error {
	if err := ep.requestRepo.Create(ctx, event.Record()); err != nil {
		return fmt.Errorf("failed to record request %s: %w", event.RequestID, err)
	}
	return nil
}

// RequestTracker implements persistence.RequestTracker using the event processor
type RequestTracker struct {
	processor persistence.EventProcessor
}

// NewRequestTracker creates a new request tracker
func NewRequestTracker(processor persistence.EventProcessor) persistence.RequestTracker {
	return &RequestTracker{
		processor: processor,
	}
}

// CompleteTracking records a successful request
func (rt *RequestTracker) CompleteTracking(ctx context.Context, requestID uuid.UUID, info persistence.TrackingInfo, responseData []byte, metrics persistence.RequestMetrics) error {
	event := newRecordEvent(requestID, info, persistence.RequestStatusCompleted, metrics)
	event.ResponseData = json.RawMessage(responseData)

	return rt.submit(event)
}

// FailTracking records a failed request
func (rt *RequestTracker) FailTracking(ctx context.Context, requestID uuid.UUID, info persistence.TrackingInfo, errorKind, errorMsg string, metrics persistence.RequestMetrics) error {
	event := newRecordEvent(requestID, info, persistence.RequestStatusFailed, metrics)
	event.ErrorKind = errorKind
	event.ErrorMessage = errorMsg

	return rt.submit(event)
}

func (rt *RequestTracker) submit(event persistence.RecordRequestEvent) error {
	err := rt.processor.ProcessEvent(persistence.PersistenceEvent[persistence.RecordRequestEvent]{
		Type: persistence.EventTypeRecordRequest,
		Data: event,
	})
	if err != nil {
		return fmt.Errorf("failed to queue record request event: %w", err)
	}
	return nil
}

func newRecordEvent(requestID uuid.UUID, info persistence.TrackingInfo, status persistence.RequestStatus, metrics persistence.RequestMetrics) persistence.RecordRequestEvent {
	requestData := json.RawMessage(info.RequestData)
	if !json.Valid(requestData) {
		requestData = json.RawMessage(`{}`)
	}

	return persistence.RecordRequestEvent{
		RequestID:       requestID,
		ClientRequestID: info.ClientRequestID,
		Model:           info.Model,
		CLIModel:        info.CLIModel,
		Status:          status,
		RequestData:     requestData,
		Metrics:         metrics,
	}
}
