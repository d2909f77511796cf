// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package subscription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/firefly-qa/firefly/aggregate"
	"github.com/firefly-qa/firefly/protocol"
	"github.com/firefly-qa/firefly/stream"
)

var (
	// ErrMounted is returned by Mount on a controller that has already
	// been mounted.
	ErrMounted = errors.New("subscription: controller already mounted")

	// ErrNotMounted is returned by operations that need a running
	// controller, before Mount or after Unmount.
	ErrNotMounted = errors.New("subscription: controller not mounted")
)

// SnapshotFetcher loads the baseline state of an entity's most recent
// execution.
type SnapshotFetcher interface {
	Fetch(ctx context.Context, entityID string) (protocol.Snapshot, error)
}

// Phase is the controller's subscription state.
type Phase int

const (
	Idle Phase = iota
	Subscribing
	Active
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Subscribing:
		return "subscribing"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// State is a point-in-time view of a controller.
type State struct {
	Phase Phase

	// Requested is the latest subscription asked for. Zero until the
	// first Subscribe.
	Requested protocol.Intent

	// Confirmed is the execution id of the latest confirmation that
	// matched Requested.
	Confirmed string
}

// Config configures a Controller.
type Config struct {
	// Kind selects the stream endpoint and the messages accepted.
	Kind protocol.StreamKind

	// Manager provides the connection. Required.
	Manager *stream.Manager

	// Store receives merged state. Required.
	Store *aggregate.Store

	// Fetcher loads snapshots. Required.
	Fetcher SnapshotFetcher

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// InboxCapacity is passed to the event source.
	InboxCapacity int

	// Tap, if set, sees every inbound frame before it is decoded.
	Tap func(payload []byte)
}

// Controller runs the subscription for one feature instance. Construct
// with New, start with Mount, stop with Unmount.
type Controller struct {
	config Config
	logger *slog.Logger

	mutex     sync.Mutex
	mounted   bool
	unmounted bool
	// ended is set when the server finished the stream. Nothing sent
	// afterwards reaches it.
	ended bool
	phase     Phase
	requested protocol.Intent
	confirmed string

	// outbox holds the intent the write task should send next. A newer
	// intent replaces an unsent one.
	outbox     protocol.Intent
	outboxSet  bool
	outboxWake chan struct{}

	fetchGeneration uint64
	fetchCancel     context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	source *stream.EventSource
	tasks  sync.WaitGroup

	unmountOnce sync.Once
}

// New validates config and returns an unmounted controller.
func New(config Config) (*Controller, error) {
	if config.Kind.Endpoint() == "" {
		return nil, fmt.Errorf("subscription: invalid stream kind %v", config.Kind)
	}
	if config.Manager == nil {
		return nil, errors.New("subscription: Manager is required")
	}
	if config.Store == nil {
		return nil, errors.New("subscription: Store is required")
	}
	if config.Fetcher == nil {
		return nil, errors.New("subscription: Fetcher is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		config:     config,
		logger:     logger.With("stream", config.Kind.String()),
		outboxWake: make(chan struct{}, 1),
	}, nil
}

// Mount opens the stream and starts the read and write tasks. The
// tasks stop when ctx is cancelled or Unmount is called; either way
// Unmount must still be called to release the connection.
func (c *Controller) Mount(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.unmounted {
		return ErrNotMounted
	}
	if c.mounted {
		return ErrMounted
	}

	source, err := stream.OpenEventSource(c.config.Manager, stream.EventSourceConfig{
		Endpoint:      c.config.Kind.Endpoint(),
		InboxCapacity: c.config.InboxCapacity,
		Tap:           c.config.Tap,
		OnReconnect:   c.reconnected,
	})
	if err != nil {
		return fmt.Errorf("subscription: mounting %s controller: %w", c.config.Kind, err)
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.source = source
	c.mounted = true
	c.tasks.Add(2)
	go c.readLoop()
	go c.writeLoop()
	c.logger.Debug("controller mounted")
	return nil
}

// Unmount stops every task, closes the event source and waits for the
// goroutines to exit. No store mutation originates from the
// controller once Unmount has begun. Safe to call more than once and
// on a controller that was never mounted.
func (c *Controller) Unmount() {
	c.unmountOnce.Do(func() {
		c.mutex.Lock()
		c.unmounted = true
		c.phase = Idle
		wasMounted := c.mounted
		if c.fetchCancel != nil {
			c.fetchCancel()
			c.fetchCancel = nil
		}
		c.mutex.Unlock()

		if !wasMounted {
			return
		}
		c.cancel()
		c.source.Close()
		c.tasks.Wait()
		c.logger.Debug("controller unmounted")
	})
}

// State returns the current phase and subscription ids.
func (c *Controller) State() State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return State{Phase: c.phase, Requested: c.requested, Confirmed: c.confirmed}
}

// Subscribe replaces the requested subscription with intent and queues
// the subscribe request. It returns without waiting for the server.
// Once the server has ended the stream, Subscribe, Watch and
// StartExecution fail with an error wrapping stream.ErrClosed.
func (c *Controller) Subscribe(intent protocol.Intent) error {
	if intent.ExecutionID == "" || intent.EntityID == "" {
		return fmt.Errorf("subscription: intent needs an entity and an execution id, got %+v", intent)
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.usableLocked(); err != nil {
		return err
	}
	c.subscribeLocked(intent)
	return nil
}

// Watch starts a snapshot fetch for entityID. A fetch already in
// flight is cancelled and its result discarded. When the snapshot
// names an execution other than the one requested, the controller
// subscribes to it.
func (c *Controller) Watch(entityID string) error {
	if entityID == "" {
		return errors.New("subscription: Watch needs an entity id")
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.usableLocked(); err != nil {
		return err
	}
	c.fetchLocked(entityID)
	return nil
}

// StartExecution seeds a fresh aggregate for a run that was just
// started and subscribes to it. workers is ignored for scripts.
func (c *Controller) StartExecution(entityID, executionID string, workers int) error {
	intent := protocol.Intent{EntityID: entityID, ExecutionID: executionID}
	if intent.ExecutionID == "" || intent.EntityID == "" {
		return fmt.Errorf("subscription: StartExecution needs an entity and an execution id, got %+v", intent)
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.usableLocked(); err != nil {
		return err
	}
	switch c.config.Kind {
	case protocol.Script:
		c.config.Store.StartScript(entityID, executionID)
	case protocol.LoadTest:
		c.config.Store.StartLoadTest(entityID, executionID, workers)
	}
	c.subscribeLocked(intent)
	return nil
}

// running reports whether operations may start new work. Caller holds
// mutex.
func (c *Controller) running() bool {
	return c.mounted && !c.unmounted
}

// usableLocked reports why a new request cannot be served: the
// controller is not mounted, or the server has ended the stream.
// Caller holds mutex.
func (c *Controller) usableLocked() error {
	if !c.running() {
		return ErrNotMounted
	}
	if c.ended {
		return fmt.Errorf("subscription: %s stream ended by server: %w", c.config.Kind, stream.ErrClosed)
	}
	return nil
}

// subscribeLocked records intent and hands it to the write task.
// Caller holds mutex.
func (c *Controller) subscribeLocked(intent protocol.Intent) {
	if c.requested != intent {
		c.logger.Info("subscribing",
			"entity_id", intent.EntityID,
			"execution_id", intent.ExecutionID,
			"previous_execution_id", c.requested.ExecutionID,
		)
	}
	c.requested = intent
	c.phase = Subscribing
	c.outbox = intent
	c.outboxSet = true
	select {
	case c.outboxWake <- struct{}{}:
	default:
	}
}

// reconnected runs on the connection's reader goroutine after the
// socket is re-established. The server has forgotten the subscription,
// so it is requested again.
func (c *Controller) reconnected() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.running() || c.requested.IsZero() {
		return
	}
	c.logger.Info("stream reconnected, resubscribing", "execution_id", c.requested.ExecutionID)
	c.subscribeLocked(c.requested)
}

// writeLoop sends queued intents until the controller stops. The send
// only queues on the connection, so the loop never waits for the
// server.
func (c *Controller) writeLoop() {
	defer c.tasks.Done()
	for {
		select {
		case <-c.outboxWake:
		case <-c.ctx.Done():
			return
		}

		c.mutex.Lock()
		intent, ok := c.outbox, c.outboxSet
		c.outboxSet = false
		c.mutex.Unlock()
		if !ok {
			continue
		}

		payload, err := c.config.Kind.EncodeSubscribe(intent)
		if err != nil {
			c.logger.Error("encoding subscribe request", "execution_id", intent.ExecutionID, "error", err)
			continue
		}
		if err := c.source.Send(payload); err != nil {
			if errors.Is(err, stream.ErrClosed) {
				return
			}
			c.logger.Warn("sending subscribe request", "execution_id", intent.ExecutionID, "error", err)
		}
	}
}

// readLoop consumes the event source until it ends or the controller
// stops.
func (c *Controller) readLoop() {
	defer c.tasks.Done()
	for {
		payload, err := c.source.Next(c.ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				c.logger.Info("stream ended by server")
				c.mutex.Lock()
				c.phase = Idle
				c.ended = true
				c.mutex.Unlock()
			case errors.Is(err, stream.ErrClosed), c.ctx.Err() != nil:
			default:
				c.logger.Error("reading stream", "error", err)
			}
			return
		}
		c.handle(payload)
	}
}

// handle decodes one frame and routes it.
func (c *Controller) handle(payload []byte) {
	message, err := protocol.Decode(payload)
	if err != nil {
		c.logger.Warn("dropping malformed message", "error", err, "size", len(payload))
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.running() {
		return
	}

	switch message := message.(type) {
	case protocol.SuccessfulSubscribe:
		c.confirmLocked(message)
	case protocol.Unknown:
		c.logger.Debug("dropping message of unknown type", "type", message.Type)
	default:
		c.mergeLocked(message)
	}
}

// confirmLocked handles a server confirmation. Caller holds mutex.
func (c *Controller) confirmLocked(message protocol.SuccessfulSubscribe) {
	stale := c.requested.IsZero() ||
		message.ExecutionID != c.requested.ExecutionID ||
		(message.LoadTestID != "" && message.LoadTestID != c.requested.EntityID)
	if stale {
		c.logger.Debug("ignoring stale subscription confirmation",
			"execution_id", message.ExecutionID,
			"requested_execution_id", c.requested.ExecutionID,
		)
		return
	}
	c.confirmed = message.ExecutionID
	c.phase = Active
	c.logger.Info("subscription confirmed", "entity_id", c.requested.EntityID, "execution_id", message.ExecutionID)
	c.fetchLocked(c.requested.EntityID)
}

// mergeLocked applies a data message to the store if it belongs to
// the active subscription. Caller holds mutex.
func (c *Controller) mergeLocked(message protocol.Message) {
	if aggregate.StreamOf(message) != c.config.Kind {
		c.logger.Warn("dropping message for the other stream", "type", string(message.Kind()))
		return
	}
	if c.phase != Active || message.EntityID() != c.requested.EntityID {
		c.logger.Debug("dropping message outside the active subscription",
			"type", string(message.Kind()),
			"entity_id", message.EntityID(),
			"phase", c.phase.String(),
		)
		return
	}
	if err := c.config.Store.Apply(message); err != nil {
		c.logger.Warn("rejected message",
			"type", string(message.Kind()),
			"entity_id", message.EntityID(),
			"error", err,
		)
	}
}

// fetchLocked starts a snapshot fetch for entityID, superseding any
// fetch in flight. Caller holds mutex.
func (c *Controller) fetchLocked(entityID string) {
	if c.fetchCancel != nil {
		c.fetchCancel()
	}
	c.fetchGeneration++
	generation := c.fetchGeneration
	ctx, cancel := context.WithCancel(c.ctx)
	c.fetchCancel = cancel
	c.config.Store.FetchStarted(c.config.Kind, entityID)

	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		defer cancel()
		snapshot, err := c.config.Fetcher.Fetch(ctx, entityID)
		c.fetched(generation, entityID, snapshot, err)
	}()
}

// fetched applies a fetch result unless a newer fetch or Unmount has
// superseded it.
func (c *Controller) fetched(generation uint64, entityID string, snapshot protocol.Snapshot, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.running() || generation != c.fetchGeneration {
		return
	}
	c.fetchCancel = nil

	if err != nil {
		c.logger.Warn("fetching snapshot", "entity_id", entityID, "error", err)
		c.config.Store.FetchFailed(c.config.Kind, entityID, err)
		return
	}
	if err := c.config.Store.FetchSucceeded(c.config.Kind, entityID, snapshot); err != nil {
		c.logger.Warn("applying snapshot", "entity_id", entityID, "error", err)
		return
	}

	executionID := snapshot.ExecutionID()
	if executionID == "" || executionID == c.confirmed {
		return
	}
	intent := protocol.Intent{EntityID: entityID, ExecutionID: executionID}
	if intent == c.requested || c.ended {
		return
	}
	c.subscribeLocked(intent)
}
