package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entitykit/entity-lifecycle-go/entity"
	"github.com/entitykit/entity-lifecycle-go/eventlog"
)

const markAsDeletedCommandType = "MarkAsDeleted"

// passivationState tracks the idle teardown state machine:
// Active -> (idle window expired) -> PendingStop -> (host acknowledgment) -> Stopped.
type passivationState int

const (
	passivationActive passivationState = iota
	passivationPendingStop
	passivationStopped
)

type requestKind int

const (
	executeRequest requestKind = iota
	getStateRequest
	getStateIgnoringDeletionRequest
	markAsDeletedRequest
	statsRequest
)

type request struct {
	ctx     context.Context
	kind    requestKind
	command entity.Command
	reply   chan result
}

type result struct {
	response entity.Response
	stats    Stats
}

// Stats is a point-in-time view of a controller's internal counters,
// intended for the routing layer and tests.
type Stats struct {
	Phase               entity.Phase
	HeadPosition        eventlog.Position
	EventsSinceSnapshot int
	PassivationPending  bool
}

// Controller owns one entity state machine instance scoped to one entity
// identifier. All command processing happens on a single goroutine, so no two
// commands for the same entity interleave their read-decide-persist-apply
// sequence. The state, the stream position, and the event counter are
// confined to that goroutine and never shared.
type Controller struct {
	kind       entity.Kind
	entityType string
	entityID   string
	log        EventLog
	waiter     ProjectionWaiter
	host       PassivationHost

	idleWindow             time.Duration
	snapshotThreshold      int
	thresholdOverridden    bool
	consistencyWaitTimeout time.Duration

	logger           eventlog.Logger
	contextualLogger eventlog.ContextualLogger
	metricsCollector eventlog.MetricsCollector
	tracingCollector eventlog.TracingCollector

	// Mutable per-instance state, owned by the run goroutine after Start.
	state               entity.State
	position            eventlog.Position
	eventsSinceSnapshot int
	passivation         passivationState

	mailbox     chan request
	started     chan struct{}
	confirmStop chan struct{}
	stopped     chan struct{}
	startMu     sync.Mutex
	startedFlag bool
	confirmOnce sync.Once
	snapshotWG  sync.WaitGroup
}

// NewController creates a Controller for one entity identifier.
// The controller does not touch the event log until Start runs the recovery
// protocol.
func NewController(kind entity.Kind, entityID string, log EventLog, options ...Option) (*Controller, error) {
	if kind == nil {
		return nil, ErrNilKind
	}

	if entityID == "" {
		return nil, ErrEmptyEntityID
	}

	if log == nil {
		return nil, ErrNilEventLog
	}

	c := &Controller{
		kind:                   kind,
		entityType:             kind.EntityType(),
		entityID:               entityID,
		log:                    log,
		snapshotThreshold:      kind.SnapshotThreshold(),
		consistencyWaitTimeout: defaultConsistencyWaitTimeout,
		mailbox:                make(chan request, defaultMailboxCapacity),
		started:                make(chan struct{}),
		confirmStop:            make(chan struct{}),
		stopped:                make(chan struct{}),
	}

	for _, option := range options {
		if err := option(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// EntityType returns the entity kind identifier this controller is scoped to.
func (c *Controller) EntityType() string {
	return c.entityType
}

// EntityID returns the entity identifier this controller is scoped to.
func (c *Controller) EntityID() string {
	return c.entityID
}

// Start runs the recovery protocol and then begins accepting commands.
// Recovery is fully sequential: the latest snapshot (if any) seeds the state,
// every event after the snapshot position is replayed in log order, and no
// command is processed until replay reaches the end of the log. A recovery
// failure is fatal to instance startup and leaves the controller unusable.
func (c *Controller) Start(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	if c.startedFlag {
		return ErrAlreadyStarted
	}

	if err := c.recover(ctx); err != nil {
		return errors.Join(ErrRecoveryFailed, err)
	}

	c.startedFlag = true
	close(c.started)

	go c.run()

	return nil
}

// Execute processes one entity-kind-specific command and returns the uniform
// response. A command that does not pass the admissibility gate for the
// current lifecycle phase is answered with the current state response - an
// explicit no-op, not a failure.
func (c *Controller) Execute(ctx context.Context, command entity.Command) entity.Response {
	return c.send(ctx, request{kind: executeRequest, command: command}).response
}

// GetState answers regardless of phase: Empty while uninitialized, Empty once
// deleted, otherwise the current full state.
func (c *Controller) GetState(ctx context.Context) entity.Response {
	return c.send(ctx, request{kind: getStateRequest}).response
}

// GetStateIgnoringDeletion answers like GetState but returns the full state
// (with its deleted flag set) for a deleted entity.
func (c *Controller) GetStateIgnoringDeletion(ctx context.Context) entity.Response {
	return c.send(ctx, request{kind: getStateIgnoringDeletionRequest}).response
}

// MarkAsDeleted requests deletion of the entity. If the kind supplies a
// deletion event it is persisted and the entity transitions to the Deleted
// phase; kinds without deletion support are answered with the current state
// and nothing is persisted.
func (c *Controller) MarkAsDeleted(ctx context.Context) entity.Response {
	return c.send(ctx, request{kind: markAsDeletedRequest}).response
}

// Stats returns a point-in-time view of the controller's internal counters.
func (c *Controller) Stats(ctx context.Context) (Stats, error) {
	res := c.send(ctx, request{kind: statsRequest})
	if res.response.HasFailed() {
		return Stats{}, res.response.Err
	}

	return res.stats, nil
}

// ConfirmStop is the routing layer's acknowledgment of a passivation request.
// The controller terminates its run loop, answers any queued requests with
// ErrControllerStopped, and waits for detached snapshot saves to settle.
// It is safe to call more than once.
func (c *Controller) ConfirmStop() {
	c.confirmOnce.Do(func() {
		close(c.confirmStop)
	})
}

// Stopped returns a channel that is closed once the controller has terminated.
func (c *Controller) Stopped() <-chan struct{} {
	return c.stopped
}

func (c *Controller) send(ctx context.Context, req request) result {
	select {
	case <-c.started:
	default:
		return result{response: entity.FailedResponse(ErrNotStarted)}
	}

	req.ctx = ctx
	req.reply = make(chan result, 1)

	select {
	case c.mailbox <- req:
	case <-c.stopped:
		return result{response: entity.FailedResponse(ErrControllerStopped)}
	case <-ctx.Done():
		return result{response: entity.FailedResponse(ctx.Err())}
	}

	select {
	case res := <-req.reply:
		return res
	case <-ctx.Done():
		return result{response: entity.FailedResponse(ctx.Err())}
	case <-c.stopped:
		// The run loop may have replied just before terminating.
		select {
		case res := <-req.reply:
			return res
		default:
			return result{response: entity.FailedResponse(ErrControllerStopped)}
		}
	}
}

/*** Recovery ***/

func (c *Controller) recover(ctx context.Context) error {
	start := time.Now()
	ctx, span := c.startSpan(ctx, spanNameRecovery, map[string]string{
		logAttrEntityType: c.entityType,
		logAttrEntityID:   c.entityID,
	})

	c.state = c.kind.InitialState(c.entityID)
	c.position = 0
	c.eventsSinceSnapshot = 0

	if err := c.recoverFromSnapshot(ctx); err != nil {
		c.finishSpan(span, StatusError)
		return err
	}

	replayed, err := c.replayTail(ctx)
	if err != nil {
		c.logError(ctx, logMsgRecoveryFailed,
			logAttrEntityType, c.entityType,
			logAttrEntityID, c.entityID,
			logAttrError, err.Error())
		c.finishSpan(span, StatusError)

		return err
	}

	duration := time.Since(start)
	c.recordDuration(ctx, ControllerRecoveryDurationMetric, duration, map[string]string{labelEntityType: c.entityType})
	c.logInfo(ctx, logMsgRecoveryCompleted,
		logAttrEntityType, c.entityType,
		logAttrEntityID, c.entityID,
		logAttrPhase, entity.DerivePhase(c.state).String(),
		logAttrPosition, c.position,
		logAttrEventCount, replayed,
		logAttrDurationMS, durationToMilliseconds(duration))
	c.finishSpan(span, StatusSuccess)

	return nil
}

// recoverFromSnapshot seeds the state from the latest snapshot when one
// exists. A snapshot that fails to decode is dropped and recovery falls back
// to full replay - snapshots are a recovery-speed optimization, never a
// correctness requirement.
func (c *Controller) recoverFromSnapshot(ctx context.Context) error {
	snapshot, err := c.log.LatestSnapshot(ctx, c.entityType, c.entityID)
	if err != nil {
		return err
	}

	if snapshot == nil {
		return nil
	}

	state, unmarshalErr := c.kind.UnmarshalState(snapshot.Data)
	if unmarshalErr != nil {
		c.logWarn(ctx, logMsgStaleSnapshotDropped,
			logAttrEntityType, c.entityType,
			logAttrEntityID, c.entityID,
			logAttrError, unmarshalErr.Error())

		if deleteErr := c.log.DeleteSnapshot(ctx, c.entityType, c.entityID); deleteErr != nil {
			c.logWarn(ctx, logMsgSnapshotDeleteFailed, logAttrError, deleteErr.Error())
		}

		return nil
	}

	c.state = state
	c.position = snapshot.Position

	return nil
}

func (c *Controller) replayTail(ctx context.Context) (int, error) {
	storableEvents, headPosition, err := c.log.ReadFrom(ctx, c.entityType, c.entityID, c.position)
	if err != nil {
		return 0, err
	}

	for _, storableEvent := range storableEvents {
		event, unmarshalErr := c.kind.UnmarshalEvent(storableEvent.EventType, storableEvent.PayloadJSON)
		if unmarshalErr != nil {
			return 0, unmarshalErr
		}

		c.state = c.kind.ApplyEvent(c.state, event)
		c.position++
		c.eventsSinceSnapshot++
	}

	if headPosition > c.position {
		return 0, errors.New("event stream head is beyond the replayed position")
	}

	return len(storableEvents), nil
}

/*** Run loop ***/

func (c *Controller) run() {
	var idleTimer *time.Timer
	var idleC <-chan time.Time

	if c.idleWindow > 0 {
		idleTimer = time.NewTimer(c.idleWindow)
		idleC = idleTimer.C
		defer idleTimer.Stop()
	}

	for {
		select {
		case req := <-c.mailbox:
			// Any command arrival resets the idle timer, but a passivation
			// request already in flight is never withdrawn.
			if idleTimer != nil && c.passivation == passivationActive {
				resetIdleTimer(idleTimer, c.idleWindow)
			}

			c.handle(req)

		case <-idleC:
			idleC = nil
			c.requestPassivation()

		case <-c.confirmStop:
			c.terminate()
			return
		}
	}
}

func resetIdleTimer(timer *time.Timer, window time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}

	timer.Reset(window)
}

func (c *Controller) requestPassivation() {
	if c.passivation != passivationActive {
		return
	}

	c.passivation = passivationPendingStop
	c.incrementCounter(context.Background(), ControllerPassivationsMetric, map[string]string{labelEntityType: c.entityType})
	c.logInfo(context.Background(), logMsgPassivationRequested,
		logAttrEntityType, c.entityType,
		logAttrEntityID, c.entityID)

	if c.host == nil {
		// Standalone mode: nobody routes commands here, stop right away.
		c.ConfirmStop()
		return
	}

	// The host may call ConfirmStop synchronously from RequestPassivate;
	// signal from a separate goroutine so the run loop stays responsive for
	// commands the host still drains to this instance.
	go c.host.RequestPassivate(c.entityType, c.entityID)
}

func (c *Controller) terminate() {
	c.passivation = passivationStopped
	c.snapshotWG.Wait()

	c.logInfo(context.Background(), logMsgControllerStopped,
		logAttrEntityType, c.entityType,
		logAttrEntityID, c.entityID)

	close(c.stopped)

	for {
		select {
		case req := <-c.mailbox:
			req.reply <- result{response: entity.FailedResponse(ErrControllerStopped)}
		default:
			return
		}
	}
}

/*** Command intake ***/

func (c *Controller) handle(req request) {
	switch req.kind {
	case getStateRequest:
		req.reply <- result{response: c.stateResponse(true)}

	case getStateIgnoringDeletionRequest:
		req.reply <- result{response: c.stateResponse(false)}

	case markAsDeletedRequest:
		req.reply <- result{response: c.handleMarkAsDeleted(req.ctx)}

	case statsRequest:
		req.reply <- result{
			response: entity.FullResponse(c.state),
			stats: Stats{
				Phase:               entity.DerivePhase(c.state),
				HeadPosition:        c.position,
				EventsSinceSnapshot: c.eventsSinceSnapshot,
				PassivationPending:  c.passivation != passivationActive,
			},
		}

	case executeRequest:
		req.reply <- result{response: c.handleCommand(req.ctx, req.command)}
	}
}

// stateResponse is the uniform current-state answer: Empty while
// uninitialized, Empty once deleted (unless deletion is ignored), otherwise
// the full state.
func (c *Controller) stateResponse(respectDeletion bool) entity.Response {
	switch entity.DerivePhase(c.state) {
	case entity.Uninitialized:
		return entity.EmptyResponse()

	case entity.Deleted:
		if respectDeletion {
			return entity.EmptyResponse()
		}

		return entity.FullResponse(c.state)

	default:
		return entity.FullResponse(c.state)
	}
}

func (c *Controller) handleMarkAsDeleted(ctx context.Context) entity.Response {
	switch entity.DerivePhase(c.state) {
	case entity.Uninitialized, entity.Deleted:
		// Nothing to delete, or already deleted: idempotent no-op.
		return c.stateResponse(true)

	default:
	}

	deletionEvent, supported := c.kind.DeletionEvent(c.state)
	if !supported {
		// This kind does not support deletion: answer with the current state,
		// persist nothing, change no phase.
		return c.stateResponse(true)
	}

	return c.persistAndRespond(ctx, markAsDeletedCommandType, entity.DomainEvents{deletionEvent}, nil)
}

func (c *Controller) handleCommand(ctx context.Context, command entity.Command) entity.Response {
	start := time.Now()
	commandType := command.CommandType()
	ctx, span := c.startSpan(ctx, spanNameCommand, map[string]string{
		logAttrEntityType:  c.entityType,
		logAttrEntityID:    c.entityID,
		logAttrCommandType: commandType,
	})

	if !entity.IsAcceptingCommand(c.kind, c.state, command) {
		c.logDebug(ctx, logMsgCommandRejectedByPhase,
			logAttrEntityType, c.entityType,
			logAttrEntityID, c.entityID,
			logAttrCommandType, commandType,
			logAttrPhase, entity.DerivePhase(c.state).String())
		c.recordCommand(ctx, commandType, StatusRejectedByPhase, time.Since(start))
		c.finishSpan(span, StatusRejectedByPhase)

		return c.stateResponse(true)
	}

	decision := c.kind.Decide(c.state, command)

	var response entity.Response

	switch {
	case decision.HasEventsToAppend():
		response = c.persistAndRespond(ctx, commandType, decision.Events, decision.HasError())

	case decision.HasError() != nil:
		response = entity.FailedResponse(decision.HasError())

	default:
		// Idempotent decision: nothing to persist, answer with the current state.
		response = c.stateResponse(true)
	}

	status := StatusAccepted
	if response.HasFailed() {
		status = StatusFailed
	}

	c.recordCommand(ctx, commandType, status, time.Since(start))
	c.finishSpan(span, status)

	return response
}

func (c *Controller) recordCommand(ctx context.Context, commandType string, status string, duration time.Duration) {
	labels := map[string]string{
		labelEntityType:  c.entityType,
		labelCommandType: commandType,
		labelStatus:      status,
	}
	c.incrementCounter(ctx, ControllerCommandsMetric, labels)
	c.recordDuration(ctx, ControllerCommandDurationMetric, duration, labels)
}

/*** Persist-and-respond ***/

// persistAndRespond appends the decided events, applies them to the in-memory
// state, evaluates the snapshot compaction trigger, and answers the caller.
// A failed append fails only the in-flight command: no event was applied, the
// state is unchanged. When a persisted event carries a consistency token, the
// response is withheld until the read-store projection signals readiness or
// the bounded wait expires.
func (c *Controller) persistAndRespond(
	ctx context.Context,
	commandType string,
	events entity.DomainEvents,
	decisionErr error,
) entity.Response {

	correlationID := uuid.New()

	storableEvents := make(eventlog.StorableEvents, 0, len(events))
	for _, event := range events {
		metadata := BuildEventMetadata(uuid.New(), correlationID, correlationID)

		storableEvent, err := storableEventFrom(c.kind, c.entityID, event, metadata)
		if err != nil {
			return entity.FailedResponse(err)
		}

		storableEvents = append(storableEvents, storableEvent)
	}

	waits, err := c.expectReadiness(ctx, storableEvents)
	if err != nil {
		return entity.FailedResponse(err)
	}
	defer cancelWaits(waits)

	appendErr := c.log.Append(ctx, c.entityType, c.entityID, c.position, storableEvents[0], storableEvents[1:]...)
	if appendErr != nil {
		c.logError(ctx, logMsgEventAppendFailed,
			logAttrEntityType, c.entityType,
			logAttrEntityID, c.entityID,
			logAttrCommandType, commandType,
			logAttrError, appendErr.Error())

		return entity.FailedResponse(errors.Join(ErrEventAppendFailed, appendErr))
	}

	for _, event := range events {
		c.state = c.kind.ApplyEvent(c.state, event)
		c.position++
		c.eventsSinceSnapshot++
	}

	c.maybeTriggerSnapshot(ctx)

	if waitErr := c.awaitReadiness(ctx, waits); waitErr != nil {
		return entity.FailedResponse(waitErr)
	}

	if decisionErr != nil {
		return entity.FailedResponse(decisionErr)
	}

	return c.stateResponse(true)
}

// expectReadiness registers waits for every consistency token carried by the
// events about to be appended. Registration happens before the append so a
// readiness signal published by a fast projector is never lost.
func (c *Controller) expectReadiness(ctx context.Context, events eventlog.StorableEvents) ([]ReadyWait, error) {
	var waits []ReadyWait

	for _, event := range events {
		if !event.HasConsistencyToken() {
			continue
		}

		if c.waiter == nil {
			c.logWarn(ctx, logMsgNoWaiterForToken,
				logAttrEntityType, c.entityType,
				logAttrEntityID, c.entityID,
				logAttrConsistencyToken, event.ConsistencyToken.String())

			continue
		}

		wait, err := c.waiter.ExpectReady(c.entityType, c.entityID, event.ConsistencyToken)
		if err != nil {
			cancelWaits(waits)
			c.logError(ctx, logMsgExpectReadyFailed, logAttrError, err.Error())

			return nil, err
		}

		waits = append(waits, wait)
	}

	return waits, nil
}

// awaitReadiness blocks until every registered token has been signaled or the
// shared bounded wait expires. All commands for this entity serialize behind
// the wait, since the controller is a single sequential actor.
func (c *Controller) awaitReadiness(ctx context.Context, waits []ReadyWait) error {
	if len(waits) == 0 {
		return nil
	}

	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, c.consistencyWaitTimeout)
	defer cancel()

	for _, wait := range waits {
		if err := wait.Await(waitCtx); err != nil {
			c.logWarn(ctx, logMsgConsistencyWaitTimedOut,
				logAttrEntityType, c.entityType,
				logAttrEntityID, c.entityID,
				logAttrError, err.Error())
			c.recordDuration(ctx, ControllerConsistencyWaitDurationMetric, time.Since(start),
				map[string]string{labelEntityType: c.entityType, labelStatus: StatusError})

			return errors.Join(ErrConsistencyTimeout, err)
		}
	}

	c.recordDuration(ctx, ControllerConsistencyWaitDurationMetric, time.Since(start),
		map[string]string{labelEntityType: c.entityType, labelStatus: StatusSuccess})

	return nil
}

func cancelWaits(waits []ReadyWait) {
	for _, wait := range waits {
		wait.Cancel()
	}
}

/*** Snapshot compaction ***/

// maybeTriggerSnapshot saves a snapshot of the current full state once the
// event counter reaches the configured threshold, then resets the counter.
// The save runs detached from the command path: its outcome is logged but
// never blocks or fails the command response.
func (c *Controller) maybeTriggerSnapshot(ctx context.Context) {
	if c.snapshotThreshold <= 0 || c.eventsSinceSnapshot < c.snapshotThreshold {
		return
	}

	data, err := c.kind.MarshalState(c.state)
	if err != nil {
		// Counter intentionally not reset: the next applied event retries.
		c.logWarn(ctx, logMsgSnapshotMarshalFailed,
			logAttrEntityType, c.entityType,
			logAttrEntityID, c.entityID,
			logAttrError, err.Error())

		return
	}

	snapshot, err := eventlog.BuildSnapshot(c.entityType, c.entityID, c.position, data)
	if err != nil {
		c.logWarn(ctx, logMsgSnapshotMarshalFailed,
			logAttrEntityType, c.entityType,
			logAttrEntityID, c.entityID,
			logAttrError, err.Error())

		return
	}

	c.eventsSinceSnapshot = 0

	c.snapshotWG.Add(1)
	go c.saveSnapshotDetached(snapshot)
}

func (c *Controller) saveSnapshotDetached(snapshot eventlog.Snapshot) {
	defer c.snapshotWG.Done()

	saveCtx, cancel := context.WithTimeout(context.Background(), snapshotSaveTimeout)
	defer cancel()

	labels := map[string]string{labelEntityType: c.entityType, labelStatus: StatusSuccess}

	if err := c.log.SaveSnapshot(saveCtx, snapshot); err != nil {
		labels[labelStatus] = StatusError
		c.incrementCounter(saveCtx, ControllerSnapshotSavesMetric, labels)
		c.logWarn(saveCtx, logMsgSnapshotSaveFailed,
			logAttrEntityType, c.entityType,
			logAttrEntityID, c.entityID,
			logAttrPosition, snapshot.Position,
			logAttrError, err.Error())

		return
	}

	c.incrementCounter(saveCtx, ControllerSnapshotSavesMetric, labels)
	c.logDebug(saveCtx, logMsgSnapshotSaved,
		logAttrEntityType, c.entityType,
		logAttrEntityID, c.entityID,
		logAttrPosition, snapshot.Position)
}
