package engine

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"pronet-go/internal/models"
	"pronet-go/internal/remote"
)

// Command is a relationship-mutating operation dispatched by the UI.
type Command string

const (
	CommandSend     Command = "send"
	CommandAccept   Command = "accept"
	CommandReject   Command = "reject"
	CommandWithdraw Command = "withdraw"
	CommandRemove   Command = "remove"
)

// commandSpec fixes the precondition and in-flight tag per command.
type commandSpec struct {
	action   models.ActionKind
	requires models.RelationState
	// optimistic is the state applied before the remote call settles, or ""
	// when no speculative transition is safe (withdraw/remove/reject keep
	// their record until confirmed to avoid a flash of contradictory UI).
	optimistic models.RelationState
}

var commandSpecs = map[Command]commandSpec{
	CommandSend:     {action: models.ActionSending, requires: models.RelationStateNone, optimistic: models.RelationStateOutgoingPending},
	CommandAccept:   {action: models.ActionAccepting, requires: models.RelationStateIncomingPending, optimistic: models.RelationStateConnected},
	CommandReject:   {action: models.ActionRejecting, requires: models.RelationStateIncomingPending},
	CommandWithdraw: {action: models.ActionWithdrawing, requires: models.RelationStateOutgoingPending},
	CommandRemove:   {action: models.ActionRemoving, requires: models.RelationStateConnected},
}

// Dispatch validates the command, applies the optimistic transition, and
// launches the remote call. It returns once the optimistic phase is done;
// the settle (commit or rollback) happens asynchronously on the engine's
// own lifetime, so a caller returning (and cancelling its request context)
// never aborts the remote call.
func (e *Engine) Dispatch(cmd Command, counterpartyID string) error {
	spec, ok := commandSpecs[cmd]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
	if counterpartyID == "" {
		return fmt.Errorf("%w: empty counterparty id", ErrNoRecord)
	}

	var dispatchErr error
	if err := e.call(func() {
		dispatchErr = e.beginCommand(cmd, spec, counterpartyID)
	}); err != nil {
		return err
	}
	return dispatchErr
}

// beginCommand runs on the task loop: precondition check, optimistic
// transition, and launch of the remote call.
func (e *Engine) beginCommand(cmd Command, spec commandSpec, counterpartyID string) error {
	rec, exists := e.repo.Get(counterpartyID)

	if !exists {
		if cmd != CommandSend {
			return fmt.Errorf("%w: %s", ErrNoRecord, counterpartyID)
		}
		// Send may target a user known only through global search; a
		// minimal record is created so the optimistic state has a home.
		rec = &models.RelationshipRecord{
			CounterpartyID: counterpartyID,
			Profile:        e.globalProfileFor(counterpartyID),
			State:          models.RelationStateNone,
			CreatedAt:      time.Now(),
			LastSeenAt:     time.Now(),
		}
		e.repo.Upsert(rec)
	}

	if !rec.Settled() {
		return fmt.Errorf("%w: %s (%s)", ErrConflictingAction, counterpartyID, rec.InFlight)
	}
	if rec.State != spec.requires {
		return fmt.Errorf("%w: %s is %s, command %s requires %s",
			ErrInvalidState, counterpartyID, rec.State, cmd, spec.requires)
	}

	prevState := rec.State
	if spec.optimistic != "" {
		optimistic := rec.Clone()
		optimistic.State = spec.optimistic
		optimistic.LastSeenAt = time.Now()
		e.repo.Upsert(optimistic)
	}
	if !e.repo.BeginAction(counterpartyID, spec.action) {
		// Lost a race that the Get above could not see; treat as conflict.
		return fmt.Errorf("%w: %s", ErrConflictingAction, counterpartyID)
	}

	correlationID := uuid.NewString()
	log.Printf("engine: command %s for %s dispatched (correlation %s)", cmd, counterpartyID, correlationID)
	e.notifyForCommand(cmd)

	go e.runRemote(cmd, counterpartyID, prevState, !exists, correlationID)
	return nil
}

// runRemote performs the remote call off-loop and posts the settle.
func (e *Engine) runRemote(cmd Command, counterpartyID string, prevState models.RelationState, created bool, correlationID string) {
	var res *remote.ActionResult
	var err error

	switch cmd {
	case CommandSend:
		res, err = e.client.SendConnectionRequest(e.runCtx, counterpartyID)
	case CommandAccept:
		res, err = e.client.AcceptConnectionRequest(e.runCtx, counterpartyID)
	case CommandReject:
		res, err = e.client.RejectConnectionRequest(e.runCtx, counterpartyID)
	case CommandWithdraw:
		res, err = e.client.WithdrawConnectionRequest(e.runCtx, counterpartyID)
	case CommandRemove:
		res, err = e.client.RemoveConnection(e.runCtx, counterpartyID)
	}
	if err == nil && res != nil && !res.Success {
		err = fmt.Errorf("%w: %s", remote.ErrRemote, res.Message)
	}

	if err != nil {
		e.post(func() { e.rollback(cmd, counterpartyID, prevState, created, correlationID, err) })
		return
	}

	// The settle delay is a user-visible confirmation window only; other
	// operations keep flowing while it runs. A settle firing after shutdown
	// is dropped by post: the in-memory record it would finalize dies with
	// the process, and no state is persisted mid-action.
	message := ""
	if res != nil {
		message = res.Message
	}
	time.AfterFunc(e.cfg.SettleDelay, func() {
		e.post(func() { e.commit(cmd, counterpartyID, correlationID, message) })
	})
}

// rollback runs on the task loop. The optimistic transition is reverted
// and the error is surfaced for this counterparty only.
func (e *Engine) rollback(cmd Command, counterpartyID string, prevState models.RelationState, created bool, correlationID string, cause error) {
	if created {
		// The record only existed for this command; drop it entirely.
		e.repo.SettleAndRemove(counterpartyID)
	} else {
		e.repo.SettleAction(counterpartyID, func(rec *models.RelationshipRecord) {
			rec.State = prevState
		})
	}

	log.Printf("engine: command %s for %s rolled back (correlation %s): %v", cmd, counterpartyID, correlationID, cause)
	e.mu.Lock()
	e.actionErrs[counterpartyID] = cause.Error()
	e.mu.Unlock()

	e.audit(ActionRecord{
		CorrelationID:  correlationID,
		Command:        cmd,
		CounterpartyID: counterpartyID,
		Outcome:        "rolled_back",
		Message:        cause.Error(),
		Timestamp:      time.Now(),
	})
	e.notifyForCommand(cmd)
}

// commit runs on the task loop after the settle delay and applies the
// final transition for a successful command.
func (e *Engine) commit(cmd Command, counterpartyID, correlationID, message string) {
	switch cmd {
	case CommandSend:
		e.repo.SettleAction(counterpartyID, func(rec *models.RelationshipRecord) {
			rec.State = models.RelationStateOutgoingPending
			rec.OriginView = models.ViewSent
		})
	case CommandAccept:
		e.repo.SettleAction(counterpartyID, func(rec *models.RelationshipRecord) {
			rec.State = models.RelationStateConnected
			rec.OriginView = models.ViewConnections
			rec.RequestID = ""
			rec.NotificationID = ""
		})
		// Re-fetch connections to pick up the full connection metadata.
		e.startFetch(models.ViewConnections)
	case CommandReject:
		// The record is kept as declined so a recommendations re-filter
		// can never resurrect a dismissed invitation.
		e.repo.SettleAction(counterpartyID, func(rec *models.RelationshipRecord) {
			rec.State = models.RelationStateDeclined
			rec.RequestID = ""
			rec.NotificationID = ""
		})
	case CommandWithdraw:
		// Equivalent to never having sent; the next recommendations fetch
		// may reintroduce the counterparty.
		e.repo.SettleAndRemove(counterpartyID)
	case CommandRemove:
		e.repo.SettleAndRemove(counterpartyID)
		// Refresh to update the connection count.
		e.startFetch(models.ViewConnections)
	}

	log.Printf("engine: command %s for %s settled (correlation %s)", cmd, counterpartyID, correlationID)
	e.mu.Lock()
	delete(e.actionErrs, counterpartyID)
	e.mu.Unlock()

	e.audit(ActionRecord{
		CorrelationID:  correlationID,
		Command:        cmd,
		CounterpartyID: counterpartyID,
		Outcome:        "settled",
		Message:        message,
		Timestamp:      time.Now(),
	})
	e.persistProfiles()
	e.notifyForCommand(cmd)
}

// notifyForCommand tells clients which views a command touches. The
// recommendations view is always included because it is re-filtered against
// the repository after every mutation.
func (e *Engine) notifyForCommand(cmd Command) {
	switch cmd {
	case CommandSend:
		e.notifyChanged(models.ViewSent, models.ViewRecommendations)
	case CommandAccept:
		e.notifyChanged(models.ViewInvitations, models.ViewConnections, models.ViewRecommendations)
	case CommandReject:
		e.notifyChanged(models.ViewInvitations, models.ViewRecommendations)
	case CommandWithdraw:
		e.notifyChanged(models.ViewSent, models.ViewRecommendations)
	case CommandRemove:
		e.notifyChanged(models.ViewConnections, models.ViewRecommendations)
	}
}

// ActionError returns the last surfaced error for a counterparty, if any.
func (e *Engine) ActionError(counterpartyID string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	msg, ok := e.actionErrs[counterpartyID]
	return msg, ok
}
