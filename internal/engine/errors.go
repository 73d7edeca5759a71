package engine

import "errors"

var (
	// ErrConflictingAction is returned when a command targets a counterparty
	// that already has an unsettled action. No remote call is made.
	ErrConflictingAction = errors.New("another action is already in progress for this counterparty")
	// ErrInvalidState is returned when the target record is not in the state
	// the command requires.
	ErrInvalidState = errors.New("counterparty is not in a state that allows this command")
	// ErrNoRecord is returned when a command other than send targets an
	// unknown counterparty.
	ErrNoRecord = errors.New("no relationship record for counterparty")
	// ErrUnknownCommand is returned for commands outside the dispatch table.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrAuthRequired is returned when global search is attempted without a
	// valid session. Results are suppressed; nothing else is affected.
	ErrAuthRequired = errors.New("authentication required for global search")
	// ErrEngineStopped is returned when the engine's task loop has exited.
	ErrEngineStopped = errors.New("engine stopped")
)
