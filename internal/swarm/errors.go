package swarm

import (
	"errors"

	"github.com/dyluth/brock/internal/metrics"
	"github.com/dyluth/brock/pkg/ledger"
)

// Kind classifies a failure by what the caller can do about it.
type Kind int

const (
	// KindInternal is an infrastructure failure (Redis unreachable, corrupt record).
	KindInternal Kind = iota
	// KindValidation means the input is malformed; resubmit corrected input.
	KindValidation
	// KindPrecondition means the ledger is in the wrong state for the operation.
	KindPrecondition
	// KindAuthorization means the caller does not control the referenced identity.
	KindAuthorization
	// KindDuplicate marks an idempotency boundary: the effect already happened.
	KindDuplicate
	// KindNotFound means a referenced record does not exist.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPrecondition:
		return "precondition"
	case KindAuthorization:
		return "authorization"
	case KindDuplicate:
		return "duplicate"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a typed rejection of an operation. Nothing was written when an
// operation returns one.
//
// Errors compare by Code, so errors.Is(err, swarm.ErrNotApproved) matches any
// NotApproved rejection regardless of its message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Is matches another *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// With returns a copy of the sentinel carrying a message.
func (e *Error) With(message string) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: message}
}

// Wrap returns a copy of the sentinel carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: cause.Error(), cause: cause}
}

func newSentinel(kind Kind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

// Validation errors.
var (
	ErrTooManyCapabilities         = newSentinel(KindValidation, "TooManyCapabilities")
	ErrInvalidAgentType            = newSentinel(KindValidation, "InvalidAgentType")
	ErrInvalidCapability           = newSentinel(KindValidation, "InvalidCapability")
	ErrTooManyRequiredCapabilities = newSentinel(KindValidation, "TooManyRequiredCapabilities")
	ErrNoRequiredCapabilities      = newSentinel(KindValidation, "NoRequiredCapabilities")
	ErrActionPlanTooLong           = newSentinel(KindValidation, "ActionPlanTooLong")
	ErrInvalidUrgency              = newSentinel(KindValidation, "InvalidUrgency")
	ErrInvalidCloseStatus          = newSentinel(KindValidation, "InvalidCloseStatus")
	ErrInvalidSeverity             = newSentinel(KindValidation, "InvalidSeverity")
	ErrDescriptionTooLong          = newSentinel(KindValidation, "DescriptionTooLong")
	ErrInvalidThreatType           = newSentinel(KindValidation, "InvalidThreatType")
	ErrInvalidThreatStatus         = newSentinel(KindValidation, "InvalidThreatStatus")
	ErrInvalidAddress              = newSentinel(KindValidation, "InvalidAddress")
	ErrReasonTooLong               = newSentinel(KindValidation, "ReasonTooLong")
	ErrInvalidActionType           = newSentinel(KindValidation, "InvalidActionType")
	ErrInvalidReasoningLength      = newSentinel(KindValidation, "InvalidReasoningLength")
	ErrHashMismatch                = newSentinel(KindValidation, "HashMismatch")
)

// Precondition errors.
var (
	ErrNotInitialized          = newSentinel(KindPrecondition, "NotInitialized")
	ErrAgentInactive           = newSentinel(KindPrecondition, "AgentInactive")
	ErrNotPending              = newSentinel(KindPrecondition, "NotPending")
	ErrMissingCapabilities     = newSentinel(KindPrecondition, "MissingCapabilities")
	ErrParticipantLimitReached = newSentinel(KindPrecondition, "ParticipantLimitReached")
	ErrNotParticipant          = newSentinel(KindPrecondition, "NotParticipant")
	ErrNotApproved             = newSentinel(KindPrecondition, "NotApproved")
	ErrAlreadyClosed           = newSentinel(KindPrecondition, "AlreadyClosed")
	ErrNotExecuted             = newSentinel(KindPrecondition, "NotExecuted")
	ErrCannotConfirmOwn        = newSentinel(KindPrecondition, "CannotConfirmOwn")
	ErrTooManyConfirmations    = newSentinel(KindPrecondition, "TooManyConfirmations")
	ErrNotRevealed             = newSentinel(KindPrecondition, "NotRevealed")
)

// Authorization errors.
var (
	ErrUnauthorized = newSentinel(KindAuthorization, "Unauthorized")
)

// Duplicate errors.
var (
	ErrAlreadyInitialized = newSentinel(KindDuplicate, "AlreadyInitialized")
	ErrAlreadyRegistered  = newSentinel(KindDuplicate, "AlreadyRegistered")
	ErrAlreadyJoined      = newSentinel(KindDuplicate, "AlreadyJoined")
	ErrAlreadyVoted       = newSentinel(KindDuplicate, "AlreadyVoted")
	ErrAlreadyConfirmed   = newSentinel(KindDuplicate, "AlreadyConfirmed")
	ErrAlreadyWatchlisted = newSentinel(KindDuplicate, "AlreadyWatchlisted")
	ErrAlreadyCommitted   = newSentinel(KindDuplicate, "AlreadyCommitted")
	ErrAlreadyRevealed    = newSentinel(KindDuplicate, "AlreadyRevealed")
	ErrAlreadyReported    = newSentinel(KindDuplicate, "AlreadyReported")
)

// Not-found errors.
var (
	ErrAgentNotFound        = newSentinel(KindNotFound, "AgentNotFound")
	ErrCoordinationNotFound = newSentinel(KindNotFound, "CoordinationNotFound")
	ErrThreatNotFound       = newSentinel(KindNotFound, "ThreatNotFound")
	ErrCommitNotFound       = newSentinel(KindNotFound, "CommitNotFound")
)

// KindOf classifies any error. Errors that are not *Error are infrastructure
// failures and classify as KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the error code used as the metrics outcome label.
func CodeOf(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, ledger.ErrConflict) {
		return "Conflict"
	}
	return "Internal"
}
