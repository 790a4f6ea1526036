package bulk_operation

import "errors"

var (
	ErrNotFound             = errors.New("bulk operation not found")
	ErrInvalidOperationType = errors.New("invalid operation type")
	ErrInvalidSelection     = errors.New("invalid selection")
	ErrEmptySelection       = errors.New("selection resolved to no targets")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrApprovalRequired     = errors.New("operation requires approval")
	ErrNotReversible        = errors.New("operation is not reversible")
	ErrAlreadyRolledBack    = errors.New("operation already rolled back")
	ErrRollbackInProgress   = errors.New("rollback already in progress")

	// ErrStatusConflict is returned by stores when a conditional update lost the race.
	ErrStatusConflict = errors.New("status conflict")
)

// ErrorCode returns the stable API code of an engine error, or "" if err is not one.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrInvalidOperationType):
		return "InvalidOperationType"
	case errors.Is(err, ErrEmptySelection):
		return "EmptySelection"
	case errors.Is(err, ErrInvalidSelection):
		return "InvalidSelection"
	case errors.Is(err, ErrInvalidConfiguration):
		return "InvalidConfiguration"
	case errors.Is(err, ErrApprovalRequired):
		return "ApprovalRequired"
	case errors.Is(err, ErrNotReversible):
		return "NotReversible"
	case errors.Is(err, ErrAlreadyRolledBack):
		return "AlreadyRolledBack"
	case errors.Is(err, ErrRollbackInProgress):
		return "RollbackInProgress"
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrStatusConflict):
		return "InvalidTransition"
	}
	return ""
}
