// Package auth defines the error taxonomy for board operations and the
// single-principal check every mutating call goes through.
package auth

import "fmt"

// UnauthorizedError indicates the caller is not the principal an
// operation acts for.
type UnauthorizedError struct {
	Principal string
}

func (e UnauthorizedError) Error() string {
	return fmt.Sprintf("caller is not %s", e.Principal)
}

// NotRegisteredError indicates a developer has no profile on the board.
type NotRegisteredError struct {
	Developer string
}

func (e NotRegisteredError) Error() string {
	return fmt.Sprintf("developer %s is not registered", e.Developer)
}

// NotAssignedError indicates a developer is not the assignee of a bounty.
type NotAssignedError struct {
	Developer string
	BountyID  int64
}

func (e NotAssignedError) Error() string {
	return fmt.Sprintf("developer %s is not assigned to bounty %d", e.Developer, e.BountyID)
}

// InvalidStateError indicates a bounty is not in a status the operation
// accepts.
type InvalidStateError struct {
	Op     string
	Status string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s bounty in status %s", e.Op, e.Status)
}

// TransferFailedError wraps a token movement failure. The surrounding
// transaction rolls back, so no record changes survive it.
type TransferFailedError struct {
	Err error
}

func (e TransferFailedError) Error() string {
	return fmt.Sprintf("token transfer failed: %v", e.Err)
}

func (e TransferFailedError) Unwrap() error {
	return e.Err
}

// RequireCaller checks that the authenticated caller is the principal the
// operation names. Every mutating operation runs this before touching
// any state.
func RequireCaller(caller, principal string) error {
	if caller == "" || caller != principal {
		return UnauthorizedError{Principal: principal}
	}
	return nil
}
