package registry

import (
	"errors"
	"fmt"
)

// Sentinel errors for registry resolution.
var (
	// ErrConnectionNotFound indicates no connection exists for the id.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrConnectionDisabled indicates the connection exists but its
	// enabled flag is off.
	ErrConnectionDisabled = errors.New("connection disabled")
)

// NotFoundError carries the missing id. Unwraps to
// ErrConnectionNotFound.
type NotFoundError struct {
	ConnectionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("connection %q not found", e.ConnectionID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrConnectionNotFound
}

// FolderAssignedError reports a folder-uniqueness violation, naming the
// connection that already owns the folder.
type FolderAssignedError struct {
	FolderID string
	OwnerID  string
}

func (e *FolderAssignedError) Error() string {
	return fmt.Sprintf("folder %q is already assigned to connection %q", e.FolderID, e.OwnerID)
}

// IsFolderAssigned reports whether err is a folder-uniqueness
// violation.
func IsFolderAssigned(err error) bool {
	var fe *FolderAssignedError
	return errors.As(err, &fe)
}
