package storage

import "errors"

// Common storage errors
var (
	// ErrNodeNotFound indicates that node was not found in storage
	ErrNodeNotFound = errors.New("node not found")

	// ErrNodeAlreadyExists indicates that node with this hostname already exists
	ErrNodeAlreadyExists = errors.New("node already exists")

	// ErrGroupNotFound indicates that sync group was not found
	ErrGroupNotFound = errors.New("sync group not found")

	// ErrGroupAlreadyExists indicates that sync group with this name already exists
	ErrGroupAlreadyExists = errors.New("sync group already exists")

	// ErrSyncStateNotFound indicates that sync state record was not found
	ErrSyncStateNotFound = errors.New("sync state not found")
)
