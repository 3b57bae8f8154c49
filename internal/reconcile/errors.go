package reconcile

import "errors"

// Core error taxonomy. NotFound ошибки приходят из storage и оборачиваются;
// здесь только ошибки, которые порождает само ядро.
var (
	// ErrInvalidTopology indicates a directional group whose hub is missing
	// or is not a member. Surfaced as-is, never coerced to bidirectional.
	ErrInvalidTopology = errors.New("invalid sync group topology")

	// ErrUnknownStrategy indicates an unrecognized conflict resolution strategy
	ErrUnknownStrategy = errors.New("unknown resolution strategy")
)
