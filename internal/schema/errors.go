package schema

import "errors"

// Registration and finalization errors. All of these are configuration
// errors: they abort startup and are never recovered at resolution time.
var (
	ErrDuplicateType    = errors.New("entity type already registered")
	ErrUnknownType      = errors.New("unknown entity type")
	ErrUnknownField     = errors.New("unknown field")
	ErrFieldCollision   = errors.New("field name collides with inherited field")
	ErrInvalidField     = errors.New("invalid field definition")
	ErrInvalidChain     = errors.New("invalid source chain")
	ErrAmbiguousDefault = errors.New("direct-derived default is ambiguous")
	ErrFinalized        = errors.New("registry already finalized")
	ErrNotFinalized     = errors.New("registry not finalized")
)
