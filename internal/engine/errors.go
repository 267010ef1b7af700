package engine

import "errors"

// Resolution and lifecycle errors. Unlike the schema package's
// registration errors these surface at runtime, as the failed result of a
// single field resolution; they never corrupt the cache.
var (
	ErrAbstractType       = errors.New("cannot instantiate abstract type")
	ErrBrokenChain        = errors.New("source chain broken")
	ErrNoDefault          = errors.New("no default instance configured")
	ErrNoSpecialInstance  = errors.New("no special instance configured")
	ErrUnsetRequiredField = errors.New("required field has no stored value")
	ErrDuplicateDefault   = errors.New("default instance already claimed")
	ErrDuplicateSpecial   = errors.New("special instance already claimed")
	ErrNotEditable        = errors.New("field is not editable")
	ErrDerivedWrite       = errors.New("cannot write to a derived field")
	ErrNullValue          = errors.New("null value for non-nullable field")
	ErrMissingComputation = errors.New("no computation registered for derived field")
	ErrMissingGetter      = errors.New("no default getter registered for field")
	ErrForeignInstance    = errors.New("instance belongs to a different container")
)
