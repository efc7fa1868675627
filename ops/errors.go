package ops

import "errors"

// Error taxonomy shared by all operator engines. Callers match with
// errors.Is; the wrapped message carries the specifics.
var (
	// ErrConfiguration reports an unsupported element type or other bad
	// construction parameter.
	ErrConfiguration = errors.New("unsupported operator configuration")

	// ErrShape reports a tensor of the wrong rank
	ErrShape = errors.New("wrong tensor rank")

	// ErrUnsupportedShape reports a rank-correct shape absent from the
	// operator's catalog. Shapes never fall back to a nearest match.
	ErrUnsupportedShape = errors.New("shape not in operator catalog")

	// ErrShapeMismatch reports input/weight/output shapes inconsistent
	// with each other.
	ErrShapeMismatch = errors.New("mismatched operand shapes")

	// ErrUnregisteredKey reports a shape that passed catalog validation
	// but has no instruction registry entry. Catalog and registry are
	// built from the same shape list, so this is an internal invariant
	// violation, not a user error.
	ErrUnregisteredKey = errors.New("no instruction registered for key")
)
