package fem

import (
	"errors"
	"fmt"
)

// Errors returned by Model operations. Match them with errors.Is; the
// returned errors wrap these with the offending name or value.
var (
	ErrInvalidArgumentType = errors.New("invalid argument type")
	ErrInvalidShape        = errors.New("invalid shape")
	ErrInvalidValue        = errors.New("invalid value")
	ErrUnknownTissue       = errors.New("unknown tissue")
	ErrUnknownSensor       = errors.New("unknown sensor")
	ErrDuplicateName       = errors.New("duplicate name")
	ErrValueArity          = errors.New("invalid number of values per element")

	// ErrTissueCountMismatch is an ErrInvalidValue.
	ErrTissueCountMismatch = fmt.Errorf("%w: tissue names do not match the labels", ErrInvalidValue)
)
