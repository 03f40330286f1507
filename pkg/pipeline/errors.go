package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrMissingField    = errors.New("missing required field")
	ErrInvalidStage    = errors.New("invalid stage")
	ErrForbidden       = errors.New("application belongs to another silo")
	ErrStageConflict   = errors.New("card is no longer in the expected stage")
	ErrMoveInProgress  = errors.New("another move of this application is in progress")
	ErrInvalidStageSet = errors.New("invalid stage configuration")
)

func missingField(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, name)
}
