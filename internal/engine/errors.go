package engine

import (
	"errors"
	"fmt"
)

var (
	ErrSchemaMismatch = errors.New("engine: model schema version mismatch")
	ErrQuantMismatch  = errors.New("engine: configured quantization disagrees with model")
	ErrNotReady       = errors.New("engine: not ready")
	ErrInputLength    = errors.New("engine: wrong input length")
	ErrShape          = errors.New("engine: tensor shape mismatch")
)

// Setup stages reported by SetupError.
const (
	StageOpen     = "open"
	StageSchema   = "schema"
	StageLoad     = "load"
	StageAllocate = "allocate"
	StageShape    = "shape"
	StageQuant    = "quant"
)

// SetupError is returned by New when the engine cannot reach the ready
// state. The engine is unusable and no record should be processed.
type SetupError struct {
	Stage string
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("engine setup (%s): %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// InvokeError reports a failed inference for one record. The engine stays
// ready.
type InvokeError struct {
	Err error
}

func (e *InvokeError) Error() string {
	return fmt.Sprintf("inference failed: %v", e.Err)
}

func (e *InvokeError) Unwrap() error { return e.Err }
