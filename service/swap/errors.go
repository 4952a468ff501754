package swap

import (
	"errors"
	"fmt"
)

// Phase names the pipeline step a failure came from.
type Phase string

const (
	PhaseResolveTables Phase = "resolve_tables"
	PhaseBuild         Phase = "build_instructions"
	PhaseBlockhash     Phase = "fetch_blockhash"
	PhaseCompile       Phase = "compile"
	PhaseSign          Phase = "sign"
	PhaseSubmit        Phase = "submit"
)

var (
	// ErrInvalidInstructionData is returned when an instruction payload is not valid base64.
	ErrInvalidInstructionData = errors.New("invalid instruction data")

	// ErrAccountCountMismatch is returned when fewer accounts resolve than an instruction declares.
	ErrAccountCountMismatch = errors.New("resolved account count does not match declared count")

	// ErrInvalidProgramID is returned when an instruction's program id cannot be parsed.
	ErrInvalidProgramID = errors.New("invalid program id")

	// ErrTooManyAccounts is returned when a message references more accounts than the format allows.
	ErrTooManyAccounts = errors.New("too many account references")

	// ErrMessageTooLarge is returned when the signed transaction would exceed the packet size limit.
	ErrMessageTooLarge = errors.New("transaction too large")

	// ErrMissingSigner is returned when a message needs signatures the held key cannot provide.
	ErrMissingSigner = errors.New("message requires a signer that is not held")

	// ErrInvalidKey is returned for malformed signing key material.
	ErrInvalidKey = errors.New("invalid signing key")

	// ErrInvalidFeeRate is returned for priority fee rates that cannot be converted.
	ErrInvalidFeeRate = errors.New("invalid priority fee rate")
)

// PhaseError reports which pipeline phase failed.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// wrapPhase tags err with phase unless it already carries one.
func wrapPhase(phase Phase, err error) error {
	if err == nil {
		return nil
	}
	var pe *PhaseError
	if errors.As(err, &pe) {
		return err
	}
	return &PhaseError{Phase: phase, Err: err}
}

// PhaseOf returns the phase recorded in err, if any.
func PhaseOf(err error) (Phase, bool) {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase, true
	}
	return "", false
}

// Retryable reports whether re-running the whole pipeline with a fresh route,
// fresh tables, and a fresh blockhash could succeed. Build, sign, and submit
// failures are final; a submission that errored may still have landed.
func Retryable(err error) bool {
	phase, ok := PhaseOf(err)
	if !ok {
		return true
	}
	switch phase {
	case PhaseBuild, PhaseSign, PhaseSubmit:
		return false
	default:
		return true
	}
}

// SubmissionError carries the node's own description of a rejected transaction.
type SubmissionError struct {
	Code    int
	Message string
	Data    any
	Err     error
}

func (e *SubmissionError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("transaction rejected (code %d): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("transaction rejected: %s", e.Message)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
