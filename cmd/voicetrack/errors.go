package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/voicetrack/voicetrack/internal/types"
)

// Pipeline steps named in error payloads
const (
	stepTranscription = "transcription"
	stepRunInit       = "run-init"
	stepGenerate      = "candidate-generation"
	stepApply         = "apply"
	stepLoad          = "load"
)

// Exit codes
const (
	exitOK         = 0
	exitError      = 1
	exitValidation = 2
	exitPartial    = 3
)

// errPartialFailure marks an apply where at least one index failed
var errPartialFailure = errors.New("some issues could not be created")

// stepError records which pipeline step failed
type stepError struct {
	step string
	err  error
}

func (e *stepError) Error() string { return e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

func withStep(step string, err error) error {
	if err == nil {
		return nil
	}
	var se *stepError
	if errors.As(err, &se) {
		return err
	}
	return &stepError{step: step, err: err}
}

// errorKind classifies err for the error payload
func errorKind(err error) string {
	switch {
	case errors.Is(err, errPartialFailure):
		return "partial_failure"
	case errors.Is(err, types.ErrApprovalRequired):
		return "approval_required"
	case errors.Is(err, types.ErrConsentRequired):
		return "consent_required"
	case errors.Is(err, types.ErrNotFound):
		return "not_found"
	case errors.Is(err, types.ErrValidation):
		return "validation"
	case errors.Is(err, types.ErrPrecondition):
		return "precondition"
	default:
		return "error"
	}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	switch errorKind(err) {
	case "partial_failure":
		return exitPartial
	case "error":
		return exitError
	default:
		return exitValidation
	}
}

// errorPayload is printed on stderr for every failed command
type errorPayload struct {
	OK    bool   `json:"ok"`
	Step  string `json:"step,omitempty"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

func printError(w io.Writer, err error) {
	payload := errorPayload{Kind: errorKind(err), Error: err.Error()}
	var se *stepError
	if errors.As(err, &se) {
		payload.Step = se.step
	}
	data, merr := json.Marshal(payload)
	if merr != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(w, string(data))
}
