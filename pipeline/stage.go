// Package pipeline implements the bounded, multi-stage worker runtime the
// backup and restore orchestrators run file work items through (spec.md
// §4.2, §4.5, §4.7, §9 "Pipeline as tagged stages").
//
// A Stage is one variant of a small tagged sum type: Thread runs its
// function on a pool of goroutines; Subprocess runs an external command
// once per work item, feeding it the item's bytes on stdin and capturing
// stdout; SubprocessPiped does the same but wires its stdout directly into
// an io.Pipe so the next stage can start consuming before the subprocess
// finishes, avoiding a temp file. Dispatch is based on the Stage's Kind,
// mirroring the way claircore's LayerScanner dispatches work by scanner
// kind (indexer/layerscanner.go).
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
)

// Kind tags which of the three Stage variants a Stage value is.
type Kind int

const (
	// Thread runs Fn directly on a pool goroutine.
	Thread Kind = iota
	// Subprocess runs Command once per item, writing Encode(item) to its
	// stdin and passing its buffered stdout to Decode.
	Subprocess
	// SubprocessPiped is like Subprocess but streams stdout to Decode
	// through an io.Pipe instead of buffering it, so a downstream
	// consumer can start before the subprocess exits.
	SubprocessPiped
)

func (k Kind) String() string {
	switch k {
	case Thread:
		return "thread"
	case Subprocess:
		return "subprocess"
	case SubprocessPiped:
		return "subprocess-piped"
	default:
		return "unknown"
	}
}

// WorkFunc processes one item on a Thread stage.
type WorkFunc[T any] func(ctx context.Context, item T) (T, error)

// CommandFunc builds the external command to run for one item on a
// Subprocess or SubprocessPiped stage. Returning a nil *exec.Cmd from
// either kind of stage's CommandFunc tells the stage to fall back to an
// in-process implementation (Fn) instead of exec'ing anything.
type CommandFunc[T any] func(ctx context.Context, item T) (*exec.Cmd, error)

// Codec serializes/deserializes T across a subprocess boundary.
type Codec[T any] struct {
	Encode func(item T) ([]byte, error)
	Decode func(item T, r io.Reader) (T, error)
}

// Stage is one pipeline stage. Exactly one of Fn or Command is consulted,
// depending on Kind.
type Stage[T any] struct {
	Name    string
	Kind    Kind
	Fn      WorkFunc[T]
	Command CommandFunc[T]
	Codec   Codec[T]
}

// run dispatches item to the stage's variant, timing it via observeStage.
func (s *Stage[T]) run(ctx context.Context, item T) (T, error) {
	return observeStage(s, func() (T, error) {
		switch s.Kind {
		case Thread:
			if s.Fn == nil {
				var zero T
				return zero, fmt.Errorf("pipeline: stage %q: thread stage has no Fn", s.Name)
			}
			return s.Fn(ctx, item)
		case Subprocess:
			return s.runSubprocess(ctx, item, false)
		case SubprocessPiped:
			return s.runSubprocess(ctx, item, true)
		default:
			var zero T
			return zero, fmt.Errorf("pipeline: stage %q: unknown kind %v", s.Name, s.Kind)
		}
	})
}

func (s *Stage[T]) runSubprocess(ctx context.Context, item T, piped bool) (T, error) {
	var zero T
	cmd, err := s.Command(ctx, item)
	if err != nil {
		return zero, fmt.Errorf("pipeline: stage %q: building command: %w", s.Name, err)
	}
	if cmd == nil {
		if s.Fn == nil {
			return zero, fmt.Errorf("pipeline: stage %q: no command and no Fn fallback", s.Name)
		}
		return s.Fn(ctx, item)
	}

	in, err := s.Codec.Encode(item)
	if err != nil {
		return zero, fmt.Errorf("pipeline: stage %q: encoding item: %w", s.Name, err)
	}
	cmd.Stdin = bytes.NewReader(in)

	if !piped {
		out, err := cmd.Output()
		if err != nil {
			return zero, fmt.Errorf("pipeline: stage %q: subprocess: %w", s.Name, err)
		}
		return s.Codec.Decode(item, bytes.NewReader(out))
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return zero, fmt.Errorf("pipeline: stage %q: stdout pipe: %w", s.Name, err)
	}
	if err := cmd.Start(); err != nil {
		return zero, fmt.Errorf("pipeline: stage %q: starting subprocess: %w", s.Name, err)
	}
	result, decodeErr := s.Codec.Decode(item, stdout)
	waitErr := cmd.Wait()
	if decodeErr != nil {
		return zero, fmt.Errorf("pipeline: stage %q: decoding piped output: %w", s.Name, decodeErr)
	}
	if waitErr != nil {
		return zero, fmt.Errorf("pipeline: stage %q: subprocess: %w", s.Name, waitErr)
	}
	return result, nil
}
