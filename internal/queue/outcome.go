package queue

import (
	"context"
	"fmt"
)

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRetry
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	case OutcomeFatal:
		return "fatal"
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

// Outcome is what a handler reports back to the worker. Retryable
// outcomes are delayed and tried again until attempts run out; fatal ones
// go straight to the dead list.
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

func Success() Outcome            { return Outcome{Kind: OutcomeSuccess} }
func Retry(err error) Outcome     { return Outcome{Kind: OutcomeRetry, Err: err} }
func Fatal(err error) Outcome     { return Outcome{Kind: OutcomeFatal, Err: err} }
func (o Outcome) IsSuccess() bool { return o.Kind == OutcomeSuccess }

// Handler processes one job.
type Handler interface {
	Handle(ctx context.Context, job Job) Outcome
}

type HandlerFunc func(ctx context.Context, job Job) Outcome

func (f HandlerFunc) Handle(ctx context.Context, job Job) Outcome { return f(ctx, job) }
