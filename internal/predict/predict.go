// Package predict turns indicator readings into graded directional predictions.
// Predictors may be local rule tables or remote models; the Engine wraps any of
// them with caching, a timeout race and a non-failing fallback.
package predict

import (
	"context"
	"errors"
	"fmt"

	"github.com/paralela17-sudo/tradepulse-bot/internal/signal"
)

// Request is the input for one prediction.
type Request struct {
	Symbol     string
	Name       string
	Price      float64
	Indicators signal.Indicators
}

// StreamFunc receives progressive rationale text. It may be nil.
type StreamFunc func(chunk string)

func (f StreamFunc) send(chunk string) {
	if f != nil {
		f(chunk)
	}
}

// Predictor produces a prediction or a classified error.
type Predictor interface {
	Name() string
	Predict(ctx context.Context, req Request, stream StreamFunc) (signal.Prediction, error)
}

// Kind classifies predictor failures.
type Kind string

const (
	KindTimeout           Kind = "TIMEOUT"
	KindQuota             Kind = "QUOTA"
	KindInvalidCredential Kind = "INVALID_KEY"
	KindOffline           Kind = "OFFLINE"
	KindGeneric           Kind = "API_ERROR"
)

// Error carries a failure kind across the predictor boundary.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind, treating deadline errors as timeouts.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindGeneric
}
