// Package embed provides the embedding capability: text in, fixed-size
// vector out. Callers that must handle an absent or failing capability use
// Query, which reports the outcome as a tagged Result.
package embed

import (
	"context"
	"errors"
	"fmt"
	"math"

	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
)

const (
	// StaticDimensions is the vector size of the static embedder.
	StaticDimensions = 256

	// DefaultBatchSize is the number of texts sent per provider request.
	DefaultBatchSize = 32
)

// ErrUnavailable reports that no embedding capability is configured or
// reachable.
var ErrUnavailable = errors.New("embedding capability unavailable")

// Embedder generates vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	// Available reports whether the embedder can serve requests now.
	Available(ctx context.Context) bool
	Close() error
}

// ResultKind tags a Result.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultUnavailable
	ResultError
)

func (k ResultKind) String() string {
	switch k {
	case ResultSuccess:
		return "success"
	case ResultUnavailable:
		return "unavailable"
	default:
		return "error"
	}
}

// Result is the outcome of one embedding request: a vector, an
// unavailable capability, or a failure with a reason.
type Result struct {
	Kind   ResultKind
	Vector []float32
	Reason string
	Err    error
}

func Success(v []float32) Result { return Result{Kind: ResultSuccess, Vector: v} }

func Unavailable(reason string) Result {
	return Result{Kind: ResultUnavailable, Reason: reason, Err: ErrUnavailable}
}

func Failure(err error) Result {
	return Result{Kind: ResultError, Reason: err.Error(), Err: err}
}

// OK reports a successful result.
func (r Result) OK() bool { return r.Kind == ResultSuccess }

// Query embeds text and classifies the outcome. A nil embedder, ErrUnavailable
// and network failures are Unavailable; anything else is an Error.
func Query(ctx context.Context, e Embedder, text string) Result {
	if e == nil {
		return Unavailable("no embedder configured")
	}
	v, err := e.Embed(ctx, text)
	if err != nil {
		return classify(err)
	}
	if len(v) != e.Dimensions() {
		return Failure(fmt.Errorf("embedder returned %d dimensions, want %d", len(v), e.Dimensions()))
	}
	return Success(v)
}

func classify(err error) Result {
	if errors.Is(err, ErrUnavailable) ||
		kberrors.GetCategory(err) == kberrors.CategoryNetwork {
		return Result{Kind: ResultUnavailable, Reason: err.Error(), Err: err}
	}
	return Failure(err)
}

// normalizeVector returns v scaled to unit length. Zero vectors are
// returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
