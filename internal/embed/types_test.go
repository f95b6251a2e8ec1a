package embed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
)

func TestQuery_Success(t *testing.T) {
	r := Query(context.Background(), NewStaticEmbedder(), "refund policy")
	assert.True(t, r.OK())
	assert.Equal(t, ResultSuccess, r.Kind)
	assert.Len(t, r.Vector, StaticDimensions)
}

func TestQuery_NilEmbedderIsUnavailable(t *testing.T) {
	r := Query(context.Background(), nil, "x")
	assert.Equal(t, ResultUnavailable, r.Kind)
	assert.ErrorIs(t, r.Err, ErrUnavailable)
}

func TestQuery_NetworkErrorIsUnavailable(t *testing.T) {
	inner := &countingEmbedder{err: kberrors.NetworkError("down", nil)}
	r := Query(context.Background(), inner, "x")
	assert.Equal(t, ResultUnavailable, r.Kind)
	assert.Contains(t, r.Reason, "down")
}

func TestQuery_OtherErrorIsError(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("bad input")}
	r := Query(context.Background(), inner, "x")
	assert.Equal(t, ResultError, r.Kind)
	assert.Equal(t, "bad input", r.Reason)
	assert.Equal(t, "error", r.Kind.String())
}

func TestNew_Providers(t *testing.T) {
	ctx := context.Background()

	e, err := New(ctx, Options{Provider: ProviderStatic})
	assert.NoError(t, err)
	assert.Equal(t, StaticDimensions, e.Dimensions())
	_, ok := e.(*CachedEmbedder)
	assert.True(t, ok)

	_, err = New(ctx, Options{Provider: ProviderNone})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = New(ctx, Options{Provider: "word2vec"})
	assert.Error(t, err)
}
