package llmprovider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name string
	resp Response
	err  error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, req Request) (Response, error) {
	if f.err != nil {
		return Response{}, f.err
	}
	return f.resp, nil
}

func TestFailoverReturnsFirstSuccess(t *testing.T) {
	f := NewFailover(nil, &fakeProvider{name: "a", resp: Response{Text: "hi"}})
	resp, err := f.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Text)
}

func TestFailoverFallsThroughToNextProviderOnError(t *testing.T) {
	f := NewFailover(nil,
		&fakeProvider{name: "a", err: errors.New("down")},
		&fakeProvider{name: "b", resp: Response{Text: "from b"}},
	)
	resp, err := f.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "from b", resp.Text)
}

func TestFailoverReturnsJoinedErrorWhenAllProvidersFail(t *testing.T) {
	f := NewFailover(nil,
		&fakeProvider{name: "a", err: errors.New("down a")},
		&fakeProvider{name: "b", err: errors.New("down b")},
	)
	_, err := f.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down a")
	assert.Contains(t, err.Error(), "down b")
}

func TestFailoverWithNoProvidersIsAnError(t *testing.T) {
	f := NewFailover(nil)
	_, err := f.Complete(context.Background(), Request{})
	require.Error(t, err)
}

func TestFailoverNameReflectsFirstProvider(t *testing.T) {
	f := NewFailover(nil, &fakeProvider{name: "anthropic"}, &fakeProvider{name: "openai"})
	assert.Equal(t, "failover(anthropic...)", f.Name())
}

func TestFailoverNameWithNoProviders(t *testing.T) {
	f := NewFailover(nil)
	assert.Equal(t, "failover(empty)", f.Name())
}
