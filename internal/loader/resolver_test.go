package loader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var widget = Identity{Name: "Widget", ContractVersion: "1"}

func newTestResolver(t *testing.T, reg *fakeRegistry) *Resolver {
	t.Helper()
	r, err := NewResolver(reg, &recordLogger{})
	require.NoError(t, err)
	return r
}

func TestNewResolverRequiresClient(t *testing.T) {
	_, err := NewResolver(nil, nil)
	assert.Error(t, err)
}

func TestResolveSharesInFlightRequest(t *testing.T) {
	reg := &fakeRegistry{gate: make(chan struct{}), md: Metadata{ArtifactURL: "https://cdn/a.js"}}
	r := newTestResolver(t, reg)
	req := ResolveRequest{Identity: widget, Hostname: "https://registry"}

	first := r.lookup(context.Background(), req)
	second := r.lookup(context.Background(), req)
	assert.Same(t, first, second)

	close(reg.gate)
	var wg sync.WaitGroup
	results := make([]Metadata, 2)
	for i, c := range []*call[Metadata]{first, second} {
		wg.Add(1)
		go func(i int, c *call[Metadata]) {
			defer wg.Done()
			md, err := c.wait(context.Background())
			assert.NoError(t, err)
			results[i] = md
		}(i, c)
	}
	wg.Wait()

	assert.Equal(t, int32(1), reg.calls.Load())
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, "https://cdn/a.js", results[0].ArtifactURL)
}

func TestResolveSharesInFlightFailure(t *testing.T) {
	reg := &fakeRegistry{
		gate:    make(chan struct{}),
		results: []registryResult{{err: errors.New("connection refused")}},
	}
	r := newTestResolver(t, reg)
	req := ResolveRequest{Identity: widget, Hostname: "https://registry"}

	first := r.lookup(context.Background(), req)
	second := r.lookup(context.Background(), req)
	require.Same(t, first, second)
	close(reg.gate)

	_, err1 := first.wait(context.Background())
	_, err2 := second.wait(context.Background())
	assert.True(t, IsKind(err1, KindResolutionTransport))
	assert.Equal(t, err1, err2)
	assert.Equal(t, int32(1), reg.calls.Load())
}

func TestResolveDoesNotCacheFailures(t *testing.T) {
	reg := &fakeRegistry{
		results: []registryResult{{err: &StatusError{Code: 500, Body: "oops"}}},
		md:      Metadata{ArtifactURL: "https://cdn/a.js"},
	}
	r := newTestResolver(t, reg)
	req := ResolveRequest{Identity: widget, Hostname: "https://registry"}

	_, err := r.Resolve(context.Background(), req)
	require.Error(t, err)

	md, err := r.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/a.js", md.ArtifactURL)
	assert.Equal(t, int32(2), reg.calls.Load())
}

func TestResolveTTL(t *testing.T) {
	reg := &fakeRegistry{md: Metadata{ArtifactURL: "https://cdn/a.js"}}
	r := newTestResolver(t, reg)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	t.Run("entry is reused until the ttl elapses", func(t *testing.T) {
		req := ResolveRequest{Identity: widget, Hostname: "https://registry", CacheTTL: TTL(time.Minute)}
		_, err := r.Resolve(context.Background(), req)
		require.NoError(t, err)

		now = now.Add(30 * time.Second)
		_, err = r.Resolve(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, int32(1), reg.calls.Load())

		now = now.Add(31 * time.Second)
		_, err = r.Resolve(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, int32(2), reg.calls.Load())
	})

	t.Run("zero ttl always refetches", func(t *testing.T) {
		reg.calls.Store(0)
		req := ResolveRequest{Identity: widget, Hostname: "https://registry", CacheTTL: TTL(0)}
		for i := 0; i < 2; i++ {
			_, err := r.Resolve(context.Background(), req)
			require.NoError(t, err)
		}
		assert.Equal(t, int32(2), reg.calls.Load())
	})

	t.Run("nil ttl never expires", func(t *testing.T) {
		reg.calls.Store(0)
		req := ResolveRequest{Identity: widget, Hostname: "https://registry"}
		now = now.Add(24 * time.Hour)
		_, err := r.Resolve(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, int32(0), reg.calls.Load())
	})
}

func TestResolveKeysByHostname(t *testing.T) {
	reg := &fakeRegistry{md: Metadata{ArtifactURL: "https://cdn/a.js"}}
	r := newTestResolver(t, reg)

	_, err := r.Resolve(context.Background(), ResolveRequest{Identity: widget, Hostname: "https://one"})
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), ResolveRequest{Identity: widget, Hostname: "https://two"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), reg.calls.Load())

	r.Forget(widget, "https://one")
	_, err = r.Resolve(context.Background(), ResolveRequest{Identity: widget, Hostname: "https://one"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), reg.calls.Load())
}

func TestResolveRetries(t *testing.T) {
	reg := &fakeRegistry{
		results: []registryResult{{err: errors.New("reset")}, {err: errors.New("reset")}},
		md:      Metadata{ArtifactURL: "https://cdn/a.js"},
	}
	r := newTestResolver(t, reg)

	md, err := r.Resolve(context.Background(), ResolveRequest{
		Identity:    widget,
		Hostname:    "https://registry",
		RetryPolicy: RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/a.js", md.ArtifactURL)
	assert.Equal(t, int32(3), reg.calls.Load())
}

func TestResolveErrorMessages(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind Kind
		want string
	}{
		{
			name: "http status",
			err:  &StatusError{URL: "https://registry/latest/Widget/1", Code: 404, Body: "not found"},
			kind: KindResolutionHTTP,
			want: "failed to fetch bundle Widget version 1 from API, with status 404 and body 'not found'",
		},
		{
			name: "malformed body",
			err:  ErrMalformedMetadata,
			kind: KindResolutionHTTP,
			want: "failed to fetch bundle Widget version 1 from API, while getting JSON body",
		},
		{
			name: "transport",
			err:  errors.New("dial tcp: refused"),
			kind: KindResolutionTransport,
			want: "failed to fetch bundle Widget version 1 from API, with error: dial tcp: refused",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := &fakeRegistry{results: []registryResult{{err: tc.err}}}
			r := newTestResolver(t, reg)
			_, err := r.Resolve(context.Background(), ResolveRequest{Identity: widget, Hostname: "https://registry"})
			require.Error(t, err)
			assert.True(t, IsKind(err, tc.kind), "kind %v", err)
			assert.EqualError(t, err, tc.want)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestResolveRegistryPanic(t *testing.T) {
	reg := &fakeRegistry{panics: "registry exploded"}
	r := newTestResolver(t, reg)

	_, err := r.Resolve(context.Background(), ResolveRequest{Identity: widget, Hostname: "https://registry"})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindResolutionTransport))
	assert.EqualError(t, err, "failed to fetch bundle Widget version 1 from API, with error: panic: registry exploded")

	reg.panics = ""
	reg.md = Metadata{ArtifactURL: "https://cdn/a.js"}
	md, err := r.Resolve(context.Background(), ResolveRequest{Identity: widget, Hostname: "https://registry"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/a.js", md.ArtifactURL)
}

func TestResolveCancelledWaiterLeavesSharedWork(t *testing.T) {
	reg := &fakeRegistry{gate: make(chan struct{}), md: Metadata{ArtifactURL: "https://cdn/a.js"}}
	r := newTestResolver(t, reg)
	req := ResolveRequest{Identity: widget, Hostname: "https://registry"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Resolve(ctx, req)
	assert.ErrorIs(t, err, context.Canceled)

	close(reg.gate)
	md, err := r.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/a.js", md.ArtifactURL)
	assert.Equal(t, int32(1), reg.calls.Load())
}

func TestResolveZeroTTLDoesNotShareInFlight(t *testing.T) {
	reg := &fakeRegistry{gate: make(chan struct{}), md: Metadata{ArtifactURL: "https://cdn/a.js"}}
	r := newTestResolver(t, reg)
	req := ResolveRequest{Identity: widget, Hostname: "https://registry", CacheTTL: TTL(0)}

	first := r.lookup(context.Background(), req)
	second := r.lookup(context.Background(), req)
	assert.NotSame(t, first, second)
	close(reg.gate)

	_, err := first.wait(context.Background())
	require.NoError(t, err)
	_, err = second.wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), reg.calls.Load())
}
