package loader

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

type fakeRegistry struct {
	calls  atomic.Int32
	gate   chan struct{}
	panics string

	mu      sync.Mutex
	results []registryResult
	md      Metadata
}

type registryResult struct {
	md  Metadata
	err error
}

// FetchMetadata 依次返回 results 中的结果，用尽后返回 md。gate 非 nil 时先阻塞等待；panics 非空时直接 panic。
func (f *fakeRegistry) FetchMetadata(ctx context.Context, id Identity, hostname string) (Metadata, error) {
	f.calls.Add(1)
	if f.panics != "" {
		panic(f.panics)
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) > 0 {
		r := f.results[0]
		f.results = f.results[1:]
		return r.md, r.err
	}
	return f.md, nil
}

func (f *fakeRegistry) setMetadata(md Metadata) {
	f.mu.Lock()
	f.md = md
	f.mu.Unlock()
}

type fakeFetcher struct {
	mu      sync.Mutex
	sources map[string]string
	fails   map[string]int
	calls   map[string]int
}

func newFakeFetcher(sources map[string]string) *fakeFetcher {
	return &fakeFetcher{sources: sources, fails: map[string]int{}, calls: map[string]int{}}
}

func (f *fakeFetcher) FetchArtifact(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if f.fails[url] > 0 {
		f.fails[url]--
		return nil, &StatusError{URL: url, Code: 503}
	}
	src, ok := f.sources[url]
	if !ok {
		return nil, &StatusError{URL: url, Code: 404}
	}
	return []byte(src), nil
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// fakeExecutor 将产物源码视为模块值；源码 "nomodule"、"throw:<msg>" 与 "panic:<msg>"
// 分别模拟未 define、抛错与 panic。maxInflight 记录观察到的最大并发执行数。
type fakeExecutor struct {
	runs        atomic.Int32
	inflight    atomic.Int32
	maxInflight atomic.Int32
	gate        chan struct{}
}

func (e *fakeExecutor) Execute(ctx context.Context, artifact Artifact, deps Dependencies) (any, error) {
	e.runs.Add(1)
	n := e.inflight.Add(1)
	defer e.inflight.Add(-1)
	for {
		peak := e.maxInflight.Load()
		if n <= peak || e.maxInflight.CompareAndSwap(peak, n) {
			break
		}
	}
	if e.gate != nil {
		<-e.gate
	}
	src := string(artifact.Source)
	switch {
	case src == "nomodule":
		return nil, ErrNoModule
	case strings.HasPrefix(src, "throw:"):
		return nil, fmt.Errorf("%s", strings.TrimPrefix(src, "throw:"))
	case strings.HasPrefix(src, "panic:"):
		panic(strings.TrimPrefix(src, "panic:"))
	}
	return map[string]any{"source": src, "deps": len(deps)}, nil
}

type recordLogger struct {
	mu    sync.Mutex
	warns []string
	infos []string
}

func (l *recordLogger) Infof(format string, args ...any) {
	l.mu.Lock()
	l.infos = append(l.infos, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *recordLogger) Warnf(format string, args ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *recordLogger) Errorf(format string, args ...any) {
	l.Warnf(format, args...)
}
