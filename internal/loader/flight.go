package loader

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// call 是缓存中的共享结果 (pending 或 settled)。并发调用方等待同一个 call。
type call[T any] struct {
	done      chan struct{}
	val       T
	err       error
	createdAt time.Time
	sourceKey string
}

// wait 阻塞直到 call 结束或 ctx 取消；取消只影响当前等待者，不影响底层操作。
func (c *call[T]) wait(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// flightGroup 按 key 维护共享 call。失败的 call 在结果发布前被移除，从不缓存失败。
type flightGroup[T any] struct {
	mu    sync.Mutex
	calls map[string]*call[T]
}

// acquire 返回 key 对应的 call：若现有 call 满足 reuse 则复用，否则新建 call 并异步运行 fn。
// 被新 call 替换掉的旧 call 通过 superseded 返回。
func (g *flightGroup[T]) acquire(key, sourceKey string, now time.Time, reuse func(*call[T]) bool, fn func() (T, error)) (c *call[T], superseded *call[T]) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]*call[T])
	}
	if existing, ok := g.calls[key]; ok {
		if reuse(existing) {
			g.mu.Unlock()
			return existing, nil
		}
		superseded = existing
	}
	c = &call[T]{
		done:      make(chan struct{}),
		createdAt: now,
		sourceKey: sourceKey,
	}
	g.calls[key] = c
	g.mu.Unlock()

	go g.run(key, c, fn)
	return c, superseded
}

func (g *flightGroup[T]) run(key string, c *call[T], fn func() (T, error)) {
	var (
		v   T
		err error
	)
	err = guard(func() error {
		var fnErr error
		v, fnErr = fn()
		return fnErr
	})
	if err != nil {
		g.mu.Lock()
		if g.calls[key] == c {
			delete(g.calls, key)
		}
		g.mu.Unlock()
	}
	c.val, c.err = v, err
	close(c.done)
}

// guard 运行 fn，并把其中的 panic 转换为普通错误。
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// forget 丢弃 key 对应的 call；已在等待的调用方仍会拿到其结果。
func (g *flightGroup[T]) forget(key string) {
	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
}

func (g *flightGroup[T]) len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}
