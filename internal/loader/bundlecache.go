package loader

import (
	"context"
	"sync/atomic"
	"time"
)

// BundleCache 以逻辑身份为键缓存已加载模块。同一身份只保留一个产物：
// 当产物 URL (sourceKey) 变化时旧条目被替换，而不是并存。
type BundleCache struct {
	log       Logger
	flights   flightGroup[any]
	evictions atomic.Int64
}

// NewBundleCache 创建空缓存。
func NewBundleCache(log Logger) *BundleCache {
	return &BundleCache{log: defaultLogger(log)}
}

// Load 返回 id 的模块；sourceKey 与已缓存条目一致时复用其结果 (含进行中的加载)，否则调用 load。
func (b *BundleCache) Load(ctx context.Context, id Identity, sourceKey string, load func(context.Context) (any, error)) (any, error) {
	return b.lookup(ctx, id, sourceKey, load).wait(ctx)
}

func (b *BundleCache) lookup(ctx context.Context, id Identity, sourceKey string, load func(context.Context) (any, error)) *call[any] {
	opCtx := context.WithoutCancel(ctx)
	sameSource := func(c *call[any]) bool { return c.sourceKey == sourceKey }
	c, superseded := b.flights.acquire(id.Key(), sourceKey, time.Now(), sameSource, func() (any, error) {
		return load(opCtx)
	})
	if superseded != nil {
		b.evictions.Add(1)
		b.log.Infof("bundle %s: %s supersedes %s", id, sourceKey, superseded.sourceKey)
	}
	return c
}

// Evictions 返回因产物 URL 变化而被替换的条目数。
func (b *BundleCache) Evictions() int64 {
	return b.evictions.Load()
}

// Forget 丢弃 id 的缓存条目。
func (b *BundleCache) Forget(id Identity) {
	b.flights.forget(id.Key())
}
