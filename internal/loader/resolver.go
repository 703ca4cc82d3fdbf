package loader

import (
	"context"
	"errors"
	"time"
)

// ResolveRequest 描述一次元数据解析。CacheTTL 为 nil 时缓存永不过期，为 0 时跳过缓存读取。
type ResolveRequest struct {
	Identity    Identity
	Hostname    string
	RetryPolicy RetryPolicy
	CacheTTL    *time.Duration
}

// TTL 返回可直接用于 ResolveRequest.CacheTTL 的指针。
func TTL(d time.Duration) *time.Duration {
	return &d
}

// Resolver 通过注册中心解析模块元数据，对相同请求去重并按 TTL 缓存成功结果。
type Resolver struct {
	client  RegistryClient
	log     Logger
	now     func() time.Time
	flights flightGroup[Metadata]
}

// NewResolver 使用注册中心客户端构建解析器。
func NewResolver(client RegistryClient, log Logger) (*Resolver, error) {
	if client == nil {
		return nil, errors.New("registry client required")
	}
	return &Resolver{
		client: client,
		log:    defaultLogger(log),
		now:    time.Now,
	}, nil
}

// Resolve 返回 req.Identity 的元数据；并发的相同请求只触发一次网络请求并共享结果。
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (Metadata, error) {
	return r.lookup(ctx, req).wait(ctx)
}

func (r *Resolver) lookup(ctx context.Context, req ResolveRequest) *call[Metadata] {
	key := req.Identity.Key() + "|" + req.Hostname
	now := r.now()
	fresh := func(c *call[Metadata]) bool {
		return req.CacheTTL == nil || now.Sub(c.createdAt) < *req.CacheTTL
	}
	opCtx := context.WithoutCancel(ctx)
	c, _ := r.flights.acquire(key, req.Hostname, now, fresh, func() (Metadata, error) {
		md, err := Retry(opCtx, req.RetryPolicy, func(ctx context.Context) (Metadata, error) {
			var md Metadata
			err := guard(func() error {
				var fetchErr error
				md, fetchErr = r.client.FetchMetadata(ctx, req.Identity, req.Hostname)
				return fetchErr
			})
			return md, err
		})
		if err != nil {
			r.log.Warnf("resolve %s via %s failed: %v", req.Identity, req.Hostname, err)
			return Metadata{}, resolutionError(req.Identity, err)
		}
		r.log.Infof("resolved %s -> %s", req.Identity, md.ArtifactURL)
		return md, nil
	})
	return c
}

// Forget 丢弃某个身份在指定注册中心下的缓存元数据。
func (r *Resolver) Forget(id Identity, hostname string) {
	r.flights.forget(id.Key() + "|" + hostname)
}
