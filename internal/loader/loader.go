package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// Loader 串联注册中心解析、产物下载执行与按身份缓存。
type Loader struct {
	cfg      Config
	resolver *Resolver
	bundles  *BundleCache
	fetcher  ArtifactFetcher
	executor Executor
	execSem  *semaphore.Weighted
	log      Logger
}

// LoadRequest 描述一次完整加载。Hostname 为空时使用 Config.Hostname。
type LoadRequest struct {
	Identity     Identity
	Hostname     string
	Dependencies Dependencies
	RetryPolicy  RetryPolicy
	CacheTTL     *time.Duration
}

// LoadModuleRequest 描述已知产物 URL 时的加载。
type LoadModuleRequest struct {
	Identity     Identity
	ArtifactURL  string
	Dependencies Dependencies
	RetryPolicy  RetryPolicy
}

// New 使用外部依赖构建加载器实例。
func New(cfg Config, registry RegistryClient, fetcher ArtifactFetcher, executor Executor) (*Loader, error) {
	if fetcher == nil {
		return nil, errors.New("artifact fetcher required")
	}
	if executor == nil {
		return nil, errors.New("executor required")
	}
	cfg.applyDefaults()
	resolver, err := NewResolver(registry, cfg.Log)
	if err != nil {
		return nil, err
	}
	return &Loader{
		cfg:      cfg,
		resolver: resolver,
		bundles:  NewBundleCache(cfg.Log),
		fetcher:  fetcher,
		executor: executor,
		execSem:  semaphore.NewWeighted(1),
		log:      cfg.Log,
	}, nil
}

// Resolve 解析 req.Identity 的元数据 (带去重、TTL 缓存与重试)。
func (l *Loader) Resolve(ctx context.Context, req LoadRequest) (Metadata, error) {
	return l.resolver.Resolve(ctx, ResolveRequest{
		Identity:    req.Identity,
		Hostname:    l.hostname(req),
		RetryPolicy: req.RetryPolicy,
		CacheTTL:    req.CacheTTL,
	})
}

// LoadModule 加载 req.ArtifactURL 指向的产物，并以身份缓存其结果。
func (l *Loader) LoadModule(ctx context.Context, req LoadModuleRequest) (any, error) {
	return l.bundles.Load(ctx, req.Identity, req.ArtifactURL, func(ctx context.Context) (any, error) {
		return l.execute(ctx, req.Identity, req.ArtifactURL, req.Dependencies, req.RetryPolicy)
	})
}

// Load 解析元数据、插入样式表并加载模块。
func (l *Loader) Load(ctx context.Context, req LoadRequest) (any, error) {
	md, err := l.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	return l.loadResolved(ctx, req, md)
}

func (l *Loader) loadResolved(ctx context.Context, req LoadRequest, md Metadata) (any, error) {
	if md.StyleURL != "" && l.cfg.Styles.InjectStyle(md.StyleURL) {
		l.log.Infof("bundle %s: stylesheet %s inserted", req.Identity, md.StyleURL)
	}
	return l.LoadModule(ctx, LoadModuleRequest{
		Identity:     req.Identity,
		ArtifactURL:  md.ArtifactURL,
		Dependencies: req.Dependencies,
		RetryPolicy:  req.RetryPolicy,
	})
}

// Styles 返回加载器使用的样式表注入器。
func (l *Loader) Styles() StyleInjector {
	return l.cfg.Styles
}

// Evictions 返回模块缓存因产物 URL 变化而替换的条目数。
func (l *Loader) Evictions() int64 {
	return l.bundles.Evictions()
}

func (l *Loader) hostname(req LoadRequest) string {
	if req.Hostname != "" {
		return req.Hostname
	}
	return l.cfg.Hostname
}

// As 将 Load 系列方法的结果断言为 T。
func As[T any](v any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("module has type %T, want %T", v, zero)
	}
	return typed, nil
}
