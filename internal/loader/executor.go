package loader

import (
	"context"
	"net/url"
	"path"
	"strings"
)

// ExecutorMux 按产物 URL 的扩展名选择 Executor，未匹配时使用 Default。
type ExecutorMux struct {
	Default Executor
	byExt   map[string]Executor
}

// NewExecutorMux 以 def 作为默认执行器构建路由。
func NewExecutorMux(def Executor) *ExecutorMux {
	return &ExecutorMux{Default: def, byExt: make(map[string]Executor)}
}

// Handle 为扩展名 ext (如 ".wasm") 注册执行器。
func (m *ExecutorMux) Handle(ext string, exec Executor) {
	m.byExt[strings.ToLower(ext)] = exec
}

// Execute 将产物交给匹配的执行器。
func (m *ExecutorMux) Execute(ctx context.Context, artifact Artifact, deps Dependencies) (any, error) {
	return m.route(artifact.URL).Execute(ctx, artifact, deps)
}

func (m *ExecutorMux) route(rawURL string) Executor {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	if exec, ok := m.byExt[strings.ToLower(path.Ext(p))]; ok {
		return exec
	}
	return m.Default
}

// execute 下载并执行产物。下载按 policy 重试；执行不重试，且全局同一时刻只有一个执行。
func (l *Loader) execute(ctx context.Context, id Identity, artifactURL string, deps Dependencies, policy RetryPolicy) (any, error) {
	source, err := Retry(ctx, policy, func(ctx context.Context) ([]byte, error) {
		var source []byte
		err := guard(func() error {
			var fetchErr error
			source, fetchErr = l.fetcher.FetchArtifact(ctx, artifactURL)
			return fetchErr
		})
		return source, err
	})
	if err != nil {
		l.log.Errorf("fetch artifact %s for %s: %v", artifactURL, id, err)
		return nil, fetchError(id, err)
	}

	var value any
	err = l.critical(ctx, func() error {
		var execErr error
		value, execErr = l.executor.Execute(ctx, Artifact{URL: artifactURL, Source: source}, deps)
		return execErr
	})
	if err != nil {
		l.log.Errorf("execute artifact %s for %s: %v", artifactURL, id, err)
		return nil, executionError(id, err)
	}
	l.log.Infof("bundle %s executed from %s (%d bytes)", id, artifactURL, len(source))
	return value, nil
}

// critical 在全局执行信号量内运行 fn，任何退出路径都会释放；fn 中的 panic 作为错误返回。
func (l *Loader) critical(ctx context.Context, fn func() error) error {
	if err := l.execSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.execSem.Release(1)
	return guard(fn)
}
