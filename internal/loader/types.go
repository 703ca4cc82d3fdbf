package loader

import (
	"context"
	"time"
)

// Identity 标识一个逻辑模块 (name + contract version)，与当前承载它的物理产物无关。
type Identity struct {
	Name            string
	ContractVersion string
}

// Key 返回该身份在缓存中的稳定键。
func (i Identity) Key() string {
	return i.Name + "@" + i.ContractVersion
}

func (i Identity) String() string {
	return i.Key()
}

// Metadata 是注册中心 (registry) 在某一时刻为 Identity 解析出的产物位置。
type Metadata struct {
	ArtifactURL string `json:"artifactUrl"`
	StyleURL    string `json:"styleUrl,omitempty"`
}

// RetryPolicy 控制指数退避重试；零值表示不重试。
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
}

// Dependencies 将产物声明的依赖名映射到宿主提供的值。
type Dependencies map[string]any

// Artifact 是已下载、待执行的产物源码。
type Artifact struct {
	URL    string
	Source []byte
}

// RegistryClient 抽象对注册中心 latest 接口的访问。
type RegistryClient interface {
	FetchMetadata(ctx context.Context, id Identity, hostname string) (Metadata, error)
}

// ArtifactFetcher 抽象产物下载。
type ArtifactFetcher interface {
	FetchArtifact(ctx context.Context, url string) ([]byte, error)
}

// Executor 执行产物并返回其 define 工厂产出的值。
type Executor interface {
	Execute(ctx context.Context, artifact Artifact, deps Dependencies) (any, error)
}

// EmbeddedModule 是服务端预计算、嵌入到页面全局状态中的模块定义。
type EmbeddedModule interface {
	Instantiate(ctx context.Context, deps Dependencies) (any, error)
}

// HostState 读取服务端渲染结果写入宿主全局作用域的交接 (handoff) 状态。
type HostState interface {
	EmbeddedMetadata(key string) (Metadata, bool)
	EmbeddedModule(key string) (EmbeddedModule, bool)
}

// StyleInjector 为每个不同的样式表 URL 只插入一次引用，返回是否新插入。
type StyleInjector interface {
	InjectStyle(url string) bool
}

// Logger 提供基础日志输出。
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
