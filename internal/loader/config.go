package loader

// Config 描述加载器运行所需的配置信息。
type Config struct {
	// Hostname 是 LoadRequest 未指定时使用的注册中心地址。
	Hostname string
	// StatePrefix 是交接状态在宿主全局作用域中的键前缀。
	StatePrefix string
	State       HostState
	Styles      StyleInjector
	Log         Logger
}

// applyDefaults 为缺失的配置填充默认值。
func (c *Config) applyDefaults() {
	if c.StatePrefix == "" {
		c.StatePrefix = "bundleloader"
	}
	if c.Styles == nil {
		c.Styles = NewStyleSet()
	}
	c.Log = defaultLogger(c.Log)
}
