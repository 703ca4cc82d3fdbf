package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// ServerResult 是服务端渲染阶段的加载结果。Fragment 需原样写入 SSR 输出。
type ServerResult struct {
	Module   any
	Metadata Metadata
	Fragment string
}

// FragmentOptions 控制交接片段内容。
type FragmentOptions struct {
	// Precompute 额外输出 define 垫片与产物 script 标签，使客户端在页面加载时即得到模块定义。
	// 垫片原样保存 define 的全部参数，具名与匿名形式都可还原。
	Precompute bool
}

// ConfigKey 返回元数据在宿主全局作用域中的键。
func ConfigKey(prefix, name string) string {
	return prefix + name + "Config"
}

// ModuleKey 返回预计算模块 (define 调用参数数组) 在宿主全局作用域中的键。
func ModuleKey(prefix, name string) string {
	return prefix + name
}

// LoadServer 在服务端解析并执行模块，同时生成供客户端复用的交接片段。
func (l *Loader) LoadServer(ctx context.Context, req LoadRequest, opts FragmentOptions) (ServerResult, error) {
	md, err := l.Resolve(ctx, req)
	if err != nil {
		return ServerResult{}, err
	}
	module, err := l.loadResolved(ctx, req, md)
	if err != nil {
		return ServerResult{}, err
	}
	fragment, err := RenderFragment(l.cfg.StatePrefix, req.Identity, md, opts)
	if err != nil {
		return ServerResult{}, err
	}
	return ServerResult{Module: module, Metadata: md, Fragment: fragment}, nil
}

// LoadClient 优先使用服务端嵌入的状态：存在预计算模块时跳过解析与执行，
// 仅存在元数据时跳过解析；否则与 Load 相同。
func (l *Loader) LoadClient(ctx context.Context, req LoadRequest) (any, error) {
	state := l.cfg.State
	if state == nil {
		return l.Load(ctx, req)
	}
	md, haveMetadata := state.EmbeddedMetadata(ConfigKey(l.cfg.StatePrefix, req.Identity.Name))

	moduleKey := ModuleKey(l.cfg.StatePrefix, req.Identity.Name)
	if embedded, ok := state.EmbeddedModule(moduleKey); ok {
		sourceKey := "embedded:" + moduleKey
		if haveMetadata {
			sourceKey = md.ArtifactURL
			if md.StyleURL != "" {
				l.cfg.Styles.InjectStyle(md.StyleURL)
			}
		}
		l.log.Infof("bundle %s: using precomputed module %s", req.Identity, moduleKey)
		return l.bundles.Load(ctx, req.Identity, sourceKey, func(ctx context.Context) (any, error) {
			var value any
			err := l.critical(ctx, func() error {
				var instErr error
				value, instErr = embedded.Instantiate(ctx, req.Dependencies)
				return instErr
			})
			if err != nil {
				return nil, executionError(req.Identity, err)
			}
			return value, nil
		})
	}

	if haveMetadata {
		l.log.Infof("bundle %s: using embedded metadata, skipping registry", req.Identity)
		return l.loadResolved(ctx, req, md)
	}
	return l.Load(ctx, req)
}

// RenderFragment 生成嵌入 SSR 输出的 HTML 片段：元数据赋值脚本、产物 preload 提示、
// 样式表链接，以及可选的预计算 define 垫片。
func RenderFragment(prefix string, id Identity, md Metadata, opts FragmentOptions) (string, error) {
	payload, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	configKey, err := json.Marshal(ConfigKey(prefix, id.Name))
	if err != nil {
		return "", err
	}
	artifact := html.EscapeString(md.ArtifactURL)

	var b strings.Builder
	fmt.Fprintf(&b, "<script>window[%s] = %s;</script>\n", configKey, payload)
	fmt.Fprintf(&b, "<link rel=\"preload\" href=\"%s\" as=\"script\">\n", artifact)
	if md.StyleURL != "" {
		b.WriteString(stylesheetLink(md.StyleURL))
	}
	if opts.Precompute {
		moduleKey, err := json.Marshal(ModuleKey(prefix, id.Name))
		if err != nil {
			return "", err
		}
		backup, err := json.Marshal(prefix + "BackupDefine")
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "<script>\nwindow[%s] = window.define;\nwindow.define = function () {\n  window[%s] = Array.prototype.slice.call(arguments);\n};\nwindow.define.amd = true;\n</script>\n", backup, moduleKey)
		fmt.Fprintf(&b, "<script src=\"%s\"></script>\n", artifact)
		fmt.Fprintf(&b, "<script>\nwindow.define = window[%s];\n</script>\n", backup)
	}
	return b.String(), nil
}
