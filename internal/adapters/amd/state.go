package amd

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/dop251/goja"

	"bundleloader/internal/loader"
)

// EmbeddedMetadata 读取 window[key] 中由服务端嵌入的元数据 (对象或 JSON 字符串)。
func (e *Executor) EmbeddedMetadata(key string) (loader.Metadata, bool) {
	var (
		md loader.Metadata
		ok bool
	)
	_ = e.Do(context.Background(), func(rt *goja.Runtime) error {
		v := rt.GlobalObject().Get(key)
		if isAbsent(v) {
			return nil
		}
		var raw []byte
		if s, isStr := v.Export().(string); isStr {
			raw = []byte(s)
		} else {
			b, err := json.Marshal(v.Export())
			if err != nil {
				e.log.Warnf("embedded metadata %s is not serializable: %v", key, err)
				return nil
			}
			raw = b
		}
		if err := json.Unmarshal(raw, &md); err != nil || md.ArtifactURL == "" {
			e.log.Warnf("embedded metadata %s is malformed, ignoring", key)
			return nil
		}
		ok = true
		return nil
	})
	return md, ok
}

// EmbeddedModule 读取 window[key] 中的预计算模块，即垫片保存的 define 参数数组。
func (e *Executor) EmbeddedModule(key string) (loader.EmbeddedModule, bool) {
	var (
		def *definition
		ok  bool
	)
	_ = e.Do(context.Background(), func(rt *goja.Runtime) error {
		v := rt.GlobalObject().Get(key)
		if isAbsent(v) {
			return nil
		}
		obj := v.ToObject(rt)
		if obj.ClassName() != "Array" {
			e.log.Warnf("embedded module %s is not a define argument list", key)
			return nil
		}
		args := make([]goja.Value, obj.Get("length").ToInteger())
		for i := range args {
			args[i] = obj.Get(strconv.Itoa(i))
		}
		parsed, err := parseDefine(rt, args)
		if err != nil {
			e.log.Warnf("embedded module %s is malformed: %v", key, err)
			return nil
		}
		def, ok = parsed, true
		return nil
	})
	if !ok {
		return nil, false
	}
	return &embeddedModule{exec: e, key: key, def: def}, true
}

type embeddedModule struct {
	exec *Executor
	key  string
	def  *definition
}

// Instantiate 以 deps 调用预计算模块的工厂。
func (m *embeddedModule) Instantiate(ctx context.Context, deps loader.Dependencies) (any, error) {
	var out any
	err := m.exec.Do(ctx, func(rt *goja.Runtime) error {
		v, err := m.exec.instantiate(rt, m.def, deps, m.key)
		out = v
		return err
	})
	return out, err
}

func isAbsent(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}
