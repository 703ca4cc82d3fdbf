package amd

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// definition 是产物通过 define 声明的依赖名与工厂。
// 工厂不是函数时 (define({...}))，value 即模块本身。
type definition struct {
	deps    []string
	factory goja.Callable
	value   goja.Value
}

// parseDefine 接受 AMD 的常见调用形式：
// define(factory), define(deps, factory), define(id, factory), define(id, deps, factory)。
func parseDefine(rt *goja.Runtime, args []goja.Value) (*definition, error) {
	if len(args) > 0 && isString(args[0]) {
		args = args[1:]
	}
	switch len(args) {
	case 0:
		return nil, errors.New("define called without a factory")
	case 1:
		return newDefinition(nil, args[0]), nil
	default:
		deps, err := dependencyNames(rt, args[0])
		if err != nil {
			return nil, err
		}
		return newDefinition(deps, args[1]), nil
	}
}

func newDefinition(deps []string, factory goja.Value) *definition {
	def := &definition{deps: deps}
	if fn, ok := goja.AssertFunction(factory); ok {
		def.factory = fn
	} else {
		def.value = factory
	}
	return def
}

func dependencyNames(rt *goja.Runtime, v goja.Value) ([]string, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	var names []string
	if err := rt.ExportTo(v, &names); err != nil {
		return nil, fmt.Errorf("define dependencies must be an array of strings: %w", err)
	}
	return names, nil
}

func isString(v goja.Value) bool {
	if v == nil {
		return false
	}
	_, ok := v.Export().(string)
	return ok
}
