package amd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"golang.org/x/sync/semaphore"

	"bundleloader/internal/loader"
)

const defaultExecTimeout = 5 * time.Second

var errExecTimeout = errors.New("artifact execution timed out")

// Executor 在共享的 goja 全局作用域中执行 AMD 产物。goja.Runtime 不是并发安全的，
// 所有访问都经由 Do 串行化。
type Executor struct {
	rt      *goja.Runtime
	sem     *semaphore.Weighted
	timeout time.Duration
	log     loader.Logger
}

// NewExecutor 创建执行器；timeout <= 0 时使用默认执行超时。
func NewExecutor(timeout time.Duration, log loader.Logger) *Executor {
	if timeout <= 0 {
		timeout = defaultExecTimeout
	}
	rt := goja.New()
	_ = rt.Set("window", rt.GlobalObject())
	return &Executor{
		rt:      rt,
		sem:     semaphore.NewWeighted(1),
		timeout: timeout,
		log:     loader.DefaultLogger(log),
	}
}

// Do 独占运行时执行 fn。模块导出的 JS 函数必须在 Do 内调用。
func (e *Executor) Do(ctx context.Context, fn func(rt *goja.Runtime) error) (err error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.sem.Release(1)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("goja panic: %v", r)
		}
	}()
	return fn(e.rt)
}

// Execute 安装捕获用的 define，运行产物，调用其工厂并返回导出的 Go 值。
// 之前的 define 在所有退出路径上都会被恢复。
func (e *Executor) Execute(ctx context.Context, artifact loader.Artifact, deps loader.Dependencies) (any, error) {
	var out any
	err := e.Do(ctx, func(rt *goja.Runtime) error {
		captured, restore := e.installHook(rt, artifact.URL)
		defer restore()

		if err := e.run(rt, artifact.URL, string(artifact.Source)); err != nil {
			return err
		}
		if captured.def == nil {
			return loader.ErrNoModule
		}
		v, err := e.instantiate(rt, captured.def, deps, artifact.URL)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

type capture struct {
	def *definition
}

// installHook 将全局 define 替换为捕获实现，返回恢复函数。
func (e *Executor) installHook(rt *goja.Runtime, url string) (*capture, func()) {
	global := rt.GlobalObject()
	previous := global.Get("define")
	c := &capture{}

	hook := rt.ToValue(func(call goja.FunctionCall) goja.Value {
		def, err := parseDefine(rt, call.Arguments)
		if err != nil {
			panic(rt.NewTypeError(err.Error()))
		}
		if c.def != nil {
			e.log.Warnf("artifact %s called define more than once; keeping the first definition", url)
			return goja.Undefined()
		}
		c.def = def
		return goja.Undefined()
	}).ToObject(rt)
	_ = hook.Set("amd", true)
	_ = global.Set("define", hook)

	return c, func() {
		if previous == nil {
			_ = global.Delete("define")
			return
		}
		_ = global.Set("define", previous)
	}
}

// run 将源码作为函数体编译运行，避免顶层词法声明在共享全局作用域中残留。
func (e *Executor) run(rt *goja.Runtime, name, source string) error {
	prg, err := goja.Compile(name, "(function () {\n"+source+"\n})", false)
	if err != nil {
		return &ScriptError{URL: name, Message: err.Error()}
	}

	timer := time.AfterFunc(e.timeout, func() { rt.Interrupt(errExecTimeout) })
	defer func() {
		timer.Stop()
		rt.ClearInterrupt()
	}()

	fnValue, err := rt.RunProgram(prg)
	if err != nil {
		return scriptError(name, err)
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return &ScriptError{URL: name, Message: "artifact did not compile to a function"}
	}
	if _, err := fn(goja.Undefined()); err != nil {
		return scriptError(name, err)
	}
	return nil
}

// instantiate 按声明顺序解析依赖并调用工厂。缺失的依赖以 undefined 传入并记录警告。
func (e *Executor) instantiate(rt *goja.Runtime, def *definition, deps loader.Dependencies, url string) (any, error) {
	var exports *goja.Object
	args := make([]goja.Value, len(def.deps))
	for i, name := range def.deps {
		if v, ok := deps[name]; ok {
			args[i] = rt.ToValue(v)
			continue
		}
		switch name {
		case "exports":
			if exports == nil {
				exports = rt.NewObject()
			}
			args[i] = exports
		case "module":
			if exports == nil {
				exports = rt.NewObject()
			}
			m := rt.NewObject()
			_ = m.Set("exports", exports)
			args[i] = m
		default:
			e.log.Warnf("artifact %s: dependency %q not provided, passing undefined", url, name)
			args[i] = goja.Undefined()
		}
	}

	if def.factory == nil {
		return exportValue(def.value), nil
	}

	timer := time.AfterFunc(e.timeout, func() { rt.Interrupt(errExecTimeout) })
	defer func() {
		timer.Stop()
		rt.ClearInterrupt()
	}()

	result, err := def.factory(goja.Undefined(), args...)
	if err != nil {
		return nil, scriptError(url, err)
	}
	if (result == nil || goja.IsUndefined(result)) && exports != nil {
		return exports.Export(), nil
	}
	return exportValue(result), nil
}

func exportValue(v goja.Value) any {
	if v == nil {
		return nil
	}
	return v.Export()
}
