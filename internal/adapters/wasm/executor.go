package wasm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"bundleloader/internal/loader"
)

const (
	defaultExecTimeout = 5 * time.Second

	hostModule    = "amd"
	defineImport  = "define"
	factoryExport = "factory"
	mallocExport  = "malloc"
)

// Executor runs wasm artifacts. The artifact declares its dependencies by calling
// the host import amd.define(ptr, len) with a JSON array of names during start, and
// exports factory(ptr, len) -> i64 which receives the resolved dependencies as JSON
// and returns (ptr<<32 | len) of its JSON result.
type Executor struct {
	timeout time.Duration
	log     loader.Logger
}

// NewExecutor returns a wasm executor; timeout <= 0 selects the default.
func NewExecutor(timeout time.Duration, log loader.Logger) *Executor {
	if timeout <= 0 {
		timeout = defaultExecTimeout
	}
	return &Executor{timeout: timeout, log: loader.DefaultLogger(log)}
}

// Execute instantiates the artifact in a fresh runtime, so captured state never
// outlives one call.
func (e *Executor) Execute(ctx context.Context, artifact loader.Artifact, deps loader.Dependencies) (out any, err error) {
	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rt := wazero.NewRuntimeWithConfig(execCtx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	defer rt.Close(execCtx)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("wasm panic: %v", r)
		}
	}()

	// Enable WASI by default to support artifacts built with the WASI ABI.
	if _, err := wasi_snapshot_preview1.Instantiate(execCtx, rt); err != nil {
		return nil, fmt.Errorf("init wasi: %w", err)
	}

	var (
		defined bool
		names   []string
		hookErr error
	)
	_, err = rt.NewHostModuleBuilder(hostModule).
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, m api.Module, ptr, size uint32) {
			if defined {
				e.log.Warnf("artifact %s called define more than once; keeping the first definition", artifact.URL)
				return
			}
			raw, ok := m.Memory().Read(ptr, size)
			if !ok {
				hookErr = fmt.Errorf("define: dependency list out of memory range")
				return
			}
			if size > 0 {
				if err := json.Unmarshal(raw, &names); err != nil {
					hookErr = fmt.Errorf("define: dependency list must be a JSON array of strings: %w", err)
					return
				}
			}
			defined = true
		}).
		Export(defineImport).
		Instantiate(execCtx)
	if err != nil {
		return nil, fmt.Errorf("init host module: %w", err)
	}

	mod, err := rt.InstantiateWithConfig(execCtx, artifact.Source, wazero.NewModuleConfig().WithName(artifact.URL))
	if err != nil {
		return nil, fmt.Errorf("instantiate wasm: %w", err)
	}
	defer mod.Close(execCtx)

	if hookErr != nil {
		return nil, hookErr
	}
	if !defined {
		return nil, loader.ErrNoModule
	}

	factory := mod.ExportedFunction(factoryExport)
	if factory == nil {
		return nil, errors.New("artifact defined a module but exports no factory")
	}

	input, err := e.resolve(names, deps, artifact.URL)
	if err != nil {
		return nil, err
	}
	inPtr, inLen, err := writeInput(execCtx, mod, input)
	if err != nil {
		return nil, err
	}

	results, err := factory.Call(execCtx, uint64(inPtr), uint64(inLen))
	if err != nil {
		return nil, fmt.Errorf("call factory: %w", err)
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("factory returned %d values, want 1", len(results))
	}
	outPtr, outLen := uint32(results[0]>>32), uint32(results[0])
	raw, ok := mod.Memory().Read(outPtr, outLen)
	if !ok {
		return nil, fmt.Errorf("factory result out of memory range")
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode factory result: %w", err)
	}
	return out, nil
}

// resolve builds the JSON object handed to the factory. Missing names are logged and
// passed as null.
func (e *Executor) resolve(names []string, deps loader.Dependencies, url string) ([]byte, error) {
	if len(names) == 0 {
		return nil, nil
	}
	resolved := make(map[string]any, len(names))
	for _, name := range names {
		v, ok := deps[name]
		if !ok {
			e.log.Warnf("artifact %s: dependency %q not provided, passing null", url, name)
		}
		resolved[name] = v
	}
	data, err := json.Marshal(resolved)
	if err != nil {
		return nil, fmt.Errorf("encode dependencies: %w", err)
	}
	return data, nil
}

// writeInput copies input into guest memory through the artifact's malloc export.
// Artifacts without malloc receive (0, 0).
func writeInput(ctx context.Context, mod api.Module, input []byte) (uint32, uint32, error) {
	malloc := mod.ExportedFunction(mallocExport)
	if len(input) == 0 || malloc == nil {
		return 0, 0, nil
	}
	res, err := malloc.Call(ctx, uint64(len(input)))
	if err != nil {
		return 0, 0, fmt.Errorf("malloc: %w", err)
	}
	ptr := uint32(res[0])
	if !mod.Memory().Write(ptr, input) {
		return 0, 0, fmt.Errorf("dependencies out of memory range")
	}
	return ptr, uint32(len(input)), nil
}
