package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bundleloader/internal/adapters/amd"
	"bundleloader/internal/adapters/artifact"
	"bundleloader/internal/adapters/registry"
	"bundleloader/internal/adapters/wasm"
	"bundleloader/internal/loader"
	"bundleloader/internal/logging"
)

type loaderConfig struct {
	name        string
	version     string
	hostname    string
	mirror      string
	mode        string
	depsJSON    string
	maxRetries  int
	retryDelay  time.Duration
	execTimeout time.Duration
	precompute  bool
}

// main 解析一个远程模块并输出其导出值 (client 模式) 或 SSR 交接片段 (server 模式)。
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := loadConfig()
	logger, err := logging.New(getenvOr("BUNDLELOADER_LOG_MODE", "development"))
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	var (
		registryClient loader.RegistryClient
		fetcher        loader.ArtifactFetcher
	)
	if cfg.mirror != "" {
		registryClient = registry.NewPlaceholderClient(cfg.mirror, logger)
		fetcher = artifact.NewPlaceholderClient(cfg.mirror, logger)
		logger.Infof("using local mirror %s", cfg.mirror)
	} else {
		registryClient = registry.NewGatewayClient(nil, logger)
		fetcher = artifact.NewGatewayClient(nil, logger)
	}

	jsExec := amd.NewExecutor(cfg.execTimeout, logger)
	mux := loader.NewExecutorMux(jsExec)
	mux.Handle(".wasm", wasm.NewExecutor(cfg.execTimeout, logger))

	l, err := loader.New(loader.Config{Hostname: cfg.hostname, State: jsExec, Log: logger}, registryClient, fetcher, mux)
	if err != nil {
		logger.Fatalf("loader: %v", err)
	}

	deps := loader.Dependencies{}
	if cfg.depsJSON != "" {
		if err := json.Unmarshal([]byte(cfg.depsJSON), &deps); err != nil {
			logger.Fatalf("parse BUNDLE_DEPS_JSON: %v", err)
		}
	}
	req := loader.LoadRequest{
		Identity:     loader.Identity{Name: cfg.name, ContractVersion: cfg.version},
		Dependencies: deps,
		RetryPolicy:  loader.RetryPolicy{MaxRetries: cfg.maxRetries, InitialDelay: cfg.retryDelay},
	}

	switch cfg.mode {
	case "server":
		res, err := l.LoadServer(ctx, req, loader.FragmentOptions{Precompute: cfg.precompute})
		if err != nil {
			logger.Fatalf("load %s: %v", req.Identity, err)
		}
		fmt.Print(res.Fragment)
		printJSON(logger, res.Module)
	default:
		module, err := l.LoadClient(ctx, req)
		if err != nil {
			logger.Fatalf("load %s: %v", req.Identity, err)
		}
		printJSON(logger, module)
	}
}

func printJSON(logger loader.Logger, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		logger.Warnf("module is not JSON serializable (%T): %v", v, err)
		return
	}
	fmt.Println(string(payload))
}

func loadConfig() loaderConfig {
	return loaderConfig{
		name:        getenvOr("BUNDLE_NAME", "ExampleGreeting"),
		version:     getenvOr("BUNDLE_VERSION", "1.0.0"),
		hostname:    getenvOr("BUNDLELOADER_HOSTNAME", "http://localhost:8080"),
		mirror:      getenvOr("BUNDLELOADER_MIRROR", ""),
		mode:        getenvOr("BUNDLELOADER_MODE", "client"),
		depsJSON:    strings.TrimSpace(os.Getenv("BUNDLE_DEPS_JSON")),
		maxRetries:  mustInt(getenvOr("BUNDLELOADER_MAX_RETRIES", "0"), "BUNDLELOADER_MAX_RETRIES"),
		retryDelay:  mustDuration(getenvOr("BUNDLELOADER_RETRY_DELAY", "100ms"), "BUNDLELOADER_RETRY_DELAY"),
		execTimeout: mustDuration(getenvOr("BUNDLELOADER_EXEC_TIMEOUT", "5s"), "BUNDLELOADER_EXEC_TIMEOUT"),
		precompute:  getenvOr("BUNDLELOADER_PRECOMPUTE", "") == "true",
	}
}

func getenvOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func mustInt(val, name string) int {
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		log.Fatalf("invalid %s=%q", name, val)
	}
	return n
}

func mustDuration(val, name string) time.Duration {
	d, err := time.ParseDuration(val)
	if err != nil {
		log.Fatalf("invalid %s=%q: %v", name, val, err)
	}
	return d
}
