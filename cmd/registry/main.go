package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"bundleloader/internal/adapters/kube"
	"bundleloader/internal/logging"
	"bundleloader/internal/registryserver"
)

// main 将配置、存储 Store 与注册中心 HTTP 服务串联起来。
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.New(envOr("REGISTRY_LOG_MODE", "development"))
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	var store registryserver.Store
	if namespace := envOr("REGISTRY_NAMESPACE", ""); namespace != "" {
		s, err := kube.NewStore(namespace, logger)
		if err != nil {
			logger.Fatalf("kube store: %v", err)
		}
		store = s
		logger.Infof("using configmap store in namespace %s, publishing enabled", namespace)
	} else {
		manifest := envOr("REGISTRY_MANIFEST", filepath.Join("examples", "registry.yaml"))
		s, err := registryserver.NewFileStore(manifest, logger)
		if err != nil {
			logger.Fatalf("file store: %v", err)
		}
		store = s
		logger.Infof("using manifest %s", manifest)
	}

	if envOr("REGISTRY_LOG_MODE", "") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := registryserver.NewRouter(store, registryserver.Config{
		AllowOrigins: splitList(envOr("REGISTRY_ALLOW_ORIGINS", "")),
		BundleDir:    envOr("REGISTRY_BUNDLE_DIR", filepath.Join("examples", "bundles")),
		Log:          logger,
	})

	srv := &http.Server{
		Addr:              envOr("REGISTRY_ADDR", ":8080"),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("shutdown: %v", err)
		}
	}()

	logger.Infof("registry listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("serve: %v", err)
	}
}

// envOr 读取环境变量，当变量不存在时返回默认值。
func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
