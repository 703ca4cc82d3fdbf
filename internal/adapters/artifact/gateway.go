package artifact

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bundleloader/internal/loader"
)

const (
	defaultGatewayTimeout = 30 * time.Second
	maxArtifactBytes      = 16 << 20 // 16MiB safety limit
)

// GatewayClient 通过 HTTP 下载产物源码。
type GatewayClient struct {
	client *http.Client
	log    loader.Logger
}

// NewGatewayClient 构造产物下载客户端；client 为 nil 时使用带超时的默认客户端。
func NewGatewayClient(client *http.Client, log loader.Logger) *GatewayClient {
	if client == nil {
		client = &http.Client{Timeout: defaultGatewayTimeout}
	}
	return &GatewayClient{client: client, log: loader.DefaultLogger(log)}
}

// FetchArtifact 下载 url 指向的产物；状态码 >= 400 返回 *loader.StatusError。
func (g *GatewayClient) FetchArtifact(ctx context.Context, url string) ([]byte, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("artifact url is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &loader.StatusError{URL: url, Code: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if len(data) > maxArtifactBytes {
		return nil, fmt.Errorf("artifact larger than %d bytes", maxArtifactBytes)
	}

	g.log.Infof("downloaded artifact %s (%d bytes)", url, len(data))
	return data, nil
}
