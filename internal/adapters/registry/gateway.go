package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bundleloader/internal/loader"
)

const (
	defaultGatewayTimeout = 30 * time.Second
	maxMetadataBytes      = 1 << 20
	maxErrorBodyBytes     = 1024
)

// GatewayClient 通过 HTTP 访问注册中心的 latest 接口。
type GatewayClient struct {
	client *http.Client
	log    loader.Logger
}

// NewGatewayClient 构造注册中心 HTTP 客户端；client 为 nil 时使用带超时的默认客户端。
func NewGatewayClient(client *http.Client, log loader.Logger) *GatewayClient {
	if client == nil {
		client = &http.Client{Timeout: defaultGatewayTimeout}
	}
	return &GatewayClient{client: client, log: loader.DefaultLogger(log)}
}

// metadataBody 同时接受当前字段名与旧版 umdBundle/cssBundle 字段。
type metadataBody struct {
	ArtifactURL string `json:"artifactUrl"`
	StyleURL    string `json:"styleUrl"`
	UmdBundle   string `json:"umdBundle"`
	CSSBundle   string `json:"cssBundle"`
}

// FetchMetadata 请求 {hostname}/latest/{name}/{contractVersion}。
func (g *GatewayClient) FetchMetadata(ctx context.Context, id loader.Identity, hostname string) (loader.Metadata, error) {
	base := strings.TrimRight(strings.TrimSpace(hostname), "/")
	if base == "" {
		return loader.Metadata{}, fmt.Errorf("registry hostname is empty")
	}
	target := fmt.Sprintf("%s/latest/%s/%s", base, url.PathEscape(id.Name), url.PathEscape(id.ContractVersion))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return loader.Metadata{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return loader.Metadata{}, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return loader.Metadata{}, &loader.StatusError{URL: target, Code: resp.StatusCode, Body: string(payload)}
	}

	var body metadataBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxMetadataBytes)).Decode(&body); err != nil {
		return loader.Metadata{}, fmt.Errorf("%w: decode %s: %v", loader.ErrMalformedMetadata, target, err)
	}
	md, err := body.metadata(base)
	if err != nil {
		return loader.Metadata{}, fmt.Errorf("%w: %s: %v", loader.ErrMalformedMetadata, target, err)
	}
	g.log.Infof("registry %s: %s -> %s", base, id, md.ArtifactURL)
	return md, nil
}

// metadata 规范化响应体；旧版相对文件名解析到 {base}/bundle/ 下。
func (b metadataBody) metadata(base string) (loader.Metadata, error) {
	md := loader.Metadata{ArtifactURL: b.ArtifactURL, StyleURL: b.StyleURL}
	if md.ArtifactURL == "" && b.UmdBundle != "" {
		md.ArtifactURL = bundleURL(base, b.UmdBundle)
	}
	if md.StyleURL == "" && b.CSSBundle != "" {
		md.StyleURL = bundleURL(base, b.CSSBundle)
	}
	if md.ArtifactURL == "" {
		return md, fmt.Errorf("artifactUrl missing")
	}
	return md, nil
}

func bundleURL(base, name string) string {
	if u, err := url.Parse(name); err == nil && u.IsAbs() {
		return name
	}
	return base + "/bundle/" + strings.TrimLeft(name, "/")
}
