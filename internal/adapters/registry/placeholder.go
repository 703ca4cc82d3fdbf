package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"bundleloader/internal/loader"
)

// PlaceholderClient 从本地目录 {dir}/{name}/{contractVersion}.json 读取元数据，便于离线调试。
type PlaceholderClient struct {
	MetadataDir string
	log         loader.Logger
}

// NewPlaceholderClient 创建基于本地文件的注册中心占位实现。
func NewPlaceholderClient(dir string, log loader.Logger) *PlaceholderClient {
	return &PlaceholderClient{
		MetadataDir: dir,
		log:         loader.DefaultLogger(log),
	}
}

// FetchMetadata 忽略 hostname，从磁盘加载元数据。
func (p *PlaceholderClient) FetchMetadata(ctx context.Context, id loader.Identity, hostname string) (loader.Metadata, error) {
	if p.MetadataDir == "" {
		return loader.Metadata{}, fmt.Errorf("metadata directory not configured")
	}
	path := filepath.Join(p.MetadataDir, filepath.Base(id.Name), filepath.Base(id.ContractVersion)+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return loader.Metadata{}, &loader.StatusError{URL: path, Code: http.StatusNotFound}
		}
		return loader.Metadata{}, fmt.Errorf("read metadata %s: %w", path, err)
	}
	var body metadataBody
	if err := json.Unmarshal(data, &body); err != nil {
		return loader.Metadata{}, fmt.Errorf("%w: %s: %v", loader.ErrMalformedMetadata, path, err)
	}
	md, err := body.metadata(hostname)
	if err != nil {
		return loader.Metadata{}, fmt.Errorf("%w: %s: %v", loader.ErrMalformedMetadata, path, err)
	}
	p.log.Infof("loaded metadata for %s from %s", id, path)
	return md, nil
}
