package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"bundleloader/internal/loader"
)

// PlaceholderClient 按 URL 的文件名从本地目录读取产物，替代真实下载。
type PlaceholderClient struct {
	ArtifactDir string
	log         loader.Logger
}

// NewPlaceholderClient 创建基于本地文件的产物下载占位实现。
func NewPlaceholderClient(dir string, log loader.Logger) *PlaceholderClient {
	return &PlaceholderClient{
		ArtifactDir: dir,
		log:         loader.DefaultLogger(log),
	}
}

// FetchArtifact 从磁盘加载产物字节。
func (p *PlaceholderClient) FetchArtifact(ctx context.Context, rawURL string) ([]byte, error) {
	if p.ArtifactDir == "" {
		return nil, fmt.Errorf("artifact directory not configured")
	}
	name := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		name = u.Path
	}
	name = path.Base(name)
	if name == "." || name == "/" {
		return nil, fmt.Errorf("artifact url %q has no file name", rawURL)
	}
	file := filepath.Join(p.ArtifactDir, name)
	data, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &loader.StatusError{URL: rawURL, Code: http.StatusNotFound}
		}
		return nil, fmt.Errorf("read artifact %s: %w", file, err)
	}
	p.log.Infof("loaded artifact %s (%d bytes)", name, len(data))
	return data, nil
}
