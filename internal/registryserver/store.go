package registryserver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"sigs.k8s.io/yaml"

	"bundleloader/internal/loader"
)

// ErrNotFound 表示注册中心中不存在该模块版本。
var ErrNotFound = errors.New("module not found")

// Store 返回某个模块契约版本当前最新的产物位置。
type Store interface {
	Latest(ctx context.Context, id loader.Identity) (loader.Metadata, error)
}

// Publisher 由支持在线发布的 Store 实现，返回新发布记录的引用。
type Publisher interface {
	Publish(ctx context.Context, id loader.Identity, md loader.Metadata) (string, error)
}

// Manifest 是 YAML 注册清单；同一身份出现多次时以最后一条为最新发布。
type Manifest struct {
	Modules []ManifestEntry `json:"modules"`
}

// ManifestEntry 是清单中的一条发布记录。
type ManifestEntry struct {
	Name            string `json:"name"`
	ContractVersion string `json:"contractVersion"`
	ArtifactURL     string `json:"artifactUrl"`
	StyleURL        string `json:"styleUrl,omitempty"`
}

// FileStore 基于 YAML 清单文件提供元数据，可通过 Reload 重新读取。
type FileStore struct {
	path string
	log  loader.Logger

	mu      sync.RWMutex
	modules map[loader.Identity]loader.Metadata
}

// NewFileStore 读取 path 处的清单。
func NewFileStore(path string, log loader.Logger) (*FileStore, error) {
	s := &FileStore{path: path, log: loader.DefaultLogger(log)}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload 重新读取清单文件。
func (s *FileStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	modules, err := ParseManifest(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.modules = modules
	s.mu.Unlock()
	s.log.Infof("loaded %d modules from %s", len(modules), s.path)
	return nil
}

// ParseManifest 解析 YAML 清单为按身份索引的最新元数据。
func ParseManifest(data []byte) (map[loader.Identity]loader.Metadata, error) {
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	modules := make(map[loader.Identity]loader.Metadata, len(manifest.Modules))
	for i, entry := range manifest.Modules {
		if entry.Name == "" || entry.ContractVersion == "" || entry.ArtifactURL == "" {
			return nil, fmt.Errorf("manifest entry %d: name, contractVersion and artifactUrl are required", i)
		}
		id := loader.Identity{Name: entry.Name, ContractVersion: entry.ContractVersion}
		modules[id] = loader.Metadata{ArtifactURL: entry.ArtifactURL, StyleURL: entry.StyleURL}
	}
	return modules, nil
}

// Latest 返回 id 的最新元数据。
func (s *FileStore) Latest(ctx context.Context, id loader.Identity) (loader.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	md, ok := s.modules[id]
	if !ok {
		return loader.Metadata{}, ErrNotFound
	}
	return md, nil
}
