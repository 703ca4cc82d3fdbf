package kube

import (
	"context"
	"fmt"
	"sort"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"bundleloader/internal/loader"
	"bundleloader/internal/registryserver"
)

// Store 将每次模块发布保存为带标签的 ConfigMap，最新发布即为 latest。
type Store struct {
	client    kubernetes.Interface
	namespace string
	log       loader.Logger
	now       func() time.Time
}

// NewStore 优先使用集群内配置，失败时回退到本地 kubeconfig。
func NewStore(namespace string, log loader.Logger) (*Store, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		cfg, err = clientcmd.BuildConfigFromFlags("", clientcmd.RecommendedHomeFile)
		if err != nil {
			return nil, fmt.Errorf("build kube config: %w", err)
		}
	}

	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build clientset: %w", err)
	}
	return NewStoreForClient(cs, namespace, log), nil
}

// NewStoreForClient 使用已有客户端构建 Store。
func NewStoreForClient(client kubernetes.Interface, namespace string, log loader.Logger) *Store {
	if namespace == "" {
		namespace = "default"
	}
	return &Store{
		client:    client,
		namespace: namespace,
		log:       loader.DefaultLogger(log),
		now:       time.Now,
	}
}

// Latest 返回 id 最近一次发布的元数据。
func (s *Store) Latest(ctx context.Context, id loader.Identity) (loader.Metadata, error) {
	selector := labels.SelectorFromSet(moduleLabels(id))
	list, err := s.client.CoreV1().ConfigMaps(s.namespace).List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		return loader.Metadata{}, fmt.Errorf("list configmaps: %w", err)
	}
	// 标签经过清洗，不同模块可能映射到同一标签值，需按数据中的原始标识精确过滤。
	var items []corev1.ConfigMap
	for _, cm := range list.Items {
		if cm.Data[keyName] == id.Name && cm.Data[keyContractVersion] == id.ContractVersion {
			items = append(items, cm)
		}
	}
	if len(items) == 0 {
		return loader.Metadata{}, registryserver.ErrNotFound
	}

	sort.SliceStable(items, func(i, j int) bool {
		return publishedAt(&items[i]).Before(publishedAt(&items[j]))
	})
	latest := items[len(items)-1]
	md := loader.Metadata{
		ArtifactURL: latest.Data[keyArtifactURL],
		StyleURL:    latest.Data[keyStyleURL],
	}
	if md.ArtifactURL == "" {
		return loader.Metadata{}, fmt.Errorf("configmap %s has no %s", latest.Name, keyArtifactURL)
	}
	return md, nil
}

// Publish 为 id 记录一次新的发布。
func (s *Store) Publish(ctx context.Context, id loader.Identity, md loader.Metadata) (string, error) {
	if md.ArtifactURL == "" {
		return "", fmt.Errorf("artifact url required")
	}
	now := s.now().UTC()
	name := configMapName(id, now)
	data := map[string]string{
		keyName:            id.Name,
		keyContractVersion: id.ContractVersion,
		keyArtifactURL:     md.ArtifactURL,
	}
	if md.StyleURL != "" {
		data[keyStyleURL] = md.StyleURL
	}
	labelSet := moduleLabels(id)
	labelSet[labelManagedBy] = controllerName
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   s.namespace,
			Labels:      labelSet,
			Annotations: map[string]string{annotationPublishedAt: now.Format(time.RFC3339Nano)},
		},
		Data: data,
	}
	if _, err := s.client.CoreV1().ConfigMaps(s.namespace).Create(ctx, cm, metav1.CreateOptions{}); err != nil {
		s.log.Errorf("publish %s: create configmap %s failed: %v", id, name, err)
		return "", fmt.Errorf("create configmap: %w", err)
	}
	s.log.Infof("published %s -> %s as configmap %s", id, md.ArtifactURL, name)
	return name, nil
}
