package kube

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"

	"bundleloader/internal/loader"
)

// 常量统一了标签、注解与数据键，确保发布端与查询端一致。
const (
	labelManagedBy        = "bundleloader.io/managing-controller"
	labelModule           = "bundleloader.io/module"
	labelContractVersion  = "bundleloader.io/contract-version"
	annotationPublishedAt = "bundleloader.io/published-at"
	controllerName        = "bundle-registry"

	keyName            = "name"
	keyContractVersion = "contractVersion"
	keyArtifactURL     = "artifactUrl"
	keyStyleURL        = "styleUrl"
)

var (
	// nameSanitizer 将模块名清洗成合法的 Kubernetes 资源名。
	nameSanitizer = regexp.MustCompile(`[^a-z0-9\-]+`)
	// labelSanitizer 将任意字符串清洗成合法的标签值。
	labelSanitizer = regexp.MustCompile(`[^A-Za-z0-9._\-]+`)
)

func sanitizeName(base string) string {
	base = strings.ToLower(base)
	base = nameSanitizer.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-")
	if len(base) == 0 {
		base = "module"
	}
	if len(base) > 40 {
		base = base[:40]
	}
	return base
}

func sanitizeLabel(v string) string {
	v = labelSanitizer.ReplaceAllString(v, "-")
	if len(v) > 63 {
		v = v[:63]
	}
	return strings.Trim(v, "-_.")
}

func moduleLabels(id loader.Identity) map[string]string {
	return map[string]string{
		labelModule:          sanitizeLabel(id.Name),
		labelContractVersion: sanitizeLabel(id.ContractVersion),
	}
}

func configMapName(id loader.Identity, at time.Time) string {
	return fmt.Sprintf("bundle-%s-%d", sanitizeName(id.Name+"-"+id.ContractVersion), at.UnixNano())
}

// publishedAt 读取发布注解，缺失或无法解析时回退到创建时间。
func publishedAt(cm *corev1.ConfigMap) time.Time {
	if v, ok := cm.Annotations[annotationPublishedAt]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return cm.CreationTimestamp.Time
}
