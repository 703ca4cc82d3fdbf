package loader

import (
	"strings"
	"sync"

	"golang.org/x/net/html"
)

// StyleSet 记录已插入的样式表 URL，保证每个 URL 只插入一次。
type StyleSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
	urls []string
}

// NewStyleSet 创建空集合。
func NewStyleSet() *StyleSet {
	return &StyleSet{seen: make(map[string]struct{})}
}

// InjectStyle 插入 url；已存在时为空操作并返回 false。
func (s *StyleSet) InjectStyle(url string) bool {
	if url == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[url]; ok {
		return false
	}
	s.seen[url] = struct{}{}
	s.urls = append(s.urls, url)
	return true
}

// URLs 按插入顺序返回样式表 URL。
func (s *StyleSet) URLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.urls...)
}

// Links 渲染所有样式表的 <link> 标签。
func (s *StyleSet) Links() string {
	var b strings.Builder
	for _, u := range s.URLs() {
		b.WriteString(stylesheetLink(u))
	}
	return b.String()
}

func stylesheetLink(url string) string {
	return `<link rel="stylesheet" href="` + html.EscapeString(url) + `">` + "\n"
}
