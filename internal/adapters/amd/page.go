package amd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dop251/goja"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"bundleloader/internal/loader"
)

// Page 模拟客户端页面加载：按文档顺序运行服务端输出中的脚本，
// 使嵌入的交接状态出现在执行器的全局作用域中。
type Page struct {
	exec    *Executor
	fetcher loader.ArtifactFetcher
	styles  loader.StyleInjector
	log     loader.Logger
}

// NewPage 构建页面；fetcher 用于 <script src>，styles 接收样式表链接，均可为 nil。
func NewPage(exec *Executor, fetcher loader.ArtifactFetcher, styles loader.StyleInjector, log loader.Logger) *Page {
	return &Page{
		exec:    exec,
		fetcher: fetcher,
		styles:  styles,
		log:     loader.DefaultLogger(log),
	}
}

// Hydrate 解析 markup 并依次执行其中的脚本。
func (p *Page) Hydrate(ctx context.Context, markup string) error {
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return nil
			}
			return fmt.Errorf("tokenize markup: %w", z.Err())
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Script:
				if err := p.script(ctx, z, tok); err != nil {
					return err
				}
			case atom.Link:
				if attr(tok, "rel") == "stylesheet" && p.styles != nil {
					p.styles.InjectStyle(attr(tok, "href"))
				}
			}
		}
	}
}

func (p *Page) script(ctx context.Context, z *html.Tokenizer, tok html.Token) error {
	if src := attr(tok, "src"); src != "" {
		if p.fetcher == nil {
			return fmt.Errorf("script %s: no fetcher configured", src)
		}
		source, err := p.fetcher.FetchArtifact(ctx, src)
		if err != nil {
			return fmt.Errorf("fetch script %s: %w", src, err)
		}
		return p.run(ctx, src, string(source))
	}
	if z.Next() != html.TextToken {
		return nil
	}
	return p.run(ctx, "inline", string(z.Text()))
}

func (p *Page) run(ctx context.Context, name, source string) error {
	return p.exec.Do(ctx, func(rt *goja.Runtime) error {
		if err := p.exec.run(rt, name, source); err != nil {
			p.log.Errorf("page script %s failed: %v", name, err)
			return err
		}
		return nil
	})
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
