package fonts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const maxFontBytes = 16 << 20

// ErrFontNotFound 表示抓取端没有该字体变体。
var ErrFontNotFound = errors.New("字体不存在")

// Fetcher 获取某个字体变体的原始字体数据（TTF/OTF/WOFF/WOFF2）。
type Fetcher interface {
	Fetch(ctx context.Context, v Variant) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, v Variant) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, v Variant) ([]byte, error) { return f(ctx, v) }

// Chain 依次尝试多个抓取端，返回第一个成功的结果。
type Chain []Fetcher

func (c Chain) Fetch(ctx context.Context, v Variant) ([]byte, error) {
	var errs []error
	for _, f := range c {
		data, err := f.Fetch(ctx, v)
		if err == nil {
			return data, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%s: %w", v.Family, ErrFontNotFound)
	}
	return nil, errors.Join(errs...)
}

// DirFetcher 在本地目录中查找形如 "Open Sans-Bold.ttf" / "OpenSans_BoldItalic.woff2" 的文件。
type DirFetcher struct {
	Dir string
}

var fontExts = map[string]bool{".ttf": true, ".otf": true, ".woff": true, ".woff2": true}

func (d DirFetcher) Fetch(ctx context.Context, v Variant) ([]byte, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, fmt.Errorf("读取字体目录 %s 失败: %w", d.Dir, err)
	}
	family := squash(v.Family)
	wanted := map[string]bool{family + squash(v.StyleName()): true}
	if v.Weight == 400 && !v.Italic {
		wanted[family] = true
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !fontExts[ext] {
			continue
		}
		if wanted[squash(strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())))] {
			return os.ReadFile(filepath.Join(d.Dir, entry.Name()))
		}
	}
	return nil, fmt.Errorf("%s %s: %w", v.Family, v.StyleName(), ErrFontNotFound)
}

func squash(s string) string {
	return strings.ToLower(strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s))
}

// GoogleFetcher 通过 Google Fonts CSS2 接口解析字体文件地址并下载。
type GoogleFetcher struct {
	Client  *http.Client
	BaseURL string
	// UserAgent 会影响接口返回的字体格式，为空时使用 DefaultUserAgent。
	UserAgent string
}

// DefaultUserAgent makes the CSS2 API answer with plain TrueType URLs.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 6.1; WOW64; rv:27.0) Gecko/20100101 Firefox/27.0"

var cssURLPattern = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)

func (g GoogleFetcher) Fetch(ctx context.Context, v Variant) ([]byte, error) {
	base := g.BaseURL
	if base == "" {
		base = "https://fonts.googleapis.com"
	}
	axis := fmt.Sprintf("wght@%d", v.Weight)
	if v.Italic {
		axis = fmt.Sprintf("ital,wght@1,%d", v.Weight)
	}
	cssURL := fmt.Sprintf("%s/css2?family=%s:%s", strings.TrimRight(base, "/"),
		strings.ReplaceAll(url.QueryEscape(v.Family), "%20", "+"), axis)

	css, err := g.get(ctx, cssURL)
	if err != nil {
		return nil, err
	}
	m := cssURLPattern.FindSubmatch(css)
	if m == nil {
		return nil, fmt.Errorf("%s %s: 样式表中没有字体地址: %w", v.Family, v.StyleName(), ErrFontNotFound)
	}
	return g.get(ctx, string(m[1]))
}

func (g GoogleFetcher) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	ua := g.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求 %s 失败: %w", target, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("请求 %s: %s: %w", target, resp.Status, ErrFontNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("请求 %s: %s", target, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxFontBytes))
}
