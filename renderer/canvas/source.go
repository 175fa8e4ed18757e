package canvasrenderer

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	maxImageBytes  = 32 << 20
	maxImagePixels = 64 << 20
)

// ErrImageNotFound 表示图片来源无法定位。
var ErrImageNotFound = errors.New("图片资源不存在")

// Loader fetches and decodes an image source.
type Loader interface {
	Load(ctx context.Context, src string) (image.Image, error)
}

// Resource can be provided either by Bytes or by Path.
type Resource struct {
	Bytes []byte
	Path  string
}

// sourceLoader resolves data: URIs, http(s) URLs, built-in:<name> resources and
// file paths relative to baseDir.
type sourceLoader struct {
	baseDir string
	blobs   map[string][]byte
	client  *http.Client
}

func newSourceLoader(baseDir string, images map[string]Resource, client *http.Client, logger *log.Logger) *sourceLoader {
	l := &sourceLoader{baseDir: baseDir, blobs: map[string][]byte{}, client: client}
	if l.client == nil {
		l.client = &http.Client{Timeout: 10 * time.Second}
	}
	for name, res := range images {
		if name == "" {
			continue
		}
		if len(res.Bytes) > 0 {
			l.blobs[name] = res.Bytes
			continue
		}
		if res.Path != "" {
			// 读取失败只记录日志，渲染时该资源按不存在处理
			data, err := os.ReadFile(res.Path)
			if err != nil {
				logger.Printf("canvas: 读取内置图片 %s (%s) 失败: %v", name, res.Path, err)
				continue
			}
			if len(data) > 0 {
				l.blobs[name] = data
			}
		}
	}
	return l
}

func (l *sourceLoader) Load(ctx context.Context, src string) (image.Image, error) {
	src = strings.TrimSpace(src)
	switch {
	case src == "":
		return nil, ErrImageNotFound
	case strings.HasPrefix(src, "data:"):
		data, err := decodeDataURI(src)
		if err != nil {
			return nil, err
		}
		return decodeImage(bytes.NewReader(data))
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return l.fetch(ctx, src)
	case strings.HasPrefix(src, "built-in:"), strings.HasPrefix(src, "builtin:"):
		name := strings.TrimPrefix(strings.TrimPrefix(src, "built-in:"), "builtin:")
		if name == placeholderName {
			return placeholderImage, nil
		}
		blob, ok := l.blobs[name]
		if !ok {
			return nil, fmt.Errorf("built-in:%s: %w", name, ErrImageNotFound)
		}
		return decodeImage(bytes.NewReader(blob))
	default:
		return l.open(src)
	}
}

func (l *sourceLoader) open(orig string) (image.Image, error) {
	if l.baseDir == "" && !filepath.IsAbs(orig) {
		return nil, fmt.Errorf("未指定资源目录时不允许直接使用路径：%s: %w", orig, ErrImageNotFound)
	}
	path := orig
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.baseDir, path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("读取图片 %s 失败: %w", orig, err)
	}
	defer file.Close()
	return decodeImage(file)
}

func (l *sourceLoader) fetch(ctx context.Context, src string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("下载图片失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("下载图片失败: %s", resp.Status)
	}
	return decodeImage(io.LimitReader(resp.Body, maxImageBytes))
}

// decodeImage 先读取尺寸，拒绝超大的图片再完整解码。
func decodeImage(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("读取图片失败: %w", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("解码图片失败: %w", err)
	}
	if cfg.Width*cfg.Height > maxImagePixels {
		return nil, fmt.Errorf("图片尺寸 %dx%d 过大", cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("解码图片失败: %w", err)
	}
	return img, nil
}

func decodeDataURI(src string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(src, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("data URI 缺少数据段")
	}
	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			// 部分客户端使用 URL-safe 或不带填充的编码
			if alt, altErr := base64.RawURLEncoding.DecodeString(strings.TrimRight(payload, "=")); altErr == nil {
				return alt, nil
			}
			return nil, fmt.Errorf("data URI base64 解码失败: %w", err)
		}
		return data, nil
	}
	text, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("data URI 解码失败: %w", err)
	}
	return []byte(text), nil
}

const placeholderName = "placeholder"

// placeholderImage 是进程启动时生成一次的静态占位图（built-in:placeholder）。
var placeholderImage = newPlaceholderImage(64, 64)

func newPlaceholderImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	light := color.RGBA{0xe6, 0xe6, 0xe6, 0xff}
	dark := color.RGBA{0xcc, 0xcc, 0xcc, 0xff}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/8+y/8)%2 == 0 {
				img.SetRGBA(x, y, light)
			} else {
				img.SetRGBA(x, y, dark)
			}
		}
	}
	return img
}
