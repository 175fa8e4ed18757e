package canvasrenderer

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/ByLCY/stencil/fonts"
	"github.com/ByLCY/stencil/layout"
	"github.com/ByLCY/stencil/model"
	"github.com/ByLCY/stencil/renderer"
)

// ContentType is the MIME type of every rendered output.
const ContentType = "image/png"

// Renderer draws templates via github.com/tdewolff/canvas.
//
// A Renderer holds no per-render state: each Render call owns its own surface,
// so concurrent calls never observe each other. The font service is the only
// shared component and is safe for concurrent use.
type Renderer struct {
	fonts  *fonts.Service
	loader Loader
	logger *log.Logger
}

var _ renderer.Renderer = (*Renderer)(nil)

// Options configures the canvas renderer.
type Options struct {
	BaseDir string
	// Images are accessible via built-in:<name>.
	Images map[string]Resource
	// Fonts is shared across renders; a service without fetcher is created when nil.
	Fonts *fonts.Service
	// Loader overrides the default image source loader.
	Loader     Loader
	HTTPClient *http.Client
	Logger     *log.Logger
}

// NewRenderer creates a canvas-based renderer rooted at baseDir for resolving assets.
func NewRenderer(baseDir string) (*Renderer, error) {
	return NewRendererWithOptions(Options{BaseDir: baseDir})
}

// NewRendererWithOptions creates a renderer with injected resources and optional baseDir.
func NewRendererWithOptions(opts Options) (*Renderer, error) {
	r := &Renderer{
		fonts:  opts.Fonts,
		loader: opts.Loader,
		logger: opts.Logger,
	}
	if r.logger == nil {
		r.logger = log.Default()
	}
	if r.fonts == nil {
		svc, err := fonts.NewService(fonts.Options{Logger: r.logger})
		if err != nil {
			return nil, err
		}
		r.fonts = svc
	}
	if r.loader == nil {
		r.loader = newSourceLoader(opts.BaseDir, opts.Images, opts.HTTPClient, r.logger)
	}
	return r, nil
}

// Render renders the template into a PNG.
//
// Only a non-positive canvas size, or a context that is already done before
// drawing starts or by the time encoding finishes, is reported as an error.
func (r *Renderer) Render(ctx context.Context, tmpl *model.Template, params map[string]string) (*renderer.Output, error) {
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := newSurface(tmpl.Width, tmpl.Height)
	if tmpl.BackgroundImage != "" {
		r.drawBackground(ctx, s, tmpl.BackgroundImage)
	}

	// 元素顺序即绘制顺序，必须串行
	for _, el := range tmpl.Elements {
		switch d := el.Data.(type) {
		case *model.TextData:
			r.drawText(s, el, d, params)
		case *model.ImageData:
			r.drawImage(ctx, s, el, d, params)
		default:
			r.logger.Printf("canvas: element %s: unsupported payload %T", el.ID, el.Data)
		}
	}

	data, err := s.encode()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &renderer.Output{Bytes: data, ContentType: ContentType}, nil
}

// LayoutText returns the computed text layout of every text element, keyed by
// element ID, without drawing anything.
func (r *Renderer) LayoutText(tmpl *model.Template, params map[string]string) (map[string]layout.Block, error) {
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	out := make(map[string]layout.Block)
	for i, el := range tmpl.Elements {
		d, ok := el.Data.(*model.TextData)
		if !ok {
			continue
		}
		block, _, err := r.layoutText(el, d, params)
		if err != nil {
			return nil, fmt.Errorf("元素 %s: %w", el.ID, err)
		}
		key := el.ID
		if key == "" {
			key = fmt.Sprintf("#%d", i)
		}
		out[key] = block
	}
	return out, nil
}

// drawBackground 将背景图拉伸铺满画布；失败时保留白色底并继续。
func (r *Renderer) drawBackground(ctx context.Context, s *surface, src string) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Printf("canvas: background %q: %v", truncate(src, 80), p)
		}
	}()
	img, err := r.loader.Load(ctx, src)
	if err != nil {
		r.logger.Printf("canvas: background %q: %v", truncate(src, 80), err)
		return
	}
	s.drawImageRect(img, 0, 0, s.width, s.height)
}
