package canvasrenderer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"
	"unicode/utf8"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers"
	xdraw "golang.org/x/image/draw"

	"github.com/ByLCY/stencil/layout"
)

// surface owns one render's canvas. It rasterizes at one dot per canvas unit,
// so every coordinate below is an output pixel with the origin at top-left.
type surface struct {
	width, height float64
	c             *canvas.Canvas
	ctx           *canvas.Context
	clips         []image.Rectangle
}

func newSurface(width, height float64) *surface {
	c := canvas.New(width, height)
	ctx := canvas.NewContext(c)
	ctx.SetCoordSystem(canvas.CartesianIV) // 使坐标与模板保持左上角为原点
	s := &surface{width: width, height: height, c: c, ctx: ctx}
	s.fillRect(0, 0, width, height, canvas.White, nil)
	return s
}

func (s *surface) bounds() image.Rectangle {
	return image.Rect(0, 0, int(math.Ceil(s.width)), int(math.Ceil(s.height)))
}

// pushClip restricts subsequent image draws to the rectangle, intersected with
// any clip already in effect. Every pushClip must be paired with popClip.
func (s *surface) pushClip(x, y, w, h float64) {
	r := pixelRect(x, y, w, h)
	if n := len(s.clips); n > 0 {
		r = r.Intersect(s.clips[n-1])
	}
	s.clips = append(s.clips, r)
	s.ctx.Push()
}

func (s *surface) popClip() {
	if len(s.clips) == 0 {
		return
	}
	s.clips = s.clips[:len(s.clips)-1]
	s.ctx.Pop()
}

func (s *surface) visible() image.Rectangle {
	r := s.bounds()
	if n := len(s.clips); n > 0 {
		r = r.Intersect(s.clips[n-1])
	}
	return r
}

// fillRect 绘制填充矩形；stroke 为 nil 时不描边，描边不会超出 (x, y, w, h)。
func (s *surface) fillRect(x, y, w, h float64, fill color.Color, stroke color.Color) {
	s.ctx.SetFillColor(fill)
	if stroke == nil || w <= 1 || h <= 1 {
		s.ctx.SetStrokeColor(color.RGBA{0, 0, 0, 0})
		s.ctx.SetStrokeWidth(0)
		s.ctx.DrawPath(x, y, canvas.Rectangle(w, h))
		return
	}
	// 描边以路径为中线，内缩半个线宽使整个框落在目标矩形内
	s.ctx.SetStrokeColor(stroke)
	s.ctx.SetStrokeWidth(1)
	s.ctx.DrawPath(x+0.5, y+0.5, canvas.Rectangle(w-1, h-1))
}

// drawImageRect resamples img into the destination rectangle (x, y, w, h).
// Only the part inside the canvas and the active clip is produced and drawn.
func (s *surface) drawImageRect(img image.Image, x, y, w, h float64) {
	dr := pixelRect(x, y, w, h)
	vis := dr.Intersect(s.visible())
	if vis.Empty() {
		return
	}
	src := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, vis.Dx(), vis.Dy()))
	if dr.Dx() == src.Dx() && dr.Dy() == src.Dy() {
		xdraw.Draw(dst, dst.Bounds(), img, src.Min.Add(vis.Min.Sub(dr.Min)), xdraw.Src)
	} else {
		xdraw.CatmullRom.Scale(dst, dr.Sub(vis.Min), img, src, xdraw.Src, nil)
	}
	s.ctx.DrawImage(float64(vis.Min.X), float64(vis.Min.Y), dst, canvas.DPMM(1))
}

// drawTextLine draws one line anchored at x: Left starts at x, Center is
// centred on x and Right ends at x.
func (s *surface) drawTextLine(face *canvas.FontFace, text string, x, baseline float64, align layout.Align, letterSpacing float64) {
	if text == "" {
		return
	}
	if letterSpacing == 0 {
		s.ctx.DrawText(x, baseline, canvas.NewTextLine(face, text, canvasAlign(align)))
		return
	}

	// 字间距需要逐字放置；每个字的位置取其前缀的测量宽度，与排版时的整行宽度一致
	m := spacedMeasurer{face: face, spacing: letterSpacing}
	start := x
	switch align {
	case layout.AlignCenter:
		start = x - m.TextWidth(text)/2
	case layout.AlignRight:
		start = x - m.TextWidth(text)
	}
	for i, r := range text {
		offset := 0.0
		if i > 0 {
			offset = m.TextWidth(text[:i]) + letterSpacing
		}
		s.ctx.DrawText(start+offset, baseline, canvas.NewTextLine(face, string(r), canvas.Left))
	}
}

// drawLabelBox 绘制带描边的矩形并在中心写一行标签，用于图片占位与错误提示。
func (s *surface) drawLabelBox(x, y, w, h float64, box boxStyle, face *canvas.FontFace) {
	s.fillRect(x, y, w, h, box.fill.color(), box.stroke.color())
	if face == nil || box.label == "" {
		return
	}
	// 以字号的 0.35 倍下移基线，使文字视觉上垂直居中
	baseline := y + h/2 + labelFontSize*0.35
	s.ctx.DrawText(x+w/2, baseline, canvas.NewTextLine(face, box.label, canvas.Center))
}

func (s *surface) encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := renderers.PNG(canvas.DPMM(1))(&buf, s.c); err != nil {
		return nil, fmt.Errorf("编码 PNG 失败: %w", err)
	}
	return buf.Bytes(), nil
}

func canvasAlign(a layout.Align) canvas.TextAlign {
	switch a {
	case layout.AlignCenter:
		return canvas.Center
	case layout.AlignRight:
		return canvas.Right
	default:
		return canvas.Left
	}
}

func pixelRect(x, y, w, h float64) image.Rectangle {
	x0, y0 := int(math.Round(x)), int(math.Round(y))
	return image.Rect(x0, y0, x0+int(math.Round(w)), y0+int(math.Round(h)))
}

// spacedMeasurer 测量带字间距的文本宽度，实现 layout.Measurer。
type spacedMeasurer struct {
	face    *canvas.FontFace
	spacing float64
}

func (m spacedMeasurer) TextWidth(s string) float64 {
	w := m.face.TextWidth(s)
	if n := utf8.RuneCountInString(s); n > 1 {
		w += m.spacing * float64(n-1)
	}
	return w
}
