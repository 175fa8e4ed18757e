package canvasrenderer

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/ByLCY/stencil/binding"
	"github.com/ByLCY/stencil/model"
)

// Placement is where a source image lands relative to the target rectangle's
// origin, and whether it must be clipped to the rectangle.
type Placement struct {
	X, Y float64
	W, H float64
	Clip bool
}

// Fit computes the object-fit placement of a srcW×srcH image inside a
// targetW×targetH rectangle. Any fit other than cover or contain stretches.
func Fit(srcW, srcH, targetW, targetH float64, fit model.ObjectFit) Placement {
	switch fit {
	case model.FitCover:
		scale := math.Max(targetW/srcW, targetH/srcH)
		w, h := srcW*scale, srcH*scale
		return Placement{X: (targetW - w) / 2, Y: (targetH - h) / 2, W: w, H: h, Clip: true}
	case model.FitContain:
		scale := math.Min(targetW/srcW, targetH/srcH)
		w, h := srcW*scale, srcH*scale
		return Placement{X: (targetW - w) / 2, Y: (targetH - h) / 2, W: w, H: h}
	default:
		return Placement{W: targetW, H: targetH}
	}
}

type boxStyle struct {
	fill, stroke, text colorHex
	label              string
}

var (
	missingImageBox = boxStyle{fill: "#f0f0f0", stroke: "#cccccc", text: "#999999", label: "Image"}
	failedImageBox  = boxStyle{fill: "#ffeeee", stroke: "#ff9999", text: "#cc0000", label: "Failed to load"}
)

func (r *Renderer) drawImage(ctx context.Context, s *surface, el model.Element, d *model.ImageData, params map[string]string) {
	value := binding.Resolve(el, params)
	if value.Missing {
		r.drawImageBox(s, el, d, missingImageBox)
		return
	}

	img, err := r.loader.Load(ctx, value.Text)
	if err == nil {
		err = r.composite(s, img, el.X, el.Y, d)
	}
	if err != nil {
		r.logger.Printf("canvas: element %s: image %q: %v", el.ID, truncate(value.Text, 80), err)
		r.drawImageBox(s, el, d, failedImageBox)
	}
}

func (r *Renderer) drawImageBox(s *surface, el model.Element, d *model.ImageData, box boxStyle) {
	w, h := d.Width, d.Height
	if w <= 0 {
		w = model.DefaultImageWidth
	}
	if h <= 0 {
		h = model.DefaultImageHeight
	}
	label := r.fonts.Resolve(labelFont).At(labelFontSize, box.text.color())
	s.drawLabelBox(el.X, el.Y, w, h, box, label)
}

// composite 按 objectFit 将图片绘制到目标矩形；cover 分支在 clip 作用域内绘制。
func (r *Renderer) composite(s *surface, img image.Image, x, y float64, d *model.ImageData) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("合成图片时发生异常: %v", p)
		}
	}()

	b := img.Bounds()
	srcW, srcH := float64(b.Dx()), float64(b.Dy())
	if srcW <= 0 || srcH <= 0 {
		// 无法得知原始尺寸时不做缩放，按原样绘制在目标原点
		s.drawImageRect(img, x, y, srcW, srcH)
		return nil
	}

	targetW, targetH := d.Width, d.Height
	if targetW <= 0 {
		targetW = srcW
	}
	if targetH <= 0 {
		targetH = srcH
	}

	p := Fit(srcW, srcH, targetW, targetH, d.Fit())
	if p.Clip {
		s.pushClip(x, y, targetW, targetH)
		defer s.popClip()
	}
	s.drawImageRect(img, x+p.X, y+p.Y, p.W, p.H)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
