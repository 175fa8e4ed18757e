package canvasrenderer

import (
	"errors"
	"fmt"
	"image/color"
	"math"

	"github.com/tdewolff/canvas"

	"github.com/ByLCY/stencil/binding"
	"github.com/ByLCY/stencil/fonts"
	"github.com/ByLCY/stencil/layout"
	"github.com/ByLCY/stencil/model"
)

const (
	labelFontSize     = 14.0
	textErrorFontSize = 14.0
	textErrorMessage  = "Error loading text"
)

var (
	labelFont     = fonts.Request{Family: string(fonts.SansSerif)}
	textErrorHex  = colorHex("#ff0000")
	defaultInkHex = colorHex("#000000")
)

// ErrInvalidTextMetrics 表示文本元素的字号或坐标不是有限数值。
var ErrInvalidTextMetrics = errors.New("文本元素的字号或坐标非法")

// colorHex 是模板中的颜色字符串，解析失败时为黑色。
type colorHex string

func (c colorHex) color() color.RGBA {
	return model.ColorOr(string(c), color.RGBA{0, 0, 0, 255})
}

// drawText 绘制一个文本元素；任何失败都在本元素内消化为错误提示行。
func (r *Renderer) drawText(s *surface, el model.Element, d *model.TextData, params map[string]string) {
	if err := r.drawTextElement(s, el, d, params); err != nil {
		r.logger.Printf("canvas: element %s: %v", el.ID, err)
		r.drawTextError(s, el)
	}
}

func (r *Renderer) drawTextElement(s *surface, el model.Element, d *model.TextData, params map[string]string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("绘制文本时发生异常: %v", p)
		}
	}()

	block, face, err := r.layoutText(el, d, params)
	if err != nil {
		return err
	}
	for _, ln := range block.Lines {
		s.drawTextLine(face, ln.Content, block.AnchorX, ln.Baseline, block.Align, d.LetterSpacing)
	}
	return nil
}

// layoutText 求值、选择字体并完成折行与定位，但不绘制。
func (r *Renderer) layoutText(el model.Element, d *model.TextData, params map[string]string) (layout.Block, *canvas.FontFace, error) {
	size := d.Size()
	if math.IsNaN(size) || math.IsInf(size, 0) || math.IsNaN(el.X) || math.IsNaN(el.Y) {
		return layout.Block{}, nil, fmt.Errorf("size=%g x=%g y=%g: %w", size, el.X, el.Y, ErrInvalidTextMetrics)
	}

	text := binding.ResolveText(el, params)
	ink := defaultInkHex.color()
	if d.Color != "" {
		ink = colorHex(d.Color).color()
	}
	face := r.fonts.Resolve(fonts.Request{Family: d.Family(), Weight: d.FontWeight}).At(size, ink)

	var m layout.Measurer = face
	if d.LetterSpacing != 0 {
		m = spacedMeasurer{face: face, spacing: d.LetterSpacing}
	}
	block := layout.Layout(text, el.X, el.Y, size, d.Limit(), layout.Align(d.Align()), m)
	return block, face, nil
}

func (r *Renderer) drawTextError(s *surface, el model.Element) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Printf("canvas: element %s: 无法绘制错误提示: %v", el.ID, p)
		}
	}()
	face := r.fonts.Resolve(labelFont).At(textErrorFontSize, textErrorHex.color())
	s.drawTextLine(face, textErrorMessage, el.X, el.Y+textErrorFontSize, layout.AlignLeft, 0)
}
