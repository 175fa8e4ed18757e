package fonts

import (
	"fmt"

	"github.com/go-fonts/latin-modern/lmroman10bold"
	"github.com/go-fonts/latin-modern/lmroman10bolditalic"
	"github.com/go-fonts/latin-modern/lmroman10italic"
	"github.com/go-fonts/latin-modern/lmroman10regular"
	"github.com/tdewolff/canvas"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/gofont/goregular"
)

// Generic 是 CSS 通用字体族。
type Generic string

const (
	SansSerif Generic = "sans-serif"
	Serif     Generic = "serif"
	Monospace Generic = "monospace"
	Cursive   Generic = "cursive"
)

// 每个通用字体族内置的四种样式。
type embeddedSet struct {
	regular, bold, italic, boldItalic []byte
}

var embedded = map[Generic]embeddedSet{
	SansSerif: {goregular.TTF, gobold.TTF, goitalic.TTF, gobolditalic.TTF},
	Serif:     {lmroman10regular.TTF, lmroman10bold.TTF, lmroman10italic.TTF, lmroman10bolditalic.TTF},
	Monospace: {gomono.TTF, gomonobold.TTF, gomonoitalic.TTF, gomonobolditalic.TTF},
	// 没有内置手写体，用斜体近似
	Cursive: {goitalic.TTF, gobolditalic.TTF, goitalic.TTF, gobolditalic.TTF},
}

// loadGeneric 构建一个内置字体族；内置字体解析失败属于编程错误。
func loadGeneric(g Generic) (*canvas.FontFamily, error) {
	set, ok := embedded[g]
	if !ok {
		return nil, fmt.Errorf("未知的通用字体族 %s", g)
	}
	family := canvas.NewFontFamily("stencil-" + string(g))
	for _, item := range []struct {
		data  []byte
		style canvas.FontStyle
	}{
		{set.regular, canvas.FontRegular},
		{set.bold, canvas.FontBold},
		{set.italic, canvas.FontRegular | canvas.FontItalic},
		{set.boldItalic, canvas.FontBold | canvas.FontItalic},
	} {
		if err := family.LoadFont(item.data, 0, item.style); err != nil {
			return nil, fmt.Errorf("加载内置字体 %s 失败: %w", g, err)
		}
	}
	return family, nil
}

// nearestEmbeddedStyle 将任意字重映射到内置字体族实际拥有的样式。
func nearestEmbeddedStyle(v Variant) canvas.FontStyle {
	style := canvas.FontRegular
	if v.Weight >= 600 {
		style = canvas.FontBold
	}
	if v.Italic {
		style |= canvas.FontItalic
	}
	return style
}
