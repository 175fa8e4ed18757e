package fonts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tdewolff/canvas"
)

// Request 是渲染端对字体的请求，直接来自模板中的 fontFamily / fontWeight。
type Request struct {
	Family string
	Weight string
}

// Variant 是规范化之后的字体变体，也是缓存与下载的单位。
type Variant struct {
	Family string
	Weight int
	Italic bool
}

func (v Variant) key() string {
	return fmt.Sprintf("%s|%d|%t", strings.ToLower(v.Family), v.Weight, v.Italic)
}

// Style 返回该变体对应的 canvas 字体样式。
func (v Variant) Style() canvas.FontStyle {
	var result canvas.FontStyle
	switch {
	case v.Weight >= 900:
		result = canvas.FontBlack
	case v.Weight >= 800:
		result = canvas.FontExtraBold
	case v.Weight >= 700:
		result = canvas.FontBold
	case v.Weight >= 600:
		result = canvas.FontSemiBold
	case v.Weight >= 500:
		result = canvas.FontMedium
	case v.Weight <= 300:
		result = canvas.FontLight
	default:
		result = canvas.FontRegular
	}
	if v.Italic {
		result |= canvas.FontItalic
	}
	return result
}

// StyleName 返回常见字体文件名中的样式后缀，例如 Bold、SemiBoldItalic。
func (v Variant) StyleName() string {
	var name string
	switch {
	case v.Weight >= 900:
		name = "Black"
	case v.Weight >= 800:
		name = "ExtraBold"
	case v.Weight >= 700:
		name = "Bold"
	case v.Weight >= 600:
		name = "SemiBold"
	case v.Weight >= 500:
		name = "Medium"
	case v.Weight >= 400:
		name = "Regular"
	case v.Weight >= 300:
		name = "Light"
	case v.Weight >= 200:
		name = "ExtraLight"
	default:
		name = "Thin"
	}
	if v.Italic {
		if name == "Regular" {
			return "Italic"
		}
		return name + "Italic"
	}
	return name
}

// Normalize 从请求中解析出主字体名、数值字重与是否斜体。
// 字体栈（"Inter, Arial, sans-serif"）只取第一项作为下载目标。
func Normalize(req Request) Variant {
	weight, italic := ParseWeight(req.Weight)
	return Variant{Family: PrimaryFamily(req.Family), Weight: weight, Italic: italic}
}

// PrimaryFamily 返回字体栈中的第一个字体名，去掉引号与空白。
func PrimaryFamily(family string) string {
	first := family
	if i := strings.IndexByte(first, ','); i != -1 {
		first = first[:i]
	}
	return strings.Trim(strings.TrimSpace(first), `"'`)
}

// ParseWeight 支持 CSS 数值字重、normal/bold 与常见的字重名称。
func ParseWeight(weight string) (int, bool) {
	s := strings.ToLower(strings.TrimSpace(weight))
	italic := strings.Contains(s, "italic") || strings.Contains(s, "oblique")
	s = strings.TrimSpace(strings.NewReplacer("italic", "", "oblique", "").Replace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < 100 {
			n = 100
		}
		if n > 900 {
			n = 900
		}
		return n / 100 * 100, italic
	}
	switch {
	case strings.Contains(s, "black"), strings.Contains(s, "heavy"):
		return 900, italic
	case strings.Contains(s, "extrabold"), strings.Contains(s, "ultrabold"):
		return 800, italic
	case strings.Contains(s, "semibold"), strings.Contains(s, "demibold"):
		return 600, italic
	case strings.Contains(s, "bold"), s == "bolder":
		return 700, italic
	case strings.Contains(s, "medium"):
		return 500, italic
	case strings.Contains(s, "extralight"), strings.Contains(s, "ultralight"):
		return 200, italic
	case strings.Contains(s, "thin"), strings.Contains(s, "hairline"):
		return 100, italic
	case strings.Contains(s, "light"), s == "lighter":
		return 300, italic
	default:
		return 400, italic
	}
}

// Classify 依据关键字把任意字体名归入通用字体族，无法判断时为 sans-serif。
func Classify(family string) Generic {
	s := strings.ToLower(family)
	switch {
	case strings.Contains(s, "monospace"), strings.Contains(s, "mono"), strings.Contains(s, "courier"),
		strings.Contains(s, "consolas"), strings.Contains(s, "code"):
		return Monospace
	case strings.Contains(s, "sans"):
		return SansSerif
	case strings.Contains(s, "serif"), strings.Contains(s, "times"), strings.Contains(s, "georgia"),
		strings.Contains(s, "garamond"), strings.Contains(s, "roman"):
		return Serif
	case strings.Contains(s, "cursive"), strings.Contains(s, "script"), strings.Contains(s, "hand"),
		strings.Contains(s, "brush"), strings.Contains(s, "comic"):
		return Cursive
	default:
		return SansSerif
	}
}

// isGeneric 判断字体名本身就是通用字体族关键字（无需下载）。
func isGeneric(family string) (Generic, bool) {
	switch g := Generic(strings.ToLower(strings.TrimSpace(family))); g {
	case SansSerif, Serif, Monospace, Cursive:
		return g, true
	case "system-ui", "ui-sans-serif":
		return SansSerif, true
	case "ui-serif":
		return Serif, true
	case "ui-monospace":
		return Monospace, true
	default:
		return "", false
	}
}
