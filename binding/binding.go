package binding

import (
	"regexp"
	"strings"

	"github.com/ByLCY/stencil/model"
)

var exprPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Value 是元素在本次渲染中的有效取值。
// 图片元素没有任何来源时 Missing 为 true，此时 Text 为空。
// Bound 表示取值来自运行时参数，此类值原样使用，不再做 ${name} 替换。
type Value struct {
	Text    string
	Missing bool
	Bound   bool
}

// Resolve 按 运行时参数 → 元素默认值 → 占位 的顺序求值。
// 文本元素最终回落为 "{variableName}"；图片元素回落为 Missing。
func Resolve(el model.Element, params map[string]string) Value {
	if v, ok := params[el.VariableName]; ok && v != "" {
		return Value{Text: v, Bound: true}
	}
	switch d := el.Data.(type) {
	case *model.TextData:
		if d.Content != "" {
			return Value{Text: d.Content}
		}
		return Value{Text: "{" + el.VariableName + "}"}
	case *model.ImageData:
		if d.Src != "" {
			return Value{Text: d.Src}
		}
	}
	return Value{Missing: true}
}

// ResolveText returns the text an element displays. Defaults and content go
// through Interpolate; a value bound from params is returned unchanged.
func ResolveText(el model.Element, params map[string]string) string {
	v := Resolve(el, params)
	if v.Bound {
		return v.Text
	}
	return Interpolate(v.Text, params)
}

// Interpolate 将文本中的 ${name} 替换为 params 中的值。
// 若 params 为空或键不存在，则保留原占位符。
func Interpolate(text string, params map[string]string) string {
	if len(params) == 0 || !strings.Contains(text, "${") {
		return text
	}
	return exprPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := exprPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		name := strings.TrimSpace(groups[1])
		if name == "" {
			return match
		}
		if val, ok := params[name]; ok {
			return val
		}
		return match
	})
}
