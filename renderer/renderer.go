package renderer

import (
	"context"

	"github.com/ByLCY/stencil/model"
)

// Output 是一次渲染得到的编码图像及其 MIME 类型。
type Output struct {
	Bytes       []byte
	ContentType string
}

// Renderer 将模板与运行时参数渲染为最终图像。
// 只有结构性错误（如画布尺寸非法）会返回 error；元素级失败以占位图呈现。
type Renderer interface {
	Render(ctx context.Context, tmpl *model.Template, params map[string]string) (*Output, error)
}
