package model

// 该文件定义模板、元素与分类等数据结构，供存储、DSL、渲染与 HTTP 层共用。

import (
	"errors"
	"fmt"
	"time"
)

// 默认值与固定常量（单位：像素）。
const (
	DefaultMaxWidth    = 400.0
	DefaultFontSize    = 16.0
	DefaultFontFamily  = "sans-serif"
	DefaultImageWidth  = 150.0
	DefaultImageHeight = 100.0
)

var (
	// ErrInvalidCanvas 表示画布尺寸非法（宽或高不为正数），属于结构性错误。
	ErrInvalidCanvas = errors.New("画布尺寸必须为正数")
	// ErrUnknownElementType 表示元素 data.type 缺失或不受支持。
	ErrUnknownElementType = errors.New("未知的元素类型")
)

// Template 描述固定尺寸的画布、可选背景图与按顺序绘制的元素。
// 渲染期间只读；ID/Name/CategoryID/Group/Active 仅供存储层使用。
type Template struct {
	ID              string    `json:"id" yaml:"id"`
	Name            string    `json:"name,omitempty" yaml:"name,omitempty"`
	CategoryID      string    `json:"categoryId,omitempty" yaml:"categoryId,omitempty"`
	Group           string    `json:"group,omitempty" yaml:"group,omitempty"`
	Active          bool      `json:"active,omitempty" yaml:"active,omitempty"`
	Width           float64   `json:"width" yaml:"width"`
	Height          float64   `json:"height" yaml:"height"`
	BackgroundImage string    `json:"backgroundImage,omitempty" yaml:"backgroundImage,omitempty"`
	Elements        []Element `json:"elements" yaml:"elements"`
}

// Validate 只检查结构性错误；元素级别的问题在渲染时降级为占位图。
func (t *Template) Validate() error {
	if t == nil {
		return fmt.Errorf("模板为空: %w", ErrInvalidCanvas)
	}
	if !(t.Width > 0) || !(t.Height > 0) {
		return fmt.Errorf("%gx%g: %w", t.Width, t.Height, ErrInvalidCanvas)
	}
	return nil
}

// Clone 返回模板的深拷贝，供存储层对外发布快照。
func (t *Template) Clone() *Template {
	if t == nil {
		return nil
	}
	out := *t
	out.Elements = make([]Element, len(t.Elements))
	for i, el := range t.Elements {
		out.Elements[i] = el
		switch d := el.Data.(type) {
		case *TextData:
			cp := *d
			out.Elements[i].Data = &cp
		case *ImageData:
			cp := *d
			out.Elements[i].Data = &cp
		}
	}
	return &out
}

// Category 用于对模板分组展示。
type Category struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Schedule 在目标分钟将 Group 的活动模板切换为 TemplateID。
type Schedule struct {
	ID         string    `json:"id" yaml:"id"`
	Group      string    `json:"group" yaml:"group"`
	TemplateID string    `json:"templateId" yaml:"templateId"`
	At         time.Time `json:"at" yaml:"at"`
}
