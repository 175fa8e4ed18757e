package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind 区分元素负载的两种变体。
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// TextAlign 是文本相对锚点 x 的水平对齐方式。
type TextAlign string

const (
	AlignLeft   TextAlign = "left"
	AlignCenter TextAlign = "center"
	AlignRight  TextAlign = "right"
)

// ObjectFit 描述图片如何适配目标矩形。
type ObjectFit string

const (
	FitCover   ObjectFit = "cover"
	FitContain ObjectFit = "contain"
	FitFill    ObjectFit = "fill"
)

// Element 是一个绑定到变量名的可绘制单元。Data 只能是 *TextData 或 *ImageData。
type Element struct {
	ID           string  `json:"id"`
	VariableName string  `json:"variableName"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Data         Payload `json:"data"`
}

// Payload 是封闭的二元联合类型，外部包无法实现。
type Payload interface {
	Kind() Kind
	sealed()
}

// TextData 描述文本元素。
type TextData struct {
	Content       string    `json:"content"`
	FontSize      float64   `json:"fontSize"`
	FontFamily    string    `json:"fontFamily"`
	FontWeight    string    `json:"fontWeight"`
	Color         string    `json:"color"`
	TextAlign     TextAlign `json:"textAlign"`
	MaxWidth      float64   `json:"maxWidth,omitempty"`
	LetterSpacing float64   `json:"letterSpacing,omitempty"`
}

func (*TextData) Kind() Kind { return KindText }
func (*TextData) sealed()    {}

// Size 返回字号，非正数时取默认值。
func (d *TextData) Size() float64 {
	if d.FontSize > 0 {
		return d.FontSize
	}
	return DefaultFontSize
}

// Limit 返回折行宽度，未设置时为 400。
func (d *TextData) Limit() float64 {
	if d.MaxWidth > 0 {
		return d.MaxWidth
	}
	return DefaultMaxWidth
}

// Family 返回字体族，空值回落到 sans-serif。
func (d *TextData) Family() string {
	if f := strings.TrimSpace(d.FontFamily); f != "" {
		return f
	}
	return DefaultFontFamily
}

// Align 规范化对齐方式，无法识别时按 left 处理。
func (d *TextData) Align() TextAlign {
	switch TextAlign(strings.ToLower(strings.TrimSpace(string(d.TextAlign)))) {
	case AlignCenter:
		return AlignCenter
	case AlignRight, "end":
		return AlignRight
	default:
		return AlignLeft
	}
}

// ImageData 描述图片元素；Width/Height 为 0 表示未指定。
type ImageData struct {
	Src       string    `json:"src"`
	Width     float64   `json:"width,omitempty"`
	Height    float64   `json:"height,omitempty"`
	ObjectFit ObjectFit `json:"objectFit,omitempty"`
}

func (*ImageData) Kind() Kind { return KindImage }
func (*ImageData) sealed()    {}

// Fit 规范化适配策略，未知值一律视为 fill。
func (d *ImageData) Fit() ObjectFit {
	switch ObjectFit(strings.ToLower(strings.TrimSpace(string(d.ObjectFit)))) {
	case FitCover:
		return FitCover
	case FitContain:
		return FitContain
	default:
		return FitFill
	}
}

type elementJSON struct {
	ID           string          `json:"id"`
	VariableName string          `json:"variableName"`
	X            float64         `json:"x"`
	Y            float64         `json:"y"`
	Data         json.RawMessage `json:"data"`
}

type taggedText struct {
	Type Kind `json:"type"`
	*TextData
}

type taggedImage struct {
	Type Kind `json:"type"`
	*ImageData
}

// UnmarshalJSON 依据 data.type 解析负载，未知或缺失的类型直接报错。
func (e *Element) UnmarshalJSON(b []byte) error {
	var raw elementJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var head struct {
		Type Kind `json:"type"`
	}
	if len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, &head); err != nil {
			return fmt.Errorf("元素 %s 的 data 无法解析: %w", raw.ID, err)
		}
	}

	var payload Payload
	switch Kind(strings.ToLower(string(head.Type))) {
	case KindText:
		data := &TextData{}
		if err := json.Unmarshal(raw.Data, data); err != nil {
			return fmt.Errorf("元素 %s 的文本数据无法解析: %w", raw.ID, err)
		}
		payload = data
	case KindImage:
		data := &ImageData{}
		if err := json.Unmarshal(raw.Data, data); err != nil {
			return fmt.Errorf("元素 %s 的图片数据无法解析: %w", raw.ID, err)
		}
		payload = data
	default:
		return fmt.Errorf("元素 %s 的类型 %q: %w", raw.ID, head.Type, ErrUnknownElementType)
	}

	*e = Element{
		ID:           raw.ID,
		VariableName: raw.VariableName,
		X:            raw.X,
		Y:            raw.Y,
		Data:         payload,
	}
	return nil
}

// MarshalJSON 写回 data.type 标签，保证往返一致。
func (e Element) MarshalJSON() ([]byte, error) {
	var data any
	switch d := e.Data.(type) {
	case *TextData:
		data = taggedText{Type: KindText, TextData: d}
	case *ImageData:
		data = taggedImage{Type: KindImage, ImageData: d}
	default:
		return nil, fmt.Errorf("元素 %s: %w", e.ID, ErrUnknownElementType)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(elementJSON{
		ID:           e.ID,
		VariableName: e.VariableName,
		X:            e.X,
		Y:            e.Y,
		Data:         raw,
	})
}

// DecodeTemplate 解析 JSON 模板，并执行结构校验。
func DecodeTemplate(b []byte) (*Template, error) {
	var t Template
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}
