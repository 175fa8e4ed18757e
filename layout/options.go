package layout

// LineHeightFactor 是固定的行高倍数，不可配置。
const LineHeightFactor = 1.2

// Measurer 负责在给定字体下测量文本宽度（像素）。
type Measurer interface {
	TextWidth(s string) float64
}

// MeasureFunc 将普通函数适配为 Measurer。
type MeasureFunc func(s string) float64

func (f MeasureFunc) TextWidth(s string) float64 { return f(s) }
