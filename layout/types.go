package layout

// 该文件定义排版结果，供渲染与调试 JSON 共用。坐标与宽度单位均为画布像素。

// Align 是行相对锚点 x 的水平对齐方式：
// left 表示从 x 开始，center 表示以 x 为中心，right 表示在 x 处结束。
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// Line 表示折行后的一行文本及其测量宽度。
type Line struct {
	Content string  `json:"content"`
	Width   float64 `json:"width"`
}

// PlacedLine 是带有基线位置的一行。
type PlacedLine struct {
	Line
	Baseline float64 `json:"baseline"`
}

// Block 是一个文本元素排版后的完整结果。
type Block struct {
	AnchorX    float64      `json:"anchorX"`
	Align      Align        `json:"align"`
	FontSize   float64      `json:"fontSize"`
	MaxWidth   float64      `json:"maxWidth"`
	LineHeight float64      `json:"lineHeight"`
	Lines      []PlacedLine `json:"lines"`
}
