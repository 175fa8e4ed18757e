package layout

import (
	"strings"
)

// Wrap 先按显式换行切分，再对超宽的段落做贪心折行。
//
// 段落整体宽度不超过 maxWidth 时原样保留；否则按空白分词累积，
// 遇到第一个会溢出的词就结束当前行。单个词本身超过 maxWidth 时独占一行，不在词内拆分。
func Wrap(text string, maxWidth float64, m Measurer) []Line {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var lines []Line
	for _, segment := range strings.Split(text, "\n") {
		lines = append(lines, wrapSegment(segment, maxWidth, m)...)
	}
	return lines
}

func wrapSegment(segment string, maxWidth float64, m Measurer) []Line {
	if w := m.TextWidth(segment); w <= maxWidth {
		return []Line{{Content: segment, Width: w}}
	}

	words := strings.Fields(segment)
	if len(words) == 0 {
		return []Line{{Content: "", Width: 0}}
	}

	var lines []Line
	current := words[0]
	currentWidth := m.TextWidth(current)
	for _, word := range words[1:] {
		candidate := current + " " + word
		candidateWidth := m.TextWidth(candidate)
		if candidateWidth > maxWidth {
			lines = append(lines, Line{Content: current, Width: currentWidth})
			current = word
			currentWidth = m.TextWidth(word)
			continue
		}
		current = candidate
		currentWidth = candidateWidth
	}
	return append(lines, Line{Content: current, Width: currentWidth})
}

// Place 为每一行计算基线：首行基线为 y+fontSize，之后每行递增 fontSize*1.2。
// 水平方向只记录锚点与对齐方式，由绘制端按锚点语义放置。
func Place(lines []Line, x, y, fontSize float64, align Align) Block {
	step := fontSize * LineHeightFactor
	block := Block{
		AnchorX:    x,
		Align:      normalizeAlign(align),
		FontSize:   fontSize,
		LineHeight: step,
		Lines:      make([]PlacedLine, 0, len(lines)),
	}
	baseline := y + fontSize
	for _, ln := range lines {
		block.Lines = append(block.Lines, PlacedLine{Line: ln, Baseline: baseline})
		baseline += step
	}
	return block
}

// Layout 串联 Wrap 与 Place。
func Layout(text string, x, y, fontSize, maxWidth float64, align Align, m Measurer) Block {
	block := Place(Wrap(text, maxWidth, m), x, y, fontSize, align)
	block.MaxWidth = maxWidth
	return block
}

func normalizeAlign(a Align) Align {
	switch Align(strings.ToLower(string(a))) {
	case AlignCenter:
		return AlignCenter
	case AlignRight, "end":
		return AlignRight
	default:
		return AlignLeft
	}
}
