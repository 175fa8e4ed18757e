package model

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

var namedColors = map[string]color.RGBA{
	"black":       {0, 0, 0, 255},
	"white":       {255, 255, 255, 255},
	"red":         {255, 0, 0, 255},
	"green":       {0, 128, 0, 255},
	"blue":        {0, 0, 255, 255},
	"yellow":      {255, 255, 0, 255},
	"orange":      {255, 165, 0, 255},
	"gray":        {128, 128, 128, 255},
	"grey":        {128, 128, 128, 255},
	"transparent": {0, 0, 0, 0},
}

// ParseColor 解析 #rgb、#rrggbb、#rrggbbaa、rgb()/rgba() 与常见颜色名。
func ParseColor(value string) (color.RGBA, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if c, ok := namedColors[v]; ok {
		return c, nil
	}
	if strings.HasPrefix(v, "rgb") {
		return parseRGBFunc(v)
	}
	hex := strings.TrimPrefix(v, "#")
	switch len(hex) {
	case 3:
		r, err1 := strconv.ParseUint(strings.Repeat(hex[0:1], 2), 16, 8)
		g, err2 := strconv.ParseUint(strings.Repeat(hex[1:2], 2), 16, 8)
		b, err3 := strconv.ParseUint(strings.Repeat(hex[2:3], 2), 16, 8)
		if err1 != nil || err2 != nil || err3 != nil {
			break
		}
		return color.RGBA{uint8(r), uint8(g), uint8(b), 255}, nil
	case 6, 8:
		n, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			break
		}
		if len(hex) == 6 {
			return color.RGBA{uint8(n >> 16), uint8(n >> 8), uint8(n), 255}, nil
		}
		return premultiply(uint8(n>>24), uint8(n>>16), uint8(n>>8), uint8(n)), nil
	}
	return color.RGBA{}, fmt.Errorf("颜色值 %s 无法解析", value)
}

// ColorOr 解析失败时返回 fallback。
func ColorOr(value string, fallback color.RGBA) color.RGBA {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	c, err := ParseColor(value)
	if err != nil {
		return fallback
	}
	return c
}

func parseRGBFunc(v string) (color.RGBA, error) {
	open := strings.IndexByte(v, '(')
	end := strings.LastIndexByte(v, ')')
	if open == -1 || end < open {
		return color.RGBA{}, fmt.Errorf("颜色值 %s 无法解析", v)
	}
	parts := strings.Split(v[open+1:end], ",")
	if len(parts) != 3 && len(parts) != 4 {
		return color.RGBA{}, fmt.Errorf("颜色值 %s 无法解析", v)
	}
	var ch [4]uint8
	ch[3] = 255
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return color.RGBA{}, fmt.Errorf("颜色值 %s 无法解析: %w", v, err)
		}
		if i == 3 {
			f *= 255
		}
		ch[i] = uint8(min(max(f, 0), 255))
	}
	return premultiply(ch[0], ch[1], ch[2], ch[3]), nil
}

// image/color 的 RGBA 采用预乘 alpha。
func premultiply(r, g, b, a uint8) color.RGBA {
	m := uint16(a)
	return color.RGBA{
		R: uint8(uint16(r) * m / 255),
		G: uint8(uint16(g) * m / 255),
		B: uint8(uint16(b) * m / 255),
		A: a,
	}
}
