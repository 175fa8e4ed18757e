package canvasrenderer

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ByLCY/stencil/model"
)

var (
	red   = color.RGBA{255, 0, 0, 255}
	blue  = color.RGBA{0, 0, 255, 255}
	green = color.RGBA{0, 160, 0, 255}
	white = color.RGBA{255, 255, 255, 255}
)

func solidPNG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func newTestRenderer(t *testing.T, images map[string]Resource) *Renderer {
	t.Helper()
	r, err := NewRendererWithOptions(Options{Images: images, Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("NewRendererWithOptions: %v", err)
	}
	return r
}

func render(t *testing.T, r *Renderer, tmpl *model.Template, params map[string]string) image.Image {
	t.Helper()
	out, err := r.Render(context.Background(), tmpl, params)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out.ContentType != "image/png" {
		t.Fatalf("unexpected content type %s", out.ContentType)
	}
	img, err := png.Decode(bytes.NewReader(out.Bytes))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	return img
}

func at(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

func near(a, b color.RGBA) bool {
	d := func(x, y uint8) int {
		if x > y {
			return int(x - y)
		}
		return int(y - x)
	}
	const tol = 8
	return d(a.R, b.R) <= tol && d(a.G, b.G) <= tol && d(a.B, b.B) <= tol && d(a.A, b.A) <= tol
}

func expectColor(t *testing.T, img image.Image, x, y int, want color.RGBA) {
	t.Helper()
	if got := at(img, x, y); !near(got, want) {
		t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
	}
}

func imageEl(id string, x, y, w, h float64, src string, fit model.ObjectFit) model.Element {
	return model.Element{ID: id, VariableName: id, X: x, Y: y, Data: &model.ImageData{Src: src, Width: w, Height: h, ObjectFit: fit}}
}

func TestRenderRejectsInvalidCanvas(t *testing.T) {
	r := newTestRenderer(t, nil)
	for _, tmpl := range []*model.Template{{Width: 0, Height: 10}, {Width: 10, Height: -5}, nil} {
		if _, err := r.Render(context.Background(), tmpl, nil); !errors.Is(err, model.ErrInvalidCanvas) {
			t.Fatalf("expected ErrInvalidCanvas, got %v", err)
		}
	}
}

func TestRenderCanceledContextProducesNothing(t *testing.T) {
	r := newTestRenderer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := r.Render(ctx, &model.Template{Width: 10, Height: 10}, nil)
	if !errors.Is(err, context.Canceled) || out != nil {
		t.Fatalf("expected context.Canceled without output, got %v %v", out, err)
	}
}

func TestRenderBlankCanvasIsWhite(t *testing.T) {
	r := newTestRenderer(t, nil)
	img := render(t, r, &model.Template{Width: 400, Height: 200}, nil)
	if b := img.Bounds(); b.Dx() != 400 || b.Dy() != 200 {
		t.Fatalf("unexpected output size %v", b)
	}
	expectColor(t, img, 0, 0, white)
	expectColor(t, img, 399, 199, white)
}

func TestBackgroundIsStretched(t *testing.T) {
	r := newTestRenderer(t, map[string]Resource{"bg": {Bytes: solidPNG(t, 10, 10, blue)}})
	img := render(t, r, &model.Template{Width: 100, Height: 50, BackgroundImage: "built-in:bg"}, nil)
	for _, p := range [][2]int{{1, 1}, {50, 25}, {98, 48}} {
		expectColor(t, img, p[0], p[1], blue)
	}
}

func TestMissingBackgroundKeepsWhite(t *testing.T) {
	r := newTestRenderer(t, nil)
	img := render(t, r, &model.Template{Width: 20, Height: 20, BackgroundImage: "built-in:missing"}, nil)
	expectColor(t, img, 10, 10, white)
}

func TestLaterElementsOverlayEarlierOnes(t *testing.T) {
	images := map[string]Resource{
		"red":  {Bytes: solidPNG(t, 8, 8, red)},
		"blue": {Bytes: solidPNG(t, 8, 8, blue)},
	}
	r := newTestRenderer(t, images)
	a := imageEl("a", 10, 10, 50, 50, "built-in:red", model.FitFill)
	b := imageEl("b", 30, 30, 50, 50, "built-in:blue", model.FitFill)

	img := render(t, r, &model.Template{Width: 100, Height: 100, Elements: []model.Element{a, b}}, nil)
	expectColor(t, img, 15, 15, red)
	expectColor(t, img, 45, 45, blue)
	expectColor(t, img, 75, 75, blue)

	img = render(t, r, &model.Template{Width: 100, Height: 100, Elements: []model.Element{b, a}}, nil)
	expectColor(t, img, 45, 45, red)
	expectColor(t, img, 75, 75, blue)
}

func TestCoverFillsAndClipsTarget(t *testing.T) {
	images := map[string]Resource{
		"square": {Bytes: solidPNG(t, 200, 200, red)},
		"tall":   {Bytes: solidPNG(t, 20, 200, red)},
	}
	r := newTestRenderer(t, images)
	for _, src := range []string{"built-in:square", "built-in:tall"} {
		el := imageEl("cover", 20, 20, 100, 50, src, model.FitCover)
		img := render(t, r, &model.Template{Width: 200, Height: 120, Elements: []model.Element{el}}, nil)
		for y := 22; y <= 68; y += 4 {
			for x := 22; x <= 118; x += 4 {
				expectColor(t, img, x, y, red)
			}
		}
		// 目标矩形之外不能有溢出
		expectColor(t, img, 70, 16, white)
		expectColor(t, img, 70, 74, white)
		expectColor(t, img, 16, 40, white)
		expectColor(t, img, 124, 40, white)
	}
}

func TestContainLetterboxShowsBackground(t *testing.T) {
	r := newTestRenderer(t, map[string]Resource{"wide": {Bytes: solidPNG(t, 200, 100, green)}})
	el := imageEl("contain", 0, 0, 100, 100, "built-in:wide", model.FitContain)
	img := render(t, r, &model.Template{Width: 100, Height: 100, Elements: []model.Element{el}}, nil)
	expectColor(t, img, 50, 10, white)
	expectColor(t, img, 50, 50, green)
	expectColor(t, img, 50, 90, white)
}

func TestImageDefaultsToNaturalSize(t *testing.T) {
	r := newTestRenderer(t, map[string]Resource{"small": {Bytes: solidPNG(t, 30, 20, blue)}})
	el := imageEl("natural", 10, 10, 0, 0, "built-in:small", "")
	img := render(t, r, &model.Template{Width: 100, Height: 100, Elements: []model.Element{el}}, nil)
	expectColor(t, img, 20, 20, blue)
	expectColor(t, img, 45, 20, white)
	expectColor(t, img, 20, 35, white)
}

func TestMissingImageSourceDrawsPlaceholder(t *testing.T) {
	r := newTestRenderer(t, nil)
	el := imageEl("logo", 10, 10, 0, 0, "", model.FitCover)
	img := render(t, r, &model.Template{Width: 200, Height: 150, Elements: []model.Element{el}}, nil)
	fill := missingImageBox.fill.color()
	expectColor(t, img, 15, 15, fill)
	expectColor(t, img, 155, 105, fill)
	expectColor(t, img, 165, 15, white)
	expectColor(t, img, 15, 115, white)
}

func TestPlaceholderBorderStaysInsideItsBox(t *testing.T) {
	r := newTestRenderer(t, nil)
	el := imageEl("logo", 20, 20, 0, 0, "", model.FitCover)
	img := render(t, r, &model.Template{Width: 200, Height: 150, Elements: []model.Element{el}}, nil)
	stroke := missingImageBox.stroke.color()
	expectColor(t, img, 20, 50, stroke)
	expectColor(t, img, 169, 50, stroke)
	expectColor(t, img, 50, 20, stroke)
	expectColor(t, img, 50, 119, stroke)
	for _, p := range [][2]int{{19, 50}, {170, 50}, {50, 19}, {50, 120}} {
		expectColor(t, img, p[0], p[1], white)
	}
}

func TestFailedImageDrawsErrorBox(t *testing.T) {
	r := newTestRenderer(t, nil)
	el := imageEl("logo", 10, 10, 80, 40, "built-in:nope", model.FitFill)
	img := render(t, r, &model.Template{Width: 200, Height: 100, Elements: []model.Element{el}}, nil)
	expectColor(t, img, 15, 15, failedImageBox.fill.color())
	expectColor(t, img, 95, 15, white)
}

func TestFailedImageDoesNotAbortRemainingElements(t *testing.T) {
	r := newTestRenderer(t, map[string]Resource{"blue": {Bytes: solidPNG(t, 4, 4, blue)}})
	elements := []model.Element{
		imageEl("broken", 0, 0, 20, 20, "data:image/png;base64,bm90IGFuIGltYWdl", model.FitFill),
		imageEl("ok", 50, 50, 20, 20, "built-in:blue", model.FitFill),
	}
	img := render(t, r, &model.Template{Width: 100, Height: 100, Elements: elements}, nil)
	expectColor(t, img, 2, 18, failedImageBox.fill.color())
	expectColor(t, img, 60, 60, blue)
}

func TestRuntimeParamOverridesImageSource(t *testing.T) {
	r := newTestRenderer(t, map[string]Resource{
		"red":  {Bytes: solidPNG(t, 4, 4, red)},
		"blue": {Bytes: solidPNG(t, 4, 4, blue)},
	})
	el := imageEl("logo", 0, 0, 20, 20, "built-in:red", model.FitFill)
	img := render(t, r, &model.Template{Width: 20, Height: 20, Elements: []model.Element{el}}, map[string]string{"logo": "built-in:blue"})
	expectColor(t, img, 10, 10, blue)
}

func TestUnreadableImageResourceIsLogged(t *testing.T) {
	var logs bytes.Buffer
	missing := filepath.Join(t.TempDir(), "gone.png")
	r, err := NewRendererWithOptions(Options{
		Images: map[string]Resource{"gone": {Path: missing}},
		Logger: log.New(&logs, "", 0),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(logs.String(), missing) {
		t.Fatalf("expected the failed read of %s to be logged, got %q", missing, logs.String())
	}
	el := imageEl("gone", 10, 10, 80, 40, "built-in:gone", model.FitFill)
	img := render(t, r, &model.Template{Width: 100, Height: 60, Elements: []model.Element{el}}, nil)
	expectColor(t, img, 15, 15, failedImageBox.fill.color())
}

func TestDataURIAndFileSources(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "green.png"), solidPNG(t, 4, 4, green), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := NewRendererWithOptions(Options{BaseDir: dir, Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatal(err)
	}
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(solidPNG(t, 4, 4, red))
	elements := []model.Element{
		imageEl("uri", 0, 0, 20, 20, uri, model.FitFill),
		imageEl("file", 30, 0, 20, 20, "green.png", model.FitFill),
	}
	img := render(t, r, &model.Template{Width: 50, Height: 20, Elements: elements}, nil)
	expectColor(t, img, 10, 10, red)
	expectColor(t, img, 40, 10, green)
}

func darkPixels(img image.Image, rect image.Rectangle) int {
	n := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if at(img, x, y).R < 128 {
				n++
			}
		}
	}
	return n
}

func TestTextIsDrawnFromAnchor(t *testing.T) {
	r := newTestRenderer(t, nil)
	el := model.Element{ID: "t", VariableName: "title", X: 10, Y: 10, Data: &model.TextData{
		Content: "Hello", FontSize: 20, FontFamily: "sans-serif", Color: "#000000", TextAlign: model.AlignLeft,
	}}
	tmpl := &model.Template{Width: 400, Height: 200, Elements: []model.Element{el}}

	blocks, err := r.LayoutText(tmpl, nil)
	if err != nil {
		t.Fatalf("LayoutText: %v", err)
	}
	block := blocks["t"]
	if len(block.Lines) != 1 || block.AnchorX != 10 || block.Lines[0].Baseline != 30 {
		t.Fatalf("unexpected layout %+v", block)
	}

	img := render(t, r, tmpl, nil)
	if n := darkPixels(img, image.Rect(10, 10, 90, 31)); n == 0 {
		t.Fatalf("expected glyph pixels between the anchor and the baseline")
	}
	if n := darkPixels(img, image.Rect(0, 0, 8, 200)); n != 0 {
		t.Fatalf("left-aligned text must not start before x=10, found %d dark pixels", n)
	}
	if n := darkPixels(img, image.Rect(0, 36, 400, 200)); n != 0 {
		t.Fatalf("found %d dark pixels below the first line", n)
	}
}

func TestRightAlignedTextEndsAtAnchor(t *testing.T) {
	r := newTestRenderer(t, nil)
	el := model.Element{ID: "t", X: 200, Y: 10, Data: &model.TextData{
		Content: "Hello", FontSize: 20, TextAlign: model.AlignRight,
	}}
	img := render(t, r, &model.Template{Width: 400, Height: 60, Elements: []model.Element{el}}, nil)
	if n := darkPixels(img, image.Rect(202, 0, 400, 60)); n != 0 {
		t.Fatalf("right-aligned text must end at x=200, found %d dark pixels after it", n)
	}
	if n := darkPixels(img, image.Rect(120, 10, 200, 31)); n == 0 {
		t.Fatalf("expected glyph pixels left of the anchor")
	}
}

func TestTextPlaceholderAndInterpolation(t *testing.T) {
	r := newTestRenderer(t, nil)
	tmpl := &model.Template{Width: 300, Height: 100, Elements: []model.Element{
		{ID: "empty", VariableName: "title", Data: &model.TextData{}},
		{ID: "greet", VariableName: "greeting", Data: &model.TextData{Content: "Hi ${name}"}},
	}}
	blocks, err := r.LayoutText(tmpl, map[string]string{"name": "Ada"})
	if err != nil {
		t.Fatalf("LayoutText: %v", err)
	}
	if got := blocks["empty"].Lines[0].Content; got != "{title}" {
		t.Fatalf("expected placeholder {title}, got %q", got)
	}
	if got := blocks["greet"].Lines[0].Content; got != "Hi Ada" {
		t.Fatalf("expected interpolated text, got %q", got)
	}
}

func TestBoundParamIsNotInterpolated(t *testing.T) {
	r := newTestRenderer(t, nil)
	tmpl := &model.Template{Width: 300, Height: 100, Elements: []model.Element{
		{ID: "t", VariableName: "title", Data: &model.TextData{Content: "Hi ${name}"}},
	}}
	blocks, err := r.LayoutText(tmpl, map[string]string{"title": "${name}", "name": "Ada"})
	if err != nil {
		t.Fatalf("LayoutText: %v", err)
	}
	if got := blocks["t"].Lines[0].Content; got != "${name}" {
		t.Fatalf("runtime value should be drawn as given, got %q", got)
	}
}

func redPixels(img image.Image, rect image.Rectangle) int {
	n := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if c := at(img, x, y); c.R > 180 && c.G < 90 && c.B < 90 {
				n++
			}
		}
	}
	return n
}

func TestBrokenTextFallsBackToErrorLine(t *testing.T) {
	r := newTestRenderer(t, map[string]Resource{"blue": {Bytes: solidPNG(t, 4, 4, blue)}})
	tmpl := &model.Template{Width: 200, Height: 100, Elements: []model.Element{
		{ID: "bad", VariableName: "bad", X: 10, Y: 10, Data: &model.TextData{Content: "x", FontSize: math.Inf(1)}},
		imageEl("after", 60, 60, 20, 20, "built-in:blue", model.FitFill),
	}}

	img := render(t, r, tmpl, nil)
	// 错误提示以 14px 红字画在锚点下方，基线 y=24
	if n := redPixels(img, image.Rect(10, 12, 200, 28)); n == 0 {
		t.Fatalf("expected red error text around baseline y=24")
	}
	if n := redPixels(img, image.Rect(0, 30, 200, 100)); n != 0 {
		t.Fatalf("error text should stay on one line, found %d red pixels below it", n)
	}
	expectColor(t, img, 70, 70, blue)

	_, err := r.LayoutText(tmpl, nil)
	if !errors.Is(err, ErrInvalidTextMetrics) {
		t.Fatalf("expected ErrInvalidTextMetrics, got %v", err)
	}
	if !strings.Contains(err.Error(), "bad") {
		t.Fatalf("error should name the element, got %v", err)
	}
}

func TestLongWordIsNotSplit(t *testing.T) {
	r := newTestRenderer(t, nil)
	word := strings.Repeat("a", 20)
	tmpl := &model.Template{Width: 300, Height: 100, Elements: []model.Element{
		{ID: "w", Data: &model.TextData{Content: word, FontSize: 20, MaxWidth: 50}},
	}}
	blocks, err := r.LayoutText(tmpl, nil)
	if err != nil {
		t.Fatalf("LayoutText: %v", err)
	}
	lines := blocks["w"].Lines
	if len(lines) != 1 || lines[0].Content != word || lines[0].Width <= 50 {
		t.Fatalf("expected a single overflowing line, got %+v", lines)
	}
}

func TestLetterSpacingWidensLines(t *testing.T) {
	r := newTestRenderer(t, nil)
	tmpl := &model.Template{Width: 300, Height: 100, Elements: []model.Element{
		{ID: "plain", Data: &model.TextData{Content: "spacing", FontSize: 20}},
		{ID: "spaced", Data: &model.TextData{Content: "spacing", FontSize: 20, LetterSpacing: 4}},
	}}
	blocks, err := r.LayoutText(tmpl, nil)
	if err != nil {
		t.Fatalf("LayoutText: %v", err)
	}
	plain, spaced := blocks["plain"].Lines[0].Width, blocks["spaced"].Lines[0].Width
	if diff := spaced - plain; diff < 23.9 || diff > 24.1 {
		t.Fatalf("expected 6 gaps of 4px, got plain=%g spaced=%g", plain, spaced)
	}
	render(t, r, tmpl, nil)
}

func TestSpacedTextKeepsAlignmentAnchor(t *testing.T) {
	r := newTestRenderer(t, nil)
	right := model.Element{ID: "r", X: 200, Y: 10, Data: &model.TextData{
		Content: "WAVE Today", FontSize: 20, TextAlign: model.AlignRight, LetterSpacing: 4,
	}}
	left := model.Element{ID: "l", X: 40, Y: 50, Data: &model.TextData{
		Content: "WAVE Today", FontSize: 20, LetterSpacing: 4,
	}}
	img := render(t, r, &model.Template{Width: 400, Height: 90, Elements: []model.Element{right, left}}, nil)
	if n := darkPixels(img, image.Rect(202, 0, 400, 40)); n != 0 {
		t.Fatalf("right-aligned spaced text must end at x=200, found %d dark pixels after it", n)
	}
	if n := darkPixels(img, image.Rect(100, 10, 200, 31)); n == 0 {
		t.Fatalf("expected glyph pixels left of the anchor")
	}
	if n := darkPixels(img, image.Rect(0, 40, 38, 90)); n != 0 {
		t.Fatalf("left-aligned spaced text must start at x=40, found %d dark pixels before it", n)
	}
}

func TestConcurrentRendersAreIndependent(t *testing.T) {
	colors := []color.RGBA{red, blue, green, white}
	images := map[string]Resource{}
	for i, c := range colors {
		images[string(rune('a'+i))] = Resource{Bytes: solidPNG(t, 4, 4, c)}
	}
	r := newTestRenderer(t, images)

	templates := make([]*model.Template, len(colors))
	want := make([][]byte, len(colors))
	for i := range colors {
		templates[i] = &model.Template{Width: 64, Height: 32, Elements: []model.Element{
			imageEl("bg", 0, 0, 64, 32, "built-in:"+string(rune('a'+i)), model.FitFill),
			{ID: "label", VariableName: "label", X: 4, Y: 4, Data: &model.TextData{FontSize: 12}},
		}}
		out, err := r.Render(context.Background(), templates[i], map[string]string{"label": string(rune('A' + i))})
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		want[i] = out.Bytes
	}

	var wg sync.WaitGroup
	for n := 0; n < 4; n++ {
		for i := range templates {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				out, err := r.Render(context.Background(), templates[i], map[string]string{"label": string(rune('A' + i))})
				if err != nil {
					t.Errorf("Render: %v", err)
					return
				}
				if !bytes.Equal(out.Bytes, want[i]) {
					t.Errorf("template %d: concurrent render differs from sequential render", i)
				}
			}(i)
		}
	}
	wg.Wait()
}
