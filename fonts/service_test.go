package fonts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/image/font/gofont/goregular"
)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestClassify(t *testing.T) {
	cases := map[string]Generic{
		"serif":            Serif,
		"Times New Roman":  Serif,
		"sans-serif":       SansSerif,
		"Open Sans":        SansSerif,
		"monospace":        Monospace,
		"Fira Mono":        Monospace,
		"Dancing Script":   Cursive,
		"cursive":          Cursive,
		"Some Unknown Pro": SansSerif,
	}
	for in, want := range cases {
		if got := Classify(in); got != want {
			t.Fatalf("Classify(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestParseWeight(t *testing.T) {
	cases := []struct {
		in     string
		weight int
		italic bool
	}{
		{"", 400, false},
		{"normal", 400, false},
		{"bold", 700, false},
		{"700", 700, false},
		{"650", 600, false},
		{"1000", 900, false},
		{"semibold", 600, false},
		{"Light Italic", 300, true},
		{"bold italic", 700, true},
	}
	for _, tc := range cases {
		w, it := ParseWeight(tc.in)
		if w != tc.weight || it != tc.italic {
			t.Fatalf("ParseWeight(%q) = %d,%t want %d,%t", tc.in, w, it, tc.weight, tc.italic)
		}
	}
	if got := PrimaryFamily(`"Open Sans", Arial, sans-serif`); got != "Open Sans" {
		t.Fatalf("PrimaryFamily got %q", got)
	}
	if got := (Variant{Weight: 400, Italic: true}).StyleName(); got != "Italic" {
		t.Fatalf("StyleName got %q", got)
	}
}

func TestResolveFallsBackWithoutFetcher(t *testing.T) {
	s, err := NewService(Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	for _, req := range []Request{
		{Family: "Definitely Missing", Weight: "bold"},
		{Family: "serif"},
		{Family: "monospace", Weight: "300"},
		{Family: ""},
	} {
		face := s.Resolve(req)
		if !face.Fallback || face.Family == nil {
			t.Fatalf("%+v: expected generic fallback, got %+v", req, face)
		}
		if w := face.At(20, color.Black).TextWidth("Hello"); w <= 0 {
			t.Fatalf("%+v: fallback face cannot measure text, width=%g", req, w)
		}
	}
	if got := s.Resolve(Request{Family: "Georgia"}).Name; got != string(Serif) {
		t.Fatalf("Georgia should fall back to serif, got %s", got)
	}
}

func TestResolveCoalescesConcurrentFetches(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	fetcher := FetcherFunc(func(ctx context.Context, v Variant) ([]byte, error) {
		calls.Add(1)
		<-release
		return goregular.TTF, nil
	})
	s, err := NewService(Options{Fetcher: fetcher, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	req := Request{Family: "Acme Grotesk", Weight: "normal"}
	var callers sync.WaitGroup
	for i := 0; i < 16; i++ {
		callers.Add(1)
		go func() {
			defer callers.Done()
			if face := s.Resolve(req); !face.Fallback {
				t.Errorf("uncached font must resolve to fallback immediately")
			}
		}()
	}
	callers.Wait()
	close(release)
	s.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected a single coalesced fetch, got %d", got)
	}
	if !s.Cached(req) {
		t.Fatalf("font should be cached after background fetch")
	}
	face := s.Resolve(req)
	if face.Fallback || face.Name != "Acme Grotesk" {
		t.Fatalf("expected cached face, got %+v", face)
	}
	s.Wait()
	if got := calls.Load(); got != 1 {
		t.Fatalf("cache hit must not fetch again, got %d calls", got)
	}
}

func TestFailedFetchIsRetriedLater(t *testing.T) {
	var calls atomic.Int32
	fetcher := FetcherFunc(func(ctx context.Context, v Variant) ([]byte, error) {
		calls.Add(1)
		return nil, ErrFontNotFound
	})
	s, err := NewService(Options{Fetcher: fetcher, Logger: quietLogger(), RetryAfter: time.Minute})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	req := Request{Family: "Nope"}
	s.Resolve(req)
	s.Wait()
	s.Resolve(req)
	s.Wait()
	if got := calls.Load(); got != 1 {
		t.Fatalf("failure should be remembered, got %d calls", got)
	}

	now = now.Add(2 * time.Minute)
	s.Resolve(req)
	s.Wait()
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected retry after interval, got %d calls", got)
	}
}

func TestRegister(t *testing.T) {
	s, err := NewService(Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := s.Register(Variant{Family: "Local", Weight: 700}, goregular.TTF); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if face := s.Resolve(Request{Family: "Local", Weight: "bold"}); face.Fallback {
		t.Fatalf("registered font should resolve directly")
	}
	if err := s.Register(Variant{Family: "Broken", Weight: 400}, []byte("not a font")); err == nil {
		t.Fatalf("expected error for invalid font data")
	}
}

func TestDirFetcher(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Acme Sans-Bold.ttf"), goregular.TTF, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "AcmeSans.ttf"), []byte("regular"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := DirFetcher{Dir: dir}

	data, err := f.Fetch(context.Background(), Variant{Family: "Acme Sans", Weight: 700})
	if err != nil {
		t.Fatalf("bold: %v", err)
	}
	if !bytes.Equal(data, goregular.TTF) {
		t.Fatalf("bold: unexpected data")
	}
	data, err = f.Fetch(context.Background(), Variant{Family: "acme-sans", Weight: 400})
	if err != nil || string(data) != "regular" {
		t.Fatalf("regular: data=%q err=%v", data, err)
	}
	if _, err := f.Fetch(context.Background(), Variant{Family: "Acme Sans", Weight: 300}); !errors.Is(err, ErrFontNotFound) {
		t.Fatalf("expected ErrFontNotFound, got %v", err)
	}
}

func TestGoogleFetcher(t *testing.T) {
	var gotFamily string
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/css2", func(w http.ResponseWriter, r *http.Request) {
		gotFamily = r.URL.Query().Get("family")
		fmt.Fprintf(w, "@font-face {\n  font-family: 'Open Sans';\n  src: url(%s/files/open-sans.ttf) format('truetype');\n}\n", srv.URL)
	})
	mux.HandleFunc("/files/open-sans.ttf", func(w http.ResponseWriter, r *http.Request) {
		w.Write(goregular.TTF)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	f := GoogleFetcher{Client: srv.Client(), BaseURL: srv.URL}
	data, err := f.Fetch(context.Background(), Variant{Family: "Open Sans", Weight: 700})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !bytes.Equal(data, goregular.TTF) {
		t.Fatalf("unexpected font bytes")
	}
	if gotFamily != "Open Sans:wght@700" {
		t.Fatalf("unexpected family query %q", gotFamily)
	}

	chain := Chain{DirFetcher{Dir: t.TempDir()}, f}
	if _, err := chain.Fetch(context.Background(), Variant{Family: "Open Sans", Weight: 400}); err != nil {
		t.Fatalf("chain should fall through to google fetcher: %v", err)
	}
}
