package fonts

import (
	"context"
	"fmt"
	"image/color"
	"log"
	"sync"
	"time"

	"github.com/tdewolff/canvas"
	"golang.org/x/sync/singleflight"

	"github.com/ByLCY/stencil/layout"
)

const (
	defaultRetryAfter   = 5 * time.Minute
	defaultFetchTimeout = 20 * time.Second
)

// Face 是一次解析的结果：可直接用于创建 canvas.FontFace 的字体族与样式。
type Face struct {
	Family   *canvas.FontFamily
	Style    canvas.FontStyle
	Name     string
	Fallback bool
}

// At 以像素字号创建字体面。
func (f Face) At(sizePx float64, col color.Color) *canvas.FontFace {
	return f.Family.Face(layout.FontPoints(sizePx), col, f.Style, canvas.FontNormal)
}

// Options configures the font service.
type Options struct {
	// Fetcher 为空时只使用内置通用字体。
	Fetcher Fetcher
	Logger  *log.Logger
	// RetryAfter 是下载失败后再次尝试前的等待时间。
	RetryAfter time.Duration
	// FetchTimeout 限制单次后台下载。
	FetchTimeout time.Duration
}

// Service resolves font requests against a private cache.
//
// Resolve never blocks on the network: a miss immediately returns a generic
// fallback and schedules a background fetch. Concurrent misses for the same
// variant share one in-flight fetch.
type Service struct {
	fetcher      Fetcher
	logger       *log.Logger
	retryAfter   time.Duration
	fetchTimeout time.Duration
	now          func() time.Time

	generic map[Generic]*canvas.FontFamily

	mu     sync.RWMutex
	cache  map[string]*canvas.FontFamily
	failed map[string]time.Time

	group singleflight.Group
	wg    sync.WaitGroup
}

// NewService builds the embedded generic families and returns a ready service.
func NewService(opts Options) (*Service, error) {
	s := &Service{
		fetcher:      opts.Fetcher,
		logger:       opts.Logger,
		retryAfter:   opts.RetryAfter,
		fetchTimeout: opts.FetchTimeout,
		now:          time.Now,
		generic:      map[Generic]*canvas.FontFamily{},
		cache:        map[string]*canvas.FontFamily{},
		failed:       map[string]time.Time{},
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	if s.retryAfter <= 0 {
		s.retryAfter = defaultRetryAfter
	}
	if s.fetchTimeout <= 0 {
		s.fetchTimeout = defaultFetchTimeout
	}
	for g := range embedded {
		family, err := loadGeneric(g)
		if err != nil {
			return nil, err
		}
		s.generic[g] = family
	}
	return s, nil
}

// Resolve returns a usable face for the request. It never fails.
func (s *Service) Resolve(req Request) Face {
	v := Normalize(req)
	if g, ok := isGeneric(v.Family); ok || v.Family == "" {
		if !ok {
			g = SansSerif
		}
		return s.fallback(g, v)
	}

	key := v.key()
	s.mu.RLock()
	family, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return Face{Family: family, Style: v.Style(), Name: v.Family}
	}

	s.populate(key, v)
	return s.fallback(Classify(req.Family), v)
}

// Register inserts font data for a variant directly, bypassing the fetcher.
func (s *Service) Register(v Variant, data []byte) error {
	family := canvas.NewFontFamily(v.Family)
	if err := family.LoadFont(data, 0, v.Style()); err != nil {
		return fmt.Errorf("加载字体 %s 失败: %w", v.Family, err)
	}
	s.mu.Lock()
	s.cache[v.key()] = family
	delete(s.failed, v.key())
	s.mu.Unlock()
	return nil
}

// Cached reports whether the variant has been loaded.
func (s *Service) Cached(req Request) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cache[Normalize(req).key()]
	return ok
}

// Wait blocks until all background fetches started so far have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) fallback(g Generic, v Variant) Face {
	return Face{Family: s.generic[g], Style: nearestEmbeddedStyle(v), Name: string(g), Fallback: true}
}

// populate 在后台加载字体；同一变体的并发请求通过 singleflight 合并为一次下载。
func (s *Service) populate(key string, v Variant) {
	if s.fetcher == nil {
		return
	}
	s.mu.RLock()
	failedAt, failed := s.failed[key]
	s.mu.RUnlock()
	if failed && s.now().Sub(failedAt) < s.retryAfter {
		return
	}

	s.wg.Add(1)
	ch := s.group.DoChan(key, func() (any, error) {
		s.mu.RLock()
		_, done := s.cache[key]
		s.mu.RUnlock()
		if done {
			return nil, nil
		}
		return nil, s.fetch(key, v)
	})
	go func() {
		defer s.wg.Done()
		<-ch
	}()
}

func (s *Service) fetch(key string, v Variant) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
	defer cancel()

	data, err := s.fetcher.Fetch(ctx, v)
	if err == nil {
		family := canvas.NewFontFamily(v.Family)
		if loadErr := family.LoadFont(data, 0, v.Style()); loadErr != nil {
			err = fmt.Errorf("解析字体 %s 失败: %w", v.Family, loadErr)
		} else {
			s.mu.Lock()
			s.cache[key] = family
			delete(s.failed, key)
			s.mu.Unlock()
			s.logger.Printf("fonts: cached %s %s", v.Family, v.StyleName())
			return nil
		}
	}

	s.mu.Lock()
	s.failed[key] = s.now()
	s.mu.Unlock()
	s.logger.Printf("fonts: fetch %s %s failed, using fallback: %v", v.Family, v.StyleName(), err)
	return err
}
