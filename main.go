package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ByLCY/stencil/fonts"
	"github.com/ByLCY/stencil/layout"
	"github.com/ByLCY/stencil/model"
	"github.com/ByLCY/stencil/renderer"
	canvasrenderer "github.com/ByLCY/stencil/renderer/canvas"
	"github.com/ByLCY/stencil/schedule"
	"github.com/ByLCY/stencil/server"
	"github.com/ByLCY/stencil/store"
)

type config struct {
	template  string
	params    string
	out       string
	debug     string
	serve     string
	dir       string
	schedules string
	fontDir   string
	fontAPI   bool
	timeout   time.Duration
}

func main() {
	var cfg config
	flag.StringVar(&cfg.template, "template", "", "模板文件路径（.json/.yaml/.stencil）")
	flag.StringVar(&cfg.params, "params", "", "运行时变量 JSON，例如 {\"title\":\"Hello\"}")
	flag.StringVar(&cfg.out, "out", "output/render.png", "PNG 输出路径")
	flag.StringVar(&cfg.debug, "debug", "", "文本排版调试 JSON 输出路径")
	flag.StringVar(&cfg.serve, "serve", "", "以 HTTP 服务方式运行的监听地址，例如 :8080")
	flag.StringVar(&cfg.dir, "dir", "templates", "服务模式下的模板目录")
	flag.StringVar(&cfg.schedules, "schedules", "", "活动模板切换计划文件（yaml/json）")
	flag.StringVar(&cfg.fontDir, "font-dir", "", "本地字体目录")
	flag.BoolVar(&cfg.fontAPI, "font-api", false, "从 Google Fonts 下载缺失的字体")
	flag.DurationVar(&cfg.timeout, "timeout", server.DefaultTimeout, "单次渲染超时时间")
	flag.Parse()

	logger := log.New(os.Stderr, "stencil: ", log.LstdFlags)
	if err := run(cfg, logger); err != nil {
		logger.Fatalf("%v", err)
	}
}

// run 根据参数选择单次渲染或服务模式。
func run(cfg config, logger *log.Logger) error {
	fontSvc, err := newFontService(cfg, logger)
	if err != nil {
		return fmt.Errorf("初始化字体失败: %w", err)
	}

	if cfg.serve != "" {
		return serve(cfg, fontSvc, logger)
	}
	if cfg.template == "" {
		return errors.New("需要 -template 或 -serve")
	}

	r, err := canvasrenderer.NewRendererWithOptions(canvasrenderer.Options{
		BaseDir: filepath.Dir(cfg.template),
		Fonts:   fontSvc,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	tmpl, err := loadTemplate(cfg.template)
	if err != nil {
		return err
	}
	params := map[string]string{}
	if cfg.params != "" {
		if err := json.Unmarshal([]byte(cfg.params), &params); err != nil {
			return fmt.Errorf("解析 params JSON 失败: %w", err)
		}
	}

	// 先排版一次触发字体下载，等待完成后再正式渲染
	if _, err := r.LayoutText(tmpl, params); err != nil {
		return fmt.Errorf("文本排版失败: %w", err)
	}
	fontSvc.Wait()
	if cfg.debug != "" {
		blocks, err := r.LayoutText(tmpl, params)
		if err != nil {
			return fmt.Errorf("文本排版失败: %w", err)
		}
		if err := writeDebug(blocks, cfg.debug); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()
	if err := renderToFile(ctx, r, tmpl, params, cfg.out); err != nil {
		return err
	}
	fmt.Printf("已生成图片：%s\n", cfg.out)
	return nil
}

func newFontService(cfg config, logger *log.Logger) (*fonts.Service, error) {
	var chain fonts.Chain
	if cfg.fontDir != "" {
		chain = append(chain, fonts.DirFetcher{Dir: cfg.fontDir})
	}
	if cfg.fontAPI {
		chain = append(chain, fonts.GoogleFetcher{Client: &http.Client{Timeout: 15 * time.Second}})
	}
	opts := fonts.Options{Logger: logger}
	if len(chain) > 0 {
		opts.Fetcher = chain
	}
	return fonts.NewService(opts)
}

func loadTemplate(path string) (*model.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取模板文件 %s: %w", path, err)
	}
	tmpl, err := store.DecodeFile(filepath.Base(path), data)
	if err != nil {
		return nil, fmt.Errorf("解析模板失败: %w", err)
	}
	return tmpl, nil
}

func renderToFile(ctx context.Context, r renderer.Renderer, tmpl *model.Template, params map[string]string, outputPath string) error {
	out, err := r.Render(ctx, tmpl, params)
	if err != nil {
		return fmt.Errorf("渲染失败: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	if err := os.WriteFile(outputPath, out.Bytes, 0o644); err != nil {
		return fmt.Errorf("写入图片失败: %w", err)
	}
	return nil
}

func writeDebug(blocks map[string]layout.Block, debugPath string) error {
	if err := os.MkdirAll(filepath.Dir(debugPath), 0o755); err != nil {
		return fmt.Errorf("创建调试目录失败: %w", err)
	}
	if err := layout.WriteDebugJSON(blocks, debugPath); err != nil {
		return fmt.Errorf("输出调试 JSON 失败: %w", err)
	}
	return nil
}

// serve 启动 HTTP 服务，并在后台监听模板目录与切换计划。
func serve(cfg config, fontSvc *fonts.Service, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lib, err := store.LoadFS(os.DirFS(cfg.dir))
	if err != nil {
		return fmt.Errorf("加载模板目录 %s 失败: %w", cfg.dir, err)
	}
	go func() {
		if err := lib.Watch(ctx, cfg.dir, logger); err != nil {
			logger.Printf("模板目录监听停止: %v", err)
		}
	}()

	if cfg.schedules != "" {
		plans, err := schedule.LoadFile(cfg.schedules)
		if err != nil {
			return err
		}
		p := &schedule.Poller{Activator: lib, Schedules: plans, Logger: logger}
		go func() { _ = p.Run(ctx) }()
	}

	r, err := canvasrenderer.NewRendererWithOptions(canvasrenderer.Options{
		BaseDir: cfg.dir,
		Fonts:   fontSvc,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	handler, err := server.New(server.Options{Store: lib, Renderer: r, Timeout: cfg.timeout, Logger: logger})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.serve,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Printf("listening on %s, %d templates from %s", cfg.serve, len(lib.Templates()), cfg.dir)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
