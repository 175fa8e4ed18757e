// Package schedule switches the active template of a group at planned minutes.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ByLCY/stencil/model"
)

// DefaultInterval is used when Poller.Interval is not positive.
const DefaultInterval = 30 * time.Second

// Activator is satisfied by *store.Store.
type Activator interface {
	Activate(group, id string) error
}

// Poller fires each schedule once, on the first tick at or after its minute.
type Poller struct {
	Activator Activator
	Schedules []model.Schedule
	Interval  time.Duration
	Now       func() time.Time
	Logger    *log.Logger

	mu    sync.Mutex
	fired map[string]bool
}

// Tick activates every due schedule that has not fired yet and returns them
// in the order they were applied. Schedules for the same group are applied
// oldest first so the latest one wins.
func (p *Poller) Tick(now time.Time) []model.Schedule {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fired == nil {
		p.fired = map[string]bool{}
	}

	var due []model.Schedule
	for _, s := range p.Schedules {
		if p.fired[scheduleKey(s)] {
			continue
		}
		if !s.At.Truncate(time.Minute).After(now) {
			due = append(due, s)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].At.Before(due[j].At) })

	for _, s := range due {
		p.fired[scheduleKey(s)] = true
		if err := p.Activator.Activate(s.Group, s.TemplateID); err != nil {
			// 失败的计划不会重试，避免每个周期重复刷日志
			p.logger().Printf("schedule: %s: activate %s/%s: %v", scheduleKey(s), s.Group, s.TemplateID, err)
			continue
		}
		p.logger().Printf("schedule: %s: group %s now shows %s", scheduleKey(s), s.Group, s.TemplateID)
	}
	return due
}

// Run ticks immediately and then every Interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.Tick(p.now())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Tick(p.now())
		}
	}
}

func (p *Poller) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Poller) logger() *log.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return log.Default()
}

func scheduleKey(s model.Schedule) string {
	if s.ID != "" {
		return s.ID
	}
	return s.Group + "/" + s.TemplateID + "@" + s.At.UTC().Format(time.RFC3339)
}

// LoadFile reads a list of schedules from a JSON or YAML file.
func LoadFile(path string) ([]model.Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取计划文件失败: %w", err)
	}
	var out []model.Schedule
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &out)
	default:
		err = yaml.Unmarshal(data, &out)
	}
	if err != nil {
		return nil, fmt.Errorf("解析计划文件 %s 失败: %w", path, err)
	}
	for i, s := range out {
		if s.Group == "" || s.TemplateID == "" || s.At.IsZero() {
			return nil, fmt.Errorf("计划 #%d: group、templateId 与 at 均为必填", i)
		}
	}
	return out, nil
}
