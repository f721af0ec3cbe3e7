package loader

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"marlin/internal/logger"
	"marlin/internal/optimize"
)

// GridFile 是独立网格文件的结构: 策略名到参数网格的映射。
type GridFile struct {
	Grids map[string]optimize.Grid `mapstructure:"grids"`
}

// GridSnapshot 对外暴露的只读快照。
type GridSnapshot struct {
	Version  int64
	LoadedAt time.Time
	Grids    map[string]optimize.Grid
}

// ChangeListener 在网格文件变更时被调用。
type ChangeListener func(GridSnapshot)

// GridLoader 从 YAML 文件加载寻优网格, 并监听热更新。
// serve 模式下调网格不需要重启进程。
type GridLoader struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  GridSnapshot
	listeners []ChangeListener
}

// NewGridLoader 读取网格文件并开始监听 FS 事件。
func NewGridLoader(path string) (*GridLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("grid loader requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read grid config failed: %w", err)
	}
	loader := &GridLoader{path: path, v: v}
	if err := loader.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := loader.reload(); err != nil {
			logger.Errorf("grid reload failed (%s): %v", evt.Name, err)
			return
		}
		loader.notify()
	})
	v.WatchConfig()
	return loader, nil
}

// Snapshot 返回当前快照。
func (l *GridLoader) Snapshot() GridSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneSnapshot(l.snapshot)
}

// GridFor 返回指定策略的网格。未配置时返回 false。
func (l *GridLoader) GridFor(strategy string) (optimize.Grid, bool) {
	snap := l.Snapshot()
	g, ok := snap.Grids[strings.ToLower(strings.TrimSpace(strategy))]
	return g, ok
}

// Subscribe 注册监听器, 并立即收到一次完整快照。
func (l *GridLoader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	snap := cloneSnapshot(l.snapshot)
	l.mu.Unlock()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("grid listener panic: %v", r)
			}
		}()
		fn(snap)
	}()
}

func (l *GridLoader) notify() {
	l.mu.RLock()
	snap := cloneSnapshot(l.snapshot)
	listeners := append([]ChangeListener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb ChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("grid listener panic: %v", r)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func (l *GridLoader) reload() error {
	if err := l.v.ReadInConfig(); err != nil {
		return fmt.Errorf("read grid config failed: %w", err)
	}
	var file GridFile
	if err := l.v.Unmarshal(&file, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return fmt.Errorf("parse grid config failed: %w", err)
	}
	grids := make(map[string]optimize.Grid, len(file.Grids))
	for name, grid := range file.Grids {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || len(grid) == 0 {
			continue
		}
		if _, err := grid.Expand(); err != nil {
			return fmt.Errorf("grid %q invalid: %w", name, err)
		}
		grids[name] = grid
	}
	l.mu.Lock()
	l.snapshot = GridSnapshot{
		Version:  l.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Grids:    grids,
	}
	l.mu.Unlock()
	logger.Infof("[config] 网格文件已加载: %s (%d 个策略)", l.path, len(grids))
	return nil
}

func cloneSnapshot(snap GridSnapshot) GridSnapshot {
	out := GridSnapshot{Version: snap.Version, LoadedAt: snap.LoadedAt}
	if len(snap.Grids) == 0 {
		return out
	}
	out.Grids = make(map[string]optimize.Grid, len(snap.Grids))
	for name, grid := range snap.Grids {
		g := make(optimize.Grid, len(grid))
		for k, v := range grid {
			g[k] = v
		}
		out.Grids[name] = g
	}
	return out
}
