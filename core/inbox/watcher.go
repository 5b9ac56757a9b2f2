package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"AzzKaraoke/logger"
)

// ErrLocked is returned when another watcher owns the inbox.
var ErrLocked = errors.New("inbox is already being watched")

const (
	lockFileName   = ".azzkaraoke.lock"
	processedDir   = "processed"
	failedDir      = "failed"
	defaultSettle  = 500 * time.Millisecond
	checkFrequency = 50 * time.Millisecond
)

// WatchConfig configures a Watcher.
type WatchConfig struct {
	Dir         string
	Concurrency int
	// Settle is how long a file must stay unchanged before it is picked up.
	Settle time.Duration
	// OnResult is called after each file; may be nil.
	OnResult func(Result)
}

// Watcher processes media files dropped into a directory. Finished sources
// move to processed/ or failed/ below the inbox.
type Watcher struct {
	cfg  WatchConfig
	proc *Processor
	lock *flock.Flock
}

// NewWatcher returns a watcher over cfg.Dir.
func NewWatcher(proc *Processor, cfg WatchConfig) *Watcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Settle <= 0 {
		cfg.Settle = defaultSettle
	}
	return &Watcher{
		cfg:  cfg,
		proc: proc,
		lock: flock.New(filepath.Join(cfg.Dir, lockFileName)),
	}
}

// Run watches until ctx is cancelled. Files already in the inbox are
// processed first.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}

	ok, err := w.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire inbox lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	defer func() {
		if err := w.lock.Unlock(); err != nil {
			logger.Warn("释放收件箱锁失败", logger.ErrorField(err))
		}
	}()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听器失败: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("监听目录失败: %w", err)
	}

	logger.Info("开始监听收件箱",
		logger.String("dir", w.cfg.Dir),
		logger.Int("concurrency", w.cfg.Concurrency))

	tasks := make(chan string)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		g.Go(func() error {
			for path := range tasks {
				w.handle(gctx, path)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(tasks)
		return w.watch(gctx, watcher, tasks)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watch debounces write events and hands settled files to the workers.
func (w *Watcher) watch(ctx context.Context, watcher *fsnotify.Watcher, tasks chan<- string) error {
	// 文件稳定性检查的延迟队列
	pending := make(map[string]time.Time)
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && IsMedia(e.Name()) {
			pending[filepath.Join(w.cfg.Dir, e.Name())] = time.Time{}
		}
	}

	ticker := time.NewTicker(checkFrequency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 && IsMedia(event.Name) {
				pending[event.Name] = time.Now()
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				delete(pending, event.Name)
			}

		case <-ticker.C:
			now := time.Now()
			for path, last := range pending {
				if now.Sub(last) < w.cfg.Settle {
					continue // 文件可能还在写入
				}
				if st, err := os.Stat(path); err != nil || st.IsDir() {
					delete(pending, path)
					continue
				}
				select {
				case tasks <- path:
					delete(pending, path)
				case <-ctx.Done():
					return ctx.Err()
				default:
					// 所有 worker 都在忙，稍后重试
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("文件监听错误", logger.ErrorField(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	res := w.proc.ProcessFile(ctx, path)

	dest := processedDir
	if res.Err != nil {
		dest = failedDir
		logger.Warn("收件箱文件处理失败", logger.String("file", path), logger.ErrorField(res.Err))
	} else {
		logger.Info("收件箱文件处理完成",
			logger.String("file", path),
			logger.String("title", res.Title),
			logger.String("srt", res.SubtitlePath))
	}

	if err := moveInto(filepath.Join(w.cfg.Dir, dest), path); err != nil {
		logger.Warn("移动源文件失败", logger.String("file", path), logger.ErrorField(err))
	}
	if w.cfg.OnResult != nil {
		w.cfg.OnResult(res)
	}
}

func moveInto(dir, path string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.Rename(path, filepath.Join(dir, filepath.Base(path)))
}
