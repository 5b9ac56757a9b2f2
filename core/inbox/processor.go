// Package inbox runs the karaoke engine offline: video files in, SRT and
// structured JSON exports out.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"AzzKaraoke/core/controller"
	"AzzKaraoke/core/export"
	"AzzKaraoke/logger"
	"AzzKaraoke/model"
	"AzzKaraoke/storage"
)

// Result is the outcome of one file.
type Result struct {
	Source         string
	Title          string
	Lines          int
	SubtitlePath   string
	StructuredPath string
	Elapsed        time.Duration
	Err            error
}

// Processor turns video files into export files.
type Processor struct {
	transcriber controller.Transcriber
	outputDir   string
	opts        []controller.Option

	mu      sync.Mutex
	claimed map[string]bool
}

// NewProcessor writes exports below outputDir.
func NewProcessor(t controller.Transcriber, outputDir string, opts ...controller.Option) *Processor {
	return &Processor{transcriber: t, outputDir: outputDir, opts: opts, claimed: make(map[string]bool)}
}

// IsMedia reports whether path looks like an audio or video file.
func IsMedia(path string) bool {
	ct := storage.InferContentType(path)
	return strings.HasPrefix(ct, "video/") || strings.HasPrefix(ct, "audio/")
}

// ProcessFile runs one file through a fresh controller and writes both exports.
func (p *Processor) ProcessFile(ctx context.Context, path string) Result {
	start := time.Now()
	res := Result{Source: path}

	ctl := controller.New(p.transcriber, p.opts...)
	ref := controller.FileRef{
		Name:     filepath.Base(path),
		MIMEType: storage.InferContentType(path),
		Open:     func() (io.ReadCloser, error) { return os.Open(path) },
	}
	if _, err := ctl.SelectFile(ctx, ref); err != nil {
		res.Err = err
		return res
	}
	ctl.Wait()

	st := ctl.Snapshot()
	if st.Status != model.StatusReady {
		cause := ctl.Cause()
		if cause == nil {
			cause = errors.New(st.Error)
		}
		res.Err = fmt.Errorf("%s: %w", st.Error, cause)
		res.Elapsed = time.Since(start)
		return res
	}

	res.Title = st.Metadata.Title
	res.Lines = len(st.Metadata.Subtitles)
	res.SubtitlePath, res.StructuredPath, res.Err = p.WriteExports(st.Metadata, path)
	res.Elapsed = time.Since(start)
	return res
}

// WriteExports writes the SRT and JSON files for meta. When another input
// already produced files with the same title, the names get the source's
// base name appended.
func (p *Processor) WriteExports(meta *model.SongMetadata, source string) (string, string, error) {
	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create output dir: %w", err)
	}

	srtName, jsonName, err := p.reserve(meta, source)
	if err != nil {
		return "", "", err
	}

	srtPath := filepath.Join(p.outputDir, srtName)
	if err := os.WriteFile(srtPath, []byte(export.ToSubtitleFormat(meta)), 0o644); err != nil {
		return "", "", fmt.Errorf("write subtitles: %w", err)
	}

	data, err := export.ToStructuredFormat(meta)
	if err != nil {
		return "", "", err
	}
	jsonPath := filepath.Join(p.outputDir, jsonName)
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return "", "", fmt.Errorf("write structured data: %w", err)
	}
	return srtPath, jsonPath, nil
}

const maxNameAttempts = 100

// reserve picks export names that no other input of this processor and no
// existing file in the output directory uses.
func (p *Processor) reserve(meta *model.SongMetadata, source string) (string, string, error) {
	srt, doc := export.SubtitleFileName(meta), export.StructuredFileName(meta)
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))

	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < maxNameAttempts; i++ {
		tag := ""
		switch {
		case i == 1 && stem != "":
			tag = stem
		case i > 1:
			tag = fmt.Sprintf("%s-%d", stem, i)
		}
		a, b := withTag(srt, tag), withTag(doc, tag)
		if p.taken(a) || p.taken(b) {
			continue
		}
		p.claimed[a], p.claimed[b] = true, true
		return a, b, nil
	}
	return "", "", fmt.Errorf("no free export name for %q", srt)
}

func (p *Processor) taken(name string) bool {
	if p.claimed[name] {
		return true
	}
	_, err := os.Stat(filepath.Join(p.outputDir, name))
	return err == nil
}

// withTag inserts tag before the extension: "A_lyrics.srt" -> "A_lyrics_a.srt".
func withTag(name, tag string) string {
	if tag == "" {
		return name
	}
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "_" + tag + ext
}

// ProcessAll processes paths with at most concurrency files in flight. A
// failing file does not stop the others; results keep the input order.
func (p *Processor) ProcessAll(ctx context.Context, paths []string, concurrency int) []Result {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]Result, len(paths))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				mu.Lock()
				results[i] = Result{Source: path, Err: err}
				mu.Unlock()
				return nil
			}
			res := p.ProcessFile(gctx, path)
			if res.Err != nil {
				logger.Warn("处理文件失败", logger.String("file", path), logger.ErrorField(res.Err))
			} else {
				logger.Info("处理文件完成",
					logger.String("file", path),
					logger.String("title", res.Title),
					logger.Int("lines", res.Lines),
					logger.Duration("elapsed", res.Elapsed))
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
