// Package gemini calls Google Gemini to turn a music video into timed lyrics.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"google.golang.org/genai"

	"AzzKaraoke/logger"
	"AzzKaraoke/model"
)

const (
	DefaultModel       = "gemini-3-flash-preview"
	DefaultInlineLimit = 20 << 20
	defaultPollEvery   = 2 * time.Second
	defaultMIMEType    = "video/mp4"
)

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("gemini: empty response")

// Config contains configuration for the Gemini client.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string // 测试或代理时覆盖 API 地址
	Prompt  string
	// Videos larger than InlineLimit bytes go through the Files API.
	InlineLimit int64
	PollEvery   time.Duration
	HTTPClient  *http.Client
}

// Client is the AI collaborator: bytes + MIME type in, SongMetadata out.
type Client struct {
	config Config
	genai  *genai.Client
}

// NewClient creates a Gemini client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Prompt == "" {
		cfg.Prompt = KaraokePrompt
	}
	if cfg.InlineLimit == 0 {
		cfg.InlineLimit = DefaultInlineLimit
	}
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = defaultPollEvery
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	gc, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{config: cfg, genai: gc}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.config.Model
}

// ProcessMusicVideo sends the video with the karaoke prompt and decodes the
// structured answer. Any transport, empty or malformed answer is an error.
func (c *Client) ProcessMusicVideo(ctx context.Context, data []byte, mimeType string) (*model.SongMetadata, error) {
	if mimeType == "" {
		mimeType = defaultMIMEType
	}

	video, cleanup, err := c.videoPart(ctx, data, mimeType)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: c.config.Prompt},
				video,
			},
		},
	}
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   ResponseSchema(),
	}

	start := time.Now()
	result, err := c.genai.Models.GenerateContent(ctx, c.config.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if result.UsageMetadata != nil {
		logger.Debug("[Gemini] 调用完成",
			logger.String("model", c.config.Model),
			logger.Int("promptTokens", int(result.UsageMetadata.PromptTokenCount)),
			logger.Int("outputTokens", int(result.UsageMetadata.CandidatesTokenCount)),
			logger.Duration("elapsed", time.Since(start)))
	}

	return ParseResponse(result.Text())
}

// videoPart returns the video as inline data, or uploads it through the Files
// API when it is too large to inline. cleanup removes the uploaded file.
func (c *Client) videoPart(ctx context.Context, data []byte, mimeType string) (*genai.Part, func(), error) {
	noop := func() {}
	if c.config.InlineLimit < 0 || int64(len(data)) <= c.config.InlineLimit {
		return &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}}, noop, nil
	}

	logger.Info("[Gemini] 视频较大，使用 Files API 上传",
		logger.Int("bytes", len(data)),
		logger.String("mime", mimeType))

	file, err := c.genai.Files.Upload(ctx, bytes.NewReader(data), &genai.UploadFileConfig{MIMEType: mimeType})
	if err != nil {
		return nil, noop, fmt.Errorf("upload video: %w", err)
	}
	cleanup := func() {
		// 上传的文件 48 小时后自动过期，删除失败只记录
		if _, err := c.genai.Files.Delete(context.WithoutCancel(ctx), file.Name, nil); err != nil {
			logger.Warn("[Gemini] 删除上传文件失败", logger.String("file", file.Name), logger.ErrorField(err))
		}
	}

	file, err = c.waitActive(ctx, file)
	if err != nil {
		cleanup()
		return nil, noop, err
	}
	return &genai.Part{FileData: &genai.FileData{FileURI: file.URI, MIMEType: file.MIMEType}}, cleanup, nil
}

func (c *Client) waitActive(ctx context.Context, file *genai.File) (*genai.File, error) {
	ticker := time.NewTicker(c.config.PollEvery)
	defer ticker.Stop()

	for {
		switch file.State {
		case genai.FileStateActive:
			return file, nil
		case genai.FileStateFailed:
			return nil, fmt.Errorf("uploaded video %s failed processing", file.Name)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		next, err := c.genai.Files.Get(ctx, file.Name, nil)
		if err != nil {
			return nil, fmt.Errorf("poll uploaded video: %w", err)
		}
		file = next
	}
}

var codeFence = regexp.MustCompile("(?s)```[^\\n]*\\n(.*?)\\n?```")

// ParseResponse decodes the model's text into metadata. A fenced code block
// around the JSON is tolerated.
func ParseResponse(text string) (*model.SongMetadata, error) {
	s := strings.TrimSpace(text)
	if m := codeFence.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	if s == "" {
		return nil, ErrEmptyResponse
	}

	var meta *model.SongMetadata
	if err := json.Unmarshal([]byte(s), &meta); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	if meta == nil {
		return nil, ErrEmptyResponse
	}
	return meta, nil
}
