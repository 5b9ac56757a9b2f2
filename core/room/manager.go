package room

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"AzzKaraoke/cache"
	"AzzKaraoke/core/controller"
	"AzzKaraoke/core/lyrics"
	"AzzKaraoke/logger"
	"AzzKaraoke/model"
	"AzzKaraoke/repository"
	"AzzKaraoke/storage"
)

// ErrEmptyUpload is returned for an upload without bytes.
var ErrEmptyUpload = errors.New("upload is empty")

// playbackSaveEvery throttles how often time updates reach the playback store.
const playbackSaveEvery = time.Second

// PlaybackStore remembers the last playback position of a session.
// cache.RoomCache implements it.
type PlaybackStore interface {
	SetPlayback(ctx context.Context, roomID string, t float64, ended bool) error
	ClearRoom(ctx context.Context, roomID string) error
}

// Upload is a video received from a client.
type Upload struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Deps are the collaborators of a Manager. Playback may be nil.
type Deps struct {
	Repo        repository.SessionRepository
	Store       storage.VideoStore
	Hub         *Hub
	Transcriber controller.Transcriber
	Playback    PlaybackStore
	Options     []controller.Option
}

type upload struct {
	objectKey string
	videoURL  string
	hash      string
}

// Session is one live karaoke session: a controller plus bookkeeping.
type Session struct {
	ID  string
	ctl *controller.Controller

	mu        sync.Mutex
	current   *upload
	pending   *controller.State
	lastSaved time.Time

	selectMu sync.Mutex
	signal   chan struct{}
	quit     chan struct{}
}

// Controller returns the session's controller.
func (s *Session) Controller() *controller.Controller {
	return s.ctl
}

func (s *Session) currentUpload() *upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// enqueue keeps only the latest state; persistence is last-writer-wins.
func (s *Session) enqueue(st controller.State) {
	s.mu.Lock()
	s.pending = &st
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Manager 会话业务管理器
type Manager struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session

	wg sync.WaitGroup
}

// NewManager 创建会话管理器
func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps, sessions: make(map[string]*Session)}
}

// VideoURL is where viewers stream the video stored under objectKey.
func VideoURL(sessionID, objectKey string) string {
	return fmt.Sprintf("/api/sessions/%s/video?v=%s", url.PathEscape(sessionID), url.QueryEscape(path.Base(objectKey)))
}

func (m *Manager) newSession(id string) *Session {
	s := &Session{
		ID:     id,
		signal: make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}

	opts := append([]controller.Option{}, m.deps.Options...)
	opts = append(opts, controller.WithLocator(func(context.Context, controller.FileRef) (string, error) {
		if cur := s.currentUpload(); cur != nil {
			return cur.videoURL, nil
		}
		return "", errors.New("no upload in progress")
	}))
	s.ctl = controller.New(m.deps.Transcriber, opts...)
	s.ctl.Clock().Attach(NewRemoteSource(m.deps.Hub, id))
	s.ctl.Subscribe(controller.Listener{
		OnState: func(st controller.State) {
			if st.Status.Terminal() {
				s.enqueue(st)
			}
		},
	})
	Subscribe(m.deps.Hub, id, s.ctl)

	m.wg.Add(1)
	go m.persistLoop(s)
	return s
}

// ========== 会话管理 ==========

// Create 创建会话并开始处理上传的视频
func (m *Manager) Create(ctx context.Context, up Upload) (*model.KaraokeSession, error) {
	if len(up.Data) == 0 {
		return nil, ErrEmptyUpload
	}

	id := uuid.NewString()
	record := &model.KaraokeSession{ID: id, FileName: up.Name, Status: model.StatusIdle}
	if err := m.deps.Repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("创建会话失败: %w", err)
	}

	s := m.newSession(id)
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	logger.Info("会话创建成功", logger.String("sessionId", id), logger.String("file", up.Name))
	return m.selectUpload(ctx, s, up)
}

// Replace selects a new video on an existing session. Any result still in
// flight for the previous video is discarded.
func (m *Manager) Replace(ctx context.Context, id string, up Upload) (*model.KaraokeSession, error) {
	if len(up.Data) == 0 {
		return nil, ErrEmptyUpload
	}
	s, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.selectUpload(ctx, s, up)
}

func (m *Manager) selectUpload(ctx context.Context, s *Session, up Upload) (*model.KaraokeSession, error) {
	s.selectMu.Lock()
	defer s.selectMu.Unlock()

	if up.MIMEType == "" {
		up.MIMEType = storage.InferContentType(up.Name)
	}
	record, err := m.deps.Repo.GetByID(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	previousKey := record.ObjectKey

	hash := cache.ContentHash(up.Data)
	key := storage.VideoKey(s.ID, uuid.NewString()[:8], up.Name)

	if err := m.deps.Store.Put(ctx, key, bytes.NewReader(up.Data), int64(len(up.Data)), up.MIMEType); err != nil {
		return nil, fmt.Errorf("保存视频失败: %w", err)
	}

	*record = model.KaraokeSession{
		ID:          record.ID,
		FileName:    up.Name,
		MIMEType:    up.MIMEType,
		ObjectKey:   key,
		ContentHash: hash,
		Status:      model.StatusProcessing,
		CreatedAt:   record.CreatedAt,
	}
	if err := m.deps.Repo.Update(ctx, record); err != nil {
		if derr := m.deps.Store.Delete(ctx, key); derr != nil {
			logger.Warn("删除视频失败", logger.String("key", key), logger.ErrorField(derr))
		}
		return nil, fmt.Errorf("更新会话失败: %w", err)
	}

	cur := &upload{objectKey: key, videoURL: VideoURL(s.ID, key), hash: hash}
	s.mu.Lock()
	s.current = cur
	s.mu.Unlock()

	if previousKey != "" && previousKey != key {
		if err := m.deps.Store.Delete(ctx, previousKey); err != nil {
			logger.Warn("删除旧视频失败", logger.String("key", previousKey), logger.ErrorField(err))
		}
	}

	// 相同视频已处理过时直接复用结果
	if hit, err := m.deps.Repo.FindReadyByHash(ctx, hash); err == nil && hit.Metadata() != nil {
		logger.Info("复用已处理的歌词", logger.String("sessionId", s.ID), logger.String("from", hit.ID))
		s.ctl.LoadMetadata(hit.Metadata(), up.Name, cur.videoURL)
		return record, nil
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		logger.Warn("查询已处理视频失败", logger.ErrorField(err))
	}

	data := up.Data
	ref := controller.FileRef{
		Name:     up.Name,
		MIMEType: up.MIMEType,
		Open:     func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
	if _, err := s.ctl.SelectFile(ctx, ref); err != nil {
		return nil, err
	}
	return record, nil
}

// Get 获取会话；不在内存中时从数据库恢复
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		return s, nil
	}

	record, err := m.deps.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	s = m.newSession(id)
	m.sessions[id] = s
	m.mu.Unlock()

	m.restore(ctx, s, record)
	return s, nil
}

func (m *Manager) restore(ctx context.Context, s *Session, record *model.KaraokeSession) {
	if record.ObjectKey == "" {
		return
	}
	cur := &upload{objectKey: record.ObjectKey, videoURL: VideoURL(s.ID, record.ObjectKey), hash: record.ContentHash}
	s.mu.Lock()
	s.current = cur
	s.mu.Unlock()

	switch record.Status {
	case model.StatusReady:
		if meta := record.Metadata(); meta != nil {
			s.ctl.LoadMetadata(meta, record.FileName, cur.videoURL)
		}
	case model.StatusProcessing:
		// 服务重启前未完成的处理，从存储重新读取
		key := record.ObjectKey
		ref := controller.FileRef{
			Name:     record.FileName,
			MIMEType: record.MIMEType,
			Open: func() (io.ReadCloser, error) {
				obj, _, err := m.deps.Store.Get(context.Background(), key)
				return obj, err
			},
		}
		logger.Info("恢复未完成的处理", logger.String("sessionId", s.ID))
		if _, err := s.ctl.SelectFile(ctx, ref); err != nil {
			logger.Warn("恢复处理失败", logger.String("sessionId", s.ID), logger.ErrorField(err))
		}
	}
}

// Record returns the persisted session.
func (m *Manager) Record(ctx context.Context, id string) (*model.KaraokeSession, error) {
	return m.deps.Repo.GetByID(ctx, id)
}

// List returns persisted sessions, newest first.
func (m *Manager) List(ctx context.Context, limit, offset int) ([]*model.KaraokeSession, error) {
	return m.deps.Repo.List(ctx, limit, offset)
}

// OpenVideo opens the stored video of a session.
func (m *Manager) OpenVideo(ctx context.Context, id string) (storage.Object, *storage.ObjectInfo, error) {
	record, err := m.deps.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if record.ObjectKey == "" {
		return nil, nil, fmt.Errorf("session %s has no video: %w", id, storage.ErrNotFound)
	}
	return m.deps.Store.Get(ctx, record.ObjectKey)
}

// Delete 删除会话及其视频
func (m *Manager) Delete(ctx context.Context, id string) error {
	record, err := m.deps.Repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.ctl.Reset()
		close(s.quit)
	}

	if record.ObjectKey != "" {
		if err := m.deps.Store.Delete(ctx, record.ObjectKey); err != nil {
			logger.Warn("删除视频失败", logger.String("key", record.ObjectKey), logger.ErrorField(err))
		}
	}
	if m.deps.Playback != nil {
		if err := m.deps.Playback.ClearRoom(ctx, id); err != nil {
			logger.Warn("清理播放位置失败", logger.String("sessionId", id), logger.ErrorField(err))
		}
	}
	if err := m.deps.Repo.Delete(ctx, id); err != nil {
		return err
	}
	logger.Info("会话已删除", logger.String("sessionId", id))
	return nil
}

// Close waits for background processing and persistence to finish.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.ctl.Wait()
		close(s.quit)
	}
	m.wg.Wait()
}

// ========== 持久化 ==========

func (m *Manager) persistLoop(s *Session) {
	defer m.wg.Done()
	for {
		select {
		case <-s.signal:
		case <-s.quit:
			m.drain(s)
			return
		}
		m.drain(s)
	}
}

func (m *Manager) drain(s *Session) {
	for {
		s.mu.Lock()
		st, cur := s.pending, s.current
		s.pending = nil
		s.mu.Unlock()
		if st == nil {
			return
		}
		if cur == nil || st.VideoURL != cur.videoURL {
			continue
		}
		if err := m.persist(s.ID, cur.objectKey, *st); err != nil {
			logger.Error("保存会话状态失败", logger.String("sessionId", s.ID), logger.ErrorField(err))
		}
	}
}

// persist writes st for the upload stored under objectKey. A session that
// was deleted or moved on to another upload is left untouched.
func (m *Manager) persist(id, objectKey string, st controller.State) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result := repository.ProcessingResult{Status: st.Status, ErrorMessage: st.Error}
	if meta := st.Metadata; st.Status == model.StatusReady && meta != nil {
		result.Title = meta.Title
		result.Artist = meta.Artist
		result.DetectedLanguage = meta.DetectedLanguage
		result.LanguageTag = lyrics.NormalizeLanguage(meta.DetectedLanguage)
		result.LineCount = len(meta.Subtitles)
		result.Lyrics = model.LyricsDocument{SongMetadata: meta}
	}
	err := m.deps.Repo.UpdateResult(ctx, id, objectKey, result)
	if errors.Is(err, repository.ErrNotFound) {
		logger.Debug("会话已删除或已替换视频，丢弃结果", logger.String("sessionId", id))
		return nil
	}
	return err
}

// ========== WebSocket 消息处理 ==========

// HandleMessage applies a viewer's media-element event to its session.
func (m *Manager) HandleMessage(ctx context.Context, client *Client, msg *WSMessage) {
	s, err := m.Get(ctx, client.SessionID)
	if err != nil {
		sendError(client, "session not found")
		return
	}
	clock := s.ctl.Clock()

	switch msg.Type {
	case MsgTypeTimeUpdate:
		var d TimeData
		if err := msg.Decode(&d); err != nil {
			sendError(client, "invalid time_update payload")
			return
		}
		clock.TimeUpdate(d.Time)
		m.savePlayback(ctx, s, d.Time, false)

	case MsgTypeEnded:
		clock.Ended()
		m.savePlayback(ctx, s, s.ctl.Snapshot().CurrentTime, true)

	case MsgTypePlay:
		clock.Play()

	case MsgTypeReplay:
		if err := s.ctl.Replay(); err != nil {
			logger.Warn("重播失败", logger.String("sessionId", s.ID), logger.ErrorField(err))
			sendError(client, "replay failed")
		}

	case MsgTypeLayout:
		var layout lyrics.Layout
		if err := msg.Decode(&layout); err != nil {
			sendError(client, "invalid layout payload")
			return
		}
		s.ctl.SetLayout(&layout)

	default:
		sendError(client, "unknown message type: "+string(msg.Type))
	}
}

func (m *Manager) savePlayback(ctx context.Context, s *Session, t float64, ended bool) {
	if m.deps.Playback == nil {
		return
	}
	s.mu.Lock()
	due := ended || time.Since(s.lastSaved) >= playbackSaveEvery
	if due {
		s.lastSaved = time.Now()
	}
	s.mu.Unlock()
	if !due {
		return
	}
	if err := m.deps.Playback.SetPlayback(ctx, s.ID, t, ended); err != nil {
		logger.Warn("保存播放位置失败", logger.String("sessionId", s.ID), logger.ErrorField(err))
	}
}

func sendError(client *Client, message string) {
	msg, err := NewMessage(client.SessionID, MsgTypeError, ErrorData{Message: message})
	if err == nil {
		client.SendMessage(msg)
	}
}
