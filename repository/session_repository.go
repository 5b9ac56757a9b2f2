package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"AzzKaraoke/model"
)

// ErrNotFound is returned when no session matches.
var ErrNotFound = errors.New("session not found")

// ProcessingResult is the outcome of processing one upload.
type ProcessingResult struct {
	Status           model.AppStatus
	ErrorMessage     string
	Title            string
	Artist           string
	DetectedLanguage string
	LanguageTag      string
	LineCount        int
	Lyrics           model.LyricsDocument
}

func (p ProcessingResult) apply(s *model.KaraokeSession) {
	s.Status = p.Status
	s.ErrorMessage = p.ErrorMessage
	s.Title = p.Title
	s.Artist = p.Artist
	s.DetectedLanguage = p.DetectedLanguage
	s.LanguageTag = p.LanguageTag
	s.LineCount = p.LineCount
	s.Lyrics = p.Lyrics
}

// SessionRepository 会话数据访问接口
type SessionRepository interface {
	Create(ctx context.Context, s *model.KaraokeSession) error
	GetByID(ctx context.Context, id string) (*model.KaraokeSession, error)
	// Update overwrites an existing session; ErrNotFound if it is gone.
	Update(ctx context.Context, s *model.KaraokeSession) error
	// UpdateResult stores a processing result only while the session still
	// points at objectKey. ErrNotFound when deleted or replaced meanwhile.
	UpdateResult(ctx context.Context, id, objectKey string, r ProcessingResult) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit, offset int) ([]*model.KaraokeSession, error)
	// FindReadyByHash returns the newest READY session of a video.
	FindReadyByHash(ctx context.Context, hash string) (*model.KaraokeSession, error)
	CountByStatus(ctx context.Context) (map[model.AppStatus]int64, error)
}

// gormSessionRepository GORM 实现
type gormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository 创建 GORM 会话仓库
func NewGormSessionRepository(db *gorm.DB) SessionRepository {
	return &gormSessionRepository{db: db}
}

func (r *gormSessionRepository) Create(ctx context.Context, s *model.KaraokeSession) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("create session %s: %w", s.ID, err)
	}
	return nil
}

func (r *gormSessionRepository) GetByID(ctx context.Context, id string) (*model.KaraokeSession, error) {
	var s model.KaraokeSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Update 保存整条记录，调用方应先读取再修改；不会重新插入已删除的记录
func (r *gormSessionRepository) Update(ctx context.Context, s *model.KaraokeSession) error {
	s.UpdatedAt = time.Now()
	res := r.db.WithContext(ctx).Model(&model.KaraokeSession{}).
		Where("id = ?", s.ID).
		Select("*").Omit("id", "created_at").
		Updates(s)
	if res.Error != nil {
		return fmt.Errorf("update session %s: %w", s.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateResult 按 id + object_key 条件更新，旧上传的结果不会覆盖新记录
func (r *gormSessionRepository) UpdateResult(ctx context.Context, id, objectKey string, p ProcessingResult) error {
	res := r.db.WithContext(ctx).Model(&model.KaraokeSession{}).
		Where("id = ? AND object_key = ?", id, objectKey).
		Updates(map[string]interface{}{
			"status":            p.Status,
			"error_message":     p.ErrorMessage,
			"title":             p.Title,
			"artist":            p.Artist,
			"detected_language": p.DetectedLanguage,
			"language_tag":      p.LanguageTag,
			"line_count":        p.LineCount,
			"lyrics":            p.Lyrics,
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("update result of session %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormSessionRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.KaraokeSession{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List 按创建时间倒序，列表不加载歌词列
func (r *gormSessionRepository) List(ctx context.Context, limit, offset int) ([]*model.KaraokeSession, error) {
	if limit <= 0 {
		limit = 50
	}
	var sessions []*model.KaraokeSession
	err := r.db.WithContext(ctx).
		Omit("lyrics").
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&sessions).Error
	return sessions, err
}

func (r *gormSessionRepository) FindReadyByHash(ctx context.Context, hash string) (*model.KaraokeSession, error) {
	var s model.KaraokeSession
	err := r.db.WithContext(ctx).
		Where("content_hash = ? AND status = ?", hash, model.StatusReady).
		Order("updated_at DESC").
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *gormSessionRepository) CountByStatus(ctx context.Context) (map[model.AppStatus]int64, error) {
	var rows []struct {
		Status model.AppStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&model.KaraokeSession{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[model.AppStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

// memorySessionRepository 在未配置数据库时使用，进程退出即丢失
type memorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]model.KaraokeSession
}

// NewMemorySessionRepository returns a process-local repository.
func NewMemorySessionRepository() SessionRepository {
	return &memorySessionRepository{sessions: make(map[string]model.KaraokeSession)}
}

func (r *memorySessionRepository) Create(_ context.Context, s *model.KaraokeSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return fmt.Errorf("create session %s: duplicate id", s.ID)
	}
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	r.sessions[s.ID] = *s
	return nil
}

func (r *memorySessionRepository) GetByID(_ context.Context, id string) (*model.KaraokeSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (r *memorySessionRepository) Update(_ context.Context, s *model.KaraokeSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.sessions[s.ID]
	if !ok {
		return ErrNotFound
	}
	s.CreatedAt = old.CreatedAt
	s.UpdatedAt = time.Now()
	r.sessions[s.ID] = *s
	return nil
}

func (r *memorySessionRepository) UpdateResult(_ context.Context, id, objectKey string, p ProcessingResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.ObjectKey != objectKey {
		return ErrNotFound
	}
	p.apply(&s)
	s.UpdatedAt = time.Now()
	r.sessions[id] = s
	return nil
}

func (r *memorySessionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *memorySessionRepository) sorted() []model.KaraokeSession {
	out := make([]model.KaraokeSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *memorySessionRepository) List(_ context.Context, limit, offset int) ([]*model.KaraokeSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	all := r.sorted()
	var out []*model.KaraokeSession
	for i := offset; i < len(all) && len(out) < limit; i++ {
		s := all[i]
		s.Lyrics = model.LyricsDocument{}
		out = append(out, &s)
	}
	return out, nil
}

func (r *memorySessionRepository) FindReadyByHash(_ context.Context, hash string) (*model.KaraokeSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *model.KaraokeSession
	for _, s := range r.sessions {
		if s.ContentHash != hash || s.Status != model.StatusReady {
			continue
		}
		if best == nil || s.UpdatedAt.After(best.UpdatedAt) {
			s := s
			best = &s
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (r *memorySessionRepository) CountByStatus(_ context.Context) (map[model.AppStatus]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[model.AppStatus]int64)
	for _, s := range r.sessions {
		out[s.Status]++
	}
	return out, nil
}
