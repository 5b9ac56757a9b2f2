package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"AzzKaraoke/cache"
	"AzzKaraoke/core/export"
	"AzzKaraoke/core/room"
	"AzzKaraoke/logger"
	"AzzKaraoke/model"
	"AzzKaraoke/repository"
	"AzzKaraoke/storage"
)

const uploadField = "video"

// SessionResponse is returned by GET /api/sessions/{id}.
type SessionResponse struct {
	Session  *model.KaraokeSession   `json:"session"`
	State    room.StateData          `json:"state"`
	Viewers  int64                   `json:"viewers"`
	Playback *cache.PlaybackSnapshot `json:"playback,omitempty"`
}

// CreateResponse carries the token that authorizes later changes to the session.
type CreateResponse struct {
	Session *model.KaraokeSession `json:"session"`
	Token   string                `json:"token"`
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (room.Upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.Config.MaxUploadBytes()+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Video file is too large")
			return room.Upload{}, false
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return room.Upload{}, false
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing video file")
		return room.Upload{}, false
	}
	defer file.Close()

	if header.Size > s.deps.Config.MaxUploadBytes() {
		writeError(w, http.StatusRequestEntityTooLarge, "Video file is too large")
		return room.Upload{}, false
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read video file")
		return room.Upload{}, false
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = storage.InferContentType(header.Filename)
	}
	return room.Upload{Name: header.Filename, MIMEType: mimeType, Data: data}, true
}

// CreateSessionHandler POST /api/sessions
func (s *Server) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	up, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	record, err := s.deps.Manager.Create(r.Context(), up)
	if err != nil {
		s.handleError(w, "创建会话失败", err)
		return
	}
	token, err := s.deps.Tokens.GenerateToken(record.ID)
	if err != nil {
		s.handleError(w, "生成令牌失败", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateResponse{Session: record, Token: token})
}

// ListSessionsHandler GET /api/sessions?limit=&offset=
func (s *Server) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	list, err := s.deps.Manager.List(r.Context(), limit, offset)
	if err != nil {
		s.handleError(w, "获取会话列表失败", err)
		return
	}
	if list == nil {
		list = []*model.KaraokeSession{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": list,
		"limit":    limit,
		"offset":   offset,
	})
}

// GetSessionHandler GET /api/sessions/{id}
func (s *Server) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, err := s.deps.Manager.Get(r.Context(), id)
	if err != nil {
		s.handleError(w, "获取会话失败", err)
		return
	}
	record, err := s.deps.Manager.Record(r.Context(), id)
	if err != nil {
		s.handleError(w, "获取会话失败", err)
		return
	}

	resp := SessionResponse{
		Session: record,
		State:   room.NewStateData(sess.Controller().Snapshot()),
		Viewers: int64(s.deps.Hub.ClientCount(id)),
	}
	s.decorate(r.Context(), id, &resp)
	writeJSON(w, http.StatusOK, resp)
}

// decorate adds shared viewer and playback data when Redis is available.
func (s *Server) decorate(ctx context.Context, id string, resp *SessionResponse) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if s.deps.Viewers != nil {
		if n, err := s.deps.Viewers.ActiveViewerCount(ctx, id); err == nil {
			if n > resp.Viewers {
				resp.Viewers = n
			}
		} else {
			logger.Debug("读取在线人数失败", logger.String("sessionId", id), logger.ErrorField(err))
		}
	}
	if s.deps.Playback != nil {
		if snap, err := s.deps.Playback.GetPlayback(ctx, id); err == nil {
			resp.Playback = snap
		} else {
			logger.Debug("读取播放位置失败", logger.String("sessionId", id), logger.ErrorField(err))
		}
	}
}

// ReplaceVideoHandler PUT /api/sessions/{id}/video
func (s *Server) ReplaceVideoHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	up, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	record, err := s.deps.Manager.Replace(r.Context(), id, up)
	if err != nil {
		s.handleError(w, "替换视频失败", err)
		return
	}
	writeJSON(w, http.StatusAccepted, record)
}

// DeleteSessionHandler DELETE /api/sessions/{id}
func (s *Server) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.deps.Manager.Delete(r.Context(), id); err != nil {
		s.handleError(w, "删除会话失败", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VideoHandler streams the stored video with range support.
func (s *Server) VideoHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	obj, info, err := s.deps.Manager.OpenVideo(r.Context(), id)
	if err != nil {
		s.handleError(w, "打开视频失败", err)
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, "", info.LastModified, obj)
}

// ExportSubtitleHandler GET /api/sessions/{id}/export/srt
func (s *Server) ExportSubtitleHandler(w http.ResponseWriter, r *http.Request) {
	meta, ok := s.readyMetadata(w, r)
	if !ok {
		return
	}
	attachment(w, "application/x-subrip; charset=utf-8", export.SubtitleFileName(meta))
	if _, err := io.WriteString(w, export.ToSubtitleFormat(meta)); err != nil {
		logger.Warn("写入字幕失败", logger.ErrorField(err))
	}
}

// ExportStructuredHandler GET /api/sessions/{id}/export/json
func (s *Server) ExportStructuredHandler(w http.ResponseWriter, r *http.Request) {
	meta, ok := s.readyMetadata(w, r)
	if !ok {
		return
	}
	data, err := export.ToStructuredFormat(meta)
	if err != nil {
		s.handleError(w, "导出失败", err)
		return
	}
	attachment(w, "application/json", export.StructuredFileName(meta))
	if _, err := w.Write(data); err != nil {
		logger.Warn("写入导出文件失败", logger.ErrorField(err))
	}
}

// readyMetadata returns the session's lyrics, or writes 409 when processing
// has not produced any.
func (s *Server) readyMetadata(w http.ResponseWriter, r *http.Request) (*model.SongMetadata, bool) {
	id := mux.Vars(r)["id"]
	sess, err := s.deps.Manager.Get(r.Context(), id)
	if err != nil {
		s.handleError(w, "获取会话失败", err)
		return nil, false
	}
	st := sess.Controller().Snapshot()
	if st.Status != model.StatusReady || st.Metadata == nil {
		writeError(w, http.StatusConflict, fmt.Sprintf("Session is %s, lyrics are not ready", st.Status))
		return nil, false
	}
	return st.Metadata, true
}

func attachment(w http.ResponseWriter, contentType, fileName string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": fileName}))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, room.ErrEmptyUpload):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusRequestTimeout, "Request cancelled")
	default:
		logger.Error(msg, logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
