package room

import (
	"encoding/json"
	"time"

	"AzzKaraoke/core/controller"
	"AzzKaraoke/core/lyrics"
	"AzzKaraoke/model"
)

// MessageType 消息类型
type MessageType string

const (
	// 浏览器 -> 服务端：媒体元素事件
	MsgTypeTimeUpdate MessageType = "time_update" // 播放时间更新
	MsgTypeEnded      MessageType = "ended"       // 播放结束
	MsgTypePlay       MessageType = "play"        // 播放开始 / 服务端要求播放
	MsgTypeReplay     MessageType = "replay"      // 用户点击重播
	MsgTypeLayout     MessageType = "layout"      // 歌词容器布局
	MsgTypePing       MessageType = "ping"        // 心跳

	// 服务端 -> 浏览器
	MsgTypeState  MessageType = "state"  // 会话状态
	MsgTypeFrame  MessageType = "frame"  // 当前行 / 当前词
	MsgTypeScroll MessageType = "scroll" // 滚动目标
	MsgTypeSeek   MessageType = "seek"   // 要求媒体跳转
	MsgTypePong   MessageType = "pong"   // 心跳响应
	MsgTypeError  MessageType = "error"  // 错误消息
)

// WSMessage WebSocket 消息结构
type WSMessage struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// TimeData carries a media time in seconds (time_update, seek).
type TimeData struct {
	Time float64 `json:"time"`
}

// ScrollData 滚动目标
type ScrollData struct {
	Top float64 `json:"top"`
}

// ErrorData 错误消息数据
type ErrorData struct {
	Message string `json:"message"`
}

// StateData is the browser view of controller.State. Metadata is only sent
// while READY.
type StateData struct {
	Status     model.AppStatus     `json:"status"`
	Generation uint64              `json:"generation"`
	FileName   string              `json:"fileName,omitempty"`
	VideoURL   string              `json:"videoUrl,omitempty"`
	Error      string              `json:"error,omitempty"`
	Ended      bool                `json:"ended"`
	Metadata   *model.SongMetadata `json:"metadata,omitempty"`
}

// NewStateData projects s for the wire.
func NewStateData(s controller.State) StateData {
	d := StateData{
		Status:     s.Status,
		Generation: s.Generation,
		FileName:   s.FileName,
		VideoURL:   s.VideoURL,
		Error:      s.Error,
		Ended:      s.Ended,
	}
	if s.Status == model.StatusReady {
		d.Metadata = s.Metadata
	}
	return d
}

// FrameData is the per-instant highlight sent to renderers.
type FrameData struct {
	lyrics.Frame
	Ended bool `json:"ended"`
}

// NewMessage marshals data into a timestamped message.
func NewMessage(sessionID string, t MessageType, data interface{}) (*WSMessage, error) {
	msg := &WSMessage{Type: t, SessionID: sessionID, Timestamp: time.Now().UnixMilli()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return msg, nil
}

// Decode unmarshals the message payload into v.
func (m *WSMessage) Decode(v interface{}) error {
	if len(m.Data) == 0 {
		return errEmptyPayload
	}
	return json.Unmarshal(m.Data, v)
}
