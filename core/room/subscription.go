package room

import (
	"AzzKaraoke/core/controller"
	"AzzKaraoke/logger"
)

// Subscribe forwards every notification of ctl to the viewers of sessionID.
// The callbacks run under the controller lock, so they only enqueue.
func Subscribe(hub *Hub, sessionID string, ctl *controller.Controller) {
	send := func(t MessageType, data interface{}) {
		msg, err := NewMessage(sessionID, t, data)
		if err == nil {
			err = hub.Broadcast(msg)
		}
		if err != nil {
			logger.Warn("广播会话消息失败",
				logger.String("session", sessionID),
				logger.String("type", string(t)),
				logger.ErrorField(err))
		}
	}

	ctl.Subscribe(controller.Listener{
		OnState: func(s controller.State) {
			send(MsgTypeState, NewStateData(s))
		},
		OnFrame: func(f controller.FrameUpdate) {
			send(MsgTypeFrame, FrameData{Frame: f.Frame, Ended: f.Ended})
		},
		OnScroll: func(top float64) {
			send(MsgTypeScroll, ScrollData{Top: top})
		},
	})
}

// Snapshot is what a newly connected viewer receives before live updates.
func Snapshot(sessionID string, ctl *controller.Controller) []*WSMessage {
	state, _ := NewMessage(sessionID, MsgTypeState, NewStateData(ctl.Snapshot()))
	f := ctl.Frame()
	frame, _ := NewMessage(sessionID, MsgTypeFrame, FrameData{Frame: f.Frame, Ended: f.Ended})
	return []*WSMessage{state, frame}
}
