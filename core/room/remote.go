package room

// RemoteSource is the browser <video> element of a session, reached through
// the hub. Seek and Play are broadcast to every connected viewer.
type RemoteSource struct {
	hub       *Hub
	sessionID string
}

// NewRemoteSource returns the media source of sessionID.
func NewRemoteSource(hub *Hub, sessionID string) *RemoteSource {
	return &RemoteSource{hub: hub, sessionID: sessionID}
}

// Seek asks the viewers to jump to seconds.
func (r *RemoteSource) Seek(seconds float64) error {
	msg, err := NewMessage(r.sessionID, MsgTypeSeek, TimeData{Time: seconds})
	if err != nil {
		return err
	}
	return r.hub.Broadcast(msg)
}

// Play asks the viewers to resume playback.
func (r *RemoteSource) Play() error {
	msg, err := NewMessage(r.sessionID, MsgTypePlay, nil)
	if err != nil {
		return err
	}
	return r.hub.Broadcast(msg)
}
