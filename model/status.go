package model

// AppStatus is the lifecycle status of a karaoke session.
type AppStatus string

const (
	StatusIdle       AppStatus = "IDLE"
	StatusProcessing AppStatus = "PROCESSING"
	StatusReady      AppStatus = "READY"
	StatusError      AppStatus = "ERROR"
)

// Valid reports whether s is one of the known statuses.
func (s AppStatus) Valid() bool {
	switch s {
	case StatusIdle, StatusProcessing, StatusReady, StatusError:
		return true
	}
	return false
}

// Terminal reports whether processing has finished, successfully or not.
func (s AppStatus) Terminal() bool {
	return s == StatusReady || s == StatusError
}
