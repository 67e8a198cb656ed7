package permissions

import "errors"

var (
	ErrMicrophoneDenied  = errors.New("microphone permission denied")
	ErrMicrophonePending = errors.New("microphone permission requested, restart after granting it")
)

type Status int

const (
	NotDetermined Status = iota
	Restricted
	Denied
	Authorized
)

func (s Status) String() string {
	switch s {
	case NotDetermined:
		return "not determined"
	case Restricted:
		return "restricted"
	case Denied:
		return "denied"
	case Authorized:
		return "authorized"
	}
	return "unknown"
}

// decide maps a microphone status to the startup outcome. request is
// called when the user has not been asked yet.
func decide(s Status, request func()) error {
	switch s {
	case Authorized:
		return nil
	case NotDetermined:
		request()
		return ErrMicrophonePending
	default:
		return ErrMicrophoneDenied
	}
}
