//go:build !linux && !darwin

package hotkey

// New reports ErrUnsupported; the mixer still runs without a hotkey
func New() (Manager, error) {
	return nil, ErrUnsupported
}
