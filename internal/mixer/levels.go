package mixer

import "sync"

// Levels holds the fader values that are read outside the actor: by the
// tray directly and by the output callback. Every access is a single short
// critical section.
type Levels struct {
	mu      sync.RWMutex
	volume  float32
	panning float32
	muted   bool
}

func NewLevels(volume, panning float32) *Levels {
	return &Levels{volume: volume, panning: clampPan(panning)}
}

func (l *Levels) Volume() float32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.volume
}

func (l *Levels) SetVolume(v float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.volume = v
}

func (l *Levels) Panning() float32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.panning
}

// SetPanning clamps p to [-1, 1]
func (l *Levels) SetPanning(p float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.panning = clampPan(p)
}

func (l *Levels) Muted() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.muted
}

func (l *Levels) SetMuted(muted bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.muted = muted
}

// Gain is the multiplier to apply to samples: the volume, or 0 when muted
func (l *Levels) Gain() float32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.muted {
		return 0
	}
	return l.volume
}

func clampPan(p float32) float32 {
	switch {
	case p < -1:
		return -1
	case p > 1:
		return 1
	default:
		return p
	}
}
