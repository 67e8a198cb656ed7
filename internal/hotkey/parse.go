package hotkey

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidAccelerator = errors.New("invalid accelerator")

// Accelerator is a parsed key combination such as "Ctrl+Alt+M"
type Accelerator struct {
	// Key is "Space", "F1" to "F12", "A" to "Z" or "0" to "9"
	Key   string
	Ctrl  bool
	Alt   bool
	Shift bool
	Super bool
}

// ParseAccelerator accepts modifiers and one key joined by '+', in any
// case. Option is an alias for Alt and Cmd for Super.
func ParseAccelerator(s string) (Accelerator, error) {
	var a Accelerator

	parts := strings.Split(s, "+")
	for i, raw := range parts {
		part := strings.ToLower(strings.TrimSpace(raw))
		if part == "" {
			return Accelerator{}, fmt.Errorf("%w: empty part in %q", ErrInvalidAccelerator, s)
		}

		switch part {
		case "ctrl", "control":
			a.Ctrl = true
			continue
		case "alt", "option", "opt":
			a.Alt = true
			continue
		case "shift":
			a.Shift = true
			continue
		case "super", "cmd", "command", "meta", "win":
			a.Super = true
			continue
		}

		if i != len(parts)-1 {
			return Accelerator{}, fmt.Errorf("%w: key %q must come last in %q", ErrInvalidAccelerator, raw, s)
		}
		key, ok := canonicalKey(part)
		if !ok {
			return Accelerator{}, fmt.Errorf("%w: unknown key %q", ErrInvalidAccelerator, raw)
		}
		a.Key = key
	}

	if a.Key == "" {
		return Accelerator{}, fmt.Errorf("%w: no key in %q", ErrInvalidAccelerator, s)
	}
	return a, nil
}

func canonicalKey(k string) (string, bool) {
	if k == "space" {
		return "Space", true
	}
	if len(k) == 1 {
		c := k[0]
		if c >= 'a' && c <= 'z' {
			return strings.ToUpper(k), true
		}
		if c >= '0' && c <= '9' {
			return k, true
		}
		return "", false
	}
	if k[0] == 'f' {
		var n int
		if _, err := fmt.Sscanf(k[1:], "%d", &n); err == nil && n >= 1 && n <= 12 && fmt.Sprint(n) == k[1:] {
			return "F" + k[1:], true
		}
	}
	return "", false
}

func (a Accelerator) String() string {
	var parts []string
	if a.Ctrl {
		parts = append(parts, "Ctrl")
	}
	if a.Alt {
		parts = append(parts, "Alt")
	}
	if a.Shift {
		parts = append(parts, "Shift")
	}
	if a.Super {
		parts = append(parts, "Super")
	}
	return strings.Join(append(parts, a.Key), "+")
}
