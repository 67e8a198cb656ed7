// Package routing describes where a mixer channel reads from and writes to.
package routing

import (
	"fmt"
	"strconv"
	"strings"
)

type Kind int

const (
	None Kind = iota
	Hardware
)

type Layout int

const (
	Mono Layout = iota
	Stereo
)

// Physical addresses one or two hardware channels
type Physical struct {
	Layout Layout
	Left   int // also the channel index for Mono
	Right  int
}

// IO is either unconnected or a hardware endpoint
type IO struct {
	Kind     Kind
	Physical Physical
}

func Unconnected() IO {
	return IO{Kind: None}
}

func MonoIO(channel int) IO {
	return IO{Kind: Hardware, Physical: Physical{Layout: Mono, Left: channel}}
}

func StereoIO(left, right int) IO {
	return IO{Kind: Hardware, Physical: Physical{Layout: Stereo, Left: left, Right: right}}
}

func (io IO) IsNone() bool {
	return io.Kind == None
}

// Channels returns the hardware channel indices touched by p
func (p Physical) Channels() []int {
	if p.Layout == Stereo {
		return []int{p.Left, p.Right}
	}
	return []int{p.Left}
}

// Channels returns the hardware channel indices touched by io
func (io IO) Channels() []int {
	if io.Kind == None {
		return nil
	}
	return io.Physical.Channels()
}

// String renders io as "none", "mono:N" or "stereo:L,R"
func (io IO) String() string {
	if io.Kind == None {
		return "none"
	}
	if io.Physical.Layout == Stereo {
		return fmt.Sprintf("stereo:%d,%d", io.Physical.Left, io.Physical.Right)
	}
	return fmt.Sprintf("mono:%d", io.Physical.Left)
}

// Parse is the inverse of String
func Parse(s string) (IO, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "none" {
		return Unconnected(), nil
	}

	layout, args, ok := strings.Cut(s, ":")
	if !ok {
		return IO{}, fmt.Errorf("invalid routing %q", s)
	}

	switch layout {
	case "mono":
		c, err := parseIndex(args)
		if err != nil {
			return IO{}, fmt.Errorf("invalid routing %q: %w", s, err)
		}
		return MonoIO(c), nil
	case "stereo":
		l, r, ok := strings.Cut(args, ",")
		if !ok {
			return IO{}, fmt.Errorf("invalid routing %q: stereo needs two channels", s)
		}
		left, err := parseIndex(l)
		if err != nil {
			return IO{}, fmt.Errorf("invalid routing %q: %w", s, err)
		}
		right, err := parseIndex(r)
		if err != nil {
			return IO{}, fmt.Errorf("invalid routing %q: %w", s, err)
		}
		return StereoIO(left, right), nil
	default:
		return IO{}, fmt.Errorf("invalid routing %q: unknown layout %q", s, layout)
	}
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative channel index %d", n)
	}
	return n, nil
}

func (io IO) MarshalText() ([]byte, error) {
	return []byte(io.String()), nil
}

func (io *IO) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*io = parsed
	return nil
}
