package routing

import (
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParseAndString(t *testing.T) {
	tests := []struct {
		in   string
		want IO
		str  string
	}{
		{in: "", want: Unconnected(), str: "none"},
		{in: "none", want: Unconnected(), str: "none"},
		{in: "mono:3", want: MonoIO(3), str: "mono:3"},
		{in: " Stereo:0, 1 ", want: StereoIO(0, 1), str: "stereo:0,1"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
			if got.String() != tt.str {
				t.Fatalf("expected %q, got %q", tt.str, got.String())
			}
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, in := range []string{"mono", "mono:x", "mono:-1", "stereo:1", "stereo:a,b", "quad:1,2,3,4"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}

func TestChannels(t *testing.T) {
	if got := Unconnected().Channels(); len(got) != 0 {
		t.Fatalf("expected no channels, got %v", got)
	}
	if got := MonoIO(2).Channels(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected [2], got %v", got)
	}
	if got := StereoIO(4, 5).Channels(); len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Fatalf("expected [4 5], got %v", got)
	}
	if got := (Physical{Layout: Stereo, Left: 1, Right: 0}).Channels(); len(got) != 2 || got[0] != 1 || got[1] != 0 {
		t.Fatalf("expected [1 0], got %v", got)
	}
}

func TestTextEncoding(t *testing.T) {
	type doc struct {
		Input  IO `json:"input" yaml:"input"`
		Output IO `json:"output" yaml:"output"`
	}

	var y doc
	if err := yaml.Unmarshal([]byte("input: mono:1\noutput: stereo:0,1\n"), &y); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if y.Input != MonoIO(1) || y.Output != StereoIO(0, 1) {
		t.Fatalf("unexpected yaml decode: %+v", y)
	}

	data, err := json.Marshal(y)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if string(data) != `{"input":"mono:1","output":"stereo:0,1"}` {
		t.Fatalf("unexpected json: %s", data)
	}
}
