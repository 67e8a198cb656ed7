package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/petems/mixtray/internal/audio"
	"github.com/petems/mixtray/internal/audio/audiotest"
	"github.com/petems/mixtray/internal/buffer"
	"github.com/petems/mixtray/internal/routing"
	"github.com/rs/zerolog"
)

func testConfig(channels, frames int) audio.StreamConfig {
	cfg := audio.DefaultConfig(48000, frames)
	cfg.Format.NumChannels = channels
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	for i := 0; i < 100; i++ { // Poll for 1 second
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func runManager(t *testing.T, run func(context.Context) error) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestInputManagerDeinterlacesFrames(t *testing.T) {
	host := audiotest.NewHost(2, 2)

	var mu sync.Mutex
	var got []*buffer.Vector
	m := NewInputManager(host, func(frame uint64, v *buffer.Vector) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	}, Options{}, zerolog.Nop())
	_, done := runManager(t, m.Run)

	replyCh := make(chan error, 1)
	dev, _ := host.DefaultInput()
	if err := m.Mailbox().Send(context.Background(), NewInputSource{Device: dev, Config: testConfig(2, 3), Reply: replyCh}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := <-replyCh; err != nil {
		t.Fatalf("open: %v", err)
	}

	streams := host.InputStreams()
	if len(streams) != 1 || !streams[0].Started() {
		t.Fatal("expected one started input stream")
	}

	streams[0].PushInput([]float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6})

	mu.Lock()
	if len(got) != 1 {
		mu.Unlock()
		t.Fatalf("expected 1 dispatched vector, got %d", len(got))
	}
	left, _ := got[0].Buffer(0)
	right, _ := got[0].Buffer(1)
	mu.Unlock()

	if left[0] != 0.1 || left[1] != 0.3 || left[2] != 0.5 {
		t.Fatalf("unexpected left channel %v", left)
	}
	if right[0] != 0.2 || right[1] != 0.4 || right[2] != 0.6 {
		t.Fatalf("unexpected right channel %v", right)
	}
	if m.Frames() != 1 {
		t.Fatalf("expected 1 frame counted, got %d", m.Frames())
	}

	_ = m.Mailbox().Send(context.Background(), Quit{})
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if !m.HasStream() {
		t.Fatal("expected Quit to leave the stream for the caller")
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !streams[0].Closed() {
		t.Fatal("expected Close to close the stream")
	}
}

func TestInputManagerOpenFailureIsNotFatal(t *testing.T) {
	host := audiotest.NewHost(1, 1)
	host.FailOpenInput = errors.New("device busy")

	m := NewInputManager(host, nil, Options{}, zerolog.Nop())
	runManager(t, m.Run)

	dev, _ := host.DefaultInput()
	replyCh := make(chan error, 1)
	_ = m.Mailbox().Send(context.Background(), NewInputSource{Device: dev, Config: testConfig(1, 4), Reply: replyCh})
	if err := <-replyCh; !errors.Is(err, ErrStreamOpenFailed) {
		t.Fatalf("expected ErrStreamOpenFailed, got %v", err)
	}
	if m.HasStream() {
		t.Fatal("expected stream to stay unset")
	}

	host.FailOpenInput = nil
	_ = m.Mailbox().Send(context.Background(), NewInputSource{Device: dev, Config: testConfig(1, 4), Reply: replyCh})
	if err := <-replyCh; err != nil {
		t.Fatalf("expected manager to keep serving, got %v", err)
	}
}

func TestInputManagerReplacesStream(t *testing.T) {
	host := audiotest.NewHost(1, 1)
	m := NewInputManager(host, nil, Options{}, zerolog.Nop())
	runManager(t, m.Run)

	dev, _ := host.DefaultInput()
	replyCh := make(chan error, 1)
	for i := 0; i < 2; i++ {
		_ = m.Mailbox().Send(context.Background(), NewInputSource{Device: dev, Config: testConfig(1, 4), Reply: replyCh})
		if err := <-replyCh; err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
	}

	streams := host.InputStreams()
	if len(streams) != 2 {
		t.Fatalf("expected 2 streams opened, got %d", len(streams))
	}
	if !streams[0].Closed() {
		t.Fatal("expected the first stream to be closed when replaced")
	}
}

func openOutput(t *testing.T, host *audiotest.Host, m *OutputManager, cfg audio.StreamConfig) *audiotest.Stream {
	t.Helper()
	dev, _ := host.DefaultOutput()
	replyCh := make(chan error, 1)
	if err := m.Sink().Send(context.Background(), NewOutputSink{Device: dev, Config: cfg, Reply: replyCh}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := <-replyCh; err != nil {
		t.Fatalf("open: %v", err)
	}
	streams := host.OutputStreams()
	return streams[len(streams)-1]
}

func TestOutputManagerMixesAndInterlaces(t *testing.T) {
	host := audiotest.NewHost(2, 2)
	m := NewOutputManager(host, func() float32 { return 0.5 }, Options{}, zerolog.Nop())
	runManager(t, m.Run)
	s := openOutput(t, host, m, testConfig(2, 2))

	ctx := context.Background()
	_ = m.Sink().Send(ctx, Overdub{Target: routing.MonoIO(0).Physical, Samples: []buffer.Sample{1, 2}})
	_ = m.Sink().Send(ctx, Overdub{Target: routing.StereoIO(0, 1).Physical, Samples: []buffer.Sample{1, 1}})
	waitFor(t, "overdubs", func() bool {
		mixed, _ := m.Stats()
		return mixed == 2
	})

	got := s.PullOutput()
	expected := []float32{1, 0.5, 1.5, 0.5}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("sample %d: expected %f, got %f", i, expected[i], got[i])
		}
	}

	again := s.PullOutput()
	for i, v := range again {
		if v != 0 {
			t.Fatalf("expected silence after drain, sample %d is %f", i, v)
		}
	}
}

func TestOutputManagerDropsBadOverdubs(t *testing.T) {
	host := audiotest.NewHost(2, 2)
	m := NewOutputManager(host, nil, Options{}, zerolog.Nop())
	runManager(t, m.Run)

	ctx := context.Background()
	// no stream yet
	_ = m.Sink().Send(ctx, Overdub{Target: routing.MonoIO(0).Physical, Samples: []buffer.Sample{1, 1}})
	waitFor(t, "drop without stream", func() bool {
		_, dropped := m.Stats()
		return dropped == 1
	})

	s := openOutput(t, host, m, testConfig(2, 2))
	_ = m.Sink().Send(ctx, Overdub{Target: routing.MonoIO(0).Physical, Samples: []buffer.Sample{1, 1, 1}})
	_ = m.Sink().Send(ctx, Overdub{Target: routing.StereoIO(1, 2).Physical, Samples: []buffer.Sample{1, 1}})
	waitFor(t, "drops", func() bool {
		_, dropped := m.Stats()
		return dropped == 3
	})

	for i, v := range s.PullOutput() {
		if v != 0 {
			t.Fatalf("expected rejected overdubs to leave silence, sample %d is %f", i, v)
		}
	}
}

func TestOutputManagerNewInputClearsBuffer(t *testing.T) {
	host := audiotest.NewHost(1, 1)
	m := NewOutputManager(host, nil, Options{}, zerolog.Nop())
	runManager(t, m.Run)
	s := openOutput(t, host, m, testConfig(1, 2))

	ctx := context.Background()
	_ = m.Sink().Send(ctx, Overdub{Target: routing.MonoIO(0).Physical, Samples: []buffer.Sample{1, 1}})
	_ = m.Sink().Send(ctx, NewInput{})
	_ = m.Sink().Send(ctx, Overdub{Target: routing.MonoIO(0).Physical, Samples: []buffer.Sample{0.25, 0.5}})
	waitFor(t, "overdubs", func() bool {
		mixed, _ := m.Stats()
		return mixed == 2
	})

	got := s.PullOutput()
	if got[0] != 0.25 || got[1] != 0.5 {
		t.Fatalf("expected [0.25 0.5], got %v", got)
	}
}

func TestOutputManagerQuitClosesSink(t *testing.T) {
	host := audiotest.NewHost(1, 1)
	m := NewOutputManager(host, nil, Options{}, zerolog.Nop())
	_, done := runManager(t, m.Run)

	_ = m.Sink().Send(context.Background(), Quit{})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("output manager did not stop")
	}

	if !m.Sink().Closed() {
		t.Fatal("expected sink to be closed after Quit")
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
