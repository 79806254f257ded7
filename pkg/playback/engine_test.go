// ABOUTME: Tests for the playback engine
// ABOUTME: Tests drain ordering, lifecycle transitions, notifications and teardown
package playback

import (
	"errors"
	"sync"
	"testing"

	"github.com/Resonate-Protocol/pcm-player/pkg/audio"
	"github.com/Resonate-Protocol/pcm-player/pkg/audio/output"
)

// fakeDevice records scheduled buffers and holds their completion callbacks
// until the test releases them.
type fakeDevice struct {
	mu        sync.Mutex
	scheduled []audio.Buffer
	pending   []func()
	maxActive int
	failNext  int
	closed    int
}

func (d *fakeDevice) Schedule(buf audio.Buffer, done func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed > 0 {
		return output.ErrClosed
	}
	if d.failNext > 0 {
		d.failNext--
		return errors.New("device rejected buffer")
	}

	d.scheduled = append(d.scheduled, buf)
	d.pending = append(d.pending, done)
	if len(d.pending) > d.maxActive {
		d.maxActive = len(d.pending)
	}
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

// finish completes the oldest outstanding buffer
func (d *fakeDevice) finish(t *testing.T) {
	t.Helper()

	d.mu.Lock()
	if len(d.pending) == 0 {
		d.mu.Unlock()
		t.Fatal("no buffer is playing")
	}
	done := d.pending[0]
	d.pending = d.pending[1:]
	d.mu.Unlock()

	done()
}

func (d *fakeDevice) lengths() []int {
	d.mu.Lock()
	defer d.mu.Unlock()

	lengths := make([]int, len(d.scheduled))
	for i, buf := range d.scheduled {
		lengths[i] = len(buf.Samples)
	}
	return lengths
}

func (d *fakeDevice) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.scheduled)
}

type harness struct {
	engine  *Engine
	device  *fakeDevice
	opens   int
	started int
	states  []State
	errs    []error
}

func newHarness(t *testing.T, enabled bool) *harness {
	t.Helper()

	h := &harness{device: &fakeDevice{}}
	engine, err := NewEngine(Config{
		Open: func(format audio.Format) (output.Device, error) {
			h.opens++
			return h.device, nil
		},
		Enabled:           enabled,
		OnPlaybackStarted: func() { h.started++ },
		OnStateChange:     func(s State) { h.states = append(h.states, s) },
		OnError:           func(err error) { h.errs = append(h.errs, err) },
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	h.engine = engine
	return h
}

// marker returns a buffer whose length identifies it
func marker(n int) audio.Buffer {
	return audio.Buffer{Samples: make([]float32, n)}
}

func TestNewEngine_RequiresOpener(t *testing.T) {
	engine, err := NewEngine(Config{})
	if !errors.Is(err, ErrNoOpener) {
		t.Fatalf("expected ErrNoOpener, got %v", err)
	}
	if engine != nil {
		t.Fatal("expected nil engine")
	}
}

func TestEngineInitialState(t *testing.T) {
	h := newHarness(t, false)

	if h.engine.State() != StateUninitialized {
		t.Errorf("expected uninitialized, got %s", h.engine.State())
	}
	if h.engine.IsDraining() {
		t.Error("expected not draining")
	}
	if h.opens != 0 {
		t.Errorf("device should be opened lazily, got %d opens", h.opens)
	}
}

func TestEngineScheduleOrder(t *testing.T) {
	h := newHarness(t, true)

	sizes := []int{5, 1, 9, 3, 7, 2}
	for _, n := range sizes {
		if err := h.engine.Push(marker(n)); err != nil {
			t.Fatalf("push failed: %v", err)
		}
	}

	// Only the first buffer is scheduled until it completes
	if h.device.count() != 1 {
		t.Fatalf("expected 1 scheduled buffer, got %d", h.device.count())
	}

	for i := 1; i < len(sizes); i++ {
		h.device.finish(t)
	}

	got := h.device.lengths()
	if len(got) != len(sizes) {
		t.Fatalf("expected %d scheduled buffers, got %d", len(sizes), len(got))
	}
	for i := range sizes {
		if got[i] != sizes[i] {
			t.Errorf("position %d: expected buffer of %d samples, got %d", i, sizes[i], got[i])
		}
	}

	if h.device.maxActive != 1 {
		t.Errorf("expected at most 1 buffer scheduled at once, got %d", h.device.maxActive)
	}
}

func TestEngineChunkExample(t *testing.T) {
	h := newHarness(t, true)

	for _, chunk := range [][]byte{
		{0x01, 0x00, 0x02, 0x00},
		{0x01, 0x00, 0x02, 0x00, 0x03, 0x00},
		{0x01, 0x00, 0x02}, // odd: trailing byte dropped
	} {
		if err := h.engine.OnDataAvailable(chunk); err != nil {
			t.Fatalf("OnDataAvailable failed: %v", err)
		}
	}

	h.device.finish(t)
	h.device.finish(t)

	got := h.device.lengths()
	expected := []int{2, 3, 1}
	if len(got) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("position %d: expected %d samples, got %d", i, expected[i], got[i])
		}
	}

	if h.engine.Stats().Truncated != 1 {
		t.Errorf("expected 1 truncated chunk, got %d", h.engine.Stats().Truncated)
	}
}

func TestEngineIdleAfterDrainAndResume(t *testing.T) {
	h := newHarness(t, true)

	_ = h.engine.Push(marker(4))
	if !h.engine.IsDraining() {
		t.Fatal("expected draining after first push")
	}

	h.device.finish(t)
	if h.engine.State() != StateIdle {
		t.Fatalf("expected idle after queue drained, got %s", h.engine.State())
	}

	// New data resumes without another Enable
	_ = h.engine.Push(marker(8))
	if h.engine.State() != StateDraining {
		t.Fatalf("expected draining after new data, got %s", h.engine.State())
	}
	if h.device.count() != 2 {
		t.Errorf("expected 2 scheduled buffers, got %d", h.device.count())
	}
	if h.opens != 1 {
		t.Errorf("expected device opened once, got %d", h.opens)
	}

	stats := h.engine.Stats()
	if stats.Received != 2 || stats.Played != 1 {
		t.Errorf("expected received=2 played=1, got %+v", stats)
	}
}

func TestEnablePlaybackStartedOnce(t *testing.T) {
	h := newHarness(t, false)

	for i := 0; i < 3; i++ {
		if err := h.engine.Enable(); err != nil {
			t.Fatalf("enable failed: %v", err)
		}
	}

	if h.started != 1 {
		t.Errorf("expected 1 playback started notification, got %d", h.started)
	}
	if !h.engine.Enabled() {
		t.Error("expected enablement flag to be set after notification")
	}
	if h.engine.State() != StateIdle {
		t.Errorf("expected idle with empty queue, got %s", h.engine.State())
	}
}

func TestEnableAlreadyEnabledNoNotification(t *testing.T) {
	h := newHarness(t, true)

	_ = h.engine.Enable()
	_ = h.engine.Enable()

	if h.started != 0 {
		t.Errorf("expected no notification when pre-enabled, got %d", h.started)
	}
}

func TestEnableDrainsQueuedData(t *testing.T) {
	h := newHarness(t, false)

	_ = h.engine.Push(marker(3))
	_ = h.engine.Push(marker(6))

	// Enable while draining must not schedule a second buffer
	if err := h.engine.Enable(); err != nil {
		t.Fatalf("enable failed: %v", err)
	}
	if h.device.count() != 1 {
		t.Errorf("expected 1 scheduled buffer, got %d", h.device.count())
	}
	if h.started != 1 {
		t.Errorf("expected 1 notification, got %d", h.started)
	}

	h.device.finish(t)
	if h.device.count() != 2 {
		t.Errorf("expected 2 scheduled buffers, got %d", h.device.count())
	}
}

func TestEnableAfterReset(t *testing.T) {
	h := newHarness(t, false)

	_ = h.engine.Enable()
	h.engine.SetEnabled(false)
	_ = h.engine.Enable()

	if h.started != 2 {
		t.Errorf("expected a notification per enable-from-disabled, got %d", h.started)
	}
}

func TestEngineOpenFailure(t *testing.T) {
	attempts := 0
	openErr := errors.New("no audio device")
	var reported []error

	engine, err := NewEngine(Config{
		Open: func(format audio.Format) (output.Device, error) {
			attempts++
			return nil, openErr
		},
		OnError: func(err error) { reported = append(reported, err) },
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	err = engine.Enable()
	if !errors.Is(err, openErr) {
		t.Fatalf("expected open error, got %v", err)
	}
	if engine.State() != StateUninitialized {
		t.Errorf("expected to stay uninitialized, got %s", engine.State())
	}
	if attempts != 1 {
		t.Errorf("expected a single open attempt, got %d", attempts)
	}
	if len(reported) != 1 {
		t.Errorf("expected error reported once, got %d", len(reported))
	}

	// Data arriving later is queued without another open attempt
	for i := 0; i < 3; i++ {
		if err := engine.OnDataAvailable([]byte{0x01, 0x00}); err != nil {
			t.Errorf("push %d: unexpected error %v", i, err)
		}
	}
	if attempts != 1 {
		t.Errorf("expected no open retry without Enable, got %d attempts", attempts)
	}
	if engine.Stats().QueueDepth != 3 {
		t.Errorf("expected buffers to stay queued, got depth %d", engine.Stats().QueueDepth)
	}

	// Only an explicit Enable tries again
	if err := engine.Enable(); !errors.Is(err, openErr) {
		t.Errorf("expected open error on second enable, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 open attempts after second enable, got %d", attempts)
	}
	if len(reported) != 2 {
		t.Errorf("expected 2 reported errors, got %d", len(reported))
	}
}

func TestEngineOpenRecoversOnEnable(t *testing.T) {
	device := &fakeDevice{}
	fail := true
	started := 0

	engine, err := NewEngine(Config{
		Open: func(format audio.Format) (output.Device, error) {
			if fail {
				return nil, errors.New("no audio device")
			}
			return device, nil
		},
		OnPlaybackStarted: func() { started++ },
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	_ = engine.Push(marker(3))
	_ = engine.Push(marker(5))
	if device.count() != 0 {
		t.Fatalf("expected nothing scheduled while the device is missing, got %d", device.count())
	}

	fail = false
	if err := engine.Enable(); err != nil {
		t.Fatalf("enable failed: %v", err)
	}
	if started != 1 {
		t.Errorf("expected one notification, got %d", started)
	}

	got := device.lengths()
	if len(got) != 1 || got[0] != 3 {
		t.Errorf("expected the oldest queued buffer scheduled, got %v", got)
	}
	if !engine.IsDraining() {
		t.Error("expected engine draining after recovery")
	}
}

func TestEngineStateCallbacksFollowTransitionOrder(t *testing.T) {
	device := &fakeDevice{}

	var mu sync.Mutex
	var states []State
	hold := false
	entered := make(chan struct{})
	release := make(chan struct{})

	engine, err := NewEngine(Config{
		Open: func(format audio.Format) (output.Device, error) {
			return device, nil
		},
		Enabled: true,
		OnStateChange: func(s State) {
			mu.Lock()
			states = append(states, s)
			block := hold && s == StateIdle
			mu.Unlock()
			if block {
				close(entered)
				<-release
			}
		},
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	_ = engine.Push(marker(1))

	mu.Lock()
	hold = true
	mu.Unlock()

	// The completion drains to Idle and its callback stalls
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		device.finish(t)
	}()
	<-entered

	// A push on another goroutine moves to Draining meanwhile
	if err := engine.Push(marker(2)); err != nil {
		t.Fatalf("push failed: %v", err)
	}
	close(release)
	<-finished

	mu.Lock()
	defer mu.Unlock()

	want := []State{StateIdle, StateDraining, StateIdle, StateDraining}
	if len(states) != len(want) {
		t.Fatalf("expected callbacks %v, got %v", want, states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("callback %d: expected %s, got %s", i, want[i], states[i])
		}
	}
	if last := states[len(states)-1]; last != engine.State() {
		t.Errorf("last callback %s does not match engine state %s", last, engine.State())
	}
}

func TestEngineScheduleFailureContinues(t *testing.T) {
	h := newHarness(t, true)

	// A rejected buffer with nothing behind it leaves the engine idle
	h.device.failNext = 1
	_ = h.engine.Push(marker(1))
	if h.engine.State() != StateIdle {
		t.Fatalf("expected idle after rejected buffer, got %s", h.engine.State())
	}

	_ = h.engine.Push(marker(2))
	_ = h.engine.Push(marker(3))
	_ = h.engine.Push(marker(4))

	// Completion of 2 pulls 3, which is rejected; 4 must play straight away
	h.device.failNext = 1
	h.device.finish(t)

	got := h.device.lengths()
	if len(got) != 2 || got[0] != 2 || got[1] != 4 {
		t.Errorf("expected buffers [2 4] scheduled, got %v", got)
	}
	if !h.engine.IsDraining() {
		t.Error("expected engine still draining")
	}

	stats := h.engine.Stats()
	if stats.Failed != 2 {
		t.Errorf("expected 2 failed buffers, got %d", stats.Failed)
	}
	if len(h.errs) != 2 {
		t.Errorf("expected 2 reported errors, got %d", len(h.errs))
	}
}

func TestEngineDispose(t *testing.T) {
	h := newHarness(t, false)

	_ = h.engine.Push(marker(4))
	_ = h.engine.Push(marker(4))

	if err := h.engine.Dispose(); err != nil {
		t.Fatalf("dispose failed: %v", err)
	}
	if h.engine.State() != StateDisposed {
		t.Fatalf("expected disposed, got %s", h.engine.State())
	}

	// The in-flight completion fires after disposal and must be ignored
	h.device.finish(t)

	for i := 0; i < 3; i++ {
		if err := h.engine.Enable(); err != nil {
			t.Errorf("enable after dispose returned error: %v", err)
		}
		if err := h.engine.OnDataAvailable([]byte{0x01, 0x02}); err != nil {
			t.Errorf("data after dispose returned error: %v", err)
		}
		if err := h.engine.Dispose(); err != nil {
			t.Errorf("repeated dispose returned error: %v", err)
		}
	}

	if h.device.count() != 1 {
		t.Errorf("expected no output after dispose, got %d scheduled", h.device.count())
	}
	if h.device.closed != 1 {
		t.Errorf("expected device closed exactly once, got %d", h.device.closed)
	}
	if h.started != 0 {
		t.Errorf("expected no notification after dispose, got %d", h.started)
	}

	stats := h.engine.Stats()
	if stats.Rejected != 3 {
		t.Errorf("expected 3 rejected buffers, got %d", stats.Rejected)
	}
	if stats.QueueDepth != 0 {
		t.Errorf("expected queue cleared, got depth %d", stats.QueueDepth)
	}
}

func TestEngineDisposeBeforeInit(t *testing.T) {
	h := newHarness(t, true)

	if err := h.engine.Dispose(); err != nil {
		t.Fatalf("dispose failed: %v", err)
	}
	_ = h.engine.Push(marker(1))

	if h.opens != 0 {
		t.Errorf("expected no device opened, got %d", h.opens)
	}
	if h.engine.State() != StateDisposed {
		t.Errorf("expected disposed, got %s", h.engine.State())
	}
}

func TestEngineStaleCompletionIgnored(t *testing.T) {
	h := newHarness(t, true)

	_ = h.engine.Push(marker(1))
	_ = h.engine.Push(marker(2))

	h.device.mu.Lock()
	first := h.device.pending[0]
	h.device.mu.Unlock()

	h.device.finish(t)
	// A duplicate completion for the first buffer must not skip the second
	first()

	if h.device.count() != 2 {
		t.Errorf("expected 2 scheduled buffers, got %d", h.device.count())
	}
	if !h.engine.IsDraining() {
		t.Error("expected second buffer still playing")
	}
	if h.engine.Stats().Played != 1 {
		t.Errorf("expected 1 played buffer, got %d", h.engine.Stats().Played)
	}
}

func TestEngineMaxQueueDepth(t *testing.T) {
	device := &fakeDevice{}
	engine, err := NewEngine(Config{
		Open:          func(audio.Format) (output.Device, error) { return device, nil },
		Enabled:       true,
		MaxQueueDepth: 2,
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	// First is scheduled immediately, the next three compete for two slots
	for _, n := range []int{1, 2, 3, 4} {
		_ = engine.Push(marker(n))
	}

	device.finish(t)
	device.finish(t)

	got := device.lengths()
	expected := []int{1, 3, 4}
	if len(got) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("position %d: expected %d, got %d", i, expected[i], got[i])
		}
	}
	if engine.Stats().Dropped != 1 {
		t.Errorf("expected 1 dropped buffer, got %d", engine.Stats().Dropped)
	}
}

func TestEngineStateNotifications(t *testing.T) {
	h := newHarness(t, true)

	_ = h.engine.Push(marker(1))
	h.device.finish(t)
	_ = h.engine.Dispose()

	expected := []State{StateIdle, StateDraining, StateIdle, StateDisposed}
	if len(h.states) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, h.states)
	}
	for i := range expected {
		if h.states[i] != expected[i] {
			t.Errorf("transition %d: expected %s, got %s", i, expected[i], h.states[i])
		}
	}
}

func TestEngineCallbackMayReenter(t *testing.T) {
	device := &fakeDevice{}
	var engine *Engine
	var observed []bool

	engine, err := NewEngine(Config{
		Open: func(audio.Format) (output.Device, error) { return device, nil },
		OnStateChange: func(State) {
			// Would deadlock if callbacks ran under the engine lock
			observed = append(observed, engine.IsDraining())
		},
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	_ = engine.Push(marker(1))
	if len(observed) == 0 {
		t.Error("expected state callbacks")
	}
}

func TestEngineConcurrentProducers(t *testing.T) {
	h := newHarness(t, true)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_ = h.engine.OnDataAvailable([]byte{0x00, 0x00})
			}
		}()
	}
	wg.Wait()

	for h.engine.IsDraining() {
		h.device.finish(t)
	}

	if h.device.count() != 200 {
		t.Errorf("expected 200 scheduled buffers, got %d", h.device.count())
	}
	if h.device.maxActive != 1 {
		t.Errorf("expected at most 1 active buffer, got %d", h.device.maxActive)
	}

	// Sequence numbers follow scheduling order
	h.device.mu.Lock()
	defer h.device.mu.Unlock()
	for i, buf := range h.device.scheduled {
		if buf.Seq != uint64(i+1) {
			t.Fatalf("position %d: expected seq %d, got %d", i, i+1, buf.Seq)
		}
	}
}
