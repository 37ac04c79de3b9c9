package app

import (
	"context"
	"errors"
	"testing"

	"github.com/ItsNotGoodName/x-keyremapper/internal/filter"
	"github.com/ItsNotGoodName/x-keyremapper/internal/keymap"
	"github.com/ItsNotGoodName/x-keyremapper/internal/xwm"
	"github.com/jezek/xgb/xproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentKey struct {
	window xproto.Window
	key    keymap.Key
}

type fakeBridge struct {
	nextFrame   xproto.Window
	createErr   error
	reparentErr error
	grabErr     error

	frames     []xproto.Window
	reparented map[xproto.Window]xproto.Window
	grabbed    map[xproto.Window]keymap.KeyMap
	grabCalls  int
	sent       []sentKey
	focused    []xproto.Window
	resized    map[xproto.Window][2]uint16
	closed     map[xproto.Window]xproto.Window
	destroyed  []xproto.Window

	pids    map[xproto.Window]uint32
	classes map[xproto.Window]string
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		nextFrame:  1000,
		reparented: make(map[xproto.Window]xproto.Window),
		grabbed:    make(map[xproto.Window]keymap.KeyMap),
		resized:    make(map[xproto.Window][2]uint16),
		closed:     make(map[xproto.Window]xproto.Window),
		pids:       make(map[xproto.Window]uint32),
		classes:    make(map[xproto.Window]string),
	}
}

func (f *fakeBridge) CreateWindow(screen int) (xproto.Window, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	frame := f.nextFrame
	f.nextFrame++
	f.frames = append(f.frames, frame)
	return frame, nil
}

func (f *fakeBridge) ReparentWindow(child, parent xproto.Window) error {
	if f.reparentErr != nil {
		return f.reparentErr
	}
	f.reparented[child] = parent
	return nil
}

func (f *fakeBridge) ResizeTo(window xproto.Window, width, height uint16) {
	f.resized[window] = [2]uint16{width, height}
}

func (f *fakeBridge) ResizeToParent(child, parent xproto.Window) {
	f.resized[child] = [2]uint16{640, 480}
}

func (f *fakeBridge) GrabKeys(window xproto.Window, km keymap.KeyMap) error {
	f.grabCalls++
	if f.grabErr != nil {
		return f.grabErr
	}
	f.grabbed[window] = km
	return nil
}

func (f *fakeBridge) SendKeyEvent(window xproto.Window, key keymap.Key) error {
	f.sent = append(f.sent, sentKey{window, key})
	return nil
}

func (f *fakeBridge) WindowPID(window xproto.Window) (uint32, bool) {
	pid, ok := f.pids[window]
	return pid, ok
}

func (f *fakeBridge) WindowClass(window xproto.Window) (string, bool) {
	class, ok := f.classes[window]
	return class, ok
}

func (f *fakeBridge) FocusWindow(window xproto.Window) {
	f.focused = append(f.focused, window)
}

func (f *fakeBridge) NotifyChildShouldClose(child, parent xproto.Window) error {
	f.closed[child] = parent
	return nil
}

func (f *fakeBridge) DestroyWindow(window xproto.Window) error {
	f.destroyed = append(f.destroyed, window)
	return nil
}

var testKeyMap = keymap.New(map[keymap.Key]keymap.Key{
	{Code: 46}: {Code: 48},
})

func acceptAll(filter.WindowInfo) bool { return true }

func newTestModel(accept filter.Filter) (*Model, *fakeBridge) {
	bridge := newFakeBridge()
	return NewModel(bridge, 0, testKeyMap, accept), bridge
}

func TestAdoptionIsFIFOUnderAnyExposeOrder(t *testing.T) {
	m, bridge := newTestModel(acceptAll)

	m.Update(xwm.ReparentNotify{Window: 10})
	m.Update(xwm.ReparentNotify{Window: 11})
	m.Update(xwm.ReparentNotify{Window: 12})
	require.Equal(t, []xproto.Window{1000, 1001, 1002}, bridge.frames)
	assert.Equal(t, []xproto.Window{10, 11, 12}, m.Pending())

	m.Update(xwm.Expose{Parent: 1002})
	m.Update(xwm.Expose{Parent: 1000})
	m.Update(xwm.Expose{Parent: 1001})

	for parent, child := range map[xproto.Window]xproto.Window{1002: 10, 1000: 11, 1001: 12} {
		record, ok := m.Record(parent)
		require.True(t, ok)
		assert.Equal(t, Record{State: Valid, Child: child}, record)
		assert.Equal(t, parent, bridge.reparented[child])
		assert.Equal(t, testKeyMap.Keys(), bridge.grabbed[parent].Keys())
	}
	assert.Empty(t, m.Pending())
	assert.Equal(t, []xproto.Window{10, 11, 12}, bridge.focused)
}

func TestExposeOfAdoptingFrameResizesChild(t *testing.T) {
	m, bridge := newTestModel(acceptAll)

	m.Update(xwm.ReparentNotify{Window: 10})
	m.Update(xwm.Expose{Parent: 1000})
	m.Update(xwm.Expose{Parent: 1000})

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, [2]uint16{640, 480}, bridge.resized[10])
}

func TestExposeWithEmptyQueueIsNoop(t *testing.T) {
	m, bridge := newTestModel(acceptAll)

	m.Update(xwm.Expose{Parent: 1000})

	assert.Zero(t, m.Len())
	assert.Empty(t, bridge.reparented)
	assert.Zero(t, bridge.grabCalls)
}

func TestNoDoubleAdoption(t *testing.T) {
	m, bridge := newTestModel(acceptAll)

	m.Update(xwm.ReparentNotify{Window: 10})
	m.Update(xwm.ReparentNotify{Window: 10})
	assert.Len(t, bridge.frames, 1)
	assert.Equal(t, []xproto.Window{10}, m.Pending())

	m.Update(xwm.Expose{Parent: 1000})

	// Reparenting into the frame is reported again.
	m.Update(xwm.ReparentNotify{Window: 10})
	assert.Len(t, bridge.frames, 1)
	assert.Empty(t, m.Pending())
	assert.Equal(t, 1, m.Len())
}

func TestOwnFramesAreNotAdopted(t *testing.T) {
	m, bridge := newTestModel(acceptAll)

	m.Update(xwm.ReparentNotify{Window: 10})
	m.Update(xwm.ReparentNotify{Window: 1000})

	assert.Len(t, bridge.frames, 1)
	assert.Equal(t, []xproto.Window{10}, m.Pending())
}

func TestCreateWindowFailureQueuesNothing(t *testing.T) {
	m, bridge := newTestModel(acceptAll)
	bridge.createErr = errors.New("BadAlloc")

	m.Update(xwm.ReparentNotify{Window: 10})

	assert.Empty(t, m.Pending())
}

func TestKeyRemap(t *testing.T) {
	m, bridge := newTestModel(acceptAll)

	m.Update(xwm.ReparentNotify{Window: 10})
	m.Update(xwm.Expose{Parent: 1000})

	m.Update(xwm.KeyPress{Key: keymap.Key{Code: 46}, Parent: 1000})
	m.Update(xwm.KeyPress{Key: keymap.Key{Code: 30, State: xproto.ModMaskShift}, Parent: 1000})

	assert.Equal(t, []sentKey{
		{10, keymap.Key{Code: 48}},
		{10, keymap.Key{Code: 30, State: xproto.ModMaskShift}},
	}, bridge.sent)
}

func TestKeyPressOnUnknownFrameIsDropped(t *testing.T) {
	m, bridge := newTestModel(acceptAll)

	m.Update(xwm.KeyPress{Key: keymap.Key{Code: 46}, Parent: 1000})

	assert.Empty(t, bridge.sent)
}

func TestTwoPhaseTeardown(t *testing.T) {
	m, bridge := newTestModel(acceptAll)

	m.Update(xwm.ReparentNotify{Window: 10})
	m.Update(xwm.Expose{Parent: 1000})

	m.Update(xwm.DestroyRequest{Window: 1000})
	record, ok := m.Record(1000)
	require.True(t, ok)
	assert.Equal(t, Record{State: Exiting, Child: 10}, record)
	assert.Equal(t, xproto.Window(1000), bridge.closed[10])

	// Exiting records no longer forward anything.
	m.Update(xwm.KeyPress{Key: keymap.Key{Code: 46}, Parent: 1000})
	m.Update(xwm.ConfigureNotify{Parent: 1000, Width: 10, Height: 10})
	assert.Empty(t, bridge.sent)
	assert.NotContains(t, bridge.resized, xproto.Window(10))

	// A second close request does not close twice.
	delete(bridge.closed, 10)
	m.Update(xwm.DestroyRequest{Window: 1000})
	assert.Empty(t, bridge.closed)

	m.Update(xwm.DestroyNotify{Window: 99})
	m.Update(xwm.DestroyNotify{Window: 1000})
	_, ok = m.Record(1000)
	assert.True(t, ok)

	m.Update(xwm.DestroyNotify{Window: 10})
	_, ok = m.Record(1000)
	assert.False(t, ok)
	assert.Zero(t, m.Len())
	assert.Equal(t, []xproto.Window{1000}, bridge.destroyed)
}

func TestFailedAdoptionCanBeTornDown(t *testing.T) {
	tests := []struct {
		name  string
		setup func(b *fakeBridge)
	}{
		{"reparent", func(b *fakeBridge) { b.reparentErr = errors.New("BadMatch") }},
		{"grab", func(b *fakeBridge) { b.grabErr = errors.New("BadAccess") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, bridge := newTestModel(acceptAll)
			tt.setup(bridge)

			m.Update(xwm.ReparentNotify{Window: 10})
			m.Update(xwm.Expose{Parent: 1000})

			record, ok := m.Record(1000)
			require.True(t, ok)
			assert.Equal(t, Record{State: Valid, Child: 10}, record)
			assert.Equal(t, []xproto.Window{10}, bridge.focused)

			m.Update(xwm.DestroyRequest{Window: 1000})
			assert.Equal(t, xproto.Window(1000), bridge.closed[10])

			m.Update(xwm.DestroyNotify{Window: 10})
			assert.Zero(t, m.Len())
			assert.Equal(t, []xproto.Window{1000}, bridge.destroyed)
		})
	}
}

func TestDestroyNotifyOfValidChildKeepsRecord(t *testing.T) {
	m, _ := newTestModel(acceptAll)

	m.Update(xwm.ReparentNotify{Window: 10})
	m.Update(xwm.Expose{Parent: 1000})
	m.Update(xwm.DestroyNotify{Window: 10})

	assert.Equal(t, 1, m.Len())
}

func TestDestroyNotifyDropsPendingWindow(t *testing.T) {
	m, bridge := newTestModel(acceptAll)

	m.Update(xwm.ReparentNotify{Window: 10})
	m.Update(xwm.ReparentNotify{Window: 11})
	m.Update(xwm.DestroyNotify{Window: 10})
	assert.Equal(t, []xproto.Window{11}, m.Pending())

	m.Update(xwm.Expose{Parent: 1000})
	assert.Equal(t, xproto.Window(1000), bridge.reparented[11])
}

func TestDestroyedPendingWindowReleasesFrame(t *testing.T) {
	m, bridge := newTestModel(acceptAll)

	m.Update(xwm.ReparentNotify{Window: 10})
	m.Update(xwm.ReparentNotify{Window: 11})
	m.Update(xwm.DestroyNotify{Window: 10})
	assert.Equal(t, []xproto.Window{1001}, bridge.destroyed)

	// The released frame may already have an expose queued.
	m.Update(xwm.Expose{Parent: 1001})
	assert.Zero(t, m.Len())
	assert.Equal(t, []xproto.Window{11}, m.Pending())

	m.Update(xwm.Expose{Parent: 1000})
	record, ok := m.Record(1000)
	require.True(t, ok)
	assert.Equal(t, Record{State: Valid, Child: 11}, record)
	assert.Empty(t, m.Pending())

	// A new window gets a new frame.
	m.Update(xwm.ReparentNotify{Window: 12})
	m.Update(xwm.Expose{Parent: 1002})
	record, ok = m.Record(1002)
	require.True(t, ok)
	assert.Equal(t, xproto.Window(12), record.Child)
}

func TestConfigureNotifyResizesChild(t *testing.T) {
	m, bridge := newTestModel(acceptAll)

	m.Update(xwm.ReparentNotify{Window: 10})
	m.Update(xwm.Expose{Parent: 1000})
	m.Update(xwm.ConfigureNotify{Parent: 1000, Width: 800, Height: 600})

	assert.Equal(t, [2]uint16{800, 600}, bridge.resized[10])
}

func TestParentFocusFocusesChild(t *testing.T) {
	m, bridge := newTestModel(acceptAll)

	m.Update(xwm.ReparentNotify{Window: 10})
	m.Update(xwm.Expose{Parent: 1000})
	m.Update(xwm.ParentFocus{Parent: 1000})
	m.Update(xwm.ParentFocus{Parent: 2000})

	assert.Equal(t, []xproto.Window{10, 10}, bridge.focused)
}

func TestFilterByPID(t *testing.T) {
	m, bridge := newTestModel(filter.All(filter.PID(42), filter.Any()))
	bridge.pids[10] = 42
	bridge.pids[11] = 43

	m.Update(xwm.ReparentNotify{Window: 10})
	m.Update(xwm.ReparentNotify{Window: 11})
	m.Update(xwm.ReparentNotify{Window: 12})

	assert.Equal(t, []xproto.Window{10}, m.Pending())
}

func TestXTermScenario(t *testing.T) {
	m, bridge := newTestModel(filter.Any(filter.Class("xterm")))
	bridge.classes[10] = "xterm"
	bridge.classes[20] = "other"

	m.Update(xwm.ReparentNotify{Window: 20})
	assert.Empty(t, bridge.frames)
	assert.Empty(t, m.Pending())
	assert.Empty(t, bridge.grabbed)

	m.Update(xwm.ReparentNotify{Window: 10})
	require.Len(t, bridge.frames, 1)
	m.Update(xwm.Expose{Parent: bridge.frames[0]})
	m.Update(xwm.KeyPress{Key: keymap.Key{Code: 46, State: 0}, Parent: bridge.frames[0]})

	assert.Equal(t, []sentKey{{10, keymap.Key{Code: 48, State: 0}}}, bridge.sent)
}

func TestSetKeyMapRegrabsValidFrames(t *testing.T) {
	m, bridge := newTestModel(acceptAll)

	m.Update(xwm.ReparentNotify{Window: 10})
	m.Update(xwm.ReparentNotify{Window: 11})
	m.Update(xwm.Expose{Parent: 1000})
	m.Update(xwm.Expose{Parent: 1001})
	m.Update(xwm.DestroyRequest{Window: 1001})

	km := keymap.New(map[keymap.Key]keymap.Key{{Code: 47}: {Code: 49}})
	m.SetKeyMap(km)

	assert.Equal(t, km.Keys(), bridge.grabbed[1000].Keys())
	assert.Equal(t, testKeyMap.Keys(), bridge.grabbed[1001].Keys())

	m.Update(xwm.KeyPress{Key: keymap.Key{Code: 47}, Parent: 1000})
	m.Update(xwm.KeyPress{Key: keymap.Key{Code: 46}, Parent: 1000})
	assert.Equal(t, []sentKey{
		{10, keymap.Key{Code: 49}},
		{10, keymap.Key{Code: 46}},
	}, bridge.sent)
}

type fakeSource struct {
	events []xwm.Event
	waits  int
}

var errSourceDrained = errors.New("drained")

func (s *fakeSource) WaitNextEvent(ctx context.Context) (xwm.Event, error) {
	s.waits++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.events) == 0 {
		return nil, errSourceDrained
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

type fakeProcess struct {
	exitAfter int
	checks    int
}

func (p *fakeProcess) HasExited() bool {
	p.checks++
	return p.checks > p.exitAfter
}

func TestLoopReturnsSourceError(t *testing.T) {
	m, _ := newTestModel(acceptAll)
	src := &fakeSource{events: []xwm.Event{
		xwm.ReparentNotify{Window: 10},
		xwm.Expose{Parent: 1000},
	}}

	err := NewLoop(src, m).Run(context.Background())

	assert.ErrorIs(t, err, errSourceDrained)
	assert.Equal(t, 1, m.Len())
}

func TestLoopStopsOnContext(t *testing.T) {
	m, _ := newTestModel(acceptAll)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewLoop(&fakeSource{}, m).Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestChildLoopStopsWhenProcessExits(t *testing.T) {
	m, _ := newTestModel(acceptAll)
	src := &fakeSource{events: []xwm.Event{
		xwm.ReparentNotify{Window: 10},
		xwm.ReparentNotify{Window: 11},
		xwm.ReparentNotify{Window: 12},
	}}

	err := NewChildLoop(src, m, &fakeProcess{exitAfter: 2}).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, src.waits)
	assert.Equal(t, []xproto.Window{10, 11}, m.Pending())
}

func TestLoopAppliesKeyMap(t *testing.T) {
	m, bridge := newTestModel(acceptAll)
	m.Update(xwm.ReparentNotify{Window: 10})
	m.Update(xwm.Expose{Parent: 1000})

	km := keymap.New(map[keymap.Key]keymap.Key{{Code: 47}: {Code: 49}})
	keyMapC := make(chan keymap.KeyMap, 1)
	keyMapC <- km

	loop := NewLoop(&fakeSource{events: []xwm.Event{
		xwm.KeyPress{Key: keymap.Key{Code: 47}, Parent: 1000},
	}}, m)
	loop.KeyMapC = keyMapC

	assert.ErrorIs(t, loop.Run(context.Background()), errSourceDrained)
	assert.Equal(t, km.Keys(), bridge.grabbed[1000].Keys())
	assert.Equal(t, []sentKey{{10, keymap.Key{Code: 49}}}, bridge.sent)
}
