package app

import (
	"log/slog"
	"slices"

	"github.com/ItsNotGoodName/x-keyremapper/internal/filter"
	"github.com/ItsNotGoodName/x-keyremapper/internal/keymap"
	"github.com/ItsNotGoodName/x-keyremapper/internal/xwm"
	"github.com/jezek/xgb/xproto"
)

// Bridge is the part of xwm.Bridge the Model drives.
type Bridge interface {
	CreateWindow(screen int) (xproto.Window, error)
	ReparentWindow(child, parent xproto.Window) error
	ResizeTo(window xproto.Window, width, height uint16)
	ResizeToParent(child, parent xproto.Window)
	GrabKeys(window xproto.Window, km keymap.KeyMap) error
	SendKeyEvent(window xproto.Window, key keymap.Key) error
	WindowPID(window xproto.Window) (uint32, bool)
	WindowClass(window xproto.Window) (string, bool)
	FocusWindow(window xproto.Window)
	NotifyChildShouldClose(child, parent xproto.Window) error
	DestroyWindow(window xproto.Window) error
}

type RecordState int

const (
	// Valid forwards resizes, focus and keys from the frame to the child.
	Valid RecordState = iota
	// Exiting waits for the child's destroy notification.
	Exiting
)

func (s RecordState) String() string {
	switch s {
	case Valid:
		return "valid"
	case Exiting:
		return "exiting"
	default:
		return "unknown"
	}
}

// Record is the child adopted by a frame.
type Record struct {
	State RecordState
	Child xproto.Window
}

// Model pairs frames with the windows they adopt.
// It must only be used from one goroutine.
type Model struct {
	bridge Bridge
	screen int
	keyMap keymap.KeyMap
	accept filter.Filter

	records map[xproto.Window]Record
	pending []xproto.Window
	frames  map[xproto.Window]struct{}
	// unclaimed are frames waiting for their first expose, oldest first.
	// There is one for every pending window.
	unclaimed []xproto.Window
}

func NewModel(bridge Bridge, screen int, km keymap.KeyMap, accept filter.Filter) *Model {
	return &Model{
		bridge:    bridge,
		screen:    screen,
		keyMap:    km,
		accept:    accept,
		records:   make(map[xproto.Window]Record),
		pending:   []xproto.Window{},
		frames:    make(map[xproto.Window]struct{}),
		unclaimed: []xproto.Window{},
	}
}

func (m *Model) Update(ev xwm.Event) {
	switch ev := ev.(type) {
	case xwm.Expose:
		m.expose(ev.Parent)
	case xwm.ConfigureNotify:
		m.configureNotify(ev.Parent, ev.Width, ev.Height)
	case xwm.ReparentNotify:
		m.reparentNotify(ev.Window)
	case xwm.KeyPress:
		m.keyPress(ev.Parent, ev.Key)
	case xwm.DestroyRequest:
		m.destroyRequest(ev.Window)
	case xwm.DestroyNotify:
		m.destroyNotify(ev.Window)
	case xwm.ParentFocus:
		m.parentFocus(ev.Parent)
	default:
		slog.Debug("Unknown event", "event", ev)
	}
}

func (m *Model) expose(parent xproto.Window) {
	if record, ok := m.records[parent]; ok {
		if record.State == Valid {
			m.bridge.ResizeToParent(record.Child, parent)
		}
		return
	}

	// Released frames can still have an expose queued.
	if _, ok := m.frames[parent]; !ok {
		slog.Debug("Expose of unknown window", "parent", parent)
		return
	}

	if len(m.pending) == 0 {
		slog.Debug("Expose without pending window", "parent", parent)
		return
	}

	child := m.pending[0]
	m.pending = m.pending[1:]
	m.unclaimed = deleteWindow(m.unclaimed, parent)

	m.records[parent] = Record{State: Valid, Child: child}

	if err := m.bridge.ReparentWindow(child, parent); err != nil {
		slog.Error("Failed to reparent window", "child", child, "parent", parent, "error", err)
	}

	if err := m.bridge.GrabKeys(parent, m.keyMap); err != nil {
		slog.Error("Failed to grab keys", "parent", parent, "error", err)
	}

	m.bridge.FocusWindow(child)

	slog.Info("Adopted window", "child", child, "parent", parent)
}

func (m *Model) configureNotify(parent xproto.Window, width, height uint16) {
	record, ok := m.records[parent]
	if !ok || record.State != Valid {
		return
	}

	m.bridge.ResizeTo(record.Child, width, height)
}

func (m *Model) reparentNotify(window xproto.Window) {
	// A window manager reparenting one of our frames.
	if _, ok := m.frames[window]; ok {
		return
	}

	info := m.windowInfo(window)
	if !m.accept(info) {
		slog.Debug("Window rejected by filter", "window", window, "info", info)
		return
	}

	m.adopt(window)
}

func (m *Model) windowInfo(window xproto.Window) filter.WindowInfo {
	var info filter.WindowInfo
	if pid, ok := m.bridge.WindowPID(window); ok {
		info.PID = &pid
	}
	if class, ok := m.bridge.WindowClass(window); ok {
		info.Class = &class
	}
	return info
}

func (m *Model) adopt(window xproto.Window) {
	if slices.Contains(m.pending, window) || m.hasChild(window) {
		slog.Debug("Window already adopted", "window", window)
		return
	}

	frame, err := m.bridge.CreateWindow(m.screen)
	if err != nil {
		slog.Error("Failed to create frame", "window", window, "error", err)
		return
	}

	m.frames[frame] = struct{}{}
	m.unclaimed = append(m.unclaimed, frame)
	m.pending = append(m.pending, window)

	slog.Debug("Created frame", "window", window, "frame", frame)
}

func (m *Model) hasChild(window xproto.Window) bool {
	for _, record := range m.records {
		if record.Child == window {
			return true
		}
	}
	return false
}

func (m *Model) keyPress(parent xproto.Window, key keymap.Key) {
	to, ok := m.keyMap.Mapped(key)
	if !ok {
		to = key
	}

	record, ok := m.records[parent]
	if !ok || record.State != Valid {
		slog.Debug("Dropped key", "parent", parent, "key", key)
		return
	}

	slog.Debug("Forwarding key", "from", key, "to", to, "child", record.Child)

	if err := m.bridge.SendKeyEvent(record.Child, to); err != nil {
		slog.Error("Failed to send key", "child", record.Child, "key", to, "error", err)
	}
}

func (m *Model) destroyRequest(window xproto.Window) {
	record, ok := m.records[window]
	if !ok || record.State != Valid {
		return
	}

	m.records[window] = Record{State: Exiting, Child: record.Child}

	if err := m.bridge.NotifyChildShouldClose(record.Child, window); err != nil {
		slog.Warn("Failed to close window", "child", record.Child, "parent", window, "error", err)
	}
}

func (m *Model) destroyNotify(window xproto.Window) {
	for parent, record := range m.records {
		if record.State == Exiting && record.Child == window {
			delete(m.records, parent)
			delete(m.frames, parent)
			// Usually already gone, unless the child could not be detached.
			if err := m.bridge.DestroyWindow(parent); err != nil {
				slog.Debug("Failed to destroy frame", "parent", parent, "error", err)
			}
			slog.Info("Released window", "child", window, "parent", parent)
		}
	}

	// A window can be destroyed before a frame is ready for it.
	if i := slices.Index(m.pending, window); i >= 0 {
		m.pending = slices.Delete(m.pending, i, i+1)
		m.releaseFrame()
	}

	delete(m.frames, window)
	m.unclaimed = deleteWindow(m.unclaimed, window)
}

// releaseFrame destroys the newest unclaimed frame.
func (m *Model) releaseFrame() {
	n := len(m.unclaimed)
	if n == 0 {
		return
	}

	frame := m.unclaimed[n-1]
	m.unclaimed = m.unclaimed[:n-1]
	delete(m.frames, frame)

	if err := m.bridge.DestroyWindow(frame); err != nil {
		slog.Warn("Failed to destroy frame", "frame", frame, "error", err)
	}
}

func deleteWindow(windows []xproto.Window, window xproto.Window) []xproto.Window {
	if i := slices.Index(windows, window); i >= 0 {
		return slices.Delete(windows, i, i+1)
	}
	return windows
}

func (m *Model) parentFocus(parent xproto.Window) {
	record, ok := m.records[parent]
	if !ok || record.State != Valid {
		return
	}

	m.bridge.FocusWindow(record.Child)
}

// SetKeyMap swaps the key map and grabs it on every adopting frame.
func (m *Model) SetKeyMap(km keymap.KeyMap) {
	m.keyMap = km

	for parent, record := range m.records {
		if record.State != Valid {
			continue
		}
		if err := m.bridge.GrabKeys(parent, km); err != nil {
			slog.Error("Failed to grab keys", "parent", parent, "error", err)
		}
	}
}

func (m *Model) Record(parent xproto.Window) (Record, bool) {
	record, ok := m.records[parent]
	return record, ok
}

// Pending returns the windows waiting for a frame, oldest first.
func (m *Model) Pending() []xproto.Window {
	return slices.Clone(m.pending)
}

// Len returns the number of records.
func (m *Model) Len() int {
	return len(m.records)
}
