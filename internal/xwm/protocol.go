package xwm

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/ItsNotGoodName/x-keyremapper/internal/keymap"
	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// FrameClass is the WM_CLASS instance and class of frames.
var FrameClass = [2]string{"x-keyremapper", "X-keyremapper"}

type atoms struct {
	wmProtocols    xproto.Atom
	wmDeleteWindow xproto.Atom
	wmTakeFocus    xproto.Atom
	netWMPID       xproto.Atom
}

func internAtoms(conn *xgb.Conn) (atoms, error) {
	var a atoms
	for _, atom := range []struct {
		name string
		dst  *xproto.Atom
	}{
		{"WM_PROTOCOLS", &a.wmProtocols},
		{"WM_DELETE_WINDOW", &a.wmDeleteWindow},
		{"WM_TAKE_FOCUS", &a.wmTakeFocus},
		{"_NET_WM_PID", &a.netWMPID},
	} {
		r, err := xproto.InternAtom(conn, false, uint16(len(atom.name)), atom.name).Reply()
		if err != nil {
			return atoms{}, fmt.Errorf("intern atom %s: %w", atom.name, err)
		}
		*atom.dst = r.Atom
	}
	return a, nil
}

func (b *Bridge) setFrameProperties(window xproto.Window) error {
	class := FrameClass[0] + "\x00" + FrameClass[1] + "\x00"
	if err := xproto.ChangePropertyChecked(b.conn, xproto.PropModeReplace, window,
		xproto.AtomWmClass, xproto.AtomString,
		8, uint32(len(class)), []byte(class)).Check(); err != nil {
		return err
	}

	protocols := make([]byte, 8)
	xgb.Put32(protocols[0:], uint32(b.atoms.wmDeleteWindow))
	xgb.Put32(protocols[4:], uint32(b.atoms.wmTakeFocus))
	return xproto.ChangePropertyChecked(b.conn, xproto.PropModeReplace, window,
		b.atoms.wmProtocols, xproto.AtomAtom,
		32, 2, protocols).Check()
}

func (b *Bridge) sendProtocolMessage(window xproto.Window, atom xproto.Atom) error {
	return xproto.SendEventChecked(b.conn, false, window, xproto.EventMaskNoEvent,
		string(xproto.ClientMessageEvent{
			Format: 32,
			Window: window,
			Type:   b.atoms.wmProtocols,
			Data: xproto.ClientMessageDataUnionData32New([]uint32{
				uint32(atom),
				uint32(xproto.TimeCurrentTime),
				0,
				0,
				0,
			}),
		}.Bytes()),
	).Check()
}

// SendKeyEvent delivers a synthetic key press of key straight to window.
func (b *Bridge) SendKeyEvent(window xproto.Window, key keymap.Key) error {
	e := xproto.KeyPressEvent{
		Detail:     key.Code,
		Time:       xproto.TimeCurrentTime,
		Root:       xproto.Setup(b.conn).DefaultScreen(b.conn).Root,
		Event:      window,
		Child:      xproto.WindowNone,
		RootX:      1,
		RootY:      1,
		EventX:     1,
		EventY:     1,
		State:      key.State,
		SameScreen: true,
	}
	return xproto.SendEventChecked(b.conn, false, window, xproto.EventMaskKeyPress, string(e.Bytes())).Check()
}

func (b *Bridge) FocusWindow(window xproto.Window) {
	xproto.SetInputFocus(b.conn, xproto.InputFocusPointerRoot, window, xproto.TimeCurrentTime)
}

// WindowPID reads _NET_WM_PID.
func (b *Bridge) WindowPID(window xproto.Window) (uint32, bool) {
	prop, err := xproto.GetProperty(b.conn, false, window, b.atoms.netWMPID,
		xproto.AtomCardinal, 0, 1).Reply()
	if err != nil {
		slog.Debug("Failed to get pid", "window", window, "error", err)
		return 0, false
	}
	return parsePID(prop)
}

// WindowClass reads the instance part of WM_CLASS.
func (b *Bridge) WindowClass(window xproto.Window) (string, bool) {
	prop, err := xproto.GetProperty(b.conn, false, window, xproto.AtomWmClass,
		xproto.AtomString, 0, 64).Reply()
	if err != nil {
		slog.Debug("Failed to get class", "window", window, "error", err)
		return "", false
	}
	return parseClass(prop)
}

func parsePID(prop *xproto.GetPropertyReply) (uint32, bool) {
	if prop == nil || prop.Format != 32 || len(prop.Value) < 4 {
		return 0, false
	}
	return xgb.Get32(prop.Value), true
}

func parseClass(prop *xproto.GetPropertyReply) (string, bool) {
	if prop == nil || prop.Format != 8 {
		return "", false
	}
	value := prop.Value
	if i := bytes.IndexByte(value, 0); i >= 0 {
		value = value[:i]
	}
	if len(value) == 0 {
		return "", false
	}
	return string(value), true
}
