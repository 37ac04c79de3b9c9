package xwm

import (
	"github.com/ItsNotGoodName/x-keyremapper/internal/keymap"
	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// Event is one of KeyPress, Expose, ConfigureNotify, ReparentNotify,
// DestroyRequest, DestroyNotify or ParentFocus.
type Event interface {
	event()
}

type (
	// KeyPress is a grabbed chord pressed while Parent or one of its children has focus.
	KeyPress struct {
		Key    keymap.Key
		Parent xproto.Window
	}
	Expose struct {
		Parent xproto.Window
	}
	ConfigureNotify struct {
		Parent xproto.Window
		Width  uint16
		Height uint16
	}
	// ReparentNotify is seen for top level windows when something reparents them.
	ReparentNotify struct {
		Window xproto.Window
	}
	// DestroyRequest is a WM_DELETE_WINDOW message sent to Window.
	DestroyRequest struct {
		Window xproto.Window
	}
	DestroyNotify struct {
		Window xproto.Window
	}
	ParentFocus struct {
		Parent xproto.Window
	}
)

func (KeyPress) event()        {}
func (Expose) event()          {}
func (ConfigureNotify) event() {}
func (ReparentNotify) event()  {}
func (DestroyRequest) event()  {}
func (DestroyNotify) event()   {}
func (ParentFocus) event()     {}

// decode maps a raw X event to an Event, reporting false for events that are skipped.
func (a atoms) decode(xev xgb.Event) (Event, bool) {
	switch ev := xev.(type) {
	case xproto.KeyPressEvent:
		return KeyPress{
			Key:    keymap.Key{Code: ev.Detail, State: ev.State},
			Parent: ev.Event,
		}, true
	case xproto.ExposeEvent:
		return Expose{Parent: ev.Window}, true
	case xproto.ConfigureNotifyEvent:
		return ConfigureNotify{Parent: ev.Window, Width: ev.Width, Height: ev.Height}, true
	case xproto.ReparentNotifyEvent:
		return ReparentNotify{Window: ev.Window}, true
	case xproto.DestroyNotifyEvent:
		return DestroyNotify{Window: ev.Window}, true
	case xproto.FocusInEvent:
		// Our own reparenting and key grabs move focus around inside the frame.
		if ev.Detail == xproto.NotifyDetailInferior ||
			ev.Mode == xproto.NotifyModeGrab ||
			ev.Mode == xproto.NotifyModeUngrab {
			return nil, false
		}
		return ParentFocus{Parent: ev.Event}, true
	case xproto.ClientMessageEvent:
		if ev.Type != a.wmProtocols || ev.Format != 32 || len(ev.Data.Data32) == 0 {
			return nil, false
		}
		switch xproto.Atom(ev.Data.Data32[0]) {
		case a.wmDeleteWindow:
			return DestroyRequest{Window: ev.Window}, true
		case a.wmTakeFocus:
			return ParentFocus{Parent: ev.Window}, true
		}
		return nil, false
	default:
		return nil, false
	}
}
