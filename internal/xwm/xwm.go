// Package xwm owns the X connection and translates between X11 and the events and
// commands of window adoption.
package xwm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ItsNotGoodName/x-keyremapper/internal/keymap"
	"github.com/ItsNotGoodName/x-keyremapper/internal/xcursor"
	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

var (
	ErrConnectionFailed = errors.New("x connection failed")
	ErrConnectionClosed = errors.New("x connection closed")
	ErrUnknownFrame     = errors.New("unknown frame")
)

// Bridge is the only user of the X connection. It is not safe for concurrent use,
// apart from the event pump it starts.
type Bridge struct {
	conn    *xgb.Conn
	atoms   atoms
	cursor  xproto.Cursor
	grabs   *grabs
	screens *screens

	// frames maps live frames to their root.
	frames map[xproto.Window]xproto.Window

	eventC chan xgb.Event
	doneC  chan struct{}
	closed bool
}

func Init() (*Bridge, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	atoms, err := internAtoms(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	cursor, err := xcursor.CreateCursor(conn, xcursor.LeftPtr)
	if err != nil {
		slog.Warn("Failed to create frame cursor", "error", err)
		cursor = 0
	}

	b := &Bridge{
		conn:   conn,
		atoms:  atoms,
		cursor: cursor,
		frames: make(map[xproto.Window]xproto.Window),
		eventC: make(chan xgb.Event),
		doneC:  make(chan struct{}),
	}
	b.grabs = newGrabs(b.grabKey, b.ungrabKey)
	b.screens = newScreens(b.selectSubstructure, b.deselectSubstructure)

	go b.receiveEvents()

	return b, nil
}

// receiveEvents forwards raw events so that WaitNextEvent can honor a context.
func (b *Bridge) receiveEvents() {
	defer close(b.eventC)
	slog := slog.With("func", "xwm.Bridge.receiveEvents")

	for {
		// WaitForEvent either returns an event or an error and never both.
		// If both are nil, then the connection is closed.
		//
		// An error can only be seen here as a response to an unchecked
		// request, which are all best effort.
		ev, err := b.conn.WaitForEvent()
		if ev == nil && err == nil {
			slog.Debug("exit: no event or error")
			return
		}

		if err != nil {
			slog.Debug("Unchecked request failed", "error", err)
			continue
		}

		select {
		case <-b.doneC:
			return
		case b.eventC <- ev:
		}
	}
}

// WaitNextEvent blocks until an event of interest arrives.
func (b *Bridge) WaitNextEvent(ctx context.Context) (Event, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case xev, ok := <-b.eventC:
			if !ok {
				return nil, ErrConnectionClosed
			}

			ev, ok := b.atoms.decode(xev)
			if !ok {
				continue
			}

			return ev, nil
		}
	}
}

func (b *Bridge) DefaultScreen() int {
	return b.conn.DefaultScreen
}

func (b *Bridge) screenInfo(screen int) (*xproto.ScreenInfo, error) {
	setup := xproto.Setup(b.conn)
	if screen < 0 || screen >= len(setup.Roots) {
		return nil, fmt.Errorf("screen %d: not found", screen)
	}
	return &setup.Roots[screen], nil
}

// ListenForWindowCreation subscribes to structural changes below the screen root.
// Calling it again for the same screen does nothing.
func (b *Bridge) ListenForWindowCreation(screen int) error {
	info, err := b.screenInfo(screen)
	if err != nil {
		return err
	}

	return b.screens.add(screen, info.Root)
}

func (b *Bridge) selectSubstructure(root xproto.Window) error {
	return xproto.ChangeWindowAttributesChecked(b.conn, root, xproto.CwEventMask,
		[]uint32{xproto.EventMaskSubstructureNotify}).Check()
}

func (b *Bridge) deselectSubstructure(root xproto.Window) {
	if err := xproto.ChangeWindowAttributesChecked(b.conn, root, xproto.CwEventMask,
		[]uint32{xproto.EventMaskNoEvent}).Check(); err != nil {
		slog.Debug("Failed to release root", "root", root, "error", err)
	}
}

// GrabKeys routes every input chord of km on window to this connection.
// Keys grabbed for a previous key map on window are released first.
func (b *Bridge) GrabKeys(window xproto.Window, km keymap.KeyMap) error {
	return b.grabs.replace(window, km)
}

func (b *Bridge) grabKey(window xproto.Window, key keymap.Key) error {
	return xproto.GrabKeyChecked(b.conn, false, window, key.State, key.Code,
		xproto.GrabModeAsync, xproto.GrabModeAsync).Check()
}

func (b *Bridge) ungrabKey(window xproto.Window, key keymap.Key) {
	if err := xproto.UngrabKeyChecked(b.conn, key.Code, window, key.State).Check(); err != nil {
		slog.Debug("Failed to ungrab key", "window", window, "key", key, "error", err)
	}
}

// Close releases every key grab and root subscription, then the connection.
func (b *Bridge) Close() {
	if b.closed {
		return
	}
	b.closed = true

	b.grabs.release()
	b.screens.release()
	if b.cursor != 0 {
		xcursor.FreeCursor(b.conn, b.cursor)
	}

	close(b.doneC)
	b.conn.Close()
}
