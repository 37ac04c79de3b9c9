package xwm

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jezek/xgb/xproto"
)

// ReparentDelay lets the server settle a reparent before the child is configured.
var ReparentDelay = time.Millisecond

const frameEventMask = xproto.EventMaskStructureNotify |
	xproto.EventMaskExposure |
	xproto.EventMaskFocusChange

// CreateWindow creates and maps a frame on the screen root.
// The frame announces WM_DELETE_WINDOW and WM_TAKE_FOCUS support.
func (b *Bridge) CreateWindow(screen int) (xproto.Window, error) {
	info, err := b.screenInfo(screen)
	if err != nil {
		return 0, err
	}

	wid, err := xproto.NewWindowId(b.conn)
	if err != nil {
		return 0, err
	}

	mask := uint32(xproto.CwBackPixel | xproto.CwEventMask)
	values := []uint32{info.BlackPixel, frameEventMask}
	if b.cursor != 0 {
		mask |= xproto.CwCursor
		values = append(values, uint32(b.cursor))
	}

	if err := xproto.CreateWindowChecked(b.conn, info.RootDepth,
		wid, info.Root,
		0, 0, 1, 1, 0,
		xproto.WindowClassInputOutput, info.RootVisual,
		mask, values).Check(); err != nil {
		return 0, err
	}

	if err := b.setFrameProperties(wid); err != nil {
		xproto.DestroyWindow(b.conn, wid)
		return 0, err
	}

	if err := xproto.MapWindowChecked(b.conn, wid).Check(); err != nil {
		xproto.DestroyWindow(b.conn, wid)
		return 0, err
	}

	b.frames[wid] = info.Root

	return wid, nil
}

// ReparentWindow moves child into the top left corner of parent.
// On failure child is mapped again where it was.
func (b *Bridge) ReparentWindow(child, parent xproto.Window) error {
	xproto.UnmapWindow(b.conn, child)
	xproto.MapWindow(b.conn, parent)
	b.conn.Sync()

	// The server hands child back to root if this connection dies.
	if err := xproto.ChangeSaveSetChecked(b.conn, xproto.SetModeInsert, child).Check(); err != nil {
		slog.Debug("Failed to add window to save set", "window", child, "error", err)
	}

	if err := xproto.ReparentWindowChecked(b.conn, child, parent, 0, 0).Check(); err != nil {
		xproto.ChangeSaveSet(b.conn, xproto.SetModeDelete, child)
		xproto.MapWindow(b.conn, child)
		return err
	}
	xproto.MapWindow(b.conn, child)

	time.Sleep(ReparentDelay)
	b.conn.Sync()

	return nil
}

func (b *Bridge) ResizeTo(window xproto.Window, width, height uint16) {
	xproto.ConfigureWindow(b.conn, window,
		xproto.ConfigWindowWidth|xproto.ConfigWindowHeight,
		[]uint32{uint32(width), uint32(height)})
}

// ResizeToParent gives child the size of parent.
func (b *Bridge) ResizeToParent(child, parent xproto.Window) {
	geom, err := xproto.GetGeometry(b.conn, xproto.Drawable(parent)).Reply()
	if err != nil {
		slog.Debug("Failed to get geometry", "window", parent, "error", err)
		return
	}

	b.ResizeTo(child, geom.Width, geom.Height)
}

// NotifyChildShouldClose detaches child from parent, destroys parent and asks
// child to close itself. If child cannot be detached, parent is kept so that
// child is not destroyed with it.
func (b *Bridge) NotifyChildShouldClose(child, parent xproto.Window) error {
	var errs []error

	detachErr := b.detach(child, parent)
	if detachErr != nil {
		errs = append(errs, detachErr)
	}

	if frameReleasable(detachErr, child) {
		if err := b.DestroyWindow(parent); err != nil {
			errs = append(errs, fmt.Errorf("destroy window %d: %w", parent, err))
		}
	}

	if err := b.sendProtocolMessage(child, b.atoms.wmDeleteWindow); err != nil {
		errs = append(errs, fmt.Errorf("close window %d: %w", child, err))
	}

	return errors.Join(errs...)
}

func (b *Bridge) detach(child, parent xproto.Window) error {
	root, ok := b.frames[parent]
	if !ok {
		return fmt.Errorf("window %d: %w", parent, ErrUnknownFrame)
	}

	xproto.UnmapWindow(b.conn, child)
	if err := xproto.ReparentWindowChecked(b.conn, child, root, 0, 0).Check(); err != nil {
		return fmt.Errorf("detach window %d: %w", child, err)
	}
	xproto.ChangeSaveSet(b.conn, xproto.SetModeDelete, child)

	return nil
}

// frameReleasable reports whether a frame can be destroyed after trying to detach child.
func frameReleasable(detachErr error, child xproto.Window) bool {
	if detachErr == nil {
		return true
	}

	// child is already gone.
	var badWindow xproto.WindowError
	return errors.As(detachErr, &badWindow) && badWindow.BadValue == uint32(child)
}

// DestroyWindow destroys a frame created by CreateWindow.
// Other windows and frames that are already destroyed are ignored.
func (b *Bridge) DestroyWindow(window xproto.Window) error {
	if _, ok := b.frames[window]; !ok {
		return nil
	}
	delete(b.frames, window)
	b.grabs.forget(window)

	return xproto.DestroyWindowChecked(b.conn, window).Check()
}
