package xwm

import (
	"fmt"

	"github.com/ItsNotGoodName/x-keyremapper/internal/keymap"
	"github.com/jezek/xgb/xproto"
)

// grabs remembers which key map is grabbed on which window so that it can be
// released when replaced or on shutdown.
type grabs struct {
	byWindow map[xproto.Window]keymap.KeyMap
	grab     func(window xproto.Window, key keymap.Key) error
	ungrab   func(window xproto.Window, key keymap.Key)
}

func newGrabs(grab func(xproto.Window, keymap.Key) error, ungrab func(xproto.Window, keymap.Key)) *grabs {
	return &grabs{
		byWindow: make(map[xproto.Window]keymap.KeyMap),
		grab:     grab,
		ungrab:   ungrab,
	}
}

// replace swaps the key map grabbed on window. Either every key of km ends up
// grabbed, or none of them and the window has no grabs at all.
func (g *grabs) replace(window xproto.Window, km keymap.KeyMap) error {
	if old, ok := g.byWindow[window]; ok {
		for _, key := range old.Keys() {
			g.ungrab(window, key)
		}
		delete(g.byWindow, window)
	}

	keys := km.Keys()
	for i, key := range keys {
		if err := g.grab(window, key); err != nil {
			for _, grabbed := range keys[:i] {
				g.ungrab(window, grabbed)
			}
			return fmt.Errorf("window %d: grab %s: %w", window, key, err)
		}
	}

	g.byWindow[window] = km

	return nil
}

// forget drops bookkeeping for a window whose grabs died with it.
func (g *grabs) forget(window xproto.Window) {
	delete(g.byWindow, window)
}

func (g *grabs) release() {
	for window, km := range g.byWindow {
		for _, key := range km.Keys() {
			g.ungrab(window, key)
		}
	}
	clear(g.byWindow)
}

// screens tracks the roots selected for substructure notifications.
type screens struct {
	roots    map[int]xproto.Window
	listen   func(root xproto.Window) error
	unlisten func(root xproto.Window)
}

func newScreens(listen func(xproto.Window) error, unlisten func(xproto.Window)) *screens {
	return &screens{
		roots:    make(map[int]xproto.Window),
		listen:   listen,
		unlisten: unlisten,
	}
}

func (s *screens) add(screen int, root xproto.Window) error {
	if _, ok := s.roots[screen]; ok {
		return nil
	}

	if err := s.listen(root); err != nil {
		return fmt.Errorf("screen %d: %w", screen, err)
	}

	s.roots[screen] = root

	return nil
}

func (s *screens) release() {
	for _, root := range s.roots {
		s.unlisten(root)
	}
	clear(s.roots)
}
