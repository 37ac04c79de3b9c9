// Package keymap holds the key remap table and its line-oriented file format.
package keymap

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jezek/xgb/xproto"
)

// Key is a key chord as the X server reports it.
type Key struct {
	Code  xproto.Keycode
	State uint16
}

func (k Key) String() string {
	var b strings.Builder
	for _, m := range modifiers {
		if k.State&m.mask != 0 {
			b.WriteString(m.name)
			b.WriteByte('+')
		}
	}
	if rest := k.State &^ knownModifiers; rest != 0 {
		fmt.Fprintf(&b, "0x%x+", rest)
	}
	b.WriteString(strconv.Itoa(int(k.Code)))
	return b.String()
}

var modifiers = []struct {
	name string
	mask uint16
}{
	{"Shift", xproto.ModMaskShift},
	{"Ctrl", xproto.ModMaskControl},
	{"Alt", xproto.ModMask1},
}

const knownModifiers = xproto.ModMaskShift | xproto.ModMaskControl | xproto.ModMask1

// KeyMap maps an input chord to an output chord.
// It is never mutated after construction so copies share the same table.
type KeyMap struct {
	m map[Key]Key
}

// New copies pairs into a new KeyMap.
func New(pairs map[Key]Key) KeyMap {
	m := make(map[Key]Key, len(pairs))
	for from, to := range pairs {
		m[from] = to
	}
	return KeyMap{m: m}
}

// Mapped returns the output chord for key.
func (km KeyMap) Mapped(key Key) (Key, bool) {
	to, ok := km.m[key]
	return to, ok
}

// Keys returns the input chords ordered by code then state.
func (km KeyMap) Keys() []Key {
	keys := make([]Key, 0, len(km.m))
	for k := range km.m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b Key) int {
		if a.Code != b.Code {
			return int(a.Code) - int(b.Code)
		}
		return int(a.State) - int(b.State)
	})
	return keys
}

func (km KeyMap) Len() int {
	return len(km.m)
}
