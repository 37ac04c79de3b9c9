package keymap

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jezek/xgb/xproto"
)

const (
	minKeycode = 8
	maxKeycode = 255
)

var (
	ErrMissingChord   = errors.New("expected two chords")
	ErrDuplicateChord = errors.New("chord already mapped")
)

// ParseError reports the 1-based line a rule failed on.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Load parses the key map file at path.
func Load(path string) (KeyMap, error) {
	file, err := os.Open(path)
	if err != nil {
		return KeyMap{}, err
	}
	defer file.Close()

	km, err := Parse(file)
	if err != nil {
		return KeyMap{}, fmt.Errorf("%s: %w", path, err)
	}

	return km, nil
}

// Parse reads one "<chord> <chord>" rule per line.
//
//	# swap c and b while holding Ctrl
//	Ctrl+54 Ctrl+56
//	46 48
func Parse(r io.Reader) (KeyMap, error) {
	m := make(map[Key]Key)

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++

		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Fields(text)
		if len(fields) != 2 {
			return KeyMap{}, &ParseError{Line: line, Err: ErrMissingChord}
		}

		from, err := ParseChord(fields[0])
		if err != nil {
			return KeyMap{}, &ParseError{Line: line, Err: err}
		}

		to, err := ParseChord(fields[1])
		if err != nil {
			return KeyMap{}, &ParseError{Line: line, Err: err}
		}

		if _, ok := m[from]; ok {
			return KeyMap{}, &ParseError{Line: line, Err: fmt.Errorf("%s: %w", from, ErrDuplicateChord)}
		}

		m[from] = to
	}
	if err := scanner.Err(); err != nil {
		return KeyMap{}, err
	}

	return KeyMap{m: m}, nil
}

// ParseChord parses "+"-joined modifier names and exactly one keycode.
func ParseChord(chord string) (Key, error) {
	var key Key
	hasCode := false
	for _, token := range strings.Split(chord, "+") {
		switch token {
		case "Shift":
			key.State |= xproto.ModMaskShift
		case "Ctrl":
			key.State |= xproto.ModMaskControl
		case "Alt":
			key.State |= xproto.ModMask1
		default:
			code, err := strconv.Atoi(token)
			if err != nil {
				return Key{}, fmt.Errorf("%q: unknown token %q", chord, token)
			}
			if code < minKeycode || code > maxKeycode {
				return Key{}, fmt.Errorf("%q: keycode %d out of range %d-%d", chord, code, minKeycode, maxKeycode)
			}
			if hasCode {
				return Key{}, fmt.Errorf("%q: more than one keycode", chord)
			}
			key.Code = xproto.Keycode(code)
			hasCode = true
		}
	}
	if !hasCode {
		return Key{}, fmt.Errorf("%q: missing keycode", chord)
	}

	return key, nil
}
