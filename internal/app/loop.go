package app

import (
	"context"
	"log/slog"

	"github.com/ItsNotGoodName/x-keyremapper/internal/keymap"
	"github.com/ItsNotGoodName/x-keyremapper/internal/xwm"
)

type Source interface {
	WaitNextEvent(ctx context.Context) (xwm.Event, error)
}

type Liveness interface {
	HasExited() bool
}

// Loop feeds events from Source to Model one at a time.
type Loop struct {
	Source Source
	Model  *Model
	// Until is checked before every wait; the loop returns nil once it is true.
	Until func() bool
	// KeyMapC is polled before every wait.
	KeyMapC <-chan keymap.KeyMap
}

// NewLoop runs until ctx is done or the connection is lost.
func NewLoop(src Source, m *Model) Loop {
	return Loop{Source: src, Model: m}
}

// NewChildLoop also stops once proc has exited.
// The check happens before each wait, so one more event may be waited for.
func NewChildLoop(src Source, m *Model, proc Liveness) Loop {
	return Loop{Source: src, Model: m, Until: proc.HasExited}
}

func (l Loop) Run(ctx context.Context) error {
	for {
		if l.Until != nil && l.Until() {
			return nil
		}

		select {
		case km := <-l.KeyMapC:
			slog.Info("Applying key map", "keys", km.Len())
			l.Model.SetKeyMap(km)
		default:
		}

		ev, err := l.Source.WaitNextEvent(ctx)
		if err != nil {
			return err
		}

		slog.Debug("Event", "event", ev)

		l.Model.Update(ev)
	}
}
