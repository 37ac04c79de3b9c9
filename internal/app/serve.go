package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/ItsNotGoodName/x-keyremapper/internal/child"
	"github.com/ItsNotGoodName/x-keyremapper/internal/filter"
	"github.com/ItsNotGoodName/x-keyremapper/internal/keymap"
	"github.com/ItsNotGoodName/x-keyremapper/internal/xwm"
	"github.com/ItsNotGoodName/x-keyremapper/pkg/sutureext"
)

type Params struct {
	// KeyMap is the path of the key map file.
	KeyMap string
	// Rules select which windows are adopted, any match is enough.
	Rules []filter.Rule
	// Command is started and only its windows are adopted. The session ends when it exits.
	Command []string
	// Watch reloads KeyMap when it changes.
	Watch bool
}

func Serve(ctx context.Context, p Params) error {
	km, err := keymap.Load(p.KeyMap)
	if err != nil {
		return err
	}

	// Everything that can fail runs before the command is started.
	var watcher *keymap.Watcher
	if p.Watch {
		watcher, err = keymap.NewWatcher(p.KeyMap)
		if err != nil {
			return err
		}
	}

	bridge, err := xwm.Init()
	if err != nil {
		return err
	}
	defer bridge.Close()

	screen := bridge.DefaultScreen()
	if err := bridge.ListenForWindowCreation(screen); err != nil {
		return err
	}

	accept := filter.Any(p.Rules...)

	var proc *child.Process
	if len(p.Command) > 0 {
		proc, err = child.Spawn(p.Command[0], p.Command[1:]...)
		if err != nil {
			return err
		}
		slog.Info("Started command", "command", proc, "pid", proc.PID())

		accept = filter.All(filter.PID(proc.PID()), accept)
	}

	model := NewModel(bridge, screen, km, accept)

	var loop Loop
	if proc != nil {
		loop = NewChildLoop(bridge, model, proc)
	} else {
		loop = NewLoop(bridge, model)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if watcher != nil {
		super := sutureext.NewSimple("x-keyremapper")
		sutureext.Add(super, watcher)
		super.ServeBackground(ctx)

		loop.KeyMapC = watcher.C()
	}

	slog.Info("Remapping keys", "keys", km.Len(), "screen", screen)

	err = loop.Run(ctx)

	if proc != nil {
		if err := endChild(proc); err != nil {
			slog.Info("Command exited", "pid", proc.PID(), "error", err)
		} else {
			slog.Info("Command exited", "pid", proc.PID())
		}
	}

	return err
}

// StopTimeout is how long a command gets to exit after being stopped.
var StopTimeout = 5 * time.Second

// endChild stops proc if it outlived the session and returns its wait error.
func endChild(proc *child.Process) error {
	if !proc.HasExited() {
		slog.Info("Stopping command", "pid", proc.PID())
		if err := proc.Stop(); err != nil {
			slog.Warn("Failed to stop command", "pid", proc.PID(), "error", err)
		}
	}

	select {
	case <-proc.Done():
		return proc.Err()
	case <-time.After(StopTimeout):
		slog.Warn("Command did not exit", "pid", proc.PID())
		return nil
	}
}
