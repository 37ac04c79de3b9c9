package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"

	"github.com/ItsNotGoodName/x-keyremapper/internal/app"
	"github.com/ItsNotGoodName/x-keyremapper/internal/build"
	"github.com/ItsNotGoodName/x-keyremapper/internal/config"
	"github.com/ItsNotGoodName/x-keyremapper/internal/filter"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/k0kubun/pp"
	"github.com/phsym/console-slog"
	"github.com/spf13/cobra"
)

type Options struct {
	Debug  bool   `doc:"enable debug"`
	Config string `doc:"config file (.yaml, .toml or .json)" default:".x-keyremapper.yaml"`
	KeyMap string `doc:"key map file, overrides config"`
	Class  string `doc:"only adopt windows with this WM_CLASS instance, overrides config"`
	Watch  bool   `doc:"reload the key map file when it changes"`
}

func main() {
	godotenv.Load()

	var command []string

	cli := humacli.New(func(hooks humacli.Hooks, options *Options) {
		if options.Debug {
			InitLogger(slog.LevelDebug)
		} else {
			InitLogger(slog.LevelInfo)
		}

		OnServe(hooks, func(ctx context.Context) error {
			cfg, err := config.Load(options.Config)
			if err != nil {
				return err
			}

			params := NewParams(cfg, *options, command)
			if options.Debug {
				pp.Fprintln(os.Stderr, params)
			}

			return app.Serve(ctx, params)
		})
	})

	root := cli.Root()
	root.Use = "x-keyremapper [flags] [-- command args...]"
	root.Version = build.Current.String()
	root.Args = cobra.ArbitraryArgs
	root.PreRun = func(cmd *cobra.Command, args []string) {
		command = args
	}

	cli.Run()
}

// NewParams merges the config file with flags and the positional command.
// Flags and arguments win over the file.
func NewParams(cfg config.Config, options Options, command []string) app.Params {
	params := app.Params{
		KeyMap:  cfg.KeyMap,
		Rules:   cfg.Filters,
		Command: cfg.Command,
		Watch:   cfg.Watch || options.Watch,
	}
	if options.KeyMap != "" {
		params.KeyMap = options.KeyMap
	}
	if options.Class != "" {
		params.Rules = []filter.Rule{filter.Class(options.Class)}
	}
	if len(command) > 0 {
		params.Command = command
	}
	return params
}

func InitLogger(level slog.Level) {
	slog.SetDefault(slog.New(console.NewHandler(os.Stderr, &console.HandlerOptions{
		Level: level,
	})))
}

func OnServe(hooks humacli.Hooks, serveFn func(ctx context.Context) error) {
	stopC := make(chan struct{})
	hooks.OnStart(func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		errC := make(chan error, 1)

		go func() { errC <- serveFn(ctx) }()

		select {
		case <-stopC:
			cancel()
		case err := <-errC:
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Fatal(err)
			}
			return
		}

		<-errC
		<-stopC
	})
	hooks.OnStop(func() {
		stopC <- struct{}{}
		stopC <- struct{}{}
	})
}
