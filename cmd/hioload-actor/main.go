// Command hioload-actor is the process entry point: `hioload-actor [-e
// initstat] [-workers N] [-debug-addr addr] bootstrap.script [args...]`.
// bootstrap.script itself is accepted for command-line compatibility and
// recorded as Options.ScriptName, but this runtime has no embedded scripting
// layer, so it is not opened or parsed; only the trailing args are forwarded
// into the bootstrap service's Args.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/momentics/hioload-actor/bootstrap"
	"github.com/momentics/hioload-actor/log"
	"github.com/momentics/hioload-actor/router"
	"github.com/momentics/hioload-actor/service/builtin"
)

func main() {
	app := &cli.App{
		Name:                   "hioload-actor",
		Usage:                  "actor-style service runtime",
		UsageText:              "hioload-actor [-e initstat] [-workers N] [-debug-addr addr] bootstrap.script [args...]",
		ArgsUsage:              "bootstrap.script [args...]",
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "e", Usage: "initial stat string passed to the bootstrap service", Value: ""},
			&cli.IntFlag{Name: "workers", Usage: "worker count", Value: runtime.NumCPU()},
			&cli.StringFlag{Name: "debug-addr", Usage: "control surface listen address (empty disables it)", Value: ""},
			&cli.StringFlag{Name: "log-file", Usage: "log file path (empty logs to console only)", Value: ""},
			&cli.StringFlag{Name: "log-level", Usage: "error|warn|info|debug", Value: "info"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(255)
	}
}

func run(c *cli.Context) error {
	level, err := parseLevel(c.String("log-level"))
	if err != nil {
		return err
	}

	opts := bootstrap.Options{
		WorkerCount: c.Int("workers"),
		InitStat:    c.String("e"),
		ScriptName:  c.Args().First(),
		Args:        c.Args().Tail(),
		LogLevel:    level,
		LogFile:     c.String("log-file"),
		DebugAddr:   c.String("debug-addr"),
	}

	code, err := bootstrap.Run(context.Background(), opts, registerBuiltins)
	if err != nil {
		return err
	}
	if code != 0 {
		os.Exit(code)
	}
	return nil
}

// registerBuiltins wires the trivial stand-in service types so new_service
// has concrete types to construct end to end, since this runtime has no
// embedded scripting layer.
func registerBuiltins(r *router.Server) {
	r.RegisterFactory("echo", builtin.NewEcho(r))
	r.RegisterFactory("null", builtin.NewNull())
}

func parseLevel(s string) (log.Level, error) {
	switch s {
	case "error":
		return log.Error, nil
	case "warn":
		return log.Warn, nil
	case "info":
		return log.Info, nil
	case "debug":
		return log.Debug, nil
	default:
		return log.Info, fmt.Errorf("unknown log level %q", s)
	}
}
