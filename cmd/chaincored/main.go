package main

import (
	"fmt"
	"os"
	"time"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/berith-foundation/chaincore/corerr"
	"github.com/berith-foundation/chaincore/log"
)

const clientIdentifier = "chaincored"

var configFileFlag = cli.StringFlag{
	Name:  "config",
	Usage: "TOML configuration file",
}

var dumpConfigCommand = cli.Command{
	Name:        "dumpconfig",
	Usage:       "Show configuration values",
	Description: "The dumpconfig command shows configuration values.",
	Action:      runDumpConfig,
}

var consoleCommand = cli.Command{
	Name:        "console",
	Usage:       "Start a node with an interactive admin console",
	Description: "The console command starts a node and attaches a local admin shell to it.",
	Action:      runInteractive,
}

func main() {
	app := cli.NewApp()
	app.Name = clientIdentifier
	app.Usage = "concurrent blockchain node core"
	app.Flags = []cli.Flag{configFileFlag}
	app.Commands = []cli.Command{dumpConfigCommand, consoleCommand}
	app.Action = runDaemon

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func deadlineFromNow(cfg Config) time.Time {
	return time.Now().Add(cfg.Locks.defaultDeadline())
}

func loadConfigFromContext(ctx *cli.Context) (Config, error) {
	cfg := defaultConfig()
	if file := ctx.GlobalString(configFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func runDumpConfig(ctx *cli.Context) error {
	cfg, err := loadConfigFromContext(ctx)
	if err != nil {
		return err
	}
	return dumpConfig(cfg, os.Stdout)
}

func runInteractive(ctx *cli.Context) error {
	cfg, err := loadConfigFromContext(ctx)
	if err != nil {
		return err
	}
	node := NewNode(cfg)
	return runConsole(node, log.New("component", "console"))
}

// runDaemon is the default action: build the node and run until a
// deadlock storm trips the circuit breaker or the process is killed.
func runDaemon(ctx *cli.Context) error {
	cfg, err := loadConfigFromContext(ctx)
	if err != nil {
		return err
	}
	logger := log.New("component", "chaincored")
	node := NewNode(cfg)

	sweep := time.NewTicker(cfg.Session.staleThreshold() / 2)
	defer sweep.Stop()
	watch := time.NewTicker(time.Second)
	defer watch.Stop()

	logger.Info("chaincored started", "session", cfg.Session.Path)
	for {
		select {
		case <-sweep.C:
			node.SweepSessions(logger)
		case <-watch.C:
			if err := node.CheckDeadlockStorm(); err != nil {
				logger.Error("deadlock storm detected, shutting down", "err", err)
				return err
			}
		}
	}
}

// exitCodeFor maps a returned error to the informative exit codes of spec
// section 6.
func exitCodeFor(err error) int {
	if _, ok := err.(*configError); ok {
		return 2
	}
	if _, ok := err.(*deadlockStormError); ok {
		return 4
	}
	if kind, ok := corerr.KindOf(err); ok && kind == corerr.CorruptSessionFile {
		return 3
	}
	return 1
}
