package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/five82/flowwatch/internal/app"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

const usage = `usage: flowwatch [flags] [dashboard|serve|probe] [command flags]

commands:
  dashboard   terminal dashboard (default)
  serve       HTTP API and websocket stream
  probe       report which FileFlows endpoints answer

flags:
`

func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("flowwatch", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() {
		fmt.Fprint(stderr, usage)
		global.PrintDefaults()
	}
	opts := registerCommon(global)
	if err := global.Parse(args); err != nil {
		return 2
	}

	command := "dashboard"
	rest := global.Args()
	if len(rest) > 0 {
		command, rest = rest[0], rest[1:]
	}

	sub := flag.NewFlagSet("flowwatch "+command, flag.ContinueOnError)
	sub.SetOutput(stderr)
	subOpts := registerCommon(sub)
	format := "text"
	if command == "probe" {
		sub.StringVar(&format, "format", "text", "output format: text, json or yaml")
	}
	if err := sub.Parse(rest); err != nil {
		return 2
	}
	if sub.NArg() > 0 {
		fmt.Fprintf(stderr, "flowwatch: unexpected arguments %v\n", sub.Args())
		return 2
	}
	merged := opts.merge(subOpts)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch command {
	case "dashboard":
		err = app.RunDashboard(ctx, merged)
	case "serve":
		err = app.RunServer(ctx, merged)
	case "probe":
		err = app.RunProbe(ctx, merged, format, stdout)
	default:
		fmt.Fprintf(stderr, "flowwatch: unknown command %q\n", command)
		global.Usage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "flowwatch: %v\n", err)
		return 1
	}
	return 0
}

type commonFlags struct {
	configPath *string
	poll       *int
}

func registerCommon(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath: fs.String("config", "", "config file path (default ~/.config/flowwatch/config.toml)"),
		poll:       fs.Int("poll", 0, "poll interval in seconds (default from config, 30s)"),
	}
}

// merge prefers flags given after the command.
func (c commonFlags) merge(sub commonFlags) app.Options {
	opts := app.Options{ConfigPath: *c.configPath, PollEvery: *c.poll}
	if *sub.configPath != "" {
		opts.ConfigPath = *sub.configPath
	}
	if *sub.poll > 0 {
		opts.PollEvery = *sub.poll
	}
	return opts
}
