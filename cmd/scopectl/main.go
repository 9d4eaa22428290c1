package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/scopectl/internal/config"
	"github.com/danmuck/scopectl/internal/debugger"
	"github.com/danmuck/scopectl/internal/logging"
	"github.com/danmuck/scopectl/internal/protocol/session"
	"github.com/danmuck/scopectl/internal/server"
	"github.com/danmuck/scopectl/internal/windows"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type options struct {
	configPath string
	addr       string
	script     string
	frame      string
	list       bool
	admin      bool
	adminAddr  string
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("scopectl", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "path to a scopectl TOML config (defaults apply when empty)")
	fs.StringVar(&opts.addr, "addr", "", "browser scope address, overrides browser.addr")
	fs.StringVar(&opts.script, "eval", "", "script to evaluate in the selected frame")
	fs.StringVar(&opts.frame, "frame", "", "dotted frame path to select before evaluating (empty selects the top frame)")
	fs.BoolVar(&opts.list, "list", false, "print the frame paths of the focused window")
	fs.BoolVar(&opts.admin, "admin", false, "serve the admin HTTP API until interrupted")
	fs.StringVar(&opts.adminAddr, "admin-addr", "", "admin listen address, overrides admin.listen")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func resolveConfig(opts options) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.LoadFile(opts.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if opts.addr != "" {
		cfg.Browser.Addr = opts.addr
	}
	if opts.adminAddr != "" {
		cfg.Admin.Listen = opts.adminAddr
	}
	if opts.admin && cfg.Admin.Listen == "" {
		return config.Config{}, fmt.Errorf("%w: -admin needs admin.listen or -admin-addr", config.ErrInvalid)
	}
	return cfg, config.Validate(cfg)
}

func main() {
	logging.ConfigureRuntime()

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "scopectl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return err
	}

	conn, err := session.Dial(ctx, cfg.Browser.Addr, cfg.Session)
	if err != nil {
		return err
	}
	defer conn.Close()

	wm := windows.NewManager(conn, cfg.Session.ResponseTimeout)
	dbg, err := debugger.New(conn, wm, cfg.Debugger)
	if err != nil {
		return err
	}
	log.Info().Str("addr", cfg.Browser.Addr).Str("session", dbg.SessionID()).Msg("scope connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return dbg.Pump(gctx, conn.Events())
	})
	if opts.admin {
		admin := server.New("scopectl", cfg.Admin.Listen, cfg.Admin.CorsOrigins, dbg, wm)
		g.Go(func() error {
			return admin.Serve(gctx)
		})
	}
	g.Go(func() error {
		if err := drive(gctx, dbg, wm, opts, out); err != nil {
			return err
		}
		if opts.admin {
			<-gctx.Done()
			return nil
		}
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// drive runs the one-shot work: init, optional frame switch, listing and eval.
func drive(ctx context.Context, dbg *debugger.Debugger, wm *windows.Manager, opts options, out io.Writer) error {
	if err := dbg.Init(ctx); err != nil {
		return err
	}
	if err := wm.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("window list unavailable")
	}
	if opts.frame != "" {
		active, err := dbg.ChangeRuntime(opts.frame)
		if err != nil {
			return err
		}
		log.Info().Str("frame", active.FramePath).Uint32("runtime", active.ID).Msg("frame selected")
	}
	if opts.list {
		for _, path := range dbg.ListFramePaths() {
			fmt.Fprintln(out, path)
		}
	}
	if opts.script != "" {
		v, err := dbg.Evaluate(ctx, opts.script, nil, true)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s (%s)\n", v.String(), v.Kind)
	}
	return nil
}
