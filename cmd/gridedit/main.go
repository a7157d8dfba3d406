package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/gridsync/internal/config"
	"github.com/DoyleJ11/gridsync/internal/gridsync"
	"github.com/DoyleJ11/gridsync/internal/logging"
	"github.com/DoyleJ11/gridsync/internal/session"
	"github.com/DoyleJ11/gridsync/internal/store"
	"github.com/DoyleJ11/gridsync/internal/tui"
	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const dialTimeout = 5 * time.Second

type flags struct {
	server string
	owner  string
	gridID string
	height int
	width  int
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:          "gridedit",
		Short:        "Edit a puzzle grid in the terminal, synced live with other editors",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			cfg, err := config.LoadEditor()
			if err != nil {
				return err
			}
			if err := applyFlags(cmd, f, &cfg); err != nil {
				return err
			}
			return run(cmd.Context(), cfg, f.gridID)
		},
	}
	cmd.Flags().StringVar(&f.server, "server", "", "grid server base URL (env GRIDSYNC_SERVER)")
	cmd.Flags().StringVar(&f.owner, "owner", "", "owner recorded on saved grids (env GRIDSYNC_OWNER)")
	cmd.Flags().StringVar(&f.gridID, "grid", "", "id of a saved grid to open")
	cmd.Flags().IntVar(&f.height, "height", 0, "rows in a new grid (env GRIDSYNC_HEIGHT)")
	cmd.Flags().IntVar(&f.width, "width", 0, "columns in a new grid (env GRIDSYNC_WIDTH)")
	return cmd
}

// applyFlags lets explicitly set flags win over the environment.
func applyFlags(cmd *cobra.Command, f flags, cfg *config.Editor) error {
	fs := cmd.Flags()
	if fs.Changed("server") {
		cfg.ServerURL = f.server
	}
	if fs.Changed("owner") {
		if f.owner == "" {
			return errors.New("--owner must not be empty")
		}
		cfg.Owner = f.owner
	}
	if fs.Changed("height") {
		cfg.Height = f.height
	}
	if fs.Changed("width") {
		cfg.Width = f.width
	}
	return config.ValidateSize(cfg.Height, cfg.Width)
}

func run(parent context.Context, cfg config.Editor, gridID string) (err error) {
	// The screen belongs to the view, so logs go to a file.
	log, err := logging.New(cfg.LogLevel, false, cfg.LogFile)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("open terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	defer screen.Fini()

	view := tui.New(screen, log)
	rs := store.NewRemoteStore(cfg.ServerURL, nil)

	opts := session.Options{
		Owner:  cfg.Owner,
		Height: cfg.Height,
		Width:  cfg.Width,
		View:   view,
		Logger: log,
	}

	// One channel for the life of the process. Without it the editor still
	// works locally and against the REST store.
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	client, dialErr := gridsync.Dial(dctx, cfg.WebSocketURL(), log)
	cancel()
	if dialErr != nil {
		log.Error("sync unavailable", zap.String("url", cfg.WebSocketURL()), zap.Error(dialErr))
	} else {
		opts.Publisher = client
		defer func() { err = multierr.Append(err, client.Close()) }()
	}

	ctrl := session.NewController(opts)
	loop := session.NewLoop(ctx, ctrl, session.LoopOptions{
		Store:    rs,
		Observer: view.Render,
		Logger:   log,
	})
	view.Attach(loop)
	if client != nil {
		client.Subscribe(loop.Deliver)
	}

	loop.Post(session.RefreshSaved{})
	if gridID != "" {
		loop.Post(session.Load{ID: gridID})
	}

	runCtx, quit := context.WithCancel(ctx)
	defer quit()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer quit()
		err := view.Run(gctx)
		loop.Post(session.Shutdown{})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-loop.Done()
		return nil
	})
	if client != nil {
		g.Go(func() error {
			select {
			case <-client.Done():
				if cerr := client.Err(); cerr != nil && !errors.Is(cerr, gridsync.ErrClosed) {
					log.Warn("sync channel lost", zap.Error(cerr))
				}
			case <-gctx.Done():
			}
			return nil
		})
	}
	return g.Wait()
}
