package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"diskfiller/pkg/config"
	"diskfiller/pkg/control"
	"diskfiller/pkg/session"
	"diskfiller/pkg/types"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func fillCmd() *cobra.Command {
	var (
		size  string
		chunk string
		addr  string
		plain bool
	)

	cmd := &cobra.Command{
		Use:   "fill <volume-path>",
		Short: "Fill a volume, then delete what was written",
		Long: `Write chunk-sized files of random text into a folder at the root of the
volume until --size has been written or free space drops below 10 MB. The
folder is deleted when the run ends, however it ends.

While the fill runs, type p, r or s followed by Enter to pause, resume or
stop it. Ctrl-C stops it as well. Sizes are MB unless a unit is given;
MB, GB and TB are 1024-based, the same as in the progress output.`,
		Example: `  diskfiller fill /mnt/usb --size 4GB --chunk 256MB
  diskfiller fill D:\ --size 1000 --chunk 100 --plain`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			logger := setupLogger(verbose, cfg.LogLevel)
			defer logger.Sync()

			if chunk == "" {
				chunk = cfg.DefaultChunk
			}
			if !cmd.Flags().Changed("addr") {
				addr = cfg.ControlAddress
			}

			targetMiB, chunkMiB, err := session.ValidateInputs(size, chunk)
			if err != nil {
				return err
			}

			plain = plain || cfg.OutputFormat == config.FormatPlain
			out := newRenderer(cmd.OutOrStdout(), plain, targetMiB)

			res, err := runFill(cmd.Context(), fillParams{
				cfg:       cfg,
				logger:    logger,
				volume:    args[0],
				targetMiB: targetMiB,
				chunkMiB:  chunkMiB,
				addr:      addr,
				in:        cmd.InOrStdin(),
				out:       out,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderSummary(res, plain))
			if res.Outcome == types.OutcomeFailed {
				return fmt.Errorf("disk fill failed: %w", res.Err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&size, "size", "s", "", "space to fill, in MB or with a unit (e.g. 2GiB)")
	cmd.Flags().StringVar(&chunk, "chunk", "", "size of each filler file (default from config)")
	cmd.Flags().StringVar(&addr, "addr", config.DefaultControlAddress, "control service address, empty to disable")
	cmd.Flags().BoolVar(&plain, "plain", false, "plain text output")
	cmd.MarkFlagRequired("size")

	return cmd
}

type fillParams struct {
	cfg       *config.Config
	logger    *zap.Logger
	volume    string
	targetMiB int64
	chunkMiB  int64
	addr      string
	in        io.Reader
	out       *renderer
}

// runFill drives one run to its end. Interrupts and a failing control
// service stop the run rather than abandon it, so its folder is always
// cleaned up before runFill returns.
func runFill(ctx context.Context, p fillParams) (types.Result, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var lis net.Listener
	if p.addr != "" {
		var err error
		lis, err = net.Listen("tcp", p.addr)
		if err != nil {
			return types.Result{}, fmt.Errorf("failed to listen on %s: %w", p.addr, err)
		}
	}

	s := session.New(p.cfg, p.logger, session.WithObserver(p.out))
	g, gctx := errgroup.WithContext(ctx)

	runID, err := s.Start(gctx, p.volume, p.targetMiB, p.chunkMiB)
	if err != nil {
		if lis != nil {
			lis.Close()
		}
		return types.Result{}, err
	}

	st := s.Status()
	p.out.Notice("Filling %s with %d MB in %d MB files (run %s)", st.Dir, p.targetMiB, p.chunkMiB, runID)
	p.out.Notice("Type p, r or s and press Enter to pause, resume or stop")

	serveCtx, stopServe := context.WithCancel(gctx)
	defer stopServe()

	if lis != nil {
		srv := control.NewServer(s, p.logger)
		g.Go(func() error {
			return srv.Serve(serveCtx, lis)
		})
	}

	var res types.Result
	g.Go(func() error {
		defer stopServe()
		var err error
		res, err = s.Wait(context.Background())
		return err
	})

	go readCommands(p.in, s, p.out)

	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, nil
}

type commander interface {
	Pause() error
	Resume() error
	Stop() error
}

// readCommands applies p/r/s lines read from in until in is exhausted.
func readCommands(in io.Reader, c commander, out *renderer) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		var err error
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "":
			continue
		case "p", "pause":
			err = c.Pause()
		case "r", "resume":
			err = c.Resume()
		case "s", "stop":
			err = c.Stop()
		default:
			out.Notice("Unknown command %q (p = pause, r = resume, s = stop)", scanner.Text())
			continue
		}
		if err != nil {
			out.Notice("%v", err)
		}
	}
}
