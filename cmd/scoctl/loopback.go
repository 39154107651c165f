package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/danmuck/scosock/internal/daemon"
	"github.com/danmuck/scosock/internal/link"
	"github.com/danmuck/scosock/internal/sco"
	"github.com/spf13/cobra"
)

type loopbackOptions struct {
	Frames  int
	Size    int
	MTU     int
	Timeout time.Duration
}

type loopbackResult struct {
	Frames int
	Bytes  int
	MinRTT time.Duration
	MaxRTT time.Duration
	AvgRTT time.Duration
	Echoed uint64
	Stats  sco.Stats
}

var (
	loopbackLocal  = sco.MustParseAddr("00:1B:DC:0F:00:01")
	loopbackRemote = sco.MustParseAddr("00:1B:DC:0F:00:02")
)

func newLoopbackCmd() *cobra.Command {
	opts := loopbackOptions{}
	cmd := &cobra.Command{
		Use:   "loopback",
		Short: "Run frames through two simulated adapters and an echo listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()
			res, err := runLoopback(ctx, opts)
			if err != nil {
				return err
			}
			printLoopback(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Frames, "frames", 10, "number of frames to send")
	cmd.Flags().IntVar(&opts.Size, "size", 48, "payload bytes per frame")
	cmd.Flags().IntVar(&opts.MTU, "mtu", sco.DefaultMTU, "adapter MTU")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "overall deadline")
	return cmd
}

func runLoopback(ctx context.Context, opts loopbackOptions) (loopbackResult, error) {
	if opts.Frames <= 0 {
		return loopbackResult{}, fmt.Errorf("frames must be positive")
	}
	if opts.Size < 0 || (opts.MTU > 0 && opts.Size > opts.MTU) {
		return loopbackResult{}, fmt.Errorf("size %d does not fit mtu %d", opts.Size, opts.MTU)
	}

	cfg := daemon.DefaultServiceConfig()
	cfg.Name = "scoctl-loopback"
	cfg.DiagAddr = ""
	cfg.Adapters = []link.AdapterConfig{
		{Addr: loopbackLocal, MTU: opts.MTU},
		{Addr: loopbackRemote, MTU: opts.MTU},
	}
	cfg.Echo = []daemon.EchoListener{{Addr: loopbackRemote, Backlog: 1}}
	svc := daemon.NewServiceWithConfig(cfg)
	if err := svc.Start(ctx); err != nil {
		_ = svc.Close()
		return loopbackResult{}, err
	}

	res, err := exchange(ctx, svc, opts)
	if cerr := svc.Close(); err == nil {
		err = cerr
	}
	res.Echoed = svc.Echoed()
	res.Stats = svc.Protocol().Stats()
	return res, err
}

func exchange(ctx context.Context, svc *daemon.Service, opts loopbackOptions) (loopbackResult, error) {
	sk, err := svc.Dial(ctx, loopbackLocal, loopbackRemote)
	if err != nil {
		return loopbackResult{}, fmt.Errorf("dial: %w", err)
	}
	defer sk.Release()

	var res loopbackResult
	var total time.Duration
	frame := make([]byte, opts.Size)
	buf := make([]byte, max(opts.Size, 1))
	for i := range opts.Frames {
		for j := range frame {
			frame[j] = byte(i + j)
		}
		start := time.Now()
		if _, err := sk.Send(frame); err != nil {
			return res, fmt.Errorf("frame %d: send: %w", i, err)
		}
		n, err := sk.Recv(ctx, buf)
		if err != nil {
			return res, fmt.Errorf("frame %d: recv: %w", i, err)
		}
		rtt := time.Since(start)
		if !bytes.Equal(buf[:n], frame) {
			return res, fmt.Errorf("frame %d: echo mismatch", i)
		}
		if res.Frames == 0 || rtt < res.MinRTT {
			res.MinRTT = rtt
		}
		res.MaxRTT = max(res.MaxRTT, rtt)
		total += rtt
		res.Frames++
		res.Bytes += n
	}
	res.AvgRTT = total / time.Duration(res.Frames)
	return res, nil
}

func printLoopback(w io.Writer, res loopbackResult) {
	fmt.Fprintf(w, "frames:   %d (%d bytes)\n", res.Frames, res.Bytes)
	fmt.Fprintf(w, "echoed:   %d\n", res.Echoed)
	fmt.Fprintf(w, "rtt:      min=%s avg=%s max=%s\n", res.MinRTT, res.AvgRTT, res.MaxRTT)
	fmt.Fprintf(w, "sockets:  allocated=%d freed=%d live=%d\n", res.Stats.Allocated, res.Stats.Freed, res.Stats.Live)
}
