package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/pvzload/internal/pvz/mock"
)

func (a *app) newMockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Serve an in-memory PVZ API for smoke runs",
		Long: `Serve an in-memory implementation of the PVZ API endpoints the built-in
workload uses. State is lost on exit. Failure injection and added latency
make it possible to see checks and thresholds fail.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serveMock(cmd.Context(), nil)
		},
	}

	f := cmd.Flags()
	f.String("addr", ":8080", "Listen address")
	f.Float64("failure-rate", 0, "Fraction of requests answered with 500")
	f.Duration("latency", 0, "Delay added to every response")
	f.Duration("jitter", 0, "Random extra delay up to this value")
	f.Uint64("seed", 0, "Seed for failure injection and jitter")
	f.String("secret", "", "JWT signing secret")
	a.bindFlags("mock.", f)
	return cmd
}

// serveMock runs until ctx is cancelled or the process is interrupted.
func (a *app) serveMock(ctx context.Context, ready func(net.Addr)) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := a.logger()
	if err != nil {
		return &ExitCodeError{Code: ExitError, Err: err}
	}
	defer func() { _ = logger.Sync() }()

	rate := a.v.GetFloat64("mock.failure-rate")
	if rate < 0 || rate > 1 {
		return &ExitCodeError{Code: ExitError, Err: fmt.Errorf("--failure-rate must be between 0 and 1, got %v", rate)}
	}

	gin.SetMode(gin.ReleaseMode)
	opts := []mock.Option{
		mock.WithLogger(logger),
		mock.WithFailureRate(rate),
		mock.WithLatency(a.v.GetDuration("mock.latency"), a.v.GetDuration("mock.jitter")),
	}
	if seed := a.v.GetUint64("mock.seed"); seed != 0 {
		opts = append(opts, mock.WithSeed(seed))
	}
	if secret := a.v.GetString("mock.secret"); secret != "" {
		opts = append(opts, mock.WithSecret(secret))
	}
	srv := mock.New(opts...)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if ready == nil {
		ready = func(addr net.Addr) {
			fmt.Fprintf(a.out, "Mock PVZ API listening on %s\n", addr)
		}
	}
	if err := srv.ListenAndServe(ctx, a.v.GetString("mock.addr"), ready); err != nil {
		return &ExitCodeError{Code: ExitError, Err: err}
	}
	fmt.Fprintf(a.out, "Served %d requests (%d injected failures)\n", srv.Requests(), srv.InjectedFailures())
	return nil
}
