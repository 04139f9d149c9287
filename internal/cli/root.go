// Package cli implements the pvzload command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wesleyorama2/pvzload/internal/logging"
)

var version = "0.1.0"

// Exit codes.
const (
	ExitOK               = 0
	ExitError            = 1
	ExitThresholdsFailed = 99
)

// ExitCodeError carries a process exit code out of a command.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitCodeError) Unwrap() error {
	return e.Err
}

var errThresholdsFailed = errors.New("some thresholds have failed")

// app holds what every command shares: the settings layered from flags and
// environment, and the output streams.
type app struct {
	v      *viper.Viper
	out    io.Writer
	errOut io.Writer
}

// newApp reads environment variables with the PVZLOAD_ prefix, so
// --base-url can also come from PVZLOAD_BASE_URL. BASE_URL is accepted as
// well, the name k6 scripts conventionally read.
func newApp(out, errOut io.Writer) *app {
	v := viper.New()
	v.SetEnvPrefix("pvzload")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("base-url", "PVZLOAD_BASE_URL", "BASE_URL")
	return &app{v: v, out: out, errOut: errOut}
}

// NewRootCmd builds the command tree writing to out and errOut.
func NewRootCmd(out, errOut io.Writer) *cobra.Command {
	a := newApp(out, errOut)

	root := &cobra.Command{
		Use:     "pvzload",
		Short:   "Load generator for the PVZ API",
		Version: version,
		Long: `pvzload drives the PVZ API (dummy login, pick-up points, receptions,
products and filtered listings) with a ramping population of virtual users,
checks every response and evaluates pass/fail thresholds at the end.

Run the built-in workload against a local service:
  pvzload run --base-url http://localhost:8080

Smoke test it against the in-process mock:
  pvzload mock --addr :8080 &
  pvzload run --stages "10s:20,20s:20,5s:0"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (default warn)")
	root.PersistentFlags().String("log-format", logging.FormatConsole, "Log format: console or json")
	a.bindFlags("", root.PersistentFlags())

	root.AddCommand(a.newRunCmd())
	root.AddCommand(a.newValidateCmd())
	root.AddCommand(a.newMockCmd())

	return root
}

// bindFlags makes every flag in fs readable through viper as prefix+name,
// so an unset flag falls back to the environment.
func (a *app) bindFlags(prefix string, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = a.v.BindPFlag(prefix+f.Name, f)
	})
}

func (a *app) logger() (*zap.Logger, error) {
	return logging.New(logging.Options{
		Level:  a.v.GetString("log-level"),
		Format: a.v.GetString("log-format"),
		Writer: a.errOut,
	})
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	root := NewRootCmd(os.Stdout, os.Stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var exitErr *ExitCodeError
	if errors.As(err, &exitErr) {
		if exitErr.Code != ExitThresholdsFailed && exitErr.Err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", exitErr.Err)
		}
		return exitErr.Code
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return ExitError
}
