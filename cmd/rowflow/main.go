package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wbrown/janus-rowflow/rowflow/annotations"
	"github.com/wbrown/janus-rowflow/rowflow/config"
	"github.com/wbrown/janus-rowflow/rowflow/executor"
	"github.com/wbrown/janus-rowflow/rowflow/metrics"
)

var (
	configPath  string
	verbose     bool
	dumpMetrics bool
)

var rootCmd = &cobra.Command{
	Use:           "rowflow",
	Short:         "Batched row joins over memory, badger, sqlite and parquet sources",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (yaml, toml or json)")
	flags.BoolVar(&verbose, "verbose", false, "print join annotations to stderr")
	flags.BoolVar(&dumpMetrics, "metrics", false, "print prometheus counters after the run")

	rootCmd.AddCommand(demoCmd, seedCmd, joinCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

// session is the execution context of one command and what it holds open
type session struct {
	ec      *executor.Context
	metrics *metrics.Metrics
	closer  io.Closer
}

// newSession loads settings and builds the context every command runs
// joins with
func newSession() (*session, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	opts, closer, err := settings.Options(settings.Logger(os.Stderr))
	if err != nil {
		return nil, err
	}

	s := &session{closer: closer}
	var handlers []annotations.Handler
	if verbose {
		handlers = append(handlers, annotations.NewOutputFormatter(os.Stderr).Handle)
	}
	if dumpMetrics {
		s.metrics = metrics.New()
		handlers = append(handlers, s.metrics.Handler())
	}
	if len(handlers) > 0 {
		opts.Handler = func(e annotations.Event) {
			for _, h := range handlers {
				h(e)
			}
		}
	}
	s.ec = executor.NewContext(opts)
	return s, nil
}

// finish prints metrics when asked and releases the policy
func (s *session) finish(w io.Writer) error {
	if s.metrics != nil {
		fmt.Fprintln(w)
		if err := s.metrics.WriteText(w); err != nil {
			return err
		}
	}
	return s.closer.Close()
}
