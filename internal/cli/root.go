package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alexshd/biasgen"
)

const (
	appName    = "biasgen"
	appVersion = "0.1.0"
)

// options holds the parsed command line.
type options struct {
	templates   []string
	seed        uint64
	seedSet     bool
	count       uint64
	countSet    bool
	jobs        int
	onError     string
	onErrorSet  bool
	outDir      string
	dbPath      string
	regress     string
	lcg48       bool
	logLevel    string
	showVersion bool
}

func NewRootCmd() *cobra.Command {
	opts := options{
		count:    biasgen.DefaultConfig().Iterations,
		onError:  string(biasgen.OnErrorAbort),
		logLevel: "info",
	}

	cmd := &cobra.Command{
		Use:           appName + " [flags] [template ...]",
		Short:         "Biased operand generator for instruction-level tests",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, appVersion)
				return err
			}

			opts.templates = append(opts.templates, args...)
			if len(opts.templates) == 0 {
				return fmt.Errorf("no templates given (use --template or positional arguments)")
			}
			if opts.countSet && opts.count == 0 {
				return fmt.Errorf("--count must be positive")
			}
			if _, err := biasgen.ParseErrorPolicy(opts.onError); err != nil {
				return err
			}

			log, err := newLogger(cmd.ErrOrStderr(), opts.logLevel)
			if err != nil {
				return err
			}
			return generate(cmd.Context(), cmd.OutOrStdout(), log, opts)
		},
	}

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.Flags().BoolVarP(&opts.showVersion, "version", "v", false, "print version")
	cmd.Flags().StringSliceVarP(&opts.templates, "template", "t", nil, "template file or directory (repeatable)")
	cmd.Flags().Uint64VarP(&opts.seed, "seed", "s", 0, "seed overriding every template seed (default: template seed, else random)")
	cmd.Flags().Uint64VarP(&opts.count, "count", "n", opts.count, "iterations per template, overriding the template")
	cmd.Flags().IntVarP(&opts.jobs, "jobs", "j", 0, "templates generated in parallel (0 = number of CPUs)")
	cmd.Flags().StringVar(&opts.onError, "on-error", opts.onError, "emission error policy: abort or skip")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "output directory for JSON lines files (cleaned before generation)")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite regression database")
	cmd.Flags().StringVar(&opts.regress, "regress", "", "YAML regress list to merge results into")
	cmd.Flags().BoolVar(&opts.lcg48, "lcg48", false, "use the 48-bit LCG source instead of PCG")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", opts.logLevel, "log level: debug, info, warn, error")

	_ = cmd.MarkFlagFilename("template", "yaml", "yml")
	_ = cmd.MarkFlagFilename("regress", "yaml", "yml")
	_ = cmd.MarkFlagDirname("out")

	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		opts.seedSet = cmd.Flags().Changed("seed")
		opts.countSet = cmd.Flags().Changed("count")
		opts.onErrorSet = cmd.Flags().Changed("on-error")
	}

	return cmd
}
