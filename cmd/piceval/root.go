package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/provide-io/piceval/internal/app"
	"github.com/provide-io/piceval/internal/config"
	"github.com/provide-io/piceval/internal/workenv"
	"github.com/provide-io/piceval/pkg/lockfile"
	"github.com/provide-io/piceval/pkg/logging"
	"github.com/provide-io/piceval/pkg/seal"
	"github.com/provide-io/piceval/pkg/selector"
)

// LockTimeout bounds how long a command waits for another piceval process.
const LockTimeout = 30 * time.Second

const lockFileName = ".piceval.lock"

var errUsage = errors.New("invalid argument")

type rootOptions struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger hclog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "piceval",
		Short:         "Pick random pictures and file them by score",
		Long:          "Maintain a verified index over asset directories, draw random files from it, and move scored files into level directories.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := opts.logLevel
			if level == "" {
				level = logging.GetLogLevel()
			}
			opts.logger = logging.NewLogger("piceval", level, cmd.ErrOrStderr())

			path := opts.configPath
			if path == "" {
				path = config.DefaultConfigPath()
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger.Debug("⚙️ Configuration loaded", "path", path, "data_dir", cfg.DataDir)
			return nil
		},
	}
	cmd.SetVersionTemplate(fmt.Sprintf("piceval {{.Version}}\nBuilt: %s\n", getBuildTimestamp()))

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config.yaml (default: $PICEVAL_CONFIG or the user config dir)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error; prefix json: for JSON)")

	cmd.AddCommand(
		newInitCmd(opts),
		newPickCmd(opts),
		newMarkCmd(opts),
		newIndexCmd(opts),
		newVerifyCmd(opts),
		newStatsCmd(opts),
		newWatchCmd(opts),
	)
	return cmd
}

// withApp builds the App and runs fn. With lock set, fn runs while holding
// the cache directory lock so concurrent invocations do not interleave.
func withApp(cmd *cobra.Command, opts *rootOptions, lock bool, fn func(*app.App) error) error {
	if lock {
		if err := os.MkdirAll(opts.cfg.CacheDir, opts.cfg.DirPerm()); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), LockTimeout)
		defer cancel()

		l, err := lockfile.Acquire(ctx, filepath.Join(opts.cfg.CacheDir, lockFileName), 0, opts.logger)
		if err != nil {
			return err
		}
		defer l.Release()
	}

	a, err := app.New(opts.cfg, opts.logger)
	if err != nil {
		return err
	}
	return fn(a)
}

func newInitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the data, asset, cache, store and recycle folders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := workenv.Init(opts.cfg, version)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range specs {
				fmt.Fprintf(out, "%-8s %s\n", s.Role, s.Path)
			}
			return nil
		},
	}
}

func newPickCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pick [count]",
		Short: "Print random files from the index",
		Long:  "Print count random files (default 1, capped at max_batch_size). Missing files trigger an index rebuild.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 1
			if len(args) == 1 {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < 1 {
					return fmt.Errorf("%w: count must be a positive integer, got %q", errUsage, args[0])
				}
				n = v
			}

			return withApp(cmd, opts, true, func(a *app.App) error {
				picks, err := a.Pick(n)
				for _, p := range picks {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return err
			})
		},
	}
}

func newMarkCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mark <file> <score>",
		Short: "Move a file into the level directory for score",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			score, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("%w: score must be an integer, got %q", errUsage, args[1])
			}

			return withApp(cmd, opts, true, func(a *app.App) error {
				dest, err := a.Mark(args[0], score)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Evaluated %s as %d -> %s\n", args[0], score, dest)
				return nil
			})
		},
	}
}

func newIndexCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect or rebuild the file index",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "rebuild",
			Short: "Walk the asset directories and rewrite the cache",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, opts, true, func(a *app.App) error {
					if err := a.Rebuild(); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d files\n", a.Info().Files)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "info",
			Short: "Show index size and sources",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, opts, true, func(a *app.App) error {
					info := a.Info()
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "Files:   %d\n", info.Files)
					fmt.Fprintf(out, "Cache:   %s\n", info.CachePath)
					for _, dir := range info.AssetDirs {
						fmt.Fprintf(out, "Asset:   %s\n", dir)
					}
					for _, dir := range info.IgnoreDirs {
						fmt.Fprintf(out, "Ignored: %s\n", dir)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "Print every indexed path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, opts, true, func(a *app.App) error {
					for _, p := range a.Paths() {
						fmt.Fprintln(cmd.OutOrStdout(), p)
					}
					return nil
				})
			},
		},
	)
	return cmd
}

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the cache signature and report stale entries without rebuilding",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(opts.cfg.CacheDir, selector.CacheFileName)
			report, err := app.VerifyCache(path, seal.DeriveKey(opts.cfg.CacheKey), opts.logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			status := "✓"
			if !report.Valid {
				status = "✗"
			}
			fmt.Fprintf(out, "%s %s (%d bytes)\n", status, report.Path, report.Bytes)
			fmt.Fprintf(out, "  tag:     %s\n", report.Fingerprint)
			if !report.Valid {
				return errors.New("cache signature invalid; it will be rebuilt on next use")
			}
			fmt.Fprintf(out, "  entries: %d\n", report.Entries)
			fmt.Fprintf(out, "  missing: %d\n", len(report.Missing))
			for _, p := range report.Missing {
				fmt.Fprintf(out, "    %s\n", p)
			}
			return nil
		},
	}
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show how many files each level holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, true, func(a *app.App) error {
				counts, err := a.Stats()
				if err != nil {
					return err
				}
				scores := make([]int, 0, len(counts))
				for s := range counts {
					scores = append(scores, s)
				}
				sort.Ints(scores)

				out := cmd.OutOrStdout()
				if m := workenv.ReadMarker(opts.cfg.DataDir); m != nil {
					fmt.Fprintf(out, "Initialized %s by %s\n", m.Timestamp.Format(time.RFC3339), m.Version)
				}
				total := 0
				for _, s := range scores {
					fmt.Fprintf(out, "level%-3d %d\n", s, counts[s])
					total += counts[s]
				}
				fmt.Fprintf(out, "total    %d\n", total)
				return nil
			})
		},
	}
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild the index whenever the asset directories change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// No cross-process lock here: the watcher runs indefinitely and
			// cache replacement is an atomic rename.
			return withApp(cmd, opts, false, func(a *app.App) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Watching %d files\n", a.Info().Files)
				return a.Watch(ctx, debounce, func(files int, err error) {
					if err == nil {
						fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d files\n", files)
					}
				})
			})
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Quiet period before rebuilding")
	return cmd
}
