package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	cfgpkg "primescan/internal/config"
	"primescan/internal/diag"
	"primescan/internal/oracle"
	"primescan/internal/tools"
	"primescan/pkg/contract"
	wsqlite "primescan/plugins/writer/sqlite"
)

// 共享的判定器旗标 → viper 键。
var oracleKeys = map[string]string{
	"components.oracle":      "oracle",
	"components.accelerator": "accelerator",
	"accelerator.lower":      "lower",
	"accelerator.upper":      "upper",
	"oracle.cache_size":      "cache-size",
}

func addOracleFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("oracle", "", "primality oracle: millerrabin|trial|set")
	f.String("accelerator", "", "precomputed table: sieve (empty disables)")
	f.Uint64("lower", 0, "lower bound of the precomputed table")
	f.Uint64("upper", 0, "upper bound of the precomputed table")
	f.Int("cache-size", 0, "LRU memo of oracle results (0 disables)")
}

func merge(maps ...map[string]string) map[string]string {
	out := map[string]string{}
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func (a *app) scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <file>",
		Short: "Scan a binary file for the longest ascending run of primes",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := a.bind(cmd, merge(oracleKeys, map[string]string{
				"threads":            "threads",
				"element_width":      "width",
				"block_bytes":        "block-bytes",
				"serial_threshold":   "serial-threshold",
				"no_stitch":          "no-stitch",
				"composites":         "composites",
				"components.writers": "writer",
			}))
			if err != nil {
				return err
			}
			cfg, err := a.load(firstArg(args))
			if err != nil {
				return err
			}
			return a.scan(cmd, cfg)
		},
	}
	f := cmd.Flags()
	f.Int("threads", 0, "worker count (0 = 1 for small inputs, else NumCPU)")
	f.Int("width", cfgpkg.DefaultElementWidth, "element width in bytes (1..8)")
	f.Int("block-bytes", 0, "bytes read per sub-block between cancellation checks")
	f.Int64("serial-threshold", 0, "inputs smaller than this many bytes use one worker")
	f.Bool("no-stitch", false, "compare chunk bests only, without stitching across chunks")
	f.String("composites", "", "composite handling: skip (ignore) | break (end the current run)")
	f.StringSlice("writer", nil, "result writers: console, fs, sqlite (repeatable)")
	addOracleFlags(cmd)
	return cmd
}

func (a *app) scan(cmd *cobra.Command, cfg cfgpkg.Config) error {
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		return err
	}
	defer comp.Close()

	term := diag.NewTerminal(a.stderr, a.status)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)

	a.logger.DebugStart("config", "effective", cfg.Input, "", map[string]string{
		"threads":     fmt.Sprintf("%d", cfg.Threads),
		"width":       fmt.Sprintf("%d", cfg.ElementWidth),
		"stitch":      fmt.Sprintf("%t", !cfg.NoStitch),
		"composites":  cfg.Composites,
		"source":      cfg.Components.Source,
		"oracle":      cfg.Components.Oracle,
		"accelerator": cfg.Components.Accelerator,
		"writers":     strings.Join(cfg.Components.Writers, ","),
	})

	t := a.logger.StartWith("pipeline", "run", cfg.Input, "")
	rep, err := pipelineRun(cmd.Context(), comp, set, a.logger)
	if err != nil {
		term.RunFinish(false, time.Since(a.start))
		return err
	}
	t.Finish("run", int64(rep.Result.Length))
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "finish", time.Since(a.start).Milliseconds())
	term.RunFinish(true, time.Since(a.start))
	return nil
}

func (a *app) listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <file>",
		Short: "Print every prime in file order with its rank and byte offset",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.bind(cmd, merge(oracleKeys, map[string]string{"element_width": "width"})); err != nil {
				return err
			}
			cfg, err := a.load(args[0])
			if err != nil {
				return err
			}
			orc, stop, err := a.oracle(cmd, cfg)
			if err != nil {
				return err
			}
			defer stop()
			if err := contract.CheckHostByteOrder(); err != nil {
				return err
			}
			opener, err := cfgpkg.AssembleSource(cfg)
			if err != nil {
				return err
			}
			src, err := opener.Open(cmd.Context(), cfg.Input, cfg.ElementWidth)
			if err != nil {
				return err
			}
			defer src.Close()
			t := a.logger.StartWith("list", "primes", cfg.Input, "")
			n, err := tools.List(cmd.Context(), src, orc, cfg.BlockBytes, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			t.Finish("primes", int64(n))
			return nil
		},
	}
	cmd.Flags().Int("width", cfgpkg.DefaultElementWidth, "element width in bytes (1..8)")
	addOracleFlags(cmd)
	return cmd
}

func (a *app) convertCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "convert <text-file>",
		Short: "Convert whitespace-separated decimal numbers to a binary input file",
		Long: `Reads whitespace-separated decimal numbers and writes them as little-endian
integers of the configured width. Tokens that do not parse or do not fit the
width are written as 0. The output defaults to bin_<name> next to the input.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.bind(cmd, map[string]string{"element_width": "width"}); err != nil {
				return err
			}
			cfg, err := a.load("")
			if err != nil {
				return err
			}
			if err := cfgpkg.ValidateComponents(cfg); err != nil {
				return err
			}
			t := a.logger.StartWith("convert", "write", args[0], "")
			dst, n, err := tools.ConvertFile(cmd.Context(), args[0], out, cfg.ElementWidth)
			if err != nil {
				return err
			}
			t.Finish("write", int64(n))
			fprintf(cmd.OutOrStdout(), "Wrote %s numbers (%d-byte) to %s\n", humanize.Comma(int64(n)), cfg.ElementWidth, dst)
			return nil
		},
	}
	cmd.Flags().Int("width", cfgpkg.DefaultElementWidth, "output element width in bytes (1..8)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default bin_<name>)")
	return cmd
}

func (a *app) queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Read numbers from stdin and answer Prime or Composite until \"exit\"",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.bind(cmd, oracleKeys); err != nil {
				return err
			}
			cfg, err := a.load("")
			if err != nil {
				return err
			}
			orc, stop, err := a.oracle(cmd, cfg)
			if err != nil {
				return err
			}
			defer stop()
			n, err := tools.Query(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), orc)
			a.logger.InfoFinish("query", "answered", a.start, int64(n))
			return err
		},
	}
	addOracleFlags(cmd)
	return cmd
}

// oracle 装配判定器；配置了加速器时先建表（进度输出到终端），返回的 stop 释放表。
func (a *app) oracle(cmd *cobra.Command, cfg cfgpkg.Config) (contract.Oracle, func(), error) {
	base, acc, err := cfgpkg.AssembleOracle(cfg)
	if err != nil {
		return nil, nil, err
	}
	stop := func() {}
	if acc != nil {
		term := diag.NewTerminal(a.stderr, a.status)
		term.PhaseStart("table")
		t := a.logger.StartWith("accelerator", "init", "", "")
		if err := acc.Init(cmd.Context(), cfg.Accelerator.Lower, cfg.Accelerator.Upper, term.Progress); err != nil {
			return nil, nil, fmt.Errorf("accelerator init: %w", err)
		}
		term.PhaseFinish(0)
		t.Finish("init", 0)
		stop = acc.Destroy
	}
	orc, err := oracle.Build(base, acc, cfg.Oracle.CacheSize)
	if err != nil {
		stop()
		return nil, nil, err
	}
	return orc, stop, nil
}

func (a *app) historyCmd() *cobra.Command {
	var (
		dbPath string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history [file]",
		Short: "Show recent scan results recorded by the sqlite writer",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load("")
			if err != nil {
				return err
			}
			path := dbPath
			if path == "" {
				if p, ok := cfg.Options.Writers["sqlite"]["path"].(string); ok {
					path = p
				}
			}
			if path == "" {
				return fmt.Errorf("%w: no database: pass --db or set options.writers.sqlite.path", contract.ErrInvalidInput)
			}
			store, err := wsqlite.New(&wsqlite.Options{Path: path})
			if err != nil {
				return err
			}
			defer store.Close()
			input := ""
			if len(args) == 1 {
				input = contract.NormalizeInput(args[0])
			}
			reps, err := store.Recent(cmd.Context(), input, limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(reps) == 0 {
				fprintf(w, "No scans recorded.\n")
				return nil
			}
			for _, r := range reps {
				state := "full"
				if r.Partial {
					state = "partial@" + string(r.State)
				}
				fprintf(w, "%s  %-14s  %s  threads=%d  %s  length=%d first=%d@%d\n",
					r.ID[:min(8, len(r.ID))], humanize.Time(r.StartedAt), filepath.Base(r.Input),
					r.Threads, state, r.Result.Length, r.Result.FirstValue, r.Result.FirstOffset)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite database (default options.writers.sqlite.path)")
	cmd.Flags().IntVar(&limit, "limit", 10, "number of scans to show")
	return cmd
}

func (a *app) initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir|-]",
		Short: "Write a default " + cfgpkg.DefaultFile + " (never overwrites)",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := firstArg(args)
			if dir == "" {
				dir = "."
			}
			if dir == "-" {
				b, err := cfgpkg.Template()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("%w: init-config: %v", contract.ErrInvalidInput, err)
			}
			path := filepath.Join(dir, cfgpkg.DefaultFile)
			if err := cfgpkg.WriteTemplate(path); err != nil {
				return fmt.Errorf("%w: init-config: %v", contract.ErrInvalidInput, err)
			}
			fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
}
