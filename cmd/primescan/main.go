package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	cfgpkg "primescan/internal/config"
	"primescan/internal/diag"
	"primescan/internal/pipeline"
	"primescan/pkg/contract"
	"primescan/pkg/registry"
)

var pipelineRun = pipeline.Run

// 子命令：scan（默认工作）、list、convert、query、history、init-config。
// 退出码：0 成功；1 运行故障；3 环境/配置错误；130 被中断（已输出部分结果）。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// app 保存一次进程调用的共享状态（旗标、viper 实例、日志器）。
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	v           *viper.Viper
	configPath  string
	metricsFile string
	logLevel    string
	status      bool

	root   *cobra.Command
	corrID string
	logger *diag.Logger
	start  time.Time
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		v:      viper.New(),
		corrID: uuid.NewString(),
		start:  time.Now(),
	}
	registry.Stdout = stdout
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	code := diag.ExitCode(err)
	if err != nil {
		c := diag.Classify(err)
		a.logger.Error("cli", string(c), err.Error(), &a.start)
		diag.IncOp("cli", "error", "error")
		if c != diag.CodeUnknown {
			diag.IncError("cli", string(c))
		}
		if c != diag.CodeCancel {
			fprintf(stderr, "error: %v\n", err)
			if id := a.logger.CorrID(); id != "" {
				fprintf(stderr, "see logs/ for corr_id=%s\n", id)
			}
		}
	}
	if a.metricsFile != "" {
		if merr := diag.WriteMetricsFile(a.metricsFile); merr != nil {
			fprintf(stderr, "metrics file: %v\n", merr)
		}
	}
	if a.logger != nil {
		_ = a.logger.Close()
	}
	return code
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "primescan",
		Short: "Find the longest ascending run of primes in a binary file of fixed-width integers",
		Long: `primescan scans a flat file of little-endian fixed-width unsigned integers,
tests each value for primality and reports the longest run of primes whose
values strictly increase in file order.

The file is split into chunks scanned in parallel; chunk summaries are
stitched so the result matches a serial scan. Ctrl+C stops the scan and
reports a partial (unstitched) result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := a.logLevel
			if level == "" {
				level = "info"
			}
			if !diag.ValidLevel(level) {
				return fmt.Errorf("%w: --log-level %q must be debug|info|warn|error", contract.ErrInvalidInput, level)
			}
			a.logger = diag.NewLogger(a.corrID, level)
			return nil
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", contract.ErrInvalidInput, err)
	})
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (YAML or JSON); defaults to $"+cfgpkg.EnvConfigFile+" or ./"+cfgpkg.DefaultFile)
	pf.StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus text metrics to this file on exit")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug|info|warn|error (overrides logging.level)")
	pf.BoolVar(&a.status, "status", true, "terminal progress on stderr")

	a.root = root
	root.AddCommand(
		a.scanCmd(),
		a.listCmd(),
		a.convertCmd(),
		a.queryCmd(),
		a.historyCmd(),
		a.initConfigCmd(),
	)
	return root
}

// bind 把当前子命令的旗标绑定到 viper 键。
// 只在子命令执行时绑定：多个子命令共用同一键，viper 只保留最后一次绑定。
func (a *app) bind(cmd *cobra.Command, keys map[string]string) error {
	for key, name := range keys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			return fmt.Errorf("flag --%s not defined on %s", name, cmd.Name())
		}
		if err := a.v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// load 叠加配置层；input 非空时作为最高优先级写入。
func (a *app) load(input string) (cfgpkg.Config, error) {
	if err := a.v.BindPFlag("logging.level", a.rootFlag("log-level")); err != nil {
		return cfgpkg.Config{}, err
	}
	if input != "" {
		a.v.Set("input", input)
	}
	cfg, err := cfgpkg.Load(a.v, a.configPath)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	if cfg.Logging.Level != "" && diag.ValidLevel(cfg.Logging.Level) {
		a.logger.SetLevel(cfg.Logging.Level)
	}
	return cfg, nil
}

func (a *app) rootFlag(name string) *pflag.Flag {
	return a.root.PersistentFlags().Lookup(name)
}

// exactArgs 与 cobra.ExactArgs 相同，但参数错误归为配置错误（退出码 3）。
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return fmt.Errorf("%w: %v", contract.ErrInvalidInput, err)
		}
		return nil
	}
}

func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return fmt.Errorf("%w: %v", contract.ErrInvalidInput, err)
		}
		return nil
	}
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return strings.TrimSpace(args[0])
}
