package cli

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/errthang/internal/config"
)

// Run is the main entry point. Returns the process exit code. sigCh can be
// nil if signal handling is not needed (e.g. in tests).
func Run(_ io.Reader, out, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globalFlags := flag.NewFlagSet("errthang", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.Usage = func() {}
	globalFlags.SetOutput(&strings.Builder{})

	flagHelp := globalFlags.BoolP("help", "h", false, "Show help")
	flagCwd := globalFlags.StringP("cwd", "C", "", "Run as if started in `dir`")
	flagConfig := globalFlags.StringP("config", "c", "", "Use specified config `file`")
	flagDB := globalFlags.String("db", "", "Override catalog `directory`")
	flagSnapshot := globalFlags.String("snapshot", "", "Override binary snapshot `path`")
	flagExclude := globalFlags.StringSlice("exclude", nil, "Path prefixes to skip while crawling")
	flagDebounce := globalFlags.String("debounce", "", "Rebuild debounce `interval` (e.g. 2s)")
	flagDebug := globalFlags.Bool("debug", false, "Enable debug logging")

	if err := globalFlags.Parse(args[1:]); err != nil {
		fprintln(errOut, "error:", err)
		printGlobalOptions(errOut)

		return 1
	}

	commandAndArgs := globalFlags.Args()

	// allCommands' Exec closures load their own config once they know
	// their positional root arguments (via configInputFrom), since index/
	// watch take roots as <root>... after the subcommand name.
	commands := allCommands(env)

	commandMap := make(map[string]*Command, len(commands))
	for _, cmd := range commands {
		commandMap[cmd.Name()] = cmd
	}

	if *flagHelp || (len(commandAndArgs) == 0 && globalFlags.NFlag() == 0) {
		printUsage(out, commands)

		return 0
	}

	if len(commandAndArgs) == 0 {
		fprintln(errOut, "error: no command provided")
		printUsage(errOut, commands)

		return 1
	}

	cmdName := commandAndArgs[0]

	cmd, ok := commandMap[cmdName]
	if !ok {
		fprintln(errOut, "error: unknown command:", cmdName)
		printUsage(errOut, commands)

		return 1
	}

	log := newLogger(*flagDebug)
	defer func() { _ = log.Sync() }()

	ctx := context.WithValue(context.Background(), loggerKey{}, log)
	ctx = context.WithValue(ctx, configInputKey{}, config.LoadConfigInput{
		WorkDirOverride:  *flagCwd,
		ConfigPath:       *flagConfig,
		ExcludeOverride:  *flagExclude,
		SnapshotOverride: *flagSnapshot,
		CatalogOverride:  *flagDB,
		DebounceOverride: *flagDebounce,
		Env:              env,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan int, 1)

	go func() {
		done <- cmd.Run(ctx, out, errOut, commandAndArgs[1:])
	}()

	select {
	case exitCode := <-done:
		return exitCode
	case <-sigCh:
		fprintln(errOut, "shutting down with 5s timeout...")
		cancel()
	}

	select {
	case <-done:
		fprintln(errOut, "graceful shutdown ok (130)")

		return 130
	case <-time.After(5 * time.Second):
		fprintln(errOut, "graceful shutdown timed out, forced exit (130)")

		return 130
	case <-sigCh:
		fprintln(errOut, "graceful shutdown interrupted, forced exit (130)")

		return 130
	}
}

type loggerKey struct{}

type configInputKey struct{}

func newLogger(debug bool) *zap.SugaredLogger {
	var (
		zl  *zap.Logger
		err error
	)

	if debug {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}

	if err != nil {
		return zap.NewNop().Sugar()
	}

	return zl.Sugar()
}

func loggerFrom(ctx context.Context) *zap.SugaredLogger {
	if log, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok {
		return log
	}

	return zap.NewNop().Sugar()
}

func configInputFrom(ctx context.Context) config.LoadConfigInput {
	if input, ok := ctx.Value(configInputKey{}).(config.LoadConfigInput); ok {
		return input
	}

	return config.LoadConfigInput{}
}

// allCommands returns all commands in display order. Dependencies are
// resolved inside each Exec closure from the context, since roots-dependent
// config loading needs the command's own positional arguments.
func allCommands(env map[string]string) []*Command {
	return []*Command{
		IndexCmd(),
		WatchCmd(),
		ReplCmd(),
	}
}

const globalOptionsHelp = `  -h, --help              Show help
  -C, --cwd <dir>         Run as if started in <dir>
  -c, --config <file>     Use specified config file
  --db <dir>              Override catalog directory
  --snapshot <path>       Override binary snapshot path
  --exclude <prefix>      Path prefix to skip while crawling (repeatable)
  --debounce <interval>   Rebuild debounce interval (e.g. 2s)
  --debug                 Enable debug logging`

func printGlobalOptions(w io.Writer) {
	fprintln(w, "Usage: errthang [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Global flags:")
	fprintln(w, globalOptionsHelp)
	fprintln(w)
	fprintln(w, "Run 'errthang --help' for a list of commands.")
}

func printUsage(w io.Writer, commands []*Command) {
	fprintln(w, "errthang - hybrid static-index + live-delta file search")
	fprintln(w)
	fprintln(w, "Usage: errthang [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Flags:")
	fprintln(w, globalOptionsHelp)
	fprintln(w)
	fprintln(w, "Commands:")

	for _, cmd := range commands {
		fprintln(w, cmd.HelpLine())
	}
}
