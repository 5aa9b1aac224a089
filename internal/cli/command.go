package cli

import (
	"context"
	"errors"
	"io"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command defines a CLI command with unified help generation.
type Command struct {
	// Flags defines command-specific flags. May be nil for commands that
	// take no flags of their own.
	Flags *flag.FlagSet

	// Usage is the freeform usage string shown after "errthang" in help.
	// The first word is the command name.
	Usage string

	// Short is a one-line description for the global help listing.
	Short string

	// Exec runs the command after flags are parsed.
	Exec func(ctx context.Context, out, errOut io.Writer, args []string) error
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// HelpLine returns the short help line for the main usage display.
func (c *Command) HelpLine() string {
	return fprintfString("  %-22s %s", c.Usage, c.Short)
}

func fprintfString(format string, a ...any) string {
	var b strings.Builder
	fprintf(&b, format, a...)

	return b.String()
}

// Run parses flags and executes the command. Returns the process exit code.
func (c *Command) Run(ctx context.Context, out, errOut io.Writer, args []string) int {
	flags := c.Flags
	if flags == nil {
		flags = flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	}

	flags.SetOutput(&strings.Builder{}) // discard pflag's own usage printing

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}

		fprintln(errOut, "error:", err)

		return 1
	}

	if err := c.Exec(ctx, out, errOut, flags.Args()); err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	return 0
}
