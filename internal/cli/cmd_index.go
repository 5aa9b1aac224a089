package cli

import (
	"context"
	"io"

	"github.com/calvinalkan/errthang/internal/config"
)

// IndexCmd builds the `errthang index <root>...` command: a one-shot crawl
// of every given root into the catalog, followed by a synchronous snapshot
// rebuild.
func IndexCmd() *Command {
	return &Command{
		Usage: "index <root>...",
		Short: "Crawl one or more directories and build a binary snapshot",
		Exec:  runIndex,
	}
}

func runIndex(ctx context.Context, out, errOut io.Writer, args []string) error {
	if len(args) == 0 {
		fprintln(errOut, "error: index requires at least one root directory")

		return nil
	}

	log := loggerFrom(ctx)

	input := configInputFrom(ctx)
	input.RootsOverride = args

	cfg, err := config.LoadConfig(input)
	if err != nil {
		return err
	}

	d, err := openDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	for _, root := range cfg.RootsAbs {
		n, err := d.engine.IndexRoot(ctx, root)
		if err != nil {
			return err
		}

		fprintf(out, "indexed %d items under %s\n", n, root)
	}

	return nil
}
