package cli

import (
	"context"
	"io"

	"github.com/calvinalkan/errthang/internal/config"
	"github.com/calvinalkan/errthang/internal/watcher"
)

// WatchCmd builds the `errthang watch <root>...` command: an initial index
// of every given root, then a live FSWatcher attached to the running
// engine until the process is interrupted.
func WatchCmd() *Command {
	return &Command{
		Usage: "watch <root>...",
		Short: "Index roots, then watch them and apply live updates",
		Exec:  runWatch,
	}
}

func runWatch(ctx context.Context, out, errOut io.Writer, args []string) error {
	if len(args) == 0 {
		fprintln(errOut, "error: watch requires at least one root directory")

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

	w, err := watcher.New(d.catalog, d.engine, cfg.ExcludePrefixes, log)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	for _, root := range cfg.RootsAbs {
		if err := w.AddRecursive(root); err != nil {
			return err
		}
	}

	fprintln(out, "watching for changes, press ctrl-c to stop")

	for {
		select {
		case evt := <-d.engine.Events():
			fprintf(out, "%s item_count=%d generation=%d\n", evt.Kind, evt.ItemCount, evt.Generation)
		case <-ctx.Done():
			return nil
		}
	}
}
