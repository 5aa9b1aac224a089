package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/calvinalkan/errthang/internal/config"
	"github.com/calvinalkan/errthang/internal/engine"
	"github.com/calvinalkan/errthang/pkg/index"
)

// ReplCmd builds the `errthang repl` command: an interactive prompt that
// runs a search on every submitted line and prints a result table.
func ReplCmd() *Command {
	return &Command{
		Usage: "repl [root...]",
		Short: "Interactive search prompt",
		Exec:  runRepl,
	}
}

func runRepl(ctx context.Context, out, errOut io.Writer, args []string) error {
	log := loggerFrom(ctx)

	input := configInputFrom(ctx)
	if len(args) > 0 {
		input.RootsOverride = args
	}

	cfg, err := config.LoadConfig(input)
	if err != nil {
		return err
	}

	d, err := openDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	if len(args) > 0 {
		for _, root := range cfg.RootsAbs {
			if _, err := d.engine.IndexRoot(ctx, root); err != nil {
				return err
			}
		}
	}

	r := &repl{ctx: ctx, out: out, deps: d}

	return r.run()
}

type repl struct {
	ctx   context.Context
	out   io.Writer
	deps  *deps
	liner *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".errthang_history")
}

func (r *repl) run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = r.liner.ReadHistory(f)
		_ = f.Close()
	}

	fprintln(r.out, "errthang repl - type 'help' for available commands")

	for {
		line, err := r.liner.Prompt("errthang> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fprintln(r.out, "bye")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		cmdArgs := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			r.saveHistory()

			return nil
		case "help", "?":
			r.printHelp()
		case "search", "find":
			r.cmdSearch(cmdArgs)
		case "put":
			r.cmdPut(cmdArgs)
		case "rm", "del", "delete":
			r.cmdRemove(cmdArgs)
		case "index":
			r.cmdIndex(cmdArgs)
		default:
			// A bare query with no verb is the common case: treat the whole
			// line as a search.
			r.cmdSearch(parts)
		}
	}

	r.saveHistory()

	return nil
}

func (r *repl) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}

	if f, err := os.Create(path); err == nil {
		_, _ = r.liner.WriteHistory(f)
		_ = f.Close()
	}
}

func (r *repl) completer(line string) []string {
	commands := []string{"search", "find", "put", "rm", "del", "delete", "index", "help", "exit", "quit", "q"}

	lower := strings.ToLower(line)

	var completions []string

	for _, c := range commands {
		if strings.HasPrefix(c, lower) {
			completions = append(completions, c)
		}
	}

	return completions
}

func (r *repl) printHelp() {
	fprintln(r.out, "Commands:")
	fprintln(r.out, "  <query>               Search (shorthand for 'search <query>')")
	fprintln(r.out, "  search <query> [n]    Search, limiting to n results (default 20)")
	fprintln(r.out, "  put <path>            Re-stat path and apply it as a live update")
	fprintln(r.out, "  rm <path>             Tombstone path")
	fprintln(r.out, "  index <root>          Crawl root and rebuild the snapshot")
	fprintln(r.out, "  help                  Show this help")
	fprintln(r.out, "  exit / quit / q       Exit")
}

const defaultReplLimit = 20

func (r *repl) cmdSearch(args []string) {
	if len(args) == 0 {
		fprintln(r.out, "usage: search <query> [limit]")

		return
	}

	limit := defaultReplLimit
	query := args

	if len(args) > 1 {
		if n, err := strconv.Atoi(args[len(args)-1]); err == nil {
			limit = n
			query = args[:len(args)-1]
		}
	}

	result, err := r.deps.engine.Search(r.ctx, engine.SearchRequest{
		Query:     strings.Join(query, " "),
		Key:       index.SortByName,
		Ascending: true,
		Limit:     limit,
	})
	if err != nil {
		fprintln(r.out, "error:", err)

		return
	}

	fprintf(r.out, "%d result(s) (%d total)\n", len(result.Entries), result.TotalCount)

	for _, entry := range result.Entries {
		item, err := r.deps.engine.Materialize(entry, result.Overlay)
		if err != nil {
			fprintln(r.out, "error:", err)

			continue
		}

		fprintf(r.out, "  %-10d %-20s %s\n", item.Size, item.ModTime.Format("2006-01-02 15:04"), item.Path)
	}
}

func (r *repl) cmdPut(args []string) {
	if len(args) != 1 {
		fprintln(r.out, "usage: put <path>")

		return
	}

	path := args[0]

	info, err := os.Stat(path)
	if err != nil {
		fprintln(r.out, "error:", err)

		return
	}

	name := filepath.Base(path)
	item := index.Item{
		Path:      path,
		Name:      name,
		LowerName: index.LowerASCII(name),
		IsDir:     info.IsDir(),
		Size:      info.Size(),
		ModTime:   info.ModTime(),
	}

	if err := r.deps.catalog.Upsert(r.ctx, item); err != nil {
		fprintln(r.out, "error:", err)

		return
	}

	if err := r.deps.engine.Put(r.ctx, item); err != nil {
		fprintln(r.out, "error:", err)
	}
}

func (r *repl) cmdRemove(args []string) {
	if len(args) != 1 {
		fprintln(r.out, "usage: rm <path>")

		return
	}

	path := args[0]

	if err := r.deps.catalog.Delete(r.ctx, path); err != nil {
		fprintln(r.out, "error:", err)

		return
	}

	if err := r.deps.engine.Remove(r.ctx, path); err != nil {
		fprintln(r.out, "error:", err)
	}
}

func (r *repl) cmdIndex(args []string) {
	if len(args) != 1 {
		fprintln(r.out, "usage: index <root>")

		return
	}

	n, err := r.deps.engine.IndexRoot(r.ctx, args[0])
	if err != nil {
		fprintln(r.out, "error:", err)

		return
	}

	fprintf(r.out, "indexed %d items\n", n)
}
