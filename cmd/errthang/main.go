// errthang indexes a set of directories into a memory-mapped binary
// snapshot, overlays live filesystem changes on top of it, and answers
// interactive substring queries.
//
// Usage:
//
//	errthang index <root>...   One-shot crawl and snapshot build
//	errthang watch <root>...   Index, then apply live updates until stopped
//	errthang repl [root...]    Interactive search prompt
package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/calvinalkan/errthang/internal/cli"
)

func main() {
	env := make(map[string]string, len(os.Environ()))

	for _, kv := range os.Environ() {
		key, val, found := strings.Cut(kv, "=")
		if found {
			env[key] = val
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	exitCode := cli.Run(os.Stdin, os.Stdout, os.Stderr, os.Args, env, sigCh)

	os.Exit(exitCode)
}
