package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_MainHelp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{name: "no args", args: []string{"errthang"}},
		{name: "long flag", args: []string{"errthang", "--help"}},
		{name: "short flag", args: []string{"errthang", "-h"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var stdout, stderr bytes.Buffer

			exitCode := Run(nil, &stdout, &stderr, tc.args, nil, nil)

			if exitCode != 0 {
				t.Errorf("exit code = %d, want 0", exitCode)
			}

			out := stdout.String()

			if !strings.Contains(out, "errthang - hybrid static-index") {
				t.Errorf("stdout should contain title, got %q", out)
			}

			if !strings.Contains(out, "index <root>") {
				t.Errorf("stdout should list the index command, got %q", out)
			}

			if !strings.Contains(out, "--exclude") {
				t.Errorf("stdout should contain --exclude option, got %q", out)
			}
		})
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	exitCode := Run(nil, &stdout, &stderr, []string{"errthang", "bogus"}, nil, nil)

	if exitCode != 1 {
		t.Fatalf("exit code = %d, want 1", exitCode)
	}

	if !strings.Contains(stderr.String(), "unknown command") {
		t.Errorf("stderr = %q, want it to mention unknown command", stderr.String())
	}
}

func TestRun_IndexEndToEnd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "needle.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var stdout, stderr bytes.Buffer

	args := []string{
		"errthang",
		"--db", filepath.Join(dir, "catalog"),
		"--snapshot", filepath.Join(dir, "snapshot.bin"),
		"index", dir,
	}

	exitCode := Run(nil, &stdout, &stderr, args, nil, nil)

	require.Equalf(t, 0, exitCode, "stderr = %q", stderr.String())
	require.Contains(t, stdout.String(), "indexed", "stdout should report items indexed")

	_, statErr := os.Stat(filepath.Join(dir, "snapshot.bin"))
	require.NoError(t, statErr, "expected snapshot file to exist")
}

func TestRun_IndexRequiresRoot(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	exitCode := Run(nil, &stdout, &stderr, []string{"errthang", "index"}, nil, nil)

	if exitCode != 0 {
		t.Fatalf("exit code = %d, want 0 (usage error, not a crash)", exitCode)
	}

	if !strings.Contains(stderr.String(), "requires at least one root") {
		t.Errorf("stderr = %q, want usage message", stderr.String())
	}
}
