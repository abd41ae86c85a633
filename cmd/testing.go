package cmd

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/spf13/cobra"
)

// mu serialises the executions, as a command keeps its flags and writers between runs.
var mu sync.Mutex

// TestExecute executes command with args and returns everything it writes to stdout and stderr.
func TestExecute(t *testing.T, command *cobra.Command, args ...string) (string, error) {
	t.Helper()

	mu.Lock()
	defer mu.Unlock()

	buf := &syncBuffer{}
	command.SetOut(buf)
	command.SetErr(buf)
	command.SetArgs(args)

	_, err := command.ExecuteContextC(context.Background())

	return buf.String(), err
}

type syncBuffer struct {
	b bytes.Buffer
	m sync.Mutex
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.m.Lock()
	defer b.m.Unlock()

	return b.b.Write(p) //nolint:wrapcheck
}

func (b *syncBuffer) String() string {
	b.m.Lock()
	defer b.m.Unlock()

	return b.b.String()
}
