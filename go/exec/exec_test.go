package exec

import (
	"bytes"
	"context"
	"testing"
	"time"

	assert "github.com/stretchr/testify/require"

	"mobileci/go/testutils"
)

func TestRun_InjectedContext(t *testing.T) {
	testutils.SmallTest(t)

	var actual *Command
	ctx := NewContext(context.Background(), func(command *Command) error {
		actual = command
		return nil
	})
	assert.NoError(t, Run(ctx, &Command{Name: "touch", Args: []string{"foo"}}))
	assert.Equal(t, "touch", actual.Name)
	assert.Equal(t, []string{"foo"}, actual.Args)
}

func TestRun_DefaultContext(t *testing.T) {
	testutils.MediumTest(t)

	output := bytes.Buffer{}
	err := Run(context.Background(), &Command{
		Name:           "bash",
		Args:           []string{"-c", "echo hello"},
		CombinedOutput: &output,
		Verbose:        Silent,
	})
	assert.NoError(t, err)
	assert.Equal(t, "hello\n", output.String())
}

func TestRun_NonZeroExitIsError(t *testing.T) {
	testutils.MediumTest(t)

	err := Run(context.Background(), &Command{
		Name:    "bash",
		Args:    []string{"-c", "exit 7"},
		Verbose: Silent,
	})
	assert.Error(t, err)
}

func TestRunIndefinitely(t *testing.T) {
	testutils.MediumTest(t)

	output := bytes.Buffer{}
	_, done, err := RunIndefinitely(&Command{
		Name:           "bash",
		Args:           []string{"-c", "echo started"},
		CombinedOutput: &output,
		Verbose:        Silent,
	})
	assert.NoError(t, err)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("command did not exit")
	}
	assert.Equal(t, "started\n", output.String())
}

func TestDebugString(t *testing.T) {
	testutils.SmallTest(t)

	assert.Equal(t, "A=B make all", DebugString(&Command{
		Name: "make",
		Args: []string{"all"},
		Env:  []string{"A=B"},
	}))
}
