package saver

import (
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrEmptyCommand is returned by NewCommandSaver without a command line
var ErrEmptyCommand = errors.New("save command is empty")

// CommandSaver runs an external command that makes the host save everything,
// for example an editor CLI or an xdotool key sequence. The placeholders
// {pid} and {window} are replaced in every argument.
type CommandSaver struct {
	argv []string
}

// NewCommandSaver validates argv
func NewCommandSaver(argv []string) (*CommandSaver, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, ErrEmptyCommand
	}
	return &CommandSaver{argv: append([]string(nil), argv...)}, nil
}

// Expand returns the command line for req
func (c *CommandSaver) Expand(req Request) []string {
	r := strings.NewReplacer(
		"{pid}", strconv.FormatUint(uint64(req.HostPID), 10),
		"{window}", strconv.FormatUint(uint64(req.Window), 10),
	)

	args := make([]string, len(c.argv))
	for i, a := range c.argv {
		args[i] = r.Replace(a)
	}
	return args
}

func (c *CommandSaver) SaveAll(ctx context.Context, req Request) error {
	args := c.Expand(req)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrapf(ctx.Err(), "save command %q timed out", args[0])
		}
		out := strings.TrimSpace(string(output))
		if out != "" {
			return errors.Wrapf(err, "save command %q failed: %s", args[0], out)
		}
		return errors.Wrapf(err, "save command %q failed", args[0])
	}
	return nil
}
