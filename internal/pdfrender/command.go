package pdfrender

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Command pipes HTML through an external converter: HTML on stdin, PDF on
// stdout. The configured string is split on whitespace, so flags are allowed
// ("wkhtmltopdf --quiet - -") but shell syntax is not.
type Command struct {
	name    string
	args    []string
	timeout time.Duration
}

// NewCommand builds a command renderer from the configured command line.
func NewCommand(cmdline string) *Command {
	parts := strings.Fields(cmdline)
	c := &Command{timeout: 60 * time.Second}
	if len(parts) > 0 {
		c.name = parts[0]
		c.args = parts[1:]
	}
	return c
}

// Render runs the converter once. A non-zero exit fails the render with the
// command's stderr in the error.
func (c *Command) Render(ctx context.Context, html []byte) ([]byte, string, error) {
	if c.name == "" {
		return nil, "", fmt.Errorf("empty render command")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.name, c.args...)
	cmd.Stdin = bytes.NewReader(html)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, "", fmt.Errorf("render command: %s", msg)
	}
	return stdout.Bytes(), "pdf", nil
}
