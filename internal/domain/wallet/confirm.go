package wallet

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Confirmer asks the user before the agent is asked to show its own prompt.
type Confirmer interface {
	Confirm(ctx context.Context, message string) (bool, error)
}

// PromptConfirmer asks on a terminal and accepts y or yes.
type PromptConfirmer struct {
	In  io.Reader
	Out io.Writer
}

func (p PromptConfirmer) Confirm(ctx context.Context, message string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if p.Out != nil {
		fmt.Fprintf(p.Out, "%s [y/N]: ", message)
	}
	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// StaticConfirmer always gives the same answer, for non-interactive runs.
type StaticConfirmer bool

func (s StaticConfirmer) Confirm(context.Context, string) (bool, error) {
	return bool(s), nil
}
