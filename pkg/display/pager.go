package display

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/AliciaSchep/pgchat/pkg/db"
)

// Pager shows long output through less when it is available, and writes it
// straight to Out otherwise
type Pager struct {
	Out io.Writer
	// Height is the number of lines that fit without paging
	Height int
	// Command is the pager program, "less" when empty
	Command string
}

// NewPager returns a pager for stdout sized to the terminal
func NewPager() *Pager {
	_, height := GetTerminalSize()
	return &Pager{Out: os.Stdout, Height: height}
}

// Available reports whether the pager program can be found
func (p *Pager) Available() bool {
	_, err := exec.LookPath(p.command())
	return err == nil
}

// Show writes content directly when it fits on screen and pages it otherwise
func (p *Pager) Show(ctx context.Context, title, content string) error {
	if strings.Count(content, "\n") < p.Height-2 || !p.Available() {
		_, err := io.WriteString(p.Out, content)
		return err
	}

	cmd := exec.CommandContext(ctx, p.command(), "-S", "-R")
	cmd.Stdin = strings.NewReader(content)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	fmt.Fprintf(p.Out, "📖 Opening %s in %s (press 'q' to exit)...\n", title, p.command())
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("error running %s: %w", p.command(), err)
	}
	return nil
}

func (p *Pager) command() string {
	if p.Command == "" {
		return "less"
	}
	return p.Command
}

// ResultContent renders a titled result table for paging
func ResultContent(title string, res *db.QueryResult, width int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s\n", title)
	b.WriteString(strings.Repeat("=", len(title)+4) + "\n\n")
	if err := RenderResult(&b, res, width); err != nil {
		fmt.Fprintf(&b, "failed to render result: %v\n", err)
	}
	return b.String()
}
