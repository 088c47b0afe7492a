package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/moolen/sre-assistant/internal/agent/coordinator"
)

var (
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	toolStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

// eventPrinter writes turn events to a terminal or as JSON lines.
type eventPrinter struct {
	out      io.Writer
	jsonMode bool
	// markdown renders the collected answer after the turn instead of
	// streaming raw chunks.
	markdown bool
	width    int
	response strings.Builder
}

func newEventPrinter(out io.Writer, jsonMode bool) *eventPrinter {
	p := &eventPrinter{out: out, jsonMode: jsonMode, width: 100}
	f, ok := out.(*os.File)
	if !ok || jsonMode || !term.IsTerminal(int(f.Fd())) {
		return p
	}
	p.markdown = true
	if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 20 {
		p.width = w - 4
	}
	return p
}

// Print handles one event. Chunks are buffered when rendering markdown.
func (p *eventPrinter) Print(e coordinator.Event) error {
	if p.jsonMode {
		line, err := json.Marshal(e)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(p.out, string(line))
		return err
	}

	switch e.Type {
	case coordinator.EventThinking:
		fmt.Fprintln(p.out, statusStyle.Render(e.Status))
	case coordinator.EventToolUse:
		fmt.Fprintln(p.out, toolStyle.Render("→ "+e.Status))
	case coordinator.EventAgentMessage:
		if p.markdown {
			p.response.WriteString(e.Content)
			return nil
		}
		fmt.Fprint(p.out, e.Content)
	case coordinator.EventComplete:
		p.flush()
	case coordinator.EventError:
		p.flush()
		fmt.Fprintln(p.out, errorStyle.Render("Error: "+e.Message))
	}
	return nil
}

func (p *eventPrinter) flush() {
	if !p.markdown {
		fmt.Fprintln(p.out)
		return
	}
	text := p.response.String()
	p.response.Reset()
	if text == "" {
		return
	}
	fmt.Fprint(p.out, renderMarkdown(text, p.width))
}

func renderMarkdown(text string, width int) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return text + "\n"
	}
	out, err := renderer.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
