// Package tui renders chat transcripts and listings for the terminal.
package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/arichat-ai/arichat/internal/chat"
)

// ---------- styles ----------

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true)

	archivedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)
)

// Renderer writes formatted output for the chat REPL and the listing
// commands. Assistant messages go through a markdown renderer; user and
// system messages are printed verbatim.
type Renderer struct {
	out   io.Writer
	width int

	mdRenderer      *glamour.TermRenderer
	mdRendererWidth int
}

// NewRenderer creates a renderer for the given terminal width. Width 0
// or less falls back to 80 columns.
func NewRenderer(out io.Writer, width int) *Renderer {
	if width <= 0 {
		width = 80
	}
	return &Renderer{out: out, width: width}
}

// Message prints one transcript entry with a role prefix.
func (r *Renderer) Message(msg chat.Message) {
	switch msg.Role {
	case chat.RoleUser:
		fmt.Fprintf(r.out, "%s %s\n", userStyle.Render("you ❯"), msg.Content)
	case chat.RoleAssistant:
		fmt.Fprintf(r.out, "%s\n%s\n", assistantStyle.Render("ai ⏺"), r.renderMarkdown(msg.Content))
	default:
		fmt.Fprintf(r.out, "%s\n", systemStyle.Render("· "+msg.Content))
	}
}

// Status prints the transient status line (typing indicator, reconnect
// notices). Empty status prints nothing.
func (r *Renderer) Status(s string) {
	if s == "" {
		return
	}
	fmt.Fprintln(r.out, statusStyle.Render(s))
}

func (r *Renderer) Info(s string) {
	fmt.Fprintln(r.out, s)
}

func (r *Renderer) Error(s string) {
	fmt.Fprintln(r.out, errorStyle.Render("error: "+s))
}

// Conversations prints the session listing as a fixed-width table.
func (r *Renderer) Conversations(convs []chat.Conversation) {
	if len(convs) == 0 {
		fmt.Fprintln(r.out, systemStyle.Render("no conversations"))
		return
	}
	titleWidth := r.width - 34
	if titleWidth < 12 {
		titleWidth = 12
	}
	fmt.Fprintf(r.out, "%s\n", headerStyle.Render(
		pad("ID", 6)+pad("TITLE", titleWidth)+pad("MSGS", 6)+"LAST ACTIVITY"))
	for _, c := range convs {
		line := pad(fmt.Sprint(c.ID), 6) +
			pad(truncate(c.Title, titleWidth-2), titleWidth) +
			pad(fmt.Sprint(c.MessageCount), 6) +
			formatAge(c.LastActivity)
		if c.IsArchived {
			line = archivedStyle.Render(line + "  (archived)")
		}
		fmt.Fprintln(r.out, line)
	}
}

// Table prints a generic aligned table, used by the admin listings.
func (r *Renderer) Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				if w := runewidth.StringWidth(cell); w > widths[i] {
					widths[i] = w
				}
			}
		}
	}

	var b strings.Builder
	for i, h := range headers {
		b.WriteString(pad(h, widths[i]+2))
	}
	fmt.Fprintln(r.out, headerStyle.Render(strings.TrimRight(b.String(), " ")))

	for _, row := range rows {
		b.Reset()
		for i, cell := range row {
			if i < len(widths) {
				b.WriteString(pad(cell, widths[i]+2))
			}
		}
		fmt.Fprintln(r.out, strings.TrimRight(b.String(), " "))
	}
}

// ---------- markdown rendering ----------

func (r *Renderer) getMarkdownRenderer() *glamour.TermRenderer {
	wrapWidth := r.width - 4
	if r.mdRenderer != nil && r.mdRendererWidth == wrapWidth {
		return r.mdRenderer
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		return nil
	}
	r.mdRenderer = md
	r.mdRendererWidth = wrapWidth
	return md
}

func (r *Renderer) renderMarkdown(text string) string {
	md := r.getMarkdownRenderer()
	if md == nil {
		return text
	}
	rendered, err := md.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(rendered, "\n")
}

// ---------- helpers ----------

// truncate shortens s to the given display width, appending "…" if cut.
// Width is measured in terminal cells, not bytes.
func truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// pad right-pads s with spaces to the given display width.
func pad(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// formatAge renders a timestamp as a compact relative age.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}
