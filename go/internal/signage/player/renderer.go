package player

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mcdev12/signage/go/internal/models"
	"github.com/mcdev12/signage/go/internal/playback"
	"github.com/mcdev12/signage/go/internal/signage/events"
	"github.com/rs/zerolog/log"
)

// Slide is a resolved step: the menu it belongs to and, for image sets, the
// image to show.
type Slide struct {
	Index  int
	Step   playback.Step
	MenuID string
	Kind   models.MenuKind
	Image  *models.ImageRef
}

// SlideRenderer paints slides. Calls come from the scheduler with its lock
// held and must return quickly.
type SlideRenderer interface {
	Show(slide Slide)
	Stage(slide Slide)
	ShowError(reason string)
}

// slideAdapter resolves scheduler steps against the content they were built
// from. It keeps its own copy of the groups so timer callbacks never touch
// the player's lock.
type slideAdapter struct {
	out SlideRenderer

	mu     sync.Mutex
	groups []events.ContentGroup
}

func (a *slideAdapter) setContent(groups []events.ContentGroup) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.groups = append([]events.ContentGroup(nil), groups...)
}

func (a *slideAdapter) resolve(index int, step playback.Step) Slide {
	a.mu.Lock()
	defer a.mu.Unlock()

	slide := Slide{Index: index, Step: step}
	if step.GroupIndex < 0 || step.GroupIndex >= len(a.groups) {
		return slide
	}
	g := a.groups[step.GroupIndex]
	slide.MenuID = g.MenuID
	slide.Kind = g.Kind
	if !step.IsCustom() && step.ImageIndex < len(g.Images) {
		img := g.Images[step.ImageIndex]
		slide.Image = &img
	}
	return slide
}

func (a *slideAdapter) ShowStep(index int, step playback.Step) {
	a.out.Show(a.resolve(index, step))
}

func (a *slideAdapter) StageStep(index int, step playback.Step) {
	a.out.Stage(a.resolve(index, step))
}

func (a *slideAdapter) fail(reason string) {
	a.out.ShowError(reason)
}

// LogRenderer writes slide changes to the structured log.
type LogRenderer struct {
	DisplayID string
}

func (r LogRenderer) Show(slide Slide) {
	ev := log.Info().
		Str("display_id", r.DisplayID).
		Int("index", slide.Index).
		Str("menu_id", slide.MenuID).
		Str("kind", string(slide.Kind))
	if slide.Image != nil {
		ev = ev.Str("image", slide.Image.URL)
	}
	ev.Msg("showing slide")
}

func (r LogRenderer) Stage(slide Slide) {
	log.Debug().
		Str("display_id", r.DisplayID).
		Int("index", slide.Index).
		Msg("staging next slide")
}

func (r LogRenderer) ShowError(reason string) {
	log.Error().Str("display_id", r.DisplayID).Str("reason", reason).Msg("display unavailable")
}

// TermRenderer draws each committed slide as a boxed card on a terminal.
type TermRenderer struct {
	DisplayID string

	mu    sync.Mutex
	w     io.Writer
	card  lipgloss.Style
	muted lipgloss.Style
	alert lipgloss.Style
}

// NewTermRenderer creates a renderer writing to w.
func NewTermRenderer(w io.Writer, displayID string) *TermRenderer {
	return &TermRenderer{
		DisplayID: displayID,
		w:         w,
		card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 2).
			Bold(true),
		muted: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		alert: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#fff5f5")).Background(lipgloss.Color("#b91c1c")),
	}
}

func (r *TermRenderer) Show(slide Slide) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  #%d\n", r.DisplayID, slide.Index)
	switch {
	case slide.Image != nil:
		fmt.Fprintf(&b, "%s", slide.Image.URL)
	case slide.Kind == models.MenuKindCustom:
		fmt.Fprintf(&b, "menu %s", slide.MenuID)
	default:
		b.WriteString("(empty)")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, r.card.Render(b.String()))
}

func (r *TermRenderer) Stage(slide Slide) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, r.muted.Render(fmt.Sprintf("next: #%d", slide.Index)))
}

func (r *TermRenderer) ShowError(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, r.alert.Render(" "+r.DisplayID+": "+reason+" "))
}
