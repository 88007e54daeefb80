package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/kiranshivaraju/futurework/internal/forecast"
	"github.com/kiranshivaraju/futurework/pkg/models"
)

const cardWidth = 72

var (
	accent = lipgloss.Color("#8BC34A")
	muted  = lipgloss.Color("#6B7280")
	warn   = lipgloss.Color("#F59E0B")
)

type styles struct {
	card  lipgloss.Style
	title lipgloss.Style
	label lipgloss.Style
	note  lipgloss.Style
	badge lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		card: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1).
			Width(cardWidth),
		title: r.NewStyle().Bold(true).Foreground(accent),
		label: r.NewStyle().Bold(true),
		note:  r.NewStyle().Foreground(muted).Italic(true),
		badge: r.NewStyle().Foreground(warn),
	}
}

func jobInputOf(industry, country, role string) (models.JobInput, error) {
	in := models.JobInput{
		Industry: strings.TrimSpace(industry),
		Country:  strings.TrimSpace(country),
		Role:     strings.TrimSpace(role),
	}
	if in.Industry == "" || in.Country == "" || in.Role == "" {
		return in, errors.New("please fill in all fields")
	}
	return in, nil
}

func renderResult(w io.Writer, res *forecast.Result) error {
	st := newStyles(w)

	var blocks []string
	if line := cacheLine(res); line != "" {
		blocks = append(blocks, st.badge.Render(line))
	}
	if len(res.Predictions) == 0 {
		blocks = append(blocks, st.note.Render("No predictions returned."))
	}
	for _, p := range res.Predictions {
		blocks = append(blocks, renderCard(st, p))
	}

	_, err := fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, blocks...))
	return err
}

func cacheLine(res *forecast.Result) string {
	switch res.CacheStatus {
	case forecast.CacheStatusHit:
		return "Served from your Google Sheet."
	case forecast.CacheStatusStaleUpdated:
		return fmt.Sprintf("Cached row %d was older than a month and has been refreshed.", res.RowIndex)
	}
	if res.Outcome == models.OutcomeMiss {
		return "Saved to your Google Sheet."
	}
	return ""
}

func renderCard(st styles, p models.Prediction) string {
	field := func(name, value string) string {
		if value == "" {
			value = "-"
		}
		return st.label.Render(name+": ") + value
	}

	lines := []string{
		st.title.Render(p.Role),
		st.note.Render(strings.Join(nonEmpty(p.Industry, p.Country), " / ")),
		"",
		field("Predicted impact", p.PredictionDate),
		field("Confidence", p.Confidence),
		field("Replaced by", p.ReplacementTechnology),
		field("Transferable skills", strings.Join(p.TransferableSkills, ", ")),
		field("Future job", p.FutureJob),
		field("How to start", p.StepsToStart),
	}
	if p.JobDescription != "" {
		lines = append(lines, "", st.note.Render(p.JobDescription))
	}
	return st.card.Render(strings.Join(lines, "\n"))
}

func nonEmpty(vals ...string) []string {
	out := vals[:0:0]
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

type setting struct {
	name, value string
}

func renderSettings(w io.Writer, settings []setting) error {
	st := newStyles(w)
	width := 0
	for _, s := range settings {
		width = max(width, len(s.name))
	}
	label := st.label.Width(width + 2)

	rows := make([]string, 0, len(settings))
	for _, s := range settings {
		v := s.value
		if v == "" {
			v = st.note.Render("(not set)")
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, label.Render(s.name), v))
	}
	_, err := fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, rows...))
	return err
}
