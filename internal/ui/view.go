package ui

import (
	"fmt"
	"strings"

	"cloudweave/internal/overlay"
)

func (m Model) View() string {
	v := overlay.Derive(m.machine.State(), m.selection)
	parts := []string{m.viewHeader(), m.viewForm(), m.viewJob(v)}
	if g := m.viewGeometry(v); g != "" {
		parts = append(parts, g)
	}
	parts = append(parts, m.styles.Hint.Render("tab: next field • enter: submit • ctrl+x: cancel • ctrl+r: reset • esc: quit"))
	return strings.Join(parts, "\n\n") + "\n"
}

func (m Model) viewHeader() string {
	title := m.styles.Header.Render("cloudweave · cloud interpolation")
	sub := m.styles.Endpoint.Render(m.endpoint)
	return title + "\n" + sub
}

func (m Model) viewForm() string {
	bad := map[string]bool{}
	for _, e := range m.formErrs {
		if e.Field == "box" {
			for i := fieldLonMin; i <= fieldLatMax; i++ {
				bad[fieldNames[i]] = true
			}
			continue
		}
		bad[e.Field] = true
	}

	var b strings.Builder
	for i, in := range m.inputs {
		label := m.styles.Label.Render(fieldLabels[i])
		if i == m.focus {
			label = m.styles.Focused.Render(fieldLabels[i])
		}
		mark := " "
		if bad[fieldNames[i]] {
			mark = m.styles.Invalid.Render("!")
		}
		b.WriteString(fmt.Sprintf("%s %s %s\n", mark, label, in.View()))
	}
	for _, e := range m.formErrs {
		b.WriteString(m.styles.Invalid.Render("  " + e.Error()))
		b.WriteString("\n")
	}
	return m.styles.Panel.Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) viewJob(v overlay.View) string {
	line1 := fmt.Sprintf("%s  %s", m.styles.Text.Render(v.Phase.String()), m.styles.Status(v).Render(v.Status))
	if v.LoadingVisible {
		line1 = m.spinner.View() + " " + line1
	}
	lines := []string{line1}
	if v.ShowProgress {
		lines = append(lines, fmt.Sprintf("%s %5.1f%%", m.bar.ViewAs(v.Fraction), v.Percent))
	}
	if v.MediaURL != "" {
		media := "video: " + truncate(v.MediaURL, 60)
		if v.PlaybackMode != "" && v.PlaybackMode != "none" {
			media += " (" + v.PlaybackMode + ")"
		}
		lines = append(lines, m.styles.Text.Render(media))
	}
	if v.Note != "" {
		lines = append(lines, m.styles.Note(v).Render(v.Note))
	}
	if m.notice != "" {
		lines = append(lines, m.styles.Hint.Render(m.notice))
	}
	return m.styles.Panel.Render(strings.Join(lines, "\n"))
}

func (m Model) viewGeometry(v overlay.View) string {
	if !v.HasSelection {
		return ""
	}
	lines := []string{"selection  " + v.Selection.String()}
	if v.LoadingVisible {
		lines = append(lines, "loader     "+v.LoadingBounds.String())
	}
	if v.VideoVisible {
		lines = append(lines, "video      "+v.VideoBounds.String())
	}
	return m.styles.Panel.Render(m.styles.Geometry.Render(strings.Join(lines, "\n")))
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if n <= 0 || len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}

