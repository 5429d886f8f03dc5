package ui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/scrapedeck/internal/api"
	"github.com/five82/scrapedeck/internal/logtail"
	"github.com/five82/scrapedeck/internal/mutation"
	"github.com/five82/scrapedeck/internal/selectors"
	"github.com/five82/scrapedeck/internal/state"
)

const (
	statusWidth  = 13
	idWidth      = 10
	updatedWidth = 8
)

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	switch m.view {
	case ViewDetail, ViewResult, ViewLogs:
		b.WriteString(m.renderPanelTitle())
		b.WriteString("\n")
		b.WriteString(m.viewport.View())
	default:
		b.WriteString(m.renderColumns())
		b.WriteString("\n")
		b.WriteString(m.renderList())
	}
	b.WriteString("\n")
	b.WriteString(m.renderStatusLine())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) now() time.Time {
	return m.sync.Store().Now()
}

// renderHeader renders health, counts and sync state on one bar.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)

	parts := []string{bg.Render("scrapedeck", styles.Logo)}

	switch {
	case !m.health.HasData && m.health.Err == nil:
		parts = append(parts, bg.Render("● checking", styles.WarningText))
	default:
		tier := selectors.EntryTier(m.health)
		parts = append(parts, bg.Render("● "+string(tier), styles.TierStyle(tier)))
		if h, _ := selectors.HealthFromEntry(m.health); h != nil && h.Version != "" {
			parts = append(parts, bg.Render("v"+h.Version, styles.FaintText))
		}
	}

	counts := selectors.CountByStatus(selectors.JobsFromEntry(m.list))
	total, _ := m.listTotal()
	parts = append(parts,
		bg.Render("Jobs:", styles.MutedText)+bg.Space()+bg.Render(fmt.Sprint(total), styles.Text))
	if active := counts.Active(); active > 0 {
		parts = append(parts,
			bg.Render("Active:", styles.MutedText)+bg.Space()+bg.Render(fmt.Sprint(active), styles.InfoText))
	}
	failedStyle := styles.MutedText
	if counts[api.StatusFailed] > 0 {
		failedStyle = styles.DangerText
	}
	parts = append(parts,
		bg.Render("Failed:", styles.MutedText)+bg.Space()+bg.Render(fmt.Sprint(counts[api.StatusFailed]), failedStyle))

	if m.list.FetchStatus == state.Fetching {
		parts = append(parts, bg.Render("syncing", styles.AccentText))
	} else if !m.list.UpdatedAt.IsZero() {
		parts = append(parts, bg.Render("updated "+formatAge(m.now().Sub(m.list.UpdatedAt))+" ago", styles.MutedText))
	}
	if m.busy > 0 {
		parts = append(parts, bg.Render("saving", styles.WarningText))
	}
	if m.list.Err != nil {
		label := "ERROR"
		if m.list.HasData {
			label = "STALE"
		}
		parts = append(parts,
			bg.Render(label, styles.DangerText)+bg.Space()+
				bg.Render(truncate(m.list.Err.Error(), max(m.width/3, 20)), styles.DangerText))
	}

	return styles.Header.Width(m.width).Render(bg.Join(parts, "  "))
}

func (m Model) urlWidth() int {
	return max(m.width-statusWidth-idWidth-updatedWidth-4, 10)
}

func (m Model) renderColumns() string {
	styles := m.theme.Styles()
	line := padRight("STATUS", statusWidth) + " " +
		padRight("ID", idWidth) + " " +
		padRight("URL", m.urlWidth()) + " " +
		padRight("UPDATED", updatedWidth)
	return styles.FaintText.Bold(true).Render(line)
}

// renderList draws only the rows the windower reports as on screen.
func (m Model) renderList() string {
	height := m.bodyHeight()
	styles := m.theme.Styles()

	if len(m.jobs) == 0 {
		var msg string
		switch {
		case m.list.Err != nil && !m.list.HasData:
			msg = styles.DangerText.Render("Cannot load jobs: " + m.list.Err.Error())
		case !m.list.HasData:
			msg = styles.MutedText.Render("Loading jobs...")
		case m.filter.Search != "" || m.filter.Status != "":
			msg = styles.MutedText.Render("No jobs match the current filter")
		default:
			msg = styles.MutedText.Render("No jobs yet. Press n to create one.")
		}
		return fillLines([]string{msg}, height)
	}

	r := m.win.Range(height, m.scroll)
	lines := make([]string, 0, height)
	for i := r.Start; i < r.End; i++ {
		top := m.win.Offset(i)
		for k, line := range m.renderRow(i) {
			y := top + k
			if y < m.scroll || y >= m.scroll+height {
				continue
			}
			lines = append(lines, line)
		}
	}
	return fillLines(lines, height)
}

// renderRow returns the lines of row i; there are rowHeight of them.
func (m Model) renderRow(i int) []string {
	styles := m.theme.Styles()
	job := m.jobs[i]

	id := shortID(job.ID)
	if mutation.IsTemporary(job.ID) {
		id = "(saving)"
	}
	updated := job.UpdatedAt
	if updated.IsZero() {
		updated = job.CreatedAt
	}
	age := "-"
	if !updated.IsZero() {
		age = formatAge(m.now().Sub(updated))
	}

	rest := " " + padRight(id, idWidth) + " " + padRight(job.URL, m.urlWidth()) + " " + padRight(age, updatedWidth)
	text := styles.Text
	if i == m.selected {
		text = styles.Selected
	}
	badge := styles.StatusStyle(job.Status).Render(padRight(string(job.Status), statusWidth-2))
	lines := []string{badge + text.Render(rest)}

	if rowHeight(job) > 1 {
		msg := "  ↳ " + truncate(job.ErrorMessage, max(m.width-6, 10))
		lines = append(lines, styles.DangerText.Render(msg))
	}
	return lines
}

func (m Model) renderPanelTitle() string {
	styles := m.theme.Styles()
	title := "Job " + m.detailID
	hint := "esc back  v result"
	switch m.view {
	case ViewResult:
		title = "Result " + m.detailID
	case ViewLogs:
		title = "Log " + m.logFile
		hint = "esc back"
	}
	return styles.AccentText.Bold(true).Render(title) + "  " + styles.FaintText.Render(hint)
}

// refreshPanel re-renders the detail or result body into the viewport.
func (m *Model) refreshPanel() {
	switch m.view {
	case ViewDetail:
		m.viewport.SetContent(m.renderDetail())
	case ViewResult:
		m.viewport.SetContent(m.renderResult())
	case ViewLogs:
		follow := m.viewport.AtBottom()
		m.viewport.SetContent(m.renderLogs())
		if follow {
			m.viewport.GotoBottom()
		}
	}
}

// renderLogs shows the tail of the log file, colored by level.
func (m Model) renderLogs() string {
	styles := m.theme.Styles()
	records, err := logtail.Tail(m.logFile, logTailLines)
	if err != nil {
		return styles.DangerText.Render("Cannot read log: " + err.Error())
	}
	if len(records) == 0 {
		return styles.MutedText.Render("Log is empty")
	}
	lines := make([]string, len(records))
	for i, r := range records {
		style := styles.Text
		switch r.Level {
		case "debug":
			style = styles.FaintText
		case "warn":
			style = styles.WarningText
		case "error", "dpanic", "panic", "fatal":
			style = styles.DangerText
		}
		lines[i] = style.Render(truncate(r.String(), max(m.width, 20)))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderDetail() string {
	styles := m.theme.Styles()
	job, ok := state.Data[api.Job](m.job)
	if !ok {
		for _, j := range m.jobs {
			if j.ID == m.detailID {
				job, ok = j, true
				break
			}
		}
	}
	if !ok {
		if m.job.Err != nil {
			return styles.DangerText.Render("Cannot load job: " + m.job.Err.Error())
		}
		return styles.MutedText.Render("Loading job...")
	}

	var b strings.Builder
	field := func(label, value string) {
		b.WriteString(styles.MutedText.Render(padRight(label, 12)))
		b.WriteString(styles.Text.Render(value))
		b.WriteString("\n")
	}
	field("ID", job.ID)
	field("URL", job.URL)
	b.WriteString(styles.MutedText.Render(padRight("Status", 12)))
	b.WriteString(styles.StatusStyle(job.Status).Render(string(job.Status)))
	b.WriteString("\n")
	field("Created", formatTime(job.CreatedAt))
	field("Updated", formatTime(job.UpdatedAt))
	if job.CompletedAt != nil {
		field("Completed", formatTime(*job.CompletedAt))
	}
	if job.ErrorMessage != "" {
		b.WriteString(styles.MutedText.Render(padRight("Error", 12)))
		b.WriteString(styles.DangerText.Render(job.ErrorMessage))
		b.WriteString("\n")
	}
	if len(job.Metadata) > 0 {
		keys := make([]string, 0, len(job.Metadata))
		for k := range job.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n")
		b.WriteString(styles.AccentText.Render("Metadata"))
		b.WriteString("\n")
		for _, k := range keys {
			field("  "+k, job.Metadata[k])
		}
	}

	b.WriteString("\n")
	switch {
	case m.job.FetchStatus == state.Fetching:
		b.WriteString(styles.AccentText.Render("refreshing..."))
	case job.Status.Terminal():
		b.WriteString(styles.FaintText.Render("final status, no longer polling"))
	default:
		b.WriteString(styles.FaintText.Render("polling until the job finishes"))
	}
	if m.job.Err != nil {
		b.WriteString("\n")
		b.WriteString(styles.WarningText.Render("last refresh failed: " + m.job.Err.Error()))
	}
	return b.String()
}

func (m Model) renderResult() string {
	styles := m.theme.Styles()
	res, ok := state.Data[api.JobResult](m.result)
	if !ok {
		if m.result.Err != nil {
			return styles.DangerText.Render("Cannot load result: " + m.result.Err.Error())
		}
		return styles.MutedText.Render("Loading result...")
	}

	var b strings.Builder
	b.WriteString(styles.MutedText.Render(padRight("Scraped", 12)))
	b.WriteString(styles.Text.Render(formatTime(res.ScrapedAt)))
	b.WriteString("\n")
	b.WriteString(styles.MutedText.Render(padRight("Took", 12)))
	b.WriteString(styles.Text.Render((time.Duration(res.ProcessingTimeMs) * time.Millisecond).String()))
	b.WriteString("\n")
	if res.HTML != "" {
		b.WriteString(styles.MutedText.Render(padRight("HTML", 12)))
		b.WriteString(styles.Text.Render(fmt.Sprintf("%d bytes", len(res.HTML))))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(styles.AccentText.Render("Data"))
	b.WriteString("\n")
	b.WriteString(prettyJSON(res.Data))
	return b.String()
}

func prettyJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "(empty)"
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return string(raw)
	}
	return out.String()
}

func (m Model) renderStatusLine() string {
	styles := m.theme.Styles()
	switch m.view {
	case ViewCreate:
		return m.urlInput.View()
	case ViewSearch:
		return m.searchInput.View()
	}
	if m.flash != "" {
		if m.flashErr {
			return styles.DangerText.Render(m.flash)
		}
		return styles.SuccessText.Render(m.flash)
	}

	status := "all"
	if m.filter.Status != "" {
		status = string(m.filter.Status)
	}
	parts := []string{
		"filter: " + status,
		fmt.Sprintf("sort: %s %s", m.filter.SortBy, m.filter.Order),
	}
	if m.filter.Search != "" {
		parts = append(parts, "search: "+m.filter.Search)
	}
	total, _ := m.listTotal()
	pages := max((total+m.pageSize-1)/m.pageSize, 1)
	parts = append(parts, fmt.Sprintf("page %d/%d", m.page+1, pages))
	if n := len(m.jobs); n > 0 {
		parts = append(parts, fmt.Sprintf("row %d/%d", m.selected+1, n))
	}
	return styles.MutedText.Render(strings.Join(parts, " · "))
}

func (m Model) renderFooter() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)
	hints := m.help.ShortHelpView(m.keys.ShortHelp())
	return styles.Footer.Width(m.width).Render(
		hints + bg.Spaces(2) + bg.Render("T", styles.AccentText) + bg.Sep(":") + bg.Render(m.theme.Name, styles.FaintText))
}

// renderHelp renders the help overlay.
func (m Model) renderHelp() string {
	styles := m.theme.Styles()
	full := m.help
	full.ShowAll = true
	body := styles.Text.Bold(true).Render("Keyboard Shortcuts") + "\n\n" +
		full.View(m.keys) + "\n\n" +
		styles.FaintText.Render("press any key to close")
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		styles.Panel.BorderForeground(lipgloss.Color(m.theme.BorderFocus)).Render(body))
}

func fillLines(lines []string, height int) string {
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines[:height], "\n")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatAge(d time.Duration) string {
	switch {
	case d < 0:
		return "0s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
