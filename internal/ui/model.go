package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/five82/scrapedeck/internal/api"
	"github.com/five82/scrapedeck/internal/mutation"
	"github.com/five82/scrapedeck/internal/prefs"
	"github.com/five82/scrapedeck/internal/queries"
	"github.com/five82/scrapedeck/internal/query"
	"github.com/five82/scrapedeck/internal/selectors"
	"github.com/five82/scrapedeck/internal/state"
	"github.com/five82/scrapedeck/internal/window"
)

// View is the screen currently shown.
type View int

const (
	ViewList View = iota
	ViewDetail
	ViewResult
	ViewCreate
	ViewSearch
	ViewLogs
)

const (
	defaultTick     = 250 * time.Millisecond
	defaultPageSize = 100
	chromeLines     = 4 // header, column titles, status line, footer
	logTailLines    = 500
)

// Options configures the UI.
type Options struct {
	Context   context.Context
	Sync      *query.Synchronizer
	Catalog   *queries.Catalog
	Mutations *mutation.Coordinator
	Logger    *zap.Logger
	Prefs     prefs.Prefs
	PrefsPath string
	PageSize  int
	Overscan  int
	LogFile   string        // shown in the log panel; empty disables it
	Tick      time.Duration // how often the screen rereads the cache
}

// subscriptions holds the observers the dashboard keeps on the cache.
// Swapping one unsubscribes the previous holder.
type subscriptions struct {
	health *query.Subscription
	list   *query.Subscription
	job    *query.Subscription
	result *query.Subscription
}

func swap(slot **query.Subscription, next *query.Subscription) {
	if *slot != nil {
		(*slot).Unsubscribe()
	}
	*slot = next
}

func (s *subscriptions) close() {
	swap(&s.health, nil)
	swap(&s.list, nil)
	swap(&s.job, nil)
	swap(&s.result, nil)
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx       context.Context
	sync      *query.Synchronizer
	catalog   *queries.Catalog
	mutations *mutation.Coordinator
	logger    *zap.Logger
	prefsPath string
	logFile   string
	pageSize  int
	overscan  int
	tick      time.Duration

	// UI state
	theme    Theme
	keys     keyMap
	help     help.Model
	view     View
	width    int
	height   int
	ready    bool
	showHelp bool

	// Cache state, reread every tick
	subs   *subscriptions
	health state.Entry
	list   state.Entry
	job    state.Entry
	result state.Entry
	jobs   []api.Job

	// List state
	filter     selectors.Filter
	page       int
	win        *window.Windower
	selected   int
	selectedID string
	scroll     int

	// Detail and result state
	detailID string
	viewport viewport.Model

	// Inputs
	urlInput    textinput.Model
	searchInput textinput.Model

	flash    string
	flashErr bool
	busy     int
}

// New creates the model and subscribes to health and the first job page.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tick := opts.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	urlInput := textinput.New()
	urlInput.Placeholder = "https://example.com/page"
	urlInput.Prompt = "URL: "
	urlInput.CharLimit = 2048

	searchInput := textinput.New()
	searchInput.Placeholder = "url or id"
	searchInput.Prompt = "/"

	m := Model{
		ctx:         ctx,
		sync:        opts.Sync,
		catalog:     opts.Catalog,
		mutations:   opts.Mutations,
		logger:      logger,
		prefsPath:   opts.PrefsPath,
		logFile:     opts.LogFile,
		pageSize:    pageSize,
		overscan:    max(opts.Overscan, 0),
		tick:        tick,
		theme:       GetTheme(opts.Prefs.Theme),
		keys:        DefaultKeyMap(),
		help:        help.New(),
		view:        ViewList,
		subs:        &subscriptions{},
		filter:      filterFromPrefs(opts.Prefs),
		win:         window.New(0, nil, opts.Overscan),
		viewport:    viewport.New(0, 0),
		urlInput:    urlInput,
		searchInput: searchInput,
	}
	m.subs.health = m.sync.Subscribe(m.catalog.Health())
	m.subscribeList()
	m.read()
	return m
}

func filterFromPrefs(p prefs.Prefs) selectors.Filter {
	f := selectors.Filter{
		Status: api.JobStatus(p.Status),
		SortBy: selectors.SortField(p.SortBy),
		Order:  api.SortOrder(p.SortOrder),
	}
	if !knownStatus(f.Status) {
		f.Status = ""
	}
	if !knownSort(f.SortBy) {
		f.SortBy = selectors.SortCreated
	}
	if f.Order != api.SortAsc {
		f.Order = api.SortDesc
	}
	return f
}

func knownStatus(s api.JobStatus) bool {
	if s == "" {
		return true
	}
	for _, known := range api.Statuses {
		if s == known {
			return true
		}
	}
	return false
}

func knownSort(f selectors.SortField) bool {
	for _, known := range selectors.SortFields {
		if f == known {
			return true
		}
	}
	return false
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tea.SetWindowTitle("scrapedeck"),
		tickCmd(m.tick),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.help.Width = msg.Width
		m.urlInput.Width = max(msg.Width-8, 10)
		m.viewport.Width = msg.Width
		m.viewport.Height = m.bodyHeight()
		m.read()
		return m, nil

	case tea.FocusMsg:
		m.sync.Focus()
		return m, nil

	case tea.BlurMsg:
		m.sync.Blur()
		return m, nil

	case tickMsg:
		m.read()
		return m, tickCmd(m.tick)

	case mutationMsg:
		m.busy = max(m.busy-1, 0)
		m.handleMutation(msg)
		m.read()
		return m, nil

	case refreshedMsg:
		if msg.err != nil {
			m.setFlash("refresh interrupted: "+msg.err.Error(), true)
		} else {
			m.setFlash("refreshed", false)
		}
		m.read()
		return m, nil
	}
	return m, nil
}

// bodyHeight is the number of lines left for the list or a panel.
func (m Model) bodyHeight() int {
	return max(m.height-chromeLines, 1)
}

// read pulls the latest entries from the cache and rebuilds the visible
// job view, keeping the selection on the same job when it moves.
func (m *Model) read() {
	if m.subs.health == nil {
		return
	}
	m.health = m.subs.health.Entry()
	m.list = m.subs.list.Entry()
	if m.subs.job != nil {
		m.job = m.subs.job.Entry()
	}
	if m.subs.result != nil {
		m.result = m.subs.result.Entry()
	}

	m.jobs = selectors.View(selectors.JobsFromEntry(m.list), m.filter)
	heights := make([]int, len(m.jobs))
	for i, job := range m.jobs {
		heights[i] = rowHeight(job)
	}
	m.win = window.New(len(m.jobs), func(i int) int { return heights[i] }, m.overscan)

	if m.selectedID != "" {
		for i, job := range m.jobs {
			if job.ID == m.selectedID {
				m.selected = i
				break
			}
		}
	}
	m.clampSelection()

	if m.inPanel() {
		m.refreshPanel()
	}
}

func (m Model) inPanel() bool {
	return m.view == ViewDetail || m.view == ViewResult || m.view == ViewLogs
}

func (m *Model) clampSelection() {
	if len(m.jobs) == 0 {
		m.selected = 0
		m.selectedID = ""
		m.scroll = 0
		return
	}
	m.selected = min(max(m.selected, 0), len(m.jobs)-1)
	m.selectedID = m.jobs[m.selected].ID
	m.scroll = m.win.EnsureVisible(m.selected, m.bodyHeight(), m.scroll)
}

// rowHeight is two lines for failed jobs that carry a message.
func rowHeight(job api.Job) int {
	if job.Status == api.StatusFailed && job.ErrorMessage != "" {
		return 2
	}
	return 1
}

func (m Model) selectedJob() (api.Job, bool) {
	if m.selected < 0 || m.selected >= len(m.jobs) {
		return api.Job{}, false
	}
	return m.jobs[m.selected], true
}

// listQuery is the server-side half of the current filter.
func (m Model) listQuery() api.ListJobsQuery {
	return api.ListJobsQuery{
		Status:    m.filter.Status,
		Limit:     m.pageSize,
		Offset:    m.page * m.pageSize,
		SortBy:    serverSortField(m.filter.SortBy),
		SortOrder: m.filter.Order,
	}
}

// FirstPage is the list query the dashboard opens with under p.
func FirstPage(p prefs.Prefs, pageSize int) api.ListJobsQuery {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	m := Model{filter: filterFromPrefs(p), pageSize: pageSize}
	return m.listQuery()
}

func serverSortField(f selectors.SortField) string {
	switch f {
	case selectors.SortUpdated:
		return "updated_at"
	case selectors.SortStatus:
		return "status"
	case selectors.SortURL:
		return "url"
	default:
		return "created_at"
	}
}

func (m *Model) subscribeList() {
	swap(&m.subs.list, m.sync.Subscribe(m.catalog.JobList(m.listQuery())))
}

func (m *Model) setFlash(text string, isErr bool) {
	m.flash = text
	m.flashErr = isErr
}

func (m *Model) savePrefs() {
	if m.prefsPath == "" {
		return
	}
	p := prefs.Prefs{
		Theme:     m.theme.Name,
		Status:    string(m.filter.Status),
		SortBy:    string(m.filter.SortBy),
		SortOrder: string(m.filter.Order),
	}
	if err := prefs.Save(m.prefsPath, p); err != nil {
		m.logger.Warn("save prefs failed", zap.Error(err))
	}
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}

	switch m.view {
	case ViewCreate:
		return m.handleCreateKey(msg)
	case ViewSearch:
		return m.handleSearchKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.subs.close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.savePrefs()
		return m, nil
	case key.Matches(msg, m.keys.Refresh):
		return m, refreshCmd(m.ctx, m.sync)
	case key.Matches(msg, m.keys.Back):
		m.closePanel()
		return m, nil
	case key.Matches(msg, m.keys.Logs) && m.view != ViewLogs:
		m.openLogs()
		return m, nil
	}

	switch m.view {
	case ViewLogs:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case ViewDetail, ViewResult:
		return m.handlePanelKey(msg)
	default:
		return m.handleListKey(msg)
	}
}

func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	page := m.bodyHeight()
	switch {
	case key.Matches(msg, m.keys.Down):
		m.moveSelection(1)
	case key.Matches(msg, m.keys.Up):
		m.moveSelection(-1)
	case key.Matches(msg, m.keys.Top):
		m.moveSelection(-len(m.jobs))
	case key.Matches(msg, m.keys.Bottom):
		m.moveSelection(len(m.jobs))
	case key.Matches(msg, m.keys.PageDown):
		m.moveSelection(page)
	case key.Matches(msg, m.keys.PageUp):
		m.moveSelection(-page)

	case key.Matches(msg, m.keys.NextPage):
		if total, ok := m.listTotal(); ok && (m.page+1)*m.pageSize < total {
			m.page++
			m.subscribeList()
			m.read()
		}
	case key.Matches(msg, m.keys.PrevPage):
		if m.page > 0 {
			m.page--
			m.subscribeList()
			m.read()
		}

	case key.Matches(msg, m.keys.CycleFilter):
		m.filter.Status = nextStatus(m.filter.Status)
		m.page = 0
		m.subscribeList()
		m.savePrefs()
		m.read()
	case key.Matches(msg, m.keys.CycleSort):
		m.filter.SortBy = nextSort(m.filter.SortBy)
		m.subscribeList()
		m.savePrefs()
		m.read()
	case key.Matches(msg, m.keys.ToggleOrder):
		if m.filter.Order == api.SortAsc {
			m.filter.Order = api.SortDesc
		} else {
			m.filter.Order = api.SortAsc
		}
		m.subscribeList()
		m.savePrefs()
		m.read()
	case key.Matches(msg, m.keys.Search):
		m.view = ViewSearch
		m.searchInput.SetValue(m.filter.Search)
		return m, m.searchInput.Focus()

	case key.Matches(msg, m.keys.Open):
		m.openDetail()
	case key.Matches(msg, m.keys.Result):
		m.openResult()

	default:
		return m.handleMutationKey(msg)
	}
	return m, nil
}

func (m Model) handlePanelKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Result):
		m.openResult()
		return m, nil
	case key.Matches(msg, m.keys.New, m.keys.Cancel, m.keys.Retry, m.keys.Clone):
		return m.handleMutationKey(msg)
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// handleMutationKey starts create, cancel, retry or clone.
func (m Model) handleMutationKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.New) {
		if tier, ok := m.mutations.CanCreate(); !ok {
			m.setFlash(fmt.Sprintf("backend %s: job creation disabled", tier), true)
			return m, nil
		}
		m.view = ViewCreate
		m.urlInput.SetValue("")
		return m, m.urlInput.Focus()
	}

	job, ok := m.targetJob()
	if !ok {
		return m, nil
	}
	if mutation.IsTemporary(job.ID) {
		m.setFlash("job is still being created", true)
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Cancel):
		if job.Status.Terminal() {
			m.setFlash(fmt.Sprintf("job %s is already %s", shortID(job.ID), job.Status), true)
			return m, nil
		}
		m.busy++
		m.setFlash("cancelling "+shortID(job.ID)+"...", false)
		return m, cancelCmd(m.ctx, m.mutations, job.ID)
	case key.Matches(msg, m.keys.Retry):
		if job.Status != api.StatusFailed && job.Status != api.StatusCancelled {
			m.setFlash("only failed or cancelled jobs can be retried", true)
			return m, nil
		}
		m.busy++
		m.setFlash("retrying "+shortID(job.ID)+"...", false)
		return m, retryCmd(m.ctx, m.mutations, job.ID)
	case key.Matches(msg, m.keys.Clone):
		m.busy++
		m.setFlash("cloning "+shortID(job.ID)+"...", false)
		return m, cloneCmd(m.ctx, m.mutations, job.ID)
	}
	return m, nil
}

// targetJob is the job shown in the detail panel, else the selected row.
func (m Model) targetJob() (api.Job, bool) {
	if m.view == ViewDetail || m.view == ViewResult {
		if job, ok := state.Data[api.Job](m.job); ok && job.ID == m.detailID {
			return job, true
		}
		for _, job := range m.jobs {
			if job.ID == m.detailID {
				return job, true
			}
		}
	}
	return m.selectedJob()
}

func (m Model) handleCreateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.view = ViewList
		m.urlInput.Blur()
		return m, nil
	case key.Matches(msg, m.keys.Confirm):
		raw := strings.TrimSpace(m.urlInput.Value())
		if err := mutation.ValidateURL(raw); err != nil {
			m.setFlash(err.Error(), true)
			return m, nil
		}
		m.view = ViewList
		m.urlInput.Blur()
		m.busy++
		m.setFlash("creating job...", false)
		return m, createCmd(m.ctx, m.mutations, raw)
	}
	var cmd tea.Cmd
	m.urlInput, cmd = m.urlInput.Update(msg)
	return m, cmd
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.view = ViewList
		m.searchInput.Blur()
		m.filter.Search = ""
		m.read()
		return m, nil
	case key.Matches(msg, m.keys.Confirm):
		m.view = ViewList
		m.searchInput.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	m.filter.Search = m.searchInput.Value()
	m.read()
	return m, cmd
}

func (m *Model) moveSelection(delta int) {
	if len(m.jobs) == 0 {
		return
	}
	m.selected += delta
	m.clampSelection()
}

func (m Model) listTotal() (int, bool) {
	list, ok := state.Data[api.JobList](m.list)
	return list.Total, ok
}

func (m *Model) openDetail() {
	job, ok := m.selectedJob()
	if !ok {
		return
	}
	if mutation.IsTemporary(job.ID) {
		m.setFlash("job is still being created", true)
		return
	}
	if job.ID != m.detailID || m.subs.job == nil {
		swap(&m.subs.job, m.sync.Subscribe(m.catalog.Job(job.ID)))
		swap(&m.subs.result, nil)
		m.result = state.Entry{}
	}
	m.detailID = job.ID
	m.view = ViewDetail
	m.job = m.subs.job.Entry()
	m.viewport.GotoTop()
	m.refreshPanel()
}

func (m *Model) openResult() {
	job, ok := m.targetJob()
	if !ok {
		return
	}
	if job.Status != api.StatusCompleted {
		m.setFlash(fmt.Sprintf("no result: job is %s", job.Status), true)
		return
	}
	if m.detailID != job.ID {
		m.openDetail()
	}
	swap(&m.subs.result, m.sync.Subscribe(m.catalog.Result(job.ID, api.ResultOptions{})))
	m.view = ViewResult
	m.result = m.subs.result.Entry()
	m.viewport.GotoTop()
	m.refreshPanel()
}

func (m *Model) openLogs() {
	if m.logFile == "" {
		m.setFlash("logging is off: set log_file in the config", true)
		return
	}
	m.view = ViewLogs
	m.refreshPanel()
	m.viewport.GotoBottom()
}

// closePanel steps back one level: result to detail, detail or logs to list.
func (m *Model) closePanel() {
	switch m.view {
	case ViewLogs:
		m.view = ViewList
	case ViewResult:
		swap(&m.subs.result, nil)
		m.result = state.Entry{}
		m.view = ViewDetail
		m.refreshPanel()
	case ViewDetail:
		swap(&m.subs.job, nil)
		m.job = state.Entry{}
		m.detailID = ""
		m.view = ViewList
	default:
		m.flash = ""
	}
}

// handleMutation reports the outcome. A failed cancel leaves the optimistic
// write in place; the next poll replaces it with the server's view.
func (m *Model) handleMutation(msg mutationMsg) {
	if msg.err != nil {
		m.setFlash(describeError(msg.op, msg.err), true)
		return
	}
	switch msg.op {
	case opCancel:
		m.setFlash("cancelled "+shortID(msg.id), false)
	default:
		m.selectedID = msg.job.ID
		m.setFlash(fmt.Sprintf("%s: job %s %s", msg.op, shortID(msg.job.ID), msg.job.Status), false)
	}
}

func nextStatus(cur api.JobStatus) api.JobStatus {
	if cur == "" {
		return api.Statuses[0]
	}
	for i, s := range api.Statuses {
		if s == cur {
			if i+1 < len(api.Statuses) {
				return api.Statuses[i+1]
			}
			return ""
		}
	}
	return ""
}

func nextSort(cur selectors.SortField) selectors.SortField {
	for i, f := range selectors.SortFields {
		if f == cur {
			return selectors.SortFields[(i+1)%len(selectors.SortFields)]
		}
	}
	return selectors.SortFields[0]
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Run starts the Bubble Tea program and blocks until it exits or ctx ends.
func Run(opts Options) error {
	m := New(opts)
	defer m.subs.close()

	ctx := m.ctx
	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithReportFocus(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
