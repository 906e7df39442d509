package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/time/rate"

	"github.com/unklstewy/skytrack/internal/controller"
	"github.com/unklstewy/skytrack/internal/view"
	"github.com/unklstewy/skytrack/pkg/opensky"
	"github.com/unklstewy/skytrack/pkg/tracking"
)

// Side panel width in map view
const infoWidth = 40

// Default terminal size before the first WindowSizeMsg
const (
	defaultWidth  = 100
	defaultHeight = 30
)

// searchDoneMsg carries a finished fetch back into Update. finish is set
// for user-submitted searches, which own the loading flag.
type searchDoneMsg struct {
	res    controller.Result
	err    error
	finish bool
}

type refreshMsg time.Time

type frameMsg time.Time

// mapView is the state owned by an open map: the marker registry, what
// it has drawn, and the device overlay. It exists only while the map is
// shown.
type mapView struct {
	layer      *view.MapLayer
	reconciler *tracking.Reconciler
	overlay    *tracking.UserOverlay
}

type model struct {
	ctrl   *controller.Controller
	state  controller.State
	logger *slog.Logger

	positions tracking.PositionSource
	headings  tracking.HeadingSource
	refresh   time.Duration

	width, height int
	inputMode     bool
	inputBuffer   string
	selected      int

	mapv *mapView
}

func newModel(ctrl *controller.Controller, initial controller.State, positions tracking.PositionSource, headings tracking.HeadingSource, refresh time.Duration, logger *slog.Logger) model {
	if logger == nil {
		logger = slog.Default()
	}
	m := model{
		ctrl:      ctrl,
		state:     initial,
		logger:    logger,
		positions: positions,
		headings:  headings,
		refresh:   refresh,
		width:     defaultWidth,
		height:    defaultHeight,
	}
	if initial.View == controller.MapView {
		m.openMap()
	}
	return m
}

func refreshTick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func frameTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{frameTick()}
	if m.refresh > 0 {
		cmds = append(cmds, refreshTick(m.refresh))
	}
	if m.state.Loading {
		cmds = append(cmds, m.searchCmd(m.state.Query, m.state.Radius))
	}
	return tea.Batch(cmds...)
}

// searchCmd runs a full search off the event loop. A panic in a
// collaborator becomes a failed search.
func (m model) searchCmd(query string, radius float64) tea.Cmd {
	ctrl, logger := m.ctrl, m.logger
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("search panicked", "query", query, "panic", r)
				msg = searchDoneMsg{err: fmt.Errorf("unexpected error: %v", r), finish: true}
			}
		}()
		res, err := ctrl.Search(context.Background(), query, radius)
		return searchDoneMsg{res: res, err: err, finish: true}
	}
}

// refreshCmd re-fetches the shown location without geocoding again.
func (m model) refreshCmd() tea.Cmd {
	if m.state.Location == nil || m.state.Loading {
		return nil
	}
	ctrl, logger := m.ctrl, m.logger
	loc, radius := *m.state.Location, m.state.ResultRadius
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("refresh panicked", "query", loc.Query, "panic", r)
				msg = searchDoneMsg{err: fmt.Errorf("unexpected error: %v", r)}
			}
		}()
		res, err := ctrl.Refresh(context.Background(), loc, radius)
		return searchDoneMsg{res: res, err: err}
	}
}

func (m *model) dispatch(a controller.Action) {
	m.state = controller.Reduce(m.state, a)
}

// submit starts a search for the current query and radius.
func (m *model) submit() tea.Cmd {
	query := strings.TrimSpace(m.state.Query)
	m.dispatch(controller.SearchStarted{Query: query, Radius: m.state.Radius})
	return m.searchCmd(query, m.state.Radius)
}

// openMap creates the map-view state and draws the current flights.
func (m *model) openMap() {
	if m.mapv != nil {
		return
	}
	layer := view.NewMapLayer()
	m.mapv = &mapView{
		layer:      layer,
		reconciler: tracking.NewReconciler(layer, m.logger),
		overlay:    tracking.NewUserOverlay(layer, m.positions, m.headings, rate.Every(time.Second), m.logger),
	}
	m.mapv.reconciler.Reconcile(m.state.Flights)
}

// closeMap drops every marker, track and the device overlay.
func (m *model) closeMap() {
	if m.mapv == nil {
		return
	}
	m.mapv.overlay.Stop()
	m.mapv.reconciler.Clear()
	m.mapv = nil
}

func (m *model) toggleUserLocation() {
	if m.mapv == nil {
		return
	}
	if m.mapv.overlay.Active() {
		m.mapv.overlay.Stop()
		return
	}
	if err := m.mapv.overlay.Start(context.Background()); err != nil {
		m.logger.Warn("user location failed to start", "error", err)
	}
	// No device position: the overlay simply stays off
	if !m.mapv.overlay.Active() {
		m.logger.Debug("device location unavailable", "hint", "use -here lat,lon or user_location in the config")
	}
}

func (m *model) syncView() {
	if m.state.View == controller.MapView {
		m.openMap()
	} else {
		m.closeMap()
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case tea.KeyMsg:
		if m.inputMode {
			return m.updateInput(msg)
		}

		switch msg.String() {
		case "ctrl+c", "q":
			m.closeMap()
			return m, tea.Quit
		case "/", "s":
			m.inputMode = true
			m.inputBuffer = m.state.Query
		case "r":
			m.dispatch(controller.SetRadius{Radius: opensky.NextRadius(m.state.Radius)})
		case "v", "tab":
			m.dispatch(controller.ToggleView{})
			m.syncView()
		case "u":
			m.toggleUserLocation()
		case "g":
			return m, m.refreshCmd()
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.state.Flights)-1 {
				m.selected++
			}
		}

	case searchDoneMsg:
		if msg.err != nil {
			m.dispatch(controller.SearchFailed{Result: msg.res, Err: msg.err})
		} else {
			m.dispatch(controller.SearchSucceeded{Result: msg.res})
		}
		if msg.finish {
			m.dispatch(controller.SearchFinished{})
		}
		if m.selected >= len(m.state.Flights) {
			m.selected = max(len(m.state.Flights)-1, 0)
		}
		if m.mapv != nil {
			m.mapv.reconciler.Reconcile(m.state.Flights)
		}

	case refreshMsg:
		return m, tea.Batch(m.refreshCmd(), refreshTick(m.refresh))

	case frameMsg:
		// Redraw so device updates show up
		return m, frameTick()
	}

	return m, nil
}

func (m model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.inputMode = false
		m.dispatch(controller.SetQuery{Query: m.inputBuffer})
		m.selected = 0
		return m, m.submit()
	case "esc":
		m.inputMode = false
	case "backspace":
		if len(m.inputBuffer) > 0 {
			r := []rune(m.inputBuffer)
			m.inputBuffer = string(r[:len(r)-1])
		}
	case "tab":
		m.dispatch(controller.SetRadius{Radius: opensky.NextRadius(m.state.Radius)})
	default:
		switch msg.Type {
		case tea.KeySpace:
			m.inputBuffer += " "
		case tea.KeyRunes:
			m.inputBuffer += string(msg.Runes)
		}
	}
	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	inputStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	msgStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func (m model) View() string {
	var s strings.Builder

	title := "SKYTRACK"
	if m.state.View == controller.MapView {
		title = "SKYTRACK MAP"
	}
	s.WriteString(titleStyle.Render(title))
	s.WriteString("  ")
	s.WriteString(m.statusLine())
	s.WriteString("\n\n")

	if m.inputMode {
		s.WriteString(promptStyle.Render("Search airport code or city (e.g. JFK, London):"))
		s.WriteString("\n")
		s.WriteString(inputStyle.Render("> " + m.inputBuffer + "_"))
		s.WriteString("\n\n")
		s.WriteString(helpStyle.Render(fmt.Sprintf("Radius: %.1f°   ENTER: Search  TAB: Radius  ESC: Cancel", m.state.Radius)))
		return s.String()
	}

	if m.state.Message != "" {
		style := msgStyle
		if m.state.Phase == controller.Failed {
			style = errStyle
		}
		s.WriteString(style.Render(m.state.Message))
		s.WriteString("\n\n")
	}

	body := m.bodyHeight()
	if m.state.View == controller.MapView {
		s.WriteString(m.renderMap(body))
	} else {
		s.WriteString(m.renderList(body))
	}
	s.WriteString("\n")

	s.WriteString(helpStyle.Render("/: Search  R: Radius  V: List/Map  U: My location  G: Refresh  ↑/↓: Select  Q: Quit"))
	return s.String()
}

func (m model) statusLine() string {
	var parts []string
	if m.state.Loading {
		parts = append(parts, "Searching "+m.state.Query+"…")
	} else if m.state.Location != nil {
		parts = append(parts, fmt.Sprintf("%s (%s)", m.state.Location.Name, m.state.ResultQuery))
		parts = append(parts, fmt.Sprintf("%d aircraft", len(m.state.Flights)))
		if !m.state.UpdatedAt.IsZero() {
			parts = append(parts, "updated "+m.state.UpdatedAt.Format("15:04:05"))
		}
	}
	parts = append(parts, fmt.Sprintf("radius %.1f°", m.state.Radius))
	return helpStyle.Render(strings.Join(parts, " · "))
}

func (m model) bodyHeight() int {
	h := m.height - 6
	if m.state.Message != "" {
		h -= 2
	}
	return max(h, 5)
}

func (m model) renderList(height int) string {
	if len(m.state.Flights) == 0 {
		return helpStyle.Render("  No flights to show. Press / to search.")
	}

	lines := strings.Split(view.RenderCards(m.state.Flights, m.width), "\n")

	// Keep the selected card's row on screen
	perRow := max(m.width/34, 1)
	cardHeight := len(view.CardFields(opensky.Flight{})) + 2
	top := (m.selected / perRow) * cardHeight
	if top+cardHeight > height {
		top = max(top+cardHeight-height, 0)
	} else {
		top = 0
	}
	end := min(top+height, len(lines))
	return strings.Join(lines[top:end], "\n")
}

func (m model) renderMap(height int) string {
	if m.mapv == nil || m.state.Location == nil {
		return helpStyle.Render("  Search a location to open the map.")
	}

	center := m.state.Location.Latlong()
	proj := view.NewProjection(center, m.state.ResultRadius, max(m.width-infoWidth-2, 10), max(height-2, 5))
	snap := m.mapv.layer.Snapshot()

	var selected string
	if m.selected < len(m.state.Flights) {
		selected = m.state.Flights[m.selected].ID
	}

	radar := view.RenderRadar(snap, proj, selected)
	info := view.RenderRadarInfo(snap, center, m.state.Location.Name, m.state.ResultRadius, selected)
	return lipgloss.JoinHorizontal(lipgloss.Top, radar, "  ", info)
}
