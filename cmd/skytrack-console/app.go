package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/skypies/geo"
	"golang.org/x/time/rate"

	"github.com/unklstewy/skytrack/internal/controller"
	"github.com/unklstewy/skytrack/internal/view"
	"github.com/unklstewy/skytrack/pkg/opensky"
	"github.com/unklstewy/skytrack/pkg/tracking"
)

// AppConfig holds what the console needs from main
type AppConfig struct {
	Store     *controller.Store
	Logs      *LogManager
	Logger    *slog.Logger
	Positions tracking.PositionSource
	Headings  tracking.HeadingSource
	Refresh   time.Duration
}

// mapState lives while the map page is shown
type mapState struct {
	layer      *view.MapLayer
	reconciler *tracking.Reconciler
	overlay    *tracking.UserOverlay
}

// mapFrameData is one consistent read of what the map draws
type mapFrameData struct {
	snap     view.Snapshot
	center   geo.Latlong
	radius   float64
	selected string
}

// App represents the console application
type App struct {
	store     *controller.Store
	logger    *slog.Logger
	logs      *LogManager
	positions tracking.PositionSource
	headings  tracking.HeadingSource
	refresh   time.Duration

	// UI components
	tviewApp *tview.Application
	input    *tview.InputField
	radius   *tview.DropDown
	table    *tview.Table
	mapView  *MapView
	pages    *tview.Pages
	status   *tview.TextView
	controls *tview.TextView

	// Synchronization
	mu       sync.Mutex
	mapv     *mapState
	selected string
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewApp creates a new application instance
func NewApp(cfg AppConfig) *App {
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		store:     cfg.Store,
		logger:    cfg.Logger,
		logs:      cfg.Logs,
		positions: cfg.Positions,
		headings:  cfg.Headings,
		refresh:   cfg.Refresh,
		ctx:       ctx,
		cancel:    cancel,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}

	a.setupUI()
	a.store.Subscribe(a.onState)
	return a
}

var radiusLabels = []string{"0.5°", "1.0°", "1.5°"}

func radiusIndex(r float64) int {
	for i, v := range opensky.Radii {
		if v == r {
			return i
		}
	}
	return 0
}

// setupUI initializes the user interface
func (a *App) setupUI() {
	a.tviewApp = tview.NewApplication()
	st := a.store.State()

	a.input = tview.NewInputField().
		SetLabel("Search: ").
		SetPlaceholder("airport code or city, e.g. JFK or London").
		SetText(st.Query).
		SetFieldWidth(0)
	a.input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			a.submit()
		}
	})

	a.radius = tview.NewDropDown().SetLabel("Radius: ")
	a.radius.SetOptions(radiusLabels, func(_ string, index int) {
		if index >= 0 && index < len(opensky.Radii) {
			go a.store.Dispatch(controller.SetRadius{Radius: opensky.Radii[index]})
		}
	})
	a.radius.SetCurrentOption(radiusIndex(st.Radius))

	a.table = tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false).
		SetFixed(1, 0)
	a.table.SetBorder(true).SetTitle(" Flights ")
	a.table.SetSelectionChangedFunc(func(row, _ int) {
		if ref := a.table.GetCell(row, 0).GetReference(); ref != nil {
			a.mu.Lock()
			a.selected = ref.(string)
			a.mu.Unlock()
		}
	})

	a.mapView = NewMapView(a)

	a.pages = tview.NewPages().
		AddPage(controller.ListView.String(), a.table, true, st.View == controller.ListView).
		AddPage(controller.MapView.String(), a.mapView, true, st.View == controller.MapView)

	a.status = tview.NewTextView().SetDynamicColors(true)
	a.status.SetBorder(true).SetTitle(" Status ")

	a.controls = tview.NewTextView().SetDynamicColors(true)
	a.controls.SetBorder(true).SetTitle(" Controls ")
	a.controls.SetText(`[yellow]SEARCH[-]
  [white]ENTER[-]   Search
  [white]TAB[-]     Next panel
  [white]/[-]       Focus search

[yellow]VIEW[-]
  [white]v[-]       List / Map
  [white]↑/↓[-]     Select
  [white]u[-]       My location
  [white]g[-]       Refresh

[yellow]CONTROL[-]
  [white]q[-]       Quit`)

	// Log lines may be written from the UI goroutine itself
	a.logs.GetView().SetChangedFunc(func() { go a.tviewApp.Draw() })

	a.createLayout()
	a.tviewApp.SetInputCapture(a.handleKeyboard)
	a.render(st)
}

// createLayout creates the main layout
func (a *App) createLayout() {
	searchBar := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.input, 0, 1, true).
		AddItem(a.radius, 16, 0, false)

	sidebar := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.status, 0, 4, false).
		AddItem(a.controls, 0, 3, false).
		AddItem(a.logs.GetView(), 0, 3, false)

	body := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.pages, 0, 7, false).
		AddItem(sidebar, 0, 3, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(searchBar, 1, 0, true).
		AddItem(body, 0, 1, false)

	a.tviewApp.SetRoot(root, true).SetFocus(a.input)
}

// handleKeyboard handles keys outside the text fields
func (a *App) handleKeyboard(event *tcell.EventKey) *tcell.EventKey {
	focus := a.tviewApp.GetFocus()

	if event.Key() == tcell.KeyTab {
		switch focus {
		case a.input:
			a.tviewApp.SetFocus(a.radius)
		case a.radius:
			a.tviewApp.SetFocus(a.pages)
		default:
			a.tviewApp.SetFocus(a.input)
		}
		return nil
	}

	// Typing goes to the search field
	if focus == a.input || focus == a.radius {
		return event
	}

	switch event.Rune() {
	case 'q':
		a.Stop()
		return nil
	case '/':
		a.tviewApp.SetFocus(a.input)
		return nil
	case 'v':
		go a.store.Dispatch(controller.ToggleView{})
		return nil
	case 'g':
		go a.store.Refresh(a.ctx)
		return nil
	case 'u':
		go a.toggleUserLocation()
		return nil
	}
	return event
}

func (a *App) submit() {
	query := strings.TrimSpace(a.input.GetText())
	index, _ := a.radius.GetCurrentOption()
	radius := opensky.Radii[0]
	if index >= 0 && index < len(opensky.Radii) {
		radius = opensky.Radii[index]
	}
	go a.store.Submit(a.ctx, query, radius)
}

// onState runs after every state change, on the dispatching goroutine.
// Map bookkeeping happens here; widgets are updated on the UI goroutine.
// Notifications from concurrent dispatches may arrive out of order, so
// both steps read the latest state rather than the notified one.
func (a *App) onState(controller.State) {
	a.syncMap()
	a.tviewApp.QueueUpdateDraw(func() {
		a.render(a.store.State())
	})
}

// syncMap opens or closes the map state to follow the view and
// reconciles the markers against the current flights.
func (a *App) syncMap() {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := a.store.State()

	if st.View != controller.MapView {
		if a.mapv != nil {
			a.mapv.overlay.Stop()
			a.mapv.reconciler.Clear()
			a.mapv = nil
			a.logger.Debug("map closed")
		}
		return
	}

	if a.mapv == nil {
		layer := view.NewMapLayer()
		a.mapv = &mapState{
			layer:      layer,
			reconciler: tracking.NewReconciler(layer, a.logger),
			overlay:    tracking.NewUserOverlay(layer, a.positions, a.headings, rate.Every(time.Second), a.logger),
		}
		a.logger.Debug("map opened")
	}
	stats := a.mapv.reconciler.Reconcile(st.Flights)
	if stats.Created > 0 || stats.Removed > 0 {
		a.logger.Debug("markers reconciled", "created", stats.Created, "updated", stats.Updated, "removed", stats.Removed)
	}
}

// toggleUserLocation holds a.mu across Start and Stop so a concurrent
// syncMap cannot drop the map between the two.
func (a *App) toggleUserLocation() {
	a.mu.Lock()
	defer a.mu.Unlock()

	mv := a.mapv
	if mv == nil {
		a.logger.Debug("user location ignored outside the map")
		return
	}
	if mv.overlay.Active() {
		mv.overlay.Stop()
		a.logger.Info("user location off")
		return
	}
	if err := mv.overlay.Start(a.ctx); err != nil {
		a.logger.Warn("user location failed to start", "error", err)
		return
	}
	if mv.overlay.Active() {
		a.logger.Info("user location on")
	} else {
		a.logger.Debug("device location unavailable", "hint", "use -here lat,lon or user_location in the config")
	}
}

// mapFrame returns what the map should draw, or false before a result.
func (a *App) mapFrame() (mapFrameData, bool) {
	st := a.store.State()
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mapv == nil || st.Location == nil {
		return mapFrameData{}, false
	}
	return mapFrameData{
		snap:     a.mapv.layer.Snapshot(),
		center:   st.Location.Latlong(),
		radius:   st.ResultRadius,
		selected: a.selected,
	}, true
}

// render updates every widget from st. UI goroutine only.
func (a *App) render(st controller.State) {
	a.pages.SwitchToPage(st.View.String())

	if st.Location != nil {
		a.mapView.SetTitle(fmt.Sprintf(" Map - %s ", st.Location.Name))
	}

	a.mu.Lock()
	selected := a.selected
	a.mu.Unlock()
	fillTable(a.table, st.Flights, selected)

	a.status.SetText(statusText(st, time.Now()))
}

// fillTable rebuilds the flight table, keeping the selected flight
// selected when it is still present.
func fillTable(table *tview.Table, flights []opensky.Flight, selected string) {
	table.Clear()

	for col, f := range view.CardFields(opensky.Flight{}) {
		table.SetCell(0, col, tview.NewTableCell(f.Label).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false))
	}

	selectRow := 1
	for i, f := range flights {
		row := i + 1
		for col, field := range view.CardFields(f) {
			cell := tview.NewTableCell(field.Value).SetExpansion(1)
			if col == 0 {
				cell.SetReference(f.ID)
			}
			table.SetCell(row, col, cell)
		}
		if f.ID == selected {
			selectRow = row
		}
	}

	if len(flights) > 0 {
		table.Select(selectRow, 0)
	}
}

// statusText formats the status panel
func statusText(st controller.State, now time.Time) string {
	var b strings.Builder

	phaseColor := "white"
	switch st.Phase {
	case controller.Succeeded:
		phaseColor = "green"
	case controller.Failed:
		phaseColor = "red"
	case controller.Searching:
		phaseColor = "yellow"
	}
	fmt.Fprintf(&b, "[gray]Phase:[-]  [%s]%s[-]\n", phaseColor, st.Phase)
	if st.Loading {
		fmt.Fprintf(&b, "[yellow]Searching %s…[-]\n", tview.Escape(st.Query))
	}
	if st.Message != "" {
		fmt.Fprintf(&b, "[orange]%s[-]\n", tview.Escape(st.Message))
	}
	b.WriteString("\n")

	if st.Location != nil {
		fmt.Fprintf(&b, "[yellow]CENTER:[-] [white]%s[-]\n", tview.Escape(st.Location.Name))
		fmt.Fprintf(&b, "[gray]Query:[-]  [white]%s[-]\n", tview.Escape(st.ResultQuery))
		fmt.Fprintf(&b, "[gray]Pos:[-]    [white]%.4f°, %.4f°[-]\n", st.Location.Latitude, st.Location.Longitude)
		fmt.Fprintf(&b, "[gray]Radius:[-] [white]%.1f°[-]\n", st.ResultRadius)
		fmt.Fprintf(&b, "[gray]Aircraft:[-] [white]%d airborne[-]\n", len(st.Flights))
		if !st.UpdatedAt.IsZero() {
			fmt.Fprintf(&b, "[gray]Updated:[-] [white]%s[-] [gray](%s ago)[-]\n",
				st.UpdatedAt.Format("15:04:05"), now.Sub(st.UpdatedAt).Round(time.Second))
		}
	} else {
		b.WriteString("[gray]No search yet[-]\n")
	}
	fmt.Fprintf(&b, "[gray]View:[-]   [white]%s[-]\n", st.View)

	return b.String()
}

// Run starts the application
func (a *App) Run() error {
	a.syncMap()
	st := a.store.State()
	if st.Query != "" {
		go a.store.Submit(a.ctx, st.Query, st.Radius)
	}
	if a.refresh > 0 {
		go a.refreshLoop()
	}
	return a.tviewApp.Run()
}

// refreshLoop re-fetches the current center until Stop
func (a *App) refreshLoop() {
	ticker := time.NewTicker(a.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.store.Refresh(a.ctx)
		case <-a.ctx.Done():
			return
		}
	}
}

// Stop stops the application
func (a *App) Stop() {
	a.logger.Info("shutting down")
	a.cancel()

	a.mu.Lock()
	if a.mapv != nil {
		a.mapv.overlay.Stop()
		a.mapv.reconciler.Clear()
		a.mapv = nil
	}
	a.mu.Unlock()

	a.tviewApp.Stop()
}
