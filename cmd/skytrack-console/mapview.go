package main

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/unklstewy/skytrack/internal/view"
)

// MapView is a custom tview primitive that renders the map grid using tcell
type MapView struct {
	*tview.Box
	app *App
}

// NewMapView creates a new map view
func NewMapView(app *App) *MapView {
	mv := &MapView{
		Box: tview.NewBox(),
		app: app,
	}
	mv.SetBorder(true).SetTitle(" Map ")
	return mv
}

// Draw renders the open map, or a hint when there is nothing to show
func (mv *MapView) Draw(screen tcell.Screen) {
	mv.Box.DrawForSubclass(screen, mv)
	x, y, width, height := mv.GetInnerRect()

	frame, ok := mv.app.mapFrame()
	if !ok {
		hint := "Search a location to open the map."
		tview.Print(screen, hint, x, y+height/2, width, tview.AlignCenter, tcell.ColorGray)
		return
	}

	proj := view.NewProjection(frame.center, frame.radius, width, height)
	for row, cells := range view.Grid(frame.snap, proj, frame.selected) {
		for col, c := range cells {
			if c.Kind == view.CellEmpty {
				continue
			}
			screen.SetContent(x+col, y+row, c.Ch, nil, cellStyle(c.Kind))
		}
	}
}

// cellStyle uses the same 256-colour palette as the bubbletea radar
func cellStyle(kind view.CellKind) tcell.Style {
	style := tcell.StyleDefault
	switch kind {
	case view.CellFrame:
		return style.Foreground(tcell.PaletteColor(240))
	case view.CellCompass:
		return style.Foreground(tcell.PaletteColor(244)).Bold(true)
	case view.CellCenter:
		return style.Foreground(tcell.PaletteColor(208)).Bold(true)
	case view.CellPath:
		return style.Foreground(tcell.PaletteColor(39))
	case view.CellAircraft:
		return style.Foreground(tcell.PaletteColor(75))
	case view.CellSelected:
		return style.Foreground(tcell.PaletteColor(226)).Bold(true)
	case view.CellLabel:
		return style.Foreground(tcell.PaletteColor(226))
	case view.CellUser:
		return style.Foreground(tcell.PaletteColor(46)).Bold(true)
	default:
		return style
	}
}
