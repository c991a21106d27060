package ui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/heimdex/heimdex-composer/internal/catalog"
)

const refreshInterval = 5 * time.Second

// ExportControl is the part of the export manager the tray drives.
type ExportControl interface {
	Pause()
	Resume()
	IsPaused() bool
	ActiveCount() int
}

type Tray struct {
	catalogSvc catalog.CatalogService
	exports    ExportControl
	logger     *slog.Logger

	statusItem       *systray.MenuItem
	sourcesItem      *systray.MenuItem
	compositionsItem *systray.MenuItem
	pauseItem        *systray.MenuItem

	mu sync.Mutex

	onOpenExports func() error
	onQuit        func()
	stop          chan struct{}
	stopOnce      sync.Once
}

type TrayConfig struct {
	CatalogService catalog.CatalogService
	Exports        ExportControl
	Logger         *slog.Logger
	OnOpenExports  func() error
	OnQuit         func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		catalogSvc:    cfg.CatalogService,
		exports:       cfg.Exports,
		logger:        cfg.Logger,
		onOpenExports: cfg.OnOpenExports,
		onQuit:        cfg.OnQuit,
		stop:          make(chan struct{}),
	}
}

// Run blocks until the tray exits.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Heimdex")
	systray.SetTooltip("Heimdex Composer")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current composer status")
	t.statusItem.Disable()

	t.sourcesItem = systray.AddMenuItem("Sources: 0", "Clips in the catalog")
	t.sourcesItem.Disable()

	t.compositionsItem = systray.AddMenuItem("Compositions: 0", "Stored compositions")
	t.compositionsItem.Disable()

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem("Pause Exports", "Refuse new exports")

	openItem := systray.AddMenuItem("Open Exports Folder", "Show rendered movies")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Heimdex Composer")

	go func() {
		for {
			select {
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-openItem.ClickedCh:
				t.handleOpenExports()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	go t.refreshLoop()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.stopOnce.Do(func() { close(t.stop) })
	t.logger.Info("system tray exiting")
}

func (t *Tray) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	t.Refresh()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.Refresh()
		}
	}
}

// Refresh re-reads the catalog counts and export state into the menu.
func (t *Tray) Refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sources, err := t.catalogSvc.GetSources(ctx)
	if err != nil {
		t.logger.Debug("tray refresh failed", "error", err)
		return
	}
	comps, err := t.catalogSvc.ListCompositions(ctx)
	if err != nil {
		t.logger.Debug("tray refresh failed", "error", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sourcesItem.SetTitle(fmt.Sprintf("Sources: %d", len(sources)))
	t.compositionsItem.SetTitle(fmt.Sprintf("Compositions: %d", len(comps)))
	t.statusItem.SetTitle("Status: " + t.statusLocked())
}

func (t *Tray) statusLocked() string {
	if t.exports == nil {
		return statusLabel(0, false)
	}
	return statusLabel(t.exports.ActiveCount(), t.exports.IsPaused())
}

func statusLabel(active int, paused bool) string {
	switch {
	case paused && active > 0:
		return fmt.Sprintf("Paused (%d finishing)", active)
	case paused:
		return "Paused"
	case active > 0:
		return fmt.Sprintf("Exporting (%d)", active)
	default:
		return "Idle"
	}
}

func pauseLabel(paused bool) string {
	if paused {
		return "Resume Exports"
	}
	return "Pause Exports"
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.exports == nil {
		return
	}

	if t.exports.IsPaused() {
		t.exports.Resume()
	} else {
		t.exports.Pause()
	}
	t.pauseItem.SetTitle(pauseLabel(t.exports.IsPaused()))
	t.statusItem.SetTitle("Status: " + t.statusLocked())
}

func (t *Tray) handleOpenExports() {
	if t.onOpenExports != nil {
		if err := t.onOpenExports(); err != nil {
			t.logger.Error("failed to open exports folder", "error", err)
		}
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}
