// Package tray provides a system tray menu for SignLink.
package tray

import (
	"fmt"
	"math"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/signlink/internal/classifier"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle func(enabled bool)
	onOpen   func()
	onQuit   func()
	enabled  bool
	last     string
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuLast   *systray.MenuItem
}

// New creates a new Tray with signing enabled.
func New() *Tray {
	return &Tray{
		enabled: true,
		last:    LastTitle(nil),
	}
}

// OnToggle sets the callback for turning signing on or off.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnOpen sets the callback for the "Open SignLink" item.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// onReady sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("SignLink")
	systray.SetTooltip("SignLink sign recognition")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(ToggleTitle(t.enabled), "Turn sign recognition on or off")
	systray.AddSeparator()

	t.menuLast = systray.AddMenuItem(t.last, "Last recognized letter")
	t.menuLast.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open SignLink...", "Open the web interface")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit SignLink")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.Toggle()
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// Toggle flips the enabled state and reports it to the toggle callback.
func (t *Tray) Toggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(ToggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// Quit makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// SetPrediction shows p in the "Last:" item. It can be used as a prediction sink.
func (t *Tray) SetPrediction(p classifier.Prediction) {
	title := LastTitle(&p)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.last = title
	if t.menuLast != nil {
		t.menuLast.SetTitle(title)
	}
}

// Last returns the current "Last:" title.
func (t *Tray) Last() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// ToggleTitle is the toggle item label for a state.
func ToggleTitle(enabled bool) string {
	if enabled {
		return "● Signing"
	}
	return "○ Paused"
}

// LastTitle formats a prediction as "Last: A (97%)".
func LastTitle(p *classifier.Prediction) string {
	if p == nil || p.Label == "" {
		return "Last: none"
	}
	return fmt.Sprintf("Last: %s (%d%%)", p.Label, int(math.Round(float64(p.Confidence))))
}
