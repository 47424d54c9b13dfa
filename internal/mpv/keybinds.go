package mpv

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Keybind maps one input key to an mpv command.
type Keybind struct {
	Key     string
	Command string
}

// KeybindProfile is an ordered set of input bindings rendered into an mpv
// input.conf file.
type KeybindProfile struct {
	binds []Keybind
}

// NewSyncProfile returns the binding set used for synchronized viewing:
// playback and playlist navigation on the obvious keys, image pan/zoom for
// still media, and screenshots disabled so nobody's key fumble writes files.
func NewSyncProfile() *KeybindProfile {
	p := &KeybindProfile{}

	p.Add("SPACE", "cycle pause")
	p.Add("p", "cycle pause")

	p.Add("LEFT", "playlist-prev")
	p.Add("RIGHT", "playlist-next")

	p.Add("DOWN", "seek -30")
	p.Add("UP", "seek 30")
	p.Add("Shift+LEFT", "seek -5")
	p.Add("Shift+RIGHT", "seek 5")

	p.Add("n", "playlist-next")
	p.Add("N", "playlist-prev")
	p.Add(">", "playlist-next")
	p.Add("<", "playlist-prev")

	p.Add("z", "add video-zoom 0.1")
	p.Add("Z", "add video-zoom -0.1")
	p.Add("r", "set video-zoom 0; set video-pan-x 0; set video-pan-y 0")

	p.Add("h", "add video-pan-x -0.05")
	p.Add("l", "add video-pan-x 0.05")
	p.Add("k", "add video-pan-y -0.05")
	p.Add("j", "add video-pan-y 0.05")

	p.Add("Ctrl+LEFT", "add video-rotate -90")
	p.Add("Ctrl+RIGHT", "add video-rotate 90")

	p.Add("=", "add speed 0.1")
	p.Add("-", "add speed -0.1")
	p.Add("BS", "set speed 1.0")

	p.Add("9", "add volume -5")
	p.Add("0", "add volume 5")
	p.Add("m", "cycle mute")

	p.Add("f", "cycle fullscreen")
	p.Add("ESC", "set fullscreen no")

	p.Add("i", "script-binding stats/display-stats-toggle")
	p.Add("I", "script-binding stats/display-page-4")

	p.Add("q", "quit")
	p.Add("Q", "quit-watch-later")

	// Screenshot keys off so a fumbled key doesn't write files mid-session.
	p.Add("s", "ignore")
	p.Add("S", "ignore")

	return p
}

// Add appends a binding.
func (p *KeybindProfile) Add(key, command string) {
	p.binds = append(p.binds, Keybind{Key: key, Command: command})
}

// Remove drops every binding for the given key.
func (p *KeybindProfile) Remove(key string) {
	kept := p.binds[:0]
	for _, b := range p.binds {
		if b.Key != key {
			kept = append(kept, b)
		}
	}
	p.binds = kept
}

// Render produces the input.conf file content.
func (p *KeybindProfile) Render() string {
	var sb strings.Builder
	sb.WriteString("# syncread mpv keybind profile\n")
	sb.WriteString("# generated automatically - do not edit manually\n\n")
	for _, b := range p.binds {
		fmt.Fprintf(&sb, "%-20s %s\n", b.Key, b.Command)
	}
	return sb.String()
}

// WriteFile writes the rendered config to path.
func (p *KeybindProfile) WriteFile(path string) error {
	if err := os.WriteFile(path, []byte(p.Render()), 0644); err != nil {
		return fmt.Errorf("mpv: write keybind config %s: %w", path, err)
	}
	log.Info("keybind profile written", "path", path)
	return nil
}

// CreateTempConfig writes the profile to a file in the temp dir and returns
// its path, for passing to mpv's --input-conf.
func (p *KeybindProfile) CreateTempConfig() (string, error) {
	path := filepath.Join(os.TempDir(), "syncread_keybinds.conf")
	if err := p.WriteFile(path); err != nil {
		return "", err
	}
	return path, nil
}
