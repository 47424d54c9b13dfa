package mpv

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var mediaExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "bmp": true,
	"webp": true, "tiff": true,
	"mp4": true, "mkv": true, "avi": true, "mov": true, "wmv": true,
	"flv": true, "webm": true,
	"mp3": true, "wav": true, "flac": true, "ogg": true, "m4a": true,
	"aac": true,
}

// IsMediaFile reports whether the path has a recognized media extension.
func IsMediaFile(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return mediaExtensions[ext]
}

// ExpandMediaFiles resolves the given files and directories into an ordered
// playlist. Directories are expanded non-recursively, filtered to media
// files, and sorted so every participant derives the same ordering.
func ExpandMediaFiles(paths []string) ([]string, error) {
	var files []string

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("mpv: path does not exist: %s", path)
		}

		if !info.IsDir() {
			files = append(files, path)
			continue
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("mpv: read directory %s: %w", path, err)
		}

		var dirFiles []string
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			full := filepath.Join(path, entry.Name())
			if IsMediaFile(full) {
				dirFiles = append(dirFiles, full)
			}
		}
		sort.Strings(dirFiles)
		files = append(files, dirFiles...)
	}

	return files, nil
}

// PlaylistItem is one entry in the shared playlist.
type PlaylistItem struct {
	Path     string
	Title    string
	Duration float64 // seconds; 0 until mpv reports it
}

// Playlist tracks local navigation state through the ordered file list. The
// file list itself is authoritative: indexes on the wire map into it.
type Playlist struct {
	items    []PlaylistItem
	index    int
	position float64
	paused   bool
}

// NewPlaylist builds a playlist from media file paths.
func NewPlaylist(files []string) *Playlist {
	items := make([]PlaylistItem, 0, len(files))
	for _, f := range files {
		items = append(items, PlaylistItem{Path: f, Title: filepath.Base(f)})
	}
	return &Playlist{items: items, paused: true}
}

// Len returns the number of entries.
func (p *Playlist) Len() int { return len(p.items) }

// Current returns the selected item, or false when the index is out of range
// (mpv reports -1 with nothing selected).
func (p *Playlist) Current() (PlaylistItem, bool) {
	if p.index < 0 || p.index >= len(p.items) {
		return PlaylistItem{}, false
	}
	return p.items[p.index], true
}

// Index returns the current index.
func (p *Playlist) Index() int { return p.index }

// PathAt returns the file path for an index, or "" when out of range.
func (p *Playlist) PathAt(index int) string {
	if index < 0 || index >= len(p.items) {
		return ""
	}
	return p.items[index].Path
}

// UpdatePosition records a polled index/time/pause triple and reports
// whether anything display-worthy changed (index, pause flag, or >0.5s of
// playback time).
func (p *Playlist) UpdatePosition(index int, position float64, paused bool) bool {
	changed := p.index != index ||
		p.paused != paused ||
		abs(p.position-position) > 0.5

	p.index = index
	p.position = position
	p.paused = paused
	return changed
}

// Next advances the index; returns false at the end.
func (p *Playlist) Next() bool {
	if p.index >= len(p.items)-1 {
		return false
	}
	p.index++
	p.position = 0
	return true
}

// Prev steps the index back; returns false at the beginning.
func (p *Playlist) Prev() bool {
	if p.index <= 0 {
		return false
	}
	p.index--
	p.position = 0
	return true
}

// SetDuration records the duration for the current item.
func (p *Playlist) SetDuration(seconds float64) {
	if p.index >= 0 && p.index < len(p.items) {
		p.items[p.index].Duration = seconds
	}
}

// Progress returns playback progress through the current item in [0,1].
func (p *Playlist) Progress() float64 {
	item, ok := p.Current()
	if !ok || item.Duration <= 0 {
		return 0
	}
	prog := p.position / item.Duration
	if prog < 0 {
		return 0
	}
	if prog > 1 {
		return 1
	}
	return prog
}

// FormatPosition renders the current playback time as MM:SS or HH:MM:SS.
func (p *Playlist) FormatPosition() string {
	return FormatTime(p.position)
}

// FormatTime renders seconds as MM:SS, or HH:MM:SS past the hour.
func FormatTime(seconds float64) string {
	total := int64(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
