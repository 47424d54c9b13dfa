// Package protocol defines the sync session data model and the
// newline-delimited JSON wire messages exchanged between clients and
// the server.
package protocol

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// UserState is one participant's playback snapshot.
type UserState struct {
	UserID          string  `json:"user_id"`
	PlaylistPos     int     `json:"playlist_position"`
	CurrentFile     string  `json:"current_file,omitempty"`
	CurrentFileName string  `json:"current_file_name,omitempty"`
	PlaybackTime    float64 `json:"playback_time"`
	Paused          bool    `json:"is_paused"`
	Timestamp       int64   `json:"timestamp"`
}

// NewUserState returns the initial snapshot for a participant:
// nothing selected, paused, stamped now.
func NewUserState(userID string) UserState {
	return UserState{
		UserID:    userID,
		Paused:    true,
		Timestamp: time.Now().Unix(),
	}
}

// Update refreshes the snapshot from polled playback data and restamps it.
// Timestamps are monotonically non-decreasing per author because each
// participant is the only writer of its own state.
func (s *UserState) Update(playlistPos int, playbackTime float64, paused bool, currentFile string) {
	s.PlaylistPos = playlistPos
	s.PlaybackTime = playbackTime
	s.Paused = paused
	s.CurrentFile = currentFile
	if currentFile != "" {
		s.CurrentFileName = filepath.Base(currentFile)
	} else {
		s.CurrentFileName = ""
	}
	s.Timestamp = time.Now().Unix()
}

// DisplayLine renders the snapshot for the terminal roster.
func (s UserState) DisplayLine() string {
	name := s.CurrentFileName
	if name == "" {
		name = "(no file)"
	}
	status := "playing"
	if s.Paused {
		status = "paused"
	}
	return fmt.Sprintf("%s: [%s] %s (pos: %d, time: %.1fs)",
		s.UserID, status, name, s.PlaylistPos, s.PlaybackTime)
}

// SessionState tracks the last-known state of every participant. The server
// holds the authoritative instance; each client holds a shadow copy. All
// methods are safe for concurrent use: readers (the display) may inspect it
// while one writer mutates.
type SessionState struct {
	mu        sync.RWMutex
	users     map[string]UserState
	createdAt int64
}

func NewSessionState() *SessionState {
	return &SessionState{
		users:     make(map[string]UserState),
		createdAt: time.Now().Unix(),
	}
}

// UpdateUser upserts a participant's state by id.
func (ss *SessionState) UpdateUser(state UserState) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.users[state.UserID] = state
}

// RemoveUser deletes a participant.
func (ss *SessionState) RemoveUser(userID string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.users, userID)
}

// User returns a participant's state, if known.
func (ss *SessionState) User(userID string) (UserState, bool) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	state, ok := ss.users[userID]
	return state, ok
}

// Len returns the number of participants.
func (ss *SessionState) Len() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.users)
}

// UsersSorted returns all participants ordered by id for deterministic
// display.
func (ss *SessionState) UsersSorted() []UserState {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	users := make([]UserState, 0, len(ss.users))
	for _, u := range ss.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users
}

// CheckSync reports whether the spread between the minimum and maximum
// playlist position is within tolerance. Fewer than two participants are
// trivially in sync.
func (ss *SessionState) CheckSync(tolerance int) bool {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	if len(ss.users) < 2 {
		return true
	}

	first := true
	var min, max int
	for _, u := range ss.users {
		if first {
			min, max = u.PlaylistPos, u.PlaylistPos
			first = false
			continue
		}
		if u.PlaylistPos < min {
			min = u.PlaylistPos
		}
		if u.PlaylistPos > max {
			max = u.PlaylistPos
		}
	}
	return max-min <= tolerance
}

// SyncSummary renders a one-line session status at the given position
// tolerance.
func (ss *SessionState) SyncSummary(tolerance int) string {
	count := ss.Len()
	status := "out of sync"
	if ss.CheckSync(tolerance) {
		status = "in sync"
	}
	return fmt.Sprintf("%d users connected - %s", count, status)
}

// CreatedAt returns the session creation time in seconds since epoch.
func (ss *SessionState) CreatedAt() int64 {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return ss.createdAt
}
