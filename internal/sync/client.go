package sync

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/syncread/syncread/internal/protocol"
)

// Player is the playback surface the client polls. *mpv.Controller
// implements it.
type Player interface {
	GetPlaylistPos() (int, error)
	GetPosition() (float64, error)
	IsPaused() (bool, error)
}

// ClientState tracks the connection lifecycle.
type ClientState int32

const (
	StateConnecting ClientState = iota
	StateJoined
	StateSynchronizing
	StateDisconnected
)

func (s ClientState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateSynchronizing:
		return "synchronizing"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Client connects one local player to the sync server. It polls playback
// state once per interval, filters suspect position reports through the
// validator, publishes accepted snapshots, and mirrors every broadcast it
// receives into a shadow session for the display. There is no reconnection:
// once the connection drops, Run returns.
type Client struct {
	userID   string
	player   Player
	playlist []string

	session   *protocol.SessionState
	validator *PositionValidator

	seq   atomic.Uint64
	state atomic.Int32

	pollInterval time.Duration
	propertyGap  time.Duration

	out          chan protocol.SyncMessage
	sendDone     chan struct{}
	sendFinished chan struct{}
}

func NewClient(userID string, player Player, playlist []string) *Client {
	return &Client{
		userID:       userID,
		player:       player,
		playlist:     playlist,
		session:      protocol.NewSessionState(),
		validator:    NewPositionValidator(),
		pollInterval: time.Second,
		propertyGap:  100 * time.Millisecond,
		out:          make(chan protocol.SyncMessage, 64),
		sendDone:     make(chan struct{}),
		sendFinished: make(chan struct{}),
	}
}

// Session exposes the shadow session state for the display.
func (c *Client) Session() *protocol.SessionState {
	return c.session
}

// UserID returns the participant id this client joined as.
func (c *Client) UserID() string {
	return c.userID
}

// State returns the current lifecycle state.
func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

// SetPollInterval overrides the default one-second poll cadence. Must be
// called before Run.
func (c *Client) SetPollInterval(d time.Duration) {
	if d > 0 {
		c.pollInterval = d
	}
}

func (c *Client) setState(s ClientState) {
	old := ClientState(c.state.Swap(int32(s)))
	if old != s {
		log.Info("client state changed", "from", old.String(), "to", s.String())
	}
}

func (c *Client) nextSeq() uint64 {
	return c.seq.Add(1)
}

// Run connects to serverAddr, announces the join, and drives the poll, send,
// and receive loops until the connection drops or ctx is cancelled. A
// best-effort departure notice is flushed before the connection closes.
func (c *Client) Run(ctx context.Context, serverAddr string) error {
	c.setState(StateConnecting)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", serverAddr)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("sync: connect to %s: %w", serverAddr, err)
	}
	log.Info("connected to sync server", "addr", serverAddr, "userId", c.userID)

	writer := bufio.NewWriter(conn)

	// The join carries the first real snapshot so the roster never shows a
	// zero-value entry for us.
	initial := c.snapshot()
	if err := writeMessage(writer, protocol.NewUserJoined(c.userID, initial, c.nextSeq())); err != nil {
		conn.Close()
		c.setState(StateDisconnected)
		return fmt.Errorf("sync: announce join: %w", err)
	}
	c.session.UpdateUser(initial)
	c.validator.Seed(initial.PlaylistPos)
	c.setState(StateJoined)

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.pollLoop(pctx)
	go c.sendLoop(conn, writer)

	// Close the connection only after the send loop has had its chance to
	// flush the departure notice.
	go func() {
		<-pctx.Done()
		<-c.sendFinished
		conn.Close()
	}()

	c.setState(StateSynchronizing)
	c.readLoop(conn)

	cancel()
	<-c.sendFinished
	c.setState(StateDisconnected)
	return nil
}

// snapshot reads the three playback properties with a short gap between
// reads. Failed reads fall back to the accessor defaults rather than
// aborting the poll.
func (c *Client) snapshot() protocol.UserState {
	state := protocol.NewUserState(c.userID)

	pos, err := c.player.GetPlaylistPos()
	if err != nil {
		log.Debug("playlist position read failed", "error", err)
	}
	time.Sleep(c.propertyGap)

	playback, err := c.player.GetPosition()
	if err != nil {
		log.Debug("playback time read failed", "error", err)
	}
	time.Sleep(c.propertyGap)

	paused, err := c.player.IsPaused()
	if err != nil {
		log.Debug("pause state read failed", "error", err)
	}

	var file string
	if pos >= 0 && pos < len(c.playlist) {
		file = c.playlist[pos]
	}
	state.Update(pos, playback, paused, file)
	return state
}

// pollLoop publishes one validated snapshot per tick. It is the only sender
// on c.out and closes it on exit.
func (c *Client) pollLoop(ctx context.Context) {
	defer close(c.out)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.sendDone:
			return
		case <-ticker.C:
		}

		state := c.snapshot()
		if !c.validator.Validate(state.PlaylistPos, len(c.playlist)) {
			log.Debug("suppressing suspect position report", "position", state.PlaylistPos)
			continue
		}

		c.session.UpdateUser(state)
		msg := protocol.NewStateUpdate(state, c.nextSeq())

		select {
		case c.out <- msg:
		case <-ctx.Done():
			return
		case <-c.sendDone:
			return
		}
	}
}

// sendLoop drains outbound messages onto the wire, then flushes the final
// departure notice. sendDone signals the poll loop to stop feeding it.
func (c *Client) sendLoop(conn net.Conn, writer *bufio.Writer) {
	defer close(c.sendFinished)

	failed := false
	for msg := range c.out {
		if err := writeMessage(writer, msg); err != nil {
			log.Error("send failed", "error", err)
			failed = true
			break
		}
	}
	close(c.sendDone)

	if err := writeMessage(writer, protocol.NewUserLeft(c.userID, c.nextSeq())); err != nil {
		log.Debug("could not deliver departure notice", "error", err)
	}

	// A failed send may leave the socket half-open with the peer still
	// silent; close it so the read loop unblocks and Run can finish.
	if failed {
		conn.Close()
	}
}

// readLoop mirrors broadcasts into the shadow session until the connection
// drops. Our own echoes come back too; applying them is idempotent.
func (c *Client) readLoop(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var msg protocol.SyncMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			log.Warn("discarding malformed broadcast", "error", err)
			continue
		}

		switch e := msg.Event.(type) {
		case protocol.UserJoined:
			c.session.UpdateUser(e.UserState)
			if e.UserID != c.userID {
				log.Info("user joined session", "userId", e.UserID)
			}
		case protocol.StateUpdate:
			c.session.UpdateUser(e.UserState)
		case protocol.UserLeft:
			c.session.RemoveUser(e.UserID)
			if e.UserID != c.userID {
				log.Info("user left session", "userId", e.UserID)
			}
		case protocol.UserAction:
			log.Info("user action", "userId", e.UserID, "action", e.Action)
		case protocol.Heartbeat:
			log.Debug("heartbeat", "userId", e.UserID)
		}
	}

	if err := scanner.Err(); err != nil {
		log.Info("server connection closed", "error", err)
	} else {
		log.Info("server connection closed")
	}
}
