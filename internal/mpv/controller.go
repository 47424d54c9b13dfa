// Package mpv drives a locally spawned mpv process over its JSON IPC
// channel: request/response correlation, typed property accessors, and
// process lifecycle.
package mpv

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/syncread/syncread/internal/logging"
)

var log = logging.L("mpv")

// Endpoint readiness polling: 50 attempts at 100ms gives mpv five seconds
// to bring up the IPC socket. Variables so tests can shorten the wait.
var (
	endpointPollAttempts = 50
	endpointPollInterval = 100 * time.Millisecond
)

const responseReadAttempts = 10

// ErrNoMatchingResponse is returned when the response read loop exhausts its
// attempts without seeing a response for the issued request id.
var ErrNoMatchingResponse = errors.New("mpv: no matching response after retries")

// Request is the IPC command envelope: a heterogeneous argument vector plus
// a correlation id.
type Request struct {
	Command   []any  `json:"command"`
	RequestID uint32 `json:"request_id"`
}

// Response is one IPC response line. RequestID is nil on unsolicited events,
// which share the channel with command responses.
type Response struct {
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data,omitempty"`
	RequestID *uint32         `json:"request_id"`
}

// Float decodes the data field as a float64.
func (r *Response) Float() (float64, bool) {
	if len(r.Data) == 0 {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(r.Data, &v); err != nil {
		return 0, false
	}
	return v, true
}

// Int decodes the data field as an integer.
func (r *Response) Int() (int, bool) {
	v, ok := r.Float()
	if !ok {
		return 0, false
	}
	return int(v), true
}

// Bool decodes the data field as a bool.
func (r *Response) Bool() (bool, bool) {
	if len(r.Data) == 0 {
		return false, false
	}
	var v bool
	if err := json.Unmarshal(r.Data, &v); err != nil {
		return false, false
	}
	return v, true
}

// Controller owns one mpv process and its IPC connection. The connection is
// dialed lazily on the first command and reused; commands are serialized, so
// the controller is safe for concurrent use.
type Controller struct {
	mu         sync.Mutex
	cmd        *exec.Cmd
	socketPath string
	conn       net.Conn
	reader     *bufio.Reader
	nextReqID  uint32
	closeOnce  sync.Once
	exited     chan struct{} // closed once the child has been reaped
}

// Launch spawns mpv with the IPC endpoint at socketPath, an optional input
// config, and the given media files preloaded into its playlist. The child's
// stdout/stderr are discarded so it cannot scribble over the terminal UI.
// Launch blocks until the IPC endpoint exists or the readiness poll times
// out; on timeout the error distinguishes a dead child from a live one that
// never created the endpoint.
func Launch(socketPath, keybindConf string, files []string, binary string) (*Controller, error) {
	if binary == "" {
		binary = "mpv"
	}

	args := []string{
		ipcServerArg(socketPath),
		"--idle=yes",
		"--force-window=yes",
		"--pause=yes",
	}
	if keybindConf != "" {
		args = append(args, "--input-conf="+keybindConf)
	}
	args = append(args, files...)

	cmd := exec.Command(binary, args...)
	// Streams stay nil: exec wires them to the null device.

	log.Info("launching mpv", "binary", binary, "socket", socketPath, "files", len(files))

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mpv: spawn %s: %w", binary, err)
	}

	c := &Controller{
		cmd:        cmd,
		socketPath: socketPath,
		exited:     make(chan struct{}),
	}

	// Reap the child as soon as it dies so it never lingers as a zombie
	// and the exit is observable during the readiness wait.
	go func() {
		cmd.Wait()
		close(c.exited)
	}()

	if err := c.waitForEndpoint(); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

func (c *Controller) waitForEndpoint() error {
	log.Info("waiting for mpv IPC endpoint", "socket", c.socketPath)

	for attempt := 1; attempt <= endpointPollAttempts; attempt++ {
		if endpointReady(c.socketPath) {
			log.Debug("mpv IPC ready", "attempts", attempt)
			return nil
		}
		if attempt%10 == 0 {
			log.Info("still waiting for IPC", "attempt", attempt, "of", endpointPollAttempts)
		}
		time.Sleep(endpointPollInterval)
	}

	return c.diagnoseEndpointTimeout()
}

// diagnoseEndpointTimeout inspects the child so the startup failure says
// whether mpv died or is alive without an endpoint.
func (c *Controller) diagnoseEndpointTimeout() error {
	select {
	case <-c.exited:
		return fmt.Errorf("mpv: process exited before creating IPC endpoint %s", c.socketPath)
	default:
	}

	status := "running"
	if p, err := process.NewProcess(int32(c.cmd.Process.Pid)); err == nil {
		if st, err := p.Status(); err == nil && len(st) > 0 {
			status = strings.Join(st, ",")
		}
	}
	return fmt.Errorf("mpv: process is %s but IPC endpoint %s never appeared", status, c.socketPath)
}

func (c *Controller) connectLocked() error {
	if c.conn != nil {
		return nil
	}

	conn, err := dialEndpoint(c.socketPath)
	if err != nil {
		return fmt.Errorf("mpv: connect to IPC endpoint %s: %w", c.socketPath, err)
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	log.Info("connected to mpv IPC", "socket", c.socketPath)
	return nil
}

// SendCommand issues one command and returns the response correlated to it.
// Blank lines are skipped, malformed lines are skipped with a warning, and
// responses for other request ids (interleaved unsolicited events, stale
// replies) are discarded. Exhausting the read attempts is an error.
func (c *Controller) SendCommand(args ...any) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(); err != nil {
		return nil, err
	}

	c.nextReqID++
	id := c.nextReqID

	payload, err := json.Marshal(Request{Command: args, RequestID: id})
	if err != nil {
		return nil, fmt.Errorf("mpv: marshal command: %w", err)
	}

	log.Debug("sending command", "requestId", id, "command", string(payload))

	if _, err := c.conn.Write(append(payload, '\n')); err != nil {
		return nil, fmt.Errorf("mpv: write command: %w", err)
	}

	for attempt := 1; attempt <= responseReadAttempts; attempt++ {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("mpv: read response: %w", err)
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			log.Debug("empty response line", "attempt", attempt)
			continue
		}

		var resp Response
		if err := json.Unmarshal([]byte(trimmed), &resp); err != nil {
			log.Warn("malformed response line", "line", trimmed, "error", err)
			continue
		}

		if resp.RequestID == nil || *resp.RequestID != id {
			log.Debug("skipping response for different request", "want", id, "got", resp.RequestID)
			continue
		}

		if resp.Error != "" && resp.Error != "success" {
			log.Warn("command error", "requestId", id, "error", resp.Error)
		}
		return &resp, nil
	}

	return nil, ErrNoMatchingResponse
}

// Play resumes playback.
func (c *Controller) Play() error {
	_, err := c.SendCommand("set_property", "pause", false)
	return err
}

// Pause suspends playback.
func (c *Controller) Pause() error {
	_, err := c.SendCommand("set_property", "pause", true)
	return err
}

// Seek moves playback by the given number of seconds (relative).
func (c *Controller) Seek(seconds float64) error {
	_, err := c.SendCommand("seek", seconds)
	return err
}

// NextFile advances to the next playlist entry.
func (c *Controller) NextFile() error {
	_, err := c.SendCommand("playlist-next")
	return err
}

// PrevFile moves to the previous playlist entry.
func (c *Controller) PrevFile() error {
	_, err := c.SendCommand("playlist-prev")
	return err
}

// GetPosition returns the playback time in seconds, defaulting to 0.0 when
// the property is absent or mistyped. Staleness beats crashing a poll loop.
func (c *Controller) GetPosition() (float64, error) {
	resp, err := c.SendCommand("get_property", "playback-time")
	if err != nil {
		return 0, err
	}
	v, _ := resp.Float()
	return v, nil
}

// GetPlaylistPos returns the current playlist index, defaulting to 0.
func (c *Controller) GetPlaylistPos() (int, error) {
	resp, err := c.SendCommand("get_property", "playlist-pos")
	if err != nil {
		return 0, err
	}
	v, _ := resp.Int()
	return v, nil
}

// IsPaused reports the pause flag, defaulting to true.
func (c *Controller) IsPaused() (bool, error) {
	resp, err := c.SendCommand("get_property", "pause")
	if err != nil {
		return true, err
	}
	v, ok := resp.Bool()
	if !ok {
		return true, nil
	}
	return v, nil
}

// Close terminates the mpv process and removes the IPC endpoint. Best-effort:
// failures are logged, never returned as fatal, so deferred teardown can't
// wedge shutdown.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}

		if c.cmd != nil && c.cmd.Process != nil {
			select {
			case <-c.exited:
				// Already gone; nothing to kill.
			default:
				if err := c.cmd.Process.Kill(); err != nil {
					log.Error("failed to kill mpv process", "pid", c.cmd.Process.Pid, "error", err)
				}
			}
		}

		if err := removeEndpoint(c.socketPath); err != nil {
			log.Warn("failed to remove IPC endpoint", "socket", c.socketPath, "error", err)
		}
	})
}
