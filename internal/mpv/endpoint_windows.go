//go:build windows

package mpv

import (
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/Microsoft/go-winio"
)

// On Windows mpv exposes its IPC endpoint as a named pipe; the socket path's
// file stem becomes the pipe name.
func pipeName(socketPath string) string {
	stem := strings.TrimSuffix(filepath.Base(socketPath), filepath.Ext(socketPath))
	if stem == "" {
		stem = "syncread_mpv"
	}
	return `\\.\pipe\` + stem
}

func ipcServerArg(socketPath string) string {
	return "--input-ipc-server=" + pipeName(socketPath)
}

// endpointReady probes the pipe: named pipes have no file to stat, so a
// short-lived dial is the readiness check.
func endpointReady(socketPath string) bool {
	timeout := 50 * time.Millisecond
	conn, err := winio.DialPipe(pipeName(socketPath), &timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func dialEndpoint(socketPath string) (net.Conn, error) {
	timeout := 2 * time.Second
	return winio.DialPipe(pipeName(socketPath), &timeout)
}

// removeEndpoint is a no-op: the pipe name vanishes with the process.
func removeEndpoint(string) error {
	return nil
}
