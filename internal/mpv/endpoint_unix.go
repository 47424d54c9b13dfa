//go:build !windows

package mpv

import (
	"net"
	"os"
)

// ipcServerArg builds the --input-ipc-server flag for a unix socket path.
func ipcServerArg(socketPath string) string {
	return "--input-ipc-server=" + socketPath
}

// endpointReady reports whether mpv has created the socket file yet.
func endpointReady(socketPath string) bool {
	_, err := os.Stat(socketPath)
	return err == nil
}

func dialEndpoint(socketPath string) (net.Conn, error) {
	return net.Dial("unix", socketPath)
}

func removeEndpoint(socketPath string) error {
	if _, err := os.Stat(socketPath); err != nil {
		return nil
	}
	return os.Remove(socketPath)
}
