package sync

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	stdsync "sync"

	"github.com/syncread/syncread/internal/protocol"
)

// Fan-out buffer per subscriber. A connection this far behind the session is
// dropped instead of backing up everyone else.
const broadcastBuffer = 1000

// Scanner buffer for inbound lines; a state update is well under this.
const maxLineBytes = 1 << 20

// Server accepts sync connections, maintains the authoritative session
// state, and re-broadcasts every inbound message verbatim to all connected
// clients, the sender included.
type Server struct {
	session *protocol.SessionState
	hub     *hub

	mu      stdsync.Mutex
	clients map[string]chan protocol.SyncMessage
	seq     uint64
}

func NewServer() *Server {
	return &Server{
		session: protocol.NewSessionState(),
		hub:     newHub(broadcastBuffer),
		clients: make(map[string]chan protocol.SyncMessage),
	}
}

// Session exposes the authoritative state for the status display.
func (s *Server) Session() *protocol.SessionState {
	return s.session
}

// nextSeq returns the next server-originated sequence number. Server
// sequences are used for synthesized events such as disconnect cleanup.
func (s *Server) nextSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

func (s *Server) registerClient(userID string, ch chan protocol.SyncMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.clients[userID]; exists {
		log.Warn("duplicate user id, replacing registration", "userId", userID)
	}
	s.clients[userID] = ch
}

func (s *Server) unregisterClient(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, userID)
}

// ListenAndServe binds addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("sync: listen on %s: %w", addr, err)
	}
	log.Info("sync server listening", "addr", ln.Addr().String())
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. Each connection is
// handled by its own goroutine pair; a failing connection never takes the
// server down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			log.Error("accept failed", "error", err)
			return fmt.Errorf("sync: accept: %w", err)
		}

		log.Info("client connected", "remote", conn.RemoteAddr().String())
		go s.handleConn(ctx, conn)
	}
}

// handleConn runs the connection's write loop and spawns its read loop. The
// read side applies inbound events to the session and republishes them; the
// write side drains the direct channel and the broadcast subscription. Either
// side failing ends the connection.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	sub := s.hub.subscribe()
	defer sub.cancel()

	direct := make(chan protocol.SyncMessage, 64)
	readDone := make(chan struct{})

	go s.readLoop(conn, direct, readDone)

	writer := bufio.NewWriter(conn)
	for {
		var msg protocol.SyncMessage
		var ok bool

		select {
		case msg, ok = <-direct:
		case msg, ok = <-sub.C():
			if !ok {
				log.Warn("subscriber lagged, dropping connection", "remote", conn.RemoteAddr().String())
				return
			}
		case <-readDone:
			return
		case <-ctx.Done():
			return
		}
		if !ok {
			return
		}

		if err := writeMessage(writer, msg); err != nil {
			log.Error("write to client failed", "remote", conn.RemoteAddr().String(), "error", err)
			return
		}
	}
}

// readLoop consumes newline-delimited messages until the connection drops,
// then synthesizes the departure if the client never sent UserLeft.
func (s *Server) readLoop(conn net.Conn, direct chan protocol.SyncMessage, done chan struct{}) {
	defer close(done)

	var userID string
	left := false

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var msg protocol.SyncMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			log.Warn("discarding malformed message", "remote", conn.RemoteAddr().String(), "error", err)
			continue
		}

		switch e := msg.Event.(type) {
		case protocol.UserJoined:
			userID = e.UserID
			left = false
			s.registerClient(e.UserID, direct)
			s.session.UpdateUser(e.UserState)
			log.Info("user joined", "userId", e.UserID, "position", e.UserState.PlaylistPos)
		case protocol.StateUpdate:
			s.session.UpdateUser(e.UserState)
			log.Debug("state update", "userId", e.UserState.UserID,
				"position", e.UserState.PlaylistPos, "paused", e.UserState.Paused)
		case protocol.UserLeft:
			if e.UserID == userID {
				left = true
			}
			s.unregisterClient(e.UserID)
			s.session.RemoveUser(e.UserID)
			log.Info("user left", "userId", e.UserID)
		case protocol.UserAction:
			log.Info("user action", "userId", e.UserID, "action", e.Action)
		case protocol.Heartbeat:
			log.Debug("heartbeat", "userId", e.UserID)
		}

		// Verbatim re-broadcast, original sequence preserved.
		s.hub.publish(msg)
	}

	if err := scanner.Err(); err != nil {
		log.Warn("client read failed", "remote", conn.RemoteAddr().String(), "error", err)
	}

	// An abrupt disconnect leaves no UserLeft on the wire; everyone else
	// still needs to see the departure.
	if userID != "" && !left {
		log.Info("synthesizing departure for dropped client", "userId", userID)
		s.unregisterClient(userID)
		s.session.RemoveUser(userID)
		s.hub.publish(protocol.NewUserLeft(userID, s.nextSeq()))
	}
}

func writeMessage(w *bufio.Writer, msg protocol.SyncMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("sync: marshal message: %w", err)
	}
	if _, err := w.Write(append(payload, '\n')); err != nil {
		return err
	}
	return w.Flush()
}
