package sync

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/syncread/syncread/internal/protocol"
)

func startServer(t *testing.T) (*Server, string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	srv := NewServer()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Serve(ctx, ln)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv, ln.Addr().String()
}

// rawClient speaks the wire protocol directly so server behavior is tested
// without the client implementation in between.
type rawClient struct {
	t       *testing.T
	conn    net.Conn
	scanner *bufio.Scanner
	seq     uint64
}

func dialRaw(t *testing.T, addr string) *rawClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return &rawClient{t: t, conn: conn, scanner: bufio.NewScanner(conn)}
}

func (c *rawClient) send(event protocol.SyncEvent) {
	c.t.Helper()
	c.seq++
	payload, err := json.Marshal(protocol.SyncMessage{Event: event, Sequence: c.seq})
	if err != nil {
		c.t.Fatal(err)
	}
	if _, err := c.conn.Write(append(payload, '\n')); err != nil {
		c.t.Fatal(err)
	}
}

func (c *rawClient) recv() protocol.SyncMessage {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if !c.scanner.Scan() {
		c.t.Fatalf("read failed: %v", c.scanner.Err())
	}
	var msg protocol.SyncMessage
	if err := json.Unmarshal(c.scanner.Bytes(), &msg); err != nil {
		c.t.Fatalf("decode %q: %v", c.scanner.Text(), err)
	}
	return msg
}

func joinedState(userID string, pos int) protocol.UserState {
	s := protocol.NewUserState(userID)
	s.Update(pos, 0, true, "")
	return s
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestServerEchoesToSender(t *testing.T) {
	_, addr := startServer(t)

	a := dialRaw(t, addr)
	a.send(protocol.UserJoined{UserID: "a", UserState: joinedState("a", 0)})

	msg := a.recv()
	if _, ok := msg.Event.(protocol.UserJoined); !ok {
		t.Fatalf("event = %T, want UserJoined echo", msg.Event)
	}
	if msg.Sequence != 1 {
		t.Fatalf("Sequence = %d, want the sender's original 1", msg.Sequence)
	}
}

func TestServerBroadcastsBetweenClients(t *testing.T) {
	srv, addr := startServer(t)

	a := dialRaw(t, addr)
	a.send(protocol.UserJoined{UserID: "a", UserState: joinedState("a", 0)})
	a.recv() // own join echo

	b := dialRaw(t, addr)
	b.send(protocol.UserJoined{UserID: "b", UserState: joinedState("b", 2)})
	b.recv() // own join echo

	// A, subscribed before B joined, sees B's join.
	msg := a.recv()
	join, ok := msg.Event.(protocol.UserJoined)
	if !ok || join.UserID != "b" {
		t.Fatalf("event = %+v, want b's join", msg.Event)
	}

	// B advances; both sides and the authoritative session converge.
	b.send(protocol.StateUpdate{UserState: joinedState("b", 5)})

	for _, c := range []*rawClient{a, b} {
		msg := c.recv()
		update, ok := msg.Event.(protocol.StateUpdate)
		if !ok || update.UserState.PlaylistPos != 5 {
			t.Fatalf("event = %+v, want b at position 5", msg.Event)
		}
	}

	waitFor(t, func() bool {
		u, ok := srv.Session().User("b")
		return ok && u.PlaylistPos == 5
	}, "authoritative state to record b at 5")

	if srv.Session().Len() != 2 {
		t.Fatalf("session Len = %d, want 2", srv.Session().Len())
	}
	if srv.Session().CheckSync(5) != true {
		t.Fatal("positions 0 and 5 should be within tolerance 5")
	}
	if srv.Session().CheckSync(1) {
		t.Fatal("positions 0 and 5 should exceed tolerance 1")
	}
}

func TestServerSynthesizesDepartureOnAbruptDisconnect(t *testing.T) {
	srv, addr := startServer(t)

	a := dialRaw(t, addr)
	a.send(protocol.UserJoined{UserID: "a", UserState: joinedState("a", 0)})
	a.recv()

	b := dialRaw(t, addr)
	b.send(protocol.UserJoined{UserID: "b", UserState: joinedState("b", 0)})
	b.recv()
	a.recv() // b's join

	b.conn.Close()

	msg := a.recv()
	left, ok := msg.Event.(protocol.UserLeft)
	if !ok || left.UserID != "b" {
		t.Fatalf("event = %+v, want synthesized UserLeft for b", msg.Event)
	}

	waitFor(t, func() bool { return srv.Session().Len() == 1 }, "b's removal from the session")
}

func TestServerExplicitLeaveIsNotDoubled(t *testing.T) {
	_, addr := startServer(t)

	a := dialRaw(t, addr)
	a.send(protocol.UserJoined{UserID: "a", UserState: joinedState("a", 0)})
	a.recv()

	b := dialRaw(t, addr)
	b.send(protocol.UserJoined{UserID: "b", UserState: joinedState("b", 0)})
	b.recv()
	a.recv() // b's join

	b.send(protocol.UserLeft{UserID: "b"})
	b.conn.Close()

	msg := a.recv()
	if left, ok := msg.Event.(protocol.UserLeft); !ok || left.UserID != "b" {
		t.Fatalf("event = %+v, want b's UserLeft", msg.Event)
	}

	// No second, synthesized departure follows the explicit one.
	a.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if a.scanner.Scan() {
		t.Fatalf("unexpected extra message: %s", a.scanner.Text())
	}
}

func TestServerDiscardsMalformedLines(t *testing.T) {
	_, addr := startServer(t)

	a := dialRaw(t, addr)
	if _, err := a.conn.Write([]byte("not json\n")); err != nil {
		t.Fatal(err)
	}
	a.send(protocol.UserJoined{UserID: "a", UserState: joinedState("a", 0)})

	// The garbage line is dropped; the join still round-trips.
	msg := a.recv()
	if _, ok := msg.Event.(protocol.UserJoined); !ok {
		t.Fatalf("event = %T, want UserJoined", msg.Event)
	}
}
