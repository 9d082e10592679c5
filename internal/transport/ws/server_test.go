package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxelpush.ai/internal/protocol"
	"voxelpush.ai/internal/sim/level"
	"voxelpush.ai/internal/sim/movement"
	"voxelpush.ai/internal/sim/stage"
)

func startServer(t *testing.T) string {
	t.Helper()
	return startLevel(t, "corridor", "B,B,B,B\n\nP,N,N,N\n")
}

func startLevel(t *testing.T, id, layout string) string {
	t.Helper()
	lv, err := level.Parse(id, strings.NewReader(layout))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg := stage.Config{Trigger: stage.TriggerInput, Policy: movement.DefaultPolicy()}
	hub := NewHub()
	s := stage.New(cfg, hub)
	hub.View = s.View
	if err := s.Load(lv, cfg); err != nil {
		t.Fatalf("load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx, nil)
	}()

	srv := httptest.NewServer(NewServer(s.Inputs(), hub, nil, Options{}).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, url, role string) (*client, protocol.WelcomeMsg) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	c := &client{t: t, conn: conn}
	c.write(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "test", Role: role})
	var w protocol.WelcomeMsg
	c.readType(protocol.TypeWelcome, &w)
	var st protocol.StateMsg
	c.readType(protocol.TypeState, &st)
	if st.LevelID != w.LevelID || len(st.Entities) != 1 {
		t.Fatalf("initial state: %+v", st)
	}
	return c, w
}

func (c *client) write(v any) {
	c.t.Helper()
	if err := c.conn.WriteJSON(v); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

// readType skips messages until one of type typ arrives.
func (c *client) readType(typ string, v any) {
	c.t.Helper()
	for i := 0; i < 10; i++ {
		_ = c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, b, err := c.conn.ReadMessage()
		if err != nil {
			c.t.Fatalf("read %s: %v", typ, err)
		}
		base, err := protocol.DecodeBase(b)
		if err != nil {
			c.t.Fatalf("decode: %v", err)
		}
		if base.Type != typ {
			continue
		}
		if err := json.Unmarshal(b, v); err != nil {
			c.t.Fatalf("unmarshal %s: %v", typ, err)
		}
		return
	}
	c.t.Fatalf("no %s message", typ)
}

func (c *client) input(action, dir, reqID string) protocol.AckMsg {
	c.t.Helper()
	c.write(protocol.InputMsg{Type: protocol.TypeInput, ProtocolVersion: protocol.Version, ReqID: reqID, Action: action, Dir: dir})
	var a protocol.AckMsg
	c.readType(protocol.TypeAck, &a)
	if a.AckFor != reqID {
		c.t.Fatalf("ack for %q, want %q", a.AckFor, reqID)
	}
	return a
}

func TestServer_ControllerMovesAndUndoes(t *testing.T) {
	url := startServer(t)
	c, w := dial(t, url, protocol.RoleController)
	if w.Role != protocol.RoleController || w.LevelID != "corridor" || w.Trigger != "input" || w.Dims != [3]int{4, 2, 1} {
		t.Fatalf("welcome: %+v", w)
	}

	c.write(protocol.InputMsg{Type: protocol.TypeInput, ProtocolVersion: protocol.Version, ReqID: "m1", Action: protocol.ActionMove, Dir: "R"})
	var ev protocol.EventMsg
	c.readType(protocol.TypeEvent, &ev)
	if ev.Kind != "TURN" || ev.Turn != 1 || len(ev.Moves) != 1 || ev.Moves[0].To != [3]int{1, 1, 0} {
		t.Fatalf("event: %+v", ev)
	}
	var a protocol.AckMsg
	c.readType(protocol.TypeAck, &a)
	if !a.Accepted || a.AckFor != "m1" || a.Turn != 1 {
		t.Fatalf("move ack: %+v", a)
	}

	if a := c.input(protocol.ActionUndo, "", "u1"); !a.Accepted || a.Turn != 0 {
		t.Fatalf("undo ack: %+v", a)
	}
	if a := c.input(protocol.ActionUndo, "", "u2"); a.Accepted || a.Code != protocol.ErrUndoEmpty {
		t.Fatalf("second undo ack: %+v", a)
	}
	if a := c.input(protocol.ActionMove, "Q", "m2"); a.Code != protocol.ErrBadRequest {
		t.Fatalf("bad dir ack: %+v", a)
	}
	if a := c.input(protocol.ActionLoad, "", "l1"); a.Code != protocol.ErrLevelUnknown {
		t.Fatalf("load without loader: %+v", a)
	}
}

func TestServer_ViewerCannotMove(t *testing.T) {
	url := startServer(t)
	c, w := dial(t, url, protocol.RoleViewer)
	if w.Role != protocol.RoleViewer {
		t.Fatalf("role: %s", w.Role)
	}
	if a := c.input(protocol.ActionMove, "R", "m1"); a.Accepted || a.Code != protocol.ErrNoPermission {
		t.Fatalf("viewer move: %+v", a)
	}

	c.write(protocol.InputMsg{Type: protocol.TypeInput, ProtocolVersion: "0.1", ReqID: "v", Action: protocol.ActionState})
	var a protocol.AckMsg
	c.readType(protocol.TypeAck, &a)
	if a.Code != protocol.ErrProtoVersion {
		t.Fatalf("version ack: %+v", a)
	}

	c.write(map[string]string{"type": "PING"})
	var e protocol.ErrorMsg
	c.readType(protocol.TypeError, &e)
	if e.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("error: %+v", e)
	}
}

func TestServer_OneControllerAtATime(t *testing.T) {
	url := startServer(t)
	first, w := dial(t, url, protocol.RoleController)
	if w.Role != protocol.RoleController {
		t.Fatalf("first role: %s", w.Role)
	}
	second, w := dial(t, url, protocol.RoleController)
	if w.Role != protocol.RoleViewer {
		t.Fatalf("second role: got %s want viewer", w.Role)
	}
	if a := second.input(protocol.ActionMove, "R", "m1"); a.Code != protocol.ErrNoPermission {
		t.Fatalf("demoted move: %+v", a)
	}

	_ = first.conn.Close()
	// The server notices the close on its next read.
	deadline := time.Now().Add(3 * time.Second)
	for {
		_, w := dial(t, url, protocol.RoleController)
		if w.Role == protocol.RoleController {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("controller role never released")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestServer_SetupPhase(t *testing.T) {
	url := startLevel(t, "zones", "!pool R\nB,B,B,B\n\nP,Z,N,N\n")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	c := &client{t: t, conn: conn}
	c.write(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "test", Role: protocol.RoleController})
	var w protocol.WelcomeMsg
	c.readType(protocol.TypeWelcome, &w)
	var st protocol.StateMsg
	c.readType(protocol.TypeState, &st)
	if st.Setup == nil || st.Setup.Started || len(st.Setup.Zones) != 1 || len(st.Setup.Pool) != 1 {
		t.Fatalf("initial setup: %+v", st.Setup)
	}

	if a := c.input(protocol.ActionMove, "R", "m1"); a.Code != protocol.ErrNotStarted {
		t.Fatalf("move before start: %+v", a)
	}
	wrong := [3]int{2, 1, 0}
	c.write(protocol.InputMsg{Type: protocol.TypeInput, ProtocolVersion: protocol.Version, ReqID: "p0", Action: protocol.ActionPlace, Pos: &wrong})
	var a protocol.AckMsg
	c.readType(protocol.TypeAck, &a)
	if a.Code != protocol.ErrBadPlacement {
		t.Fatalf("place off zone: %+v", a)
	}

	zone := [3]int{1, 1, 0}
	c.write(protocol.InputMsg{Type: protocol.TypeInput, ProtocolVersion: protocol.Version, ReqID: "p1", Action: protocol.ActionPlace, Pos: &zone})
	var ev protocol.EventMsg
	c.readType(protocol.TypeEvent, &ev)
	if ev.Kind != "PLACE" || ev.Setup == nil || ev.Setup.Pos != zone || ev.Setup.Dir != "R" {
		t.Fatalf("place event: %+v", ev)
	}
	c.readType(protocol.TypeState, &st)
	if !st.Setup.Pool[0].Placed || st.Setup.Pool[0].Pos != zone {
		t.Fatalf("state after place: %+v", st.Setup)
	}
	c.readType(protocol.TypeAck, &a)
	if !a.Accepted || a.AckFor != "p1" {
		t.Fatalf("place ack: %+v", a)
	}

	if a := c.input(protocol.ActionStart, "", "s1"); !a.Accepted {
		t.Fatalf("start ack: %+v", a)
	}
	if a := c.input(protocol.ActionStart, "", "s2"); a.Code != protocol.ErrNotStarted {
		t.Fatalf("second start: %+v", a)
	}
}

func TestErrorCode(t *testing.T) {
	cases := map[error]string{
		nil:                       "",
		stage.ErrStageOver:        protocol.ErrStageOver,
		stage.ErrTurnInProgress:   protocol.ErrInProgress,
		stage.ErrUndoCoalesced:    protocol.ErrUndoLimited,
		stage.ErrUnknownEntity:    protocol.ErrUnknownActor,
		level.ErrInvalidLevelData: protocol.ErrBadRequest,
		stage.ErrNotStarted:       protocol.ErrNotStarted,
		stage.ErrNotInSetup:       protocol.ErrNotStarted,
		stage.ErrBadPlacement:     protocol.ErrBadPlacement,
	}
	for err, want := range cases {
		if got := errorCode(err); got != want {
			t.Fatalf("errorCode(%v) = %q want %q", err, got, want)
		}
		if !protocol.IsKnownCode(want) {
			t.Fatalf("unknown code %q", want)
		}
	}
}
