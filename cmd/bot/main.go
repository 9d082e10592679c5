package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"voxelpush.ai/internal/protocol"
)

var dirs = []string{"U", "D", "L", "R"}

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "client name")
		script   = flag.String("moves", "", "directions to play in order, e.g. RRUL (default: random)")
		interval = flag.Duration("interval", 300*time.Millisecond, "delay between inputs")
		seed     = flag.Int64("seed", 0, "random seed (0 = time based)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Role:            protocol.RoleController,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	b := &bot{
		conn:   conn,
		logger: logger,
		rng:    rand.New(rand.NewSource(*seed)),
		script: strings.ToUpper(strings.TrimSpace(*script)),
	}

	msgs := make(chan []byte, 16)
	go func() {
		defer close(msgs)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msgs <- msg
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			b.handle(msg)
		case <-ticker.C:
			if !b.step() {
				return
			}
		}
	}
}

type bot struct {
	conn   *websocket.Conn
	logger *log.Logger
	rng    *rand.Rand

	script string
	pos    int

	controller bool
	// next is the follow-up action queued by the last EVENT (UNDO after a
	// loss, LOAD after a clear).
	next string
	// setup holds PLACE/START inputs for a level still in its setup phase.
	setup []protocol.InputMsg
	reqs  int
}

func (b *bot) handle(msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return
		}
		b.controller = w.Role == protocol.RoleController
		b.logger.Printf("WELCOME session=%s role=%s level=%s trigger=%s dims=%v", w.SessionID, w.Role, w.LevelID, w.Trigger, w.Dims)

	case protocol.TypeState:
		var st protocol.StateMsg
		if err := json.Unmarshal(msg, &st); err != nil {
			return
		}
		b.logger.Printf("STATE level=%s turn=%d entities=%d undo=%d", st.LevelID, st.Turn, len(st.Entities), st.UndoDepth)
		b.setup = b.planSetup(st.Setup)

	case protocol.TypeEvent:
		var ev protocol.EventMsg
		if err := json.Unmarshal(msg, &ev); err != nil {
			return
		}
		switch {
		case ev.GoalReached:
			b.logger.Printf("cleared level=%s in %d turns", ev.LevelID, ev.Turn)
			b.next = protocol.ActionLoad
		case ev.Lost:
			b.logger.Printf("lost level=%s at turn %d", ev.LevelID, ev.Turn)
			b.next = protocol.ActionUndo
		case ev.Kind == "LOAD":
			b.logger.Printf("level=%s loaded", ev.LevelID)
			b.pos = 0
		}

	case protocol.TypeAck:
		var ack protocol.AckMsg
		if err := json.Unmarshal(msg, &ack); err != nil {
			return
		}
		if !ack.Accepted {
			b.logger.Printf("refused %s: %s %s", ack.AckFor, ack.Code, ack.Message)
			if ack.Code == protocol.ErrNoLevel || ack.Code == protocol.ErrLevelUnknown {
				// Past the last level of the pack: start over.
				b.next = protocol.ActionRestart
			}
		}

	case protocol.TypeError:
		var e protocol.ErrorMsg
		if err := json.Unmarshal(msg, &e); err != nil {
			return
		}
		b.logger.Printf("ERROR %s: %s", e.Code, e.Message)
	}
}

// planSetup drops every unplaced pool gimmick on a random free zone, then
// starts the level.
func (b *bot) planSetup(su *protocol.SetupObs) []protocol.InputMsg {
	if su == nil || su.Started {
		return nil
	}
	taken := map[[3]int]bool{}
	for _, g := range su.Pool {
		if g.Placed {
			taken[g.Pos] = true
		}
	}
	var free [][3]int
	for _, z := range su.Zones {
		if !taken[z] {
			free = append(free, z)
		}
	}
	b.rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })

	var out []protocol.InputMsg
	for _, g := range su.Pool {
		if g.Placed || len(free) == 0 {
			continue
		}
		pos := free[0]
		free = free[1:]
		out = append(out, protocol.InputMsg{Action: protocol.ActionPlace, Slot: g.Slot, Pos: &pos})
	}
	return append(out, protocol.InputMsg{Action: protocol.ActionStart})
}

// step sends the next input. It reports false once a scripted run is done.
func (b *bot) step() bool {
	if !b.controller {
		return true
	}
	in := protocol.InputMsg{
		Type:            protocol.TypeInput,
		ProtocolVersion: protocol.Version,
		Action:          protocol.ActionMove,
	}
	switch {
	case len(b.setup) > 0:
		in.Action, in.Slot, in.Pos = b.setup[0].Action, b.setup[0].Slot, b.setup[0].Pos
		b.setup = b.setup[1:]
	case b.next != "":
		in.Action, b.next = b.next, ""
	case b.script != "":
		if b.pos >= len(b.script) {
			b.logger.Printf("script done")
			return false
		}
		in.Dir = string(b.script[b.pos])
		b.pos++
	default:
		in.Dir = dirs[b.rng.Intn(len(dirs))]
	}
	b.reqs++
	in.ReqID = fmt.Sprintf("R%d", b.reqs)
	if err := b.conn.WriteJSON(in); err != nil {
		b.logger.Printf("send INPUT: %v", err)
		return false
	}
	return true
}
