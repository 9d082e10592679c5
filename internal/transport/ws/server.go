package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"voxelpush.ai/internal/protocol"
	"voxelpush.ai/internal/sim/stage"
)

type Options struct {
	// RemoteControl lets non-loopback clients take the controller role.
	RemoteControl bool
	// ReplyTimeout bounds the wait for the stage to answer an INPUT.
	ReplyTimeout time.Duration
	QueueSize    int
}

type Server struct {
	inputs chan<- stage.Input
	hub    *Hub
	log    *log.Logger
	opts   Options

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(inputs chan<- stage.Input, hub *Hub, logger *log.Logger, opts Options) *Server {
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = 5 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	return &Server{
		inputs: inputs,
		hub:    hub,
		log:    logger,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sid := fmt.Sprintf("S%d", s.nextID.Add(1))
		role, ok := s.handshake(conn, sid, isLoopbackRemote(r.RemoteAddr))
		if !ok {
			return
		}

		out := make(chan []byte, s.opts.QueueSize)
		s.hub.join(sid, out)
		defer s.hub.leave(sid)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Initial state.
		s.handleInput(sid, role, protocol.InputMsg{Action: protocol.ActionState}, out)

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeInput {
				s.send(out, errorMsg(protocol.ErrProtoBadRequest, "expected INPUT"))
				continue
			}
			var in protocol.InputMsg
			if err := json.Unmarshal(msg, &in); err != nil {
				s.send(out, errorMsg(protocol.ErrProtoBadRequest, err.Error()))
				continue
			}
			if in.ProtocolVersion != protocol.Version {
				s.send(out, ack(in, protocol.ErrProtoVersion, "bad protocol_version", 0))
				continue
			}
			s.handleInput(sid, role, in, out)
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		select {
		case <-writeDone:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn, sid string, loopback bool) (role string, ok bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", false
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", false
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", false
	}

	// A second controller is demoted to viewer until the first leaves.
	role = protocol.RoleViewer
	if hello.Role == protocol.RoleController && (loopback || s.opts.RemoteControl) && s.hub.claimController(sid) {
		role = protocol.RoleController
	}
	s.logf("ws session=%s client=%q role=%s", sid, hello.ClientName, role)
	if err := writeJSON(conn, welcomeMsg(sid, role, s.hub.Level())); err != nil {
		s.hub.leave(sid)
		return "", false
	}
	return role, true
}

func (s *Server) handleInput(sid, role string, in protocol.InputMsg, out chan []byte) {
	if in.Action != protocol.ActionState && role != protocol.RoleController {
		s.send(out, ack(in, protocol.ErrNoPermission, "viewer session", 0))
		return
	}
	si, code := inputFor(in)
	if code != "" {
		s.send(out, ack(in, code, "bad input", 0))
		return
	}
	reply := make(chan stage.Reply, 1)
	si.Reply = reply
	select {
	case s.inputs <- si:
	default:
		s.send(out, ack(in, protocol.ErrBusy, "stage queue full", 0))
		return
	}

	var rep stage.Reply
	select {
	case rep = <-reply:
	case <-time.After(s.opts.ReplyTimeout):
		s.logf("ws session=%s input=%s reply timeout", sid, in.Action)
		s.send(out, ack(in, protocol.ErrBusy, "stage did not answer", 0))
		return
	}

	var turn uint64
	switch {
	case rep.Record != nil:
		turn = rep.Record.Turn
	case rep.View != nil:
		turn = rep.View.State.Turn
	}
	if in.Action == protocol.ActionState && rep.View != nil {
		s.send(out, stateMsg(*rep.View))
	}
	if in.ReqID == "" && rep.Err == nil {
		return
	}
	msg := ""
	if rep.Err != nil {
		msg = rep.Err.Error()
	}
	s.send(out, ack(in, errorCode(rep.Err), msg, turn))
}

func (s *Server) send(out chan []byte, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
		s.hub.dropped.Add(1)
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func ack(in protocol.InputMsg, code, msg string, turn uint64) protocol.AckMsg {
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          in.ReqID,
		Accepted:        code == "",
		Code:            code,
		Message:         msg,
		Turn:            turn,
	}
}

func errorMsg(code, msg string) protocol.ErrorMsg {
	return protocol.ErrorMsg{Type: protocol.TypeError, ProtocolVersion: protocol.Version, Code: code, Message: msg}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
