package connsrv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/agusx1211/amux/internal/debug"
	"github.com/agusx1211/amux/internal/eventq"
	"github.com/agusx1211/amux/internal/wire"
)

const (
	initTimeout  = 30 * time.Second
	writeTimeout = 15 * time.Second
)

// Server accepts worker connector WebSocket sessions. Each session opens
// with a single init message declaring the project base directory, the
// message kinds the connector wants routed to it, and an optional input
// history file override.
type Server struct {
	mgr        *Manager
	addr       string
	httpServer *http.Server
	listener   net.Listener
}

// New constructs a connector server bound to addr ("host:port").
func New(mgr *Manager, addr string) *Server {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = "127.0.0.1:24337"
	}
	srv := &Server{mgr: mgr, addr: addr}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.handleWS)
	srv.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

// Start begins listening and serves in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("connsrv: listen %s: %w", s.addr, err)
	}
	s.listener = ln

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			debug.LogKV("connsrv", "serve stopped", "err", err)
		}
	}()
	debug.LogKV("connsrv", "listening", "addr", s.Addr())
	return nil
}

// Addr returns the bound address (useful when the port was 0).
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// URL returns the ws:// endpoint handed to spawned workers.
func (s *Server) URL() string {
	return "ws://" + s.Addr() + "/ws"
}

// Shutdown stops accepting sessions and closes the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer ws.CloseNow()

	ctx := r.Context()

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	_, data, err := ws.Read(initCtx)
	cancel()
	if err != nil {
		return
	}
	msg, err := wire.Decode(data)
	if err != nil || msg.Kind != wire.KindInit {
		ws.Close(websocket.StatusPolicyViolation, "expected init")
		return
	}
	init, err := wire.DecodeData[wire.Init](msg)
	if err != nil || strings.TrimSpace(init.BaseDir) == "" {
		ws.Close(websocket.StatusPolicyViolation, "init requires base_dir")
		return
	}

	proj, err := s.mgr.Open(init.BaseDir)
	if err != nil {
		debug.LogKV("connsrv", "project open failed", "base_dir", init.BaseDir, "err", err)
		ws.Close(websocket.StatusInternalError, "project open failed")
		return
	}

	conn := newWSConn(ws, init.Kinds, init.HistoryFile)
	go conn.writeLoop(ctx)

	proj.RegisterConnector(conn)
	debug.LogKV("connsrv", "connector attached", "base_dir", proj.BaseDir(), "kinds", len(init.Kinds))
	defer func() {
		proj.UnregisterConnector(conn)
		conn.close()
		debug.LogKV("connsrv", "connector detached", "base_dir", proj.BaseDir())
	}()

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		msg, err := wire.Decode(data)
		if err != nil {
			debug.LogKV("connsrv", "bad frame", "base_dir", proj.BaseDir(), "err", err)
			continue
		}
		s.dispatch(proj, msg)
	}
}

// dispatch fans one inbound worker event into the project. Decode failures
// are logged and the session keeps going.
func (s *Server) dispatch(proj dispatchTarget, msg *wire.Msg) {
	switch msg.Kind {
	case wire.KindResponse:
		resp, err := wire.DecodeData[wire.Response](msg)
		if err != nil {
			debug.LogKV("connsrv", "bad response payload", "err", err)
			return
		}
		proj.HandleResponse(*resp)

	case wire.KindQuestion:
		q, err := wire.DecodeData[wire.Question](msg)
		if err != nil {
			debug.LogKV("connsrv", "bad question payload", "err", err)
			return
		}
		// Ask blocks until the user (or memory) answers; the answer reaches
		// the worker through the answer-question route, so the result here
		// is only logged.
		go func() {
			if _, _, err := proj.Ask(context.Background(), *q); err != nil {
				debug.LogKV("connsrv", "question not asked", "err", err)
			}
		}()

	case wire.KindToolEvent:
		ev, err := wire.DecodeData[wire.ToolEvent](msg)
		if err != nil {
			return
		}
		proj.HandleToolEvent(*ev)

	case wire.KindModelsUpdated:
		m, err := wire.DecodeData[wire.SetModels](msg)
		if err != nil {
			return
		}
		proj.ModelsUpdated(*m)

	case wire.KindRepoMapUpdated:
		proj.HandleRepoMapUpdated()

	case wire.KindInputHistoryUpdated:
		proj.HandleInputHistoryUpdated()

	case wire.KindLog:
		l, err := wire.DecodeData[wire.Log](msg)
		if err != nil {
			return
		}
		proj.HandleLog(*l)

	default:
		debug.LogKV("connsrv", "ignoring inbound kind", "kind", msg.Kind)
	}
}

// dispatchTarget is the slice of the project API the inbound dispatcher
// needs; tests substitute a recorder.
type dispatchTarget interface {
	HandleResponse(resp wire.Response)
	Ask(ctx context.Context, q wire.Question) (answer, userInput string, err error)
	HandleToolEvent(ev wire.ToolEvent)
	ModelsUpdated(m wire.SetModels)
	HandleRepoMapUpdated()
	HandleInputHistoryUpdated()
	HandleLog(l wire.Log)
}

// wsConn adapts one WebSocket session to the connector interface. Outbound
// messages go through a bounded queue; a stalled socket drops messages
// rather than stalling the router.
type wsConn struct {
	ws          *websocket.Conn
	kinds       []wire.Kind
	historyFile string

	sendCh    chan wire.Msg
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, kinds []wire.Kind, historyFile string) *wsConn {
	return &wsConn{
		ws:          ws,
		kinds:       kinds,
		historyFile: historyFile,
		sendCh:      make(chan wire.Msg, 256),
	}
}

func (c *wsConn) Kinds() []wire.Kind  { return c.kinds }
func (c *wsConn) HistoryFile() string { return c.historyFile }

func (c *wsConn) Send(msg wire.Msg) {
	if !eventq.Offer(c.sendCh, msg) {
		debug.LogKV("connsrv", "dropping outbound message", "kind", msg.Kind)
	}
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() { close(c.sendCh) })
}

func (c *wsConn) writeLoop(ctx context.Context) {
	for msg := range c.sendCh {
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err = c.ws.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			return
		}
	}
}
