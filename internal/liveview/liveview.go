// Package liveview serves the composite to browsers over a websocket, and
// accepts save and quit commands from them.
//
//	GET /    viewer page
//	GET /ws  binary messages: JPEG composites; text messages from the
//	         browser: "save", "quit"
package liveview

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"image"
	"image/jpeg"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/lanikai/multicam/internal/display"
	"github.com/lanikai/multicam/internal/logging"
)

var log = logging.DefaultLogger.WithTag("liveview")

const (
	DefaultQuality = 80

	writeWait = time.Second
)

type Server struct {
	// JPEG quality of published frames.
	Quality int

	// Window title shown on the page.
	Title string

	server   *http.Server
	listener net.Listener
	upgrader websocket.Upgrader

	commands chan display.Command

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// A client gets at most one pending frame; older frames are replaced.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

func New(title string) *Server {
	s := &Server{
		Quality:  DefaultQuality,
		Title:    title,
		commands: make(chan display.Command, 8),
		clients:  make(map[*client]struct{}),
	}
	router := http.NewServeMux()
	router.HandleFunc("/", s.handleIndex)
	router.HandleFunc("/ws", s.handleWebsocket)
	s.server = &http.Server{Handler: router}
	return s
}

// Handler serves the page and the websocket.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Listen binds addr and serves in a new goroutine.
func (s *Server) Listen(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "liveview: listen on %s", addr)
	}
	s.listener = l
	log.Info("Open http://%s/ in a browser", l.Addr())

	go func() {
		if err := s.server.Serve(l); err != nil && err != http.ErrServerClosed {
			log.Error("Serve: %v", err)
		}
	}()
	return nil
}

// Addr is the bound address, once listening.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Commands delivers the commands sent by browsers.
func (s *Server) Commands() <-chan display.Command {
	return s.commands
}

func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Publish sends img to every connected browser. It does nothing when no
// browser is connected and never waits for a slow one.
func (s *Server) Publish(img image.Image) {
	if s.Clients() == 0 {
		return
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.Quality}); err != nil {
		log.Warn("Encode: %v", err)
		return
	}
	frame := buf.Bytes()

	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		select {
		case c.send <- frame:
		default:
			// Replace the pending frame.
			select {
			case <-c.send:
			default:
			}
			select {
			case c.send <- frame:
			default:
			}
		}
	}
}

// Close stops serving and disconnects every browser.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)

	s.mu.Lock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()
	return err
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	log.Info("Client %s connected. Total: %d", c.conn.RemoteAddr(), n)
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	n := len(s.clients)
	s.mu.Unlock()
	if ok {
		close(c.send)
		log.Info("Client %s disconnected. Total: %d", c.conn.RemoteAddr(), n)
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("upgrade: %v", err)
		return
	}
	defer ws.Close()

	c := &client{conn: ws, send: make(chan []byte, 1)}
	s.register(c)
	defer s.unregister(c)

	go s.writeLoop(c)

	// Process incoming messages. We expect text messages "save" or "quit".
	for {
		kind, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("Failed to read websocket message: %v", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		cmd := display.ParseCommand(string(msg))
		if cmd == display.None {
			log.Warn("Unexpected websocket message: %q", msg)
			continue
		}
		log.Info("%s requested %v", ws.RemoteAddr(), cmd)
		select {
		case s.commands <- cmd:
		default:
			log.Warn("Dropped %v command, dispatcher busy", cmd)
		}
	}
}

func (s *Server) writeLoop(c *client) {
	for frame := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			log.Debug("Write to %s: %v", c.conn.RemoteAddr(), err)
			c.conn.Close()
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, indexPage, html.EscapeString(s.Title))
}

const indexPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%[1]s</title>
<style>
body { background: #202020; color: #e0e0e0; font-family: sans-serif; margin: 1em; }
img { max-width: 100%%; display: block; margin-top: 1em; }
</style>
</head>
<body>
<div>
<strong>%[1]s</strong>
<button id="save">Save (s)</button>
<button id="quit">Quit (q)</button>
<span id="state">connecting</span>
</div>
<img id="view" alt="">
<script>
var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.binaryType = "blob";
var view = document.getElementById("view");
var state = document.getElementById("state");
var url = null;
ws.onopen = function() { state.textContent = "live"; };
ws.onclose = function() { state.textContent = "closed"; };
ws.onmessage = function(e) {
	if (url) URL.revokeObjectURL(url);
	url = URL.createObjectURL(e.data);
	view.src = url;
};
function send(cmd) { if (ws.readyState === 1) ws.send(cmd); }
document.getElementById("save").onclick = function() { send("save"); };
document.getElementById("quit").onclick = function() { send("quit"); };
document.onkeydown = function(e) {
	if (e.key === "s") send("save");
	if (e.key === "q") send("quit");
};
</script>
</body>
</html>
`
