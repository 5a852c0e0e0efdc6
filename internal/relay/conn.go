package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 1 << 20
)

// sink receives frames for one subscription until done closes.
type sink struct {
	frames chan Frame
	done   <-chan struct{}
}

// conn is one websocket connection to a relay. The read loop dispatches
// frames to subscription sinks, OK waiters and the auth handler.
type conn struct {
	url  string
	ws   *websocket.Conn
	log  *slog.Logger
	auth *AuthSession

	onChallenge func(c *conn, challenge string)

	writeMu sync.Mutex

	mu      sync.Mutex
	subs    map[string]sink
	oks     map[string]chan Frame
	closing bool
	err     error
	done    chan struct{}
}

func newConn(url string, ws *websocket.Conn, auth *AuthSession, log *slog.Logger, onChallenge func(*conn, string)) *conn {
	c := &conn{
		url:         url,
		ws:          ws,
		log:         log,
		auth:        auth,
		onChallenge: onChallenge,
		subs:        make(map[string]sink),
		oks:         make(map[string]chan Frame),
		done:        make(chan struct{}),
	}
	ws.SetReadLimit(maxMessage)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.readLoop()
	go c.pingLoop()
	return c
}

// alive reports whether the read loop is still running.
func (c *conn) alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// lastError returns why the connection ended.
func (c *conn) lastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *conn) send(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// request sends f and waits for the OK answering eventID.
func (c *conn) request(ctx context.Context, f Frame, eventID string) (Frame, error) {
	ch := make(chan Frame, 1)
	c.mu.Lock()
	if !c.alive() {
		c.mu.Unlock()
		return Frame{}, ErrConnectionLost
	}
	c.oks[eventID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.oks, eventID)
		c.mu.Unlock()
	}()

	if err := c.send(f); err != nil {
		return Frame{}, err
	}
	select {
	case ok := <-ch:
		return ok, nil
	case <-c.done:
		return Frame{}, ErrConnectionLost
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (c *conn) subscribe(subID string, s sink) {
	c.mu.Lock()
	c.subs[subID] = s
	c.mu.Unlock()
}

// unsubscribe forgets subID and tells the relay if the connection is up.
func (c *conn) unsubscribe(subID string) {
	c.mu.Lock()
	_, ok := c.subs[subID]
	delete(c.subs, subID)
	c.mu.Unlock()
	if ok && c.alive() {
		_ = c.send(Frame{Label: LabelClose, SubID: subID})
	}
}

// close shuts the connection down from our side.
func (c *conn) close() {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	_ = c.ws.Close()
}

func (c *conn) readLoop() {
	var err error
	for {
		var data []byte
		_, data, err = c.ws.ReadMessage()
		if err != nil {
			break
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		f, perr := ParseFrame(data)
		if perr != nil {
			c.log.Debug("unparseable frame", "err", perr)
			continue
		}
		c.dispatch(f)
	}

	c.mu.Lock()
	clean := c.closing || websocket.IsCloseError(err, websocket.CloseNormalClosure)
	c.err = err
	close(c.done)
	c.mu.Unlock()
	_ = c.ws.Close()

	if clean {
		c.auth.reset()
		c.log.Debug("connection closed")
	} else {
		c.auth.invalidate()
		c.log.Info("connection lost", "err", err)
	}
}

func (c *conn) dispatch(f Frame) {
	switch f.Label {
	case LabelEvent, LabelEOSE, LabelClosed:
		c.mu.Lock()
		s, ok := c.subs[f.SubID]
		if f.Label == LabelClosed {
			delete(c.subs, f.SubID)
		}
		c.mu.Unlock()
		if !ok {
			return
		}
		select {
		case s.frames <- f:
		case <-s.done:
		}
	case LabelOK:
		c.mu.Lock()
		ch, ok := c.oks[f.EventID]
		c.mu.Unlock()
		if ok {
			select {
			case ch <- f:
			default:
			}
		}
	case LabelAuth:
		if f.Message != "" && c.onChallenge != nil {
			c.onChallenge(c, f.Message)
		}
	case LabelNotice:
		c.log.Info("relay notice", "message", f.Message)
	}
}

func (c *conn) pingLoop() {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				c.log.Debug("ping failed", "err", err)
			}
		}
	}
}
