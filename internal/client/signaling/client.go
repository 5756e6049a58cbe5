// Package signaling is the client end of the signaling socket.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicechat/internal/protocol"
)

var ErrClosed = errors.New("signaling closed")

// HandshakeError is a refused connection attempt.
type HandshakeError struct {
	Status  int
	Code    string
	Message string
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake refused (%d %s): %s", e.Status, e.Code, e.Message)
}

type Client struct {
	conn   *websocket.Conn
	events chan protocol.Envelope

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

// Dial connects with a bearer credential and starts reading events.
func Dial(ctx context.Context, url, token string) (*Client, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, handshakeError(resp)
		}
		return nil, err
	}
	c := &Client{
		conn:   conn,
		events: make(chan protocol.Envelope, 64),
		done:   make(chan struct{}),
	}
	go c.readPump()
	return c, nil
}

func handshakeError(resp *http.Response) error {
	herr := &HandshakeError{Status: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if json.Unmarshal(body, &payload) == nil {
		herr.Code, herr.Message = payload.Code, payload.Error
	}
	return herr
}

// Events yields every envelope the server sends. It is closed when the
// connection ends.
func (c *Client) Events() <-chan protocol.Envelope { return c.events }

func (c *Client) readPump() {
	defer close(c.events)
	defer c.Close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("module", "client.signaling").Msg("read")
			return
		}
		env, err := protocol.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "client.signaling").Msg("bad frame")
			continue
		}
		select {
		case c.events <- env:
		case <-c.done:
			return
		}
	}
}

// Heartbeat sends a heartbeat every period until ctx ends.
func (c *Client) Heartbeat(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.Send(protocol.EventHeartbeat, nil); err != nil {
				log.Warn().Err(err).Str("module", "client.signaling").Msg("heartbeat")
				return
			}
		}
	}
}

func (c *Client) Send(event string, data any) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	f, err := protocol.Encode(event, data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, f)
}

func (c *Client) JoinRoom(room string) error {
	return c.Send(protocol.EventJoinRoom, protocol.JoinRoom{Room: room})
}

func (c *Client) SendMessage(text string) error {
	return c.Send(protocol.EventMessage, protocol.SendMessage{Text: text})
}

func (c *Client) SendPrivate(to, text string) error {
	return c.Send(protocol.EventPrivateMessage, protocol.SendPrivate{To: to, Text: text})
}

func (c *Client) JoinVoice(channelID string) error {
	return c.Send(protocol.EventJoinVoice, protocol.JoinVoice{ChannelID: channelID})
}

func (c *Client) LeaveVoice() error {
	return c.Send(protocol.EventLeaveVoice, nil)
}

func (c *Client) SendOffer(to string, sdp webrtc.SessionDescription) error {
	raw, err := json.Marshal(sdp)
	if err != nil {
		return err
	}
	return c.Send(protocol.EventVoiceOffer, protocol.SignalOut{Offer: raw, TargetConnectionID: to})
}

func (c *Client) SendAnswer(to string, sdp webrtc.SessionDescription) error {
	raw, err := json.Marshal(sdp)
	if err != nil {
		return err
	}
	return c.Send(protocol.EventVoiceAnswer, protocol.SignalOut{Answer: raw, TargetConnectionID: to})
}

func (c *Client) SendCandidate(to string, cand webrtc.ICECandidateInit) error {
	raw, err := json.Marshal(cand)
	if err != nil {
		return err
	}
	return c.Send(protocol.EventICECandidate, protocol.SignalOut{Candidate: raw, TargetConnectionID: to})
}

func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
}
