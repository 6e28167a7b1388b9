package katcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// ErrNotConnected is returned for requests issued on a closed client.
var ErrNotConnected = errors.New("katcp: not connected")

// defaultDeadline bounds requests whose context carries no deadline.
const defaultDeadline = 10 * time.Second

// RequestError is a reply whose status argument was not "ok".
type RequestError struct {
	Request string
	Status  string
	Detail  string
}

func (e *RequestError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("katcp: request %s failed with status %s", e.Request, e.Status)
	}
	return fmt.Sprintf("katcp: request %s failed with status %s: %s", e.Request, e.Status, e.Detail)
}

// Client is a KATCP connection to a single board. One request may be
// outstanding at a time; the mutex serializes callers.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	closed bool
}

// Dial connects to a KATCP server, typically on TCP port 7147.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Request writes "?name args..." and reads until the matching "!name" reply
// arrives. Informs named after the request are collected and returned with
// the reply; unsolicited informs (#log, #version-connect and friends) are
// logged and skipped. A reply with a status other than "ok" yields a
// *RequestError.
func (c *Client) Request(ctx context.Context, name string, args ...[]byte) (*Message, []*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, nil, ErrNotConnected
	}

	deadline := time.Now().Add(defaultDeadline)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, nil, fmt.Errorf("request %s: %w", name, err)
	}

	req := &Message{Type: Request, Name: name, Arguments: args}
	if _, err := c.conn.Write(req.Bytes()); err != nil {
		return nil, nil, fmt.Errorf("request %s: %w", name, err)
	}

	var informs []*Message
	for {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			return nil, nil, fmt.Errorf("request %s: %w", name, err)
		}
		if len(line) <= 1 {
			continue
		}
		msg, err := Parse(line)
		if err != nil {
			return nil, nil, fmt.Errorf("request %s: %w", name, err)
		}

		switch {
		case msg.Type == Inform && msg.Name == name:
			informs = append(informs, msg)
		case msg.Type == Inform:
			log.Printf("KATCP: inform %s %s", msg.Name, msg.Arg(0))
		case msg.Type == Reply && msg.Name == name:
			if msg.Status() != StatusOk {
				return msg, informs, &RequestError{
					Request: name,
					Status:  msg.Status(),
					Detail:  msg.Arg(1),
				}
			}
			return msg, informs, nil
		default:
			// A reply for a different request should not happen with a
			// single outstanding request; drop it.
			log.Printf("KATCP: unexpected %c%s", msg.Type, msg.Name)
		}
	}
}

// Ping verifies the connection with a watchdog round trip.
func (c *Client) Ping(ctx context.Context) error {
	_, _, err := c.Request(ctx, "watchdog")
	return err
}

// Close shuts the connection down. Further requests fail with
// ErrNotConnected.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
