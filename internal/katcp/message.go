// Package katcp implements the KATCP monitor and control protocol spoken by
// CASPER ROACH boards (tcpborphserver). Messages are newline terminated ASCII
// lines with backslash-escaped arguments, so arbitrary binary payloads such
// as register values and bram contents survive the wire byte for byte.
package katcp

import (
	"bytes"
	"fmt"
)

// MessageType is the leading byte of a KATCP message.
type MessageType byte

const (
	Request MessageType = '?'
	Reply   MessageType = '!'
	Inform  MessageType = '#'
)

// Reply status codes. The first argument of a reply is one of these.
const (
	StatusOk      = "ok"
	StatusFail    = "fail"
	StatusInvalid = "invalid"
)

// Message is a single KATCP message.
type Message struct {
	Type      MessageType
	Name      string
	Arguments [][]byte
}

// Status returns the reply status carried in the first argument. A reply
// without arguments is treated as failed.
func (m *Message) Status() string {
	if len(m.Arguments) == 0 {
		return StatusFail
	}
	return string(m.Arguments[0])
}

// Arg returns argument i as a string, or "" when the message is shorter.
func (m *Message) Arg(i int) string {
	if i < 0 || i >= len(m.Arguments) {
		return ""
	}
	return string(m.Arguments[i])
}

// Bytes serializes the message including the terminating newline.
func (m *Message) Bytes() []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(m.Type))
	buf.WriteString(m.Name)
	for _, arg := range m.Arguments {
		buf.WriteByte(' ')
		buf.Write(escape(arg))
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

// Parse decodes one KATCP line. The trailing newline is optional.
func Parse(line []byte) (*Message, error) {
	line = bytes.TrimRight(line, "\r\n")
	if len(line) == 0 {
		return nil, fmt.Errorf("empty message")
	}

	t := MessageType(line[0])
	switch t {
	case Request, Reply, Inform:
	default:
		return nil, fmt.Errorf("invalid message type %q", line[0])
	}

	fields := splitFields(line[1:])
	if len(fields) == 0 || len(fields[0]) == 0 {
		return nil, fmt.Errorf("message without a name")
	}

	msg := &Message{Type: t, Name: string(fields[0])}
	for _, f := range fields[1:] {
		arg, err := unescape(f)
		if err != nil {
			return nil, fmt.Errorf("argument of %s: %w", msg.Name, err)
		}
		msg.Arguments = append(msg.Arguments, arg)
	}
	return msg, nil
}

// splitFields splits on runs of spaces and tabs. Escaped spaces (\_) are
// resolved later by unescape, so a bare separator always ends a field.
func splitFields(b []byte) [][]byte {
	var fields [][]byte
	start := -1
	for i := 0; i <= len(b); i++ {
		if i == len(b) || b[i] == ' ' || b[i] == '\t' {
			if start >= 0 {
				fields = append(fields, b[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	return fields
}

func escape(arg []byte) []byte {
	if len(arg) == 0 {
		return []byte(`\@`)
	}
	var buf bytes.Buffer
	for _, b := range arg {
		switch b {
		case '\\':
			buf.WriteString(`\\`)
		case ' ':
			buf.WriteString(`\_`)
		case 0:
			buf.WriteString(`\0`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case 0x1b:
			buf.WriteString(`\e`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			buf.WriteByte(b)
		}
	}
	return buf.Bytes()
}

func unescape(field []byte) ([]byte, error) {
	out := make([]byte, 0, len(field))
	for i := 0; i < len(field); i++ {
		b := field[i]
		if b != '\\' {
			out = append(out, b)
			continue
		}
		i++
		if i >= len(field) {
			return nil, fmt.Errorf("dangling escape")
		}
		switch field[i] {
		case '\\':
			out = append(out, '\\')
		case '_':
			out = append(out, ' ')
		case '0':
			out = append(out, 0)
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 'e':
			out = append(out, 0x1b)
		case 't':
			out = append(out, '\t')
		case '@':
			// Empty argument marker, contributes no bytes.
		default:
			return nil, fmt.Errorf("unknown escape %q", field[i])
		}
	}
	return out, nil
}
