package command

import (
	"bufio"
	"fmt"
	"io"

	"github.com/bytedance/sonic"
)

// Status is the reply's tagged status, spec.md §6.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Reply is sent after every request: {status, message, body}.
type Reply struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
	Body    string `json:"body"`
}

// OK builds a success reply with no body.
func OK() Reply { return Reply{Status: StatusOK} }

// OKWithBody builds a success reply carrying a value (GET).
func OKWithBody(body string) Reply { return Reply{Status: StatusOK, Body: body} }

// Err builds a failure reply carrying a human-readable message.
func Err(message string) Reply { return Reply{Status: StatusError, Message: message} }

// IsOK reports whether the reply indicates success.
func (r Reply) IsOK() bool { return r.Status == StatusOK }

// EncodeReply serializes a Reply to a single LF-terminated line.
func EncodeReply(r Reply) ([]byte, error) {
	body, err := sonic.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode reply: %w", err)
	}
	return append(body, '\n'), nil
}

// DecodeReply parses a single line back into a Reply.
func DecodeReply(line []byte) (Reply, error) {
	var r Reply
	if err := sonic.Unmarshal(line, &r); err != nil {
		return Reply{}, fmt.Errorf("decode reply: %w", err)
	}
	return r, nil
}

// WriteReply encodes and writes a Reply followed by its terminator.
func WriteReply(w io.Writer, r Reply) error {
	line, err := EncodeReply(r)
	if err != nil {
		return err
	}
	_, err = w.Write(line)
	return err
}

// ReadReply reads one line from r and decodes it as a Reply.
func ReadReply(r *bufio.Reader) (Reply, error) {
	line, err := readLine(r)
	if err != nil {
		return Reply{}, err
	}
	return DecodeReply(line)
}
