// Package command defines the wire/log record shared by the storage
// engine and the network layer, mirroring the original implementation's
// single Instruction type that is serialized both to the log file and
// over the socket.
package command

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/bytedance/sonic"
)

// Op identifies which operation a Command carries.
type Op string

const (
	OpSet    Op = "set"
	OpGet    Op = "get"
	OpRemove Op = "remove"
)

// Command is the tagged sum described in spec.md §3: Set{key,value},
// Remove{key}, Get{key}. Get is only ever carried on the wire; the log
// codec never persists it.
type Command struct {
	Op    Op     `json:"op"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// Set builds a Set command.
func Set(key, value string) Command { return Command{Op: OpSet, Key: key, Value: value} }

// Get builds a Get command.
func Get(key string) Command { return Command{Op: OpGet, Key: key} }

// Remove builds a Remove command.
func Remove(key string) Command { return Command{Op: OpRemove, Key: key} }

// Encode serializes a Command to a single self-delimiting line, LF
// terminated. JSON's escaping rules guarantee the terminator byte never
// appears inside the encoded body.
func Encode(c Command) ([]byte, error) {
	body, err := sonic.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	if bytes.IndexByte(body, '\n') >= 0 {
		return nil, fmt.Errorf("encode command: unexpected newline in body")
	}
	return append(body, '\n'), nil
}

// Decode parses a single line (without its terminator) back into a
// Command.
func Decode(line []byte) (Command, error) {
	var c Command
	if err := sonic.Unmarshal(line, &c); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	return c, nil
}

// Write encodes and writes a Command followed by its terminator.
func Write(w io.Writer, c Command) error {
	line, err := Encode(c)
	if err != nil {
		return err
	}
	_, err = w.Write(line)
	return err
}

// Read reads one line from r and decodes it as a Command. io.EOF is
// returned when the peer has closed the connection cleanly between
// requests.
func Read(r *bufio.Reader) (Command, error) {
	line, err := readLine(r)
	if err != nil {
		return Command{}, err
	}
	return Decode(line)
}

// readLine reads up to and including the next LF, returning the line
// without its terminator. It returns io.EOF only when no bytes at all
// were read before end-of-stream (a clean boundary between requests).
func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		if err == io.EOF {
			if len(line) == 0 {
				return nil, io.EOF
			}
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return line[:len(line)-1], nil
}
