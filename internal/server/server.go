// Package server implements the request-dispatch pipeline from
// spec.md §4.5: accept connections, hand each to the worker pool, and
// translate requests to engine calls and results to replies.
package server

import (
	"bufio"
	"errors"
	"io"
	"net"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/kvslab/kvs/internal/command"
	"github.com/kvslab/kvs/internal/engine"
	"github.com/kvslab/kvs/internal/pool"
)

// Server binds a listening socket and dispatches each connection onto
// a shared worker pool, against a shared engine handle.
type Server struct {
	listener net.Listener
	engine   engine.Engine
	pool     *pool.Pool
	logger   log.Logger
}

// New binds addr and constructs a Server backed by eng and workers.
func New(addr string, eng engine.Engine, workers *pool.Pool, logger log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{listener: ln, engine: eng, pool: workers, logger: logger}, nil
}

// Addr returns the bound address, useful for tests that bind to ":0".
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Serve runs the accept loop until the listener is closed. Failures on
// one connection are logged and that connection is closed; the server
// keeps running (spec.md §4.5).
func (s *Server) Serve() error {
	level.Debug(s.logger).Log("msg", "waiting for connections", "addr", s.listener.Addr())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			level.Error(s.logger).Log("msg", "accept failed", "err", err)
			continue
		}
		level.Debug(s.logger).Log("msg", "connection established", "peer", conn.RemoteAddr())
		s.pool.Spawn(func() { s.handleConn(conn) })
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error { return s.listener.Close() }

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	peer := conn.RemoteAddr()
	r := bufio.NewReader(conn)

	for {
		req, err := command.Read(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				level.Error(s.logger).Log("msg", "read request failed", "peer", peer, "err", err)
			} else {
				level.Debug(s.logger).Log("msg", "connection closed by peer", "peer", peer)
			}
			return
		}
		level.Debug(s.logger).Log("msg", "request", "peer", peer, "op", req.Op, "key", req.Key)

		reply := s.Dispatch(req)
		if err := command.WriteReply(conn, reply); err != nil {
			level.Error(s.logger).Log("msg", "write reply failed", "peer", peer, "err", err)
			return
		}
	}
}

// Dispatch executes one request against the engine and builds the
// reply, per the mapping in spec.md §4.5. It has no dependency on a
// live socket so it is independently unit-testable.
func (s *Server) Dispatch(req command.Command) command.Reply {
	switch req.Op {
	case command.OpSet:
		if err := s.engine.Set(req.Key, req.Value); err != nil {
			level.Error(s.logger).Log("msg", "dispatch failed", "op", req.Op, "key", req.Key, "err", err)
			return command.Err(err.Error())
		}
		return command.OK()

	case command.OpGet:
		v, ok, err := s.engine.Get(req.Key)
		switch {
		case err != nil:
			level.Error(s.logger).Log("msg", "dispatch failed", "op", req.Op, "key", req.Key, "err", err)
			return command.Err(err.Error())
		case !ok:
			return command.Err("Key not found")
		default:
			return command.OKWithBody(v)
		}

	case command.OpRemove:
		if err := s.engine.Remove(req.Key); err != nil {
			if errors.Is(err, engine.ErrKeyNotFound) {
				return command.Err("Key not found")
			}
			level.Error(s.logger).Log("msg", "dispatch failed", "op", req.Op, "key", req.Key, "err", err)
			return command.Err(err.Error())
		}
		return command.OK()

	default:
		return command.Err("unknown operation")
	}
}
