// SPDX-License-Identifier: Apache-2.0

// Package mockserver is an in-process face-analysis service used by tests and
// by the mock-server command. It answers heartbeats and GET_FEATURE requests
// and can be told to misbehave.
package mockserver

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	logging "github.com/loopholelabs/logging/types"
	"github.com/loopholelabs/polyglot/v2"

	"github.com/loopholelabs/faceclient/internal/listener"
	"github.com/loopholelabs/faceclient/pkg/wire"
)

var (
	OptionsErr = errors.New("invalid options")
	CreateErr  = errors.New("unable to create server")
	CloseErr   = errors.New("unable to close server")
)

const (
	defaultMaxConn     = 16
	defaultMaxBodySize = 64 << 20
)

// HandleFunc returns the body answering request, or nil to leave it
// unanswered.
type HandleFunc func(request *wire.Packet) wire.Body

type Options struct {
	Address string
	MaxConn int

	// Handle defaults to Features.
	Handle HandleFunc

	// Delay postpones every GET_FEATURE response.
	Delay time.Duration

	// Hold buffers responses until Hold of them are ready, then writes them
	// in reverse order.
	Hold int

	Logger logging.Logger
}

func validOptions(options *Options) bool {
	return options != nil && options.Address != "" && options.MaxConn >= 0 && options.Delay >= 0 && options.Hold >= 0 && options.Logger != nil
}

func (options *Options) listener() *listener.Options {
	maxConn := options.MaxConn
	if maxConn == 0 {
		maxConn = defaultMaxConn
	}
	return &listener.Options{
		Address: options.Address,
		MaxConn: maxConn,
		Logger:  options.Logger,
	}
}

type Server struct {
	listener *listener.Listener
	handle   HandleFunc
	delay    time.Duration
	hold     int

	dropHeartbeats atomic.Int32
	silent         atomic.Bool
	connections    atomic.Int32
	heartbeats     atomic.Int32

	mu    sync.Mutex
	peers map[uuid.UUID]net.Conn

	ctx    context.Context
	cancel context.CancelFunc
	logger logging.Logger
	wg     sync.WaitGroup
}

func New(options *Options) (*Server, error) {
	if !validOptions(options) {
		return nil, OptionsErr
	}
	lis, err := listener.New(options.listener())
	if err != nil {
		return nil, errors.Join(CreateErr, err)
	}
	s := &Server{
		listener: lis,
		handle:   options.Handle,
		delay:    options.Delay,
		hold:     options.Hold,
		peers:    make(map[uuid.UUID]net.Conn),
		logger:   options.Logger.SubLogger("mockserver"),
	}
	if s.handle == nil {
		s.handle = Features
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	go s.accept()
	return s, nil
}

// Addr is the address clients should dial.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// DropHeartbeats makes the server ignore the next n heartbeats.
func (s *Server) DropHeartbeats(n int) {
	s.dropHeartbeats.Store(int32(n))
}

// Silent stops (or resumes) answering GET_FEATURE requests. Heartbeats are
// still acknowledged.
func (s *Server) Silent(silent bool) {
	s.silent.Store(silent)
}

// Connections is the number of connections accepted so far.
func (s *Server) Connections() int {
	return int(s.connections.Load())
}

// Heartbeats is the number of heartbeats acknowledged so far.
func (s *Server) Heartbeats() int {
	return int(s.heartbeats.Load())
}

// CloseConnections drops every open connection without stopping the server.
func (s *Server) CloseConnections() {
	s.mu.Lock()
	for id, conn := range s.peers {
		_ = conn.Close()
		delete(s.peers, id)
	}
	s.mu.Unlock()
}

func (s *Server) Close() error {
	s.cancel()
	err := s.listener.Close()
	s.CloseConnections()
	s.wg.Wait()
	if err != nil {
		return errors.Join(CloseErr, err)
	}
	return nil
}

func (s *Server) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			goto OUT
		}
		id := uuid.New()
		s.mu.Lock()
		if s.ctx.Err() != nil {
			s.mu.Unlock()
			_ = conn.Close()
			goto OUT
		}
		s.peers[id] = conn
		s.mu.Unlock()
		s.connections.Add(1)
		s.logger.Info().Str("peer", id.String()).Str("remote", conn.RemoteAddr().String()).Msg("connection accepted")
		s.wg.Add(1)
		go s.serve(id, conn)
	}
OUT:
	s.wg.Done()
}

func (s *Server) serve(id uuid.UUID, conn net.Conn) {
	reader := bufio.NewReader(conn)
	var held []*wire.Packet
	for {
		h, data, err := wire.ReadFrame(reader, defaultMaxBodySize)
		if err != nil {
			s.logger.Info().Str("peer", id.String()).Err(err).Msg("connection closed")
			goto OUT
		}
		body, err := wire.DecodeBody(h.Command, data)
		if err != nil {
			s.logger.Error().Str("peer", id.String()).Err(err).Msg("unable to decode request")
			goto OUT
		}
		request := &wire.Packet{Header: h, Body: body}

		switch h.Command {
		case wire.CommandHeartbeat:
			if s.drop() {
				s.logger.Warn().Int("serial", int(h.Serial)).Msg("dropping heartbeat")
				continue
			}
			s.heartbeats.Add(1)
			if err = s.write(conn, reply(request, wire.CommandHeartbeatAck, nil)); err != nil {
				goto OUT
			}
		case wire.CommandGetFeature:
			if s.silent.Load() {
				continue
			}
			response := s.handle(request)
			if response == nil {
				continue
			}
			if s.delay > 0 {
				select {
				case <-s.ctx.Done():
					goto OUT
				case <-time.After(s.delay):
				}
			}
			held = append(held, reply(request, wire.CommandGetFeatureAck, response))
			if len(held) < s.hold {
				continue
			}
			for i := len(held) - 1; i >= 0; i-- {
				if err = s.write(conn, held[i]); err != nil {
					goto OUT
				}
			}
			held = held[:0]
		default:
			s.logger.Warn().Int("serial", int(h.Serial)).Str("cmd", h.Command.String()).Msg("ignoring request")
		}
	}
OUT:
	s.mu.Lock()
	delete(s.peers, id)
	s.mu.Unlock()
	_ = conn.Close()
	s.wg.Done()
}

func (s *Server) drop() bool {
	for {
		n := s.dropHeartbeats.Load()
		if n <= 0 {
			return false
		}
		if s.dropHeartbeats.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

func (s *Server) write(conn net.Conn, p *wire.Packet) error {
	buf := polyglot.GetBuffer()
	defer polyglot.PutBuffer(buf)
	if err := p.Encode(buf); err != nil {
		s.logger.Error().Int("serial", int(p.Header.Serial)).Err(err).Msg("unable to encode response")
		return err
	}
	_, err := conn.Write(buf.Bytes())
	return err
}

func reply(request *wire.Packet, cmd wire.Command, body wire.Body) *wire.Packet {
	p := &wire.Packet{
		Header: wire.Header{
			Version: wire.Version,
			Serial:  request.Header.Serial,
			Command: cmd,
		},
		Body: body,
	}
	if body != nil {
		p.Header.DataLen = uint32(body.Size())
	}
	return p
}
