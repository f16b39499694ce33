// SPDX-License-Identifier: Apache-2.0

package listener

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"

	logging "github.com/loopholelabs/logging/types"
)

var (
	OptionsErr = errors.New("invalid options")
	ListenErr  = errors.New("unable to listen")
	ClosedErr  = errors.New("listener closed")
	CloseErr   = errors.New("unable to close listener")
)

const (
	network = "tcp"
)

const (
	stateListening = iota
	stateClosed
)

type Options struct {
	Address string
	MaxConn int
	Logger  logging.Logger
}

func validOptions(options *Options) bool {
	return options != nil && options.Address != "" && options.MaxConn > 0 && options.Logger != nil
}

// Listener accepts TCP connections in the background and hands them out
// through Accept. Connections arriving while MaxConn are already waiting are
// closed immediately.
type Listener struct {
	listener             *net.TCPListener
	availableConnections chan *net.TCPConn
	state                atomic.Uint32
	logger               logging.Logger
	wg                   sync.WaitGroup
}

func New(options *Options) (*Listener, error) {
	if !validOptions(options) {
		return nil, OptionsErr
	}

	addr, err := net.ResolveTCPAddr(network, options.Address)
	if err != nil {
		return nil, errors.Join(ListenErr, err)
	}
	tcpListener, err := net.ListenTCP(network, addr)
	if err != nil {
		return nil, errors.Join(ListenErr, err)
	}

	lis := &Listener{
		listener:             tcpListener,
		availableConnections: make(chan *net.TCPConn, options.MaxConn),
		logger:               options.Logger.SubLogger("listener"),
	}

	lis.state.Store(stateListening)
	lis.wg.Add(1)
	go lis.accept()

	return lis, nil
}

// Addr is the bound address, useful when listening on port 0.
func (lis *Listener) Addr() net.Addr {
	return lis.listener.Addr()
}

func (lis *Listener) Accept() (*net.TCPConn, error) {
	if lis.state.Load() == stateListening {
		conn, ok := <-lis.availableConnections
		if !ok {
			return nil, ClosedErr
		}
		return conn, nil
	}
	return nil, ClosedErr
}

func (lis *Listener) Close() error {
	if lis.state.CompareAndSwap(stateListening, stateClosed) {
		err := lis.listener.Close()
		if err != nil {
			return errors.Join(CloseErr, err)
		}
		lis.wg.Wait()
		for conn := range lis.availableConnections {
			err = conn.Close()
			if err != nil {
				lis.logger.Warn().Err(err).Msg("unable to close connection")
			}
		}
	}
	return nil
}

func (lis *Listener) accept() {
	for {
		conn, err := lis.listener.AcceptTCP()
		if err != nil {
			if lis.state.Load() == stateListening {
				lis.logger.Error().Err(err).Msg("unable to accept connection")
			}
			goto OUT
		}
		select {
		case lis.availableConnections <- conn:
		default:
			lis.logger.Warn().Str("remote", conn.RemoteAddr().String()).Msg("connection dropped")
			_ = conn.Close()
		}
	}
OUT:
	close(lis.availableConnections)
	lis.wg.Done()
}
