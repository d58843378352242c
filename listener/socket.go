// Copyright 2015 trivago GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package listener

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trivago/n2k-gateway/blacklist"
	"github.com/trivago/n2k-gateway/decoder"
	"github.com/trivago/n2k-gateway/kafkasink"
	"github.com/trivago/n2k-gateway/session"
	"github.com/trivago/n2k-gateway/topic"
)

// socketReadChunkSize is the fixed chunk size spec.md §4.6 mandates for
// socket reads: each read is its own record under the line protocol.
const socketReadChunkSize = 4096

// Socket is the raw TCP/UDP front end: one acceptor goroutine handing
// accepted connections to N worker goroutines, each its own "event loop"
// implemented as a buffered channel (idiomatic stand-in for the spec's
// lock-free SPSC fifo + async-wake primitive — see DESIGN.md). Grounded on
// consumer/socket.go's tcpAccept/udpAccept/processConnection shape,
// generalized to a worker pool and the Session/Decoder contract.
type Socket struct {
	Registry     *topic.Registry
	Sink         *kafkasink.Sink
	Blacklist    *blacklist.List
	Greeting     []byte // one-shot response sent after the first successful read
	NumWorkers   int
	TCPKeepalive bool
	Log          logrus.FieldLogger

	quit    chan struct{}
	workers []chan net.Conn
	next    int
	wg      sync.WaitGroup
}

// NewSocket builds a Socket front end with numWorkers worker loops (at
// least 1).
func NewSocket(registry *topic.Registry, sink *kafkasink.Sink, bl *blacklist.List, numWorkers int, log logrus.FieldLogger) *Socket {
	if numWorkers < 1 {
		numWorkers = 1
	}
	s := &Socket{
		Registry:   registry,
		Sink:       sink,
		Blacklist:  bl,
		NumWorkers: numWorkers,
		Log:        log,
		quit:       make(chan struct{}),
	}
	s.workers = make([]chan net.Conn, numWorkers)
	for i := range s.workers {
		s.workers[i] = make(chan net.Conn, 64)
	}
	return s
}

// ServeTCP runs the acceptor loop over ln until it is closed or Shutdown
// is called. Blocks the calling goroutine; callers typically invoke it in
// its own goroutine.
func (s *Socket) ServeTCP(ln net.Listener) {
	for i, ch := range s.workers {
		s.wg.Add(1)
		go s.tcpWorker(i, ch)
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				s.Log.WithError(err).Warn("socket accept failed")
				return
			}
		}

		host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
		if err == nil && s.Blacklist.Contains(net.ParseIP(host)) {
			conn.Close()
			continue
		}

		if tcpConn, ok := conn.(*net.TCPConn); ok && s.TCPKeepalive {
			tcpConn.SetKeepAlive(true)
		}

		worker := s.workers[s.next%len(s.workers)]
		s.next++
		select {
		case worker <- conn:
		default:
			// Worker's queue is saturated: rather than block the acceptor
			// (spec.md §5 never lets a suspension point back up the
			// acceptor thread), drop the connection.
			conn.Close()
		}
	}
}

func (s *Socket) tcpWorker(id int, conns <-chan net.Conn) {
	defer s.wg.Done()
	dec := decoder.Dumb{}

	for {
		select {
		case <-s.quit:
			return
		case conn, ok := <-conns:
			if !ok {
				return
			}
			s.handleTCPConn(dec, conn)
		}
	}
}

func (s *Socket) handleTCPConn(dec decoder.Dumb, conn net.Conn) {
	defer conn.Close()

	sess, err := dec.NewSession(s.Registry, s.Sink, session.Vars{Path: "/v1/" + s.Sink.DefaultTopic()}, time.Now())
	if err != nil {
		s.Log.WithError(err).Warn("socket session init failed")
		return
	}
	defer dec.Done(sess)

	greeted := false
	for {
		// A fresh buffer per read: the record produced from it is sent
		// zero-copy and must stay intact until delivered.
		buf := make([]byte, socketReadChunkSize)
		n, err := conn.Read(buf)
		if n > 0 {
			if cbErr := dec.Callback(sess, buf[:n]); cbErr != nil {
				s.Log.WithError(cbErr).Warn("socket record rejected")
			}
			if !greeted && len(s.Greeting) > 0 {
				conn.Write(s.Greeting)
				greeted = true
			}
		}
		if err != nil {
			if err != io.EOF {
				s.Log.WithError(err).Debug("socket read ended")
			}
			return
		}
	}
}

// ServeUDP runs numWorkers goroutines that serialize on conn's ReadFrom via
// a mutex, per spec.md §4.6's "shared non-blocking socket, N workers, each
// serializing on recvfrom" model (consumer/socket.go only ever runs one
// such reader inline; this generalizes it to N).
func (s *Socket) ServeUDP(conn *net.UDPConn) {
	var mu sync.Mutex
	dec := decoder.Dumb{}

	worker := func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.quit:
				return
			default:
			}

			buf := make([]byte, socketReadChunkSize)
			mu.Lock()
			n, addr, err := conn.ReadFromUDP(buf)
			mu.Unlock()
			if err != nil {
				select {
				case <-s.quit:
					return
				default:
					s.Log.WithError(err).Debug("udp read ended")
					continue
				}
			}
			if n == 0 {
				continue
			}
			if s.Blacklist.Contains(addr.IP) {
				continue
			}
			s.handleDatagram(dec, buf[:n])
		}
	}

	for i := 0; i < s.NumWorkers; i++ {
		s.wg.Add(1)
		go worker()
	}
}

func (s *Socket) handleDatagram(dec decoder.Dumb, datagram []byte) {
	sess, err := dec.NewSession(s.Registry, s.Sink, session.Vars{Path: "/v1/" + s.Sink.DefaultTopic()}, time.Now())
	if err != nil {
		s.Log.WithError(err).Warn("udp session init failed")
		return
	}
	defer dec.Done(sess)

	if err := dec.Callback(sess, datagram); err != nil {
		s.Log.WithError(err).Warn("udp record rejected")
	}
}

// Shutdown pings every worker's quit signal and waits for them to drain,
// matching spec.md §5's "shared shutdown flag" + join model.
func (s *Socket) Shutdown() {
	close(s.quit)
	s.wg.Wait()
}
