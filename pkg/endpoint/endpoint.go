// Package endpoint runs OSCORE-protected CoAP over a datagram transport.
//
// An Endpoint acts as server and client at once. Incoming requests are
// matched to a security context by the kid of their OSCORE option,
// unprotected, passed to the Handler, and answered with a response
// protected under the request nonce. Outgoing requests are protected with
// the peer's context and their responses matched by token.
package endpoint

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"net"
	"sync"

	"github.com/backkem/oscore/pkg/coap"
	"github.com/backkem/oscore/pkg/oscore"
	"github.com/backkem/oscore/pkg/transport"
	"github.com/pion/logging"
)

// TokenSize is the length of the tokens assigned to outgoing requests.
const TokenSize = 4

// Handler serves unprotected CoAP requests.
type Handler interface {
	// ServeCoAP returns the response to req, or nil to send nothing.
	ServeCoAP(req *coap.Message) *coap.Message
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(req *coap.Message) *coap.Message

// ServeCoAP calls f(req).
func (f HandlerFunc) ServeCoAP(req *coap.Message) *coap.Message {
	return f(req)
}

// Config configures an Endpoint.
type Config struct {
	// Conn is an optional pre-existing PacketConn.
	// If nil, a new connection will be created using ListenAddr.
	Conn net.PacketConn

	// ListenAddr is the address to listen on. Ignored if Conn is provided.
	ListenAddr string

	// Contexts holds the server-side security contexts keyed by the kid of
	// incoming requests. If nil, incoming requests are dropped.
	Contexts *oscore.Table

	// Handler serves incoming requests. If nil, incoming requests are dropped.
	Handler Handler

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Peer is a remote endpoint together with the context used to talk to it.
type Peer struct {
	Addr    net.Addr
	Context *oscore.SecurityContext
}

// pendingRequest is an outgoing request waiting for its response.
type pendingRequest struct {
	peer     string
	response chan *coap.Message
}

// Endpoint sends and serves OSCORE-protected CoAP messages.
type Endpoint struct {
	config Config
	udp    *transport.UDP
	log    logging.LeveledLogger

	// pending maps token to outstanding request.
	pending map[string]*pendingRequest

	// nextMessageID is the next message ID to allocate. The first is random.
	nextMessageID uint16

	closeCh chan struct{}
	closed  bool
	mu      sync.Mutex
}

// New creates an endpoint. Call Start to begin receiving.
func New(config Config) (*Endpoint, error) {
	e := &Endpoint{
		config:  config,
		pending: make(map[string]*pendingRequest),
		closeCh: make(chan struct{}),
	}

	if config.LoggerFactory != nil {
		e.log = config.LoggerFactory.NewLogger("endpoint")
	}

	var buf [2]byte
	if _, err := rand.Read(buf[:]); err == nil {
		e.nextMessageID = binary.BigEndian.Uint16(buf[:])
	}

	udp, err := transport.NewUDP(transport.UDPConfig{
		Conn:           config.Conn,
		ListenAddr:     config.ListenAddr,
		MessageHandler: e.handleDatagram,
		LoggerFactory:  config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}
	e.udp = udp

	return e, nil
}

// Start begins receiving datagrams.
func (e *Endpoint) Start() error {
	return e.udp.Start()
}

// Stop closes the transport. Pending Do calls return ErrClosed.
func (e *Endpoint) Stop() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.closed = true
	close(e.closeCh)
	e.mu.Unlock()

	return e.udp.Stop()
}

// LocalAddr returns the local transport address.
func (e *Endpoint) LocalAddr() net.Addr {
	return e.udp.LocalAddr()
}

// allocMessageID returns the next message ID.
func (e *Endpoint) allocMessageID() uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextMessageID
	e.nextMessageID++
	return id
}

// Do protects req with the peer's context, sends it and waits for the
// response. The token and message ID of req are assigned by the endpoint.
// Cancelling ctx ends the wait.
func (e *Endpoint) Do(ctx context.Context, peer *Peer, req *coap.Message) (*coap.Message, error) {
	if peer == nil || peer.Context == nil {
		return nil, ErrNoContext
	}
	if peer.Addr == nil {
		return nil, transport.ErrInvalidAddress
	}
	if !req.Code.IsRequest() {
		return nil, ErrNotRequest
	}

	token := make([]byte, TokenSize)
	if _, err := rand.Read(token); err != nil {
		return nil, err
	}

	out := *req
	out.Type = coap.NonConfirmable
	out.MessageID = e.allocMessageID()
	out.Token = token

	protected, binding, err := peer.Context.ProtectRequest(&out)
	if err != nil {
		return nil, err
	}
	data, err := protected.Marshal()
	if err != nil {
		return nil, err
	}

	p := &pendingRequest{
		peer:     peer.Addr.String(),
		response: make(chan *coap.Message, 1),
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	e.pending[string(token)] = p
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.pending, string(token))
		e.mu.Unlock()
	}()

	if e.log != nil {
		e.log.Debugf("sending %v %s to %v", req.Code, req.Path(), peer.Addr)
	}
	if err := e.udp.Send(data, peer.Addr); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.closeCh:
		return nil, ErrClosed
	case msg := <-p.response:
		return peer.Context.UnprotectResponse(msg, binding)
	}
}

// handleDatagram is the transport's MessageHandler.
func (e *Endpoint) handleDatagram(rm *transport.ReceivedMessage) {
	msg, err := coap.Parse(rm.Data)
	if err != nil {
		if e.log != nil {
			e.log.Debugf("dropping malformed datagram from %v: %v", rm.Peer, err)
		}
		return
	}

	switch {
	case msg.Code.IsRequest():
		e.handleRequest(msg, rm.Peer)
	case msg.Code.IsResponse():
		e.handleResponse(msg, rm.Peer)
	default:
		if e.log != nil {
			e.log.Tracef("ignoring %v message from %v", msg.Type, rm.Peer)
		}
	}
}

// handleRequest serves a protected request. Every failure is logged and
// the request dropped without an error response.
func (e *Endpoint) handleRequest(msg *coap.Message, from net.Addr) {
	if e.config.Contexts == nil || e.config.Handler == nil {
		return
	}

	option, ok := msg.Options.Get(coap.OptionOSCORE)
	if !ok {
		if e.log != nil {
			e.log.Debugf("dropping unprotected request from %v", from)
		}
		return
	}
	kid, _, err := oscore.DecompressOption(option)
	if err != nil {
		if e.log != nil {
			e.log.Debugf("dropping request from %v: %v", from, err)
		}
		return
	}

	sc := e.config.Contexts.Lookup(kid)
	if sc == nil {
		if e.log != nil {
			e.log.Debugf("dropping request from %v: no context for kid %x", from, kid)
		}
		return
	}

	req, binding, err := sc.UnprotectRequest(msg)
	if err != nil {
		if e.log != nil {
			e.log.Debugf("dropping request from %v: %v", from, err)
		}
		return
	}

	resp := e.config.Handler.ServeCoAP(req)
	if resp == nil {
		return
	}

	out := *resp
	out.Token = msg.Token
	if msg.Type == coap.Confirmable {
		out.Type = coap.Acknowledgement
		out.MessageID = msg.MessageID
	} else {
		out.Type = coap.NonConfirmable
		out.MessageID = e.allocMessageID()
	}

	protected, err := sc.ProtectResponse(&out, binding, false)
	if err != nil {
		if e.log != nil {
			e.log.Warnf("failed to protect response to %v: %v", from, err)
		}
		return
	}
	data, err := protected.Marshal()
	if err != nil {
		if e.log != nil {
			e.log.Warnf("failed to encode response to %v: %v", from, err)
		}
		return
	}

	if err := e.udp.Send(data, from); err != nil && e.log != nil {
		e.log.Warnf("failed to send response to %v: %v", from, err)
	}
}

// handleResponse hands a response to the Do call waiting for its token.
func (e *Endpoint) handleResponse(msg *coap.Message, from net.Addr) {
	e.mu.Lock()
	p, ok := e.pending[string(msg.Token)]
	if ok && p.peer == from.String() {
		delete(e.pending, string(msg.Token))
	} else {
		ok = false
	}
	e.mu.Unlock()

	if !ok {
		if e.log != nil {
			e.log.Debugf("dropping unmatched response from %v", from)
		}
		return
	}

	p.response <- msg
}
