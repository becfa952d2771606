package transport

import "net"

// ReceivedMessage is a datagram received from the network.
// Data holds the raw CoAP message; parsing and OSCORE processing are left
// to higher layers.
type ReceivedMessage struct {
	// Data contains the raw datagram bytes.
	Data []byte
	// Peer is the source address of the datagram.
	Peer net.Addr
}

// MessageHandler is called for each received datagram.
// Implementations should process messages quickly or dispatch to a goroutine
// to avoid blocking the transport's read loop.
type MessageHandler func(msg *ReceivedMessage)
