package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

// Options holds the CLI flags.
type Options struct {
	// Role is "server" or "client".
	Role string

	// Listen is the local UDP address.
	Listen string

	// Peer is the server address used by the client.
	Peer string

	// Secret and Salt are the master secret and master salt.
	Secret []byte
	Salt   []byte

	// Sender and Recipient are this peer's Sender ID and Recipient ID.
	Sender    []byte
	Recipient []byte

	// Path is the resource requested by the client.
	Path string

	// SSN is the initial sender sequence number. SSNSet records whether it
	// was given on the command line.
	SSN    uint64
	SSNSet bool

	// SSNFile persists the client's sender sequence number across runs.
	// Empty disables persistence.
	SSNFile string
}

// Test credentials of RFC 8613 Appendix C.1.
var (
	defaultSecret   = []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	defaultSalt     = []byte{0x9e, 0x7c, 0xa9, 0x22, 0x23, 0x78, 0x63, 0x40}
	defaultClientID = []byte{}
	defaultServerID = []byte{0x01}
)

// hexValue is a flag.Value holding a hex encoded byte string.
type hexValue struct {
	b   *[]byte
	set bool
}

func (h *hexValue) String() string {
	if h.b == nil {
		return ""
	}
	return hex.EncodeToString(*h.b)
}

func (h *hexValue) Set(s string) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex %q: %w", s, err)
	}
	*h.b = b
	h.set = true
	return nil
}

// parseFlags parses args into Options. IDs not given on the command line
// default to the client or server side of the test credentials.
//
//	-role      server or client (default: server)
//	-listen    local UDP address (default: :5683 for server, :0 for client)
//	-peer      server address (client only, default: 127.0.0.1:5683)
//	-secret    master secret, hex
//	-salt      master salt, hex
//	-sender    Sender ID, hex
//	-recipient Recipient ID, hex
//	-path      resource path (client only, default: /hello)
//	-ssn       initial sender sequence number (overrides -ssn-file)
//	-ssn-file  sequence number file (client default: in os.TempDir, keyed by Sender ID)
func parseFlags(fs *flag.FlagSet, args []string) (Options, error) {
	o := Options{
		Secret: append([]byte{}, defaultSecret...),
		Salt:   append([]byte{}, defaultSalt...),
	}

	sender := &hexValue{b: &o.Sender}
	recipient := &hexValue{b: &o.Recipient}

	fs.StringVar(&o.Role, "role", "server", "server or client")
	fs.StringVar(&o.Listen, "listen", "", "local UDP address")
	fs.StringVar(&o.Peer, "peer", "127.0.0.1:5683", "server address (client only)")
	fs.Var(&hexValue{b: &o.Secret}, "secret", "master secret (hex)")
	fs.Var(&hexValue{b: &o.Salt}, "salt", "master salt (hex)")
	fs.Var(sender, "sender", "Sender ID (hex)")
	fs.Var(recipient, "recipient", "Recipient ID (hex)")
	fs.StringVar(&o.Path, "path", "/hello", "resource path (client only)")
	fs.Uint64Var(&o.SSN, "ssn", 0, "initial sender sequence number")
	fs.StringVar(&o.SSNFile, "ssn-file", "", "sequence number file")

	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}

	var ownID, peerID []byte
	switch o.Role {
	case "server":
		ownID, peerID = defaultServerID, defaultClientID
		if o.Listen == "" {
			o.Listen = ":5683"
		}
	case "client":
		ownID, peerID = defaultClientID, defaultServerID
		if o.Listen == "" {
			o.Listen = ":0"
		}
	default:
		return Options{}, fmt.Errorf("unknown role %q", o.Role)
	}

	if !sender.set {
		o.Sender = append([]byte{}, ownID...)
	}
	if !recipient.set {
		o.Recipient = append([]byte{}, peerID...)
	}

	ssnFileSet := false
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "ssn":
			o.SSNSet = true
		case "ssn-file":
			ssnFileSet = true
		}
	})
	if o.Role == "client" && !ssnFileSet {
		o.SSNFile = filepath.Join(os.TempDir(), "oscore-peer-client-"+hex.EncodeToString(o.Sender)+".ssn")
	}

	return o, nil
}
