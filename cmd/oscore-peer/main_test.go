package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/backkem/oscore/pkg/coap"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("oscore-peer", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestParseFlagsDefaults(t *testing.T) {
	tests := []struct {
		role      string
		listen    string
		sender    []byte
		recipient []byte
	}{
		{"server", ":5683", []byte{0x01}, []byte{}},
		{"client", ":0", []byte{}, []byte{0x01}},
	}

	for _, tc := range tests {
		t.Run(tc.role, func(t *testing.T) {
			o, err := parseFlags(newFlagSet(), []string{"-role", tc.role})
			if err != nil {
				t.Fatalf("parseFlags failed: %v", err)
			}
			if o.Listen != tc.listen {
				t.Errorf("Listen = %q, want %q", o.Listen, tc.listen)
			}
			if !bytes.Equal(o.Sender, tc.sender) || !bytes.Equal(o.Recipient, tc.recipient) {
				t.Errorf("Sender, Recipient = %x, %x; want %x, %x", o.Sender, o.Recipient, tc.sender, tc.recipient)
			}
			if !bytes.Equal(o.Secret, defaultSecret) || !bytes.Equal(o.Salt, defaultSalt) {
				t.Errorf("Secret, Salt = %x, %x", o.Secret, o.Salt)
			}
			if o.Path != "/hello" {
				t.Errorf("Path = %q, want /hello", o.Path)
			}
			if o.SSNSet || o.SSN != 0 {
				t.Errorf("SSN = %d (set %v), want unset", o.SSN, o.SSNSet)
			}
			if (o.SSNFile != "") != (tc.role == "client") {
				t.Errorf("SSNFile = %q", o.SSNFile)
			}
		})
	}
}

func TestParseFlagsExplicit(t *testing.T) {
	o, err := parseFlags(newFlagSet(), []string{
		"-role", "client",
		"-peer", "10.0.0.1:5684",
		"-secret", "00112233",
		"-salt", "",
		"-sender", "0a",
		"-recipient", "0b0c",
		"-path", "/tv1",
		"-ssn", "42",
		"-ssn-file", "",
	})
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}

	if o.Peer != "10.0.0.1:5684" || o.Path != "/tv1" {
		t.Errorf("Peer, Path = %q, %q", o.Peer, o.Path)
	}
	if !bytes.Equal(o.Secret, []byte{0x00, 0x11, 0x22, 0x33}) {
		t.Errorf("Secret = %x", o.Secret)
	}
	if len(o.Salt) != 0 {
		t.Errorf("Salt = %x, want empty", o.Salt)
	}
	if !bytes.Equal(o.Sender, []byte{0x0a}) || !bytes.Equal(o.Recipient, []byte{0x0b, 0x0c}) {
		t.Errorf("Sender, Recipient = %x, %x", o.Sender, o.Recipient)
	}
	if !o.SSNSet || o.SSN != 42 || o.SSNFile != "" {
		t.Errorf("SSN, SSNSet, SSNFile = %d, %v, %q", o.SSN, o.SSNSet, o.SSNFile)
	}
}

func TestParseFlagsErrors(t *testing.T) {
	for _, args := range [][]string{
		{"-role", "proxy"},
		{"-secret", "zz"},
		{"-sender", "123"},
		{"-ssn", "-1"},
	} {
		if _, err := parseFlags(newFlagSet(), args); err == nil {
			t.Errorf("parseFlags(%q) succeeded", args)
		}
	}
}

func TestHelloHandler(t *testing.T) {
	tests := []struct {
		code coap.Code
		path string
		want coap.Code
	}{
		{coap.GET, "/hello", coap.Content},
		{coap.POST, "/hello", coap.MethodNotAllowed},
		{coap.GET, "/other", coap.NotFound},
	}

	for _, tc := range tests {
		req := &coap.Message{Code: tc.code, Options: coap.Options{}.SetPath(tc.path)}
		if got := helloHandler(req).Code; got != tc.want {
			t.Errorf("%v %s = %v, want %v", tc.code, tc.path, got, tc.want)
		}
	}
}

// startTestServer starts a server on loopback and returns client options
// pointing at it, with the sequence number file in a temporary directory.
func startTestServer(t *testing.T) Options {
	t.Helper()

	server, err := parseFlags(newFlagSet(), []string{"-role", "server", "-listen", "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	ep, err := startServer(server, nil)
	if err != nil {
		t.Fatalf("startServer failed: %v", err)
	}
	t.Cleanup(func() { ep.Stop() })

	client, err := parseFlags(newFlagSet(), []string{
		"-role", "client",
		"-listen", "127.0.0.1:0",
		"-peer", ep.LocalAddr().String(),
		"-ssn-file", filepath.Join(t.TempDir(), "client.ssn"),
	})
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	return client
}

func TestServerClient(t *testing.T) {
	client := startTestServer(t)

	resp, err := request(context.Background(), client, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.Code != coap.Content || string(resp.Payload) != "Hello World!" {
		t.Errorf("response = %v %q, want 2.05 Hello World!", resp.Code, resp.Payload)
	}
}

// Each run of the client starts from the stored sequence number, so the
// server accepts every request and no nonce is used twice.
func TestClientRepeatedRuns(t *testing.T) {
	client := startTestServer(t)

	for i := 0; i < 3; i++ {
		resp, err := request(context.Background(), client, nil)
		if err != nil {
			t.Fatalf("run %d: request failed: %v", i, err)
		}
		if resp.Code != coap.Content || string(resp.Payload) != "Hello World!" {
			t.Errorf("run %d: response = %v %q", i, resp.Code, resp.Payload)
		}
	}

	ssn, err := loadSSN(client.SSNFile)
	if err != nil {
		t.Fatalf("loadSSN failed: %v", err)
	}
	if ssn != 3 {
		t.Errorf("stored sequence number = %d, want 3", ssn)
	}
}

func TestReserveSequenceNumber(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name   string
		stored string // file content, "" for no file
		opts   Options
		want   uint64
		next   uint64
	}{
		{"no file", "", Options{}, 0, 1},
		{"stored", "41\n", Options{}, 41, 42},
		{"explicit overrides stored", "41\n", Options{SSN: 7, SSNSet: true}, 7, 8},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name+".ssn")
			if tc.stored != "" {
				if err := os.WriteFile(path, []byte(tc.stored), 0o600); err != nil {
					t.Fatalf("WriteFile failed: %v", err)
				}
			}
			tc.opts.SSNFile = path

			got, err := reserveSequenceNumber(tc.opts)
			if err != nil {
				t.Fatalf("reserveSequenceNumber failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("sequence number = %d, want %d", got, tc.want)
			}
			next, err := loadSSN(path)
			if err != nil {
				t.Fatalf("loadSSN failed: %v", err)
			}
			if next != tc.next {
				t.Errorf("stored = %d, want %d", next, tc.next)
			}
		})
	}

	t.Run("without file", func(t *testing.T) {
		got, err := reserveSequenceNumber(Options{SSN: 5})
		if err != nil || got != 5 {
			t.Errorf("reserveSequenceNumber = %d, %v; want 5, nil", got, err)
		}
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := filepath.Join(dir, "corrupt.ssn")
		if err := os.WriteFile(path, []byte("not a number"), 0o600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		if _, err := reserveSequenceNumber(Options{SSNFile: path}); err == nil {
			t.Error("reserveSequenceNumber succeeded on a corrupt file")
		}
	})
}
