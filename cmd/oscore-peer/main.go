// oscore-peer is an OSCORE-protected CoAP server and client.
//
// The server answers GET /hello with "Hello World!". The client sends one
// request and prints the decrypted response.
//
// Usage:
//
//	oscore-peer [options]
//
// Example:
//
//	oscore-peer -role server -listen :5683
//	oscore-peer -role client -peer 127.0.0.1:5683 -path /hello
//
// Both sides default to the test credentials of RFC 8613 Appendix C.1. The
// client keeps its sender sequence number in -ssn-file so repeated runs do
// not reuse a nonce.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/backkem/oscore/pkg/coap"
	"github.com/backkem/oscore/pkg/endpoint"
	"github.com/backkem/oscore/pkg/oscore"
	"github.com/backkem/oscore/pkg/transport"
	"github.com/pion/logging"
)

// requestTimeout bounds the client's wait for a response.
const requestTimeout = 5 * time.Second

// helloHandler serves the demo resource.
func helloHandler(req *coap.Message) *coap.Message {
	if req.Path() != "/hello" {
		return &coap.Message{Code: coap.NotFound}
	}
	if req.Code != coap.GET {
		return &coap.Message{Code: coap.MethodNotAllowed}
	}
	return &coap.Message{Code: coap.Content, Payload: []byte("Hello World!")}
}

func deriveContext(opts Options, lf logging.LoggerFactory) (*oscore.SecurityContext, error) {
	return oscore.DeriveContext(oscore.ContextConfig{
		MasterSecret:  opts.Secret,
		MasterSalt:    opts.Salt,
		SenderID:      opts.Sender,
		RecipientID:   opts.Recipient,

		InitialSequenceNumber: opts.SSN,
		LoggerFactory:         lf,
	})
}

// startServer derives the server context and starts an endpoint serving
// helloHandler.
func startServer(opts Options, lf logging.LoggerFactory) (*endpoint.Endpoint, error) {
	sc, err := deriveContext(opts, lf)
	if err != nil {
		return nil, fmt.Errorf("derive context: %w", err)
	}

	table := oscore.NewTable(0)
	if err := table.Add(sc); err != nil {
		return nil, err
	}

	ep, err := endpoint.New(endpoint.Config{
		ListenAddr:    opts.Listen,
		Contexts:      table,
		Handler:       endpoint.HandlerFunc(helloHandler),
		LoggerFactory: lf,
	})
	if err != nil {
		return nil, err
	}
	if err := ep.Start(); err != nil {
		return nil, err
	}
	return ep, nil
}

// request sends one GET for opts.Path to opts.Peer.
func request(ctx context.Context, opts Options, lf logging.LoggerFactory) (*coap.Message, error) {
	ssn, err := reserveSequenceNumber(opts)
	if err != nil {
		return nil, err
	}
	opts.SSN = ssn

	sc, err := deriveContext(opts, lf)
	if err != nil {
		return nil, fmt.Errorf("derive context: %w", err)
	}
	addr, err := transport.ResolveUDPAddr(opts.Peer)
	if err != nil {
		return nil, fmt.Errorf("resolve peer: %w", err)
	}

	ep, err := endpoint.New(endpoint.Config{
		ListenAddr:    opts.Listen,
		LoggerFactory: lf,
	})
	if err != nil {
		return nil, err
	}
	if err := ep.Start(); err != nil {
		return nil, err
	}
	defer ep.Stop()

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req := &coap.Message{
		Code:    coap.GET,
		Options: coap.Options{}.SetPath(opts.Path),
	}
	return ep.Do(ctx, &endpoint.Peer{Addr: addr, Context: sc}, req)
}

func run(ctx context.Context, opts Options) error {
	lf := logging.NewDefaultLoggerFactory()
	log := lf.NewLogger("oscore-peer")

	switch opts.Role {
	case "server":
		ep, err := startServer(opts, lf)
		if err != nil {
			return err
		}
		log.Infof("serving on %s", ep.LocalAddr())

		<-ctx.Done()
		log.Info("shutting down")
		return ep.Stop()

	default:
		resp, err := request(ctx, opts, lf)
		if err != nil {
			return err
		}
		fmt.Printf("%v %s\n", resp.Code, resp.Payload)
		return nil
	}
}

func main() {
	opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
