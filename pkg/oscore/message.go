package oscore

import (
	"errors"

	"github.com/backkem/oscore/pkg/coap"
)

// ErrMalformedPlaintext is returned when an authenticated plaintext does not
// hold a code byte followed by a valid option list.
var ErrMalformedPlaintext = errors.New("oscore: malformed inner message")

// Outer codes of protected messages (RFC 8613 Section 4.2).
const (
	// OuterRequestCode is the outer code of every protected request.
	OuterRequestCode = coap.POST

	// OuterResponseCode is the outer code of every protected response.
	OuterResponseCode = coap.Changed
)

// optionClass reports how an option is carried.
type optionClass uint8

const (
	// classE options are encrypted into the inner plaintext.
	classE optionClass = iota

	// classU options stay in the outer message unprotected.
	classU

	// classUnsupported options cannot be carried.
	classUnsupported
)

// classify returns the protection class of an option number. There are no
// Class I options, so the AAD option field is always empty.
func classify(n coap.OptionNumber) optionClass {
	switch n {
	case coap.OptionURIHost, coap.OptionURIPort, coap.OptionProxyScheme, coap.OptionOSCORE:
		return classU
	case coap.OptionObserve, coap.OptionProxyURI:
		return classUnsupported
	default:
		return classE
	}
}

// splitOptions separates the Class E and Class U options. Any OSCORE option
// already present is dropped.
func splitOptions(opts coap.Options) (inner, outer coap.Options, err error) {
	for _, opt := range opts {
		switch classify(opt.Number) {
		case classUnsupported:
			return nil, nil, &UnsupportedOptionError{Option: opt.Number}
		case classU:
			if opt.Number != coap.OptionOSCORE {
				outer = append(outer, opt)
			}
		default:
			inner = append(inner, opt)
		}
	}
	return inner, outer, nil
}

// encodePlaintext builds the inner plaintext: code || options || [0xFF payload].
func encodePlaintext(code coap.Code, opts coap.Options, payload []byte) ([]byte, error) {
	buf := make([]byte, 1, 1+coap.EncodedSize(opts, payload))
	buf[0] = byte(code)
	buf, err := coap.AppendOptions(buf, opts, payload)
	if err != nil {
		return nil, ErrEncodingFailed
	}
	return buf, nil
}

// decodePlaintext parses the inner plaintext.
func decodePlaintext(plaintext []byte) (coap.Code, coap.Options, []byte, error) {
	if len(plaintext) == 0 {
		return 0, nil, nil, ErrMalformedPlaintext
	}
	opts, payload, err := coap.DecodeOptions(plaintext[1:])
	if err != nil {
		return 0, nil, nil, ErrMalformedPlaintext
	}
	return coap.Code(plaintext[0]), opts, payload, nil
}

// protectMessage rewrites msg into its protected form around a sealed payload.
func protectMessage(msg *coap.Message, outer coap.Options, code coap.Code, sealed *Sealed) *coap.Message {
	opts := make(coap.Options, 0, len(outer)+1)
	opts = append(opts, outer...)
	opts = append(opts, coap.Option{Number: coap.OptionOSCORE, Value: sealed.Option})

	return &coap.Message{
		Type:      msg.Type,
		Code:      code,
		MessageID: msg.MessageID,
		Token:     msg.Token,
		Options:   opts.Sorted(),
		Payload:   sealed.Ciphertext,
	}
}

// unprotectMessage restores the original message from an authenticated plaintext.
func unprotectMessage(msg *coap.Message, plaintext []byte) (*coap.Message, error) {
	code, inner, payload, err := decodePlaintext(plaintext)
	if err != nil {
		return nil, err
	}

	opts := make(coap.Options, 0, len(msg.Options)+len(inner))
	for _, opt := range msg.Options {
		// Only Class U options are taken from the outer message.
		if classify(opt.Number) == classU && opt.Number != coap.OptionOSCORE {
			opts = append(opts, opt)
		}
	}
	opts = append(opts, inner...)

	return &coap.Message{
		Type:      msg.Type,
		Code:      code,
		MessageID: msg.MessageID,
		Token:     msg.Token,
		Options:   opts.Sorted(),
		Payload:   payload,
	}, nil
}

// oscoreOption returns the OSCORE option value of msg.
func oscoreOption(msg *coap.Message) ([]byte, error) {
	value, ok := msg.Options.Get(coap.OptionOSCORE)
	if !ok {
		return nil, ErrMissingSecurityIndicator
	}
	return value, nil
}

// ProtectRequest protects a CoAP request. The returned binding must be kept
// to unprotect the response.
func (c *SecurityContext) ProtectRequest(req *coap.Message) (*coap.Message, *RequestBinding, error) {
	inner, outer, err := splitOptions(req.Options)
	if err != nil {
		return nil, nil, err
	}
	plaintext, err := encodePlaintext(req.Code, inner, req.Payload)
	if err != nil {
		return nil, nil, err
	}

	sealed, err := c.Protect(nil, plaintext, nil)
	if err != nil {
		return nil, nil, err
	}

	binding := sealed.Binding
	return protectMessage(req, outer, OuterRequestCode, sealed), &binding, nil
}

// UnprotectRequest verifies a protected request and restores the original
// message. The returned binding is used to protect the response.
func (c *SecurityContext) UnprotectRequest(msg *coap.Message) (*coap.Message, *RequestBinding, error) {
	option, err := oscoreOption(msg)
	if err != nil {
		return nil, nil, err
	}

	plaintext, binding, err := c.Unprotect(option, nil, msg.Payload, nil)
	if err != nil {
		return nil, nil, err
	}

	req, err := unprotectMessage(msg, plaintext)
	if err != nil {
		return nil, nil, err
	}
	return req, &binding, nil
}

// ProtectResponse protects a CoAP response to the request identified by
// binding. With fresh set the response uses a new sender partial IV;
// otherwise it reuses the request nonce and carries an empty OSCORE option.
func (c *SecurityContext) ProtectResponse(resp *coap.Message, binding *RequestBinding, fresh bool) (*coap.Message, error) {
	if binding == nil {
		return nil, ErrMissingIdentity
	}

	inner, outer, err := splitOptions(resp.Options)
	if err != nil {
		return nil, err
	}
	plaintext, err := encodePlaintext(resp.Code, inner, resp.Payload)
	if err != nil {
		return nil, err
	}

	var sealed *Sealed
	if fresh {
		sealed, err = c.Protect(binding, plaintext, nil)
	} else {
		sealed, err = c.ProtectReusingNonce(binding, plaintext, nil)
	}
	if err != nil {
		return nil, err
	}

	return protectMessage(resp, outer, OuterResponseCode, sealed), nil
}

// UnprotectResponse verifies a protected response to the request identified
// by binding and restores the original message.
func (c *SecurityContext) UnprotectResponse(msg *coap.Message, binding *RequestBinding) (*coap.Message, error) {
	if binding == nil {
		return nil, ErrMissingIdentity
	}

	option, err := oscoreOption(msg)
	if err != nil {
		return nil, err
	}

	plaintext, _, err := c.Unprotect(option, binding, msg.Payload, nil)
	if err != nil {
		return nil, err
	}

	return unprotectMessage(msg, plaintext)
}
