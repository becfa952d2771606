package oscore

import (
	"github.com/fxamacker/cbor/v2"
)

// encMode serializes the COSE and HKDF structures. Core deterministic
// encoding gives shortest-form integers and definite lengths; nil byte
// slices encode as empty byte strings so an empty ID is always h''.
var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.NilContainers = cbor.NilContainerAsEmpty
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}
