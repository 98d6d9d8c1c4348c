// Package wire implements the four-message envelope of the confidential
// channel protocol (KeyRequest, KeyResponse, Request, Response). The field
// layout is fixed by the protocol; the binary framing below is this
// repository's implementation choice (the protocol's FlatBuffers-shaped
// schema dictates semantics, not bytes on the wire).
package wire
