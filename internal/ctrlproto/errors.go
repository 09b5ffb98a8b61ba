// Package ctrlproto implements the wire encoding of the local control
// protocol used to administer the advertised prefixes and recursive DNS
// servers: length-prefixed frames carrying discriminated, little-endian
// request and response bodies.
package ctrlproto

import "github.com/AdguardTeam/golibs/errors"

// ErrEOF is returned when a frame or payload ends before a fixed-size field
// or discriminator can be read, and when a discriminator is not recognized.
// The protocol treats all such failures as one generic parse error, closing
// the offending connection.
const ErrEOF errors.Error = "ctrlproto: unexpected end of payload"
