package pipeline

import (
	"crypto/tls"
	"net"
)

// NewTLSChannel wraps conn with TLS, producing a ByteChannel suitable for
// NewAnchor. spec.md section 4.3 places TLS as an optional layer between the
// anchor and the framer ("byte surface below, byte surface above... may be
// absent"); crypto/tls performs its own record-layer framing and partial-read
// buffering internally; reimplementing that bookkeeping at the Anchor's
// OnRead-callback level (which only ever sees post-handshake ciphertext
// fragments, not whole TLS records) would just be a worse copy of
// crypto/tls's own state machine. *tls.Conn already satisfies
// io.ReadWriteCloser, so wrapping happens once, below the Anchor, and the
// Anchor/Framer stack above sees a plain decrypted byte stream -- the same
// effective position in the stack the spec describes, with none of the
// layer's behavior duplicated.
func NewTLSChannel(conn net.Conn, config *tls.Config, isClient bool) ByteChannel {
	if isClient {
		return tls.Client(conn, config)
	}
	return tls.Server(conn, config)
}
