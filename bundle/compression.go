package bundle

import "bytes"

// compression is the set of archive transports a bundle's tar stream
// may be wrapped in, sniffed from the leading bytes the way the
// teacher's layer fetcher guesses an OCI layer's media type.
type compression int

const (
	cmpNone compression = iota
	cmpGzip
	cmpZstd
	cmpXz
)

var cmpHeaders = [...][]byte{
	cmpGzip: {0x1F, 0x8B, 0x08},
	cmpZstd: {0x28, 0xB5, 0x2F, 0xFD},
	cmpXz:   {0xFD, '7', 'z', 'X', 'Z', 0x00},
}

func detectCompression(b []byte) compression {
	for c := cmpGzip; c <= cmpXz; c++ {
		h := cmpHeaders[c]
		if len(b) < len(h) {
			continue
		}
		if bytes.Equal(h, b[:len(h)]) {
			return c
		}
	}
	return cmpNone
}
