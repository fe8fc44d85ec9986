// Package web contains a small web framework extension over the standard
// library mux.
package web

// Encoder defines behavior that can encode a data model and provide
// the content type for that encoding.
type Encoder interface {
	Encode() (data []byte, contentType string, err error)
}
