// Package json provides JSON serialization backed by goccy/go-json, with a
// streaming encoder for line-delimited or array output.
package json

import (
	"io"

	gojson "github.com/goccy/go-json"
)

// Marshal is a drop-in replacement for json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent is a drop-in replacement for json.MarshalIndent
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// NewDecoder returns a streaming decoder reading from r.
func NewDecoder(r io.Reader) *gojson.Decoder {
	return gojson.NewDecoder(r)
}

// StreamingEncoder writes a sequence of values either as JSON lines or as
// one JSON array.
type StreamingEncoder struct {
	writer      io.Writer
	encoder     *gojson.Encoder
	firstRecord bool
	isArray     bool
	pretty      bool
	count       int
	err         error
}

// NewStreamingEncoder creates a new streaming encoder. With isArray unset
// every value is written on its own line.
func NewStreamingEncoder(w io.Writer, isArray bool) *StreamingEncoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)

	return &StreamingEncoder{
		writer:      w,
		encoder:     enc,
		firstRecord: true,
		isArray:     isArray,
	}
}

// SetPretty enables pretty printing
func (se *StreamingEncoder) SetPretty(pretty bool, indent string) {
	se.pretty = pretty
	if pretty {
		se.encoder.SetIndent("", indent)
	} else {
		se.encoder.SetIndent("", "")
	}
}

// Encode encodes a single value. After the first error every call returns
// that error.
func (se *StreamingEncoder) Encode(v interface{}) error {
	if se.err != nil {
		return se.err
	}

	if se.isArray {
		sep := []byte{','}
		if se.firstRecord {
			sep = []byte{'['}
		}
		if se.err = se.write(sep); se.err != nil {
			return se.err
		}
		se.firstRecord = false
	}

	if se.err = se.encoder.Encode(v); se.err != nil {
		return se.err
	}
	se.count++
	return nil
}

// Count returns the number of values encoded.
func (se *StreamingEncoder) Count() int {
	return se.count
}

// Close terminates the array, if any. It does not close the writer.
func (se *StreamingEncoder) Close() error {
	if se.err != nil {
		return se.err
	}
	if !se.isArray {
		return nil
	}
	closing := []byte{']', '\n'}
	if se.firstRecord {
		closing = []byte{'[', ']', '\n'}
	}
	se.err = se.write(closing)
	return se.err
}

func (se *StreamingEncoder) write(p []byte) error {
	_, err := se.writer.Write(p)
	return err
}
