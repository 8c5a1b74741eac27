// Package codec selects the encoding used on the black-box process wire.
//
// Evaluation programs receive a request document on stdin and answer with a
// response document on stdout. Both sides must agree on the codec; the name
// is passed to the program in the PARETODB_CODEC environment variable.
package codec

import (
	"errors"
	"fmt"
	"io"
)

// ErrUnknownCodec is returned by Lookup for names outside Names.
var ErrUnknownCodec = errors.New("unknown codec")

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// Names lists the built-in codecs.
var Names = []string{"json", "go-json"}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// Lookup is ByName with an error naming the rejected codec. The empty name
// selects Default.
func Lookup(name string) (Codec, error) {
	if name == "" {
		return Default, nil
	}
	c, ok := ByName(name)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownCodec, name)
	}
	return c, nil
}

// Encode writes v to w as one newline terminated document.
func Encode(w io.Writer, c Codec, v any) error {
	b, err := c.Marshal(v)
	if err != nil {
		return fmt.Errorf("codec %s: %w", c.Name(), err)
	}
	_, err = w.Write(append(b, '\n'))
	return err
}
