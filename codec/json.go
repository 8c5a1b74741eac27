package codec

import "encoding/json"

// JSON is the standard-library JSON codec.
//
// Evaluation programs written in other languages usually only need a plain
// JSON parser, so both codecs produce the same documents. NaN cannot be
// represented; missing values travel as null.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (JSON) Name() string { return "json" }

// Default is the codec used when none is configured.
var Default Codec = GoJSON{}
