package picker

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	ErrDecode         = errors.New("options payload is not a JSON array")
	ErrEmptySelection = errors.New("no options to select from")
)

// Options is the ordered list of candidate values from one inbound message.
type Options []json.RawMessage

// Decode parses a message payload into Options.
// Anything other than a JSON array, including null, is rejected with ErrDecode.
// So is a payload that is not valid UTF-8, since options are echoed back in text frames.
func Decode(payload []byte) (Options, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrDecode
	}
	if !utf8.Valid(trimmed) {
		return nil, fmt.Errorf("%w: invalid UTF-8", ErrDecode)
	}

	var opts Options
	if err := json.Unmarshal(trimmed, &opts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return opts, nil
}

// Encode serializes a single option for the wire in compact form.
func Encode(option json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, option); err != nil {
		return nil, fmt.Errorf("failed to encode option: %w", err)
	}
	return buf.Bytes(), nil
}
