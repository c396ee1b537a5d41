package protocol

import "fmt"

const maxRawInError = 120

// DecodeError reports an inbound frame that is not valid structured data.
// The frame is dropped; the session keeps running.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame %q: %v", truncate(e.Raw, maxRawInError), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PayloadDecodeError reports a tool response that matched the tuple shape
// but whose inner payload did not parse.
type PayloadDecodeError struct {
	Payload string
	Err     error
}

func (e *PayloadDecodeError) Error() string {
	return fmt.Sprintf("decode tool payload %q: %v", truncate(e.Payload, maxRawInError), e.Err)
}

func (e *PayloadDecodeError) Unwrap() error { return e.Err }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
