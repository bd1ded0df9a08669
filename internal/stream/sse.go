package stream

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent is a single server-sent event: the "event:" field (may be empty)
// and the joined "data:" payload.
type sseEvent struct {
	Type string
	Data string
}

// sseScanner reads server-sent events from a stream body. Events are
// delimited by blank lines; comment lines and unknown fields are skipped.
type sseScanner struct {
	reader  *bufio.Reader
	current sseEvent
	err     error
}

func newSSEScanner(reader io.Reader) *sseScanner {
	return &sseScanner{reader: bufio.NewReaderSize(reader, 64*1024)}
}

// Next advances to the next event, returning false at EOF or on error.
func (scanner *sseScanner) Next() bool {
	if scanner.err != nil {
		return false
	}
	scanner.current = sseEvent{}

	var dataLines []string
	var eventType string

	for {
		line, err := scanner.reader.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF && len(dataLines) > 0 {
				scanner.current = sseEvent{Type: eventType, Data: strings.Join(dataLines, "\n")}
				scanner.err = io.EOF
				return true
			}
			if err != io.EOF {
				scanner.err = err
			} else {
				scanner.err = io.EOF
			}
			return false
		}

		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if len(dataLines) > 0 {
				scanner.current = sseEvent{Type: eventType, Data: strings.Join(dataLines, "\n")}
				return true
			}
			eventType = ""
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, hasColon := strings.Cut(line, ":")
		if hasColon {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "data":
			dataLines = append(dataLines, value)
		case "event":
			eventType = value
		}
	}
}

func (scanner *sseScanner) Event() sseEvent {
	return scanner.current
}

// Err returns the terminal error, or nil when the stream ended cleanly.
func (scanner *sseScanner) Err() error {
	if scanner.err == io.EOF {
		return nil
	}
	return scanner.err
}
