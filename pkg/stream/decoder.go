package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Prefix marks an event line. Anything else on the wire is framing noise.
const Prefix = "data: "

// DefaultReadSize is the buffer handed to each Read call.
const DefaultReadSize = 4096

// ErrStop may be returned from a Read callback to end consumption early.
var ErrStop = errors.New("stream: stop")

// Decoder turns arbitrary byte chunks into events. A line split across
// chunks is buffered until its newline arrives.
type Decoder struct {
	Logger *slog.Logger

	buf      []byte
	received int64
	skipped  int
}

func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{Logger: logger}
}

// Feed consumes one chunk and returns the events completed by it, in
// wire order.
func (d *Decoder) Feed(chunk []byte) []Event {
	d.received += int64(len(chunk))
	d.buf = append(d.buf, chunk...)

	var events []Event
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := d.buf[:i]
		d.buf = d.buf[i+1:]
		if ev, ok := d.parseLine(line); ok {
			events = append(events, ev)
		}
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return events
}

func (d *Decoder) parseLine(line []byte) (Event, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, []byte(Prefix)) {
		return Event{}, false
	}
	payload := line[len(Prefix):]

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		d.skipped++
		d.Logger.Debug("Skipping malformed event line", "line", string(line), "error", err)
		return Event{}, false
	}
	if !ev.Type.valid() {
		d.skipped++
		d.Logger.Debug("Skipping event with unknown type", "type", string(ev.Type))
		return Event{}, false
	}
	return ev, true
}

// Received is the total number of bytes fed so far.
func (d *Decoder) Received() int64 { return d.received }

// Skipped counts lines that carried the prefix but did not decode.
func (d *Decoder) Skipped() int { return d.skipped }

// Pending is the size of the buffered, not yet terminated fragment.
func (d *Decoder) Pending() int { return len(d.buf) }

// Result summarizes one consumed stream.
type Result struct {
	Bytes    int64
	Events   int
	Skipped  int
	Terminal bool
}

// Read pulls r to EOF, calling fn for every decoded event. When fn
// returns ErrStop, Read returns immediately with a nil error.
func Read(ctx context.Context, r io.Reader, logger *slog.Logger, fn func(Event) error) (Result, error) {
	return ReadSize(ctx, r, DefaultReadSize, logger, fn)
}

// ReadSize is Read with an explicit per-call buffer size.
func ReadSize(ctx context.Context, r io.Reader, size int, logger *slog.Logger, fn func(Event) error) (Result, error) {
	if size <= 0 {
		size = DefaultReadSize
	}
	dec := NewDecoder(logger)
	buf := make([]byte, size)
	var res Result

	snapshot := func() Result {
		res.Bytes = dec.Received()
		res.Skipped = dec.Skipped()
		return res
	}

	for {
		if err := ctx.Err(); err != nil {
			return snapshot(), err
		}

		n, err := r.Read(buf)
		if n > 0 {
			for _, ev := range dec.Feed(buf[:n]) {
				res.Events++
				if ev.Terminal() {
					res.Terminal = true
				}
				if cbErr := fn(ev); cbErr != nil {
					if errors.Is(cbErr, ErrStop) {
						return snapshot(), nil
					}
					return snapshot(), cbErr
				}
			}
		}

		if errors.Is(err, io.EOF) {
			if dec.Pending() > 0 {
				dec.Logger.Debug("Discarding unterminated trailing fragment", "bytes", dec.Pending())
			}
			return snapshot(), nil
		}
		if err != nil {
			return snapshot(), fmt.Errorf("failed to read stream: %w", err)
		}
	}
}
