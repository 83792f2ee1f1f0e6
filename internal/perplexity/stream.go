package perplexity

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
)

// The response body is framed as text blocks separated by a blank line, each
// block tagged with an event kind.
var blockDelimiter = []byte("\r\n\r\n")

const (
	messagePrefix     = "event: message\r\ndata: "
	endOfStreamPrefix = "event: end_of_stream"
)

// StepRecord is one unit of the answer engine's multi-stage process. The
// payload shape is owned by the upstream service and interpreted by callers,
// not here.
type StepRecord map[string]any

// StepType returns the server-defined tag of the step, such as
// INITIAL_QUERY, SEARCH_WEB, SEARCH_RESULTS or FINAL.
func (r StepRecord) StepType() string {
	s, _ := r["step_type"].(string)
	return s
}

// BackendUUID returns the server-side conversation id, used to link a
// follow-up query to this one.
func (r StepRecord) BackendUUID() string {
	s, _ := r["backend_uuid"].(string)
	return s
}

// splitBlocks is a bufio.SplitFunc cutting the body at each block delimiter.
// A trailing partial block at EOF is emitted as-is.
func splitBlocks(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.Index(data, blockDelimiter); i >= 0 {
		return i + len(blockDelimiter), data[:i], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

type blockKind int

const (
	blockSkipped blockKind = iota
	blockMessage
	blockEndOfStream
)

// decodeBlock classifies a single block. Malformed blocks are skipped rather
// than failing the stream: the service occasionally interleaves frames this
// client has no business understanding, and one bad frame must not cost the
// caller the rest of the answer.
func decodeBlock(block []byte, debug bool) (StepRecord, blockKind) {
	if !utf8.Valid(block) {
		return nil, blockSkipped
	}
	content := string(block)
	if strings.HasPrefix(content, endOfStreamPrefix) {
		return nil, blockEndOfStream
	}
	if !strings.HasPrefix(content, messagePrefix) {
		return nil, blockSkipped
	}
	var rec StepRecord
	if err := json.Unmarshal([]byte(content[len(messagePrefix):]), &rec); err != nil {
		if debug {
			ancli.PrintWarn(fmt.Sprintf("skipping undecodable message block: %v\n", err))
		}
		return nil, blockSkipped
	}
	// The service double-encodes the text field. Decode the inner JSON when
	// possible, keep the raw string when not.
	if text, ok := rec["text"].(string); ok && text != "" {
		var inner any
		if err := json.Unmarshal([]byte(text), &inner); err == nil {
			rec["text"] = inner
		}
	}
	return rec, blockMessage
}

// decoder turns a delimited byte stream into an ordered sequence of step
// records. It is single-use and not safe for concurrent consumption.
type decoder struct {
	sc    *bufio.Scanner
	done  bool
	debug bool
}

func newDecoder(r io.Reader, debug bool) *decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	sc.Split(splitBlocks)
	return &decoder{sc: sc, debug: debug}
}

// next returns the next step record. ok is false once an end_of_stream block
// arrives or the connection ends, whichever comes first.
func (d *decoder) next() (StepRecord, bool) {
	for !d.done && d.sc.Scan() {
		rec, kind := decodeBlock(d.sc.Bytes(), d.debug)
		switch kind {
		case blockEndOfStream:
			d.done = true
			return nil, false
		case blockMessage:
			return rec, true
		}
	}
	return nil, false
}

// streamSteps exposes the decoder as a lazy channel of step records. The
// producer goroutine owns the response body and closes it when the stream
// completes or the context is cancelled, so an abandoned consumer does not
// leak the connection.
func (c *Client) streamSteps(ctx context.Context, res *http.Response) <-chan StepRecord {
	out := make(chan StepRecord)
	go func() {
		defer func() {
			res.Body.Close()
			close(out)
		}()
		d := newDecoder(res.Body, c.debug)
		for {
			rec, ok := d.next()
			if !ok {
				return
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// collectLast drives the decoder to completion and returns the most recent
// record. Later steps subsume earlier ones upstream, so the final state of
// the answer is the last record, not a join of all of them.
func collectLast(res *http.Response, debug bool) StepRecord {
	defer res.Body.Close()
	d := newDecoder(res.Body, debug)
	last := StepRecord{}
	for {
		rec, ok := d.next()
		if !ok {
			return last
		}
		last = rec
	}
}
