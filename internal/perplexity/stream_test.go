package perplexity

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func sseBody(blocks ...string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(strings.Join(blocks, "\r\n\r\n") + "\r\n\r\n"))
}

func msgBlock(payload string) string {
	return "event: message\r\ndata: " + payload
}

func TestDecoder_StreamingOrder(t *testing.T) {
	body := sseBody(
		msgBlock(`{"step_type":"INITIAL_QUERY","n":1}`),
		msgBlock(`{"step_type":"FINAL","n":2}`),
		"event: end_of_stream",
	)
	d := newDecoder(body, false)
	first, ok := d.next()
	if !ok || first.StepType() != "INITIAL_QUERY" {
		t.Fatalf("unexpected first record: %v, ok: %v", first, ok)
	}
	second, ok := d.next()
	if !ok || second.StepType() != "FINAL" {
		t.Fatalf("unexpected second record: %v, ok: %v", second, ok)
	}
	if rec, ok := d.next(); ok {
		t.Fatalf("expected stream to be done, got: %v", rec)
	}
}

func TestDecoder_StopsReadingAfterEndOfStream(t *testing.T) {
	body := sseBody(
		msgBlock(`{"n":1}`),
		"event: end_of_stream",
		msgBlock(`{"n":2}`),
	)
	d := newDecoder(body, false)
	if _, ok := d.next(); !ok {
		t.Fatal("expected one record before end_of_stream")
	}
	if rec, ok := d.next(); ok {
		t.Fatalf("expected no records after end_of_stream, got: %v", rec)
	}
	if rec, ok := d.next(); ok {
		t.Fatalf("decoder resumed reading after done, got: %v", rec)
	}
}

func TestCollectLast_ReturnsMostRecentRecord(t *testing.T) {
	res := &http.Response{Body: sseBody(
		msgBlock(`{"step_type":"SEARCH_WEB"}`),
		msgBlock(`{"step_type":"FINAL"}`),
		"event: end_of_stream",
	)}
	rec := collectLast(res, false)
	if rec.StepType() != "FINAL" {
		t.Fatalf("expected last record, got: %v", rec)
	}
}

func TestCollectLast_EOFWithoutEndOfStream(t *testing.T) {
	// A connection which dies before end_of_stream still yields what arrived
	res := &http.Response{Body: sseBody(msgBlock(`{"step_type":"FINAL"}`))}
	rec := collectLast(res, false)
	if rec.StepType() != "FINAL" {
		t.Fatalf("expected the buffered record, got: %v", rec)
	}
}

func TestCollectLast_EmptyStream(t *testing.T) {
	res := &http.Response{Body: io.NopCloser(strings.NewReader(""))}
	rec := collectLast(res, false)
	if rec == nil || len(rec) != 0 {
		t.Fatalf("expected empty record, got: %v", rec)
	}
}

func TestDecodeBlock_SkipsMalformedFrames(t *testing.T) {
	// Invalid JSON payload
	if _, kind := decodeBlock([]byte(msgBlock("not-json")), false); kind != blockSkipped {
		t.Fatalf("expected skip for invalid JSON, got kind: %v", kind)
	}
	// Invalid UTF-8
	if _, kind := decodeBlock([]byte{0xff, 0xfe, 0xfd}, false); kind != blockSkipped {
		t.Fatalf("expected skip for invalid UTF-8, got kind: %v", kind)
	}
	// Unknown event kind
	if _, kind := decodeBlock([]byte("event: ping"), false); kind != blockSkipped {
		t.Fatalf("expected skip for unknown event, got kind: %v", kind)
	}
}

func TestDecodeBlock_SkippedFramesDoNotAbortStream(t *testing.T) {
	body := sseBody(
		msgBlock("garbage"),
		msgBlock(`{"step_type":"FINAL"}`),
		"event: end_of_stream",
	)
	d := newDecoder(body, false)
	rec, ok := d.next()
	if !ok || rec.StepType() != "FINAL" {
		t.Fatalf("expected the valid record despite a bad frame, got: %v, ok: %v", rec, ok)
	}
}

func TestDecodeBlock_DoubleEncodedText(t *testing.T) {
	rec, kind := decodeBlock([]byte(msgBlock(`{"text":"[{\"step_type\":\"FINAL\"}]"}`)), false)
	if kind != blockMessage {
		t.Fatalf("expected message, got kind: %v", kind)
	}
	steps, ok := rec["text"].([]any)
	if !ok || len(steps) != 1 {
		t.Fatalf("expected inner JSON to be decoded, got: %T %v", rec["text"], rec["text"])
	}
}

func TestDecodeBlock_TextDecodeFallsBackToRaw(t *testing.T) {
	rec, kind := decodeBlock([]byte(msgBlock(`{"text":"plain answer"}`)), false)
	if kind != blockMessage {
		t.Fatalf("expected message, got kind: %v", kind)
	}
	if got := rec["text"]; got != "plain answer" {
		t.Fatalf("expected raw string fallback, got: %T %v", got, got)
	}
}

func TestSplitBlocks_PartialData(t *testing.T) {
	advance, token, err := splitBlocks([]byte("event: mess"), false)
	if advance != 0 || token != nil || err != nil {
		t.Fatalf("expected request for more data, got: %v %q %v", advance, token, err)
	}
	advance, token, err = splitBlocks([]byte("a\r\n\r\nb"), false)
	if advance != 5 || string(token) != "a" || err != nil {
		t.Fatalf("unexpected split: %v %q %v", advance, token, err)
	}
	advance, token, err = splitBlocks([]byte("tail"), true)
	if advance != 4 || string(token) != "tail" || err != nil {
		t.Fatalf("unexpected EOF handling: %v %q %v", advance, token, err)
	}
}

func TestStreamSteps_ReleasesBodyOnAbandonedConsumption(t *testing.T) {
	closed := make(chan struct{})
	pr, pw := io.Pipe()
	res := &http.Response{Body: notifyCloser{ReadCloser: pr, closed: closed}}
	c := &Client{}
	ctx, cancel := context.WithCancel(context.Background())

	out := c.streamSteps(ctx, res)
	pw.Write([]byte(msgBlock(`{"step_type":"SEARCH_WEB"}`) + "\r\n\r\n"))
	select {
	case <-out:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for first record")
	}

	cancel()
	pw.Write([]byte(msgBlock(`{"step_type":"FINAL"}`) + "\r\n\r\n"))
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("body was not closed after context cancellation")
	}
}

type notifyCloser struct {
	io.ReadCloser
	closed chan struct{}
}

func (n notifyCloser) Close() error {
	err := n.ReadCloser.Close()
	close(n.closed)
	return err
}
