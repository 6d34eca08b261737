package llm

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
)

const maxLineSize = 1024 * 1024

// readSSE calls fn for every data record of a server-sent event stream,
// with the most recent event name. It stops at "[DONE]" or end of input.
func readSSE(ctx context.Context, r io.Reader, fn func(event, data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var event string
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		switch {
		case line == "":
			event = ""
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return nil
			}
			if err := fn(event, data); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}

// readLines calls fn for every non-empty line (NDJSON framing).
func readLines(ctx context.Context, r io.Reader, fn func(line string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// jsonArrayDecoder splits a streamed JSON array of objects into its
// elements as they complete, using brace matching rather than a full
// decoder so elements can be handled before the array closes.
type jsonArrayDecoder struct {
	buf []byte
}

// Write appends raw bytes and returns every object completed by them.
func (d *jsonArrayDecoder) Write(p []byte) []string {
	d.buf = append(d.buf, p...)
	var objects []string
	for {
		// Separators and anything else between elements are skipped.
		start := bytes.IndexByte(d.buf, '{')
		if start < 0 {
			d.buf = d.buf[:0]
			return objects
		}
		s := string(d.buf[start:])
		end, ok := scanBalanced(s, 0)
		if !ok {
			d.buf = d.buf[start:]
			return objects
		}
		objects = append(objects, s[:end])
		d.buf = d.buf[start+end:]
	}
}

// readJSONArray streams r through a jsonArrayDecoder.
func readJSONArray(ctx context.Context, r io.Reader, fn func(object string) error) error {
	var dec jsonArrayDecoder
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			for _, obj := range dec.Write(buf[:n]) {
				if ferr := fn(obj); ferr != nil {
					return ferr
				}
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
