package sources

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"ftmgraph/internal/etl"
)

// maxLineBytes bounds a single entity document.
const maxLineBytes = 64 << 20

// decodeEntity turns one JSON entity document into a record. Documents
// that do not decode to an object are carried as record errors so the
// engine can skip them.
func decodeEntity(raw []byte) etl.Record {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return etl.Record{Err: fmt.Errorf("decode entity: %w", err)}
	}
	if data == nil {
		return etl.Record{Err: errors.New("decode entity: not an object")}
	}
	return etl.Record{Data: data}
}

// streamLines sends one record per non-blank line of r. It returns
// ctx.Err() when cancelled and nil at EOF.
func streamLines(ctx context.Context, r io.Reader, out chan<- etl.Record) error {
	br := bufio.NewReaderSize(r, 1<<16)
	line := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := br.ReadBytes('\n')
		if len(raw) > 0 {
			line++
			raw = bytes.TrimSpace(raw)
			if len(raw) > maxLineBytes {
				rec := etl.Record{Err: fmt.Errorf("line %d: entity exceeds %d bytes", line, maxLineBytes)}
				if !send(ctx, out, rec) {
					return ctx.Err()
				}
			} else if len(raw) > 0 {
				rec := decodeEntity(raw)
				if rec.Err != nil {
					rec.Err = fmt.Errorf("line %d: %w", line, rec.Err)
				}
				if !send(ctx, out, rec) {
					return ctx.Err()
				}
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read line %d: %w", line+1, err)
		}
	}
}

func send(ctx context.Context, out chan<- etl.Record, rec etl.Record) bool {
	select {
	case out <- rec:
		return true
	case <-ctx.Done():
		return false
	}
}
