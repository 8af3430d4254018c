package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"
)

// Replay feeds events from a JSONL audit log in r to w. A speed > 0 paces
// events by their recorded timestamps divided by speed; speed <= 0 inserts
// no delay. It returns the number of events written.
func Replay(ctx context.Context, r io.Reader, w Writer, speed float64) (int, error) {
	dec := json.NewDecoder(r)
	var prev time.Time
	n := 0
	for {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		if !prev.IsZero() && speed > 0 {
			diff := time.Duration(float64(ev.Timestamp.Sub(prev)) / speed)
			if diff > 0 {
				select {
				case <-time.After(diff):
				case <-ctx.Done():
					return n, ctx.Err()
				}
			}
		}
		if err := w.Write(ctx, ev); err != nil {
			return n, err
		}
		n++
		prev = ev.Timestamp
	}
}

// ReplayFile opens path and replays its events.
func ReplayFile(ctx context.Context, path string, w Writer, speed float64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return Replay(ctx, f, w, speed)
}
