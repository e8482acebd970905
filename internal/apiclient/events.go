package apiclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"pkt.systems/notesync/internal/version"
	"pkt.systems/notesync/schema"
)

// Follow streams document change events from GET /api/events and calls fn
// for each one until ctx is done or the server closes the stream. after
// resumes from a known sequence number; zero starts with live events only.
// It returns the last sequence number seen.
func (c *Client) Follow(ctx context.Context, after uint64, fn func(schema.DocumentEvent)) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String()+"/api/events", nil)
	if err != nil {
		return after, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("User-Agent", version.UserAgent())
	if after > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatUint(after, 10))
	}
	// The stream outlives any per-request timeout.
	stream := &http.Client{Transport: c.client.Transport}
	resp, err := stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return after, nil
		}
		return after, wrap(schema.ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return after, wrap(schema.ErrFetch, &statusError{code: resp.StatusCode})
	}
	c.log.Debug("remote stream opened", "after", after)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var event schema.DocumentEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			c.log.Warn("remote stream event invalid", "err", err)
			continue
		}
		if event.Seq > after {
			after = event.Seq
		}
		fn(event)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return after, wrap(schema.ErrFetch, err)
	}
	c.log.Debug("remote stream closed", "last", after)
	return after, nil
}
