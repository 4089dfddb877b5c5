// Package awclient is a minimal ActivityWatch REST client covering what
// the importer needs: bucket bootstrap, event listing and batch insert.
package awclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"awical/internal/importer"
	appLog "awical/internal/log"
	"awical/internal/model"
)

const (
	DefaultURL = "http://127.0.0.1:5600"

	// BucketType is the event type of buckets created by the importer.
	BucketType = "calendar_data"
)

// Client talks to an aw-server instance.
type Client struct {
	baseURL    string
	clientName string
	hostname   string
	http       *http.Client
}

// New creates a client for baseURL. clientName and hostname are recorded
// on buckets created by EnsureBucket.
func New(baseURL, clientName, hostname string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		baseURL:    baseURL,
		clientName: clientName,
		hostname:   hostname,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// wireEvent is the aw-server JSON event shape. Duration is in seconds.
type wireEvent struct {
	Timestamp time.Time        `json:"timestamp"`
	Duration  float64          `json:"duration"`
	Data      model.RecordData `json:"data"`
}

type bucketInfo struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Client   string `json:"client"`
	Hostname string `json:"hostname"`
}

// EnsureBucket creates bucket if the server does not have it yet.
func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	var buckets map[string]bucketInfo
	if err := c.do(ctx, "get_buckets", bucket, http.MethodGet, "/api/0/buckets/", nil, &buckets); err != nil {
		return err
	}
	if _, ok := buckets[bucket]; ok {
		return nil
	}

	body := bucketInfo{ID: bucket, Type: BucketType, Client: c.clientName, Hostname: c.hostname}
	if err := c.do(ctx, "create_bucket", bucket, http.MethodPost, bucketPath(bucket), body, nil); err != nil {
		return err
	}
	appLog.Info("activitywatch bucket created", "bucket", bucket, "type", BucketType)
	return nil
}

// GetEvents returns all events in bucket.
func (c *Client) GetEvents(ctx context.Context, bucket string) ([]model.ActivityRecord, error) {
	var wire []wireEvent
	if err := c.do(ctx, "get_events", bucket, http.MethodGet, bucketPath(bucket)+"/events?limit=-1", nil, &wire); err != nil {
		return nil, err
	}
	out := make([]model.ActivityRecord, 0, len(wire))
	for _, w := range wire {
		out = append(out, model.ActivityRecord{
			Timestamp: w.Timestamp,
			Duration:  time.Duration(w.Duration * float64(time.Second)),
			Data:      w.Data,
		})
	}
	return out, nil
}

// InsertEvents posts records to bucket in one request.
func (c *Client) InsertEvents(ctx context.Context, bucket string, records []model.ActivityRecord) error {
	wire := make([]wireEvent, 0, len(records))
	for _, r := range records {
		wire = append(wire, wireEvent{
			Timestamp: r.Timestamp,
			Duration:  r.Duration.Seconds(),
			Data:      r.Data,
		})
	}
	return c.do(ctx, "insert_events", bucket, http.MethodPost, bucketPath(bucket)+"/events", wire, nil)
}

func bucketPath(bucket string) string {
	return "/api/0/buckets/" + url.PathEscape(bucket)
}

// do performs one request. Any network failure or non-2xx status is
// returned as *importer.TransportError.
func (c *Client) do(ctx context.Context, op, bucket, method, path string, in, out any) error {
	transportErr := func(err error) error {
		return &importer.TransportError{Op: op, Bucket: bucket, Err: err}
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return transportErr(err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return transportErr(fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return transportErr(fmt.Errorf("decode response: %w", err))
	}
	return nil
}
