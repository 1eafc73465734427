// Package bms talks to the external bandwidth measurement service: it
// creates download/ping/head benchmark jobs for a provider URL and polls
// them to completion.
package bms

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fidlabs/piece-sentinel/httpclient"
)

const routingKey = "us_east"

// Aggressive timeouts: fail fast on gateway timeouts rather than pile up
// retries against a struggling measurement service.
const (
	connectTimeout = 5 * time.Second
	requestTimeout = 30 * time.Second
	maxRetries     = 1
)

// CreateJobRequest is the body posted to create a new benchmark job.
type CreateJobRequest struct {
	URL         string  `json:"url"`
	RoutingKey  string  `json:"routing_key"`
	WorkerCount int64   `json:"worker_count"`
	Entity      *string `json:"entity,omitempty"`
}

// BmsJob is the response to a job creation request.
type BmsJob struct {
	ID         uuid.UUID `json:"id"`
	Status     string    `json:"status"`
	URL        string    `json:"url"`
	RoutingKey string    `json:"routing_key"`
}

// BmsJobDetails carries the worker/size parameters of a job.
type BmsJobDetails struct {
	WorkerCount *int64 `json:"worker_count"`
	SizeMB      *int64 `json:"size_mb"`
}

// DownloadResult is one worker's download benchmark outcome.
type DownloadResult struct {
	DownloadSpeed     *float64 `json:"download_speed"`
	TimeToFirstByteMs *float64 `json:"time_to_first_byte_ms"`
	TotalBytes        *int64   `json:"total_bytes"`
	ElapsedSecs       *float64 `json:"elapsed_secs"`
}

// PingResult is one worker's ICMP ping benchmark outcome.
type PingResult struct {
	Avg *float64 `json:"avg"`
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

// HeadResult is one worker's HTTP HEAD latency benchmark outcome.
type HeadResult struct {
	Avg *float64 `json:"avg"`
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

// WorkerData bundles one worker's measurements across benchmark kinds.
type WorkerData struct {
	Download *DownloadResult `json:"download"`
	Ping     *PingResult     `json:"ping"`
	Head     *HeadResult     `json:"head"`
}

// SubJob is one worker's job within a fanned-out benchmark job.
type SubJob struct {
	ID         uuid.UUID     `json:"id"`
	Status     string        `json:"status"`
	WorkerData *[]WorkerData `json:"worker_data"`
}

// BmsJobResponse is the full job status payload, including sub-jobs once
// they have started reporting.
type BmsJobResponse struct {
	ID         uuid.UUID      `json:"id"`
	Status     string         `json:"status"`
	URL        string         `json:"url"`
	RoutingKey string         `json:"routing_key"`
	Details    *BmsJobDetails `json:"details"`
	SubJobs    *[]SubJob      `json:"sub_jobs"`
}

// Client creates and polls bandwidth measurement jobs.
type Client struct {
	http *httpclient.Client
}

// New builds a Client against baseURL with the aggressive fail-fast
// timeouts the measurement service's gateway requires.
func New(baseURL string, opts ...httpclient.Option) *Client {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = requestTimeout
	cfg.DialTimeout = connectTimeout

	retry := httpclient.DefaultRetryConfig()
	retry.MaxRetries = maxRetries
	retry.InitialInterval = time.Second
	retry.MaxInterval = 5 * time.Second

	base := append([]httpclient.Option{
		httpclient.WithBaseURL(baseURL),
		httpclient.WithServiceName("bms"),
		httpclient.WithConfig(cfg),
		httpclient.WithRetryConfig(retry),
	}, opts...)

	return &Client{http: httpclient.New(base...)}
}

// CreateJob submits a new benchmark job for url, fanned out across
// workerCount workers. entity, when non-nil, tags the job for grouping.
func (c *Client) CreateJob(ctx context.Context, url string, workerCount int64, entity *string) (BmsJob, error) {
	if workerCount < 0 {
		return BmsJob{}, fmt.Errorf("bms: worker_count must be non-negative, got %d", workerCount)
	}

	req := CreateJobRequest{
		URL:         url,
		RoutingKey:  routingKey,
		WorkerCount: workerCount,
		Entity:      entity,
	}

	var job BmsJob
	resp, err := c.http.Request("CreateJob").
		BodyJSON(req).
		Decode(&job).
		Post(ctx, "jobs")
	if err != nil {
		return BmsJob{}, fmt.Errorf("bms: create job request failed: %w", err)
	}
	if !resp.IsSuccess() {
		body, _ := resp.String()
		return BmsJob{}, fmt.Errorf("bms: create job failed: %d - %s", resp.StatusCode, body)
	}

	return job, nil
}

// GetJob fetches the current status of jobID, including any reported
// sub-job worker data.
func (c *Client) GetJob(ctx context.Context, jobID uuid.UUID) (BmsJobResponse, error) {
	var job BmsJobResponse
	resp, err := c.http.Request("GetJob").
		Decode(&job).
		Get(ctx, "jobs", jobID.String())
	if err != nil {
		return BmsJobResponse{}, fmt.Errorf("bms: get job request failed: %w", err)
	}
	if !resp.IsSuccess() {
		body, _ := resp.String()
		return BmsJobResponse{}, fmt.Errorf("bms: get job failed: %d - %s", resp.StatusCode, body)
	}

	return job, nil
}

// IsJobFinished reports whether status is a terminal job state.
func IsJobFinished(status string) bool {
	switch status {
	case "Completed", "Failed", "Cancelled":
		return true
	default:
		return false
	}
}
