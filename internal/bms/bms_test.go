package bms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

func TestCreateJobRejectsNegativeWorkerCount(t *testing.T) {
	c := New("http://unused")
	_, err := c.CreateJob(context.Background(), "http://example.com/piece", -1, nil)
	if err == nil {
		t.Fatal("want error for negative worker_count")
	}
}

func TestCreateJobSuccess(t *testing.T) {
	jobID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jobs" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req CreateJobRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.RoutingKey != routingKey {
			t.Errorf("want routing_key %q, got %q", routingKey, req.RoutingKey)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(BmsJob{
			ID:         jobID,
			Status:     "Pending",
			URL:        req.URL,
			RoutingKey: req.RoutingKey,
		})
	}))
	defer server.Close()

	c := New(server.URL)
	job, err := c.CreateJob(context.Background(), "http://example.com/piece", 10, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID != jobID || job.Status != "Pending" {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestCreateJobFailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	}))
	defer server.Close()

	c := New(server.URL)
	_, err := c.CreateJob(context.Background(), "http://example.com/piece", 10, nil)
	if err == nil {
		t.Fatal("want error for non-success status")
	}
}

func TestGetJobSuccess(t *testing.T) {
	jobID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		speed := 12.5
		_ = json.NewEncoder(w).Encode(BmsJobResponse{
			ID:         jobID,
			Status:     "Completed",
			URL:        "http://example.com/piece",
			RoutingKey: routingKey,
			SubJobs: &[]SubJob{
				{ID: uuid.New(), Status: "Completed", WorkerData: &[]WorkerData{
					{Download: &DownloadResult{DownloadSpeed: &speed}},
				}},
			},
		})
	}))
	defer server.Close()

	c := New(server.URL)
	job, err := c.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != "Completed" {
		t.Fatalf("want Completed, got %s", job.Status)
	}
	if job.SubJobs == nil || len(*job.SubJobs) != 1 {
		t.Fatalf("want 1 sub job, got %+v", job.SubJobs)
	}
}

func TestIsJobFinished(t *testing.T) {
	cases := map[string]bool{
		"Completed": true,
		"Failed":    true,
		"Cancelled": true,
		"Pending":   false,
		"Running":   false,
	}
	for status, want := range cases {
		if got := IsJobFinished(status); got != want {
			t.Errorf("IsJobFinished(%q) = %v, want %v", status, got, want)
		}
	}
}
