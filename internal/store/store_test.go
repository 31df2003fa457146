package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("facereel_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close(ctx)

	// --- Test Scenarios ---

	if err := s.EnsureVideo(ctx, "vid_a", "/tmp/a.mp4"); err != nil {
		t.Fatalf("EnsureVideo failed: %v", err)
	}
	for i, span := range [][2]int{{30, 59}, {120, 180}} {
		_, err := s.InsertSegment(ctx, SegmentRow{
			VideoID:    "vid_a",
			Ordinal:    i + 1,
			StartTime:  float64(span[0]) / 30,
			EndTime:    float64(span[1]) / 30,
			FirstFrame: span[0],
			LastFrame:  span[1],
			Frames:     span[1] - span[0] + 1,
			OutputPath: fmt.Sprintf("/out/segment_%d.mp4", i+1),
			Reference:  "/ref.jpg",
		})
		if err != nil {
			t.Fatalf("InsertSegment failed: %v", err)
		}
	}

	if err := s.EnsureVideo(ctx, "vid_b", "/tmp/b.mp4"); err != nil {
		t.Fatalf("EnsureVideo failed: %v", err)
	}
	if _, err := s.InsertSegment(ctx, SegmentRow{VideoID: "vid_b", Ordinal: 1, OutputPath: "/out/b.mp4"}); err != nil {
		t.Fatalf("InsertSegment failed: %v", err)
	}

	rows, err := s.ListSegments(ctx, "vid_a")
	if err != nil {
		t.Fatalf("ListSegments failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 segments for vid_a, got %d", len(rows))
	}
	if rows[0].Ordinal != 1 || rows[0].FirstFrame != 30 || rows[0].Frames != 30 {
		t.Errorf("Unexpected first row: %+v", rows[0])
	}
	if rows[1].VideoPath != "/tmp/a.mp4" {
		t.Errorf("Expected joined video path, got %q", rows[1].VideoPath)
	}

	all, err := s.ListSegments(ctx, "")
	if err != nil {
		t.Fatalf("ListSegments(all) failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 segments overall, got %d", len(all))
	}

	// Re-running a video replaces its rows (idempotency)
	if err := s.EnsureVideo(ctx, "vid_a", "/tmp/a.mp4"); err != nil {
		t.Fatalf("EnsureVideo rerun failed: %v", err)
	}
	rows, _ = s.ListSegments(ctx, "vid_a")
	if len(rows) != 0 {
		t.Errorf("Expected previous segments to be cleared, got %d", len(rows))
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, err := s.ListSegments(ctx, ""); err == nil {
		t.Error("Expected query to fail after tables were dropped")
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
