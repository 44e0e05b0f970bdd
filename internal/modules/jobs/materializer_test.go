package jobs

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	pkgredis "github.com/shareloom/core/internal/pkg/redis"
	"github.com/shareloom/core/internal/pkg/taskqueue"
)

func TestQueuedMaterializerEnqueues(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	q := taskqueue.New(pkgredis.Wrap(rdb))
	ctx := context.Background()

	m := NewQueuedMaterializer(q)
	jobID, err := m.Materialize(ctx, TypeImage, FilePayload{
		SourcePath: "/tmp/a.png", ActorID: "u", ContentID: "c",
	})
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}

	job, found, err := q.Status(ctx, jobID)
	if err != nil || !found {
		t.Fatalf("status: %v found=%v", err, found)
	}
	if job.State != taskqueue.StateQueued || job.Type != TypeImage {
		t.Fatalf("job=%+v, want queued image job", job)
	}
}

func TestSyncMaterializerRunsInline(t *testing.T) {
	db := jobsTestDB(t)
	content := seedJobContent(t, db)
	store := newFakeStore()

	m := NewSyncMaterializer(map[string]Handler{
		TypePDF: NewPDFHandler(db, store),
	})

	path := writeTemp(t, "doc.pdf", []byte("%PDF-1.5"))
	jobID, err := m.Materialize(context.Background(), TypePDF, FilePayload{
		SourcePath: path, ActorID: "u", ContentID: content.ID,
	})
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if jobID == "" {
		t.Fatal("sync materializer must still mint a job id")
	}
	if store.puts != 1 {
		t.Fatalf("puts=%d, the upload must happen before return", store.puts)
	}
}

func TestSyncMaterializerUnknownType(t *testing.T) {
	m := NewSyncMaterializer(map[string]Handler{})
	if _, err := m.Materialize(context.Background(), "video", FilePayload{SourcePath: "/x", ContentID: "c"}); err == nil {
		t.Fatal("unknown job type must error")
	}
}
