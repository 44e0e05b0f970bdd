package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/shareloom/core/internal/models"
	"github.com/shareloom/core/internal/pkg/apperr"
	"github.com/shareloom/core/internal/pkg/taskqueue"
)

type fakeStore struct {
	objects map[string][]byte
	puts    int
	fail    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if f.fail {
		return "", errors.New("store unavailable")
	}
	f.puts++
	f.objects[key] = body
	return f.PublicURL(key), nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeStore) Head(ctx context.Context, key string) (bool, error) {
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeStore) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

func jobsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.ContentModel{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedJobContent(t *testing.T, db *gorm.DB) *models.ContentModel {
	t.Helper()
	content := &models.ContentModel{
		AuthorID: "user-1",
		Title:    "doc",
		Hash:     models.SemanticHash("doc", "", nil),
	}
	if err := db.Create(content).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	return content
}

func makeJob(t *testing.T, jobType, contentID, sourcePath string) *taskqueue.Job {
	t.Helper()
	raw, err := json.Marshal(FilePayload{
		SourcePath: sourcePath,
		ActorID:    "user-1",
		ContentID:  contentID,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &taskqueue.Job{ID: "job-abc", Type: jobType, Payload: raw, AttemptsMade: 1, MaxAttempts: 3}
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	return path
}

func TestPDFBadMagicIsTerminal(t *testing.T) {
	db := jobsTestDB(t)
	content := seedJobContent(t, db)
	store := newFakeStore()
	h := NewPDFHandler(db, store)

	path := writeTemp(t, "fake.pdf", []byte("GIF89a not a pdf"))
	_, err := h.Handle(context.Background(), makeJob(t, TypePDF, content.ID, path))

	if apperr.CodeOf(err) != apperr.CodeTerminalJob {
		t.Fatalf("err=%v, want TERMINAL_JOB", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatal("temp file must be removed on terminal failure")
	}
	if store.puts != 0 {
		t.Fatalf("store.puts=%d, nothing must be uploaded", store.puts)
	}

	var row models.ContentModel
	if err := db.First(&row, "id = ?", content.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if row.AttachmentURL != "" {
		t.Fatalf("partial URL written: %q", row.AttachmentURL)
	}
}

func TestPDFHappyPath(t *testing.T) {
	db := jobsTestDB(t)
	content := seedJobContent(t, db)
	store := newFakeStore()
	h := NewPDFHandler(db, store)

	path := writeTemp(t, "real.pdf", []byte("%PDF-1.7 rest of file"))
	result, err := h.Handle(context.Background(), makeJob(t, TypePDF, content.ID, path))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	wantKey := fmt.Sprintf("content/%s/job-abc/document.pdf", content.ID)
	if _, ok := store.objects[wantKey]; !ok {
		t.Fatalf("document not uploaded under %s, have %v", wantKey, store.objects)
	}

	var row models.ContentModel
	if err := db.First(&row, "id = ?", content.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	wantURL := store.PublicURL(wantKey)
	if row.AttachmentURL != wantURL {
		t.Fatalf("attachment_url=%q, want %q", row.AttachmentURL, wantURL)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatal("temp file must be removed after success")
	}

	urls, ok := result.(map[string]string)
	if !ok || urls["attachment_url"] != wantURL {
		t.Fatalf("result=%v", result)
	}
}

func TestPDFRedeliveryAfterSuccessIsIdempotent(t *testing.T) {
	db := jobsTestDB(t)
	content := seedJobContent(t, db)
	store := newFakeStore()
	h := NewPDFHandler(db, store)
	ctx := context.Background()

	path := writeTemp(t, "real.pdf", []byte("%PDF-1.7"))
	job := makeJob(t, TypePDF, content.ID, path)
	if _, err := h.Handle(ctx, job); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	// redelivery: temp file is gone, the published URL must be reported
	job.AttemptsMade = 2
	result, err := h.Handle(ctx, job)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	urls := result.(map[string]string)
	if urls["attachment_url"] == "" {
		t.Fatalf("redelivery lost the published URL: %v", result)
	}
	if store.puts != 1 {
		t.Fatalf("puts=%d, redelivery must not re-upload", store.puts)
	}
}

func TestPDFStoreFailureIsRetryable(t *testing.T) {
	db := jobsTestDB(t)
	content := seedJobContent(t, db)
	store := newFakeStore()
	store.fail = true
	h := NewPDFHandler(db, store)

	path := writeTemp(t, "real.pdf", []byte("%PDF-1.4"))
	_, err := h.Handle(context.Background(), makeJob(t, TypePDF, content.ID, path))
	if apperr.CodeOf(err) != apperr.CodeDependency {
		t.Fatalf("err=%v, want DEPENDENCY", err)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatal("temp file must survive a retryable failure")
	}
}

func TestDecodePayloadRejectsGarbage(t *testing.T) {
	job := &taskqueue.Job{ID: "x", Type: TypePDF, Payload: []byte("{{")}
	if _, err := decodePayload(job); apperr.CodeOf(err) != apperr.CodeTerminalJob {
		t.Fatalf("err=%v, want TERMINAL_JOB", err)
	}

	raw, _ := json.Marshal(FilePayload{ActorID: "u"})
	job.Payload = raw
	if _, err := decodePayload(job); apperr.CodeOf(err) != apperr.CodeTerminalJob {
		t.Fatalf("incomplete payload err=%v, want TERMINAL_JOB", err)
	}
}
