package content

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/shareloom/core/internal/models"
	"github.com/shareloom/core/internal/modules/jobs"
	"github.com/shareloom/core/internal/modules/version"
	"github.com/shareloom/core/internal/pkg/apperr"
	"github.com/shareloom/core/internal/pkg/cachekit"
	"github.com/shareloom/core/internal/pkg/pagination"
	pkgredis "github.com/shareloom/core/internal/pkg/redis"
)

type fakeMaterializer struct {
	calls []jobs.FilePayload
	types []string
}

func (f *fakeMaterializer) Materialize(ctx context.Context, jobType string, payload jobs.FilePayload) (string, error) {
	f.calls = append(f.calls, payload)
	f.types = append(f.types, jobType)
	return "job-1", nil
}

func testService(t *testing.T) (*Service, *gorm.DB, *miniredis.Miniredis, *fakeMaterializer) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&models.UserModel{},
		&models.ContentModel{},
		&models.InteractionModel{},
		&models.VersionModel{},
		&models.CommentModel{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cache := cachekit.New(pkgredis.Wrap(rdb), zap.NewNop())
	mat := &fakeMaterializer{}
	svc := NewService(db, version.NewService(db), cache, mat, zap.NewNop())
	return svc, db, mr, mat
}

func TestCreateDuplicateRejected(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()
	dto := CreateDTO{Title: "hello", Text: "body", Tags: []string{"go", "web"}}

	if _, err := svc.Create(ctx, "user-1", dto); err != nil {
		t.Fatalf("create: %v", err)
	}

	// same semantics, different tag order and whitespace
	_, err := svc.Create(ctx, "user-2", CreateDTO{
		Title: "  hello  ", Text: "body", Tags: []string{"Web", "GO"},
	})
	if apperr.CodeOf(err) != apperr.CodeDuplicateContent {
		t.Fatalf("err=%v, want DUPLICATE_CONTENT", err)
	}
}

func TestCreateWithStagedFileCallsMaterializer(t *testing.T) {
	svc, _, _, mat := testService(t)

	result, err := svc.Create(context.Background(), "user-1", CreateDTO{
		Title:    "with file",
		FilePath: "/tmp/staged.jpg",
		FileKind: "image",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.JobID != "job-1" {
		t.Fatalf("job id=%q", result.JobID)
	}
	if len(mat.calls) != 1 || mat.types[0] != jobs.TypeImage {
		t.Fatalf("materializer calls=%v types=%v", mat.calls, mat.types)
	}
	if mat.calls[0].ContentID != result.Content.ID || mat.calls[0].SourcePath != "/tmp/staged.jpg" {
		t.Fatalf("payload=%+v", mat.calls[0])
	}
}

func TestUpdateSnapshotsEachRevision(t *testing.T) {
	svc, db, _, _ := testService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "user-1", CreateDTO{Title: "v0", Text: "original"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := created.Content.ID

	titles := []string{"v1", "v2", "v3"}
	for _, title := range titles {
		tcopy := title
		if _, err := svc.Update(ctx, id, "user-1", UpdateDTO{Title: &tcopy}); err != nil {
			t.Fatalf("update %s: %v", title, err)
		}
	}

	var versions []models.VersionModel
	err = db.Where("content_id = ?", id).Order("version_number ASC").Find(&versions).Error
	if err != nil {
		t.Fatalf("load versions: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("versions=%d, want 3", len(versions))
	}
	// snapshot n holds the state before update n
	wantTitles := []string{"v0", "v1", "v2"}
	for i, v := range versions {
		if v.VersionNumber != i+1 {
			t.Fatalf("version numbers not dense ascending: %+v", versions)
		}
		if v.Title != wantTitles[i] {
			t.Fatalf("snapshot %d title=%q, want %q", v.VersionNumber, v.Title, wantTitles[i])
		}
		if v.EditorID != "user-1" {
			t.Fatalf("snapshot editor=%q", v.EditorID)
		}
	}

	var current models.ContentModel
	if err := db.First(&current, "id = ?", id).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if current.Title != "v3" {
		t.Fatalf("current title=%q, want last writer v3", current.Title)
	}
}

func TestUpdateForbiddenForNonAuthor(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "user-1", CreateDTO{Title: "mine"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	title := "stolen"
	_, err = svc.Update(ctx, created.Content.ID, "user-2", UpdateDTO{Title: &title})
	if apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Fatalf("err=%v, want FORBIDDEN", err)
	}
}

func TestDeleteCascades(t *testing.T) {
	svc, db, _, _ := testService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "user-1", CreateDTO{Title: "doomed"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := created.Content.ID

	title := "edited"
	if _, err := svc.Update(ctx, id, "user-1", UpdateDTO{Title: &title}); err != nil {
		t.Fatalf("update: %v", err)
	}
	uid := "user-2"
	seed := []interface{}{
		&models.InteractionModel{ContentID: id, Kind: models.InteractionLike, UserID: &uid},
		&models.CommentModel{ContentID: id, Author: "anon", Text: "hi"},
	}
	for _, row := range seed {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	if err := svc.Delete(ctx, id, "user-1", false); err != nil {
		t.Fatalf("delete: %v", err)
	}

	counts := map[string]int64{}
	for name, model := range map[string]interface{}{
		"contents":     &models.ContentModel{},
		"versions":     &models.VersionModel{},
		"interactions": &models.InteractionModel{},
		"comments":     &models.CommentModel{},
	} {
		var n int64
		if err := db.Unscoped().Model(model).Count(&n).Error; err != nil {
			t.Fatalf("count %s: %v", name, err)
		}
		counts[name] = n
	}
	for name, n := range counts {
		if n != 0 {
			t.Fatalf("%s not cascaded, %d rows remain", name, n)
		}
	}
}

func TestDeleteRequiresOwnerOrAdmin(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "user-1", CreateDTO{Title: "keep out"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = svc.Delete(ctx, created.Content.ID, "user-2", false)
	if apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Fatalf("err=%v, want FORBIDDEN", err)
	}
	if err := svc.Delete(ctx, created.Content.ID, "user-2", true); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
}

func TestListReadThroughAndInvalidation(t *testing.T) {
	svc, _, mr, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "user-1", CreateDTO{Title: "one"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	q := pagination.Query{Page: 1, Size: 20}
	page, err := svc.List(ctx, q)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("items=%d", len(page.Items))
	}

	key := cachekit.Namespace + cachekit.ContentListKey(1, 20)
	if !mr.Exists(key) {
		t.Fatal("listing page was not cached")
	}

	// a new create invalidates every cached listing page
	if _, err := svc.Create(ctx, "user-1", CreateDTO{Title: "two"}); err != nil {
		t.Fatalf("create 2: %v", err)
	}
	if mr.Exists(key) {
		t.Fatal("cached listing must be invalidated after a write")
	}

	page, err = svc.List(ctx, q)
	if err != nil {
		t.Fatalf("list 2: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("stale read after invalidation: items=%d, want 2", len(page.Items))
	}
}

func TestGetPrivateHiddenFromStrangers(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "user-1", CreateDTO{Title: "secret", Visibility: "private"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := created.Content.ID

	if _, err := svc.Get(ctx, id, "user-1", false); err != nil {
		t.Fatalf("author read: %v", err)
	}
	if _, err := svc.Get(ctx, id, "", true); err != nil {
		t.Fatalf("admin read: %v", err)
	}
	_, err = svc.Get(ctx, id, "user-2", false)
	if apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("stranger read err=%v, want NOT_FOUND", err)
	}
}

func TestRenderMarkdown(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "user-1", CreateDTO{Title: "md", Text: "# Heading\n\nbody"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	html, err := svc.Render(ctx, created.Content.ID, "", false)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(html, "<h1") || !strings.Contains(html, "Heading") {
		t.Fatalf("rendered html = %q", html)
	}
}
