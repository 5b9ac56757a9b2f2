package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"AzzKaraoke/db"
	"AzzKaraoke/model"
)

func newSQLiteRepo(t *testing.T) SessionRepository {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	t.Cleanup(func() { _ = db.CloseGormDB(gdb) })
	return NewGormSessionRepository(gdb)
}

func repos(t *testing.T) map[string]SessionRepository {
	return map[string]SessionRepository{
		"gorm":   newSQLiteRepo(t),
		"memory": NewMemorySessionRepository(),
	}
}

func song() *model.SongMetadata {
	return &model.SongMetadata{
		Title:  "Lemon",
		Artist: "Kenshi Yonezu",
		Subtitles: []model.SubtitleLine{
			{ID: "1", StartTime: 1, EndTime: 2, OriginalLyrics: "夢ならば", PhoneticAnnotation: "yume naraba"},
		},
	}
}

func TestSessionLifecycle(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := &model.KaraokeSession{ID: "s1", FileName: "lemon.mp4", ContentHash: "abc", Status: model.StatusProcessing}
			if err := repo.Create(ctx, s); err != nil {
				t.Fatalf("Create: %v", err)
			}

			got, err := repo.GetByID(ctx, "s1")
			if err != nil {
				t.Fatalf("GetByID: %v", err)
			}
			if got.Metadata() != nil || got.Status != model.StatusProcessing {
				t.Fatalf("unexpected session %+v", got)
			}

			got.Status = model.StatusReady
			got.Title = "Lemon"
			got.LineCount = 1
			got.Lyrics = model.LyricsDocument{SongMetadata: song()}
			if err := repo.Update(ctx, got); err != nil {
				t.Fatalf("Update: %v", err)
			}

			again, err := repo.GetByID(ctx, "s1")
			if err != nil {
				t.Fatalf("GetByID: %v", err)
			}
			meta := again.Metadata()
			if meta == nil || meta.Subtitles[0].PhoneticAnnotation != "yume naraba" {
				t.Fatalf("lyrics column not persisted: %+v", meta)
			}

			hit, err := repo.FindReadyByHash(ctx, "abc")
			if err != nil || hit.ID != "s1" {
				t.Fatalf("FindReadyByHash = (%v, %v)", hit, err)
			}
			if _, err := repo.FindReadyByHash(ctx, "other"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			if err := repo.Delete(ctx, "s1"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := repo.GetByID(ctx, "s1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
			if err := repo.Delete(ctx, "s1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
			}
		})
	}
}

func TestUpdateDoesNotRecreateDeleted(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := &model.KaraokeSession{ID: "gone", Status: model.StatusProcessing}
			if err := repo.Create(ctx, s); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if err := repo.Delete(ctx, "gone"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			s.Status = model.StatusReady
			if err := repo.Update(ctx, s); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if _, err := repo.GetByID(ctx, "gone"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("session recreated: %v", err)
			}
		})
	}
}

func TestUpdateResultRequiresCurrentObject(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := &model.KaraokeSession{ID: "s1", ObjectKey: "videos/s1/new.mp4", FileName: "new.mp4", Status: model.StatusProcessing}
			if err := repo.Create(ctx, s); err != nil {
				t.Fatalf("Create: %v", err)
			}

			stale := ProcessingResult{Status: model.StatusReady, Title: "Old", LineCount: 1, Lyrics: model.LyricsDocument{SongMetadata: song()}}
			if err := repo.UpdateResult(ctx, "s1", "videos/s1/old.mp4", stale); !errors.Is(err, ErrNotFound) {
				t.Fatalf("stale key: expected ErrNotFound, got %v", err)
			}
			got, err := repo.GetByID(ctx, "s1")
			if err != nil {
				t.Fatal(err)
			}
			if got.Status != model.StatusProcessing || got.Title != "" || got.Metadata() != nil {
				t.Fatalf("stale result leaked into %+v", got)
			}

			fresh := ProcessingResult{Status: model.StatusReady, Title: "Lemon", LanguageTag: "ja", LineCount: 1, Lyrics: model.LyricsDocument{SongMetadata: song()}}
			if err := repo.UpdateResult(ctx, "s1", "videos/s1/new.mp4", fresh); err != nil {
				t.Fatalf("UpdateResult: %v", err)
			}
			got, err = repo.GetByID(ctx, "s1")
			if err != nil {
				t.Fatal(err)
			}
			if got.Status != model.StatusReady || got.Title != "Lemon" || got.FileName != "new.mp4" || got.Metadata() == nil {
				t.Fatalf("result not stored: %+v", got)
			}

			if err := repo.Delete(ctx, "s1"); err != nil {
				t.Fatal(err)
			}
			if err := repo.UpdateResult(ctx, "s1", "videos/s1/new.mp4", fresh); !errors.Is(err, ErrNotFound) {
				t.Fatalf("deleted: expected ErrNotFound, got %v", err)
			}
			if _, err := repo.GetByID(ctx, "s1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("session recreated: %v", err)
			}
		})
	}
}

func TestSessionListAndCount(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().Add(-time.Hour)
			for i, st := range []model.AppStatus{model.StatusReady, model.StatusError, model.StatusReady} {
				s := &model.KaraokeSession{
					ID:        string(rune('a' + i)),
					Status:    st,
					Lyrics:    model.LyricsDocument{SongMetadata: song()},
					CreatedAt: base.Add(time.Duration(i) * time.Minute),
				}
				if err := repo.Create(ctx, s); err != nil {
					t.Fatalf("Create: %v", err)
				}
			}

			list, err := repo.List(ctx, 2, 0)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(list) != 2 || list[0].ID != "c" || list[1].ID != "b" {
				t.Fatalf("unexpected order %v", ids(list))
			}
			if list[0].Metadata() != nil {
				t.Fatal("list should not load lyrics")
			}

			counts, err := repo.CountByStatus(ctx)
			if err != nil {
				t.Fatalf("CountByStatus: %v", err)
			}
			if counts[model.StatusReady] != 2 || counts[model.StatusError] != 1 {
				t.Fatalf("counts = %v", counts)
			}
		})
	}
}

func ids(list []*model.KaraokeSession) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.ID
	}
	return out
}
