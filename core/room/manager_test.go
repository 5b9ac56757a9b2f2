package room

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"AzzKaraoke/core/controller"
	"AzzKaraoke/model"
	"AzzKaraoke/repository"
	"AzzKaraoke/storage"
)

type fakeTranscriber struct {
	calls atomic.Int32
	meta  *model.SongMetadata
	err   error
}

func (f *fakeTranscriber) ProcessMusicVideo(context.Context, []byte, string) (*model.SongMetadata, error) {
	f.calls.Add(1)
	return f.meta, f.err
}

type fakePlayback struct {
	saved   atomic.Int32
	cleared atomic.Int32
}

func (f *fakePlayback) SetPlayback(context.Context, string, float64, bool) error {
	f.saved.Add(1)
	return nil
}

func (f *fakePlayback) ClearRoom(context.Context, string) error {
	f.cleared.Add(1)
	return nil
}

func lemon() *model.SongMetadata {
	return &model.SongMetadata{
		Title:            "Lemon",
		Artist:           "Kenshi Yonezu",
		DetectedLanguage: "ja",
		Subtitles: []model.SubtitleLine{
			{ID: "1", StartTime: 1, EndTime: 3, OriginalLyrics: "夢ならば", WordLevelTimings: []model.WordTiming{
				{Word: "夢", StartTime: 1, EndTime: 2}, {Word: "ならば", StartTime: 2, EndTime: 3},
			}},
			{ID: "2", StartTime: 4, EndTime: 6, OriginalLyrics: "どれほどよかったでしょう"},
		},
	}
}

type fixture struct {
	mgr      *Manager
	hub      *Hub
	repo     repository.SessionRepository
	store    storage.VideoStore
	tr       *fakeTranscriber
	playback *fakePlayback
}

func newFixture(t *testing.T, tr *fakeTranscriber) *fixture {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		hub:      NewHub(nil),
		repo:     repository.NewMemorySessionRepository(),
		store:    store,
		tr:       tr,
		playback: &fakePlayback{},
	}
	go f.hub.Run()
	f.mgr = f.newManager()
	t.Cleanup(func() {
		f.mgr.Close()
		f.hub.Stop()
	})
	return f
}

func (f *fixture) newManager() *Manager {
	return NewManager(Deps{
		Repo:        f.repo,
		Store:       f.store,
		Hub:         f.hub,
		Transcriber: f.tr,
		Playback:    f.playback,
	})
}

// gatedRepo holds the first UpdateResult call until open is called.
type gatedRepo struct {
	repository.SessionRepository
	first   sync.Once
	opened  sync.Once
	entered chan struct{}
	release chan struct{}
	done    chan error
}

func newGatedRepo(inner repository.SessionRepository) *gatedRepo {
	return &gatedRepo{
		SessionRepository: inner,
		entered:           make(chan struct{}),
		release:           make(chan struct{}),
		done:              make(chan error, 1),
	}
}

func (g *gatedRepo) UpdateResult(ctx context.Context, id, objectKey string, r repository.ProcessingResult) error {
	gated := false
	g.first.Do(func() { gated = true })
	if !gated {
		return g.SessionRepository.UpdateResult(ctx, id, objectKey, r)
	}
	close(g.entered)
	<-g.release
	err := g.SessionRepository.UpdateResult(ctx, id, objectKey, r)
	g.done <- err
	return err
}

func (g *gatedRepo) open() { g.opened.Do(func() { close(g.release) }) }

// gatedManager builds a second manager whose result writes go through a gatedRepo.
func (f *fixture) gatedManager(t *testing.T) (*Manager, *gatedRepo) {
	t.Helper()
	g := newGatedRepo(f.repo)
	f.repo = g
	mgr := f.newManager()
	t.Cleanup(mgr.Close)
	t.Cleanup(g.open)
	return mgr, g
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func waitStatus(t *testing.T, repo repository.SessionRepository, id string, want model.AppStatus) *model.KaraokeSession {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := repo.GetByID(context.Background(), id)
		if err == nil && rec.Status == want {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session %s never reached %s", id, want)
	return nil
}

// viewer registers a connection-less client that only collects broadcasts.
func viewer(t *testing.T, hub *Hub, sessionID string) *Client {
	t.Helper()
	c := NewClient(hub, nil, sessionID, "viewer")
	hub.Register(c)
	return c
}

func nextOfType(t *testing.T, c *Client, want MessageType) *WSMessage {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				t.Fatalf("client channel closed waiting for %s", want)
			}
			var msg WSMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("bad message %s: %v", data, err)
			}
			if msg.Type == want {
				return &msg
			}
		case <-timeout:
			t.Fatalf("no %s message", want)
		}
	}
}

func TestCreateProcessesAndPersists(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{meta: lemon()})
	ctx := context.Background()

	rec, err := f.mgr.Create(ctx, Upload{Name: "lemon.mp4", Data: []byte("video")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.Status != model.StatusProcessing || rec.MIMEType != "video/mp4" || rec.ObjectKey == "" {
		t.Fatalf("unexpected record %+v", rec)
	}

	done := waitStatus(t, f.repo, rec.ID, model.StatusReady)
	if done.Title != "Lemon" || done.LineCount != 2 || done.LanguageTag != "ja" || done.Metadata() == nil {
		t.Fatalf("persisted record %+v", done)
	}

	obj, _, err := f.mgr.OpenVideo(ctx, rec.ID)
	if err != nil {
		t.Fatalf("OpenVideo: %v", err)
	}
	obj.Close()
}

func TestCreateReusesProcessedVideo(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{meta: lemon()})
	ctx := context.Background()

	first, err := f.mgr.Create(ctx, Upload{Name: "a.mp4", Data: []byte("same")})
	if err != nil {
		t.Fatal(err)
	}
	waitStatus(t, f.repo, first.ID, model.StatusReady)

	second, err := f.mgr.Create(ctx, Upload{Name: "b.mp4", Data: []byte("same")})
	if err != nil {
		t.Fatal(err)
	}
	waitStatus(t, f.repo, second.ID, model.StatusReady)
	if n := f.tr.calls.Load(); n != 1 {
		t.Fatalf("transcriber called %d times, want 1", n)
	}
}

func TestCreateFailurePersistsError(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{err: errors.New("quota")})

	rec, err := f.mgr.Create(context.Background(), Upload{Name: "a.mp4", Data: []byte("v")})
	if err != nil {
		t.Fatal(err)
	}
	failed := waitStatus(t, f.repo, rec.ID, model.StatusError)
	if failed.ErrorMessage != controller.DefaultMessages.AIFailure {
		t.Fatalf("error message = %q", failed.ErrorMessage)
	}
}

func TestCreateRejectsEmptyUpload(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{meta: lemon()})
	if _, err := f.mgr.Create(context.Background(), Upload{Name: "a.mp4"}); !errors.Is(err, ErrEmptyUpload) {
		t.Fatalf("expected ErrEmptyUpload, got %v", err)
	}
}

func TestViewerEventsDriveFrames(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{meta: lemon()})
	ctx := context.Background()

	rec, err := f.mgr.Create(ctx, Upload{Name: "a.mp4", Data: []byte("v")})
	if err != nil {
		t.Fatal(err)
	}
	waitStatus(t, f.repo, rec.ID, model.StatusReady)

	c := viewer(t, f.hub, rec.ID)
	send := func(typ MessageType, data interface{}) {
		msg, err := NewMessage(rec.ID, typ, data)
		if err != nil {
			t.Fatal(err)
		}
		f.mgr.HandleMessage(ctx, c, msg)
	}

	send(MsgTypeLayout, map[string]interface{}{
		"containerHeight": 100,
		"lines": []map[string]interface{}{
			{"id": "1", "offsetTop": 0, "height": 20},
			{"id": "2", "offsetTop": 40, "height": 20},
		},
	})
	send(MsgTypeTimeUpdate, TimeData{Time: 2.5})

	// frames queued before the viewer joined may arrive first
	var frame FrameData
	for i := 0; i < 5 && frame.ActiveLineID == ""; i++ {
		if err := nextOfType(t, c, MsgTypeFrame).Decode(&frame); err != nil {
			t.Fatal(err)
		}
	}
	if frame.ActiveLineID != "1" || frame.ActiveWordIndex != 1 {
		t.Fatalf("frame = %+v", frame)
	}
	var scroll ScrollData
	if err := nextOfType(t, c, MsgTypeScroll).Decode(&scroll); err != nil {
		t.Fatal(err)
	}
	if scroll.Top != -40 {
		t.Fatalf("scroll top = %v", scroll.Top)
	}

	send(MsgTypeEnded, nil)
	send(MsgTypeReplay, nil)
	var seek TimeData
	if err := nextOfType(t, c, MsgTypeSeek).Decode(&seek); err != nil {
		t.Fatal(err)
	}
	if seek.Time != 0 {
		t.Fatalf("replay should seek to 0, got %v", seek.Time)
	}
	nextOfType(t, c, MsgTypePlay)

	if f.playback.saved.Load() < 2 {
		t.Fatalf("playback position not saved: %d", f.playback.saved.Load())
	}
}

func TestInvalidMessagesReportErrors(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{meta: lemon()})
	rec, err := f.mgr.Create(context.Background(), Upload{Name: "a.mp4", Data: []byte("v")})
	if err != nil {
		t.Fatal(err)
	}

	c := NewClient(f.hub, nil, rec.ID, "solo")
	f.mgr.HandleMessage(context.Background(), c, &WSMessage{Type: MsgTypeTimeUpdate, SessionID: rec.ID})
	f.mgr.HandleMessage(context.Background(), c, &WSMessage{Type: "dance", SessionID: rec.ID})

	for i := 0; i < 2; i++ {
		var e ErrorData
		if err := nextOfType(t, c, MsgTypeError).Decode(&e); err != nil || e.Message == "" {
			t.Fatalf("error payload = (%+v, %v)", e, err)
		}
	}
}

func TestGetRestoresPersistedSession(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{meta: lemon()})
	ctx := context.Background()

	rec, err := f.mgr.Create(ctx, Upload{Name: "a.mp4", Data: []byte("v")})
	if err != nil {
		t.Fatal(err)
	}
	waitStatus(t, f.repo, rec.ID, model.StatusReady)

	restarted := f.newManager()
	defer restarted.Close()
	s, err := restarted.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	st := s.Controller().Snapshot()
	if st.Status != model.StatusReady || st.Metadata.Title != "Lemon" {
		t.Fatalf("restored state %+v", st)
	}

	if _, err := restarted.Get(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReplaceAndDelete(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{meta: lemon()})
	ctx := context.Background()

	rec, err := f.mgr.Create(ctx, Upload{Name: "a.mp4", Data: []byte("one")})
	if err != nil {
		t.Fatal(err)
	}
	waitStatus(t, f.repo, rec.ID, model.StatusReady)

	replaced, err := f.mgr.Replace(ctx, rec.ID, Upload{Name: "b.webm", Data: []byte("two")})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if replaced.ObjectKey == rec.ObjectKey || replaced.FileName != "b.webm" {
		t.Fatalf("replace record %+v", replaced)
	}
	if _, err := f.store.Stat(ctx, rec.ObjectKey); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("old video should be removed, got %v", err)
	}
	waitStatus(t, f.repo, rec.ID, model.StatusReady)

	if err := f.mgr.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.repo.GetByID(ctx, rec.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("record should be gone, got %v", err)
	}
	if _, err := f.store.Stat(ctx, replaced.ObjectKey); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("video should be gone, got %v", err)
	}
	if f.playback.cleared.Load() != 1 {
		t.Fatal("playback position should be cleared")
	}
}

func TestVideoURL(t *testing.T) {
	if got := VideoURL("s1", "videos/s1/ab-lemon song.mp4"); got != "/api/sessions/s1/video?v=ab-lemon+song.mp4" {
		t.Fatalf("VideoURL = %q", got)
	}
}

func TestDeleteDuringPersistDoesNotResurrect(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{meta: lemon()})
	mgr, gate := f.gatedManager(t)
	ctx := context.Background()

	rec, err := mgr.Create(ctx, Upload{Name: "a.mp4", Data: []byte("v")})
	if err != nil {
		t.Fatal(err)
	}
	waitClosed(t, gate.entered)

	if err := mgr.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	gate.open()
	if err := <-gate.done; !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("late result write = %v, want ErrNotFound", err)
	}
	mgr.Close()

	if _, err := f.repo.GetByID(ctx, rec.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("deleted session came back: %v", err)
	}
}

func TestReplaceDuringPersistKeepsNewVideo(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{meta: lemon()})
	mgr, gate := f.gatedManager(t)
	ctx := context.Background()

	rec, err := mgr.Create(ctx, Upload{Name: "a.mp4", Data: []byte("one")})
	if err != nil {
		t.Fatal(err)
	}
	waitClosed(t, gate.entered)

	replaced, err := mgr.Replace(ctx, rec.ID, Upload{Name: "b.webm", Data: []byte("two")})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	gate.open()
	if err := <-gate.done; !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("stale result write = %v, want ErrNotFound", err)
	}

	done := waitStatus(t, f.repo, rec.ID, model.StatusReady)
	if done.ObjectKey != replaced.ObjectKey || done.FileName != "b.webm" || done.MIMEType != "video/webm" {
		t.Fatalf("record points at %q (%s), want %q", done.ObjectKey, done.FileName, replaced.ObjectKey)
	}
	obj, _, err := mgr.OpenVideo(ctx, rec.ID)
	if err != nil {
		t.Fatalf("OpenVideo: %v", err)
	}
	obj.Close()
}
