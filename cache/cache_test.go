package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"AzzKaraoke/model"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

type countingTranscriber struct {
	calls int
	meta  *model.SongMetadata
	err   error
}

func (c *countingTranscriber) ProcessMusicVideo(context.Context, []byte, string) (*model.SongMetadata, error) {
	c.calls++
	return c.meta, c.err
}

func TestMetadataCacheRoundTrip(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	c := NewMetadataCache(client, time.Hour)

	got, err := c.Get(ctx, "m", "h")
	if err != nil || got != nil {
		t.Fatalf("miss = (%v, %v)", got, err)
	}

	meta := &model.SongMetadata{Title: "Lemon", Subtitles: []model.SubtitleLine{{ID: "1", Translation: "chanh"}}}
	if err := c.Set(ctx, "m", "h", meta); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err = c.Get(ctx, "m", "h")
	if err != nil || got.Title != "Lemon" || got.Subtitles[0].Translation != "chanh" {
		t.Fatalf("hit = (%+v, %v)", got, err)
	}

	if ttl := mr.TTL("karaoke:meta:m:h"); ttl != time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}
	mr.FastForward(2 * time.Hour)
	if got, _ := c.Get(ctx, "m", "h"); got != nil {
		t.Fatal("entry should expire")
	}
}

func TestCachedTranscriber(t *testing.T) {
	_, client := newRedis(t)
	inner := &countingTranscriber{meta: &model.SongMetadata{Title: "Lemon"}}
	tr := NewCachedTranscriber(inner, NewMetadataCache(client, time.Hour), "gemini")

	for i := 0; i < 3; i++ {
		meta, err := tr.ProcessMusicVideo(context.Background(), []byte("same-video"), "video/mp4")
		if err != nil || meta.Title != "Lemon" {
			t.Fatalf("call %d = (%+v, %v)", i, meta, err)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("inner called %d times, want 1", inner.calls)
	}

	if _, err := tr.ProcessMusicVideo(context.Background(), []byte("other-video"), "video/mp4"); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 2 {
		t.Fatalf("a different video must miss the cache, calls = %d", inner.calls)
	}
}

func TestCachedTranscriberBypassesBrokenCache(t *testing.T) {
	mr, client := newRedis(t)
	inner := &countingTranscriber{meta: &model.SongMetadata{Title: "Lemon"}}
	tr := NewCachedTranscriber(inner, NewMetadataCache(client, time.Hour), "gemini")
	mr.Close()

	meta, err := tr.ProcessMusicVideo(context.Background(), []byte("v"), "video/mp4")
	if err != nil || meta.Title != "Lemon" {
		t.Fatalf("cache outage must not fail processing: (%v, %v)", meta, err)
	}
}

func TestCachedTranscriberDoesNotCacheFailures(t *testing.T) {
	_, client := newRedis(t)
	boom := errors.New("quota")
	inner := &countingTranscriber{err: boom}
	tr := NewCachedTranscriber(inner, NewMetadataCache(client, time.Hour), "gemini")

	for i := 0; i < 2; i++ {
		if _, err := tr.ProcessMusicVideo(context.Background(), []byte("v"), ""); !errors.Is(err, boom) {
			t.Fatalf("expected inner error, got %v", err)
		}
	}
	if inner.calls != 2 {
		t.Fatalf("failures must not be cached, calls = %d", inner.calls)
	}
}

func TestRoomCachePresenceAndPlayback(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	rc := NewRoomCache(client)

	for _, id := range []string{"c1", "c2"} {
		if err := rc.UpdatePresence(ctx, "room", id); err != nil {
			t.Fatalf("UpdatePresence: %v", err)
		}
	}
	if n, err := rc.ActiveViewerCount(ctx, "room"); err != nil || n != 2 {
		t.Fatalf("count = (%d, %v)", n, err)
	}

	if err := rc.RemovePresence(ctx, "room", "c1"); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Minute)
	if n, _ := rc.ActiveViewerCount(ctx, "room"); n != 0 {
		t.Fatalf("expired heartbeats should not count, got %d", n)
	}

	if snap, err := rc.GetPlayback(ctx, "room"); err != nil || snap != nil {
		t.Fatalf("empty playback = (%v, %v)", snap, err)
	}
	if err := rc.SetPlayback(ctx, "room", 42.5, true); err != nil {
		t.Fatalf("SetPlayback: %v", err)
	}
	snap, err := rc.GetPlayback(ctx, "room")
	if err != nil || snap.Time != 42.5 || !snap.Ended || snap.UpdatedAt.IsZero() {
		t.Fatalf("snapshot = (%+v, %v)", snap, err)
	}

	if err := rc.ClearRoom(ctx, "room"); err != nil {
		t.Fatal(err)
	}
	if snap, _ := rc.GetPlayback(ctx, "room"); snap != nil {
		t.Fatal("playback should be cleared")
	}
}

func TestTestRedis(t *testing.T) {
	_, client := newRedis(t)
	if err := TestRedis(context.Background(), client); err != nil {
		t.Fatalf("TestRedis: %v", err)
	}
	if err := TestRedis(context.Background(), nil); err == nil {
		t.Fatal("expected error without client")
	}
}

func TestContentHash(t *testing.T) {
	if ContentHash([]byte("abc")) != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatal("unexpected sha256")
	}
}
