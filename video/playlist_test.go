package video

import (
	"reflect"
	"testing"
	"time"
)

func entry(id string, uploaded *time.Time) PlaylistEntry {
	return PlaylistEntry{ID: id, Uploaded: uploaded}
}

func TestPlaylistUpdateMerge(t *testing.T) {
	d1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	p := &Playlist{Videos: []PlaylistEntry{
		entry("A", &d1),
		entry("B", nil),
		entry("C", nil),
	}}
	p.Update([]PlaylistEntry{entry("X", nil), entry("A", nil), entry("Y", nil)})

	got := p.VideoIDs(0)
	want := []string{"X", "A", "Y", "B", "C"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ids = %v want %v", got, want)
	}
	if u := p.Uploaded("A"); u == nil || !u.Equal(d1) {
		t.Fatalf("A's upload date lost: %v", u)
	}
	if p.LoadedUTC.IsZero() {
		t.Fatal("loaded timestamp not updated")
	}
}

func TestPlaylistUpdatePrefersFreshDates(t *testing.T) {
	d1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	p := &Playlist{Videos: []PlaylistEntry{entry("A", &d1)}}
	p.Update([]PlaylistEntry{entry("A", &d2)})
	if u := p.Uploaded("A"); u == nil || !u.Equal(d2) {
		t.Fatalf("remote date should win: %v", u)
	}
}

func TestPlaylistUpdateStability(t *testing.T) {
	// property: new key set == remote, then prior \ remote in prior order
	p := &Playlist{Videos: []PlaylistEntry{entry("v1", nil), entry("v2", nil), entry("v3", nil), entry("v4", nil)}}
	remote := []PlaylistEntry{entry("v3", nil), entry("n1", nil), entry("v1", nil)}
	p.Update(remote)
	want := []string{"v3", "n1", "v1", "v2", "v4"}
	if got := p.VideoIDs(0); !reflect.DeepEqual(got, want) {
		t.Fatalf("ids = %v want %v", got, want)
	}
}

func TestPlaylistVideoIDsTop(t *testing.T) {
	p := &Playlist{Videos: []PlaylistEntry{entry("a", nil), entry("b", nil), entry("c", nil)}}
	if got := p.VideoIDs(2); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("top 2 = %v", got)
	}
	if got := p.VideoIDs(10); len(got) != 3 {
		t.Fatalf("top 10 = %v", got)
	}
}

func TestPlaylistStale(t *testing.T) {
	p := &Playlist{}
	if !p.Stale(24, 1) {
		t.Fatal("zero snapshot should be stale")
	}
	p.LoadedUTC = time.Now().UTC().Add(-2 * time.Hour)
	p.Videos = []PlaylistEntry{entry("a", nil)}
	if p.Stale(24, 1) {
		t.Fatal("fresh snapshot with enough ids should not be stale")
	}
	if !p.Stale(1, 1) {
		t.Fatal("snapshot older than cache window should be stale")
	}
	if !p.Stale(24, 5) {
		t.Fatal("snapshot with fewer ids than requested should be stale")
	}
}

func TestPlaylistSetUploaded(t *testing.T) {
	p := &Playlist{Videos: []PlaylistEntry{entry("a", nil)}}
	d := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	if !p.SetUploaded("a", d) {
		t.Fatal("first set should report change")
	}
	if p.SetUploaded("a", d) {
		t.Fatal("same date should report no change")
	}
	if p.SetUploaded("missing", d) {
		t.Fatal("unknown id should report no change")
	}
}
