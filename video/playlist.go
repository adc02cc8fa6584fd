package video

import "time"

// PlaylistEntry pairs a video id with its upload date when known. Playlist
// listings don't always return dates, so Uploaded may be nil until the video
// itself has been fetched.
type PlaylistEntry struct {
	ID       string     `json:"id"`
	Uploaded *time.Time `json:"uploaded,omitempty"`
}

// Playlist is the persisted snapshot of a playlist-like scope: the ordered
// video ids as last observed remotely plus known upload dates and the time of
// the last refresh. Ids that disappear remotely are retained at the tail so
// deleted videos stay searchable from the local cache.
type Playlist struct {
	LoadedUTC time.Time       `json:"loaded"`
	Videos    []PlaylistEntry `json:"videos"`
}

// VideoIDs returns up to top ids in snapshot order (all when top <= 0).
func (p *Playlist) VideoIDs(top int) []string {
	n := len(p.Videos)
	if top > 0 && top < n {
		n = top
	}
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = p.Videos[i].ID
	}
	return ids
}

// Uploaded returns the known upload date for id, nil when unknown or absent.
func (p *Playlist) Uploaded(id string) *time.Time {
	for i := range p.Videos {
		if p.Videos[i].ID == id {
			return p.Videos[i].Uploaded
		}
	}
	return nil
}

// SetUploaded records an upload date learned after the snapshot was taken
// (e.g. from a full video fetch). Returns true if the snapshot changed.
func (p *Playlist) SetUploaded(id string, t time.Time) bool {
	for i := range p.Videos {
		if p.Videos[i].ID == id {
			if p.Videos[i].Uploaded != nil && p.Videos[i].Uploaded.Equal(t) {
				return false
			}
			u := t
			p.Videos[i].Uploaded = &u
			return true
		}
	}
	return false
}

// Stale reports whether the snapshot must be refreshed for a search over the
// first top ids: missing entirely, older than cacheHours, or holding fewer ids
// than requested.
func (p *Playlist) Stale(cacheHours float64, top int) bool {
	if p.LoadedUTC.IsZero() {
		return true
	}
	age := time.Since(p.LoadedUTC)
	if age > time.Duration(cacheHours*float64(time.Hour)) {
		return true
	}
	return len(p.Videos) < top
}

// Update merges a fresh remote listing into the snapshot. The refreshed ids
// take the new remote order at the head; previously known ids not in the
// refresh are appended in their prior order. Upload dates already known are
// preserved when the refresh carries none.
func (p *Playlist) Update(remote []PlaylistEntry) {
	prior := make(map[string]*time.Time, len(p.Videos))
	var priorOrder []string
	for i := range p.Videos {
		prior[p.Videos[i].ID] = p.Videos[i].Uploaded
		priorOrder = append(priorOrder, p.Videos[i].ID)
	}

	merged := make([]PlaylistEntry, 0, len(p.Videos)+len(remote))
	inRemote := make(map[string]struct{}, len(remote))
	for _, r := range remote {
		e := PlaylistEntry{ID: r.ID, Uploaded: r.Uploaded}
		if e.Uploaded == nil {
			e.Uploaded = prior[r.ID]
		}
		merged = append(merged, e)
		inRemote[r.ID] = struct{}{}
	}
	for _, id := range priorOrder {
		if _, ok := inRemote[id]; ok {
			continue
		}
		merged = append(merged, PlaylistEntry{ID: id, Uploaded: prior[id]})
	}

	p.Videos = merged
	p.LoadedUTC = time.Now().UTC()
}
