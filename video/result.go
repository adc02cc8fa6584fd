package video

// CaptionMatch is one padded excerpt of a caption track's full text together
// with the synthetic caption covering it.
type CaptionMatch struct {
	Match   PaddedMatch
	Caption Caption
}

// CaptionTrackResult groups a track's matches, sorted ascending by caption
// start time.
type CaptionTrackResult struct {
	Track   *CaptionTrack
	Matches []CaptionMatch
}

// SearchResult is one matching video with its highlighted excerpts. All match
// data is owned by the result; nothing references index internals.
type SearchResult struct {
	Video *Video
	Score float64

	// TitleMatches covers the whole title with every hit as an included
	// interval; nil when the title didn't match.
	TitleMatches *PaddedMatch

	DescriptionMatches []PaddedMatch

	// KeywordMatches holds one padded match per matched keyword, over the
	// keyword's own text.
	KeywordMatches []PaddedMatch

	CaptionTrackMatches []CaptionTrackResult
}
