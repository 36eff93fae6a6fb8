package catalog

// Video types. External videos carry an external key and resolve their
// playable URLs lazily against the upstream origin; uploads store theirs at
// ingest time.
const (
	TypeUpload   = "upload"
	TypeExternal = "external"
)

// NamedRef is a category or tag reference attached to a video.
type NamedRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Summary is the listing-row shape shared by explore, trending, search, and
// recommendation responses.
type Summary struct {
	VideoID    int64      `json:"video_id"`
	Title      string     `json:"title"`
	ImageSrc   string     `json:"image_src"`
	Duration   string     `json:"duration"`
	Views      int64      `json:"views"`
	Added      string     `json:"added"`
	Type       string     `json:"type"`
	Categories []NamedRef `json:"categories"`
	Tags       []NamedRef `json:"tags"`
	Relevance  int        `json:"relevance_score,omitempty"`
}

// Video is the full detail shape. Sources is the resolution cache: empty
// means unresolved, non-empty is treated as settled and never re-probed.
type Video struct {
	Summary
	ExternalKey string   `json:"-"`
	Sources     []string `json:"video_src"`
}

// TagCount is a tag listing row with its catalog usage count.
type TagCount struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	VideoCount int    `json:"video_count"`
}
