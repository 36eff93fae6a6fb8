package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"vidvault/db"
)

// ErrNotFound is returned when a video, category, or tag does not exist.
var ErrNotFound = errors.New("not found")

// Store is the relational access layer for videos, categories, and tags.
type Store struct {
	DB *db.CompatDB
}

// hasSourceCond restricts a listing to videos with at least one playable URL.
const hasSourceCond = "EXISTS (SELECT 1 FROM video_sources vs WHERE vs.video_id = v.video_id)"

const summaryCols = "v.video_id, v.title, v.image_src, v.duration, v.views, v.added, v.type"

// GetVideo loads one video with its sources, categories, and tags.
func (s *Store) GetVideo(ctx context.Context, id int64) (*Video, error) {
	var v Video
	var imageSrc, duration, externalKey sql.NullString
	err := s.DB.QueryRowContext(ctx, `
		SELECT video_id, title, image_src, duration, views, added, type, external_key
		FROM videos WHERE video_id = ?
	`, id).Scan(&v.VideoID, &v.Title, &imageSrc, &duration, &v.Views, &v.Added, &v.Type, &externalKey)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get video %d: %w", id, err)
	}
	v.ImageSrc = imageSrc.String
	v.Duration = duration.String
	v.ExternalKey = externalKey.String

	rows, err := s.DB.QueryContext(ctx,
		`SELECT url FROM video_sources WHERE video_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("load sources for video %d: %w", id, err)
	}
	defer rows.Close()
	v.Sources = make([]string, 0, 4)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan source url: %w", err)
		}
		v.Sources = append(v.Sources, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}

	page := []Summary{v.Summary}
	if err := s.AttachTaxonomy(ctx, page); err != nil {
		return nil, err
	}
	v.Summary = page[0]
	return &v, nil
}

// SetSourceList replaces a video's resolved source list in one transaction,
// preserving the given order.
func (s *Store) SetSourceList(ctx context.Context, videoID int64, urls []string) error {
	return db.WithTx(ctx, s.DB, func(conn *db.CompatConn) error {
		if _, err := conn.ExecContext(ctx,
			`DELETE FROM video_sources WHERE video_id = ?`, videoID); err != nil {
			return fmt.Errorf("clear sources for video %d: %w", videoID, err)
		}
		for i, u := range urls {
			if _, err := conn.ExecContext(ctx,
				`INSERT INTO video_sources (video_id, position, url) VALUES (?, ?, ?)`,
				videoID, i, u); err != nil {
				return fmt.Errorf("insert source %d for video %d: %w", i, videoID, err)
			}
		}
		return nil
	})
}

// IncrementViews bumps a video's view counter.
func (s *Store) IncrementViews(ctx context.Context, id int64) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE videos SET views = views + 1 WHERE video_id = ?`, id)
	if err != nil {
		return fmt.Errorf("increment views for video %d: %w", id, err)
	}
	return nil
}

// CategoryTagFrequencies aggregates how often each category and tag appears
// across the given videos. A category shared by several of the videos counts
// once per video carrying it.
func (s *Store) CategoryTagFrequencies(ctx context.Context, ids []int64) (map[int64]int, map[int64]int, error) {
	catFreq := make(map[int64]int)
	tagFreq := make(map[int64]int)
	if len(ids) == 0 {
		return catFreq, tagFreq, nil
	}

	ph, args := db.InInt64(ids)
	rows, err := s.DB.QueryContext(ctx,
		`SELECT category_id, COUNT(*) FROM video_categories WHERE video_id IN (`+ph+`) GROUP BY category_id`,
		args...)
	if err != nil {
		return nil, nil, fmt.Errorf("aggregate category frequencies: %w", err)
	}
	if err := scanFrequencies(rows, catFreq); err != nil {
		return nil, nil, fmt.Errorf("scan category frequencies: %w", err)
	}

	ph, args = db.InInt64(ids)
	rows, err = s.DB.QueryContext(ctx,
		`SELECT tag_id, COUNT(*) FROM video_tags WHERE video_id IN (`+ph+`) GROUP BY tag_id`,
		args...)
	if err != nil {
		return nil, nil, fmt.Errorf("aggregate tag frequencies: %w", err)
	}
	if err := scanFrequencies(rows, tagFreq); err != nil {
		return nil, nil, fmt.Errorf("scan tag frequencies: %w", err)
	}

	return catFreq, tagFreq, nil
}

func scanFrequencies(rows *sql.Rows, into map[int64]int) error {
	defer rows.Close()
	for rows.Next() {
		var id int64
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return err
		}
		into[id] = count
	}
	return rows.Err()
}

// CandidateQuery selects and scores the recommendation candidate pool.
type CandidateQuery struct {
	Categories []int64 // profile categories, weight 2 per overlap
	Tags       []int64 // profile tags, weight 1 per overlap
	ExcludeIDs []int64 // already-watched videos
	Page       int
	Limit      int
}

// QueryCandidates returns one page of scored candidates plus the total match
// count. Candidates always have at least one source and are never in the
// exclusion set. With a non-empty profile the pool is ordered by relevance
// score, then recency, then a per-request random tie-break; with an empty
// profile scoring is skipped entirely and recency alone decides.
func (s *Store) QueryCandidates(ctx context.Context, q CandidateQuery) ([]Summary, int, error) {
	scored := len(q.Categories) > 0 || len(q.Tags) > 0

	scoreExpr := "0"
	var scoreArgs []interface{}
	if scored {
		var terms []string
		if len(q.Categories) > 0 {
			ph, args := db.InInt64(q.Categories)
			terms = append(terms,
				"(SELECT COUNT(*) FROM video_categories vc WHERE vc.video_id = v.video_id AND vc.category_id IN ("+ph+")) * 2")
			scoreArgs = append(scoreArgs, args...)
		}
		if len(q.Tags) > 0 {
			ph, args := db.InInt64(q.Tags)
			terms = append(terms,
				"(SELECT COUNT(*) FROM video_tags vt WHERE vt.video_id = v.video_id AND vt.tag_id IN ("+ph+"))")
			scoreArgs = append(scoreArgs, args...)
		}
		scoreExpr = "(" + strings.Join(terms, " + ") + ")"
	}

	where := "WHERE " + hasSourceCond
	var whereArgs []interface{}
	if len(q.ExcludeIDs) > 0 {
		ph, args := db.InInt64(q.ExcludeIDs)
		where += " AND v.video_id NOT IN (" + ph + ")"
		whereArgs = append(whereArgs, args...)
	}

	order := "ORDER BY v.added DESC"
	if scored {
		order = "ORDER BY relevance_score DESC, v.added DESC, " + s.DB.RandomFloat()
	}

	query := fmt.Sprintf(
		"SELECT %s, %s AS relevance_score FROM videos v %s %s LIMIT ? OFFSET ?",
		summaryCols, scoreExpr, where, order)

	args := append(append([]interface{}{}, scoreArgs...), whereArgs...)
	args = append(args, q.Limit, (q.Page-1)*q.Limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query candidates: %w", err)
	}
	videos, err := scanSummaries(rows, true)
	if err != nil {
		return nil, 0, fmt.Errorf("scan candidates: %w", err)
	}

	var total int
	if err := s.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM videos v "+where, whereArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count candidates: %w", err)
	}

	if err := s.AttachTaxonomy(ctx, videos); err != nil {
		return nil, 0, err
	}
	return videos, total, nil
}

// RelatedVideos returns up to limit videos related to v: the curated list if
// one exists, otherwise videos sharing a category or tag, newest first.
func (s *Store) RelatedVideos(ctx context.Context, v *Video, limit int) ([]Summary, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+summaryCols+`
		FROM video_related r
		JOIN videos v ON v.video_id = r.related_id
		WHERE r.video_id = ?
		ORDER BY r.position
		LIMIT ?
	`, v.VideoID, limit)
	if err != nil {
		return nil, fmt.Errorf("load curated related videos: %w", err)
	}
	videos, err := scanSummaries(rows, false)
	if err != nil {
		return nil, fmt.Errorf("scan curated related videos: %w", err)
	}
	if len(videos) == 0 {
		videos, err = s.relatedByOverlap(ctx, v, limit)
		if err != nil {
			return nil, err
		}
	}
	if err := s.AttachTaxonomy(ctx, videos); err != nil {
		return nil, err
	}
	return videos, nil
}

func (s *Store) relatedByOverlap(ctx context.Context, v *Video, limit int) ([]Summary, error) {
	var conds []string
	args := []interface{}{v.VideoID}
	if len(v.Categories) > 0 {
		conds = append(conds, `EXISTS (
			SELECT 1 FROM video_categories vc
			JOIN video_categories vc2 ON vc2.category_id = vc.category_id
			WHERE vc.video_id = v.video_id AND vc2.video_id = ?)`)
		args = append(args, v.VideoID)
	}
	if len(v.Tags) > 0 {
		conds = append(conds, `EXISTS (
			SELECT 1 FROM video_tags vt
			JOIN video_tags vt2 ON vt2.tag_id = vt.tag_id
			WHERE vt.video_id = v.video_id AND vt2.video_id = ?)`)
		args = append(args, v.VideoID)
	}

	where := "WHERE v.video_id != ?"
	if len(conds) > 0 {
		where += " AND (" + strings.Join(conds, " OR ") + ")"
	}
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx,
		"SELECT "+summaryCols+" FROM videos v "+where+" ORDER BY v.added DESC LIMIT ?",
		args...)
	if err != nil {
		return nil, fmt.Errorf("load related by overlap: %w", err)
	}
	videos, err := scanSummaries(rows, false)
	if err != nil {
		return nil, fmt.Errorf("scan related by overlap: %w", err)
	}
	return videos, nil
}

// listFilter is the optional category/tag narrowing shared by the listing
// endpoints. Zero means no filter.
type listFilter struct {
	Category int64
	Tag      int64
}

func (f listFilter) conditions() ([]string, []interface{}) {
	var conds []string
	var args []interface{}
	if f.Category > 0 {
		conds = append(conds,
			"EXISTS (SELECT 1 FROM video_categories vc WHERE vc.video_id = v.video_id AND vc.category_id = ?)")
		args = append(args, f.Category)
	}
	if f.Tag > 0 {
		conds = append(conds,
			"EXISTS (SELECT 1 FROM video_tags vt WHERE vt.video_id = v.video_id AND vt.tag_id = ?)")
		args = append(args, f.Tag)
	}
	return conds, args
}

// listPage runs a listing query plus its count twin and attaches taxonomy.
func (s *Store) listPage(ctx context.Context, conds []string, condArgs []interface{}, order string, page, limit int) ([]Summary, int, error) {
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	args := append(append([]interface{}{}, condArgs...), limit, (page-1)*limit)
	rows, err := s.DB.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM videos v %s %s LIMIT ? OFFSET ?", summaryCols, where, order),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list videos: %w", err)
	}
	videos, err := scanSummaries(rows, false)
	if err != nil {
		return nil, 0, fmt.Errorf("scan videos: %w", err)
	}

	var total int
	if err := s.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM videos v "+where, condArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count videos: %w", err)
	}

	if err := s.AttachTaxonomy(ctx, videos); err != nil {
		return nil, 0, err
	}
	return videos, total, nil
}

// NewestVideos is the explore listing: playable videos, newest first.
func (s *Store) NewestVideos(ctx context.Context, category, tag int64, page, limit int) ([]Summary, int, error) {
	conds, args := listFilter{Category: category, Tag: tag}.conditions()
	conds = append([]string{hasSourceCond}, conds...)
	return s.listPage(ctx, conds, args, "ORDER BY v.added DESC", page, limit)
}

// trendingWindows maps the public period names to their recency cutoffs.
var trendingWindows = map[string]string{
	"day":   "-30 days",
	"week":  "-100 days",
	"month": "-1000 days",
}

// TrendingVideos lists the most viewed videos added within the period window.
// Unknown periods apply no window.
func (s *Store) TrendingVideos(ctx context.Context, category, tag int64, period string, page, limit int) ([]Summary, int, error) {
	conds, args := listFilter{Category: category, Tag: tag}.conditions()
	if mod, ok := trendingWindows[period]; ok {
		conds = append([]string{"v.added > " + s.DB.DatetimeModifier(mod)}, conds...)
	}
	return s.listPage(ctx, conds, args, "ORDER BY v.views DESC", page, limit)
}

// VideosByCategory lists a category's videos, newest first.
func (s *Store) VideosByCategory(ctx context.Context, categoryID int64, page, limit int) ([]Summary, int, error) {
	conds, args := listFilter{Category: categoryID}.conditions()
	return s.listPage(ctx, conds, args, "ORDER BY v.added DESC", page, limit)
}

// VideosByTag lists a tag's videos, newest first.
func (s *Store) VideosByTag(ctx context.Context, tagID int64, page, limit int) ([]Summary, int, error) {
	conds, args := listFilter{Tag: tagID}.conditions()
	return s.listPage(ctx, conds, args, "ORDER BY v.added DESC", page, limit)
}

// SearchVideos runs full-text title search ordered by rank. The match
// machinery is dialect-specific: tsquery on Postgres, FTS5 with bm25 on
// SQLite.
func (s *Store) SearchVideos(ctx context.Context, q string, category, tag int64, page, limit int) ([]Summary, int, error) {
	conds, condArgs := listFilter{Category: category, Tag: tag}.conditions()

	var from, matchCond, order string
	var matchArgs, orderArgs []interface{}
	if s.DB.IsPostgres() {
		from = "FROM videos v"
		matchCond = "to_tsvector('english', v.title) @@ plainto_tsquery('english', ?)"
		order = "ORDER BY ts_rank_cd(to_tsvector('english', v.title), plainto_tsquery('english', ?)) DESC"
		matchArgs = []interface{}{q}
		orderArgs = []interface{}{q}
	} else {
		from = "FROM videos_fts JOIN videos v ON v.video_id = videos_fts.rowid"
		matchCond = "videos_fts MATCH ?"
		order = "ORDER BY bm25(videos_fts)"
		matchArgs = []interface{}{ftsQuote(q)}
	}
	conds = append([]string{matchCond}, conds...)
	where := "WHERE " + strings.Join(conds, " AND ")

	args := append(append([]interface{}{}, matchArgs...), condArgs...)
	args = append(args, orderArgs...)
	args = append(args, limit, (page-1)*limit)

	rows, err := s.DB.QueryContext(ctx,
		fmt.Sprintf("SELECT %s %s %s %s LIMIT ? OFFSET ?", summaryCols, from, where, order),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search videos: %w", err)
	}
	videos, err := scanSummaries(rows, false)
	if err != nil {
		return nil, 0, fmt.Errorf("scan search results: %w", err)
	}

	countArgs := append(append([]interface{}{}, matchArgs...), condArgs...)
	var total int
	if err := s.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) "+from+" "+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search results: %w", err)
	}

	if err := s.AttachTaxonomy(ctx, videos); err != nil {
		return nil, 0, err
	}
	return videos, total, nil
}

// ftsQuote wraps the query as an FTS5 string literal so user input cannot
// inject match syntax.
func ftsQuote(q string) string {
	return `"` + strings.ReplaceAll(q, `"`, `""`) + `"`
}

// ListCategories returns all categories ordered by name.
func (s *Store) ListCategories(ctx context.Context) ([]NamedRef, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	out := make([]NamedRef, 0)
	for rows.Next() {
		var c NamedRef
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListTags returns tags attached to more than minVideos videos, most used
// first.
func (s *Store) ListTags(ctx context.Context, minVideos int) ([]TagCount, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT t.id, t.name, COUNT(vt.video_id) AS video_count
		FROM tags t
		JOIN video_tags vt ON vt.tag_id = t.id
		GROUP BY t.id, t.name
		HAVING COUNT(vt.video_id) > ?
		ORDER BY video_count DESC
	`, minVideos)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()
	out := make([]TagCount, 0)
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.ID, &tc.Name, &tc.VideoCount); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// GetCategory returns one category by id.
func (s *Store) GetCategory(ctx context.Context, id int64) (*NamedRef, error) {
	var c NamedRef
	err := s.DB.QueryRowContext(ctx, `SELECT id, name FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.Name)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category %d: %w", id, err)
	}
	return &c, nil
}

// GetTag returns one tag by id.
func (s *Store) GetTag(ctx context.Context, id int64) (*NamedRef, error) {
	var t NamedRef
	err := s.DB.QueryRowContext(ctx, `SELECT id, name FROM tags WHERE id = ?`, id).
		Scan(&t.ID, &t.Name)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tag %d: %w", id, err)
	}
	return &t, nil
}

// scanSummaries drains a listing result set. withScore expects a trailing
// relevance_score column.
func scanSummaries(rows *sql.Rows, withScore bool) ([]Summary, error) {
	defer rows.Close()
	out := make([]Summary, 0)
	for rows.Next() {
		var v Summary
		var imageSrc, duration sql.NullString
		dest := []interface{}{&v.VideoID, &v.Title, &imageSrc, &duration, &v.Views, &v.Added, &v.Type}
		if withScore {
			dest = append(dest, &v.Relevance)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		v.ImageSrc = imageSrc.String
		v.Duration = duration.String
		out = append(out, v)
	}
	return out, rows.Err()
}

// AttachTaxonomy batch-loads category and tag details for a page of
// summaries.
func (s *Store) AttachTaxonomy(ctx context.Context, videos []Summary) error {
	if len(videos) == 0 {
		return nil
	}
	ids := make([]int64, len(videos))
	for i, v := range videos {
		ids[i] = v.VideoID
	}

	ph, args := db.InInt64(ids)
	cats := make(map[int64][]NamedRef, len(videos))
	rows, err := s.DB.QueryContext(ctx, `
		SELECT vc.video_id, c.id, c.name
		FROM video_categories vc
		JOIN categories c ON c.id = vc.category_id
		WHERE vc.video_id IN (`+ph+`)
		ORDER BY c.name
	`, args...)
	if err != nil {
		return fmt.Errorf("load video categories: %w", err)
	}
	if err := scanTaxonomy(rows, cats); err != nil {
		return fmt.Errorf("scan video categories: %w", err)
	}

	ph, args = db.InInt64(ids)
	tags := make(map[int64][]NamedRef, len(videos))
	rows, err = s.DB.QueryContext(ctx, `
		SELECT vt.video_id, t.id, t.name
		FROM video_tags vt
		JOIN tags t ON t.id = vt.tag_id
		WHERE vt.video_id IN (`+ph+`)
		ORDER BY t.name
	`, args...)
	if err != nil {
		return fmt.Errorf("load video tags: %w", err)
	}
	if err := scanTaxonomy(rows, tags); err != nil {
		return fmt.Errorf("scan video tags: %w", err)
	}

	for i := range videos {
		videos[i].Categories = cats[videos[i].VideoID]
		videos[i].Tags = tags[videos[i].VideoID]
	}
	return nil
}

func scanTaxonomy(rows *sql.Rows, into map[int64][]NamedRef) error {
	defer rows.Close()
	for rows.Next() {
		var videoID int64
		var ref NamedRef
		if err := rows.Scan(&videoID, &ref.ID, &ref.Name); err != nil {
			return err
		}
		into[videoID] = append(into[videoID], ref)
	}
	return rows.Err()
}
