package comments

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"vidvault/db"
	"vidvault/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxCommentLen = 4000

// Handler holds dependencies for the guest comment endpoints.
type Handler struct {
	DB *db.CompatDB
}

// Comment is one comment row. ParentID links a reply to its parent.
type Comment struct {
	CommentID   string  `json:"comment_id"`
	VideoID     int64   `json:"video_id"`
	Username    string  `json:"username"`
	CommentText string  `json:"comment_text"`
	IsGuest     bool    `json:"is_guest"`
	Points      int     `json:"points"`
	ParentID    *string `json:"original_comment_id"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
	PostedDate  string  `json:"posted_date"`
}

const commentCols = "comment_id, video_id, username, comment_text, is_guest, points, parent_id, created_at, updated_at, posted_date"

func scanComment(row interface{ Scan(...interface{}) error }) (Comment, error) {
	var c Comment
	err := row.Scan(&c.CommentID, &c.VideoID, &c.Username, &c.CommentText,
		&c.IsGuest, &c.Points, &c.ParentID, &c.CreatedAt, &c.UpdatedAt, &c.PostedDate)
	return c, err
}

// HandleList serves a video's comments, paginated and sortable by
// newest (default), oldest, or most_points.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	videoID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || videoID < 1 {
		httputil.WriteError(w, 400, "invalid video id")
		return
	}
	page, limit := httputil.ParsePageParams(r)

	orderBy := "posted_date DESC"
	switch r.URL.Query().Get("sort") {
	case "oldest":
		orderBy = "posted_date ASC"
	case "most_points":
		orderBy = "points DESC"
	}

	rows, err := h.DB.QueryContext(r.Context(),
		"SELECT "+commentCols+" FROM comments WHERE video_id = ? ORDER BY "+orderBy+" LIMIT ? OFFSET ?",
		videoID, limit, (page-1)*limit)
	if err != nil {
		log.Printf("HandleList: %v", err)
		httputil.WriteError(w, 500, "failed to fetch comments")
		return
	}
	defer rows.Close()

	comments := make([]Comment, 0)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			log.Printf("HandleList: scan: %v", err)
			continue
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		log.Printf("HandleList: rows iteration error: %v", err)
	}

	var total int
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM comments WHERE video_id = ?`, videoID).Scan(&total); err != nil {
		log.Printf("HandleList: count: %v", err)
		httputil.WriteError(w, 500, "failed to fetch comments")
		return
	}

	httputil.WriteJSON(w, 200, map[string]interface{}{
		"comments":   comments,
		"pagination": httputil.NewPagination(page, limit, total),
	})
}

// CreateRequest is the JSON body for POST /api/comments.
type CreateRequest struct {
	VideoID     int64   `json:"video_id"`
	Username    string  `json:"username"`
	CommentText string  `json:"comment_text"`
	IsGuest     *bool   `json:"is_guest"`
	ParentID    *string `json:"original_comment_id"`
}

// HandleCreate posts a new comment or reply.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	httputil.MaxBody(r, httputil.DefaultBodyLimit)
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, 400, "invalid request body")
		return
	}
	if req.VideoID < 1 || req.CommentText == "" {
		httputil.WriteError(w, 400, "video ID and comment text are required")
		return
	}
	if len(req.CommentText) > maxCommentLen {
		httputil.WriteError(w, 400, "comment too long")
		return
	}

	var exists int
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT 1 FROM videos WHERE video_id = ?`, req.VideoID).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			httputil.WriteError(w, 404, "video not found")
		} else {
			log.Printf("HandleCreate: %v", err)
			httputil.WriteError(w, 500, "failed to add comment")
		}
		return
	}

	username := req.Username
	if username == "" {
		username = "Anonymous"
	}
	isGuest := true
	if req.IsGuest != nil {
		isGuest = *req.IsGuest
	}

	now := time.Now().UTC().Format(time.RFC3339)
	c := Comment{
		CommentID:   uuid.NewString(),
		VideoID:     req.VideoID,
		Username:    username,
		CommentText: req.CommentText,
		IsGuest:     isGuest,
		ParentID:    req.ParentID,
		CreatedAt:   now,
		UpdatedAt:   now,
		PostedDate:  now,
	}
	if _, err := h.DB.ExecContext(r.Context(), `
		INSERT INTO comments (`+commentCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.CommentID, c.VideoID, c.Username, c.CommentText, c.IsGuest, 0,
		c.ParentID, c.CreatedAt, c.UpdatedAt, c.PostedDate); err != nil {
		log.Printf("HandleCreate: %v", err)
		httputil.WriteError(w, 500, "failed to add comment")
		return
	}

	httputil.WriteJSON(w, 201, c)
}

// UpdateRequest is the JSON body for PUT /api/comments/{id}.
type UpdateRequest struct {
	CommentText string `json:"comment_text"`
}

// HandleUpdate edits a comment's text.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	commentID := chi.URLParam(r, "id")
	httputil.MaxBody(r, httputil.DefaultBodyLimit)
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CommentText == "" {
		httputil.WriteError(w, 400, "comment text is required")
		return
	}
	if len(req.CommentText) > maxCommentLen {
		httputil.WriteError(w, 400, "comment too long")
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := h.DB.ExecContext(r.Context(),
		`UPDATE comments SET comment_text = ?, updated_at = ? WHERE comment_id = ?`,
		req.CommentText, now, commentID)
	if err != nil {
		log.Printf("HandleUpdate: %v", err)
		httputil.WriteError(w, 500, "failed to update comment")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		httputil.WriteError(w, 404, "comment not found")
		return
	}

	c, err := scanComment(h.DB.QueryRowContext(r.Context(),
		"SELECT "+commentCols+" FROM comments WHERE comment_id = ?", commentID))
	if err != nil {
		log.Printf("HandleUpdate: reload: %v", err)
		httputil.WriteError(w, 500, "failed to update comment")
		return
	}
	httputil.WriteJSON(w, 200, c)
}

// HandleDelete removes a comment (replies cascade).
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	commentID := chi.URLParam(r, "id")
	res, err := h.DB.ExecContext(r.Context(),
		`DELETE FROM comments WHERE comment_id = ?`, commentID)
	if err != nil {
		log.Printf("HandleDelete: %v", err)
		httputil.WriteError(w, 500, "failed to delete comment")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		httputil.WriteError(w, 404, "comment not found")
		return
	}
	httputil.WriteJSON(w, 200, map[string]string{"message": "comment deleted"})
}

// VoteRequest is the JSON body for POST /api/comments/{id}/vote.
type VoteRequest struct {
	Vote int `json:"vote"`
}

// HandleVote applies an upvote (+1) or downvote (-1).
func (h *Handler) HandleVote(w http.ResponseWriter, r *http.Request) {
	commentID := chi.URLParam(r, "id")
	httputil.MaxBody(r, httputil.DefaultBodyLimit)
	var req VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, 400, "invalid request body")
		return
	}
	if req.Vote != 1 && req.Vote != -1 {
		httputil.WriteError(w, 400, "vote must be 1 (upvote) or -1 (downvote)")
		return
	}

	res, err := h.DB.ExecContext(r.Context(),
		`UPDATE comments SET points = points + ? WHERE comment_id = ?`, req.Vote, commentID)
	if err != nil {
		log.Printf("HandleVote: %v", err)
		httputil.WriteError(w, 500, "failed to vote")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		httputil.WriteError(w, 404, "comment not found")
		return
	}

	c, err := scanComment(h.DB.QueryRowContext(r.Context(),
		"SELECT "+commentCols+" FROM comments WHERE comment_id = ?", commentID))
	if err != nil {
		log.Printf("HandleVote: reload: %v", err)
		httputil.WriteError(w, 500, "failed to vote")
		return
	}
	httputil.WriteJSON(w, 200, c)
}

// HandleReplies lists a comment's replies, oldest first.
func (h *Handler) HandleReplies(w http.ResponseWriter, r *http.Request) {
	commentID := chi.URLParam(r, "id")
	rows, err := h.DB.QueryContext(r.Context(),
		"SELECT "+commentCols+" FROM comments WHERE parent_id = ? ORDER BY posted_date ASC",
		commentID)
	if err != nil {
		log.Printf("HandleReplies: %v", err)
		httputil.WriteError(w, 500, "failed to fetch replies")
		return
	}
	defer rows.Close()

	replies := make([]Comment, 0)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			log.Printf("HandleReplies: scan: %v", err)
			continue
		}
		replies = append(replies, c)
	}
	if err := rows.Err(); err != nil {
		log.Printf("HandleReplies: rows iteration error: %v", err)
	}
	httputil.WriteJSON(w, 200, replies)
}
