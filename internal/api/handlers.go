package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gpabois/emerald/internal/checksum"
	"github.com/gpabois/emerald/internal/index"
	"github.com/gpabois/emerald/internal/shardservice"
	"github.com/gpabois/emerald/internal/vault"
)

const maxBody = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *shardservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *shardservice.Service) *Handler {
	return &Handler{svc: svc}
}

// vaultPath extracts the vault path from the URL wildcard.
// Supports encoded slashes from OpenAPI clients (e.g. topics%2Fshard.md).
func vaultPath(r *http.Request) vault.Path {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	return vault.Path(decoded).Clean()
}

// ReadDir handles GET /fs/dir/*.
//
//	@Summary		List the entries of a vault directory
//	@Tags			fs
//	@Produce		json
//	@Param			path	path		string	false	"Directory path"
//	@Success		200		{object}	EntriesResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/fs/dir/{path} [get]
func (h *Handler) ReadDir(w http.ResponseWriter, r *http.Request) {
	p := vaultPath(r)
	entries, err := h.svc.ReadDir(r.Context(), p)
	if err != nil {
		writeError(w, "read dir", p.String(), err)
		return
	}
	writeJSON(w, http.StatusOK, EntriesResponse{Entries: entries})
}

// Walk handles GET /fs/walk/*.
//
//	@Summary		Walk the virtual tree, following link files
//	@Tags			fs
//	@Produce		json
//	@Param			path	path		string	false	"Start path"
//	@Param			limit	query		int		false	"Max entries"
//	@Success		200		{object}	EntriesResponse
//	@Security		BearerAuth
//	@Router			/fs/walk/{path} [get]
func (h *Handler) Walk(w http.ResponseWriter, r *http.Request) {
	p := vaultPath(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.svc.Walk(r.Context(), p, limit)
	if err != nil {
		writeError(w, "walk", p.String(), err)
		return
	}
	writeJSON(w, http.StatusOK, EntriesResponse{Entries: entries})
}

// Stat handles GET /fs/stat/*.
func (h *Handler) Stat(w http.ResponseWriter, r *http.Request) {
	p := vaultPath(r)
	m, err := h.svc.Stat(r.Context(), p)
	if err != nil {
		writeError(w, "stat", p.String(), err)
		return
	}
	writeJSON(w, http.StatusOK, StatResponse{Path: p, Metadata: m})
}

// ReadRaw handles GET /fs/raw/*. The ETag is the content checksum.
func (h *Handler) ReadRaw(w http.ResponseWriter, r *http.Request) {
	p := vaultPath(r)
	data, err := h.svc.ReadRaw(r.Context(), p)
	if err != nil {
		writeError(w, "read raw", p.String(), err)
		return
	}
	ct := http.DetectContentType(data)
	if filepath.Ext(p.Base()) == vault.ShardExt {
		ct = "text/markdown; charset=utf-8"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("ETag", strconv.Quote(checksum.Sum(data)))
	_, _ = w.Write(data)
}

// WriteRaw handles PUT /fs/raw/*. The body is stored verbatim.
func (h *Handler) WriteRaw(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	p := vaultPath(r)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	if err := h.svc.WriteRaw(r.Context(), p, data); err != nil {
		writeError(w, "write raw", p.String(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Remove handles DELETE /fs/raw/*.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	p := vaultPath(r)
	if err := h.svc.Remove(r.Context(), p); err != nil {
		writeError(w, "remove", p.String(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Link handles POST /fs/link/*.
//
//	@Summary		Write a content-based link file
//	@Tags			fs
//	@Accept			json
//	@Param			path	path	string		true	"Link path"
//	@Param			body	body	LinkRequest	true	"Link target"
//	@Success		204		"Link written"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/fs/link/{path} [post]
func (h *Handler) Link(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	p := vaultPath(r)
	var req LinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.svc.Link(r.Context(), p, req.Target); err != nil {
		writeError(w, "link", p.String(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListShards handles GET /shards.
//
//	@Summary		List shards with optional pagination and filtering
//	@Tags			shards
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			tag		query		string	false	"Filter by tag"
//	@Success		200		{object}	ShardListResponse
//	@Security		BearerAuth
//	@Router			/shards [get]
func (h *Handler) ListShards(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListShards(r.Context(), limit, offset, q.Get("tag"))
	if err != nil {
		writeError(w, "list shards", "", err)
		return
	}
	writeJSON(w, http.StatusOK, ShardListResponse{Shards: items, Total: total})
}

// GetShard handles GET /shards/*.
//
//	@Summary		Get a parsed shard: metadata, rendered markdown and tasks
//	@Tags			shards
//	@Produce		json
//	@Param			path	path		string	true	"Shard path"
//	@Success		200		{object}	ShardDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/shards/{path} [get]
func (h *Handler) GetShard(w http.ResponseWriter, r *http.Request) {
	p := vaultPath(r)
	if p.IsRoot() {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	s, err := h.svc.GetShard(r.Context(), p)
	if err != nil {
		writeError(w, "get shard", p.String(), err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// CreateShard handles POST /shards.
//
//	@Summary		Create a new shard
//	@Tags			shards
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateShardRequest	true	"Shard to create"
//	@Success		201		{object}	ShardDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/shards [post]
func (h *Handler) CreateShard(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	var req CreateShardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path and content are required"))
		return
	}
	s, err := h.svc.CreateShard(r.Context(), vault.Path(req.Path), []byte(req.Content))
	if err != nil {
		writeError(w, "create shard", req.Path, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// UpdateShard handles PUT /shards/*.
//
//	@Summary		Update a shard with optimistic concurrency
//	@Tags			shards
//	@Accept			json
//	@Produce		json
//	@Param			path		path	string				true	"Shard path"
//	@Param			If-Match	header	string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body	UpdateShardRequest	true	"Updated content"
//	@Success		200		{object}	ShardDetail
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/shards/{path} [put]
func (h *Handler) UpdateShard(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	p := vaultPath(r)
	if p.IsRoot() {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req UpdateShardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}
	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	s, err := h.svc.UpdateShard(r.Context(), p, []byte(req.Content), ifMatch)
	if err != nil {
		writeError(w, "update shard", p.String(), err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Tasks handles GET /tasks.
//
//	@Summary		List indexed tasks
//	@Tags			tasks
//	@Produce		json
//	@Param			prefix	query		string	false	"Source path prefix"
//	@Param			open	query		bool	false	"Only unchecked tasks"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	TasksResponse
//	@Security		BearerAuth
//	@Router			/tasks [get]
func (h *Handler) Tasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	open, _ := strconv.ParseBool(q.Get("open"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	tasks, err := h.svc.Tasks(r.Context(), index.TaskFilter{
		Prefix:   q.Get("prefix"),
		OpenOnly: open,
		Limit:    limit,
	})
	if err != nil {
		writeError(w, "tasks", q.Get("prefix"), err)
		return
	}
	writeJSON(w, http.StatusOK, TasksResponse{Tasks: tasks})
}

// Search handles GET /search.
//
//	@Summary		Full-text search across shards
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", q, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Backlinks handles GET /backlinks/*.
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	p := vaultPath(r)
	if p.IsRoot() {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	bl, err := h.svc.Backlinks(r.Context(), p)
	if err != nil {
		writeError(w, "backlinks", p.String(), err)
		return
	}
	writeJSON(w, http.StatusOK, BacklinksResponse{Path: p.String(), Backlinks: bl})
}
