package api

import (
	"github.com/gpabois/emerald/internal/index"
	"github.com/gpabois/emerald/internal/shardservice"
	"github.com/gpabois/emerald/internal/vault"
)

// CreateShardRequest is the request body for creating a shard.
type CreateShardRequest struct {
	Path    string `json:"path" example:"notes/hello.md" validate:"required"`
	Content string `json:"content" example:"# Hello\nWorld" validate:"required"`
}

// UpdateShardRequest is the request body for updating a shard.
type UpdateShardRequest struct {
	Content string `json:"content" example:"# Updated\nContent" validate:"required"`
}

// LinkRequest is the request body for writing a link file.
type LinkRequest struct {
	Target string `json:"target" example:"projects/shared" validate:"required"`
}

// ShardDetail is the full shard response type (aliased from the domain layer).
type ShardDetail = shardservice.ShardDetail

// ShardListItem is a lightweight item in a list response (aliased from the index).
type ShardListItem = index.ShardRow

// DirEntry is one vault entry (aliased from the vault layer).
type DirEntry = vault.DirEntry

// ShardListResponse wraps paginated shard listings.
type ShardListResponse struct {
	Shards []ShardListItem `json:"shards" validate:"required"`
	Total  int             `json:"total" example:"42" validate:"required"`
}

// EntriesResponse wraps directory listings and walks.
type EntriesResponse struct {
	Entries []DirEntry `json:"entries" validate:"required"`
}

// StatResponse describes a single entry.
type StatResponse = DirEntry

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// TasksResponse wraps indexed tasks.
type TasksResponse struct {
	Tasks []index.TaskRow `json:"tasks" validate:"required"`
}

// BacklinksResponse lists the shards linking to a path.
type BacklinksResponse struct {
	Path      string   `json:"path" example:"/notes/hello.md" validate:"required"`
	Backlinks []string `json:"backlinks" validate:"required"`
}
