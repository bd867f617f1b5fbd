// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes emerald vault tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gpabois/emerald/internal/apperr"
	"github.com/gpabois/emerald/internal/index"
	"github.com/gpabois/emerald/internal/shardservice"
	"github.com/gpabois/emerald/internal/vault"
)

const linkFormatURI = "emerald://link-format"

// Server wraps the MCP server with emerald tools.
type Server struct {
	mcp *server.MCPServer
	svc *shardservice.Service
}

// New creates a new MCP server with all emerald tools registered.
func New(svc *shardservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Emerald",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("walk_vault",
		mcp.WithDescription("Walk the vault depth-first from a path, following link files. "+
			"Returns one line per entry: the vault path and its type (directory, shard, file, symlink)."),
		mcp.WithString("path", mcp.Description("Start path (empty for the vault root)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 500)")),
	), s.walkVault)

	s.mcp.AddTool(mcp.NewTool("read_shard",
		mcp.WithDescription("Read a shard and return its parsed form as JSON: "+
			"title, tags, links, front matter, tasks, backlinks and raw content."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault path of the shard (e.g. /folder/note.md)")),
	), s.readShard)

	s.mcp.AddTool(mcp.NewTool("render_shard",
		mcp.WithDescription("Parse a shard and return it re-serialized as normalized Markdown."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault path of the shard")),
	), s.renderShard)

	s.mcp.AddTool(mcp.NewTool("create_shard",
		mcp.WithDescription("Create a new shard at the specified path. "+
			"Read the format first via the get_link_format tool or the "+linkFormatURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault path for the new shard (must end with .md)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content")),
	), s.createShard)

	s.mcp.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List checkable tasks found in shards."),
		mcp.WithString("prefix", mcp.Description("Only tasks of shards under this path")),
		mcp.WithBoolean("open_only", mcp.Description("Only unchecked tasks")),
	), s.listTasks)

	s.mcp.AddTool(mcp.NewTool("search_shards",
		mcp.WithDescription("Full-text search through shard content and titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchShards)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all shards that link to the specified shard."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the shard to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("get_link_format",
		mcp.WithDescription("Returns the vault format: shards, front matter and @/> link files. "+
			"Call this before writing into the vault."),
	), s.getLinkFormat)

	s.mcp.AddTool(mcp.NewTool("put_asset",
		mcp.WithDescription("Store an image or PDF in the vault and return the Markdown embed for it. "+
			"Supports png, jpg, gif, webp, svg and pdf up to 10 MB."),
		mcp.WithString("source", mcp.Required(), mcp.Description("base64 data URI or http(s) URL")),
		mcp.WithString("name", mcp.Description("File name to store under (default: from the URL, else a UUID)")),
		mcp.WithString("dir", mcp.Description("Vault directory (default /assets)")),
	), s.putAsset)

	s.mcp.AddResource(
		mcp.NewResource(linkFormatURI, "Vault Format",
			mcp.WithResourceDescription("Shard and link-file conventions of an emerald vault."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readLinkFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// toolError turns a service error into a tool-level error result.
func toolError(path string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path))
	case errors.Is(err, apperr.ErrAlreadyExists):
		return mcp.NewToolResultError(fmt.Sprintf("already exists: %s", path))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) walkVault(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	limit := req.GetInt("limit", 500)
	entries, err := s.svc.Walk(ctx, vault.Path(path), limit)
	if err != nil {
		return toolError(path, err), nil
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s\t%s\n", e.Path, e.Metadata.Type)
	}
	if b.Len() == 0 {
		return mcp.NewToolResultText("empty"), nil
	}
	return mcp.NewToolResultText(strings.TrimSuffix(b.String(), "\n")), nil
}

func (s *Server) readShard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.GetShard(ctx, vault.Path(path))
	if err != nil {
		return toolError(path, err), nil
	}
	out, _ := json.MarshalIndent(d, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) renderShard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.GetShard(ctx, vault.Path(path))
	if err != nil {
		return toolError(path, err), nil
	}
	return mcp.NewToolResultText(d.Markdown), nil
}

func (s *Server) createShard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.CreateShard(ctx, vault.Path(path), []byte(content))
	if err != nil {
		return toolError(path, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", d.Path)), nil
}

func (s *Server) listTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks, err := s.svc.Tasks(ctx, index.TaskFilter{
		Prefix:   req.GetString("prefix", ""),
		OpenOnly: req.GetBool("open_only", false),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(tasks) == 0 {
		return mcp.NewToolResultText("no tasks found"), nil
	}
	var b strings.Builder
	for _, t := range tasks {
		box := "[ ]"
		if t.Checked {
			box = "[x]"
		}
		fmt.Fprintf(&b, "%s:%d: %s%s %s\n", t.Source, t.Line, strings.Repeat("  ", t.Depth), box, t.Text)
	}
	return mcp.NewToolResultText(strings.TrimSuffix(b.String(), "\n")), nil
}

func (s *Server) searchShards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.svc.Backlinks(ctx, vault.Path(path))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}

func (s *Server) getLinkFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(LinkFormatContract), nil
}

func (s *Server) readLinkFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      linkFormatURI,
			MIMEType: "text/markdown",
			Text:     LinkFormatContract,
		},
	}, nil
}
