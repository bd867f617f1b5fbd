package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gpabois/emerald/internal/apperr"
	"github.com/gpabois/emerald/internal/vault"
)

const (
	maxAssetSize    = 10 << 20
	defaultAssetDir = "/assets"
)

var (
	assetTypes = map[string]string{
		"image/png":       ".png",
		"image/jpeg":      ".jpg",
		"image/gif":       ".gif",
		"image/webp":      ".webp",
		"image/svg+xml":   ".svg",
		"application/pdf": ".pdf",
	}

	unsafeNameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

type assetResult struct {
	Path  string `json:"path"`
	Embed string `json:"embed"`
}

// putAsset stores a binary asset in the vault and returns the embed to paste
// into a shard. The source is a base64 data URI or an http(s) URL.
func (s *Server) putAsset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var data []byte
	var ext string
	if strings.HasPrefix(source, "data:") {
		data, ext, err = decodeDataURI(source)
	} else {
		data, ext, err = download(ctx, source)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	name := assetName(req.GetString("name", ""), source, ext)
	if err := checkContent(data, path.Ext(name)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	dir := vault.Path(req.GetString("dir", defaultAssetDir))
	target := vault.Path(path.Join(dir.Clean().String(), name)).Clean()
	if _, err := s.svc.Stat(ctx, target); err == nil {
		return toolError(target.String(), fmt.Errorf("asset %s: %w", target, apperr.ErrAlreadyExists)), nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return toolError(target.String(), err), nil
	}
	if err := s.svc.WriteRaw(ctx, target, data); err != nil {
		return toolError(target.String(), err), nil
	}

	out, _ := json.Marshal(assetResult{
		Path:  target.String(),
		Embed: fmt.Sprintf("![%s](%s)", name, target),
	})
	return mcp.NewToolResultText(string(out)), nil
}

// decodeDataURI parses data:<mime>;base64,<payload>.
func decodeDataURI(uri string) ([]byte, string, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", errors.New("invalid data URI: missing comma separator")
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return nil, "", errors.New("only base64 data URIs are supported")
	}
	ext, ok := assetTypes[mime]
	if !ok {
		return nil, "", fmt.Errorf("unsupported asset type: %s", mime)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, "", fmt.Errorf("invalid base64 data: %w", err)
		}
	}
	if len(data) > maxAssetSize {
		return nil, "", fmt.Errorf("asset too large: %d bytes (max %d)", len(data), maxAssetSize)
	}
	return data, ext, nil
}

func download(ctx context.Context, raw string) ([]byte, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported scheme: %q", u.Scheme)
	}
	if err := checkHost(u.Hostname()); err != nil {
		return nil, "", err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return checkHost(req.URL.Hostname())
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	if len(data) > maxAssetSize {
		return nil, "", fmt.Errorf("asset too large: exceeds %d bytes", maxAssetSize)
	}
	mime, _, _ := strings.Cut(resp.Header.Get("Content-Type"), ";")
	return data, assetTypes[strings.TrimSpace(mime)], nil
}

// checkHost rejects loopback and cloud metadata addresses.
func checkHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil //nolint:nilerr // the client reports DNS failures
		}
		ip = ips[0]
	}
	if ip.IsLoopback() || ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

// assetName picks the stored file name: the requested one, else the URL
// base name, else a fresh UUID. A name without extension gets the detected one.
func assetName(requested, source, ext string) string {
	name := requested
	if name == "" && !strings.HasPrefix(source, "data:") {
		if u, err := url.Parse(source); err == nil {
			name = path.Base(u.Path)
		}
	}
	name = unsafeNameRe.ReplaceAllString(path.Base(name), "_")
	if name == "" || name == "." || name == "_" {
		name = uuid.NewString()
	}
	if path.Ext(name) == "" {
		if ext == "" {
			ext = ".bin"
		}
		name += ext
	}
	return name
}

// checkContent verifies the payload matches the extension it is stored under.
func checkContent(data []byte, ext string) error {
	ext = strings.ToLower(ext)
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	if ext == ".svg" {
		if !bytes.Contains(data[:min(len(data), 1024)], []byte("<svg")) {
			return errors.New("content is not an SVG document")
		}
		return nil
	}
	allowed := false
	for _, e := range assetTypes {
		allowed = allowed || e == ext
	}
	if !allowed {
		return fmt.Errorf("unsupported asset extension: %q", ext)
	}
	detected, _, _ := strings.Cut(http.DetectContentType(data), ";")
	if assetTypes[detected] != ext {
		return fmt.Errorf("content does not match extension %s (detected %s)", ext, detected)
	}
	return nil
}
