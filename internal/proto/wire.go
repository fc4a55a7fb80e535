// Package proto defines wire format DTOs for the sandbox file API.
package proto

import "loom/internal/provider"

// CompressThreshold is the body size above which bodies are sent
// zstd-compressed when the peer accepts it.
const CompressThreshold = 64 << 10

// EncodingZstd is the Content-Encoding token for zstd bodies.
const EncodingZstd = "zstd"

// Route paths.
const (
	PathRead   = "/v1/files/read"
	PathWrite  = "/v1/files/write"
	PathList   = "/v1/files/list"
	PathStat   = "/v1/files/stat"
	PathDelete = "/v1/files/delete"
	PathRename = "/v1/files/rename"
	PathMkdir  = "/v1/files/mkdir"
	PathWatch  = "/v1/watch"
	PathHealth = "/health"
)

// PathRequest names a single sandbox path.
type PathRequest struct {
	Path string `json:"path"`
}

// ReadResponse carries file content. Content is base64 in JSON.
type ReadResponse struct {
	Path    string `json:"path"`
	Content []byte `json:"content"`
	Binary  bool   `json:"binary,omitempty"`
}

// WriteRequest writes one file.
type WriteRequest struct {
	Path      string `json:"path"`
	Content   []byte `json:"content"`
	Overwrite bool   `json:"overwrite"`
}

// ListResponse lists the children of a directory.
type ListResponse struct {
	Files []provider.Entry `json:"files"`
}

// DeleteRequest deletes a file or directory.
type DeleteRequest struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive,omitempty"`
}

// RenameRequest moves a file or directory.
type RenameRequest struct {
	OldPath string `json:"oldPath"`
	NewPath string `json:"newPath"`
}

// OKResponse acknowledges a mutation.
type OKResponse struct {
	OK bool `json:"ok"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Watch query parameters. Excludes repeat.
const (
	QueryPath      = "path"
	QueryRecursive = "recursive"
	QueryExclude   = "exclude"
)
