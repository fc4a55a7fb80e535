// Package remote provides the client for sandbox servers. Client implements
// provider.Provider over the sandbox file API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"loom/internal/files"
	"loom/internal/proto"
	"loom/internal/provider"
)

// ErrUnauthorized is returned when the server rejects the token.
var ErrUnauthorized = errors.New("unauthorized")

// Client communicates with a sandbox server.
type Client struct {
	BaseURL    string
	AuthToken  string
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     *slog.Logger
}

var _ provider.Provider = (*Client)(nil)

// NewClient creates a client for the server at baseURL
// (e.g. http://localhost:7450).
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AuthToken:  token,
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
		Dialer:     &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		Logger:     slog.Default().With("component", "remote"),
	}
}

// ReadFile reads a sandbox file.
func (c *Client) ReadFile(ctx context.Context, path string) (*files.File, error) {
	var resp proto.ReadResponse
	if err := c.post(ctx, proto.PathRead, proto.PathRequest{Path: path}, &resp); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return &files.File{Path: resp.Path, Content: resp.Content, Binary: resp.Binary}, nil
}

// WriteFile writes a sandbox file.
func (c *Client) WriteFile(ctx context.Context, path string, content []byte, overwrite bool) error {
	req := proto.WriteRequest{Path: path, Content: content, Overwrite: overwrite}
	if err := c.post(ctx, proto.PathWrite, req, nil); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ListFiles lists the children of a sandbox directory.
func (c *Client) ListFiles(ctx context.Context, dir string) ([]provider.Entry, error) {
	var resp proto.ListResponse
	if err := c.post(ctx, proto.PathList, proto.PathRequest{Path: dir}, &resp); err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	return resp.Files, nil
}

// StatFile describes a sandbox path.
func (c *Client) StatFile(ctx context.Context, path string) (*provider.Stat, error) {
	var st provider.Stat
	if err := c.post(ctx, proto.PathStat, proto.PathRequest{Path: path}, &st); err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &st, nil
}

// DeleteFiles deletes a sandbox file or directory.
func (c *Client) DeleteFiles(ctx context.Context, path string, recursive bool) error {
	req := proto.DeleteRequest{Path: path, Recursive: recursive}
	if err := c.post(ctx, proto.PathDelete, req, nil); err != nil {
		return fmt.Errorf("deleting %s: %w", path, err)
	}
	return nil
}

// RenameFile moves a sandbox file or directory.
func (c *Client) RenameFile(ctx context.Context, oldPath, newPath string) error {
	req := proto.RenameRequest{OldPath: oldPath, NewPath: newPath}
	if err := c.post(ctx, proto.PathRename, req, nil); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", oldPath, newPath, err)
	}
	return nil
}

// CreateDirectory creates a sandbox directory.
func (c *Client) CreateDirectory(ctx context.Context, path string) error {
	if err := c.post(ctx, proto.PathMkdir, proto.PathRequest{Path: path}, nil); err != nil {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}
	return nil
}

// Health checks if the server is healthy.
func (c *Client) Health(ctx context.Context) (*proto.HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+proto.PathHealth, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}
	var out proto.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &out, nil
}

// WatchFiles subscribes to the server's change stream. fn runs on the
// watch's reader goroutine.
func (c *Client) WatchFiles(ctx context.Context, opts provider.WatchOptions, fn func(provider.WatchEvent)) (provider.Watch, error) {
	u, err := c.watchURL(opts)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if c.AuthToken != "" {
		header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	conn, resp, err := c.Dialer.DialContext(ctx, u, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, fmt.Errorf("opening watch: %w", parseError(resp))
		}
		return nil, fmt.Errorf("opening watch: %w", err)
	}

	w := &watch{conn: conn, done: make(chan struct{}), log: c.logger()}
	go w.read(fn)
	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.done:
		}
	}()
	return w, nil
}

func (c *Client) watchURL(opts provider.WatchOptions) (string, error) {
	u, err := url.Parse(c.BaseURL + proto.PathWatch)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := url.Values{}
	q.Set(proto.QueryPath, opts.Path)
	q.Set(proto.QueryRecursive, strconv.FormatBool(opts.Recursive))
	for _, ex := range opts.Excludes {
		q.Add(proto.QueryExclude, ex)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type watch struct {
	conn *websocket.Conn
	done chan struct{}
	once sync.Once
	log  *slog.Logger
}

func (w *watch) read(fn func(provider.WatchEvent)) {
	defer close(w.done)
	for {
		var ev provider.WatchEvent
		if err := w.conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				w.log.Debug("watch closed", "error", err)
			}
			return
		}
		fn(ev)
	}
}

// Stop closes the subscription and waits for the reader to exit.
func (w *watch) Stop() error {
	var err error
	w.once.Do(func() {
		w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = w.conn.Close()
	})
	<-w.done
	return err
}

// --- Helper methods ---

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	compressed := false
	if len(body) > proto.CompressThreshold {
		if body, err = proto.Compress(body); err != nil {
			return err
		}
		compressed = true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", proto.EncodingZstd)
	if compressed {
		req.Header.Set("Content-Encoding", proto.EncodingZstd)
	}
	if c.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := readBody(resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func readBody(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if proto.IsZstd(resp.Header) {
		return proto.Decompress(data)
	}
	return data, nil
}

// parseError turns an error response into an error wrapping the matching
// provider sentinel.
func parseError(resp *http.Response) error {
	body, _ := readBody(resp)
	msg := fmt.Sprintf("server error: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	var errResp proto.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		msg = errResp.Error
		if errResp.Details != "" {
			msg += ": " + errResp.Details
		}
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", provider.ErrNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", provider.ErrExists, msg)
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", files.ErrIsDirectory, msg)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	default:
		return errors.New(msg)
	}
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
