package remote

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"loom/internal/files"
	"loom/internal/proto"
	"loom/internal/provider"
	"loom/internal/sandbox"
)

func newSandbox(t *testing.T, token string) (*Client, *files.FS) {
	t.Helper()
	fsys, err := files.New(t.TempDir())
	if err != nil {
		t.Fatalf("files.New failed: %v", err)
	}
	srv := sandbox.NewServer(provider.NewDir(fsys, provider.WithDebounce(20*time.Millisecond)), sandbox.WithToken(token))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return NewClient(ts.URL, token), fsys
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:7450/", "tok")
	if client.BaseURL != "http://localhost:7450" {
		t.Errorf("expected trailing slash trimmed, got %q", client.BaseURL)
	}
	if client.AuthToken != "tok" {
		t.Errorf("expected token 'tok', got %q", client.AuthToken)
	}
	if client.HTTPClient == nil || client.Dialer == nil {
		t.Error("transport not initialized")
	}
}

func TestClient_WatchURL(t *testing.T) {
	client := NewClient("https://sandbox.example.com", "")
	u, err := client.watchURL(provider.WatchOptions{Path: "./", Recursive: true, Excludes: []string{"node_modules/**", ".git/**"}})
	if err != nil {
		t.Fatal(err)
	}
	want := "wss://sandbox.example.com/v1/watch?exclude=node_modules%2F%2A%2A&exclude=.git%2F%2A%2A&path=.%2F&recursive=true"
	if u != want {
		t.Errorf("expected %s\n got %s", want, u)
	}
}

func TestClient_FileOperations(t *testing.T) {
	ctx := context.Background()
	client, fsys := newSandbox(t, "secret")

	if err := client.WriteFile(ctx, "app/page.tsx", []byte("page"), true); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	f, err := client.ReadFile(ctx, "app/page.tsx")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if f.Text() != "page" {
		t.Errorf("expected 'page', got %q", f.Text())
	}

	entries, err := client.ListFiles(ctx, "./")
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "app" || entries[0].Type != provider.EntryDirectory {
		t.Errorf("unexpected entries: %+v", entries)
	}

	st, err := client.StatFile(ctx, "app/page.tsx")
	if err != nil {
		t.Fatalf("StatFile failed: %v", err)
	}
	if st.Type != provider.EntryFile || st.Size != 4 {
		t.Errorf("unexpected stat: %+v", st)
	}

	if err := client.RenameFile(ctx, "app/page.tsx", "app/home.tsx"); err != nil {
		t.Fatalf("RenameFile failed: %v", err)
	}
	if ok, _ := fsys.Exists(ctx, "app/home.tsx"); !ok {
		t.Error("rename not applied")
	}

	if err := client.CreateDirectory(ctx, "public/images"); err != nil {
		t.Fatalf("CreateDirectory failed: %v", err)
	}
	if err := client.DeleteFiles(ctx, "app", true); err != nil {
		t.Fatalf("DeleteFiles failed: %v", err)
	}
	if ok, _ := fsys.Exists(ctx, "app"); ok {
		t.Error("delete not applied")
	}

	h, err := client.Health(ctx)
	if err != nil || h.Status != "ok" {
		t.Errorf("Health: %+v, %v", h, err)
	}
}

func TestClient_Errors(t *testing.T) {
	ctx := context.Background()
	client, fsys := newSandbox(t, "secret")
	fsys.WriteFile(ctx, "a.ts", []byte("a"))
	fsys.CreateDirectory(ctx, "dir")

	if _, err := client.ReadFile(ctx, "missing.ts"); !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := client.WriteFile(ctx, "a.ts", []byte("b"), false); !errors.Is(err, provider.ErrExists) {
		t.Errorf("expected ErrExists, got %v", err)
	}
	if _, err := client.ReadFile(ctx, "dir"); !errors.Is(err, files.ErrIsDirectory) {
		t.Errorf("expected ErrIsDirectory, got %v", err)
	}

	client.AuthToken = "wrong"
	if _, err := client.ListFiles(ctx, ""); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := client.WatchFiles(ctx, provider.WatchOptions{Recursive: true}, func(provider.WatchEvent) {}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("watch: expected ErrUnauthorized, got %v", err)
	}
}

func TestClient_LargeFilesCompressed(t *testing.T) {
	ctx := context.Background()
	var sawRequest, sawResponse bool
	var mu sync.Mutex

	fsys, err := files.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	inner := sandbox.NewServer(provider.NewDir(fsys)).Handler()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		if proto.IsZstd(r.Header) {
			sawRequest = true
		}
		if proto.AcceptsZstd(r.Header) {
			sawResponse = true
		}
		mu.Unlock()
		inner.ServeHTTP(w, r)
	}))
	defer ts.Close()
	client := NewClient(ts.URL, "")

	big := bytes.Repeat([]byte("export const x = 1;\n"), 8192)
	if err := client.WriteFile(ctx, "big.ts", big, true); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	f, err := client.ReadFile(ctx, "big.ts")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(f.Content, big) {
		t.Error("large file content mismatch")
	}

	mu.Lock()
	defer mu.Unlock()
	if !sawRequest {
		t.Error("large request body was not compressed")
	}
	if !sawResponse {
		t.Error("client did not accept zstd")
	}
}

func TestClient_WatchFiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client, fsys := newSandbox(t, "secret")
	fsys.CreateDirectory(ctx, "node_modules")

	var mu sync.Mutex
	var got []provider.WatchEvent
	w, err := client.WatchFiles(ctx, provider.WatchOptions{
		Path:      "./",
		Recursive: true,
		Excludes:  []string{"node_modules/**"},
	}, func(ev provider.WatchEvent) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("WatchFiles failed: %v", err)
	}

	wait := func(match func(provider.WatchEvent) bool) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			mu.Lock()
			for _, ev := range got {
				if match(ev) {
					mu.Unlock()
					return
				}
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatalf("timed out waiting for event, got %+v", got)
	}

	// The server registers its watcher after the upgrade; retry the write
	// until the event arrives.
	deadline := time.Now().Add(5 * time.Second)
	for {
		fsys.WriteFile(ctx, "a.ts", []byte(time.Now().String()))
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	wait(func(ev provider.WatchEvent) bool { return len(ev.Paths) == 1 && ev.Paths[0] == "a.ts" })

	fsys.DeleteFile(ctx, "a.ts")
	wait(func(ev provider.WatchEvent) bool { return ev.Type == provider.EventRemove && ev.Paths[0] == "a.ts" })

	if err := w.Stop(); err != nil {
		t.Logf("Stop: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Logf("second Stop: %v", err)
	}
}
