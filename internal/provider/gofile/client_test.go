package gofile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/tinoosan/debrix/internal/data"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("accounts got method %s", r.Method)
		}
		fmt.Fprint(w, `{"status":"ok","data":{"token":"tok1"}}`)
	})
	mux.HandleFunc("/contents/", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok1" {
			t.Errorf("contents auth header = %q", got)
		}
		if r.URL.Query().Get("wt") == "" {
			t.Error("missing wt query param")
		}
		id := strings.TrimPrefix(r.URL.Path, "/contents/")
		switch id {
		case "root":
			fmt.Fprint(w, `{"status":"ok","data":{"id":"root","type":"folder","name":"root","children":{
				"f1":{"id":"f1","type":"file","name":"a.bin","size":2048,"link":"https://store1.gofile.io/download/web/f1/a.bin"},
				"sub1":{"id":"sub1","type":"folder","name":"sub"}
			}}}`)
		case "sub1":
			fmt.Fprint(w, `{"status":"ok","data":{"id":"sub1","type":"folder","name":"sub","children":{
				"f2":{"id":"f2","type":"file","name":"b.bin","size":4096,"link":"https://store1.gofile.io/download/web/f2/b.bin"}
			}}}`)
		case "fileX":
			fmt.Fprint(w, `{"status":"ok","data":{"id":"fileX","type":"file","name":"movie.mkv","size":1048576,"link":"https://store1.gofile.io/download/web/fileX/movie.mkv"}}`)
		case "locked":
			sum := sha256.Sum256([]byte("secret"))
			if r.URL.Query().Get("password") != hex.EncodeToString(sum[:]) {
				fmt.Fprint(w, `{"status":"ok","data":{"id":"locked","type":"file","name":"x.bin","passwordStatus":"passwordRequired"}}`)
				return
			}
			fmt.Fprint(w, `{"status":"ok","data":{"id":"locked","type":"file","name":"x.bin","size":10,"link":"https://store1.gofile.io/download/web/locked/x.bin","passwordStatus":"passwordOk"}}`)
		default:
			fmt.Fprint(w, `{"status":"error-notFound","data":{}}`)
		}
	})
	return httptest.NewServer(mux)
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	srv := fakeAPI(t)
	t.Cleanup(srv.Close)
	return New(testLogger(), time.Minute, srv.URL)
}

func TestAuthenticate(t *testing.T) {
	c := newTestClient(t)
	if err := c.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !c.Authenticated() {
		t.Fatal("not authenticated after account creation")
	}
	if tok := c.Creds().Token(); tok != "tok1" {
		t.Fatalf("token = %q, want tok1", tok)
	}
}

func TestResolveShareLink(t *testing.T) {
	c := newTestClient(t)
	res, err := c.Resolve(context.Background(), "https://gofile.io/d/fileX", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.URL != "https://store1.gofile.io/download/web/fileX/movie.mkv" {
		t.Errorf("URL = %q", res.URL)
	}
	if res.Filename != "movie.mkv" {
		t.Errorf("Filename = %q", res.Filename)
	}
	if got := res.Header.Get("Cookie"); got != "accountToken=tok1" {
		t.Errorf("Cookie = %q, want accountToken=tok1", got)
	}
	if res.Header.Get("Referer") != res.URL {
		t.Errorf("Referer = %q, want %q", res.Header.Get("Referer"), res.URL)
	}
}

func TestResolveFolderLink(t *testing.T) {
	c := newTestClient(t)
	_, err := c.Resolve(context.Background(), "https://gofile.io/d/root", "")
	if !errors.Is(err, data.ErrIsFolder) {
		t.Fatalf("err = %v, want ErrIsFolder", err)
	}
}

func TestResolveDirectURL(t *testing.T) {
	c := newTestClient(t)
	direct := "https://store1.gofile.io/download/web/abc/My%20File.bin"
	res, err := c.Resolve(context.Background(), direct, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// Direct links bypass the contents API entirely.
	if res.URL != direct {
		t.Errorf("URL = %q, want passthrough", res.URL)
	}
	if res.Filename != "My File.bin" {
		t.Errorf("Filename = %q, want My File.bin", res.Filename)
	}
	if got := res.Header.Get("Cookie"); got != "accountToken=tok1" {
		t.Errorf("Cookie = %q", got)
	}
}

func TestBrowseWalksFolders(t *testing.T) {
	c := newTestClient(t)
	files, err := c.Browse(context.Background(), "https://gofile.io/d/root", "")
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2: %+v", len(files), files)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })
	if files[0].Filename != "a.bin" || files[0].Size != 2048 {
		t.Errorf("files[0] = %+v", files[0])
	}
	// Files in subfolders carry their path prefix.
	if files[1].Filename != "sub/b.bin" || files[1].Size != 4096 {
		t.Errorf("files[1] = %+v", files[1])
	}
}

func TestResolvePasswordProtected(t *testing.T) {
	c := newTestClient(t)
	if _, err := c.Resolve(context.Background(), "https://gofile.io/d/locked", ""); !errors.Is(err, ErrPassword) {
		t.Fatalf("err without password = %v, want ErrPassword", err)
	}
	res, err := c.Resolve(context.Background(), "https://gofile.io/d/locked", "secret")
	if err != nil {
		t.Fatalf("Resolve with password: %v", err)
	}
	if res.Filename != "x.bin" {
		t.Errorf("Filename = %q", res.Filename)
	}
}

func TestParseContentID(t *testing.T) {
	tests := []struct {
		url string
		id  string
		err error
	}{
		{"https://gofile.io/d/Abc123", "Abc123", nil},
		{"https://gofile.io/d/", "", ErrBadURL},
		{"https://gofile.io/Abc123", "", ErrBadURL},
	}
	for _, tt := range tests {
		id, err := ParseContentID(tt.url)
		if id != tt.id || !errors.Is(err, tt.err) {
			t.Errorf("ParseContentID(%q) = %q, %v; want %q, %v", tt.url, id, err, tt.id, tt.err)
		}
	}
}

func TestMatches(t *testing.T) {
	c := New(testLogger(), 0, "")
	if !c.Matches("https://gofile.io/d/abc") {
		t.Error("share link not matched")
	}
	if c.Matches("https://rapidgator.net/file/x") {
		t.Error("foreign host matched")
	}
}
