package alldebrid

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tinoosan/debrix/internal/creds"
	"github.com/tinoosan/debrix/internal/data"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apikey") != "good-key" {
			fmt.Fprint(w, `{"status":"error","error":{"code":"AUTH_BAD_APIKEY","message":"The auth apikey is invalid"}}`)
			return
		}
		if r.URL.Query().Get("agent") == "" {
			t.Error("missing agent query param")
		}
		fmt.Fprint(w, `{"status":"success","data":{"user":{"username":"tester"}}}`)
	})
	mux.HandleFunc("/link/unlock", func(w http.ResponseWriter, r *http.Request) {
		link := r.URL.Query().Get("link")
		fmt.Fprintf(w, `{"status":"success","data":{"link":"https://cdn.example.com/direct/file.bin","filename":"file.bin","host":%q}}`, link)
	})
	mux.HandleFunc("/link/redirector", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("redirector got method %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer good-key" {
			t.Errorf("redirector auth header = %q", got)
		}
		fmt.Fprint(w, `{"status":"success","data":{"links":["https://host.example/a","https://host.example/b"]}}`)
	})
	mux.HandleFunc("/link/infos", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm["link[]"]; len(got) != 2 {
			t.Errorf("link[] = %v, want 2 entries", got)
		}
		fmt.Fprint(w, `{"status":"success","data":{"infos":[
			{"filename":"a.bin","size":1048576,"link":"https://host.example/a","host":"host.example"},
			{"filename":"broken.bin","size":0,"link":"","error":{"code":"LINK_DOWN","message":"down"}},
			{"filename":"b.bin","size":2048,"link":"https://host.example/b","host":"host.example"}
		]}}`)
	})
	return httptest.NewServer(mux)
}

func TestAuthenticate(t *testing.T) {
	srv := fakeAPI(t)
	defer srv.Close()

	c := New(testLogger(), "good-key", srv.URL)
	if err := c.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !c.Authenticated() {
		t.Fatal("not authenticated after successful validation")
	}
}

func TestAuthenticateRejectsBadKey(t *testing.T) {
	srv := fakeAPI(t)
	defer srv.Close()

	c := New(testLogger(), "bad-key", srv.URL)
	err := c.Authenticate(context.Background())
	if !errors.Is(err, creds.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if c.Authenticated() {
		t.Fatal("authenticated after rejected key")
	}
}

func TestResolve(t *testing.T) {
	srv := fakeAPI(t)
	defer srv.Close()

	c := New(testLogger(), "good-key", srv.URL)
	res, err := c.Resolve(context.Background(), "https://host.example/locked", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.URL != "https://cdn.example.com/direct/file.bin" {
		t.Errorf("URL = %q", res.URL)
	}
	if res.Filename != "file.bin" {
		t.Errorf("Filename = %q", res.Filename)
	}
}

func TestBrowse(t *testing.T) {
	srv := fakeAPI(t)
	defer srv.Close()

	c := New(testLogger(), "good-key", srv.URL)
	files, err := c.Browse(context.Background(), "https://host.example/folder", "")
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}
	// The errored info is skipped.
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2: %+v", len(files), files)
	}
	want := data.File{
		Filename:  "a.bin",
		Size:      1048576,
		SizeHuman: "1.00 MB",
		Link:      "https://host.example/a",
		Host:      "host.example",
		Supported: true,
	}
	if files[0] != want {
		t.Errorf("files[0] = %+v, want %+v", files[0], want)
	}
}

func TestMatchesEverything(t *testing.T) {
	c := New(testLogger(), "good-key", "")
	for _, u := range []string{"https://rapidgator.net/file/x", "https://anything.example/y"} {
		if !c.Matches(u) {
			t.Errorf("Matches(%q) = false, want true as catch-all", u)
		}
	}
}
