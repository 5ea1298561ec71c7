package webfetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		rawURL  string
		wantErr error
	}{
		{"https ok", "https://example.com/page", nil},
		{"http ok", "http://example.com", nil},
		{"ftp scheme", "ftp://example.com/file", ErrInvalidURL},
		{"file scheme", "file:///etc/passwd", ErrInvalidURL},
		{"no host", "https://", ErrInvalidURL},
		{"not a url", "hello world", ErrInvalidURL},
		{"localhost", "http://localhost:8080/admin", ErrBlockedURL},
		{"loopback ip", "http://127.0.0.1/", ErrBlockedURL},
		{"private ip", "http://10.0.0.5/", ErrBlockedURL},
		{"private 192", "http://192.168.1.1/", ErrBlockedURL},
		{"link local", "http://169.254.169.254/latest/meta-data", ErrBlockedURL},
		{"dot local", "http://printer.local/", ErrBlockedURL},
		{"dot internal", "http://db.internal/", ErrBlockedURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validateURL(tt.rawURL)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("validateURL(%q) = %v, want ok", tt.rawURL, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("validateURL(%q) = %v, want %v", tt.rawURL, err, tt.wantErr)
			}
		})
	}
}

func TestExtractText(t *testing.T) {
	page := `<html><head><title>My Page</title><style>.x{color:red}</style></head>
<body><script>alert(1)</script><h1>Heading</h1><p>First   paragraph.</p>
<nav>menu items</nav><p>Second paragraph.</p></body></html>`

	title, text := extractText([]byte(page))
	if title != "My Page" {
		t.Errorf("title = %q, want My Page", title)
	}
	if strings.Contains(text, "alert") || strings.Contains(text, "color:red") {
		t.Errorf("script or style leaked into text: %q", text)
	}
	if strings.Contains(text, "menu items") {
		t.Errorf("nav content leaked into text: %q", text)
	}
	if !strings.Contains(text, "Heading") || !strings.Contains(text, "First paragraph.") || !strings.Contains(text, "Second paragraph.") {
		t.Errorf("text missing content: %q", text)
	}
}

func TestFetchTruncatesLongPages(t *testing.T) {
	long := strings.Repeat("word ", 2000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html><head><title>Long</title></head><body><p>"+long+"</p></body></html>")
	}))
	defer srv.Close()

	c := NewClient(testLogger())
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse test url: %v", err)
	}
	res, err := c.get(context.Background(), u)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res.Title != "Long" {
		t.Errorf("title = %q", res.Title)
	}
	if len(res.Text) > maxTextChars+3 {
		t.Errorf("text length = %d, want <= %d", len(res.Text), maxTextChars+3)
	}
	if !strings.HasSuffix(res.Text, "...") {
		t.Error("truncated text should end with ellipsis")
	}
}

func TestFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(testLogger())
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse test url: %v", err)
	}
	if _, err := c.get(context.Background(), u); err == nil {
		t.Fatal("expected an error for a 404 response")
	}
}
