package extract_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sofia-labs/sofia/orchestrator/internal/extract"
)

type stubCodec struct {
	pdfText  string
	docxText string
	err      error
}

func (c *stubCodec) ExtractPdf(data []byte) (string, error)  { return c.pdfText, c.err }
func (c *stubCodec) ExtractDocx(data []byte) (string, error) { return c.docxText, c.err }

func TestAttachmentText_RoutesByMimeType(t *testing.T) {
	codec := &stubCodec{pdfText: "pdf content", docxText: "docx content"}

	if got := extract.AttachmentText(codec, []byte("x"), "application/pdf"); got != "pdf content" {
		t.Errorf("PDF AttachmentText() = %q, want %q", got, "pdf content")
	}

	docx := "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	if got := extract.AttachmentText(codec, []byte("x"), docx); got != "docx content" {
		t.Errorf("DOCX AttachmentText() = %q, want %q", got, "docx content")
	}

	// Images and unknown types are not text-extracted.
	if got := extract.AttachmentText(codec, []byte("x"), "image/png"); got != "" {
		t.Errorf("Image AttachmentText() = %q, want empty", got)
	}
}

func TestAttachmentText_FailureDegradesToEmpty(t *testing.T) {
	codec := &stubCodec{err: fmt.Errorf("corrupt file")}

	if got := extract.AttachmentText(codec, []byte("x"), "application/pdf"); got != "" {
		t.Errorf("Failed extraction = %q, want empty", got)
	}
}

func TestAttachmentText_NilCodec(t *testing.T) {
	if got := extract.AttachmentText(nil, []byte("x"), "application/pdf"); got != "" {
		t.Errorf("Nil codec AttachmentText() = %q, want empty", got)
	}
}

func TestTranscriptFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("video_id") != "dQw4w9WgXcQ" {
			t.Errorf("video_id = %q, want dQw4w9WgXcQ", r.URL.Query().Get("video_id"))
		}
		w.Write([]byte(`{"transcript":"never gonna give you up"}`))
	}))
	defer srv.Close()

	c := extract.NewTranscriptClient(srv.URL, "")
	got, ok := c.Fetch(context.Background(), "dQw4w9WgXcQ")
	if !ok {
		t.Fatal("Fetch() should succeed")
	}
	if got != "never gonna give you up" {
		t.Errorf("Fetch() = %q", got)
	}
}

func TestTranscriptFetch_AbsentOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := extract.NewTranscriptClient(srv.URL, "")
	if _, ok := c.Fetch(context.Background(), "someVideoId"); ok {
		t.Error("Fetch() should report absent on 404")
	}
}

func TestTranscriptFetch_NoEndpoint(t *testing.T) {
	c := extract.NewTranscriptClient("", "")
	if _, ok := c.Fetch(context.Background(), "id"); ok {
		t.Error("Fetch() with no endpoint should report absent")
	}
}

func TestDocFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/handbook.pdf" {
			t.Errorf("path = %q, want /handbook.pdf", r.URL.Path)
		}
		w.Write([]byte("pdf bytes"))
	}))
	defer srv.Close()

	d := extract.NewDocFetcher(srv.URL)
	data, ok := d.Fetch(context.Background(), "handbook.pdf")
	if !ok {
		t.Fatal("Fetch() should succeed")
	}
	if string(data) != "pdf bytes" {
		t.Errorf("Fetch() = %q", data)
	}
}

func TestDocFetch_AbsentOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := extract.NewDocFetcher(srv.URL)
	if _, ok := d.Fetch(context.Background(), "missing.pdf"); ok {
		t.Error("Fetch() should report absent on server error")
	}
}
