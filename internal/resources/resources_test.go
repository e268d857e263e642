package resources

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/kith/internal/capture"
	"github.com/HendryAvila/kith/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(store.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func readReq(uri string) mcp.ReadResourceRequest {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	return req
}

func onlyText(t *testing.T, contents []mcp.ResourceContents) mcp.TextResourceContents {
	t.Helper()
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	return tc
}

func TestHandleContact(t *testing.T) {
	s := newTestStore(t)
	c, err := s.CreateContact(store.CreateContactParams{FirstName: "Ana", Tags: []string{"work"}})
	if err != nil {
		t.Fatalf("CreateContact: %v", err)
	}
	h := NewHandler(s, nil)

	if got := h.ContactTemplate().URITemplate.Raw(); got != "kith://contacts/{id}" {
		t.Errorf("template = %q", got)
	}

	contents, err := h.HandleContact(context.Background(), readReq("kith://contacts/"+c.ID))
	if err != nil {
		t.Fatalf("HandleContact: %v", err)
	}
	tc := onlyText(t, contents)
	if tc.MIMEType != "application/json" {
		t.Errorf("MIMEType = %q", tc.MIMEType)
	}
	var detail store.ContactDetail
	if err := json.Unmarshal([]byte(tc.Text), &detail); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if detail.Contact.ID != c.ID || detail.Contact.FirstName != "Ana" {
		t.Errorf("detail = %+v", detail.Contact)
	}
}

func TestHandleContact_Errors(t *testing.T) {
	h := NewHandler(newTestStore(t), nil)
	for _, uri := range []string{"kith://contacts/missing", "kith://contacts/", "kith://other"} {
		contents, err := h.HandleContact(context.Background(), readReq(uri))
		if err != nil {
			t.Fatalf("%s: unexpected Go error: %v", uri, err)
		}
		tc := onlyText(t, contents)
		if !strings.HasPrefix(tc.Text, "Error:") {
			t.Errorf("%s: text = %q", uri, tc.Text)
		}
	}
}

func TestHandleCapture(t *testing.T) {
	m := capture.New(nil, nil, nil, nil)
	h := NewHandler(nil, m)

	contents, err := h.HandleCapture(context.Background(), readReq("kith://capture/status"))
	if err != nil {
		t.Fatalf("HandleCapture: %v", err)
	}
	var snap capture.Snapshot
	if err := json.Unmarshal([]byte(onlyText(t, contents).Text), &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if snap.State != capture.StateIdle {
		t.Errorf("state = %q, want idle", snap.State)
	}
}
