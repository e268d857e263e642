// Package resources implements MCP resource handlers for kith.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (kith://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/kith/internal/capture"
	"github.com/HendryAvila/kith/internal/store"
)

const contactURIPrefix = "kith://contacts/"

// DetailReader is the slice of the Local Store the handler reads.
type DetailReader interface {
	ContactDetail(id string) (*store.ContactDetail, error)
}

// Handler manages kith resource endpoints.
type Handler struct {
	store   DetailReader
	machine *capture.Machine
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(st DetailReader, m *capture.Machine) *Handler {
	return &Handler{store: st, machine: m}
}

// ContactTemplate returns the resource template for a contact's detail view.
func (h *Handler) ContactTemplate() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(
		contactURIPrefix+"{id}",
		"Contact",
		mcp.WithTemplateDescription("A contact with their facts, hot topics, recent notes and AI summary"),
		mcp.WithTemplateMIMEType("application/json"),
	)
}

// HandleContact returns one contact's detail view as JSON.
func (h *Handler) HandleContact(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id := strings.TrimPrefix(req.Params.URI, contactURIPrefix)
	if id == "" || id == req.Params.URI {
		return errorResource(req.Params.URI, "expected "+contactURIPrefix+"{id}"), nil
	}

	detail, err := h.store.ContactDetail(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errorResource(req.Params.URI, "no contact "+id), nil
		}
		return nil, fmt.Errorf("reading contact %s: %w", id, err)
	}
	return jsonResource(req.Params.URI, detail)
}

// CaptureResource returns the MCP resource definition for the capture state.
func (h *Handler) CaptureResource() mcp.Resource {
	return mcp.NewResource(
		"kith://capture/status",
		"Capture Status",
		mcp.WithResourceDescription("What the voice capture is doing right now"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleCapture returns the current capture snapshot as JSON.
func (h *Handler) HandleCapture(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req.Params.URI, h.machine.Snapshot())
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
