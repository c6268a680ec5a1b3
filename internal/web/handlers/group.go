package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/kozaktomas/face-groups/internal/batch"
	"github.com/kozaktomas/face-groups/internal/constants"
	"github.com/kozaktomas/face-groups/internal/detector"
)

const welcomeText = "Welcome to the face grouping API! POST a JSON body " +
	`{"imageUrls": [...]} to this endpoint to get the images grouped by the person they show.`

// Grouper runs one grouping batch.
type Grouper interface {
	Process(ctx context.Context, refs []string) (*batch.Result, error)
}

// GroupHandler serves the grouping endpoint.
type GroupHandler struct {
	grouper   Grouper
	maxImages int
}

// NewGroupHandler creates a group handler. maxImages caps the number of
// references accepted per request; zero or less disables the cap.
func NewGroupHandler(grouper Grouper, maxImages int) *GroupHandler {
	return &GroupHandler{
		grouper:   grouper,
		maxImages: maxImages,
	}
}

// GroupRequest is the request body of the grouping endpoint.
type GroupRequest struct {
	ImageURLs *[]string `json:"imageUrls"`
}

// GroupJSON is one identity group in the response.
type GroupJSON struct {
	URLs  []string `json:"urls"`
	Count int      `json:"count"`
}

// GroupResponse is the successful response of the grouping endpoint.
type GroupResponse struct {
	ID      string       `json:"id"`
	Groups  []GroupJSON  `json:"groups"`
	Skipped []batch.Skip `json:"skipped"`
	Stats   batch.Stats  `json:"stats"`
}

// Welcome describes how to use the endpoint.
func (h *GroupHandler) Welcome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(welcomeText))
}

// Group fetches every image in the request and returns the identity groups.
func (h *GroupHandler) Group(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBodyBytes)

	var req GroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondError(w, http.StatusBadRequest, "request body too large")
			return
		}
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	refs, msg := h.validate(req)
	if msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	result, err := h.grouper.Process(r.Context(), refs)
	if err != nil {
		status, message := groupErrorStatus(err)
		log.Printf("Grouping %d images failed: %s", len(refs), sanitizeForLog(err.Error()))
		if errors.Is(r.Context().Err(), context.DeadlineExceeded) {
			// The Timeout middleware answers 504 for an expired request.
			return
		}
		respondError(w, status, message)
		return
	}

	respondJSON(w, http.StatusOK, newGroupResponse(result))
}

func (h *GroupHandler) validate(req GroupRequest) ([]string, string) {
	if req.ImageURLs == nil {
		return nil, "imageUrls is required"
	}
	refs := *req.ImageURLs
	if h.maxImages > 0 && len(refs) > h.maxImages {
		return nil, fmt.Sprintf("too many images: %d (maximum %d)", len(refs), h.maxImages)
	}
	for i, ref := range refs {
		if ref == "" {
			return nil, fmt.Sprintf("imageUrls[%d] is empty", i)
		}
	}
	return refs, ""
}

// groupErrorStatus maps a batch failure to a response status and a message
// safe to show to clients.
func groupErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, detector.ErrNotReady):
		return http.StatusServiceUnavailable, "face detector is not ready"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "request cancelled"
	default:
		return http.StatusInternalServerError, "failed to group images"
	}
}

func newGroupResponse(result *batch.Result) GroupResponse {
	resp := GroupResponse{
		ID:      result.ID,
		Groups:  make([]GroupJSON, 0, len(result.Groups)),
		Skipped: result.Skipped,
		Stats:   result.Stats,
	}
	if resp.Skipped == nil {
		resp.Skipped = []batch.Skip{}
	}
	for _, g := range result.Groups {
		resp.Groups = append(resp.Groups, GroupJSON{URLs: g.Refs, Count: len(g.Refs)})
	}
	return resp
}
