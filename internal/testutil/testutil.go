// Package testutil provides shared test helpers for HTTP handlers and
// skeleton fixtures.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/mocap.bridge/internal/mocap"
	"github.com/banshee-data/mocap.bridge/internal/tracker"
)

// Serve runs one request against h. A non-nil body is JSON encoded.
func Serve(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// DecodeJSON decodes a recorded response body into T.
func DecodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

// SkeletonFrame returns a full frame with identity rotations where seg sits
// at pos and every other segment at the origin.
func SkeletonFrame(seg mocap.Segment, pos r3.Vec) mocap.Frame {
	segs := make([]mocap.SegmentPose, mocap.SegmentCount)
	for i := range segs {
		segs[i].Rotation = tracker.Identity
	}
	segs[seg].Translation = pos
	return mocap.Frame{Segments: segs}
}
