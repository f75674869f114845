package testutil

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/mocap.bridge/internal/mocap"
	"github.com/banshee-data/mocap.bridge/internal/tracker"
)

func TestServe(t *testing.T) {
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var v map[string]int
		_ = json.NewDecoder(r.Body).Decode(&v)
		v["seen"] = 1
		w.Header().Set("X-Method", r.Method)
		_ = json.NewEncoder(w).Encode(v)
	})

	rec := Serve(t, echo, http.MethodPost, "/x", map[string]int{"a": 2})
	assert.Equal(t, "POST", rec.Header().Get("X-Method"))
	assert.Equal(t, map[string]int{"a": 2, "seen": 1}, DecodeJSON[map[string]int](t, rec))

	rec = Serve(t, echo, http.MethodPut, "/x", `{"b":3}`)
	assert.Equal(t, map[string]int{"b": 3, "seen": 1}, DecodeJSON[map[string]int](t, rec))
}

func TestSkeletonFrame(t *testing.T) {
	f := SkeletonFrame(mocap.Head, r3.Vec{Y: 1.7})
	assert.Len(t, f.Segments, mocap.SegmentCount)
	assert.Equal(t, r3.Vec{Y: 1.7}, f.Segments[mocap.Head].Translation)
	assert.Equal(t, r3.Vec{}, f.Segments[mocap.Hips].Translation)
	assert.Equal(t, tracker.Identity, f.Segments[mocap.Hips].Rotation)
}
