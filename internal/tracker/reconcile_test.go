package tracker

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestCorrectHemisphere(t *testing.T) {
	ref := quat.Number{Real: 0.9, Imag: 0.1, Jmag: 0.3, Kmag: 0.2}
	tests := []struct {
		name string
		q    quat.Number
		want quat.Number
	}{
		{"same hemisphere", quat.Number{Real: 1}, quat.Number{Real: 1}},
		{"opposite hemisphere", quat.Number{Real: -0.9, Imag: -0.1, Jmag: -0.3, Kmag: -0.2}, ref},
		{"partial overlap", quat.Number{Real: 0.1, Kmag: -0.4}, quat.Number{Real: 0.1, Kmag: -0.4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := CorrectHemisphere(tt.q, ref)
			twice := CorrectHemisphere(once, ref)
			assert.InDelta(t, tt.want.Real, once.Real, 1e-12)
			assert.InDelta(t, tt.want.Imag, once.Imag, 1e-12)
			assert.Equal(t, once, twice)
			assert.GreaterOrEqual(t, dot(once, ref), -1e-12)
		})
	}
}

func TestOrigin_Rotation(t *testing.T) {
	q := Origin{Yaw: math.Pi / 2}.Rotation()
	assert.InDelta(t, math.Cos(math.Pi/4), q.Real, 1e-12)
	assert.InDelta(t, 0, q.Imag, 1e-12)
	assert.InDelta(t, math.Sin(math.Pi/4), q.Jmag, 1e-12)
	assert.InDelta(t, 0, q.Kmag, 1e-12)

	assert.Equal(t, Identity, Origin{}.Rotation())
}

func TestReconcile_VelocityEMA(t *testing.T) {
	now := time.Unix(100, 0)
	prev := NewTrackerPose()
	prev.Valid = true

	pose := Reconcile(prev, Prediction{Position: r3.Vec{X: 1}, Rotation: Identity}, Origin{}, 1.0, now)
	assert.InDelta(t, 0.2, pose.Velocity.X, 1e-12)

	pose = Reconcile(pose, Prediction{Position: r3.Vec{X: 2}, Rotation: Identity}, Origin{}, 1.0, now.Add(time.Second))
	assert.InDelta(t, 0.36, pose.Velocity.X, 1e-12)
	assert.Equal(t, 0.0, pose.Velocity.Y)
}

func TestReconcile_HoldsVelocityWithoutElapsedTime(t *testing.T) {
	prev := NewTrackerPose()
	prev.Valid = true
	prev.Velocity = r3.Vec{X: 0.5}

	for _, elapsed := range []float64{0, -0.1} {
		pose := Reconcile(prev, Prediction{Position: r3.Vec{X: 3}, Rotation: Identity}, Origin{}, elapsed, time.Now())
		assert.Equal(t, prev.Velocity, pose.Velocity)
		assert.Equal(t, 3.0, pose.Position.X)
	}
}

func TestReconcile_FirstPoseSeedsVelocity(t *testing.T) {
	pose := Reconcile(NewTrackerPose(), Prediction{Position: r3.Vec{X: 3}, Rotation: Identity}, Origin{}, 0.01, time.Now())
	assert.True(t, pose.Valid)
	assert.Equal(t, r3.Vec{}, pose.Velocity)
}

func TestReconcile_CopiesOriginEveryTick(t *testing.T) {
	origin := Origin{Translation: r3.Vec{X: 1, Y: 2, Z: 3}, Yaw: math.Pi}
	pose := Reconcile(NewTrackerPose(), Prediction{Status: StatusTooFewSamples}, origin, 0.1, time.Now())

	assert.Equal(t, origin.Translation, pose.WorldFromDriverTranslation)
	if diff := cmp.Diff(origin.Rotation(), pose.WorldFromDriverRotation, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("origin rotation mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0.0, pose.PoseTimeOffset)
}

func TestReconcile_FreezesWithoutSamples(t *testing.T) {
	prev := NewTrackerPose()
	prev.Position = r3.Vec{X: 1}
	prev.Valid = true
	now := time.Unix(5, 0)

	pose := Reconcile(prev, Prediction{Status: StatusTooFewSamples}, Origin{}, 0.1, now)
	assert.Equal(t, prev.Position, pose.Position)
	assert.Equal(t, StatusTooFewSamples, pose.Status)
	assert.Equal(t, now, pose.Timestamp)
}

func TestReconcile_NormalisesRotation(t *testing.T) {
	prev := NewTrackerPose()

	pose := Reconcile(prev, Prediction{Rotation: quat.Number{Real: 2}}, Origin{}, 0.1, time.Now())
	assert.Equal(t, Identity, pose.Rotation)

	prev.Rotation = quat.Number{Jmag: 1}
	pose = Reconcile(prev, Prediction{Rotation: quat.Number{}}, Origin{}, 0.1, time.Now())
	assert.Equal(t, prev.Rotation, pose.Rotation, "degenerate regression keeps previous rotation")

	pose = Reconcile(prev, Prediction{Rotation: quat.Number{Jmag: -0.5}}, Origin{}, 0.1, time.Now())
	assert.InDelta(t, 1.0, pose.Rotation.Jmag, 1e-12, "hemisphere follows previous rotation")
}
