package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waterFastAPI/internal/progress"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestGetPhases(t *testing.T) {
	env := newTestEnv(t)
	h := NewDocHandler(env.service, env.store, "1.2.0")

	rr := call(h.GetPhases, http.MethodGet, "/api/v1/phases", "", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	phases := decode[[]progress.Phase](t, rr)
	require.Len(t, phases, 7)
	assert.Equal(t, "Fast begins", phases[0].Title)
	assert.Equal(t, 72.0, phases[6].ThresholdHours)
}

func TestGetAppMinVersion(t *testing.T) {
	env := newTestEnv(t)
	h := NewDocHandler(env.service, env.store, "1.2.0")

	rr := call(h.GetAppMinVersion, http.MethodGet, "/api/v1/min-version", "", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1.2.0", decode[map[string]string](t, rr)["min_version"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rr := call(NewDocHandler(env.service, env.store, "1").Health, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	down := pingFunc(func(context.Context) error { return errors.New("down") })
	rr = call(NewDocHandler(env.service, down, "1").Health, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
