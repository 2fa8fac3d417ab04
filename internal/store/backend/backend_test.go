package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waterFastAPI/internal/clock"
	"waterFastAPI/internal/config"
	"waterFastAPI/internal/store/memory"
)

func TestOpen_Memory(t *testing.T) {
	s, err := Open(context.Background(), config.Config{StoreBackend: config.StoreMemory}, nil, clock.System{})
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, s)
}

func TestOpen_FirestoreNeedsApp(t *testing.T) {
	_, err := Open(context.Background(), config.Config{StoreBackend: config.StoreFirestore}, nil, clock.System{})
	assert.Error(t, err)
}

func TestOpen_Unknown(t *testing.T) {
	_, err := Open(context.Background(), config.Config{StoreBackend: "redis"}, nil, clock.System{})
	assert.Error(t, err)
}
