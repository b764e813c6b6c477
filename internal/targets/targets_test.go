package targets

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDeps() Deps {
	return Deps{
		HTTPTimeout: 5 * time.Second,
		UserAgent:   "test-agent",
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestAllTargetsRegistered(t *testing.T) {
	all := All(testDeps())

	for _, name := range Names() {
		target, ok := all[name]
		require.True(t, ok, "missing target %s", name)
		require.NotNil(t, target.Profile, "%s profile", name)
		require.NotNil(t, target.Provider, "%s provider", name)

		assert.Equal(t, name, target.Profile.Platform)
		assert.NotNil(t, target.Profile.Build, "%s build func", name)
		assert.NotNil(t, target.Profile.Framing, "%s framing", name)
		assert.NotEmpty(t, target.Profile.Fields.Fields, "%s field mapping", name)
	}
	assert.Len(t, all, len(Names()))
}

func TestHintPart(t *testing.T) {
	assert.Equal(t, "1234567", hintPart("1234567,12.97,77.59", 0))
	assert.Equal(t, "12.97", hintPart("1234567, 12.97 ,77.59", 1))
	assert.Equal(t, "", hintPart("1234567", 2))
	assert.Equal(t, "", hintPart("", 1))
}
