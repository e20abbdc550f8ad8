package validators

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/harukimori/fleamarket-backend/pkg/errors"
)

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/?limit=10", nil)
	value, err := ParseQueryInt(req, "limit", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, value)

	req = httptest.NewRequest("GET", "/", nil)
	value, err = ParseQueryInt(req, "limit", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, value)

	req = httptest.NewRequest("GET", "/?limit=abc", nil)
	_, err = ParseQueryInt(req, "limit", 25, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	req = httptest.NewRequest("GET", "/?limit=500", nil)
	_, err = ParseQueryInt(req, "limit", 25, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseQueryDate(t *testing.T) {
	req := httptest.NewRequest("GET", "/?from=2026-08-01", nil)
	value, err := ParseQueryDate(req, "from")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), value)

	req = httptest.NewRequest("GET", "/", nil)
	_, err = ParseQueryDate(req, "from")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	req = httptest.NewRequest("GET", "/?from=08-01-2026", nil)
	_, err = ParseQueryDate(req, "from")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
