package access

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuform-tech/docuform/core"
)

func TestRightsCovers(t *testing.T) {
	assert.True(t, (CanRead | CanCreate).Covers(CanRead))
	assert.True(t, (CanRead | CanCreate).Covers(CanCreate))
	assert.False(t, CanRead.Covers(CanCreate))
	assert.False(t, (CanUpdate | CanDelete).Covers(CanUpdate|CanCreate))
	assert.True(t, Rights(0).Covers(0))
}

func TestRequiredRights(t *testing.T) {
	testCases := []struct {
		method string
		mode   core.Mode
		rights Rights
	}{
		{http.MethodPost, core.ModeCreate, CanCreate},
		{http.MethodPost, core.ModeList, CanRead},
		{http.MethodPost, core.ModeListOwn, CanRead},
		{http.MethodPost, core.ModeExists, CanRead},
		{http.MethodPut, core.ModeUpdate, CanUpdate},
		{http.MethodDelete, core.ModeDelete, CanDelete},
	}
	for _, tc := range testCases {
		rights, err := RequiredRights(tc.method, tc.mode)
		require.NoError(t, err, "%s %s", tc.method, tc.mode)
		assert.Equal(t, tc.rights, rights, "%s %s", tc.method, tc.mode)
	}
}

func TestRequiredRightsUnmapped(t *testing.T) {
	// an unmapped combination is a registration bug, not a denial
	_, err := RequiredRights(http.MethodPut, core.ModeCreate)
	require.Error(t, err)
	_, err = RequiredRights(http.MethodPost, core.ModeUpdate)
	require.Error(t, err)
}

func TestActor(t *testing.T) {
	a := Authenticated("alice", CanRead|CanUpdate)
	identity, ok := a.Identity()
	require.True(t, ok)
	assert.Equal(t, "alice", identity)
	assert.False(t, a.IsAnonymous())

	_, ok = Anonymous.Identity()
	assert.False(t, ok)
	assert.True(t, Anonymous.IsAnonymous())
	assert.Equal(t, Rights(0), Anonymous.Rights())
}
