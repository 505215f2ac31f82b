package storage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/vfsim/internal/fserr"
	"github.com/stackvity/vfsim/internal/platform"
)

var (
	allAccess = []FileAccess{AccessRead, AccessWrite, AccessReadWrite}
	allShare  = []FileShare{
		ShareNone, ShareRead, ShareWrite, ShareReadWrite,
		ShareDelete, ShareRead | ShareDelete, ShareWrite | ShareDelete, ShareReadWrite | ShareDelete,
	}
)

// permits is the sharing rule stated independently of the implementation.
func permits(share FileShare, access FileAccess) bool {
	if access&AccessRead != 0 && share&ShareRead == 0 {
		return false
	}
	if access&AccessWrite != 0 && share&ShareWrite == 0 {
		return false
	}
	return true
}

func TestSharingMatrix(t *testing.T) {
	for _, a1 := range allAccess {
		for _, s1 := range allShare {
			for _, a2 := range allAccess {
				for _, s2 := range allShare {
					name := fmt.Sprintf("%s-%s_vs_%s-%s", a1, s1, a2, s2)
					t.Run(name, func(t *testing.T) {
						m := NewLockManager(platform.Windows, true)
						c := &Container{kind: KindFile}
						h1, err := m.Request(c, a1, s1)
						require.NoError(t, err)

						want := permits(s1, a2) && permits(s2, a1)
						h2, err := m.Request(c, a2, s2)
						if want {
							require.NoError(t, err)
							assert.Equal(t, 2, m.OpenCount(c))
							m.Release(h2)
						} else {
							require.Error(t, err)
							assert.ErrorIs(t, err, fserr.ErrSharingViolation)
							assert.Equal(t, fserr.AccessDenied, fserr.KindOf(err))
							assert.Equal(t, 1, m.OpenCount(c))
						}
						m.Release(h1)
						assert.Equal(t, 0, m.Tracked(), "releasing the last handle stops tracking")
					})
				}
			}
		}
	}
}

func TestRelaxedSharing(t *testing.T) {
	m := NewLockManager(platform.Unix, false)
	c := &Container{kind: KindFile}
	_, err := m.Request(c, AccessReadWrite, ShareNone)
	require.NoError(t, err)
	_, err = m.Request(c, AccessReadWrite, ShareNone)
	require.NoError(t, err)
	assert.True(t, m.CanDelete(c))
	assert.True(t, m.CanOverwrite(c))
	assert.False(t, m.Strict())
}

func TestScenarioReadThenReadWrite(t *testing.T) {
	for _, tc := range []struct {
		mode platform.Mode
		ok   bool
	}{{platform.Windows, false}, {platform.Unix, true}} {
		t.Run(tc.mode.String(), func(t *testing.T) {
			f := newFixture(t, tc.mode)
			path := tc.mode.DefaultRoot() + "shared.txt"
			f.write(t, path, "data")

			h1, err := f.reg.Open(f.loc(t, path), OpenRequest{Disposition: Open, Access: AccessRead, Share: ShareRead})
			require.NoError(t, err)
			h2, err := f.reg.Open(f.loc(t, path), OpenRequest{Disposition: Open, Access: AccessReadWrite, Share: ShareRead})
			if tc.ok {
				require.NoError(t, err)
				require.NoError(t, f.reg.Release(h2.Handle, false))
			} else {
				assert.ErrorIs(t, err, fserr.ErrAccessDenied)
				assert.Equal(t, fserr.HResultSharingViolation, fserr.CodeOf(err))
			}
			require.NoError(t, f.reg.Release(h1.Handle, false))
			assert.Equal(t, 0, f.reg.Locks().Tracked())
		})
	}
}

func TestHandleIdentity(t *testing.T) {
	m := NewLockManager(platform.Windows, true)
	c := &Container{kind: KindFile}
	h1, err := m.Request(c, AccessRead, ShareReadWrite)
	require.NoError(t, err)
	h2, err := m.Request(c, AccessRead, ShareReadWrite)
	require.NoError(t, err)
	assert.NotEqual(t, h1.ID, h2.ID)
	assert.Same(t, c, h1.Container())
	assert.Equal(t, "ReadWrite|Delete", (ShareReadWrite | ShareDelete).String())
	assert.Equal(t, "None", ShareNone.String())
}
