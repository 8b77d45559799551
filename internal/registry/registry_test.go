package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_AssociateAndLookup(t *testing.T) {
	r := New()

	_, had := r.Associate("c1", "mrc1")
	require.False(t, had)

	site, ok := r.Lookup("c1")
	require.True(t, ok)
	require.Equal(t, "mrc1", site)

	prev, had := r.Associate("c1", "mrc2")
	require.True(t, had)
	require.Equal(t, "mrc1", prev)
	require.Equal(t, 1, r.Len())
}

func TestRegistry_DissociateUnknownIsNoop(t *testing.T) {
	r := New()

	require.NotPanics(t, func() {
		site, ok := r.Dissociate("never-seen")
		require.False(t, ok)
		require.Empty(t, site)
	})
}

func TestRegistry_Dissociate(t *testing.T) {
	r := New()
	r.Associate("c1", "mrc1")

	site, ok := r.Dissociate("c1")
	require.True(t, ok)
	require.Equal(t, "mrc1", site)

	_, ok = r.Lookup("c1")
	require.False(t, ok)

	_, ok = r.Dissociate("c1")
	require.False(t, ok)
}

func TestRegistry_Followers(t *testing.T) {
	r := New()
	r.Associate("c2", "mrc1")
	r.Associate("c1", "mrc1")
	r.Associate("c3", "mrc2")

	require.Equal(t, []string{"c1", "c2"}, r.Followers("mrc1"))
	require.Equal(t, []string{"c3"}, r.Followers("mrc2"))
	require.Empty(t, r.Followers("mrc3"))
}
