package membershipcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMembershipAcceptsKnownValues(t *testing.T) {
	for _, raw := range []string{"join", "leave", "invite", "ban", "knock"} {
		m, err := ParseMembership(raw)
		require.NoError(t, err)
		require.Equal(t, Membership(raw), m)
	}
}

func TestParseMembershipRejectsUnknown(t *testing.T) {
	_, err := ParseMembership("teleport")
	require.Error(t, err)
}

func TestUpdateMembershipAndJoinedCount(t *testing.T) {
	c := New()

	require.NoError(t, c.UpdateMembership("!room", "@a:x", Join, "@a:x", nil, false))
	require.NoError(t, c.UpdateMembership("!room", "@b:x", Join, "@a:x", nil, false))
	require.NoError(t, c.UpdateMembership("!room", "@c:x", Invite, "@a:x", nil, false))
	require.NoError(t, c.UpdateJoinedCount("!room"))

	require.Equal(t, 2, c.JoinedCount("!room"))

	m, ok := c.MembershipOf("!room", "@c:x")
	require.True(t, ok)
	require.Equal(t, Invite, m)

	require.NoError(t, c.UpdateMembership("!room", "@b:x", Leave, "@b:x", nil, false))
	require.NoError(t, c.UpdateJoinedCount("!room"))
	require.Equal(t, 1, c.JoinedCount("!room"))
}

func TestMembershipOfUnknownUser(t *testing.T) {
	c := New()
	_, ok := c.MembershipOf("!room", "@nobody:x")
	require.False(t, ok)
}
