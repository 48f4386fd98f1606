package bootcfg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nanvix/kernel-sub003/internal/defs"
)

func TestParseModuleAcceptsValidVersion(t *testing.T) {
	m, errno := ParseModule(0, 10, "init version=v1.2.3 quiet")
	require.Equal(t, defs.Errno(0), errno)
	require.Equal(t, "v1.2.3", m.Version)
}

func TestParseModuleRejectsInvalidVersion(t *testing.T) {
	_, errno := ParseModule(0, 10, "version=not-a-semver")
	require.Equal(t, defs.EINVAL, errno)
}

func TestParseModuleRejectsBackwardsRange(t *testing.T) {
	_, errno := ParseModule(10, 0, "")
	require.Equal(t, defs.EINVAL, errno)
}

func TestParseModuleRejectsOverlongCmdline(t *testing.T) {
	_, errno := ParseModule(0, 10, strings.Repeat("x", 65))
	require.Equal(t, defs.EINVAL, errno)
}

func TestNewerVersionRequiresBothVersioned(t *testing.T) {
	a, _ := ParseModule(0, 1, "version=v2.0.0")
	b, _ := ParseModule(0, 1, "version=v1.0.0")
	c, _ := ParseModule(0, 1, "")
	require.True(t, NewerVersion(a, b))
	require.False(t, NewerVersion(b, a))
	require.False(t, NewerVersion(a, c))
}

func TestTableGetOutOfRange(t *testing.T) {
	tbl := NewTable(nil)
	_, errno := tbl.Get(0)
	require.Equal(t, defs.ESRCH, errno)
}

func TestTableGetReturnsModule(t *testing.T) {
	m, _ := ParseModule(0, 1, "init")
	tbl := NewTable([]Module{m})
	require.Equal(t, 1, tbl.Len())
	got, errno := tbl.Get(0)
	require.Equal(t, defs.Errno(0), errno)
	require.Equal(t, m, got)
}
