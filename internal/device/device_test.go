package device

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConsoleCapturesBytes(t *testing.T) {
	c := NewConsole()
	require.NoError(t, c.Init())
	n, err := c.Write([]byte("hi\n"))
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []byte("hi\n"), c.Captured())
}

func TestNewSelectsBackend(t *testing.T) {
	require.IsType(t, &console{}, New(BackendConsole))
	require.IsType(t, &uart{}, New(BackendUART))
	require.IsType(t, &jtag{}, New(BackendJTAG))
}
