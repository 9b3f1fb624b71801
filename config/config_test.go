package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientDefaults(t *testing.T) {
	c := DefaultClient()
	assert.Equal(t, int64(3000), c.AsyncInvokeTimeout)
	assert.Equal(t, int64(60000), c.RefreshEndpointInterval)
	assert.Equal(t, 10000, c.QueueLen)
	assert.Equal(t, int32(10000), c.ObjQueueMax)
	assert.Equal(t, 3*time.Second, c.AsyncInvokeTimeoutDuration())
	assert.Equal(t, 10*time.Minute, c.IdleTimeoutDuration())
}

func TestServerDefaults(t *testing.T) {
	s := DefaultServer()
	assert.Equal(t, int32(200000), s.MaxInvoke)
	assert.Equal(t, int64(10000), s.AcceptTimeout)
	assert.Equal(t, 10*time.Second, s.AcceptTimeoutDuration())
	assert.Equal(t, time.Minute, s.HandleTimeoutDuration())
	assert.False(t, s.TCPNoDelay)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadClient(t *testing.T) {
	path := writeFile(t, "client.yaml", `
locator: "tars.tarsregistry.QueryObj@tcp -h 10.0.0.1 -p 17890"
async-invoke-timeout: 5000
queue-len: 2000
`)
	c, err := LoadClient(path)
	require.NoError(t, err)
	assert.Equal(t, "tars.tarsregistry.QueryObj@tcp -h 10.0.0.1 -p 17890", c.Locator)
	assert.Equal(t, 5*time.Second, c.AsyncInvokeTimeoutDuration())
	assert.Equal(t, 2000, c.QueueLen)
	// Unset keys fall back to defaults.
	assert.Equal(t, int64(3000), c.DialTimeout)
	assert.Equal(t, int32(10000), c.ObjQueueMax)
}

func TestLoadServer(t *testing.T) {
	path := writeFile(t, "server.yaml", `
app: Test
server: HelloServer
local: "0.0.0.0:10000"
max-invoke: 50000
tcp-no-delay: true
`)
	s, err := LoadServer(path)
	require.NoError(t, err)
	assert.Equal(t, "Test", s.App)
	assert.Equal(t, "HelloServer", s.Name)
	assert.Equal(t, "0.0.0.0:10000", s.Local)
	assert.Equal(t, int32(50000), s.MaxInvoke)
	assert.True(t, s.TCPNoDelay)
	assert.Equal(t, int64(60000), s.ReadTimeout)
}

func TestLoadClientMissingFile(t *testing.T) {
	_, err := LoadClient(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
