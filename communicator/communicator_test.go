package communicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tars-rpc/config"
	"tars-rpc/endpoint"
	"tars-rpc/registry"
)

func TestStringToProxyDirect(t *testing.T) {
	c := New()
	defer c.Close()

	proxy, err := c.StringToProxy("Test.HelloServer.HelloObj@tcp -h 127.0.0.1 -p 29100")
	require.NoError(t, err)
	assert.Equal(t, "Test.HelloServer.HelloObj", proxy.Name())
	require.Len(t, proxy.Adapters(), 1)
}

func TestStringToProxyCaches(t *testing.T) {
	c := New()
	defer c.Close()

	p1, err := c.StringToProxy("Test.HelloServer.HelloObj@tcp -h 127.0.0.1 -p 29101")
	require.NoError(t, err)
	p2, err := c.StringToProxy("Test.HelloServer.HelloObj@tcp -h 127.0.0.1 -p 29101")
	require.NoError(t, err)
	assert.Same(t, p1, p2)
}

func TestStringToProxyEmpty(t *testing.T) {
	c := New()
	defer c.Close()
	_, err := c.StringToProxy("")
	assert.Error(t, err)
}

func TestStringToProxyNoRegistrar(t *testing.T) {
	c := New()
	defer c.Close()
	_, err := c.StringToProxy("Test.HelloServer.HelloObj")
	assert.Error(t, err)
}

func TestStringToProxyViaRegistrar(t *testing.T) {
	c := New()
	defer c.Close()
	c.SetRegistrar(registry.NewDirect([]endpoint.Endpoint{
		endpoint.TCP("127.0.0.1", 29102),
		endpoint.TCP("127.0.0.1", 29103),
	}))

	proxy, err := c.StringToProxy("Test.HelloServer.HelloObj")
	require.NoError(t, err)
	assert.Len(t, proxy.Adapters(), 2)
}

func TestWithConfigAppliesTimeout(t *testing.T) {
	cfg := config.DefaultClient()
	cfg.AsyncInvokeTimeout = 7000
	c := WithConfig(cfg)
	defer c.Close()

	proxy, err := c.StringToProxy("Test.HelloServer.HelloObj@tcp -h 127.0.0.1 -p 29104")
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, proxy.Timeout())
}

func TestProperties(t *testing.T) {
	c := New()
	defer c.Close()

	c.SetProperty("k", "v")
	v, ok := c.Property("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	_, ok = c.Property("missing")
	assert.False(t, ok)
}

func TestSetLocatorStoresProperty(t *testing.T) {
	c := New()
	defer c.Close()

	c.SetLocator("tars.tarsregistry.QueryObj@tcp -h 10.0.0.1 -p 17890")
	v, ok := c.Property("locator")
	require.True(t, ok)
	assert.Contains(t, v, "QueryObj")
	assert.Equal(t, "tars.tarsregistry.QueryObj@tcp -h 10.0.0.1 -p 17890", c.Config().Locator)
}

func TestGlobalSingleton(t *testing.T) {
	assert.Same(t, Global(), Global())
}
