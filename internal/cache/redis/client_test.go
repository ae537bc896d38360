package redis

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientConfigOptions(t *testing.T) {
	opts := ClientConfig{Addr: "cache:6379", DB: 2, PoolSize: 4}.options()
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, "hypejk", opts.ClientName)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, dialTimeout, opts.DialTimeout)
	assert.Nil(t, opts.TLSConfig)

	opts = ClientConfig{Addr: "cache:6380", TLSEnabled: true}.options()
	require.NotNil(t, opts.TLSConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), opts.TLSConfig.MinVersion)
}
