package util

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDebugEnabled_False(t *testing.T) {
	t.Setenv("ZATCA_DEBUG", "")
	res := DebugEnabled()
	assert.False(t, res, "debug should be false")

	t.Setenv("ZATCA_DEBUG", "maybe")
	assert.False(t, DebugEnabled(), "non-boolean value should be ignored")
}

func TestIsDebugEnabled_True(t *testing.T) {
	t.Setenv("ZATCA_DEBUG", "true")

	log.SetFormatter(&log.TextFormatter{
		DisableColors: false,
		FullTimestamp: true,
		ForceColors:   true,
	})

	log.Debug("test logging")

	res := DebugEnabled()
	assert.True(t, res, "debug should be true")
}

func TestLookupEnv_BlankIsUnset(t *testing.T) {
	t.Setenv("ZATCA_TEST_VALUE", "   ")
	_, ok := LookupEnv("ZATCA_TEST_VALUE")
	assert.False(t, ok)
	assert.Equal(t, "fallback", EnvOrDefault("ZATCA_TEST_VALUE", "fallback"))

	t.Setenv("ZATCA_TEST_VALUE", " set ")
	v, ok := LookupEnv("ZATCA_TEST_VALUE")
	assert.True(t, ok)
	assert.Equal(t, "set", v)
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("ZATCA_TEST_TIMEOUT", "")
	d, err := EnvDuration("ZATCA_TEST_TIMEOUT", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	t.Setenv("ZATCA_TEST_TIMEOUT", "15")
	d, err = EnvDuration("ZATCA_TEST_TIMEOUT", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, d)

	t.Setenv("ZATCA_TEST_TIMEOUT", "1m30s")
	d, err = EnvDuration("ZATCA_TEST_TIMEOUT", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	for _, bad := range []string{"0", "-5", "soon", "-1s"} {
		t.Setenv("ZATCA_TEST_TIMEOUT", bad)
		_, err = EnvDuration("ZATCA_TEST_TIMEOUT", 30*time.Second)
		assert.Error(t, err, bad)
	}
}
