package profile

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnvVars(t *testing.T) {
	t.Helper()
	keys := []string{
		"CONTENTPIPE_DRIVER", "CONTENTPIPE_DSN", "CONTENTPIPE_MODE",
		"CONTENTPIPE_WORKER_ID", "CONTENTPIPE_MAX_RETRIES",
		"CONTENTPIPE_CLEANUP_DAYS", "CONTENTPIPE_LLM_PROVIDER",
	}
	for _, k := range keys {
		orig, ok := os.LookupEnv(k)
		_ = os.Unsetenv(k)
		t.Cleanup(func() {
			if ok {
				_ = os.Setenv(k, orig)
			}
		})
	}
}

func TestProfileDefaults(t *testing.T) {
	clearEnvVars(t)

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "postgres", p.Driver)
	assert.Equal(t, "dev", p.Mode)
	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, 7, p.CleanupDays)
	assert.Equal(t, 30, p.CheckoutTimeoutMinutes)
	assert.NotEmpty(t, p.WorkerID)
}

func TestValidateRequiresDSNForPostgres(t *testing.T) {
	p := &Profile{Driver: "postgres"}
	err := p.Validate()
	require.Error(t, err)
}

func TestValidateDefaultsSqliteDSN(t *testing.T) {
	p := &Profile{Driver: "sqlite", Mode: "dev"}
	require.NoError(t, p.Validate())
	assert.NotEmpty(t, p.DSN)
}

func TestValidateDefaultsUnknownModeToDev(t *testing.T) {
	p := &Profile{Driver: "sqlite", Mode: "bogus"}
	require.NoError(t, p.Validate())
	assert.Equal(t, "dev", p.Mode)
}

func TestIsDev(t *testing.T) {
	assert.True(t, (&Profile{Mode: "dev"}).IsDev())
	assert.False(t, (&Profile{Mode: "prod"}).IsDev())
}
