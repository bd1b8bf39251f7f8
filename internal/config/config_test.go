package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/eventlog"
)

func TestDefault(t *testing.T) {
	t.Setenv(SecretEnv, "")
	c := Default()

	assert.Equal(t, ":8080", c.ListenAddress)
	assert.NotEmpty(t, c.BaseDir)
	assert.Equal(t, 500*time.Millisecond, c.PollTimeout)
	assert.Equal(t, eventlog.DefaultCapacity, c.HistoryCapacity)
	assert.Equal(t, "info", c.Logging.Level)
	assert.ErrorIs(t, c.Validate(), ErrMissingSecret)
}

func TestParse(t *testing.T) {
	c, err := Parse([]byte(`
listen: ":9000"
grpcListen: ":9001"
baseDir: /data/app
secretKey: s3cret
pollTimeout: 250ms
historyCapacity: 32
autoStart: true
node:
  name: field-unit
  storageDir: reticulum
  tcpClients: ["rns.example.org:4242"]
  broadcast: false
  announceIntervalSeconds: 60
  hubMode: RchHttp
  hubApiBaseUrl: https://hub.example.org/api
logging:
  level: debug
  format: json
`))
	require.NoError(t, err)

	assert.Equal(t, ":9000", c.ListenAddress)
	assert.Equal(t, ":9001", c.GRPCAddress)
	assert.Equal(t, "/data/app", c.BaseDir)
	assert.Equal(t, 250*time.Millisecond, c.PollTimeout)
	assert.Equal(t, 32, c.HistoryCapacity)
	assert.True(t, c.AutoStart)

	assert.Equal(t, "field-unit", c.Node.Name)
	assert.Equal(t, "reticulum", c.Node.StorageDir)
	assert.Equal(t, []string{"rns.example.org:4242"}, c.Node.TCPClients)
	require.NotNil(t, c.Node.Broadcast)
	assert.False(t, *c.Node.Broadcast)
	require.NotNil(t, c.Node.AnnounceIntervalSeconds)
	assert.Equal(t, 60, *c.Node.AnnounceIntervalSeconds)
	assert.Nil(t, c.Node.AnnounceCapabilities)
	assert.Equal(t, "RchHttp", c.Node.HubMode)
	assert.Equal(t, "https://hub.example.org/api", c.Node.HubAPIBaseURL)

	assert.Equal(t, "debug", c.Logging.Level)
	assert.Equal(t, "json", c.Logging.Format)
}

func TestParse_Errors(t *testing.T) {
	t.Setenv(SecretEnv, "")
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "secretKey: x\nbogus: 1\n"},
		{"missing secret", "listen: \":8080\"\n"},
		{"bad log level", "noAuth: true\nlogging:\n  level: shout\n"},
		{"bad duration", "noAuth: true\npollTimeout: soon\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParse_EmptyDocumentWithNoAuth(t *testing.T) {
	t.Setenv(SecretEnv, "")
	_, err := Parse(nil)
	assert.ErrorIs(t, err, ErrMissingSecret)

	c, err := Parse([]byte("noAuth: true\n"))
	require.NoError(t, err)
	assert.True(t, c.NoAuth)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("secretKey: abc\nbaseDir: /srv\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv", c.BaseDir)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSecretFromEnvironment(t *testing.T) {
	t.Setenv(SecretEnv, "from-env")

	c, err := Parse([]byte("listen: \":9000\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.SecretKey)

	c, err = Parse([]byte("secretKey: from-file\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-file", c.SecretKey)
}

func TestReadFile_DefersValidation(t *testing.T) {
	t.Setenv(SecretEnv, "")
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9000\"\n"), 0o600))

	c, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", c.ListenAddress)
	assert.ErrorIs(t, c.Validate(), ErrMissingSecret)

	_, err = Load(path)
	assert.ErrorIs(t, err, ErrMissingSecret)

	require.NoError(t, os.WriteFile(path, []byte("bogus: true\n"), 0o600))
	_, err = ReadFile(path)
	assert.Error(t, err)
}
