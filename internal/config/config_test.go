package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, defaultPort, cfg.HTTP.Port)
	assert.Equal(t, defaultEnviPathURL, cfg.EnviPath.BaseURL)
	assert.Equal(t, defaultPollInterval, cfg.EnviPath.PollInterval)
	assert.Equal(t, defaultNodeLimit, cfg.EnviPath.NodeLimit)
	assert.Equal(t, RulesSourceFile, cfg.Rules.Source)
	assert.Equal(t, defaultRulesPath, cfg.Rules.Path)
	assert.Nil(t, cfg.HTTP.AllowedOrigins())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ENVIPATH_POLL_INTERVAL", "250ms")
	t.Setenv("ENVIPATH_NODE_LIMIT", "64")
	t.Setenv("RULES_SOURCE", "NONE")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.EnviPath.PollInterval)
	assert.Equal(t, 64, cfg.EnviPath.NodeLimit)
	assert.Equal(t, RulesSourceNone, cfg.Rules.Source)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.HTTP.AllowedOrigins())
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string][2]string{
		"bad port":          {"SERVER_PORT", "70000"},
		"bad duration":      {"ENVIPATH_POLL_TIMEOUT", "soon"},
		"bad node limit":    {"ENVIPATH_NODE_LIMIT", "20"},
		"bad rules source":  {"RULES_SOURCE", "pickle"},
		"bad log format":    {"LOG_FORMAT", "xml"},
		"graph without uri": {"RULES_SOURCE", "graph"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
