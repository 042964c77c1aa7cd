package logging

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWithOptionsWritesRenamedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stabled.log")
	logger, closer := SetupWithOptions(Options{Service: "stabled", Env: "test", Level: "debug", File: path})
	logger.Debug("stable engine: ready", MaskField("token", "secret"), MaskField("reason", "visible"))
	require.NoError(t, closer.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())

	var line map[string]any
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
	require.Equal(t, "stable engine: ready", line["message"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "stabled", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, RedactedValue, line["token"])
	require.Equal(t, "visible", line["reason"])
	require.Contains(t, line, "timestamp")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelWarn, ParseLevel(" WARN "))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestSetupRedactsCredentialKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stabled.log")
	logger, closer := SetupWithOptions(Options{Service: "stabled", File: path})
	logger.Info("stabled: storage opened",
		"token", "eyJhbGciOiJIUzI1NiJ9.payload.sig",
		"dsn", "postgres://stable:hunter2@db:5432/stable?sslmode=disable",
		"asset", "0xa0")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "hunter2")
	require.NotContains(t, string(raw), "payload.sig")

	var line map[string]any
	require.NoError(t, json.Unmarshal(raw, &line))
	require.Equal(t, RedactedValue, line["token"])
	require.Equal(t, "postgres://stable:xxxxx@db:5432/stable?sslmode=disable", line["dsn"])
	require.Equal(t, "0xa0", line["asset"])
}

func TestMaskValue(t *testing.T) {
	require.Equal(t, "", MaskValue(""))
	require.Equal(t, RedactedValue, MaskValue("abc"))
	require.True(t, IsAllowlisted("Asset"))
	require.False(t, IsAllowlisted("reference"))
	require.True(t, IsSensitive(" Authorization "))
	require.Contains(t, RedactionAllowlist(), "operation")
	require.Equal(t, slog.String("reference", RedactedValue), MaskField("reference", "case-7"))
	require.Equal(t, slog.String("feed", "bond-usd"), MaskField("feed", "bond-usd"))
}

func TestMaskReference(t *testing.T) {
	require.Equal(t, "", MaskReference("  "))
	require.Equal(t, RedactedValue, MaskReference("c-7"))
	require.Equal(t, "***1234", MaskReference("kyc-case-1234"))
}

func TestRedactDSN(t *testing.T) {
	cases := map[string]string{
		"":                                    "",
		"/var/lib/stabled/stabled.db":         "/var/lib/stabled/stabled.db",
		"file:/var/lib/stabled.db?_pragma=fk": "file:/var/lib/stabled.db?_pragma=fk",
		"postgres://stable:hunter2@db/stable": "postgres://stable:xxxxx@db/stable",
		"postgres://db/stable?password=hunter2&sslmode=disable": "postgres://db/stable?password=xxxxx&sslmode=disable",
		"host=db user=stable password=hunter2 dbname=stable":    "host=db user=stable password=" + RedactedValue + " dbname=stable",
	}
	for in, want := range cases {
		require.Equal(t, want, RedactDSN(in), in)
	}
}
