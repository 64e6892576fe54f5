package logging

import (
	"bytes"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWriter(t *testing.T) {
	t.Cleanup(func() {
		logrus.SetOutput(os.Stderr)
		logrus.SetLevel(logrus.InfoLevel)
	})
	t.Setenv(EnvLevel, "")

	var buf bytes.Buffer
	require.NoError(t, SetupWriter(&buf, "warn"))
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())

	logrus.Info("hidden")
	logrus.WithField("store", "charters").Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "store=charters")

	require.NoError(t, SetupWriter(&buf, ""))
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())

	assert.Error(t, SetupWriter(&buf, "loud"))
}

func TestEnvOverride(t *testing.T) {
	t.Cleanup(func() {
		logrus.SetOutput(os.Stderr)
		logrus.SetLevel(logrus.InfoLevel)
	})
	t.Setenv(EnvLevel, "DEBUG")

	var buf bytes.Buffer
	require.NoError(t, SetupWriter(&buf, "error"))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
}
