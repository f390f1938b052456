package logging

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerFields(t *testing.T) {
	assert.Equal(t, base, Logger(nil))
	assert.Equal(t, base, Logger(context.Background()))

	ctx := WithCorrelationID(WithTxnID(context.Background(), "txn-1"), "corr-1")
	e := Logger(ctx)
	assert.Equal(t, "txn-1", e.Data["txnid"])
	assert.Equal(t, "corr-1", e.Data["correlation"])
	assert.NotEmpty(t, e.Data["instance"])
	assert.Equal(t, "txn-1", TxnID(ctx))
	assert.Equal(t, "", TxnID(nil))
}

func TestForDevice(t *testing.T) {
	e := ForDevice("192.168.1.108", 2)
	assert.Equal(t, "192.168.1.108", e.Data["device"])
	assert.Equal(t, 2, e.Data["channel"])
}

func TestConfigure(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)
	defer logrus.SetFormatter(&logrus.TextFormatter{})

	cfg := viper.New()
	cfg.Set("logging.location", "stderr")
	cfg.Set("logging.level", "warn")
	cfg.Set("logging.format", "json")
	require.NoError(t, Configure(cfg))
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())
	assert.NotEmpty(t, base.Data["pid"])

	cfg.Set("logging.level", "chatty")
	assert.Error(t, Configure(cfg))

	cfg.Set("logging.level", "info")
	cfg.Set("logging.format", "xml")
	assert.Error(t, Configure(cfg))

	cfg.Set("logging.location", t.TempDir()+"/missing/dir/log")
	assert.Error(t, Configure(cfg))
}
