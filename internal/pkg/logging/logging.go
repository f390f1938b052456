package logging

import (
	"context"
	"os"
	"path"

	stdlog "log"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type ctxKey int

const (
	txnIDKey ctxKey = iota
	correlationIDKey
)

// WithTxnID returns a context carrying the request transaction ID
func WithTxnID(ctx context.Context, txnID string) context.Context {
	return context.WithValue(ctx, txnIDKey, txnID)
}

// WithCorrelationID returns a context carrying a caller supplied
// correlation ID
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// TxnID returns the transaction ID stored in ctx, if any
func TxnID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(txnIDKey).(string)
	return id
}

var (
	base       *logrus.Entry
	logFile    *os.File
	instanceID string
)

func processFields() logrus.Fields {
	return logrus.Fields{
		"pid":      os.Getpid(),
		"exe":      path.Base(os.Args[0]),
		"instance": instanceID,
	}
}

// Logger returns the process logger, annotated with the request IDs found
// in ctx.  A nil ctx is allowed.
func Logger(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return base
	}

	fields := logrus.Fields{}
	if id, ok := ctx.Value(txnIDKey).(string); ok {
		fields["txnid"] = id
	}
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		fields["correlation"] = id
	}
	if len(fields) == 0 {
		return base
	}

	return base.WithFields(fields)
}

// ForDevice returns a logger for one camera channel
func ForDevice(name string, channel int) *logrus.Entry {
	return base.WithFields(logrus.Fields{
		"device":  name,
		"channel": channel,
	})
}

func init() {
	viper.SetDefault("logging.location", "stderr")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.level", "info")

	instanceID = uuid.New().String()
	base = logrus.WithFields(processFields())
}

// Configure sets the log level, output location and format from the
// logging.* keys
func Configure(cfg *viper.Viper) error {
	switch loc := cfg.GetString("logging.location"); loc {
	case "stdout":
		logrus.SetOutput(os.Stdout)
	case "stderr":
		logrus.SetOutput(os.Stderr)
	default:
		file, err := os.OpenFile(loc, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return errors.Wrapf(err, "opening log file %s", loc)
		}

		base.Debugf("switching log to %s", loc)
		logrus.SetOutput(file)

		if logFile != nil {
			logFile.Close()
		}
		logFile = file
	}

	// --debug on the command line wins over the config file
	if !logrus.IsLevelEnabled(logrus.DebugLevel) {
		level := cfg.GetString("logging.level")
		val, err := logrus.ParseLevel(level)
		if err != nil {
			return errors.Errorf("bad log level: [%s]", level)
		}
		logrus.SetLevel(val)
	}

	switch format := cfg.GetString("logging.format"); format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{})
	default:
		return errors.Errorf("bad log format: [%s]", format)
	}

	base = logrus.WithFields(processFields())
	stdlog.SetOutput(base.WriterLevel(logrus.DebugLevel))

	return nil
}
