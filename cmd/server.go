package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/dahua-bridge/internal/pkg/handlers"
	"github.com/jake-scott/dahua-bridge/internal/pkg/logging"
	"github.com/jake-scott/dahua-bridge/internal/pkg/metrics"
	"github.com/jake-scott/dahua-bridge/pkg/middlewares"
)

var _serverCmdOpts struct {
	httpsPort       uint16
	tlsCertPath     string
	tlsKeyPath      string
	gracefulTimeout time.Duration
	readTimeout     time.Duration
	writeTimeout    time.Duration
	snapshotCache   time.Duration
	corsOrigins     []string
	metricsEnabled  bool
	logRequests     bool
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the device HTTP API alongside the poller",

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doServer(); err != nil {
			return err
		}

		return nil
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := checkDeviceFlags(); err != nil {
			return err
		}

		// TLS is optional but needs both halves
		if viper.GetString("https.cert") != "" || viper.GetString("https.key") != "" {
			return checkRequiredFlags("https.cert", "https.key")
		}
		return nil
	},
}

func init() {
	serverCmd.Flags().Uint16Var(&_serverCmdOpts.httpsPort, "https-port", 8080, "HTTP(S) port number")
	serverCmd.Flags().StringVar(&_serverCmdOpts.tlsCertPath, "tls-cert", "", "TLS certificate file, enables HTTPS")
	serverCmd.Flags().StringVar(&_serverCmdOpts.tlsKeyPath, "tls-key", "", "TLS key file")
	serverCmd.Flags().DurationVar(&_serverCmdOpts.gracefulTimeout, "graceful-timeout", time.Second*15, "duration to wait for server to finish, eg. 1m or 10s")
	serverCmd.Flags().DurationVar(&_serverCmdOpts.readTimeout, "read-timeout", time.Second*15, "duration to wait for request read, eg. 1m or 10s")
	serverCmd.Flags().DurationVar(&_serverCmdOpts.writeTimeout, "write-timeout", time.Second*60, "duration to wait for request write, eg. 1m or 10s")
	serverCmd.Flags().DurationVar(&_serverCmdOpts.snapshotCache, "snapshot-cache", time.Second*2, "how long a snapshot is reused, eg. 1s")
	serverCmd.Flags().StringSliceVar(&_serverCmdOpts.corsOrigins, "cors-origins", nil, "origins allowed to call the API from a browser")
	serverCmd.Flags().BoolVar(&_serverCmdOpts.metricsEnabled, "metrics", true, "serve Prometheus metrics on /metrics")
	serverCmd.Flags().BoolVar(&_serverCmdOpts.logRequests, "log-requests", false, "log requests and responses (only in debug mode)")

	errPanic(viper.GetViper().BindPFlag("https.port", serverCmd.Flags().Lookup("https-port")))
	errPanic(viper.GetViper().BindPFlag("https.cert", serverCmd.Flags().Lookup("tls-cert")))
	errPanic(viper.GetViper().BindPFlag("https.key", serverCmd.Flags().Lookup("tls-key")))
	errPanic(viper.GetViper().BindPFlag("https.graceful-timeout", serverCmd.Flags().Lookup("graceful-timeout")))
	errPanic(viper.GetViper().BindPFlag("https.read-timeout", serverCmd.Flags().Lookup("read-timeout")))
	errPanic(viper.GetViper().BindPFlag("https.write-timeout", serverCmd.Flags().Lookup("write-timeout")))
	errPanic(viper.GetViper().BindPFlag("https.snapshot-cache", serverCmd.Flags().Lookup("snapshot-cache")))
	errPanic(viper.GetViper().BindPFlag("https.cors-origins", serverCmd.Flags().Lookup("cors-origins")))
	errPanic(viper.GetViper().BindPFlag("metrics.enabled", serverCmd.Flags().Lookup("metrics")))
	errPanic(viper.GetViper().BindPFlag("logging.log-requests", serverCmd.Flags().Lookup("log-requests")))

	rootCmd.AddCommand(serverCmd)
}

func newRouter(dh *handlers.DeviceHandler, logRequests bool, withMetrics bool) http.Handler {
	r := mux.NewRouter()
	r.Use(middlewares.NewLoggingMw(logRequests))
	r.Use(middlewares.NewRecoveryMw())
	r.Use(middlewares.NewCorrelationMw("X-Correlation-ID"))

	dh.RegisterRoutes(r)
	if withMetrics {
		r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}

	if origins := viper.GetStringSlice("https.cors-origins"); len(origins) > 0 {
		return middlewares.NewCorsMw(middlewares.CorsOptions(origins))(r)
	}
	return r
}

func doServer() error {
	wait := viper.GetDuration("https.graceful-timeout")
	port := viper.GetUint("https.port")
	certFile := viper.GetString("https.cert")
	keyFile := viper.GetString("https.key")
	interval := viper.GetDuration("poll.interval")

	var logRequests bool
	if viper.GetBool("logging.log-requests") {
		if logrus.IsLevelEnabled(logrus.DebugLevel) {
			logRequests = true
		} else {
			logging.Logger(nil).Warn("log-requests ignored when not in debug mode")
		}
	}

	b, err := newBridge()
	if err != nil {
		return err
	}

	dh := handlers.NewDeviceHandler(b.coord, b.client, viper.GetDuration("https.snapshot-cache"))

	s := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		ReadTimeout:  viper.GetDuration("https.read-timeout"),
		WriteTimeout: viper.GetDuration("https.write-timeout"),
		IdleTimeout:  time.Second * 60,
		Handler:      newRouter(dh, logRequests, viper.GetBool("metrics.enabled")),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.pollLoop(ctx, interval)
	}()

	logging.Logger(nil).Infof("serving on port %d", port)
	go func() {
		var err error
		if certFile != "" {
			err = s.ListenAndServeTLS(certFile, keyFile)
		} else {
			err = s.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logging.Logger(nil).WithError(err).Error("running server")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	select {
	case <-c:
	case <-b.host.Done():
		logging.Logger(nil).Info("authentication failed")
	}

	sctx, scancel := context.WithTimeout(context.Background(), wait)
	defer scancel()
	logging.Logger(nil).Info("shutting down")
	if err := s.Shutdown(sctx); err != nil {
		logging.Logger(nil).WithError(err).Errorf("shutting down")
	}

	cancel()
	wg.Wait()
	b.close()

	logging.Logger(nil).Info("exiting")
	return nil
}
