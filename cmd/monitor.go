package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/dahua-bridge/internal/pkg/logging"
	"github.com/jake-scott/dahua-bridge/internal/pkg/metrics"
	"github.com/jake-scott/dahua-bridge/pkg/middlewares"
)

var _monitorCmdOpts struct {
	metricsListen string
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll the device and republish its state and events to MQTT",

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doMonitor(); err != nil {
			return err
		}

		return nil
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkDeviceFlags()
	},
}

func init() {
	monitorCmd.Flags().StringVar(&_monitorCmdOpts.metricsListen, "metrics-listen", "", "address to serve Prometheus metrics on, eg. :9101; empty disables")

	errPanic(viper.GetViper().BindPFlag("metrics.listen", monitorCmd.Flags().Lookup("metrics-listen")))

	rootCmd.AddCommand(monitorCmd)
}

func newMetricsRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(middlewares.NewRecoveryMw())
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

func serveMetrics(addr string) *http.Server {
	s := &http.Server{
		Addr:        addr,
		Handler:     newMetricsRouter(),
		ReadTimeout: time.Second * 15,
	}

	go func() {
		logging.Logger(nil).Infof("serving metrics on %s", addr)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Logger(nil).WithError(err).Error("running metrics server")
		}
	}()

	return s
}

func doMonitor() error {
	interval := viper.GetDuration("poll.interval")

	b, err := newBridge()
	if err != nil {
		return err
	}

	var metricsServer *http.Server
	if addr := viper.GetString("metrics.listen"); addr != "" {
		metricsServer = serveMetrics(addr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.pollLoop(ctx, interval)
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	select {
	case <-c:
		logging.Logger(nil).Info("main: shutting down")
	case <-b.host.Done():
		logging.Logger(nil).Info("main: authentication failed, shutting down")
	}

	cancel()
	wg.Wait()
	b.close()

	if metricsServer != nil {
		sctx, scancel := context.WithTimeout(context.Background(), time.Second*5)
		defer scancel()
		if err := metricsServer.Shutdown(sctx); err != nil {
			logging.Logger(nil).WithError(err).Error("shutting down metrics server")
		}
	}

	logging.Logger(nil).Info("main: exiting")
	return nil
}
