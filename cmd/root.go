package cmd

import (
	"fmt"
	"os"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/dahua-bridge/internal/pkg/logging"
)

var _rootCmdOpts struct {
	cfgFile string
	debug   bool
}

var rootCmd = &cobra.Command{
	Use:   "dahua-bridge",
	Short: "Bridge a Dahua / Amcrest camera or doorbell to MQTT and HTTP",

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _rootCmdOpts.debug {
			logrus.SetLevel(logrus.DebugLevel)
		}

		return logging.Configure(viper.GetViper())
	},
}

// Execute runs the command line
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func errPanic(err error) {
	if err != nil {
		panic(err)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&_rootCmdOpts.cfgFile, "config", "", "config file (default is $HOME/.dahua-bridge.yaml)")
	rootCmd.PersistentFlags().BoolVar(&_rootCmdOpts.debug, "debug", false, "enable debug logging")

	addDeviceFlags(rootCmd)
	addBridgeFlags(rootCmd)
}

func initConfig() {
	if _rootCmdOpts.cfgFile != "" {
		viper.SetConfigFile(_rootCmdOpts.cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".dahua-bridge")
	}

	viper.SetEnvPrefix("DAHUA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logging.Logger(nil).Debugf("using config file: %s", viper.ConfigFileUsed())
	} else if _rootCmdOpts.cfgFile != "" {
		fmt.Fprintf(os.Stderr, "reading config %s: %s\n", _rootCmdOpts.cfgFile, err)
		os.Exit(1)
	}
}
