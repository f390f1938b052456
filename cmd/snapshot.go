package cmd

import (
	"context"
	"io/ioutil"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/dahua-bridge/internal/pkg/logging"
)

var _snapshotCmdOpts struct {
	output string
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Save one JPEG snapshot from the device",

	RunE: func(cmd *cobra.Command, args []string) error {
		return doSnapshot(cmd.Context())
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkDeviceFlags()
	},
}

func init() {
	snapshotCmd.Flags().StringVarP(&_snapshotCmdOpts.output, "output", "o", "snapshot.jpg", "file to write the image to")

	errPanic(viper.GetViper().BindPFlag("snapshot.output", snapshotCmd.Flags().Lookup("output")))

	rootCmd.AddCommand(snapshotCmd)
}

func doSnapshot(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := viper.GetString("snapshot.output")

	// device channels are 1-based on the snapshot endpoint
	channel := viper.GetInt("device.channel") + 1

	img, err := newDeviceClient().GetSnapshot(ctx, channel)
	if err != nil {
		return errors.Wrap(err, "fetching snapshot")
	}

	if err := ioutil.WriteFile(out, img, 0644); err != nil {
		return errors.Wrapf(err, "writing %s", out)
	}

	logging.Logger(nil).Infof("wrote %d bytes to %s", len(img), out)
	return nil
}
