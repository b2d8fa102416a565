package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// loadConfigDefaults merges viper values (env vars with the GATEWRIGHT
// prefix) into flags that weren't explicitly set on the command line.
// Priority: flags > env vars > defaults.
//
// Recognized variables: GATEWRIGHT_DB, GATEWRIGHT_FORMAT,
// GATEWRIGHT_VERBOSE.
func loadConfigDefaults(opts *RootOptions, cmd *cobra.Command) {
	v := viper.New()
	v.SetEnvPrefix("GATEWRIGHT")
	v.AutomaticEnv()

	if !cmd.Flags().Changed("db") && opts.Database == "" {
		opts.Database = v.GetString("DB")
	}
	if !cmd.Flags().Changed("format") {
		if f := v.GetString("FORMAT"); f != "" {
			opts.Format = f
		}
	}
	if !cmd.Flags().Changed("verbose") && v.IsSet("VERBOSE") {
		opts.Verbose = v.GetBool("VERBOSE")
	}
}
