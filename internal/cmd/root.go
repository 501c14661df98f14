// Package cmd implements the springmap command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "springmap",
	Short: "Build interactive Leaflet maps from geospatial data",
	Long: `springmap assembles interactive web maps from GeoJSON, shapefiles, CSV,
OpenStreetMap extracts and MBTiles rasters.

Maps are described in YAML, JSON or TOML documents and rendered to standalone
HTML pages, previewed through a local tile server or rasterised into MBTiles.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./springmap.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose logging")
	rootCmd.PersistentFlags().String("overpass-url", "", "Overpass API endpoint for osm layers")

	mustBind(rootCmd, "verbose", "verbose")
	mustBind(rootCmd, "overpass_url", "overpass-url")
}

// mustBind binds a flag of cmd (local or persistent) to a viper key.
func mustBind(cmd *cobra.Command, key, name string) {
	flag := cmd.Flags().Lookup(name)
	if flag == nil {
		flag = cmd.PersistentFlags().Lookup(name)
	}
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %s: %v", name, err))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("springmap")
	}

	viper.SetEnvPrefix("SPRINGMAP")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
