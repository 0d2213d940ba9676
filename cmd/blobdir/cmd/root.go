package cmd

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/blobdir"
)

var rootCmd = &cobra.Command{
	Use:   "blobdir",
	Short: "Inspect and edit an index directory stored in SQLite",
	Long:  "CLI for listing, reading and writing the files of a blobdir SQLite database.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(viper.GetString("log_level"))
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		return nil
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ~/.config/blobdir/config.yaml)")
	flags.String("db", "", "database file (default: ~/.local/share/blobdir/index.db)")
	flags.String("table", blobdir.DefaultTable, "blob table name")
	flags.Int("pool-size", blobdir.DefaultPoolSize, "maximum open connections")
	flags.Int("compression-level", 0, "zstd level 1-4 (0 disables compression)")
	flags.String("log-level", "warning", "log level")

	viper.BindPFlag("database", flags.Lookup("db"))
	viper.BindPFlag("table", flags.Lookup("table"))
	viper.BindPFlag("pool_size", flags.Lookup("pool-size"))
	viper.BindPFlag("compression_level", flags.Lookup("compression-level"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BLOBDIR")
	viper.AutomaticEnv()
	viper.SetDefault("database", defaultDatabase())

	viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "blobdir")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "blobdir")
	}
	return ".blobdir"
}

func defaultDatabase() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "blobdir", "index.db")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "blobdir", "index.db")
	}
	return filepath.Join(".blobdir", "index.db")
}

// openDir opens the configured database. Callers must Close it.
func openDir() (*blobdir.Dir, error) {
	opts := []blobdir.Option{
		blobdir.WithTable(viper.GetString("table")),
		blobdir.WithPoolSize(viper.GetInt("pool_size")),
	}
	if level := viper.GetInt("compression_level"); level > 0 {
		opts = append(opts, blobdir.WithCompression(level))
	}
	return blobdir.Open(viper.GetString("database"), opts...)
}
