package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/countkeeper/countkeeper/config"
	"github.com/countkeeper/countkeeper/pkg/cmd/cli"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string
var c = new(config.Config)
var cmdHandler = cli.NewHandler(c)

var (
	Version   = "dev-master"
	BuildTime = "undefined"
	GitHash   = "undefined"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "countkeeper",
	Short: "Project Countkeeper (Collaborative Stock Counting)",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(cmd.UsageString())
		os.Exit(2)
	},
}

// Execute runs the countkeeper command tree and is called by main.main()
func Execute() {
	c.BuildTime = BuildTime
	c.BuildVersion = Version
	c.BuildHash = GitHash

	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// enable ability to specify config file via flag
		viper.SetConfigFile(cfgFile)
	} else {
		path := absPathify("$HOME")
		if _, err := os.Stat(filepath.Join(path, ".countkeeper.yml")); err != nil {
			_, _ = os.Create(filepath.Join(path, ".countkeeper.yml"))
		}

		viper.SetConfigType("yaml")
		viper.SetConfigName(".countkeeper") // name of config file (without extension)
		viper.AddConfigPath("$HOME")        // adding home directory as first search path
	}
	viper.AutomaticEnv() // read in environment variables that match

	// Fetch settings
	viper.BindEnv("PORT")
	viper.SetDefault("PORT", 8080)

	viper.BindEnv("HOST")
	viper.SetDefault("HOST", "")

	viper.BindEnv("DATABASE_URL")
	viper.SetDefault("DATABASE_URL", "")

	viper.BindEnv("NATS_URL")
	viper.SetDefault("NATS_URL", "")

	viper.BindEnv("ROOM_CAPACITY")
	viper.SetDefault("ROOM_CAPACITY", 50)

	viper.BindEnv("MESSAGE_RATE_CEILING")
	viper.SetDefault("MESSAGE_RATE_CEILING", 100)

	viper.BindEnv("HEARTBEAT_INTERVAL")
	viper.SetDefault("HEARTBEAT_INTERVAL", 30)

	viper.BindEnv("STORE_QUOTA_PER_MINUTE")
	viper.SetDefault("STORE_QUOTA_PER_MINUTE", 60)

	viper.BindEnv("STORE_QUOTA_SAFETY_MARGIN")
	viper.SetDefault("STORE_QUOTA_SAFETY_MARGIN", 0.8)

	viper.BindEnv("STORE_MIN_CALL_INTERVAL_MS")
	viper.SetDefault("STORE_MIN_CALL_INTERVAL_MS", 100)

	viper.BindEnv("STORE_CACHE_TTL")
	viper.SetDefault("STORE_CACHE_TTL", 30)

	viper.BindEnv("STORE_RETRY_ATTEMPTS")
	viper.SetDefault("STORE_RETRY_ATTEMPTS", 5)

	viper.BindEnv("STORE_BACKOFF_BASE_MS")
	viper.SetDefault("STORE_BACKOFF_BASE_MS", 500)

	viper.BindEnv("STORE_BACKOFF_CAP_MS")
	viper.SetDefault("STORE_BACKOFF_CAP_MS", 16000)

	viper.BindEnv("SESSION_VERIFY_ATTEMPTS")
	viper.SetDefault("SESSION_VERIFY_ATTEMPTS", 3)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf(`Config file not found because "%s"`, err)
		fmt.Println("")
	}

	if err := viper.Unmarshal(c); err != nil {
		log.Fatal(fmt.Sprintf("Could not read config because %s.", err))
	}
}

func absPathify(inPath string) string {
	if strings.HasPrefix(inPath, "$HOME") {
		inPath = userHomeDir() + inPath[5:]
	}

	if strings.HasPrefix(inPath, "$") {
		end := strings.Index(inPath, string(os.PathSeparator))
		inPath = os.Getenv(inPath[1:end]) + inPath[end:]
	}

	if filepath.IsAbs(inPath) {
		return filepath.Clean(inPath)
	}

	p, err := filepath.Abs(inPath)
	if err == nil {
		return filepath.Clean(p)
	}
	return ""
}

func userHomeDir() string {
	if runtime.GOOS == "windows" {
		home := os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH")
		if home == "" {
			home = os.Getenv("USERPROFILE")
		}
		return home
	}
	return os.Getenv("HOME")
}
