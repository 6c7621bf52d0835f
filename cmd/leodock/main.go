package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/leodock/internal/profile"
	"github.com/hrygo/leodock/internal/version"
	"github.com/hrygo/leodock/server"
)

var (
	rootCmd = &cobra.Command{
		Use:           "leodock",
		Short:         `A durable conversation log with keyword and semantic search.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Systemd units provide their environment directly.
			if !isRunningAsSystemdService() {
				_ = godotenv.Load()
			}
			setupLogger(viper.GetString("mode"), viper.GetString("log-format"))
			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			s := server.NewServer(a.profile, a.service, a.metrics)

			c := make(chan os.Signal, 1)
			// SIGTERM is the graceful shutdown signal for most process managers.
			signal.Notify(c, terminationSignals...)

			if err := s.Start(ctx); err != nil {
				return err
			}
			printGreetings(a.profile, s.Addr())

			go func() {
				<-c
				s.Shutdown(ctx)
				cancel()
			}()

			<-ctx.Done()
			return nil
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "leodock %s (commit %s, schema %s)\n",
				version.GetCurrentVersion(viper.GetString("mode")), version.GitCommit, version.SchemaVersion)
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 28090)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28090, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (sqlite, postgres)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")
	rootCmd.PersistentFlags().String("embedding-url", "", "base URL of the OpenAI-compatible embedding service")
	rootCmd.PersistentFlags().String("embedding-model", "", "embedding model name")
	rootCmd.PersistentFlags().String("log-format", "", `log format, "text" or "json" (default: json in prod, text otherwise)`)
	rootCmd.PersistentFlags().Bool("json", false, "print command output as JSON")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn", "embedding-url", "embedding-model", "log-format", "json"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("leodock")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(
		serveCmd,
		versionCmd,
		newSaveCmd(),
		newSearchCmd(),
		newSemanticCmd(),
		newContextCmd(),
		newRecentCmd(),
		newStatsCmd(),
		newSessionCmd(),
		newBackfillCmd(),
	)
}

func loadProfile() (*profile.Profile, error) {
	instanceProfile := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Addr:    viper.GetString("addr"),
		Port:    viper.GetInt("port"),
		Data:    viper.GetString("data"),
		Driver:  viper.GetString("driver"),
		DSN:     viper.GetString("dsn"),
		Version: version.GetCurrentVersion(viper.GetString("mode")),
	}
	instanceProfile.FromEnv()
	if url := viper.GetString("embedding-url"); url != "" {
		instanceProfile.EmbeddingBaseURL = url
	}
	if model := viper.GetString("embedding-model"); model != "" {
		instanceProfile.EmbeddingModel = model
	}
	if err := instanceProfile.Validate(); err != nil {
		return nil, err
	}
	return instanceProfile, nil
}

func setupLogger(mode, format string) {
	if format == "" {
		format = "text"
		if mode == "prod" {
			format = "json"
		}
	}
	level := slog.LevelInfo
	if mode == "dev" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func printGreetings(profile *profile.Profile, addr string) {
	fmt.Printf("LeoDock %s started successfully!\n", profile.Version)
	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		fmt.Fprintf(os.Stderr, "Database: %s\n", profile.DSN)
	}
	fmt.Printf("Data directory: %s\n", profile.Data)
	fmt.Printf("Database driver: %s\n", profile.Driver)
	fmt.Printf("Embedding service: %s (%s)\n", profile.EmbeddingBaseURL, profile.EmbeddingModel)
	fmt.Printf("Server running on http://%s\n", addr)
}

// isRunningAsSystemdService detects if the process is running under systemd
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
