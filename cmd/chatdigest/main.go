package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hrygo/chatdigest/internal/profile"
	"github.com/hrygo/chatdigest/internal/version"
	"github.com/hrygo/chatdigest/plugin/ai"
	"github.com/hrygo/chatdigest/plugin/ai/timeout"
	"github.com/hrygo/chatdigest/plugin/line"
	"github.com/hrygo/chatdigest/server"
	"github.com/hrygo/chatdigest/server/service/digest"
	"github.com/hrygo/chatdigest/store"
	"github.com/hrygo/chatdigest/store/db"
)

var (
	rootCmd = &cobra.Command{
		Use:   "chatdigest",
		Short: `A chat webhook that buffers messages and replies with an LLM summary on demand.`,
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(); err != nil {
				slog.Error("chatdigest exited with error", slog.String("error", err.Error()))
				os.Exit(1)
			}
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8081)
	viper.SetDefault("log-level", "info")
	viper.SetDefault("webhook-path", profile.DefaultWebhookPath)
	viper.SetDefault("trigger-tokens", profile.DefaultTriggerToken)
	viper.SetDefault("min-backlog", profile.DefaultMinBacklog)
	viper.SetDefault("timezone", profile.DefaultTimezone)
	viper.SetDefault("summarize-timeout", profile.DefaultSummarizeTimeout)
	viper.SetDefault("max-concurrent-summaries", profile.DefaultMaxConcurrentSummaries)
	viper.SetDefault("drain-mode", profile.DrainModeDeleteFirst)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (sqlite or postgres)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this file, rotated")
	rootCmd.PersistentFlags().String("webhook-path", profile.DefaultWebhookPath, "route receiving webhook deliveries")
	rootCmd.PersistentFlags().String("trigger-tokens", profile.DefaultTriggerToken, "comma separated substrings that request a summary")
	rootCmd.PersistentFlags().Int("min-backlog", profile.DefaultMinBacklog, "a summary needs more than this many buffered lines")
	rootCmd.PersistentFlags().String("timezone", profile.DefaultTimezone, "IANA timezone used to render line times")
	rootCmd.PersistentFlags().Duration("summarize-timeout", profile.DefaultSummarizeTimeout, "upper bound for one summarization call")
	rootCmd.PersistentFlags().Int("max-concurrent-summaries", profile.DefaultMaxConcurrentSummaries, "summarization calls allowed to run at once")
	rootCmd.PersistentFlags().String("drain-mode", profile.DrainModeDeleteFirst, `"delete-first" or "delete-on-success"`)

	for _, name := range []string{
		"mode", "addr", "port", "data", "driver", "dsn", "log-level", "log-file", "webhook-path",
		"trigger-tokens", "min-backlog", "timezone", "summarize-timeout", "max-concurrent-summaries", "drain-mode",
	} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("chatdigest")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func loadProfile() (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:                   viper.GetString("mode"),
		Addr:                   viper.GetString("addr"),
		Port:                   viper.GetInt("port"),
		Data:                   viper.GetString("data"),
		Driver:                 viper.GetString("driver"),
		DSN:                    viper.GetString("dsn"),
		LogLevel:               viper.GetString("log-level"),
		LogFile:                viper.GetString("log-file"),
		WebhookPath:            viper.GetString("webhook-path"),
		TriggerTokens:          profile.ParseTriggerTokens(viper.GetString("trigger-tokens")),
		MinBacklog:             viper.GetInt("min-backlog"),
		Timezone:               viper.GetString("timezone"),
		SummarizeTimeout:       viper.GetDuration("summarize-timeout"),
		MaxConcurrentSummaries: viper.GetInt("max-concurrent-summaries"),
		DrainMode:              viper.GetString("drain-mode"),
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func newLogger(p *profile.Profile) *slog.Logger {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(p.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	var writer io.Writer = os.Stderr
	if p.LogFile != "" {
		writer = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   p.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
	}
	options := &slog.HandlerOptions{Level: level}
	if p.IsDev() {
		return slog.New(slog.NewTextHandler(writer, options))
	}
	return slog.New(slog.NewJSONHandler(writer, options))
}

func run() error {
	instanceProfile, err := loadProfile()
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(instanceProfile))
	slog.Info("loaded profile", slog.Any("profile", instanceProfile))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		return errors.Wrap(err, "failed to create db driver")
	}
	storeInstance := store.New(dbDriver, instanceProfile)
	if err := storeInstance.Migrate(ctx); err != nil {
		storeInstance.Close()
		return errors.Wrap(err, "failed to migrate")
	}

	llmService, err := ai.NewLLMService(ai.NewLLMConfigFromProfile(instanceProfile))
	if err != nil {
		storeInstance.Close()
		return errors.Wrap(err, "failed to create LLM service")
	}
	lineClient := line.NewClient(instanceProfile.LineAPIBaseURL, instanceProfile.ChannelAccessToken)

	config, err := digest.NewConfigFromProfile(instanceProfile)
	if err != nil {
		storeInstance.Close()
		return err
	}
	metrics := server.NewMetrics()
	digestService, err := digest.NewService(storeInstance, digest.NewLLMEngine(llmService), lineClient, lineClient, config, metrics)
	if err != nil {
		storeInstance.Close()
		return err
	}

	s := server.NewServer(instanceProfile, storeInstance, digestService, metrics)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		s.Shutdown(context.Background())
		cancel()
	}()

	printGreetings(instanceProfile)

	if err := s.Start(ctx); err != nil {
		s.Shutdown(context.Background())
		return errors.Wrap(err, "failed to start server")
	}
	<-ctx.Done()
	return nil
}

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("chatdigest %s started successfully!\n", version.GetCurrentVersion(p.Mode))
	fmt.Printf("Webhook: http://%s:%d%s\n", hostOrLocalhost(p.Addr), p.Port, p.WebhookPath)
	fmt.Printf("Summary engine: %s (%s), drain mode %s, timeout %s\n",
		p.AILLMProvider, p.AILLMModel, p.DrainMode, p.SummarizeTimeout)
	fmt.Printf("Shutdown grace period: %s\n", timeout.ShutdownTimeout)
}

func hostOrLocalhost(addr string) string {
	if addr == "" {
		return "localhost"
	}
	return addr
}
