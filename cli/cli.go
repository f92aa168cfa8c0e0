package cli

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// version is set at build time with -ldflags "-X".
var version = "dev"

func Version() string {
	return version
}

type Context struct {
	ID     string
	Logger *zap.Logger
}

// AddLoggingFlags adds --log-file and its rotation settings to cmd.
func AddLoggingFlags(cmd *cobra.Command, config *viper.Viper) {
	cmd.PersistentFlags().String("log-file", "", "Also write logs to this file, rotated")
	config.BindPFlag("log.file", cmd.PersistentFlags().Lookup("log-file"))
	cmd.PersistentFlags().Int("log-max-size", 100, "Rotate the log file once it reaches this many megabytes")
	config.BindPFlag("log.max-size", cmd.PersistentFlags().Lookup("log-max-size"))
	cmd.PersistentFlags().Int("log-max-backups", 5, "Keep this many rotated log files")
	config.BindPFlag("log.max-backups", cmd.PersistentFlags().Lookup("log-max-backups"))
}

// Bootstrap builds the node id and the logger. Set ENABLE_PRETTY_LOG=true
// for human readable logs.
func Bootstrap(config *viper.Viper) *Context {
	id := uuid.New().String()
	ctx := &Context{
		ID: id,
	}
	var logger *zap.Logger
	var err error
	fields := []zap.Field{
		zap.String("node_id", id), zap.String("version", Version()),
	}
	var opts []zap.Option
	if path := config.GetString("log.file"); path != "" {
		rotated := zapcore.AddSync(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    config.GetInt("log.max-size"),
			MaxBackups: config.GetInt("log.max-backups"),
		})
		opts = append(opts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			file := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), rotated, zap.InfoLevel)
			return zapcore.NewTee(core, file)
		}))
	}
	// Fields go last so the rotated file carries them too.
	opts = append(opts, zap.Fields(fields...))
	if os.Getenv("ENABLE_PRETTY_LOG") == "true" {
		logger, err = zap.NewDevelopment(opts...)
	} else {
		logger, err = zap.NewProduction(opts...)
	}
	if err != nil {
		panic(err)
	}
	ctx.Logger = logger
	return ctx
}

// WaitForSignal blocks until the process is asked to stop.
func (ctx *Context) WaitForSignal() {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	defer signal.Stop(sigc)
	<-sigc
	ctx.Logger.Info("received termination signal")
}

type healthChecker interface {
	Health() string
}

// HealthHandler serves /metrics and /health. /health maps the "warning" and
// "critical" statuses of service to 429 and 500.
func HealthHandler(service healthChecker) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		switch service.Health() {
		case "warning":
			w.WriteHeader(http.StatusTooManyRequests)
			return
		case "critical":
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func ServeHTTPHealth(logger *zap.Logger, port int, service healthChecker) {
	err := http.ListenAndServe(fmt.Sprintf("[::]:%d", port), HealthHandler(service))
	if err != nil {
		logger.Error("failed to run healthcheck endpoint", zap.Error(err))
	}
}

// HealthFunc adapts a function to the checker expected by ServeHTTPHealth.
type HealthFunc func() string

func (f HealthFunc) Health() string { return f() }
