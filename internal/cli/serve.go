package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/tasktalk/tasktalk/internal/agent"
	"github.com/tasktalk/tasktalk/internal/agent/classify"
	anthropicclassify "github.com/tasktalk/tasktalk/internal/agent/classify/anthropic"
	openaiclassify "github.com/tasktalk/tasktalk/internal/agent/classify/openai"
	"github.com/tasktalk/tasktalk/internal/config"
	"github.com/tasktalk/tasktalk/internal/httpapi"
	"github.com/tasktalk/tasktalk/internal/otel"
	"github.com/tasktalk/tasktalk/internal/store"
	"github.com/tasktalk/tasktalk/pkg/models"
)

func newServeCmd() *cobra.Command {
	var (
		addr       string
		dev        bool
		apiKey     string
		dbDriver   string
		dbURL      string
		provider   string
		model      string
		enableOtel bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Tasktalk HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			home := config.MustHomeFrom(ctx)
			settings, err := config.Load(home)
			if err != nil {
				return err
			}

			// Explicit flags win over config.yaml and env.
			if cmd.Flags().Changed("addr") {
				settings.Server.Addr = addr
			}
			if cmd.Flags().Changed("db-driver") {
				settings.Database.Driver = dbDriver
			}
			if cmd.Flags().Changed("db-url") {
				settings.Database.DSN = dbURL
			}
			if cmd.Flags().Changed("provider") {
				settings.Model.Provider = provider
			}
			if cmd.Flags().Changed("model") {
				settings.Model.Model = model
			}

			var metricsHandler http.Handler
			if enableOtel {
				h, err := otel.InitMeterProvider(ctx, "tasktalk")
				if err != nil {
					slog.Warn("otel init failed, falling back to plain /metrics", "err", err)
				} else {
					metricsHandler = h
				}
			}

			app, err := httpapi.NewApp(httpapi.ServerOptions{
				Home:           home,
				Addr:           settings.Server.Addr,
				Dev:            dev,
				APIKey:         apiKey,
				DBDriver:       settings.Database.Driver,
				DBURL:          settings.Database.DSN,
				MetricsHandler: metricsHandler,
				UseOtelHTTP:    enableOtel,
				Classifier:     buildClassifier(settings),
				Agent:          agentOptions(settings),
			})
			if err != nil {
				return err
			}

			if metricsHandler != nil {
				if err := otel.InitMetricsWithTaskCount(ctx, taskCounter(app.Store)); err != nil {
					slog.Warn("otel instruments init failed", "err", err)
				}
			}

			slog.Info("tasktalk serving",
				"addr", settings.Server.Addr,
				"driver", settings.Database.Driver,
				"classifier", settings.Model.Provider)

			errCh := make(chan error, 1)
			go func() { errCh <- app.Server.ListenAndServe() }()

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return app.Server.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable dev mode (CORS for a local frontend)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Require X-API-Key on requests")
	cmd.Flags().StringVar(&dbDriver, "db-driver", "sqlite", "Store driver: sqlite or postgres")
	cmd.Flags().StringVar(&dbURL, "db-url", "", "DB connection string (for postgres; or set DATABASE_URL)")
	cmd.Flags().StringVar(&provider, "provider", "", "Classifier provider: openai, anthropic, or scripted")
	cmd.Flags().StringVar(&model, "model", "", "Model id for the classifier provider")
	cmd.Flags().BoolVar(&enableOtel, "otel", true, "Enable OpenTelemetry metrics (Prometheus exporter)")

	return cmd
}

// buildClassifier picks the classifier for the configured provider. Missing
// or unknown providers fall back to the scripted keyword classifier so the
// server always comes up.
func buildClassifier(settings *config.Settings) classify.Classifier {
	switch settings.Model.Provider {
	case "openai":
		return openaiclassify.New(func(o *openaiclassify.Options) {
			if settings.Model.Model != "" {
				o.Model = settings.Model.Model
			}
			o.APIKey = settings.Model.APIKey
		})
	case "anthropic":
		return anthropicclassify.New(func(o *anthropicclassify.Options) {
			if settings.Model.Model != "" {
				o.Model = anthropic.Model(settings.Model.Model)
			}
			o.APIKey = settings.Model.APIKey
		})
	default:
		return classify.Scripted{}
	}
}

// taskCounter feeds the tasks-by-status gauge from the store.
func taskCounter(st store.Store) otel.TaskCountFunc {
	count := func(status string) int64 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		tasks, err := st.ListTasks(ctx, store.TaskFilter{Status: status, Limit: 1000})
		if err != nil {
			return 0
		}
		return int64(len(tasks))
	}
	return func() (pending, inProgress, completed, cancelled int64) {
		return count(models.StatusPending), count(models.StatusInProgress),
			count(models.StatusCompleted), count(models.StatusCancelled)
	}
}

func agentOptions(settings *config.Settings) agent.Options {
	return agent.Options{
		HistoryWindow:   settings.Agent.HistoryWindow,
		AmbiguityMargin: settings.Agent.AmbiguityMargin,
		SuggestionLimit: settings.Agent.SuggestionLimit,
		ConfirmCreates:  settings.Agent.ConfirmCreates,
		ClassifyTimeout: settings.Model.Timeout,
		StoreTimeout:    settings.Agent.StoreTimeout,
	}
}
