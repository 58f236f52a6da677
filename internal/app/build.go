package app

import (
	"context"
	"fmt"

	"github.com/noamsh/donna/internal/calendar"
	"github.com/noamsh/donna/internal/config"
	"github.com/noamsh/donna/internal/dispatch"
	"github.com/noamsh/donna/internal/httpapi"
	"github.com/noamsh/donna/internal/intent"
	"github.com/noamsh/donna/internal/messenger"
	"github.com/noamsh/donna/internal/observability"
	"github.com/noamsh/donna/internal/pending"
	"github.com/noamsh/donna/internal/ratelimit"
	"github.com/noamsh/donna/internal/tasklist"
	"github.com/noamsh/donna/internal/transcribe"
)

type BuildResult struct {
	Config     config.Config
	API        *httpapi.Server
	Store      pending.Store
	Dispatcher *dispatch.Dispatcher
	Metrics    *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	loc := cfg.Location()

	store, err := pending.NewStore(ctx, cfg.DatabaseURL, cfg.PendingTTL)
	if err != nil {
		return nil, fmt.Errorf("pending store init failed: %w", err)
	}

	classifier := intent.NewClassifier(intent.ClassifierConfig{
		APIKey:       cfg.OpenAIAPIKey,
		Model:        cfg.OpenAIModel,
		RateLimitRPM: cfg.OpenAIRateLimitRPM,
		Timezone:     loc,
	}, ratelimit.NewLimiter())

	cal := calendar.NewGoogleClient(calendar.GoogleConfig{
		BaseURL:    cfg.CalendarBaseURL,
		CalendarID: cfg.GoogleCalendarID,
		Token:      calendar.StaticToken(cfg.GoogleAccessToken),
		Timezone:   loc,
	})
	tasks := tasklist.NewGoogleClient(tasklist.GoogleConfig{
		BaseURL:  cfg.TasksBaseURL,
		ListID:   cfg.GoogleTaskListID,
		Token:    tasklist.StaticToken(cfg.GoogleAccessToken),
		Timezone: loc,
	})

	dispatcher := dispatch.New(store, cal, tasks, classifier, metrics, dispatch.Config{
		CandidateWindowDays: cfg.CandidateWindowDays,
		FreeSlotMin:         cfg.FreeSlotMin,
		Location:            loc,
	})

	var fetcher httpapi.MediaFetcher
	var transcriber httpapi.Transcriber
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.OpenAIAPIKey != "" {
		fetcher = transcribe.NewFetcher(cfg.TwilioAccountSID, cfg.TwilioAuthToken)
		transcriber = transcribe.NewTranscriber(cfg.OpenAIAPIKey, cfg.WhisperModel)
	}

	var sender httpapi.ReplySender
	if cfg.ReplyMode == "rest" {
		if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" || cfg.TwilioFrom == "" {
			_ = store.Close()
			return nil, fmt.Errorf("APP_REPLY_MODE=rest requires TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM")
		}
		sender = messenger.NewClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom)
	}

	api := httpapi.New(cfg, dispatcher, store, fetcher, transcriber, sender, metrics)

	return &BuildResult{
		Config:     cfg,
		API:        api,
		Store:      store,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Cleanup:    store.Close,
	}, nil
}
