package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aura-webinar/funnel/pkg/telemetry"
)

// simulateOptions drive one rehearsed view of a lesson against a running API.
type simulateOptions struct {
	api        string
	webinar    string
	lesson     string
	email      string
	name       string
	token      string
	register   bool
	rate       float64
	interval   time.Duration
	pauseAt    float64
	pauseFor   time.Duration
	clickOffer bool
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Watch a lesson as a scripted lead to rehearse the funnel",
	Long: "Signs a lead in (or registers one), then plays the lesson on a simulated clock, " +
		"reporting progress, milestones and the offer to the API the way the watch page does.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var o simulateOptions
		f := cmd.Flags()
		o.api, _ = f.GetString("api")
		o.webinar, _ = f.GetString("webinar")
		o.lesson, _ = f.GetString("lesson")
		o.email, _ = f.GetString("email")
		o.name, _ = f.GetString("name")
		o.token, _ = f.GetString("token")
		o.register, _ = f.GetBool("register")
		o.rate, _ = f.GetFloat64("rate")
		o.interval, _ = f.GetDuration("interval")
		o.pauseAt, _ = f.GetFloat64("pause-at")
		o.pauseFor, _ = f.GetDuration("pause-for")
		o.clickOffer, _ = f.GetBool("click-offer")
		if o.webinar == "" || o.lesson == "" {
			return errors.New("--webinar and --lesson are required")
		}
		if o.email == "" && o.token == "" {
			return errors.New("--email or --token is required")
		}

		logger := newLogger(cmd)
		defer logger.Sync()
		return simulate(cmd.Context(), o, logger)
	},
}

func simulate(ctx context.Context, o simulateOptions, logger *zap.Logger) error {
	sink, err := telemetry.NewHTTPSink(o.api, 10*time.Second)
	if err != nil {
		return err
	}
	if o.register {
		var apiErr *telemetry.APIError
		err = sink.Register(ctx, o.webinar, o.email, o.name)
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			logger.Info("lead already registered, signing in", zap.String("email", o.email))
			err = sink.Authenticate(ctx, o.webinar, o.email, "")
		}
	} else {
		err = sink.Authenticate(ctx, o.webinar, o.email, o.token)
	}
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}

	lesson, duration, err := sink.LessonInfo(ctx, o.webinar, o.lesson)
	if err != nil {
		return fmt.Errorf("load lesson: %w", err)
	}
	if duration <= 0 {
		return errors.New("lesson has no video_duration, nothing to simulate")
	}
	logger.Info("starting view",
		zap.String("lesson_id", lesson.LessonID),
		zap.Float64("duration", duration),
		zap.Bool("offer", lesson.HasOffer))

	player := telemetry.NewSimPlayer(duration, o.rate)
	tracker := telemetry.NewTracker(telemetry.NewViewSession(lesson), sink, logger)
	player.Play()

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	paused, clicked := false, false
	for {
		if tracker.Step(ctx, player) {
			break
		}
		if o.pauseAt > 0 && !paused && player.CurrentTime() >= o.pauseAt {
			paused = true
			player.Pause()
			tracker.Step(ctx, player)
			logger.Info("paused", zap.Float64("at", player.CurrentTime()), zap.Duration("for", o.pauseFor))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.pauseFor):
			}
			player.Play()
		}
		if o.clickOffer && !clicked && tracker.View().OfferRevealed() {
			clicked = true
			if err := tracker.Click(ctx, player); err != nil {
				logger.Warn("offer click", zap.Error(err))
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	fired := make([]int, 0, len(telemetry.Milestones))
	for _, m := range telemetry.Milestones {
		if tracker.View().Fired(m) {
			fired = append(fired, m)
		}
	}
	logger.Info("view finished", zap.Ints("milestones", fired), zap.Bool("offer_revealed", tracker.View().OfferRevealed()))
	return nil
}

func init() {
	f := simulateCmd.Flags()
	f.String("api", "http://localhost:8080", "Funnel API base URL")
	f.String("webinar", "", "Webinar slug")
	f.String("lesson", "", "Lesson slug")
	f.String("email", "", "Lead email")
	f.String("name", "", "Lead name when registering")
	f.String("token", "", "Lead access token instead of email")
	f.Bool("register", false, "Register the lead before watching")
	f.Float64("rate", 10, "Video seconds played per wall second")
	f.Duration("interval", time.Second, "Progress sampling interval")
	f.Float64("pause-at", 0, "Pause once at this video second (0 disables)")
	f.Duration("pause-for", 2*time.Second, "How long to stay paused")
	f.Bool("click-offer", false, "Click the offer once it is revealed")
}
