package notifications

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
)

// SlackAPI is the subset of the Slack client the service uses
type SlackAPI interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

// Service delivers operational notifications to a Slack channel.
// Delivery is best-effort: failures are logged, never propagated to the
// pipeline, and a service with no token is a silent no-op.
type Service struct {
	client  SlackAPI
	channel string
}

// NewService creates a Slack notification service. An empty token or
// channel disables delivery.
func NewService(token, channel string) *Service {
	if token == "" || channel == "" {
		log.Debug().Msg("Slack notifications disabled (no token or channel configured)")
		return &Service{}
	}
	return &Service{
		client:  slack.New(token),
		channel: channel,
	}
}

// NewServiceWithClient creates a service with an injected Slack client
func NewServiceWithClient(client SlackAPI, channel string) *Service {
	return &Service{client: client, channel: channel}
}

// Enabled reports whether the service will attempt delivery
func (s *Service) Enabled() bool {
	return s.client != nil && s.channel != ""
}

// NotifyTaskExhausted announces a task that failed terminally after using
// all of its retries.
func (s *Service) NotifyTaskExhausted(taskID, targetURL string, retries int, lastErr error) {
	if !s.Enabled() {
		return
	}

	reason := "unknown"
	if lastErr != nil {
		reason = lastErr.Error()
	}

	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", ":x: *Scraping task exhausted its retries*", false, false),
			nil, nil,
		),
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn",
				fmt.Sprintf("*Task:* %s\n*URL:* %s\n*Retries:* %d\n*Last error:* %s", taskID, targetURL, retries, reason),
				false, false,
			),
			nil, nil,
		),
	}
	fallback := fmt.Sprintf("Task %s failed after %d retries: %s", taskID, retries, reason)

	s.post(blocks, fallback, "task_exhausted", taskID)
}

// NotifyQualityDrop announces a batch sweep whose average quality score
// fell below the configured threshold.
func (s *Service) NotifyQualityDrop(averageScore, threshold float64, assessed int) {
	if !s.Enabled() {
		return
	}

	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", ":warning: *Data quality dropped below threshold*", false, false),
			nil, nil,
		),
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn",
				fmt.Sprintf("*Average score:* %.1f\n*Threshold:* %.1f\n*Records assessed:* %d", averageScore, threshold, assessed),
				false, false,
			),
			nil, nil,
		),
	}
	fallback := fmt.Sprintf("Average quality score %.1f fell below threshold %.1f across %d records", averageScore, threshold, assessed)

	s.post(blocks, fallback, "quality_drop", "")
}

func (s *Service) post(blocks []slack.Block, fallback, kind, taskID string) {
	_, _, err := s.client.PostMessage(
		s.channel,
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionText(fallback, false),
	)
	if err != nil {
		log.Warn().
			Err(err).
			Str("kind", kind).
			Str("task_id", taskID).
			Msg("Failed to send Slack notification")
		return
	}
	log.Info().
		Str("kind", kind).
		Str("task_id", taskID).
		Msg("Slack notification sent")
}
