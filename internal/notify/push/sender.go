// Package push delivers notifications to mobile devices through SNS
// platform endpoints. The sender is transport only: it never touches the
// database, and reports one result per distinct token so the caller can
// write delivery logs and retire dead devices.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"traindeck/internal/types"
)

// SNSAPI is the subset of the SNS client the sender uses.
type SNSAPI interface {
	CreatePlatformEndpoint(ctx context.Context, params *sns.CreatePlatformEndpointInput, optFns ...func(*sns.Options)) (*sns.CreatePlatformEndpointOutput, error)
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Result is the outcome of one push attempt for one distinct token.
type Result struct {
	DeviceID string
	UserID   string
	Token    string
	Success  bool
	// TokenDead marks the token as permanently unusable. The device behind
	// it should be deactivated so future fan-outs skip it.
	TokenDead bool
	Err       error
}

// Sender publishes one message to a set of device tokens. Publishes run
// concurrently up to a configured limit, behind a circuit breaker so a
// platform outage fails fast instead of stalling the whole fan-out.
type Sender struct {
	client         SNSAPI
	platformAppARN string
	concurrency    int
	breaker        *gobreaker.CircuitBreaker[*sns.PublishOutput]
	logger         *slog.Logger
}

// NewSender creates a Sender targeting the given SNS platform application.
func NewSender(client SNSAPI, platformAppARN string, concurrency int, logger *slog.Logger) *Sender {
	if concurrency <= 0 {
		concurrency = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	breaker := gobreaker.NewCircuitBreaker[*sns.PublishOutput](gobreaker.Settings{
		Name: "sns-push",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Sender{
		client:         client,
		platformAppARN: platformAppARN,
		concurrency:    concurrency,
		breaker:        breaker,
		logger:         logger,
	}
}

// Send delivers the message to every distinct token among the targets.
// Duplicate tokens are collapsed to the first-seen device so each physical
// handset receives at most one push and produces exactly one result.
// Results are independent: one bad token never aborts the rest. The order
// of results follows the first appearance of each token in targets.
func (s *Sender) Send(ctx context.Context, msg *types.Message, targets []types.PushTarget) []Result {
	distinct := dedupeByToken(targets)
	if len(distinct) == 0 {
		return nil
	}

	body, err := renderPayload(msg)
	if err != nil {
		// A message that cannot be rendered fails every target the same way.
		results := make([]Result, len(distinct))
		for i, t := range distinct {
			results[i] = Result{DeviceID: t.DeviceID, UserID: t.UserID, Token: t.Token, Err: err}
		}
		return results
	}

	results := make([]Result, len(distinct))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, t := range distinct {
		i, t := i, t
		g.Go(func() error {
			results[i] = s.sendOne(gctx, t, body)
			return nil
		})
	}
	// Workers never return errors; failures live in the per-token results.
	_ = g.Wait()

	return results
}

func (s *Sender) sendOne(ctx context.Context, target types.PushTarget, body string) Result {
	res := Result{DeviceID: target.DeviceID, UserID: target.UserID, Token: target.Token}

	endpoint, err := s.client.CreatePlatformEndpoint(ctx, &sns.CreatePlatformEndpointInput{
		PlatformApplicationArn: aws.String(s.platformAppARN),
		Token:                  aws.String(target.Token),
	})
	if err != nil {
		res.Err = fmt.Errorf("creating platform endpoint: %w", err)
		res.TokenDead = IsDeadToken(err)
		return res
	}

	_, err = s.breaker.Execute(func() (*sns.PublishOutput, error) {
		return s.client.Publish(ctx, &sns.PublishInput{
			TargetArn:        endpoint.EndpointArn,
			Message:          aws.String(body),
			MessageStructure: aws.String("json"),
		})
	})
	if err != nil {
		res.Err = fmt.Errorf("publishing to endpoint: %w", err)
		res.TokenDead = IsDeadToken(err)
		s.logger.WarnContext(ctx, "push delivery failed",
			"device_id", target.DeviceID,
			"token_dead", res.TokenDead,
			"error", err,
		)
		return res
	}

	res.Success = true
	return res
}

// dedupeByToken collapses targets sharing a token, keeping the first-seen
// device for each. Order of first appearance is preserved.
func dedupeByToken(targets []types.PushTarget) []types.PushTarget {
	seen := make(map[string]struct{}, len(targets))
	distinct := make([]types.PushTarget, 0, len(targets))
	for _, t := range targets {
		if t.Token == "" {
			continue
		}
		if _, ok := seen[t.Token]; ok {
			continue
		}
		seen[t.Token] = struct{}{}
		distinct = append(distinct, t)
	}
	return distinct
}

// renderPayload builds the SNS json message structure carrying the title,
// body and data map for both mobile platforms plus a default fallback.
func renderPayload(msg *types.Message) (string, error) {
	fcm, err := json.Marshal(map[string]any{
		"notification": map[string]string{
			"title": msg.Title,
			"body":  msg.Body,
		},
		"data": msg.Data,
	})
	if err != nil {
		return "", fmt.Errorf("rendering fcm payload: %w", err)
	}

	apns, err := json.Marshal(map[string]any{
		"aps": map[string]any{
			"alert": map[string]string{
				"title": msg.Title,
				"body":  msg.Body,
			},
		},
		"data": msg.Data,
	})
	if err != nil {
		return "", fmt.Errorf("rendering apns payload: %w", err)
	}

	wrapper, err := json.Marshal(map[string]string{
		"default": msg.Body,
		"GCM":     string(fcm),
		"APNS":    string(apns),
	})
	if err != nil {
		return "", fmt.Errorf("rendering sns payload: %w", err)
	}
	return string(wrapper), nil
}
