package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/google/uuid"

	"nutrition-coach/internal/models"
	"nutrition-coach/pkg/logger"
)

// SNSAPI is the part of *sns.Client used here.
type SNSAPI interface {
	Publish(ctx context.Context, in *awssns.PublishInput, optFns ...func(*awssns.Options)) (*awssns.PublishOutput, error)
	CreatePlatformEndpoint(ctx context.Context, in *awssns.CreatePlatformEndpointInput, optFns ...func(*awssns.Options)) (*awssns.CreatePlatformEndpointOutput, error)
}

// NewSNSClient loads the default AWS credential chain for region.
func NewSNSClient(ctx context.Context, region string) (*awssns.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return awssns.NewFromConfig(cfg), nil
}

// SNSSender publishes to mobile push endpoints.
type SNSSender struct {
	sns SNSAPI
}

func NewSNSSender(api SNSAPI) *SNSSender {
	return &SNSSender{sns: api}
}

func (s *SNSSender) Channel() models.Channel { return models.ChannelSNS }

func (s *SNSSender) Send(ctx context.Context, target string, msg Message) error {
	payload, err := snsPayload(msg)
	if err != nil {
		return err
	}

	_, err = s.sns.Publish(ctx, &awssns.PublishInput{
		MessageStructure: aws.String("json"),
		Message:          aws.String(payload),
		TargetArn:        aws.String(target),
	})
	if err != nil {
		var disabled *types.EndpointDisabledException
		var notFound *types.NotFoundException
		if errors.As(err, &disabled) || errors.As(err, &notFound) {
			return fmt.Errorf("%w: %v", ErrGone, err)
		}
		return fmt.Errorf("failed to publish to %s: %w", target, err)
	}
	return nil
}

func snsPayload(msg Message) (string, error) {
	gcm, err := json.Marshal(map[string]any{
		"notification": msg,
	})
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(map[string]string{
		"default": msg.Body,
		"GCM":     string(gcm),
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

type SubscriptionStore interface {
	// AddSubscription stores sub. An existing row for the same channel and
	// target is moved to sub.UserID.
	AddSubscription(ctx context.Context, sub *models.Subscription) error
}

// Registrar turns device push tokens into SNS endpoint subscriptions.
type Registrar struct {
	sns         SNSAPI
	store       SubscriptionStore
	platformARN string
	logger      *logger.Logger
}

var ErrPlatformNotConfigured = errors.New("sns platform application is not configured")

func NewRegistrar(api SNSAPI, store SubscriptionStore, platformARN string, l *logger.Logger) *Registrar {
	return &Registrar{sns: api, store: store, platformARN: platformARN, logger: l}
}

func (r *Registrar) RegisterDevice(ctx context.Context, userID uuid.UUID, token string) (*models.Subscription, error) {
	if r.platformARN == "" {
		return nil, ErrPlatformNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("device token is required")
	}

	out, err := r.sns.CreatePlatformEndpoint(ctx, &awssns.CreatePlatformEndpointInput{
		PlatformApplicationArn: aws.String(r.platformARN),
		Token:                  aws.String(token),
	})
	if err != nil {
		r.logger.Errorw("Failed to create platform endpoint", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to create platform endpoint: %w", err)
	}

	sub := &models.Subscription{
		UserID:  userID,
		Channel: models.ChannelSNS,
		Target:  aws.ToString(out.EndpointArn),
	}
	if err := r.store.AddSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}

	r.logger.Infow("Registered device", "user_id", userID, "subscription_id", sub.ID)
	return sub, nil
}
