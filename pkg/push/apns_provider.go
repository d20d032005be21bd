package push

import (
	"context"
	"fmt"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/certificate"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
	"go.uber.org/zap"

	"peerpractice-backend/pkg/logger"
)

// APNsProvider implements Provider for Apple Push Notification Service
type APNsProvider struct {
	client     *apns2.Client
	production bool
	bundleID   string
}

// APNsConfig contains configuration for APNs provider
type APNsConfig struct {
	// Certificate-based authentication (legacy)
	CertificatePath     string // Path to .p12 certificate file
	CertificatePassword string // Password for .p12 certificate

	// Token-based authentication (recommended)
	KeyPath string // Path to .p8 private key file
	KeyID   string // 10-character Key ID from Apple Developer Portal
	TeamID  string // 10-character Team ID from Apple Developer Portal

	BundleID   string // Bundle ID of the app (e.g., com.example.app)
	Production bool   // Use production APNs endpoint (true) or sandbox (false)
}

// NewAPNsProvider creates a new APNs provider
func NewAPNsProvider(config *APNsConfig) (*APNsProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("APNs config is required")
	}

	if config.BundleID == "" {
		return nil, fmt.Errorf("BundleID is required")
	}

	var client *apns2.Client

	// Prefer token-based authentication
	if config.KeyPath != "" && config.KeyID != "" && config.TeamID != "" {
		authKey, keyErr := token.AuthKeyFromFile(config.KeyPath)
		if keyErr != nil {
			logger.Error("Failed to load APNs key file",
				zap.Error(keyErr),
				zap.String("key_path", config.KeyPath))
			return nil, fmt.Errorf("failed to load APNs key: %w", keyErr)
		}

		authToken := &token.Token{
			AuthKey: authKey,
			KeyID:   config.KeyID,
			TeamID:  config.TeamID,
		}

		client = apns2.NewTokenClient(authToken)

		logger.Info("APNs provider initialized with token authentication",
			zap.String("bundle_id", config.BundleID),
			zap.Bool("production", config.Production))
	} else if config.CertificatePath != "" {
		cert, certErr := certificate.FromP12File(config.CertificatePath, config.CertificatePassword)
		if certErr != nil {
			logger.Error("Failed to load APNs certificate",
				zap.Error(certErr),
				zap.String("cert_path", config.CertificatePath))
			return nil, fmt.Errorf("failed to load certificate: %w", certErr)
		}

		client = apns2.NewClient(cert)

		logger.Info("APNs provider initialized with certificate authentication",
			zap.String("bundle_id", config.BundleID),
			zap.Bool("production", config.Production))
	} else {
		return nil, fmt.Errorf("either token-based (KeyPath, KeyID, TeamID) or certificate-based (CertificatePath) authentication must be provided")
	}

	if config.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNsProvider{
		client:     client,
		production: config.Production,
		bundleID:   config.BundleID,
	}, nil
}

// Send implements Provider for APNs
func (a *APNsProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	if a.client == nil {
		return nil, fmt.Errorf("APNs client is not initialized")
	}

	if len(tokens) == 0 {
		return &SendResult{}, nil
	}

	result := &SendResult{
		InvalidTokens: []string{},
		Errors:        []error{},
	}

	for _, deviceToken := range tokens {
		p := payload.NewPayload().
			AlertTitle(notification.Title).
			AlertBody(notification.Body)

		if notification.Sound != "" {
			p.Sound(notification.Sound)
		}

		if notification.Badge != nil {
			p.Badge(*notification.Badge)
		}

		if notification.Category != "" {
			p.Category(notification.Category)
		}

		for key, value := range notification.Data {
			p.Custom(key, value)
		}

		notificationMsg := &apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       a.bundleID,
			Payload:     p,
		}

		if notification.Priority == "high" {
			notificationMsg.Priority = apns2.PriorityHigh
		} else {
			notificationMsg.Priority = apns2.PriorityLow
		}

		resp, err := a.client.PushWithContext(ctx, notificationMsg)
		if err != nil {
			result.FailureCount++
			result.Errors = append(result.Errors, err)
			logger.Warn("Failed to send APNs notification",
				zap.Error(err),
				zap.String("device_token", maskPushToken(deviceToken)))
			continue
		}

		if resp.StatusCode == 200 {
			result.SuccessCount++
			logger.Debug("APNs notification sent",
				zap.String("device_token", maskPushToken(deviceToken)),
				zap.String("apns_id", resp.ApnsID))
		} else {
			result.FailureCount++
			result.Errors = append(result.Errors, fmt.Errorf("APNs error: %s", resp.Reason))

			if resp.StatusCode == 410 || // Unregistered
				resp.Reason == apns2.ReasonUnregistered ||
				resp.Reason == apns2.ReasonBadDeviceToken ||
				resp.Reason == apns2.ReasonDeviceTokenNotForTopic {
				result.InvalidTokens = append(result.InvalidTokens, deviceToken)
			}

			logger.Warn("APNs notification failed",
				zap.Int("status_code", resp.StatusCode),
				zap.String("reason", resp.Reason),
				zap.String("device_token", maskPushToken(deviceToken)))
		}
	}

	logger.Info("APNs batch send completed",
		zap.Int("success_count", result.SuccessCount),
		zap.Int("failure_count", result.FailureCount),
		zap.Int("invalid_tokens", len(result.InvalidTokens)),
		zap.String("title", notification.Title))

	return result, nil
}
