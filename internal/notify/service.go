package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/harukimori/fleamarket-backend/pkg/config"
	"github.com/harukimori/fleamarket-backend/pkg/logger"
)

// Service pushes messages to users through a LINE-Notify-compatible API.
// Delivery is best effort; callers must never fail a purchase on a push
// error.
type Service struct {
	apiURL string
	client *http.Client
	logger *logger.Logger
}

// NewService builds the push sink from config.
func NewService(cfg config.NotifyConfig, logg *logger.Logger) (*Service, error) {
	if strings.TrimSpace(cfg.APIURL) == "" {
		return nil, errors.New("notify api url is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	return &Service{
		apiURL: cfg.APIURL,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logg,
	}, nil
}

// Send posts a message on behalf of the user identified by token.
func (s *Service) Send(ctx context.Context, token, message string) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("notify token is required")
	}
	if strings.TrimSpace(message) == "" {
		return errors.New("notify message is required")
	}

	form := url.Values{}
	form.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building notify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending notify request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notify api responded %d", resp.StatusCode)
	}

	s.logger.Info(ctx, "notification delivered")
	return nil
}
