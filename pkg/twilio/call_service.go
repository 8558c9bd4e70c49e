package twilio

import (
	"fmt"

	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// CallService wraps the Twilio REST client and webhook signature validation.
// With empty credentials it is disabled: signatures are not checked and
// remote hangups are skipped.
type CallService struct {
	client    *twilio.RestClient
	validator *twilioclient.RequestValidator
	enabled   bool
}

// NewCallService creates a new Twilio call service
func NewCallService(accountSID, authToken string) *CallService {
	if accountSID == "" || authToken == "" {
		logger.Base().Warn("twilio credentials not provided, remote call control disabled")
		return &CallService{enabled: false}
	}

	validator := twilioclient.NewRequestValidator(authToken)
	return &CallService{
		client:    twilio.NewRestClientWithParams(twilio.ClientParams{Username: accountSID, Password: authToken}),
		validator: &validator,
		enabled:   true,
	}
}

// IsEnabled returns whether credentials were configured
func (s *CallService) IsEnabled() bool {
	return s.enabled
}

// ValidateSignature checks the X-Twilio-Signature of a form-encoded webhook
func (s *CallService) ValidateSignature(url string, params map[string]string, signature string) bool {
	if !s.enabled {
		return true
	}
	return s.validator.Validate(url, params, signature)
}

// Hangup completes an in-progress call on Twilio's side
func (s *CallService) Hangup(callSID string) error {
	if !s.enabled {
		return fmt.Errorf("twilio call service is disabled")
	}

	params := &api.UpdateCallParams{}
	params.SetStatus("completed")
	if _, err := s.client.Api.UpdateCall(callSID, params); err != nil {
		logger.Base().Error("failed to hang up call", zap.String("call_id", callSID), zap.Error(err))
		return fmt.Errorf("failed to hang up call %s: %w", callSID, err)
	}

	logger.Base().Info("call hung up via twilio api", zap.String("call_id", callSID))
	return nil
}
