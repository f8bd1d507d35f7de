package clients

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"projectpulse/microservices/taskpool-service/logging"

	"github.com/sony/gobreaker"
)

// NotificationsClient posts user notifications to the notifications service.
// Calls go through a circuit breaker and failures are reported to the caller
// for logging only; a down notifications service must never fail a task
// mutation.
type NotificationsClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewNotificationsClient(baseURL string, breaker *gobreaker.CircuitBreaker) *NotificationsClient {
	return &NotificationsClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		breaker: breaker,
	}
}

type notificationRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// SendNotification delivers one message to one user. A nil client is a no-op
// so the engine runs without a notifications service configuration.
func (c *NotificationsClient) SendNotification(userID, message string) error {
	if c == nil {
		return nil
	}
	payload, err := json.Marshal(notificationRequest{
		UserID:   userID,
		Username: userID,
		Message:  message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %v", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/notifications/add", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Role", "manager")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("notifications service returned status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		logging.Logger.Warnf("Event ID: NOTIFICATION_SEND_FAILED, Description: Failed to notify user %s: %v", userID, err)
	}
	return err
}
