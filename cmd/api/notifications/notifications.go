package notifications

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Ntfy pushes operational messages to ntfy.sh topics. Deliveries are
// best-effort; callers fire them from a goroutine and only log failures.
type Ntfy struct {
	baseURL string
	enabled bool
	timeout time.Duration
	client  *http.Client
}

func NewNtfy(enableNotifications bool, notificationsTimeout time.Duration, notificationsBaseURL string) *Ntfy {
	return &Ntfy{
		baseURL: notificationsBaseURL,
		enabled: enableNotifications,
		timeout: notificationsTimeout,
		client:  &http.Client{},
	}
}

func (ntf *Ntfy) BookCreated(title string, totalCopies int) error {
	message := fmt.Sprintf("New book created:\nTitle: %s\nTotal copies: %v", title, totalCopies)
	return ntf.publish("New_book_created", message)
}

func (ntf *Ntfy) FineApplied(title string, fine int) error {
	message := fmt.Sprintf("Late return fine applied:\nTitle: %s\nFine: %v", title, fine)
	return ntf.publish("Fine_applied", message)
}

func (ntf *Ntfy) publish(topic, message string) error {
	if !ntf.enabled {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), ntf.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ntf.baseURL+"/"+topic, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("delivering message to topic (%s/%s): %w", ntf.baseURL, topic, err)
	}

	resp, err := ntf.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering message to topic (%s/%s): %w", ntf.baseURL, topic, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return NewErrNotificationFailed(resp.StatusCode)
	}

	return nil
}

type ErrNotificationFailed struct {
	statusCode int
}

func (e ErrNotificationFailed) Error() string {
	return fmt.Sprintf("ntfy wrong response - want: 200 OK, got: %d", e.statusCode)
}

func NewErrNotificationFailed(statusCode int) ErrNotificationFailed {
	return ErrNotificationFailed{statusCode: statusCode}
}
