package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/hydronic-controller/internal/model"
)

const DefaultBaseURL = "https://ntfy.sh"

// Notifier posts messages to an ntfy topic.
type Notifier struct {
	client  *http.Client
	baseURL string
	topic   string
}

// New returns nil when topic is empty. A nil Notifier drops everything it is given.
func New(baseURL, topic string) *Notifier {
	if topic == "" {
		log.Warn().Msg("Ntfy topic not configured - notifications disabled")
		return nil
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	log.Info().
		Str("topic", topic).
		Msg("Ntfy notifications initialized")

	return &Notifier{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		topic:   topic,
	}
}

// Send sends a notification to the configured topic
func (n *Notifier) Send(title, message string) error {
	if n == nil {
		return nil
	}

	payload := map[string]interface{}{
		"topic":   n.topic,
		"title":   title,
		"message": message,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	// ntfy reads the topic from a JSON body posted to the root URL.
	req, err := http.NewRequest(http.MethodPost, n.baseURL+"/", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().
		Str("title", title).
		Int("status", resp.StatusCode).
		Msg("Notification sent successfully")

	return nil
}

// ModeChanged and HeatPumpFault let a Notifier observe the output controller. Only faults are
// worth waking someone for.
func (n *Notifier) ModeChanged(model.OutputMode, model.OutputMode, time.Time) {}

func (n *Notifier) HeatPumpFault(mode model.HeatPumpMode, err error, now time.Time) {
	msg := fmt.Sprintf("Heat pump did not take mode %s at %s: %v", mode, now.Format(time.RFC3339), err)
	go func() {
		if sendErr := n.Send("Heat pump fault", msg); sendErr != nil {
			log.Error().Err(sendErr).Msg("Failed to send heat pump fault notification")
		}
	}()
}
