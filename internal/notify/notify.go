package notify

import (
	"fmt"
	"strings"

	"github.com/containrrr/shoutrrr"

	"github.com/vigil-sec/vigil/internal/logger"
)

// Notifier pushes operational alerts to configured shoutrrr URLs.
// With no URLs configured it degrades to logging only.
type Notifier struct {
	urls []string
}

func NewNotifier(urls []string) *Notifier {
	valid := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if !strings.Contains(u, "://") {
			logger.WithFields(map[string]interface{}{"url": u}).Warn("skipping malformed notification URL")
			continue
		}
		valid = append(valid, u)
	}
	return &Notifier{urls: valid}
}

// Alert sends a message to every configured destination. Delivery
// failures are logged, never propagated; alerting must not take down
// the pipeline it reports on.
func (n *Notifier) Alert(title, message string) {
	if len(n.urls) == 0 {
		logger.WithFields(map[string]interface{}{"title": title}).Info(message)
		return
	}

	body := fmt.Sprintf("%s\n\n%s", title, message)
	for _, u := range n.urls {
		if err := shoutrrr.Send(u, body); err != nil {
			logger.WithFields(map[string]interface{}{
				"error": err.Error(),
			}).Error("failed to send notification")
		}
	}
}
