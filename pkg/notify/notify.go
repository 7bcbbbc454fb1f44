// Package notify is an optional Slack notifier for leader-election and
// membership-change events — ambient operator visibility, not part of the
// core coordination path (kontrold calls it from leader.Elector's optional
// OnElected/OnDigestChange hooks).
package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"

	"github.com/wisbric/kontrol/pkg/pod"
)

// Notifier posts coordination events to a Slack channel. A zero-value
// botToken makes it a no-op, matching the teacher's IsEnabled guard.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// New creates a Notifier. If botToken is empty, every method is a no-op.
func New(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether this notifier has a usable client and channel.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// LeaderElected announces that this process has been promoted to leader.
func (n *Notifier) LeaderElected(ctx context.Context, lockKey string) {
	n.post(ctx, fmt.Sprintf(":crown: kontrol: promoted to leader (lock `%s`)", lockKey))
}

// MembershipChanged announces a membership digest change, summarizing the
// current pod count and digest.
func (n *Notifier) MembershipChanged(ctx context.Context, digest string, pods []pod.Record) {
	n.post(ctx, fmt.Sprintf(":arrows_counterclockwise: kontrol: membership changed — %d pod(s), digest `%s`", len(pods), digest))
}

func (n *Notifier) post(ctx context.Context, text string) {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping post", "text", text)
		return
	}
	if _, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false)); err != nil {
		n.logger.Warn("posting to slack failed", "error", err)
	}
}
