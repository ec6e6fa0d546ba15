package dataquality

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cactilia/cactilia-backend/internal/shipping"
	"github.com/cactilia/cactilia-backend/pkg/logger"
	"github.com/google/uuid"
)

const (
	EventRuleMisconfigured = "shipping.rule_misconfigured"

	defaultSuppressWindow = 10 * time.Minute
	defaultPublishTimeout = 3 * time.Second
)

// Publisher sends an encoded event to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte, attributes map[string]string) (string, error)
}

// RuleMisconfiguredEvent is published once per rule option and suppression window.
type RuleMisconfiguredEvent struct {
	EventID    string    `json:"eventId"`
	Type       string    `json:"type"`
	RuleID     string    `json:"ruleId"`
	ZoneName   string    `json:"zoneName,omitempty"`
	Option     string    `json:"option,omitempty"`
	Reason     string    `json:"reason"`
	DetectedAt time.Time `json:"detectedAt"`
}

// Options tunes a Reporter.
type Options struct {
	Topic          string
	SuppressWindow time.Duration
	PublishTimeout time.Duration
}

// Reporter logs misconfigured rules and, when a publisher is configured, emits them as
// events for the rule owners. Repeated reports for the same rule option are suppressed
// for a window. Events are published in the background; Wait blocks until they finish.
type Reporter struct {
	publisher Publisher
	logg      *logger.Logger
	opts      Options
	now       func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time

	inflight sync.WaitGroup
}

var _ shipping.RuleIssueReporter = (*Reporter)(nil)

// NewReporter builds a reporter. publisher may be nil, in which case issues are only logged.
func NewReporter(publisher Publisher, logg *logger.Logger, opts Options) *Reporter {
	if opts.SuppressWindow <= 0 {
		opts.SuppressWindow = defaultSuppressWindow
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaultPublishTimeout
	}
	opts.Topic = strings.TrimSpace(opts.Topic)
	return &Reporter{
		publisher: publisher,
		logg:      logg,
		opts:      opts,
		now:       time.Now,
		lastSeen:  map[string]time.Time{},
	}
}

func (r *Reporter) ReportMisconfiguredRules(ctx context.Context, issues []shipping.RuleIssue) {
	fresh := r.fresh(issues)
	for _, issue := range fresh {
		if r.logg != nil {
			logCtx := r.logg.WithFields(ctx, map[string]any{
				"rule_id":   issue.RuleID,
				"zone_name": issue.ZoneName,
				"option":    issue.Option,
				"reason":    issue.Reason,
			})
			r.logg.Warn(logCtx, "shipping rule misconfigured")
		}
	}
	if len(fresh) == 0 || r.publisher == nil || r.opts.Topic == "" {
		return
	}

	publishCtx := context.WithoutCancel(ctx)
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		for _, issue := range fresh {
			if err := r.publish(publishCtx, issue); err != nil && r.logg != nil {
				logCtx := r.logg.WithField(publishCtx, "rule_id", issue.RuleID)
				r.logg.Error(logCtx, "publish data quality event", err)
			}
		}
	}()
}

// Wait blocks until every background publish has finished.
func (r *Reporter) Wait() {
	r.inflight.Wait()
}

// fresh drops issues already reported within the suppression window and forgets
// entries whose window has passed.
func (r *Reporter) fresh(issues []shipping.RuleIssue) []shipping.RuleIssue {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for key, last := range r.lastSeen {
		if now.Sub(last) >= r.opts.SuppressWindow {
			delete(r.lastSeen, key)
		}
	}

	out := make([]shipping.RuleIssue, 0, len(issues))
	for _, issue := range issues {
		key := issueKey(issue)
		if _, ok := r.lastSeen[key]; ok {
			continue
		}
		r.lastSeen[key] = now
		out = append(out, issue)
	}
	return out
}

func issueKey(issue shipping.RuleIssue) string {
	if issue.Option == "" {
		return issue.RuleID
	}
	return issue.RuleID + "/" + issue.Option
}

func (r *Reporter) publish(ctx context.Context, issue shipping.RuleIssue) error {
	event := RuleMisconfiguredEvent{
		EventID:    uuid.NewString(),
		Type:       EventRuleMisconfigured,
		RuleID:     issue.RuleID,
		ZoneName:   issue.ZoneName,
		Option:     issue.Option,
		Reason:     issue.Reason,
		DetectedAt: r.now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal data quality event: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, r.opts.PublishTimeout)
	defer cancel()
	_, err = r.publisher.Publish(publishCtx, r.opts.Topic, data, map[string]string{
		"eventType": EventRuleMisconfigured,
		"eventId":   event.EventID,
		"ruleId":    issue.RuleID,
	})
	return err
}
