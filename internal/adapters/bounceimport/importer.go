// Package bounceimport pulls provider bounce notifications off a Redis list
// and feeds them into the queue as bounce_apply jobs.
package bounceimport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/redis/go-redis/v9"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/service"
)

// Provider payloads differ in shape; each field is extracted with the first
// JMESPath expression that yields a value, in declaration order.
var fieldExpressions = map[string][]string{
	"type":       {"bounce.bounceType", "bounceType", "notification.type"},
	"subType":    {"bounce.bounceSubType", "bounceSubType"},
	"recipients": {"bounce.bouncedRecipients[].emailAddress", "recipients", "bounce.recipients"},
	"tag":        {"mail.tags.token[0]", "tag", "headers.\"X-Bounce-Token\""},
	"returnPath": {"mail.source", "returnPath", "envelope.from"},
	"subject":    {"mail.commonHeaders.subject", "subject"},
	"rawText":    {"bounce.feedbackText", "rawText", "body"},
	"code":       {"bounce.bouncedRecipients[0].status", "code", "status"},
	"reason":     {"bounce.bouncedRecipients[0].diagnosticCode", "reason", "diagnostic"},
}

// Options configures an Importer.
type Options struct {
	Redis  redis.UniversalClient // Required: inbound notification transport
	Jobs   *service.JobService   // Required: queue for bounce_apply jobs
	Logger *slog.Logger          // Optional: structured logger

	// Queue is the Redis list the provider webhook bridge pushes into.
	Queue string // Optional: default "bounce:inbound"
	// DeadQueue receives payloads that cannot be parsed.
	DeadQueue string // Optional: default "bounce:dead"
	// PollTimeout bounds each blocking pop so shutdown stays responsive.
	PollTimeout time.Duration // Optional: default 5s
}

// Importer is the inbound half of the bounce pipeline: it normalizes raw
// provider payloads into BounceNotification jobs. Unparseable payloads are
// moved to a dead queue rather than retried forever.
type Importer struct {
	redis  redis.UniversalClient
	jobs   *service.JobService
	logger *slog.Logger

	queue       string
	deadQueue   string
	pollTimeout time.Duration
}

// New constructs an Importer.
func New(opts Options) (*Importer, error) {
	if opts.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.Jobs == nil {
		return nil, errors.New("JobService is required")
	}

	imp := &Importer{
		redis:       opts.Redis,
		jobs:        opts.Jobs,
		queue:       opts.Queue,
		deadQueue:   opts.DeadQueue,
		pollTimeout: opts.PollTimeout,
	}
	if imp.queue == "" {
		imp.queue = "bounce:inbound"
	}
	if imp.deadQueue == "" {
		imp.deadQueue = "bounce:dead"
	}
	if imp.pollTimeout <= 0 {
		imp.pollTimeout = 5 * time.Second
	}
	imp.logger = slog.Default()
	if opts.Logger != nil {
		imp.logger = opts.Logger
	}
	imp.logger = imp.logger.With("component", "bounce_importer")
	return imp, nil
}

// Run polls the inbound list until the context is cancelled.
func (i *Importer) Run(ctx context.Context) error {
	i.logger.InfoContext(ctx, "starting bounce importer", "queue", i.queue)

	for ctx.Err() == nil {
		vals, err := i.redis.BRPop(ctx, i.pollTimeout, i.queue).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			i.logger.ErrorContext(ctx, "poll inbound bounces failed", "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		// BRPop returns [key, value].
		if len(vals) != 2 {
			continue
		}
		i.ingest(ctx, []byte(vals[1]))
	}
	return ctx.Err()
}

func (i *Importer) ingest(ctx context.Context, raw []byte) {
	notification, err := Parse(raw)
	if err != nil {
		i.logger.WarnContext(ctx, "dropping unparseable bounce payload", "err", err)
		if pushErr := i.redis.LPush(ctx, i.deadQueue, raw).Err(); pushErr != nil {
			i.logger.ErrorContext(ctx, "dead queue push failed", "err", pushErr)
		}
		return
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		i.logger.ErrorContext(ctx, "encode bounce notification failed", "err", err)
		return
	}
	if _, err := i.jobs.Create(ctx, &model.CreateJobRequest{
		Type:    model.JobTypeBounceApply,
		Payload: payload,
	}); err != nil {
		i.logger.ErrorContext(ctx, "enqueue bounce_apply failed", "err", err)
		// Keep the payload; re-push so a later poll retries it.
		if pushErr := i.redis.LPush(ctx, i.queue, raw).Err(); pushErr != nil {
			i.logger.ErrorContext(ctx, "requeue bounce payload failed", "err", pushErr)
		}
	}
}

// Parse normalizes one raw provider payload into a BounceNotification.
func Parse(raw []byte) (*model.BounceNotification, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode bounce payload: %w", err)
	}

	n := &model.BounceNotification{
		NotificationType: "Bounce",
		Type:             model.BounceType(extractString(doc, "type")),
		SubType:          extractString(doc, "subType"),
		Recipients:       extractStrings(doc, "recipients"),
		Tag:              extractString(doc, "tag"),
		ReturnPath:       extractString(doc, "returnPath"),
		Subject:          extractString(doc, "subject"),
		RawText:          extractString(doc, "rawText"),
		Code:             extractString(doc, "code"),
		Reason:           extractString(doc, "reason"),
		Timestamp:        time.Now().UTC(),
	}

	if n.Type != model.BounceTypePermanent && n.Type != model.BounceTypeTransient {
		return nil, fmt.Errorf("unrecognized bounce type %q", n.Type)
	}
	if len(n.Recipients) == 0 {
		if _, _, ok := n.Token(); !ok {
			return nil, errors.New("bounce payload has neither recipients nor a token")
		}
	}
	return n, nil
}

func extractString(doc any, field string) string {
	for _, expr := range fieldExpressions[field] {
		value, err := jmespath.Search(expr, doc)
		if err != nil {
			continue
		}
		if s, ok := value.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func extractStrings(doc any, field string) []string {
	for _, expr := range fieldExpressions[field] {
		value, err := jmespath.Search(expr, doc)
		if err != nil {
			continue
		}
		switch v := value.(type) {
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		case string:
			if v != "" {
				return []string{v}
			}
		}
	}
	return nil
}
