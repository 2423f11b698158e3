package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"concierge_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	client *asynq.Client
	queue  string
}

// FollowUpScheduler is the surface the negotiations side uses to enqueue
// timed follow-ups.
type FollowUpScheduler interface {
	ScheduleMeetingLinkCheck(ctx context.Context, payload MeetingLinkCheckPayload, runAt time.Time) error
	ScheduleFeedbackForm(ctx context.Context, payload FeedbackFormPayload, runAt time.Time) error
	ScheduleSessionHeldCheck(ctx context.Context, payload SessionHeldCheckPayload, runAt time.Time) error
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) ScheduleMeetingLinkCheck(ctx context.Context, payload MeetingLinkCheckPayload, runAt time.Time) error {
	task, err := NewMeetingLinkCheckTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, runAt, fmt.Sprintf("%s:%s:%d", TaskMeetingLinkCheck, payload.NegotiationID, runAt.Unix()))
}

func (c *Client) ScheduleFeedbackForm(ctx context.Context, payload FeedbackFormPayload, runAt time.Time) error {
	task, err := NewFeedbackFormTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, runAt, fmt.Sprintf("%s:%s:%d", TaskFeedbackForm, payload.NegotiationID, runAt.Unix()))
}

func (c *Client) ScheduleSessionHeldCheck(ctx context.Context, payload SessionHeldCheckPayload, runAt time.Time) error {
	task, err := NewSessionHeldCheckTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, runAt, fmt.Sprintf("%s:%s:%d", TaskSessionHeldCheck, payload.NegotiationID, runAt.Unix()))
}

// enqueue schedules the task with a deterministic ID so a replayed
// confirmation event does not produce a second copy of the same follow-up.
func (c *Client) enqueue(ctx context.Context, task *asynq.Task, runAt time.Time, taskID string) error {
	if c == nil || c.client == nil {
		return nil
	}

	_, err := c.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(runAt),
		asynq.Queue(c.queue),
		asynq.TaskID(taskID),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
