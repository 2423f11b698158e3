package scheduler

import (
	"context"
	"fmt"

	"concierge_backend/internal/negotiations/service"
	"concierge_backend/platform/config"
	"concierge_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	svc    *service.Service
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, svc *service.Service, log *logger.Logger) (*Worker, error) {
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

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		svc:    svc,
		log:    log,
	}

	mux.HandleFunc(TaskMeetingLinkCheck, w.handleMeetingLinkCheck)
	mux.HandleFunc(TaskFeedbackForm, w.handleFeedbackForm)
	mux.HandleFunc(TaskSessionHeldCheck, w.handleSessionHeldCheck)

	return w, nil
}

func (w *Worker) handleMeetingLinkCheck(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseMeetingLinkCheckPayload(task)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(payload.NegotiationID)
	if err != nil {
		return err
	}

	return w.svc.FireMeetingLinkCheck(ctx, id)
}

func (w *Worker) handleFeedbackForm(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseFeedbackFormPayload(task)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(payload.NegotiationID)
	if err != nil {
		return err
	}

	return w.svc.FireFeedbackRequest(ctx, id)
}

func (w *Worker) handleSessionHeldCheck(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSessionHeldCheckPayload(task)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(payload.NegotiationID)
	if err != nil {
		return err
	}

	return w.svc.MarkSessionHeld(ctx, id)
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
