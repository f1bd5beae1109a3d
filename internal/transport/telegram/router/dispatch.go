package router

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const registryName = "telegram.router"

var workerRestart = supervisor.Restart{
	MinBackoff:  200 * time.Millisecond,
	MaxBackoff:  5 * time.Second,
	OnCleanExit: false,
	Fatal:       true,
}

type job struct {
	req *Request
	run HandlerFunc
}

// Run feeds updates to a worker pool until ctx is canceled or updates is
// closed. Handlers still running when it returns get up to three seconds.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	workers := r.workers
	if workers <= 0 {
		workers = 2
	}
	queue := make(chan job, max(r.queue, 1))

	sup := supervisor.New(ctx, supervisor.WithLogger(r.log))
	r.sups.Set(registryName, sup)
	defer r.sups.Delete(registryName)

	for i := range workers {
		sup.GoRestart("command.worker."+strconv.Itoa(i), workerRestart, func(c context.Context) error {
			return work(c, queue)
		})
	}
	r.log.Info("dispatcher started", logx.Int("workers", workers), logx.Int("queue", cap(queue)))

	defer func() {
		close(queue)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = sup.Wait(wctx)
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Kind == kit.UpdateMessage && up.Message != nil {
				r.dispatch(sup.Context(), up.Message, queue)
			}
		}
	}
}

func work(ctx context.Context, queue <-chan job) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j, ok := <-queue:
			if !ok {
				return nil
			}
			_ = j.run(ctx, j.req)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, msg *kit.Message, queue chan<- job) {
	req, cmd, ok := r.Resolve(msg)
	if !ok {
		return
	}
	if cmd.Access == AccessOwnerOnly && !req.owner {
		r.log.Debug("owner command refused", logx.Int64("from_id", req.FromID), logx.String("cmd", cmd.Name))
		return
	}
	req.ReqID = uuid.NewString()
	req.Logger = r.log.With(
		logx.String("rid", req.ReqID),
		logx.String("cmd", cmd.Name),
		logx.Int64("chat_id", req.Chat.ChatID),
		logx.Int64("from_id", req.FromID),
	)

	select {
	case queue <- job{req: req, run: Chain(cmd.Handle, Recover(), Logged(slowRequest), Deadline(cmd.Timeout))}:
	default:
		req.Logger.Warn("command queue full; dropped")
		_ = req.Reply(ctx, "busy, try again")
	}
}
