package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rbright/adaptord/internal/ipc"
	"github.com/rbright/adaptord/internal/runner"
)

// handler maps decoded control commands onto runner operations. It holds no
// state of its own; the runner provides all serialization.
type handler struct {
	logger *slog.Logger
	runner *runner.Runner
}

func newHandler(logger *slog.Logger, r *runner.Runner) ipc.Handler {
	return &handler{logger: logger, runner: r}
}

func (h *handler) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStart:
		if err := h.runner.Start(ctx); err != nil {
			return h.failure(err)
		}
		return h.success(nil)
	case ipc.CommandRun:
		result, err := h.runner.Run(ctx, req.Payload)
		if err != nil {
			return h.failure(err)
		}
		return h.success(result)
	case ipc.CommandStop:
		if err := h.runner.Stop(ctx); err != nil {
			return h.failure(err)
		}
		return h.success(nil)
	case ipc.CommandCancel:
		h.runner.Cancel()
		return h.success(nil)
	case ipc.CommandStatus:
		return h.success(nil)
	case ipc.CommandShutdown:
		// The session tears the server down after this response is written.
		return h.success(nil)
	default:
		return h.failure(fmt.Errorf("unknown command %q", req.Command))
	}
}

func (h *handler) success(result map[string]any) ipc.Response {
	return ipc.Response{OK: true, State: string(h.runner.State()), Result: result}
}

func (h *handler) failure(err error) ipc.Response {
	h.logger.Warn("command failed", "error", err.Error())
	return ipc.Response{OK: false, State: string(h.runner.State()), Error: err.Error()}
}
