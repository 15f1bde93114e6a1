package router

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// InvokeRequest is the worker child-process contract (spec.md §6): invoked
// with flags --task-type, --prompt, --task-id; returns exit code 0 on
// success with an optional stdout id; transient failures are signalled by
// stderr text containing a closed-set transient marker.
type InvokeRequest struct {
	TaskType string
	Prompt   string
	TaskID   string
	Command  []string // worker wrapper command; Command[0] is the executable
}

// InvokeResult is a single child-process attempt's outcome.
type InvokeResult struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	Transient bool
}

// invoker runs one worker wrapper invocation under ctx's deadline.
type invoker interface {
	Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error)
}

// execInvoker runs the worker wrapper as a plain child process, the
// default and always-available path (spec.md §4.5 additions, runtime mode
// "exec").
type execInvoker struct{}

func (execInvoker) Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error) {
	if len(req.Command) == 0 {
		return InvokeResult{}, errorf(ErrInvalidArgument, "worker command is empty")
	}

	args := append(append([]string{}, req.Command[1:]...),
		"--task-type", req.TaskType,
		"--prompt", req.Prompt,
		"--task-id", req.TaskID,
	)

	cmd := exec.CommandContext(ctx, req.Command[0], args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	result := InvokeResult{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}

	if runErr == nil {
		result.ExitCode = 0
		return result, nil
	}

	if ctx.Err() != nil {
		return result, errorf(ErrTimeout, "worker invocation exceeded its deadline")
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
	} else {
		return result, errorf(ErrTransportError, "worker invocation failed: %v", runErr)
	}

	result.Transient = isTransientFailure(result.Stderr)
	return result, nil
}

// dockerInvoker runs the worker wrapper inside a short-lived container,
// the opt-in path under ZHC_RUNTIME_MODE=docker. In that mode every
// dispatch uses it, LIGHT and HEAVY alike.
type dockerInvoker struct {
	client *client.Client
	image  string
}

func newDockerInvoker(image string) (*dockerInvoker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &dockerInvoker{client: cli, image: image}, nil
}

func (d *dockerInvoker) Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error) {
	cmd := append(append([]string{}, req.Command...),
		"--task-type", req.TaskType,
		"--prompt", req.Prompt,
		"--task-id", req.TaskID,
	)

	resp, err := d.client.ContainerCreate(ctx, &container.Config{
		Image: d.image,
		Cmd:   cmd,
	}, nil, nil, nil, "")
	if err != nil {
		return InvokeResult{}, errorf(ErrTransportError, "create worker container: %v", err)
	}
	defer d.client.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return InvokeResult{}, errorf(ErrTransportError, "start worker container: %v", err)
	}

	statusCh, errCh := d.client.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if ctx.Err() != nil {
			return InvokeResult{}, errorf(ErrTimeout, "worker container exceeded its deadline")
		}
		return InvokeResult{}, errorf(ErrTransportError, "wait for worker container: %v", err)
	case status := <-statusCh:
		logs, _ := d.client.ContainerLogs(context.Background(), resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
		var out string
		if logs != nil {
			defer logs.Close()
			var buf bytes.Buffer
			buf.ReadFrom(logs)
			out = buf.String()
		}
		result := InvokeResult{ExitCode: int(status.StatusCode), Stdout: out}
		if status.StatusCode != 0 {
			result.Transient = isTransientFailure(out)
		}
		return result, nil
	}
}
