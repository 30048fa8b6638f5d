// Package gateway sends typed requests to the external anonymizer and
// returns its raw responses.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/temirov/anonwiz/internal/fsops"
	"github.com/temirov/anonwiz/internal/task"
)

var (
	// ErrDuplicateTask means a task id was reused while its call was in flight.
	ErrDuplicateTask = errors.New("duplicate task id")
	// ErrServiceFailed wraps a non-zero exit of the anonymizer process.
	ErrServiceFailed = errors.New("anonymizer service failed")
)

// Gateway is the remote-call surface used by the step hooks.
type Gateway interface {
	Call(ctx context.Context, request Request) ([]byte, error)
	HashFile(ctx context.Context, path string) (string, error)
	SelectExportPath(ctx context.Context, defaultPath string) (string, bool, error)
}

// CommandRunner runs the anonymizer process with the serialized request on
// stdin and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)
}

type commandExecutor struct{}

// Options configures a ProcessGateway.
type Options struct {
	Command  string
	Args     []string
	Runner   CommandRunner
	FS       fsops.FS
	Selector PathSelector
	Metrics  *Metrics
	Logger   *zap.Logger
}

// ProcessGateway executes one anonymizer process per call.
type ProcessGateway struct {
	command  string
	args     []string
	runner   CommandRunner
	ops      fsops.Ops
	selector PathSelector
	metrics  *Metrics
	logger   *zap.Logger

	mu       sync.Mutex
	inFlight map[string]RequestType
}

// NewProcessGateway fills unset options with the OS runner, the OS
// filesystem, the default path selector and a no-op logger.
func NewProcessGateway(options Options) *ProcessGateway {
	runner := options.Runner
	if runner == nil {
		runner = commandExecutor{}
	}
	filesystem := options.FS
	if filesystem == nil {
		filesystem = fsops.NewOS()
	}
	selector := options.Selector
	if selector == nil {
		selector = DefaultPathSelector{}
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessGateway{
		command:  options.Command,
		args:     append([]string(nil), options.Args...),
		runner:   runner,
		ops:      fsops.NewOps(filesystem),
		selector: selector,
		metrics:  options.Metrics,
		logger:   logger,
		inFlight: make(map[string]RequestType),
	}
}

// Call runs request under a freshly generated task id.
func (g *ProcessGateway) Call(ctx context.Context, request Request) ([]byte, error) {
	return g.CallTask(ctx, uuid.NewString(), request)
}

// CallTask runs request under taskID. Cancelling ctx kills the process and
// yields task.ErrAborted.
func (g *ProcessGateway) CallTask(ctx context.Context, taskID string, request Request) ([]byte, error) {
	requestType := request.RequestType()
	if err := g.register(taskID, requestType); err != nil {
		g.metrics.rejected(requestType)
		g.logger.DPanic("task id reused while in flight",
			zap.String("task_id", taskID),
			zap.String("type", string(requestType)))
		return nil, err
	}
	defer g.release(taskID)

	payload, err := json.Marshal(request)
	if err != nil {
		g.metrics.rejected(requestType)
		return nil, fmt.Errorf("encode %s request: %w", requestType, err)
	}

	logger := g.logger.With(zap.String("task_id", taskID), zap.String("type", string(requestType)))
	logger.Debug("calling anonymizer", zap.Int("request_bytes", len(payload)))
	g.metrics.started()
	startedAt := time.Now()
	output, runErr := g.runner.Run(ctx, payload, g.command, g.args...)
	elapsed := time.Since(startedAt)

	switch {
	case ctx.Err() != nil:
		g.metrics.finished(requestType, outcomeAborted, elapsed)
		logger.Debug("anonymizer call aborted", zap.Duration("elapsed", elapsed))
		return nil, fmt.Errorf("%w: %w", task.ErrAborted, ctx.Err())
	case runErr != nil:
		g.metrics.finished(requestType, outcomeFailed, elapsed)
		logger.Warn("anonymizer call failed", zap.Duration("elapsed", elapsed), zap.Error(runErr))
		return nil, runErr
	}
	g.metrics.finished(requestType, outcomeCompleted, elapsed)
	logger.Debug("anonymizer call completed",
		zap.Duration("elapsed", elapsed),
		zap.Int("response_bytes", len(output)))
	return output, nil
}

// InFlight reports how many calls are currently running.
func (g *ProcessGateway) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inFlight)
}

func (g *ProcessGateway) HashFile(ctx context.Context, path string) (string, error) {
	digest, err := g.ops.HashFile(ctx, path)
	if err != nil && ctx.Err() != nil {
		return "", fmt.Errorf("%w: %w", task.ErrAborted, ctx.Err())
	}
	return digest, err
}

// SelectExportPath asks the selector for an output path. ok is false when the
// user cancelled.
func (g *ProcessGateway) SelectExportPath(ctx context.Context, defaultPath string) (string, bool, error) {
	path, ok, err := g.selector.SelectPath(ctx, defaultPath)
	if err != nil && ctx.Err() != nil {
		return "", false, fmt.Errorf("%w: %w", task.ErrAborted, ctx.Err())
	}
	if ok && g.ops.FileExists(path) {
		g.logger.Info("export will overwrite an existing file", zap.String("path", path))
	}
	return path, ok, err
}

func (g *ProcessGateway) register(taskID string, requestType RequestType) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.inFlight[taskID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, taskID)
	}
	g.inFlight[taskID] = requestType
	return nil
}

func (g *ProcessGateway) release(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, taskID)
}

func (commandExecutor) Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: run %s %s: %w: %s", ErrServiceFailed, name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
