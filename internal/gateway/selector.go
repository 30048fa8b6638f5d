package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// PathSelector asks where an export should be written. A false second result
// means the user cancelled.
type PathSelector interface {
	SelectPath(ctx context.Context, defaultPath string) (string, bool, error)
}

// DefaultPathSelector accepts the proposed path without asking.
type DefaultPathSelector struct{}

func (DefaultPathSelector) SelectPath(_ context.Context, defaultPath string) (string, bool, error) {
	return defaultPath, true, nil
}

// FixedPathSelector always answers with Path.
type FixedPathSelector struct{ Path string }

func (selector FixedPathSelector) SelectPath(_ context.Context, _ string) (string, bool, error) {
	path := strings.TrimSpace(selector.Path)
	return path, path != "", nil
}

// PromptPathSelector prompts on Output and reads one line from Input. An
// empty line accepts the default; end of input cancels.
//
// On cancellation an Input with SetReadDeadline, such as a terminal
// *os.File, is expired so the pending read returns. With any other Input the
// read stays blocked until Input yields a line or ends.
type PromptPathSelector struct {
	Input  io.Reader
	Output io.Writer
}

type readDeadliner interface {
	SetReadDeadline(deadline time.Time) error
}

func (selector PromptPathSelector) SelectPath(ctx context.Context, defaultPath string) (string, bool, error) {
	if _, err := fmt.Fprintf(selector.Output, "Export to [%s]: ", defaultPath); err != nil {
		return "", false, err
	}
	type answer struct {
		line string
		err  error
	}
	answers := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(selector.Input).ReadString('\n')
		answers <- answer{line: line, err: err}
	}()
	select {
	case <-ctx.Done():
		if input, ok := selector.Input.(readDeadliner); ok {
			_ = input.SetReadDeadline(time.Now())
		}
		return "", false, ctx.Err()
	case received := <-answers:
		line := strings.TrimSpace(received.line)
		if received.err != nil && !errors.Is(received.err, io.EOF) {
			return "", false, fmt.Errorf("read export path: %w", received.err)
		}
		if errors.Is(received.err, io.EOF) && line == "" {
			return "", false, nil
		}
		if line == "" {
			return defaultPath, true, nil
		}
		return line, true, nil
	}
}
