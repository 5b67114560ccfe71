// Package audio wraps the ffmpeg and ffprobe tools used to probe uploads,
// cut recognition clips and convert downloads.
package audio

import (
	"bytes"
	"context"
	"os/exec"
)

// Output holds the captured streams of a finished command.
type Output struct {
	Stdout []byte
	Stderr []byte
}

// Runner starts external commands. Tests swap in fakes.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// ExecRunner runs commands with os/exec. The process is killed when ctx is done.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, err
}
