package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/sirupsen/logrus"
)

// ResultKind discriminates the outcomes the worker branches on. The
// "already has text" condition is not an error for our purposes: the input
// is delivered as-is and still cached.
type ResultKind int

const (
	ResultOK ResultKind = iota
	ResultAlreadyHasText
	ResultError
)

// Result is the discriminated outcome of one engine invocation.
type Result struct {
	Kind ResultKind
	Err  error
}

// Engine runs OCR on a single PDF. Implementations must be safe for
// concurrent use; the pipeline invokes one call per worker.
type Engine interface {
	Run(ctx context.Context, inputPath, outputPath string) Result
}

// ocrmypdf exit code for "page already has text" (ExitCode.already_done).
const exitPriorOCR = 6

// ExecEngine shells out to ocrmypdf. Policy flags are fixed: deskew on,
// skip-text on, force-ocr off, engine-level optimisation off (sizing is
// handled by the Optimizer), one engine job per file since parallelism
// lives at the file level.
type ExecEngine struct {
	Command string // default "ocrmypdf"
	Log     *logrus.Logger
}

// Run invokes the engine on inputPath, producing outputPath. Cancellation
// and deadlines on ctx kill the subprocess.
func (e *ExecEngine) Run(ctx context.Context, inputPath, outputPath string) Result {
	command := e.Command
	if command == "" {
		command = "ocrmypdf"
	}

	args := []string{
		"--deskew",
		"--skip-text",
		"--optimize", "0",
		"--jobs", "1",
		"--skip-big", "100",
		"--max-image-mpixels", "0",
		"--pdfa-image-compression", "jpeg",
		"--jpeg-quality", "70",
		"--png-quality", "70",
		"--fast-web-view", "0",
		inputPath,
		outputPath,
	}

	cmd := exec.CommandContext(ctx, command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return Result{Kind: ResultOK}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{Kind: ResultError, Err: ctxErr}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == exitPriorOCR {
		return Result{Kind: ResultAlreadyHasText}
	}

	detail := tail(stderr.String(), 400)
	if detail == "" {
		detail = err.Error()
	}
	return Result{Kind: ResultError, Err: fmt.Errorf("ocr engine: %s", detail)}
}
