package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ExecEngine shells out to the tesseract command line program.
type ExecEngine struct {
	Binary string
}

func NewExecEngine(binary string) *ExecEngine {
	if binary == "" {
		binary = "tesseract"
	}
	return &ExecEngine{Binary: binary}
}

func (e *ExecEngine) Name() string { return "tesseract-exec" }

// Args returns the command line for in, without the binary.
func (e *ExecEngine) Args(in Input) []string {
	src := in.ImagePath
	if len(in.Image) > 0 {
		src = "stdin"
	}
	args := []string{src, "stdout"}
	if in.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(in.OEM))
	}
	if in.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(in.PSM))
	}
	if len(in.Languages) > 0 {
		args = append(args, "-l", strings.Join(in.Languages, "+"))
	}
	if in.DPI > 0 {
		args = append(args, "--dpi", strconv.Itoa(in.DPI))
	}
	return args
}

func (e *ExecEngine) Recognize(ctx context.Context, in Input) (Result, error) {
	if in.ImagePath == "" && len(in.Image) == 0 {
		return Result{}, errors.New("ocr: input has no image")
	}
	start := time.Now()
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.Binary, e.Args(in)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(in.Image) > 0 {
		cmd.Stdin = bytes.NewReader(in.Image)
	}
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, fmt.Errorf("ocr: %s %s: %w: %s", filepath.Base(e.Binary), in.ID, err, strings.TrimSpace(stderr.String()))
	}
	return Result{
		InputID:  in.ID,
		Text:     strings.TrimSpace(stdout.String()),
		Engine:   e.Name(),
		Duration: time.Since(start),
	}, nil
}
