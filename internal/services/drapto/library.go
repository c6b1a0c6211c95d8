package drapto

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	draptolib "github.com/five82/drapto"
	"github.com/google/uuid"

	"reeler/internal/fileutil"
	"reeler/internal/services"
)

// runEncode is replaced in tests so the real encoder never runs.
var runEncode = func(ctx context.Context, input, outputDir string, rep draptolib.Reporter) error {
	encoder, err := draptolib.New(draptolib.WithResponsive())
	if err != nil {
		return err
	}
	_, err = encoder.EncodeWithReporter(ctx, input, outputDir, rep)
	return err
}

// Library encodes through the Drapto library.
type Library struct{}

// NewLibrary constructs a Library.
func NewLibrary() *Library {
	return &Library{}
}

// Extension is the container Drapto always produces.
func (l *Library) Extension() string {
	return ".mkv"
}

// Encode converts input into output, reporting progress through fn.
func (l *Library) Encode(ctx context.Context, input, output string, fn func(ProgressUpdate)) error {
	if strings.TrimSpace(input) == "" {
		return errors.New("input path required")
	}
	if strings.TrimSpace(output) == "" {
		return errors.New("output path required")
	}
	if fileutil.Exists(output) {
		return services.Wrap(services.ErrConflict, "drapto", "encode", "target exists: "+output, nil)
	}

	scratch := filepath.Join(filepath.Dir(output), ".reeler-drapto-"+uuid.NewString())
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return services.Wrap(services.ErrIO, "drapto", "scratch dir", scratch, err)
	}
	defer os.RemoveAll(scratch)

	if err := runEncode(ctx, input, scratch, newReporter(fn)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrExternalTool, "drapto", "encode", filepath.Base(input), err)
	}

	produced := filepath.Join(scratch, stem(input)+l.Extension())
	if !fileutil.Exists(produced) {
		return services.Wrap(services.ErrExternalTool, "drapto", "encode", fmt.Sprintf("no output at %s", produced), nil)
	}
	if err := fileutil.MoveFile(produced, output); err != nil {
		return services.Wrap(services.ErrIO, "drapto", "move output", output, err)
	}
	return nil
}

func stem(path string) string {
	base := filepath.Base(path)
	s := strings.TrimSuffix(base, filepath.Ext(base))
	if s == "" {
		return base
	}
	return s
}
