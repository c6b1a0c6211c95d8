package converter

import (
	"context"
	"fmt"
	"strings"

	"reeler/internal/config"
	"reeler/internal/services"
	"reeler/internal/services/drapto"
	"reeler/internal/services/ffmpeg"
)

// Progress is an encoder-neutral progress sample. Percent is -1 when unknown.
type Progress struct {
	Percent float64
	Stage   string
	Detail  string
}

// Encoder converts one file into the fixed output profile.
type Encoder interface {
	Name() string
	Extension() string
	Encode(ctx context.Context, input, output string, progress func(Progress)) error
}

// NewEncoder builds the backend selected by converter.encoder.
func NewEncoder(cfg *config.Config) (Encoder, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Converter.Encoder))
	switch name {
	case "", config.EncoderFFmpeg:
		return &ffmpegEncoder{client: ffmpeg.New(ffmpeg.WithBinary(cfg.FFmpegBinary()))}, nil
	case config.EncoderDrapto:
		return &draptoEncoder{lib: drapto.NewLibrary()}, nil
	default:
		return nil, services.Wrap(services.ErrValidation, "converter", "encoder", fmt.Sprintf("unknown encoder %q", name), nil)
	}
}

type ffmpegEncoder struct {
	client *ffmpeg.Client
}

func (e *ffmpegEncoder) Name() string      { return config.EncoderFFmpeg }
func (e *ffmpegEncoder) Extension() string { return ".mp4" }

func (e *ffmpegEncoder) Encode(ctx context.Context, input, output string, progress func(Progress)) error {
	return e.client.Encode(ctx, input, output, func(u ffmpeg.ProgressUpdate) {
		if progress == nil {
			return
		}
		detail := ""
		if u.Speed != "" {
			detail = "speed " + u.Speed
		}
		progress(Progress{Percent: u.Percent, Stage: "encoding", Detail: detail})
	})
}

type draptoEncoder struct {
	lib *drapto.Library
}

func (e *draptoEncoder) Name() string      { return config.EncoderDrapto }
func (e *draptoEncoder) Extension() string { return e.lib.Extension() }

func (e *draptoEncoder) Encode(ctx context.Context, input, output string, progress func(Progress)) error {
	return e.lib.Encode(ctx, input, output, func(u drapto.ProgressUpdate) {
		if progress == nil {
			return
		}
		switch u.Type {
		case drapto.EventWarning, drapto.EventError, drapto.EventInfo:
			progress(Progress{Percent: -1, Stage: u.Stage, Detail: u.Message})
		default:
			detail := u.Message
			if u.FPS > 0 {
				detail = fmt.Sprintf("%.1f fps", u.FPS)
			}
			progress(Progress{Percent: u.Percent, Stage: u.Stage, Detail: detail})
		}
	})
}
