package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"reeler/internal/services"
)

var commandContext = exec.CommandContext

// ProgressUpdate is one parsed progress block.
type ProgressUpdate struct {
	// Percent is in [0,100], or -1 while the input duration is unknown.
	Percent  float64
	OutTime  time.Duration
	Duration time.Duration
	Speed    string
	Done     bool
}

// Option configures the Client.
type Option func(*Client)

// WithBinary overrides the ffmpeg executable.
func WithBinary(binary string) Option {
	return func(c *Client) {
		if strings.TrimSpace(binary) != "" {
			c.binary = strings.TrimSpace(binary)
		}
	}
}

// Client wraps the ffmpeg command line.
type Client struct {
	binary string
}

// New constructs a Client using defaults.
func New(opts ...Option) *Client {
	c := &Client{binary: "ffmpeg"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Binary returns the executable name or path in use.
func (c *Client) Binary() string {
	return c.binary
}

// Args returns the command line for converting input to output.
func (c *Client) Args(input, output string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-n",
		"-i", input,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-preset", "veryslow",
		"-level", "6.2",
		"-progress", "pipe:1",
		output,
	}
}

// Encode converts input into output. output must not exist.
func (c *Client) Encode(ctx context.Context, input, output string, progress func(ProgressUpdate)) error {
	if strings.TrimSpace(input) == "" {
		return errors.New("input path required")
	}
	if strings.TrimSpace(output) == "" {
		return errors.New("output path required")
	}

	cmd := commandContext(ctx, c.binary, c.Args(input, output)...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return services.Wrap(services.ErrExternalTool, "ffmpeg", "start", c.binary, err)
	}

	diag := &stderrCollector{}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		diag.consume(stderr)
	}()

	parseProgress(stdout, diag, progress)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrExternalTool, "ffmpeg", "encode", diag.tail(), err)
	}
	return nil
}

func parseProgress(r io.Reader, diag *stderrCollector, progress func(ProgressUpdate)) {
	scanner := bufio.NewScanner(r)
	var current ProgressUpdate
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			// Both keys carry microseconds in current ffmpeg releases.
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
				current.OutTime = time.Duration(us) * time.Microsecond
			}
		case "speed":
			current.Speed = strings.TrimSpace(value)
		case "progress":
			current.Done = value == "end"
			current.Duration = diag.duration()
			current.Percent = percentOf(current.OutTime, current.Duration, current.Done)
			if progress != nil {
				progress(current)
			}
		}
	}
	// Drain so ffmpeg never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}

func percentOf(out, total time.Duration, done bool) float64 {
	if done {
		return 100
	}
	if total <= 0 {
		return -1
	}
	pct := float64(out) / float64(total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

var durationPattern = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// parseDuration extracts the input duration from an ffmpeg stderr line.
func parseDuration(line string) (time.Duration, bool) {
	m := durationPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, false
	}
	total := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute + time.Duration(seconds*float64(time.Second))
	return total, total > 0
}

const stderrTailLines = 12

type stderrCollector struct {
	mu    sync.Mutex
	total time.Duration
	lines []string
}

func (s *stderrCollector) consume(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		s.mu.Lock()
		if s.total == 0 {
			if d, ok := parseDuration(line); ok {
				s.total = d
			}
		}
		s.lines = append(s.lines, line)
		if len(s.lines) > stderrTailLines {
			s.lines = s.lines[len(s.lines)-stderrTailLines:]
		}
		s.mu.Unlock()
	}
}

func (s *stderrCollector) duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *stderrCollector) tail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.TrimSpace(strings.Join(s.lines, "\n"))
}
