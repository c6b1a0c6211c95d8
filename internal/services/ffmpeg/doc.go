// Package ffmpeg runs the fixed H.264/AAC conversion profile through the
// ffmpeg binary and reports progress parsed from "-progress pipe:1" output.
//
// The percentage is out_time_us over the input duration ffmpeg prints on
// stderr; until the duration is known progress is reported as unknown (-1).
// Tests replace commandContext with a helper process.
package ffmpeg
