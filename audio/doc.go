// Package audio prepares meeting recordings for AI processing. It wraps
// ffmpeg to downmix recordings to mono speech-optimized files and ffprobe to
// measure their duration, reporting transcode progress as monotonic
// percentages.
package audio
