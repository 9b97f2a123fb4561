package agent

import (
	"context"
	"strings"
	"time"
)

// DefaultStreamDelay is the pause between streamed lines
const DefaultStreamDelay = 20 * time.Millisecond

// SplitLines cuts text into chunks that each end with a newline, except
// possibly the last one
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	var chunks []string
	for len(text) > 0 {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			chunks = append(chunks, text)
			break
		}
		chunks = append(chunks, text[:i+1])
		text = text[i+1:]
	}
	return chunks
}

// StreamLines emits text one line at a time with delay between lines. It
// stops early when ctx is done or emit fails.
func StreamLines(ctx context.Context, text string, delay time.Duration, emit func(chunk string) error) error {
	chunks := SplitLines(text)
	for i, chunk := range chunks {
		if err := emit(chunk); err != nil {
			return err
		}
		if i == len(chunks)-1 || delay <= 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}
