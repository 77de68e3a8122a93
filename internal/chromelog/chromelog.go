// Package chromelog relays Chromium's debug log into the application logger.
// The browser writes it to chrome_debug.log in its user data directory when
// started with --enable-logging.
package chromelog

import (
	"context"
	"fmt"
	"regexp"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"
)

// [pid:tid:MMDD/HHMMSS.uuuuuu:LEVEL:file.cc(123)] message
var linePattern = regexp.MustCompile(`^\[(\d+):(\d+):[^:]*:([A-Z0-9]+):([^\]]+)\]\s?(.*)$`)

// Line is one parsed log line. Unparseable lines keep only Message.
type Line struct {
	PID     string
	Level   string
	Source  string
	Message string
}

// Parse splits a Chromium log line into its prefix fields.
func Parse(text string) Line {
	m := linePattern.FindStringSubmatch(text)
	if m == nil {
		return Line{Message: text}
	}
	return Line{PID: m[1], Level: m[3], Source: m[4], Message: m[5]}
}

// Follow tails path from its current end and logs every new line at debug
// level until ctx is done. The file does not need to exist yet.
func Follow(ctx context.Context, path string, logger *zap.Logger) error {
	logger = logger.Named("chrome")

	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Poll:      true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: 2},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail %s: %w", path, err)
	}
	defer func() {
		_ = t.Stop()
		t.Cleanup()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				logger.Warn("Error reading browser log.", zap.Error(line.Err))
				continue
			}
			l := Parse(line.Text)
			if l.Level == "" {
				logger.Debug(l.Message)
				continue
			}
			logger.Debug(l.Message,
				zap.String("chrome_level", l.Level),
				zap.String("source", l.Source),
				zap.String("pid", l.PID))
		}
	}
}
