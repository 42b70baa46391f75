// internal/logpipe/tail.go
package logpipe

import (
	"context"
	"io"
	"sync"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"
)

// DriverTag marks lines copied from a browser or driver log file.
const DriverTag = "[driver]"

// TailOptions tune TailDriverLog.
type TailOptions struct {
	// FromStart reads the file from the beginning instead of only new lines.
	FromStart bool
	// Poll uses stat polling instead of inotify.
	Poll bool
}

// TailDriverLog follows path and copies every line into logger at debug level
// tagged with DriverTag, until ctx is done or the returned stop func is called.
// The file does not have to exist yet.
func TailDriverLog(ctx context.Context, path string, logger *zap.Logger, opts TailOptions) (stop func(), err error) {
	whence := io.SeekEnd
	if opts.FromStart {
		whence = io.SeekStart
	}
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Poll:      opts.Poll,
		Location:  &tail.SeekInfo{Offset: 0, Whence: whence},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, err
	}

	log := logger.Named("driver")
	done := make(chan struct{})
	go func() {
		defer close(done)
		// Lines is closed by the tailer once it has been stopped.
		for line := range t.Lines {
			if line.Err != nil {
				log.Debug("Driver log tail error.", zap.Error(line.Err))
				continue
			}
			log.Debug(DriverTag + " " + Normalize(line.Text))
		}
	}()

	var once sync.Once
	stop = func() {
		once.Do(func() {
			_ = t.Stop()
			<-done
			t.Cleanup()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()
	return stop, nil
}
