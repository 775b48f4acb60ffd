package scheduleview

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fsnotify/fsnotify"

	"github.com/jordan-tan/vizier/internal/tty"
	"github.com/jordan-tan/vizier/pkg/jobstore"
)

// Line is one interleaved output line from `jobs tail`/`jobs attach` (spec
// §4.5: "interleave stdout + stderr with [stdout]/[stderr] prefixes;
// preserve per-stream order").
type Line struct {
	Stream string // "stdout" | "stderr"
	Text   string
}

// StatusLookup resolves a job's current status, used by Tail to know when
// to stop following.
type StatusLookup func() (jobstore.Status, error)

// Tail streams appended bytes from stdoutPath/stderrPath to out, prefixing
// each line by stream. When follow is true it watches both files with
// fsnotify and keeps streaming until statusOf reports a terminal status
// (spec §4.5: "follow mode terminates when the job's status becomes
// terminal"); otherwise it emits what's on disk once and returns.
func Tail(ctx context.Context, stdoutPath, stderrPath string, follow bool, statusOf StatusLookup, emit func(Line)) error {
	stdoutTail, err := newFileTail(stdoutPath, "stdout")
	if err != nil {
		return err
	}
	defer stdoutTail.Close()
	stderrTail, err := newFileTail(stderrPath, "stderr")
	if err != nil {
		return err
	}
	defer stderrTail.Close()

	drain := func() error {
		for {
			more := false
			if l, ok, err := stdoutTail.readLine(); err != nil {
				return err
			} else if ok {
				emit(l)
				more = true
			}
			if l, ok, err := stderrTail.readLine(); err != nil {
				return err
			} else if ok {
				emit(l)
				more = true
			}
			if !more {
				return nil
			}
		}
	}

	if err := drain(); err != nil {
		return err
	}
	if !follow {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("scheduleview: creating fsnotify watcher: %w", err)
	}
	defer watcher.Close()
	for _, p := range []string{stdoutPath, stderrPath} {
		if err := watcher.Add(p); err != nil {
			return fmt.Errorf("scheduleview: watching %s: %w", p, err)
		}
	}

	var spin *spinner.Spinner
	if tty.IsStdoutTerminal() {
		spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		spin.Suffix = " waiting for job to start"
	}
	waitingForStart := true

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("scheduleview: fsnotify: %w", err)
		case _, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if spin != nil && spin.Active() {
				spin.Stop()
			}
			if err := drain(); err != nil {
				return err
			}
		case <-ticker.C:
			status, err := statusOf()
			if err != nil {
				return err
			}
			if status == jobstore.StatusQueued && waitingForStart && spin != nil && !spin.Active() {
				spin.Start()
			}
			if status != jobstore.StatusQueued {
				waitingForStart = false
				if spin != nil && spin.Active() {
					spin.Stop()
				}
			}
			if err := drain(); err != nil {
				return err
			}
			if status.Terminal() {
				return nil
			}
		}
	}
}

// fileTail reads whole lines appended to a file since it was opened,
// buffering a trailing partial line across reads.
type fileTail struct {
	f      *os.File
	reader *bufio.Reader
	stream string
}

func newFileTail(path, stream string) (*fileTail, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// The job hasn't produced this stream file yet; treat as empty
			// and let follow mode's fsnotify watch pick it up once it
			// exists would require a create event on the directory, which
			// is out of scope here — callers create stdout.log/stderr.log
			// up front at job start (spec §6.3), so this path is only hit
			// for not-yet-scheduled jobs.
			return nil, fmt.Errorf("scheduleview: opening %s: %w", path, err)
		}
		return nil, fmt.Errorf("scheduleview: opening %s: %w", path, err)
	}
	return &fileTail{f: f, reader: bufio.NewReader(f), stream: stream}, nil
}

func (t *fileTail) readLine() (Line, bool, error) {
	line, err := t.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			if line != "" {
				// Partial line with no trailing newline yet; rewind so the
				// next read sees it again once more bytes arrive.
				if _, serr := t.f.Seek(-int64(len(line)), io.SeekCurrent); serr == nil {
					t.reader.Reset(t.f)
				}
			}
			return Line{}, false, nil
		}
		return Line{}, false, err
	}
	return Line{Stream: t.stream, Text: trimNewline(line)}, true, nil
}

func trimNewline(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
	}
	if n := len(s); n > 0 && s[n-1] == '\r' {
		s = s[:n-1]
	}
	return s
}

func (t *fileTail) Close() error {
	if t == nil || t.f == nil {
		return nil
	}
	return t.f.Close()
}

// FormatLine renders a Line with its stream prefix (spec §4.5).
func FormatLine(l Line) string {
	return fmt.Sprintf("[%s] %s", l.Stream, l.Text)
}
