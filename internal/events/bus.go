// Package events carries the push half of the UI contract: log lines,
// status transitions, URLs, and install/download progress.
package events

import (
	"strings"
	"sync"
)

// Event types understood by the UI collaborator.
const (
	TypeLog              = "log"
	TypeStatus           = "status"
	TypeServerURL        = "server-url"
	TypeInstallStatus    = "install-status"
	TypeDownloadProgress = "download-progress"
	TypeDownloadStatus   = "download-status"
)

// Server statuses published under TypeStatus.
const (
	StatusStopped        = "stopped"
	StatusRunning        = "running"
	StatusAlreadyRunning = "already-running"
)

// Install statuses published under TypeInstallStatus.
const (
	InstallInstalling = "installing"
	InstallSuccess    = "success"
	InstallError      = "error"
)

// Download statuses published under TypeDownloadStatus.
const (
	DownloadDownloading = "downloading"
	DownloadComplete    = "complete"
	DownloadError       = "error"
)

// Event is one push message. Payload marshals as-is over the wire.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ProgressPayload carries fractional download progress for one version.
type ProgressPayload struct {
	Version string  `json:"version"`
	Percent float64 `json:"percent"`
}

// DownloadStatusPayload pairs a version with its download phase.
type DownloadStatusPayload struct {
	Version string `json:"version"`
	Status  string `json:"status"`
}

// Bus fans events out to subscribers. Slow subscribers drop events rather
// than block publishers; the log file is the lossless record, the bus is a
// live view.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a receive channel and a cancel function. Cancel is
// idempotent and closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan Event, 256)
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers evt to all current subscribers, dropping on full buffers.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (b *Bus) Log(line string)    { b.Publish(Event{Type: TypeLog, Payload: line}) }
func (b *Bus) Status(s string)    { b.Publish(Event{Type: TypeStatus, Payload: s}) }
func (b *Bus) ServerURL(u string) { b.Publish(Event{Type: TypeServerURL, Payload: u}) }

func (b *Bus) InstallStatus(s string) {
	b.Publish(Event{Type: TypeInstallStatus, Payload: s})
}

func (b *Bus) DownloadProgress(version string, percent float64) {
	b.Publish(Event{Type: TypeDownloadProgress, Payload: ProgressPayload{Version: version, Percent: percent}})
}

func (b *Bus) DownloadStatus(version, status string) {
	b.Publish(Event{Type: TypeDownloadStatus, Payload: DownloadStatusPayload{Version: version, Status: status}})
}

// LineWriter adapts the bus to io.Writer, emitting one TypeLog event per
// line. Partial trailing lines are buffered until the next write or Close.
type LineWriter struct {
	bus *Bus
	mu  sync.Mutex
	buf strings.Builder
}

func (b *Bus) LineWriter() *LineWriter { return &LineWriter{bus: b} }

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		s := w.buf.String()
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			break
		}
		w.bus.Log(strings.TrimRight(s[:i], "\r"))
		w.buf.Reset()
		w.buf.WriteString(s[i+1:])
	}
	return len(p), nil
}

// Close flushes any buffered partial line.
func (w *LineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.bus.Log(w.buf.String())
		w.buf.Reset()
	}
	return nil
}
