// Package supervisor runs and terminates the single long-lived dev-server
// process per application session.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"

	"github.com/pylaunch/pylaunch/internal/childenv"
	"github.com/pylaunch/pylaunch/internal/compose"
	"github.com/pylaunch/pylaunch/internal/events"
	"github.com/pylaunch/pylaunch/internal/logger"
	"github.com/pylaunch/pylaunch/internal/metrics"
	"github.com/pylaunch/pylaunch/internal/pathutil"
	"github.com/pylaunch/pylaunch/internal/pyenv"
)

// Mode selects how the server is run.
type Mode string

const (
	ModeNative        Mode = "native"
	ModeContainerized Mode = "containerized"
)

// State is the supervisor state machine. A crash is observed as a
// transition back to StateStopped, not a separate state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

var (
	// ErrAlreadyRunning rejects a start while a supervised process is live.
	ErrAlreadyRunning = errors.New("server already running")
	// ErrServerNotInstalled means the entry point is missing from the
	// environment; nothing is spawned.
	ErrServerNotInstalled = errors.New("server not installed")
	// ErrTerminateFailed means the process survived the full kill
	// escalation.
	ErrTerminateFailed = errors.New("process termination failed")
	// ErrStartAborted means Stop won the race against an in-flight start
	// before anything was spawned.
	ErrStartAborted = errors.New("start aborted by stop")
)

const (
	composeDownTimeout = 20 * time.Second
	termWait           = 5 * time.Second
	killWait           = 3 * time.Second
)

// killer terminates the supervised process tree; one implementation per OS
// family, selected once at construction.
type killer interface {
	Terminate(pid, port int) error
	KillHard(pid, port int) error
}

// Status is a snapshot of the supervised process.
type Status struct {
	State   State  `json:"state"`
	Mode    Mode   `json:"mode,omitempty"`
	Port    int    `json:"port,omitempty"`
	URL     string `json:"url,omitempty"`
	LogPath string `json:"log_path,omitempty"`
	PID     int    `json:"pid,omitempty"`
}

// Supervisor owns the single supervised server process. Start rejects
// overlap; Stop is idempotent and reentrant-safe via an in-flight guard.
type Supervisor struct {
	bus         *events.Bus
	logger      *slog.Logger
	logsRoot    string
	composeRoot string
	rc          logger.RotationConfig
	defaultPort int
	kill        killer

	// Session hooks, set by the owning application context before use.
	OnSessionStart func(projectID string, mode Mode, port int, logPath string, startedAt time.Time)
	OnSessionEnd   func(stoppedAt time.Time, exitErr error)

	stopGuard atomic.Bool

	mu          sync.Mutex
	state       State
	mode        Mode
	cmd         *exec.Cmd
	port        int
	url         string
	logPath     string
	composeFile string
	portBusy    bool
	waitDone    chan struct{}
	sink        io.WriteCloser
}

func New(bus *events.Bus, logsRoot, composeRoot string, defaultPort int, rc logger.RotationConfig, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		bus:         bus,
		logger:      log,
		logsRoot:    logsRoot,
		composeRoot: composeRoot,
		rc:          rc,
		defaultPort: defaultPort,
		kill:        newKiller(),
		state:       StateStopped,
	}
}

func (s *Supervisor) setStateLocked(to State) {
	if s.state == to {
		return
	}
	metrics.IncTransition(string(s.state), string(to))
	s.state = to
}

// Snapshot returns the current status.
func (s *Supervisor) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{State: s.state, Mode: s.mode, Port: s.port, URL: s.url, LogPath: s.logPath}
	if s.cmd != nil && s.cmd.Process != nil {
		st.PID = s.cmd.Process.Pid
	}
	return st
}

// StartNative spawns the dev server from the project's environment. The
// entry point must exist; the child gets the environment's bin dir
// prepended to PATH, unbuffered output forced, and any project .env
// applied.
func (s *Supervisor) StartNative(ctx context.Context, h pyenv.Handle, projectPath string) error {
	if err := s.begin(ModeNative); err != nil {
		return err
	}
	if info, err := os.Stat(h.Server); err != nil || info.IsDir() {
		s.bus.Log(fmt.Sprintf("server entry point missing at %s; install dependencies first", h.Server))
		s.abortStart()
		return fmt.Errorf("%w: %s", ErrServerNotInstalled, h.Server)
	}

	port, err := NegotiatePort(s.defaultPort)
	if err != nil {
		s.bus.Log("no usable port: " + err.Error())
		s.abortStart()
		return err
	}

	env := childenv.Base()
	if vars, err := godotenv.Read(filepath.Join(projectPath, ".env")); err == nil {
		for k, v := range vars {
			env = childenv.Set(env, k, v)
		}
	}
	env = childenv.PrependPath(env, h.BinDir())
	env = childenv.Set(env, "PYTHONUNBUFFERED", "1")

	cmd := buildServerCmd(h.Server, "devserver", fmt.Sprintf("%d", port))
	cmd.Dir = projectPath
	cmd.Env = env
	return s.spawn(ctx, cmd, projectPath, port, "")
}

// StartContainerized renders a fresh orchestration manifest and brings the
// stack up through the compose CLI, with the same dual-sink streaming and
// readiness-by-log-pattern approach as native mode.
func (s *Supervisor) StartContainerized(ctx context.Context, projectPath, pythonTag string) error {
	if err := s.begin(ModeContainerized); err != nil {
		return err
	}
	port, err := NegotiatePort(s.defaultPort)
	if err != nil {
		s.bus.Log("no usable port: " + err.Error())
		s.abortStart()
		return err
	}
	projectID := pathutil.ProjectID(projectPath)
	manifest, err := compose.Render(filepath.Join(s.composeRoot, projectID), projectPath, port, pythonTag)
	if err != nil {
		s.bus.Log("manifest generation failed: " + err.Error())
		s.abortStart()
		return err
	}
	cmd := exec.CommandContext(ctx, "docker", "compose", "-f", manifest, "up") // #nosec G204 -- manifest path is app-generated
	cmd.Dir = projectPath
	return s.spawn(ctx, cmd, projectPath, port, manifest)
}

// begin claims the state machine for a new start.
func (s *Supervisor) begin(mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStopped {
		return fmt.Errorf("%w: state %s", ErrAlreadyRunning, s.state)
	}
	s.setStateLocked(StateStarting)
	s.mode = mode
	s.portBusy = false
	return nil
}

func (s *Supervisor) abortStart() {
	s.mu.Lock()
	s.setStateLocked(StateStopped)
	s.mode = ""
	s.mu.Unlock()
	s.bus.Status(events.StatusStopped)
}

// spawn wires the dual sink, starts the child, and launches the monitor
// goroutines.
func (s *Supervisor) spawn(_ context.Context, cmd *exec.Cmd, projectPath string, port int, composeFile string) error {
	projectID := pathutil.ProjectID(projectPath)
	sink, logPath, err := logger.SessionSink(filepath.Join(s.logsRoot, projectID), "server", s.rc)
	if err != nil {
		s.bus.Log("log sink unavailable: " + err.Error())
		s.abortStart()
		return err
	}

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	configureSysProcAttr(cmd)

	// The state re-check and the actual start happen under one lock so a
	// concurrent Stop can never observe Starting after we committed to
	// spawning. A Stop that won the race already folded the state back to
	// Stopped; nothing gets spawned.
	s.mu.Lock()
	if s.state != StateStarting {
		s.mu.Unlock()
		_ = sink.Close()
		_ = pw.Close()
		_ = pr.Close()
		return ErrStartAborted
	}
	if err := cmd.Start(); err != nil {
		s.setStateLocked(StateStopped)
		s.mode = ""
		s.mu.Unlock()
		_ = sink.Close()
		_ = pw.Close()
		_ = pr.Close()
		s.bus.Log("spawn failed: " + err.Error())
		s.bus.Status(events.StatusStopped)
		return fmt.Errorf("spawn server: %w", err)
	}
	s.cmd = cmd
	s.port = port
	s.url = ""
	s.logPath = logPath
	s.composeFile = composeFile
	s.sink = sink
	s.waitDone = make(chan struct{})
	mode := s.mode
	s.mu.Unlock()

	metrics.IncServerStart()
	s.logger.Info("server starting", "mode", mode, "pid", cmd.Process.Pid, "port", port, "log", logPath)
	s.bus.Log(fmt.Sprintf("starting server (pid %d) on port %d", cmd.Process.Pid, port))
	if s.OnSessionStart != nil {
		s.OnSessionStart(projectID, mode, port, logPath, time.Now())
	}

	scanDone := make(chan struct{})
	go s.scanOutput(pr, sink, port, scanDone)
	go s.waitExit(cmd, pw, scanDone)
	return nil
}

// scanOutput drains the interleaved child output line by line into the
// dual sink (session log file + event stream) while watching for the
// readiness and port-busy markers.
func (s *Supervisor) scanOutput(pr *io.PipeReader, sink io.Writer, port int, done chan<- struct{}) {
	defer close(done)
	ready := readyPattern(port)
	sc := bufio.NewScanner(pr)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		_, _ = fmt.Fprintln(sink, line)
		s.bus.Log(line)
		if ready.MatchString(line) {
			s.markRunning(port)
		}
		if looksPortBusy(line) {
			s.mu.Lock()
			s.portBusy = true
			s.mu.Unlock()
		}
	}
	_ = pr.Close()
}

func (s *Supervisor) markRunning(port int) {
	s.mu.Lock()
	if s.state != StateStarting {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(StateRunning)
	s.url = fmt.Sprintf("http://localhost:%d", port)
	url := s.url
	s.mu.Unlock()
	s.logger.Info("server ready", "url", url)
	s.bus.Status(events.StatusRunning)
	s.bus.ServerURL(url)
}

// waitExit reaps the child, lets the scanner drain, and folds the exit back
// into StateStopped. A port-busy exit is reclassified as a non-error
// "likely already running" observation: it is the expected outcome of a
// duplicate-start race. Note this does not verify that whatever answers on
// the port is actually a prior instance of this server.
func (s *Supervisor) waitExit(cmd *exec.Cmd, pw *io.PipeWriter, scanDone <-chan struct{}) {
	err := cmd.Wait()
	_ = pw.Close()
	<-scanDone

	s.mu.Lock()
	portBusy := s.portBusy
	wd := s.waitDone
	sink := s.sink
	s.cmd = nil
	s.sink = nil
	s.waitDone = nil
	s.port = 0
	s.url = ""
	s.logPath = ""
	s.composeFile = ""
	s.mode = ""
	s.setStateLocked(StateStopped)
	s.mu.Unlock()

	if sink != nil {
		_ = sink.Close()
	}
	if err != nil && portBusy {
		s.bus.Log("port already bound; another instance is likely already serving")
		s.bus.Status(events.StatusAlreadyRunning)
		err = nil
	} else {
		if err != nil {
			s.bus.Log("server exited: " + err.Error())
		} else {
			s.bus.Log("server stopped")
		}
		s.bus.Status(events.StatusStopped)
	}
	metrics.IncServerStop()
	if s.OnSessionEnd != nil {
		s.OnSessionEnd(time.Now(), err)
	}
	if wd != nil {
		close(wd)
	}
}

// Stop terminates the supervised process. Safe to call when nothing is
// running, and safe to call concurrently: a stop while one is already in
// flight is a no-op, not an error.
func (s *Supervisor) Stop(ctx context.Context) error {
	if !s.stopGuard.CompareAndSwap(false, true) {
		return nil
	}
	defer s.stopGuard.Store(false)

	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	if s.state == StateStarting && s.cmd == nil {
		// Nothing spawned yet: abort the start instead of waiting for a
		// child that does not exist. The starter finds the state folded
		// back and gives up before calling cmd.Start.
		s.setStateLocked(StateStopped)
		s.mode = ""
		s.mu.Unlock()
		s.bus.Status(events.StatusStopped)
		return nil
	}
	s.setStateLocked(StateStopping)
	cmd := s.cmd
	mode := s.mode
	port := s.port
	composeFile := s.composeFile
	wd := s.waitDone
	s.mu.Unlock()

	if mode == ModeContainerized && composeFile != "" {
		dctx, cancel := context.WithTimeout(ctx, composeDownTimeout)
		down := exec.CommandContext(dctx, "docker", "compose", "-f", composeFile, "down") // #nosec G204 -- app-generated path
		if err := down.Run(); err != nil {
			s.logger.Warn("compose teardown failed, escalating to kill", "error", err)
		}
		cancel()
	}

	var pid int
	if cmd != nil && cmd.Process != nil {
		pid = cmd.Process.Pid
	}
	if pid > 0 {
		if err := s.kill.Terminate(pid, port); err != nil {
			s.logger.Warn("terminate signal failed", "pid", pid, "error", err)
		}
	}
	if wd == nil {
		return nil
	}
	select {
	case <-wd:
		return nil
	case <-time.After(termWait):
	}
	if pid > 0 {
		_ = s.kill.KillHard(pid, port)
	}
	select {
	case <-wd:
		return nil
	case <-time.After(killWait):
		return fmt.Errorf("%w: pid %d", ErrTerminateFailed, pid)
	}
}

// Shutdown is the host-application exit hook: it runs the same stop
// routine synchronously so no orphaned server outlives the window.
func (s *Supervisor) Shutdown() {
	if err := s.Stop(context.Background()); err != nil {
		s.logger.Error("shutdown stop failed", "error", err)
	}
}
