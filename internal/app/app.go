package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"hindsight/client/internal/config"
	"hindsight/client/internal/controller"
	"hindsight/client/internal/net/intake"
	"hindsight/client/internal/net/ws"
	"hindsight/client/internal/observability"
	"hindsight/client/internal/present"
	"hindsight/client/internal/session"
	"hindsight/client/internal/telemetry"
	"hindsight/client/logging"
	loggingSinks "hindsight/client/logging/sinks"
)

type Config struct {
	Settings config.Config
	Logger   telemetry.Logger
	// In supplies intents, one per line. Defaults to stdin.
	In io.Reader
	// Out receives the rendered projection. Defaults to stdout.
	Out io.Writer
	// LogOut receives console log events. Defaults to stderr.
	LogOut io.Writer
	// Network overrides the websocket transport.
	Network controller.Network
	Metrics *telemetry.Counters
}

// Run connects to the configured game and serves intents until the input
// ends, the user quits, ctx is cancelled, or the session fails.
func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}
	fallbackLogger := log.Default()
	if provider, ok := telemetryLogger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallbackLogger = candidate
		}
	}
	in := cfg.In
	if in == nil {
		in = os.Stdin
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	logOut := cfg.LogOut
	if logOut == nil {
		logOut = os.Stderr
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewCounters()
	}
	settings := cfg.Settings

	shutdownTracing, err := observability.Setup(ctx, settings.Observability())
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			telemetryLogger.Printf("failed to flush traces: %v", err)
		}
	}()

	router, err := newRouter(settings, logOut, fallbackLogger)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	sessionID := uuid.NewString()
	publisher := logging.WithSession(router, sessionID)

	loop := session.NewLoop(session.LoopConfig{Capacity: settings.MailboxCapacity, WarningStep: settings.MailboxCapacity / 2}, telemetryLogger, metrics)

	network := cfg.Network
	if network == nil {
		network = ws.New(ws.Config{
			MaxAttempts:    settings.DialAttempts,
			InitialBackoff: settings.DialBackoff,
			Logger:         telemetryLogger,
			Metrics:        metrics,
		})
	}

	ctrl := controller.New(controller.Options{
		Network: network,
		HandlerFactory: func(c *controller.Controller) controller.Handler {
			return intake.NewHandler(c, loop, intake.Config{
				MaxPending: settings.MaxPending,
				Publisher:  publisher,
				Logger:     telemetryLogger,
				Metrics:    metrics,
			})
		},
		Publisher:     publisher,
		Logger:        telemetryLogger,
		Metrics:       metrics,
		NotifyPending: settings.NotifyPending,
	})

	director := present.NewDirector(present.WriterStage{Out: out}, ctrl)
	ctrl.AddEventListener(present.NewConsole(out, ctrl))
	ctrl.AddEventListener(director)

	failed := make(chan struct{})
	var failOnce sync.Once
	ctrl.AddEventListener(controller.ListenerFunc(func(event controller.EventType) {
		if event == controller.SessionStateChanged && ctrl.Err() != nil {
			failOnce.Do(func() { close(failed) })
		}
	}))

	runCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		<-loop.Done()
	}()
	go loop.Run(runCtx)

	sessionCfg := settings.Session()
	telemetryLogger.Printf("session %s joining %s as %q", sessionID, sessionCfg.URL, sessionCfg.User)

	var connectErr error
	if err := loop.Do(runCtx, func() {
		director.Start(sessionCfg)
		connectErr = ctrl.Connect(runCtx, sessionCfg)
	}); err != nil {
		return err
	}
	if connectErr != nil {
		return connectErr
	}

	lines := make(chan string)
	go readLines(runCtx, in, lines)

	runErr := serve(runCtx, loop, ctrl, lines, failed, out)

	if err := loop.Do(context.Background(), func() {
		if err := ctrl.Disconnect(); err != nil {
			telemetryLogger.Printf("disconnect: %v", err)
		}
	}); err != nil && !errors.Is(err, session.ErrLoopStopped) {
		telemetryLogger.Printf("disconnect: %v", err)
	}

	snapshot := metrics.Snapshot()
	telemetryLogger.Printf("session %s ended: enqueued=%d navigation=%d", sessionID, snapshot["controller_enqueued_total"], snapshot["controller_navigation_total"])

	if runErr != nil {
		return runErr
	}
	if err := ctrl.Err(); err != nil {
		return fmt.Errorf("session failed: %w", err)
	}
	return nil
}

func serve(ctx context.Context, loop *session.Loop, ctrl *controller.Controller, lines <-chan string, failed <-chan struct{}, out io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-failed:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line == "" {
				continue
			}
			intent, parseErr := ParseIntent(line)
			if parseErr != nil {
				// out is shared with listeners running on the loop.
				if err := loop.Do(ctx, func() { fmt.Fprintf(out, "%v (h for help)\n", parseErr) }); err != nil {
					return err
				}
				continue
			}
			if intent == IntentQuit {
				return nil
			}
			var performErr error
			if err := loop.Do(ctx, func() { performErr = perform(ctrl, intent, out) }); err != nil {
				return err
			}
			if performErr != nil {
				return nil
			}
		}
	}
}

func readLines(ctx context.Context, in io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
}

func newRouter(settings config.Config, logOut io.Writer, fallback *log.Logger) (*logging.Router, error) {
	logConfig := settings.Logging()
	var sinks []logging.NamedSink
	if logConfig.HasSink(logging.SinkConsole) {
		sinks = append(sinks, logging.NamedSink{Name: logging.SinkConsole, Sink: loggingSinks.NewConsole(logOut)})
	}
	if logConfig.HasSink(logging.SinkJSON) {
		if logConfig.JSON.FilePath == "" {
			sinks = append(sinks, logging.NamedSink{Name: logging.SinkJSON, Sink: loggingSinks.NewJSON(logOut, logConfig.JSON.FlushInterval)})
		} else {
			sink, err := loggingSinks.OpenJSONFile(logConfig.JSON.FilePath, logConfig.JSON.FlushInterval)
			if err != nil {
				return nil, fmt.Errorf("open json log: %w", err)
			}
			sinks = append(sinks, logging.NamedSink{Name: logging.SinkJSON, Sink: sink})
		}
	}
	return logging.NewRouter(logging.ClockFunc(time.Now), logConfig, fallback, sinks)
}
