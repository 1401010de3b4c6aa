package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vocalis-go/vocalis/internal/observe"
	"github.com/vocalis-go/vocalis/pkg/voice/audio"
	"github.com/vocalis-go/vocalis/pkg/voice/protocol"
	"github.com/vocalis-go/vocalis/pkg/voice/state"
	vocalis "github.com/vocalis-go/vocalis/sdk"
)

// errExitRequested flows through the errgroup on a user-initiated exit so
// the event consumer is torn down through the group context.
var errExitRequested = errors.New("exit requested")

// repl drives one interactive session: a command loop reading slash commands
// from in, and an event consumer printing the server's side of the
// conversation to out.
type repl struct {
	client  *vocalis.Client
	session *vocalis.Session
	metrics *observe.Metrics

	// fileCapture is set in file-input mode so a started turn can stop
	// itself once the replay drains.
	fileCapture *audio.FileCapture

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	// partialLive is owned by the event consumer goroutine. True while the
	// current output line holds an interim transcript.
	partialLive bool
}

func (r *repl) run(ctx context.Context) error {
	fmt.Fprintf(r.out, "connected (thread %s)\n", r.session.ThreadID())
	fmt.Fprintln(r.out, "type /start to begin a turn, /help for commands")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.consumeEvents(ctx)
		return nil
	})
	g.Go(func() error {
		return r.commandLoop(ctx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, errExitRequested) {
		return err
	}
	return nil
}

// commandLoop reads lines until the user quits, the session dies, or the
// context is canceled. The scanner runs in its own goroutine so a blocked
// stdin read cannot hold up shutdown.
func (r *repl) commandLoop(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		r.printPrompt()
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		case <-r.session.Done():
			return r.session.Err()
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				return errExitRequested
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if quit := r.handleCommand(ctx, line); quit {
				return errExitRequested
			}
		}
	}
}

func (r *repl) printPrompt() {
	fmt.Fprintf(r.out, "(%s)> ", r.session.VoiceState())
}

// handleCommand dispatches one input line. It reports whether the user asked
// to quit; command failures print inline and keep the loop alive.
func (r *repl) handleCommand(ctx context.Context, line string) (quit bool) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		fmt.Fprintln(r.out, "bye")
		return true
	case "/help":
		r.printHelp()
	case "/start":
		r.startTurn(ctx)
	case "/stop":
		if !state.CanRequestStop(r.session.VoiceState()) {
			fmt.Fprintln(r.out, "not listening")
			return false
		}
		if err := r.session.StopListening(); err != nil {
			fmt.Fprintf(r.errOut, "stop error: %v\n", err)
		}
	case "/cancel":
		if err := r.session.Cancel(); err != nil {
			fmt.Fprintf(r.errOut, "cancel error: %v\n", err)
		}
	case "/voice":
		r.setVoice(arg)
	case "/save":
		r.saveAudio(arg)
	case "/history":
		r.reloadHistory(ctx)
	case "/events":
		r.dumpEvents(arg)
	case "/toggle":
		r.toggleCategory(arg)
	case "/clear":
		r.session.Telemetry().Clear()
		fmt.Fprintln(r.out, "telemetry log cleared")
	case "/metrics":
		r.printMetrics()
	default:
		if strings.HasPrefix(cmd, "/") {
			fmt.Fprintf(r.out, "unknown command %s, try /help\n", cmd)
		} else {
			fmt.Fprintln(r.out, "this is a voice session: /start to talk, /help for commands")
		}
	}
	return false
}

func (r *repl) printHelp() {
	fmt.Fprint(r.out, `commands:
  /start           start listening (mic or wav replay)
  /stop            stop listening and let the assistant answer
  /cancel          abort the in-flight response
  /voice <name>    switch voice for following turns (/voice default resets)
  /save <path>     write the newest turn audio to a WAV file
  /history         reload the thread transcript from the server
  /events [n]      dump the last n telemetry events (default 20)
  /toggle [cat]    flip a telemetry category, bare lists them
  /clear           drop all recorded telemetry events
  /metrics         show the latest turn latency breakdown
  /quit            close the session and exit
`)
}

func (r *repl) startTurn(ctx context.Context) {
	if st := r.session.VoiceState(); st != state.Idle {
		fmt.Fprintf(r.out, "cannot start while %s\n", st)
		return
	}
	if err := r.session.StartListening(ctx); err != nil {
		fmt.Fprintf(r.errOut, "start error: %v\n", err)
		return
	}
	if r.fileCapture != nil {
		go r.stopWhenDrained(ctx, r.fileCapture.Drained())
	}
}

// stopWhenDrained waits for the file replay to finish and the chunk queue to
// empty, then requests stop so the turn proceeds without user input.
func (r *repl) stopWhenDrained(ctx context.Context, drained <-chan struct{}) {
	select {
	case <-drained:
	case <-ctx.Done():
		return
	case <-r.session.Done():
		return
	}
	for len(r.fileCapture.Chunks()) > 0 {
		select {
		case <-time.After(20 * time.Millisecond):
		case <-ctx.Done():
			return
		case <-r.session.Done():
			return
		}
	}
	// Give the sender a beat to flush the chunk it may hold in flight.
	time.Sleep(50 * time.Millisecond)
	if err := r.session.StopListening(); err != nil {
		fmt.Fprintf(r.errOut, "stop error: %v\n", err)
	}
}

func (r *repl) setVoice(arg string) {
	switch arg {
	case "":
		fmt.Fprintln(r.out, "usage: /voice <name>, or /voice default to reset")
	case "default":
		if err := r.session.SetVoice(nil); err != nil {
			fmt.Fprintf(r.errOut, "voice error: %v\n", err)
			return
		}
		fmt.Fprintln(r.out, "voice reset to server default")
	default:
		if err := r.session.SetVoice(&arg); err != nil {
			fmt.Fprintf(r.errOut, "voice error: %v\n", err)
			return
		}
		fmt.Fprintf(r.out, "voice set to %s\n", arg)
	}
}

// saveAudio writes the newest turn that still has buffered audio to path.
func (r *repl) saveAudio(path string) {
	if path == "" {
		fmt.Fprintln(r.out, "usage: /save <file.wav>")
		return
	}
	turns := r.session.Messages()
	for i := len(turns) - 1; i >= 0; i-- {
		wav := turns[i].Audio.WAV()
		if wav == nil {
			continue
		}
		if err := os.WriteFile(path, wav, 0o644); err != nil {
			fmt.Fprintf(r.errOut, "save error: %v\n", err)
			return
		}
		fmt.Fprintf(r.out, "saved %s audio (%.1fs) to %s\n", turns[i].Role, audioSeconds(len(wav)), path)
		return
	}
	fmt.Fprintln(r.out, "no turn with buffered audio yet")
}

// reloadHistory replaces the local transcript with the server's copy. Audio
// buffered on the old turns is released in the process.
func (r *repl) reloadHistory(ctx context.Context) {
	if r.session.ThreadID() == "" {
		fmt.Fprintln(r.out, "no thread yet, say something first")
		return
	}
	fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	turns, err := r.client.LoadThreadHistory(fetchCtx, r.session)
	if err != nil {
		fmt.Fprintf(r.errOut, "history error: %v\n", err)
		return
	}
	if len(turns) == 0 {
		fmt.Fprintln(r.out, "thread is empty")
		return
	}
	for _, t := range turns {
		r.printTurn(t)
	}
}

func (r *repl) dumpEvents(arg string) {
	n := 20
	if arg != "" {
		parsed, err := strconv.Atoi(arg)
		if err != nil || parsed <= 0 {
			fmt.Fprintln(r.out, "usage: /events [count]")
			return
		}
		n = parsed
	}

	events := r.session.Telemetry().FilteredEvents()
	if len(events) == 0 {
		fmt.Fprintln(r.out, "no telemetry events yet")
		return
	}
	if len(events) > n {
		events = events[len(events)-n:]
	}
	for _, ev := range events {
		line := fmt.Sprintf("%6d  %-8s %-18s", ev.ID, ev.Category, ev.Name)
		if len(ev.Data) > 0 {
			line += fmt.Sprintf(" %v", ev.Data)
		}
		fmt.Fprintln(r.out, line)
	}
}

func (r *repl) toggleCategory(arg string) {
	rec := r.session.Telemetry()
	if arg == "" {
		cats := rec.Categories()
		names := make([]string, 0, len(cats))
		for name := range cats {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(r.out, "  %-10s %s\n", name, onOff(cats[name]))
		}
		return
	}
	next := !rec.Categories()[arg]
	rec.SetCategoryEnabled(arg, next)
	fmt.Fprintf(r.out, "category %s %s\n", arg, onOff(next))
}

func (r *repl) printMetrics() {
	m := r.session.Metrics()
	fmt.Fprintf(r.out, "turn latency: stt %s, llm %s, tts %s, total %s\n",
		msOrDash(m.STTMS), msOrDash(m.LLMMS), msOrDash(m.TTSMS), msOrDash(m.TotalMS))
	fmt.Fprintf(r.out, "telemetry: %d events recorded\n", r.session.Telemetry().Len())
}

// consumeEvents prints session events until the channel closes or the
// context is canceled, and feeds the turn counters along the way.
func (r *repl) consumeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-r.session.Events():
			if !ok {
				return
			}
			r.printEvent(ctx, event)
		}
	}
}

func (r *repl) printEvent(ctx context.Context, event vocalis.SessionEvent) {
	switch e := event.(type) {
	case vocalis.StateChangedEvent:
		r.clearPartial()
		fmt.Fprintf(r.out, "[state] %s -> %s\n", e.From, e.To)
		if e.To == state.Idle {
			if m := r.session.Metrics(); m.Complete() {
				fmt.Fprintf(r.out, "[turn] stt %dms, llm %dms, tts %dms, total %dms\n",
					*m.STTMS, *m.LLMMS, *m.TTSMS, *m.TotalMS)
			}
		}
	case vocalis.TranscriptPartialEvent:
		r.printPartial(e.Text)
	case vocalis.UserTurnEvent:
		r.clearPartial()
		r.printTurn(e.Turn)
		if r.metrics != nil {
			r.metrics.RecordTranscriptTurn(ctx, string(e.Turn.Role))
		}
	case vocalis.AssistantTurnEvent:
		r.clearPartial()
		r.printTurn(e.Turn)
		if r.metrics != nil {
			r.metrics.RecordTranscriptTurn(ctx, string(e.Turn.Role))
		}
	case vocalis.TurnCompleteEvent:
		// The latency line prints on the idle transition that follows.
	case vocalis.ServerErrorEvent:
		r.clearPartial()
		fmt.Fprintf(r.errOut, "server error: %s\n", e.Message)
	case vocalis.DebugEvent:
		r.clearPartial()
		fmt.Fprintf(r.out, "[debug] %s/%s\n", e.Category, e.Name)
	case vocalis.UnknownEvent:
		r.clearPartial()
		fmt.Fprintf(r.out, "[server] unhandled %s message\n", e.Type)
	case vocalis.DisconnectedEvent:
		r.clearPartial()
		reason := "clean"
		if e.Err != nil {
			reason = "error"
			fmt.Fprintf(r.errOut, "connection lost: %v\n", e.Err)
		} else {
			fmt.Fprintln(r.out, "disconnected")
		}
		if r.metrics != nil {
			r.metrics.RecordDisconnect(ctx, reason)
		}
	}
}

func (r *repl) printTurn(t vocalis.Turn) {
	suffix := ""
	if n := t.Audio.Len(); n > audio.WAVHeaderSize {
		suffix = fmt.Sprintf(" (audio %.1fs)", audioSeconds(n))
	}
	fmt.Fprintf(r.out, "[%s] %s%s\n", t.Role, t.Text, suffix)
}

// printPartial rewrites the current line in place so interim transcripts
// update without scrolling. Partials only ever grow, so no clearing is
// needed between rewrites.
func (r *repl) printPartial(text string) {
	fmt.Fprintf(r.out, "\r  ~ %s", text)
	r.partialLive = true
}

func (r *repl) clearPartial() {
	if r.partialLive {
		fmt.Fprintln(r.out)
		r.partialLive = false
	}
}

func audioSeconds(n int) float64 {
	if n <= audio.WAVHeaderSize {
		return 0
	}
	return float64(n-audio.WAVHeaderSize) / float64(2*protocol.SampleRate)
}

func msOrDash(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%dms", *v)
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}
