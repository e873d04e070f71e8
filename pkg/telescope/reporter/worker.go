package reporter

import (
	"context"
	"errors"
	"time"

	"github.com/telescope-hq/telescope/pkg/telescope/event"
)

// The worker runs the pipeline state machine on its own goroutine,
// reached exclusively by message passing. Requests go in as commands
// (init, push, flush, destroy); the worker answers with replies (ready,
// sent, error, offline). The worker owns its offline store; the inline
// fallback and the worker are never both active writers.

type cmdKind int

const (
	cmdInit cmdKind = iota
	cmdPush
	cmdFlush
	cmdDestroy
)

type replyKind int

const (
	replyReady replyKind = iota
	replySent
	replyError
	replyOffline
)

type command struct {
	kind  cmdKind
	event event.Event
}

type reply struct {
	kind replyKind
	err  error
}

type worker struct {
	cmds    chan command
	replies chan reply
	quit    chan struct{}
	done    chan struct{}
}

// startWorker launches the worker and waits for its ready reply. A nil
// worker and an error mean the caller must fall back to the inline
// pipeline.
func startWorker(cfg Config, transport Transport) (*worker, error) {
	w := &worker{
		cmds:    make(chan command, 256),
		replies: make(chan reply, 256),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	go w.loop(cfg, transport)

	w.cmds <- command{kind: cmdInit}
	select {
	case r := <-w.replies:
		switch r.kind {
		case replyReady:
			return w, nil
		case replyError:
			return nil, r.err
		default:
			return nil, errors.New("unexpected worker reply")
		}
	case <-time.After(5 * time.Second):
		// The caller falls back to the inline pipeline now; the worker
		// must not finish initializing into a second writer on the same
		// offline store.
		close(w.quit)
		return nil, errors.New("worker failed to initialize")
	}
}

func (w *worker) loop(cfg Config, transport Transport) {
	defer close(w.done)

	var p *pipeline

	// init must arrive first.
	cmd := <-w.cmds
	if cmd.kind != cmdInit {
		w.reply(reply{kind: replyError, err: errors.New("worker not initialized")})
		return
	}

	offline, err := openOfflineStore(cfg)
	if err != nil {
		w.reply(reply{kind: replyError, err: err})
		return
	}

	// The caller gave up on us while the store was opening.
	select {
	case <-w.quit:
		offline.Close()
		return
	default:
	}

	p = newPipeline(cfg, transport, offline)
	w.reply(reply{kind: replyReady})

	ticker := time.NewTicker(cfg.ReportInterval)
	defer ticker.Stop()

	var connCh <-chan bool
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if prober, ok := transport.(Prober); ok {
		m := newMonitor(prober, cfg.ProbeInterval)
		connCh = m.ch
		go m.run(ctx)
	}

	// A previous session may have left persisted batches behind.
	p.retryPersisted(ctx)

	for {
		select {
		case <-w.quit:
			p.destroy()
			return

		case cmd := <-w.cmds:
			switch cmd.kind {
			case cmdPush:
				before := p.online
				p.push(cmd.event)
				w.notifySend(before, p.online)
			case cmdFlush:
				before := p.online
				p.flush(ctx)
				w.notifySend(before, p.online)
			case cmdDestroy:
				p.destroy()
				return
			}

		case <-ticker.C:
			before := p.online
			p.flush(ctx)
			w.notifySend(before, p.online)

		case online := <-connCh:
			p.setOnline(ctx, online)
			if !online {
				w.reply(reply{kind: replyOffline})
			}
		}
	}
}

// notifySend reports the outcome of a send that may have happened. Going
// offline is announced once per transition.
func (w *worker) notifySend(wasOnline, nowOnline bool) {
	if wasOnline && !nowOnline {
		w.reply(reply{kind: replyOffline})
	} else if nowOnline {
		w.reply(reply{kind: replySent})
	}
}

// reply never blocks; a full reply channel drops the message. Replies are
// advisory (logging), commands are the source of truth.
func (w *worker) reply(r reply) {
	select {
	case w.replies <- r:
	default:
	}
}

func (w *worker) push(e event.Event) {
	w.cmds <- command{kind: cmdPush, event: e}
}

func (w *worker) flush() {
	w.cmds <- command{kind: cmdFlush}
}

func (w *worker) destroy() {
	w.cmds <- command{kind: cmdDestroy}
	<-w.done
}
