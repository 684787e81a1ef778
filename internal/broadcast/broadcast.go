// Package broadcast implements the Broadcast Task of spec.md §4.9: a TCP
// server that fans out every new Sample to whichever plain subscribers
// are currently connected, best-effort, dropping any that stall.
//
// Grounded on the teacher's internal/rpc SSE fan-out (http_sse.go's
// subscriber registry broadcasting server-sent events to many HTTP
// clients) generalized from HTTP response writers to raw TCP
// connections, since regisd's broadcast transport has no HTTP framing.
package broadcast

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/exclusivedisjunction/regisd/internal/config"
	"github.com/exclusivedisjunction/regisd/internal/metric"
	"github.com/exclusivedisjunction/regisd/internal/supervise"
	"github.com/exclusivedisjunction/regisd/internal/wire"
)

// Task is the Broadcast worker (spec.md §4.9).
type Task struct {
	store *metric.Store
	cfg   *config.Provider

	mu   sync.Mutex
	subs map[net.Conn]struct{}
}

// NewTask constructs a Broadcast Task bound to store and cfg.
func NewTask(store *metric.Store, cfg *config.Provider) *Task {
	return &Task{store: store, cfg: cfg, subs: make(map[net.Conn]struct{})}
}

// Run implements supervise.Worker. It binds a TCP listener on
// config.BroadcastsPort, accepts subscribers, and fans out every Sample
// pushed into the Store until Kill or an unrecoverable listener error.
func (t *Task) Run(ctx context.Context, ctrl <-chan supervise.Control, log *slog.Logger) supervise.Exit {
	snap, err := t.cfg.Access()
	if err != nil {
		log.Error("broadcast: no configuration installed", "error", err)
		return supervise.ExitConfiguration
	}
	boundPort := snap.BroadcastsPort

	ln, err := net.Listen("tcp", portAddr(boundPort))
	if err != nil {
		log.Error("broadcast: bind failed", "port", boundPort, "error", err)
		return supervise.ExitSockets
	}
	defer ln.Close()

	accepted := make(chan net.Conn)
	acceptErr := make(chan error, 1)
	go acceptLoop(ln, accepted, acceptErr)

	samples, unsubscribe := t.store.Subscribe(32)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			t.dropAll()
			return supervise.ExitImproperShutdown

		case conn := <-accepted:
			t.mu.Lock()
			t.subs[conn] = struct{}{}
			t.mu.Unlock()
			log.Info("broadcast: subscriber connected", "addr", conn.RemoteAddr())

		case err := <-acceptErr:
			log.Error("broadcast: listener failed", "error", err)
			t.dropAll()
			return supervise.ExitSockets

		case sample := <-samples:
			t.publish(sample, log)

		case msg, ok := <-ctrl:
			if !ok {
				t.dropAll()
				return supervise.ExitImproperShutdown
			}
			switch msg {
			case supervise.Kill:
				ln.Close()
				t.dropAll()
				return supervise.ExitOk

			case supervise.Poll:
				// liveness ack: looping back to select acknowledges it

			case supervise.ReloadConfig:
				newSnap, cfgErr := t.cfg.Access()
				if cfgErr != nil {
					continue
				}
				if newSnap.BroadcastsPort != boundPort {
					log.Info("broadcast: rebinding on port change", "old", boundPort, "new", newSnap.BroadcastsPort)
					newLn, bindErr := net.Listen("tcp", portAddr(newSnap.BroadcastsPort))
					if bindErr != nil {
						log.Error("broadcast: rebind failed", "port", newSnap.BroadcastsPort, "error", bindErr)
						t.dropAll()
						return supervise.ExitSockets
					}
					ln.Close()
					ln = newLn
					boundPort = newSnap.BroadcastsPort
					// The old listener's accept loop reports its close on the
					// old channel; only the new listener's errors are watched.
					acceptErr = make(chan error, 1)
					go acceptLoop(ln, accepted, acceptErr)
				}
			}
		}
	}
}

// publish serializes sample once and writes it to every current
// subscriber; a subscriber whose write fails is dropped silently
// (spec.md §4.9's best-effort pub/sub).
func (t *Task) publish(sample metric.Sample, log *slog.Logger) {
	t.mu.Lock()
	conns := make([]net.Conn, 0, len(t.subs))
	for c := range t.subs {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	// A subscriber that stops reading fails its write once this deadline
	// passes, so it is dropped instead of blocking the publisher.
	const writeTimeout = 2 * time.Second

	resp := wire.NewStatusResponse(sample)
	for _, c := range conns {
		_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := wire.SendJSON(c, resp); err != nil {
			log.Debug("broadcast: dropping stalled subscriber", "addr", c.RemoteAddr(), "error", err)
			t.drop(c)
		}
	}
}

func (t *Task) drop(c net.Conn) {
	t.mu.Lock()
	delete(t.subs, c)
	t.mu.Unlock()
	c.Close()
}

func (t *Task) dropAll() {
	t.mu.Lock()
	conns := make([]net.Conn, 0, len(t.subs))
	for c := range t.subs {
		conns = append(conns, c)
	}
	t.subs = make(map[net.Conn]struct{})
	t.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

func acceptLoop(ln net.Listener, accepted chan<- net.Conn, errs chan<- error) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			errs <- err
			return
		}
		accepted <- conn
	}
}

func portAddr(port uint16) string {
	return ":" + strconv.Itoa(int(port))
}
