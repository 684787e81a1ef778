// Package consolelisten implements the Console Listener Task of spec.md
// §4.11: a Unix domain socket server enforcing config.MaxConsole
// concurrent workers, running the unencrypted console protocol.
//
// Grounded on the teacher's internal/rpc transport_unix.go (the
// "ensure parent dir, remove stale socket, bind" sequencing for a
// filesystem-namespace listener) and daemon_event_loop.go's style of
// posting orchestrator-level events back through a channel; console
// workers here post through an eventbus.Bus the orchestrator listens on,
// rather than reusing #4.9-style fan-out (there is exactly one
// consumer: the orchestrator).
//
// A connection serves multiple requests in a loop rather than closing
// after each one, per regisd/src/connect/console_worker.rs in
// original_source — carried forward into SPEC_FULL.md's supplemented
// behavior.
package consolelisten

import (
	"context"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"github.com/exclusivedisjunction/regisd/internal/auth"
	"github.com/exclusivedisjunction/regisd/internal/config"
	"github.com/exclusivedisjunction/regisd/internal/eventbus"
	"github.com/exclusivedisjunction/regisd/internal/supervise"
	"github.com/exclusivedisjunction/regisd/internal/wire"
	"golang.org/x/sync/semaphore"
)

// Task is the Console Listener worker (spec.md §4.11).
type Task struct {
	socketPath string
	authMgr    *auth.Manager
	cfg        *config.Provider
	bus        *eventbus.Bus
}

// NewTask constructs a Console Listener Task bound to socketPath, the
// fixed well-known path prepared at startup.
func NewTask(socketPath string, authMgr *auth.Manager, cfg *config.Provider, bus *eventbus.Bus) *Task {
	return &Task{socketPath: socketPath, authMgr: authMgr, cfg: cfg, bus: bus}
}

// Run implements supervise.Worker.
func (t *Task) Run(ctx context.Context, ctrl <-chan supervise.Control, log *slog.Logger) supervise.Exit {
	if err := prepareSocketPath(t.socketPath); err != nil {
		log.Error("consolelisten: prepare socket path failed", "path", t.socketPath, "error", err)
		return supervise.ExitSockets
	}

	ln, err := net.Listen("unix", t.socketPath)
	if err != nil {
		log.Error("consolelisten: bind failed", "path", t.socketPath, "error", err)
		return supervise.ExitSockets
	}
	defer ln.Close()
	defer os.Remove(t.socketPath)

	snap, err := t.cfg.Access()
	if err != nil {
		log.Error("consolelisten: no configuration installed", "error", err)
		return supervise.ExitConfiguration
	}
	curMax := snap.MaxConsole
	sem := semaphore.NewWeighted(int64(curMax))

	accepted := make(chan net.Conn)
	acceptErr := make(chan error, 1)
	go acceptLoop(ln, accepted, acceptErr)

	for {
		select {
		case <-ctx.Done():
			return supervise.ExitImproperShutdown

		case conn := <-accepted:
			if !sem.TryAcquire(1) {
				log.Warn("consolelisten: max_console reached, rejecting")
				conn.Close()
				continue
			}
			go func() {
				defer sem.Release(1)
				t.serve(ctx, conn, log)
			}()

		case err := <-acceptErr:
			log.Error("consolelisten: listener failed", "error", err)
			return supervise.ExitSockets

		case msg, ok := <-ctrl:
			if !ok {
				return supervise.ExitImproperShutdown
			}
			switch msg {
			case supervise.Kill:
				ln.Close()
				return supervise.ExitOk

			case supervise.Poll:
				// acknowledged by looping back to select

			case supervise.ReloadConfig:
				newSnap, cfgErr := t.cfg.Access()
				if cfgErr != nil {
					continue
				}
				if newSnap.MaxConsole != curMax {
					sem = semaphore.NewWeighted(int64(newSnap.MaxConsole))
					curMax = newSnap.MaxConsole
				}
			}
		}
	}
}

// prepareSocketPath ensures the parent directory exists and removes any
// stale socket left behind by a previous, uncleanly-terminated run
// (spec.md §4.11: "ensure the parent directory exists, remove any stale
// socket file, bind").
func prepareSocketPath(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
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

// serve reads requests off conn in a loop, dispatching each to the
// console protocol handler, until the client closes the connection or
// an undecodable frame arrives.
func (t *Task) serve(ctx context.Context, conn net.Conn, log *slog.Logger) {
	defer conn.Close()
	for {
		var req wire.ConsoleRequest
		if err := wire.ReceiveJSON(conn, &req); err != nil {
			log.Debug("consolelisten: connection closed", "error", err)
			return
		}

		resp := t.dispatch(ctx, req, log)
		if err := wire.SendJSON(conn, resp); err != nil {
			log.Debug("consolelisten: write failed", "error", err)
			return
		}
	}
}

func (t *Task) dispatch(ctx context.Context, req wire.ConsoleRequest, log *slog.Logger) wire.ConsoleResponse {
	switch req.Op {
	case wire.OpPoll:
		return wire.NewOkResponse(wire.OpPoll)

	case wire.OpShutdown:
		t.bus.Dispatch(ctx, eventbus.Event{Type: eventbus.SystemShutdown, Source: "console"})
		return wire.NewOkResponse(wire.OpShutdown)

	case wire.OpConfig:
		return t.dispatchConfig(ctx, req.Config, log)

	case wire.OpAuth:
		return t.dispatchAuth(req.Auth, log)

	default:
		log.Warn("consolelisten: unrecognized op", "op", req.Op)
		return wire.NewBoolResponse(req.Op, false)
	}
}

func (t *Task) dispatchConfig(ctx context.Context, req *wire.ConfigRequest, log *slog.Logger) wire.ConsoleResponse {
	if req == nil {
		return wire.NewBoolResponse(wire.OpConfig, false)
	}
	switch req.Op {
	case wire.ConfigGet:
		cfg, err := t.cfg.Access()
		if err != nil {
			return wire.NewBoolResponse(wire.OpConfig, false)
		}
		return wire.NewConfigSnapshotResponse(cfg)

	case wire.ConfigSet:
		if req.New == nil {
			return wire.NewBoolResponse(wire.OpConfig, false)
		}
		if err := t.cfg.DirectSet(*req.New); err != nil {
			log.Warn("consolelisten: config set rejected", "error", err)
			return wire.NewBoolResponse(wire.OpConfig, false)
		}
		// The orchestrator's ReloadConfig handling re-reads the file, so
		// the replacement is saved before the event is posted.
		if err := t.cfg.Save(); err != nil {
			log.Warn("consolelisten: config set could not be saved", "error", err)
			return wire.NewBoolResponse(wire.OpConfig, false)
		}
		t.bus.Dispatch(ctx, eventbus.Event{Type: eventbus.ReloadConfig, Source: "console"})
		return wire.NewBoolResponse(wire.OpConfig, true)

	case wire.ConfigReload:
		t.bus.Dispatch(ctx, eventbus.Event{Type: eventbus.ReloadConfig, Source: "console"})
		return wire.NewOkResponse(wire.OpConfig)

	default:
		return wire.NewBoolResponse(wire.OpConfig, false)
	}
}

func (t *Task) dispatchAuth(req *wire.AuthRequest, log *slog.Logger) wire.ConsoleResponse {
	if req == nil {
		return wire.NewBoolResponse(wire.OpAuth, false)
	}
	switch req.Op {
	case wire.AuthAllUsers:
		users := t.authMgr.AllUsers()
		out := make([]wire.UserSummary, 0, len(users))
		for _, u := range users {
			out = append(out, wire.UserSummary{ID: u.ID, Nickname: u.Nickname})
		}
		return wire.NewAllUsersResponse(out)

	case wire.AuthUserHistory:
		u, ok := t.authMgr.UserDetail(req.UserID)
		if !ok {
			return wire.NewUserHistoryResponse(nil)
		}
		history := make([]wire.UserHistoryEntry, 0, len(u.History))
		for _, h := range u.History {
			history = append(history, wire.UserHistoryEntry{FromIP: h.FromIP, AtTime: h.At.Unix()})
		}
		return wire.NewUserHistoryResponse(&wire.UserDetail{ID: u.ID, Nickname: u.Nickname, History: history})

	case wire.AuthPending:
		pending := t.authMgr.Pending()
		out := make([]wire.PendingSummary, 0, len(pending))
		for _, p := range pending {
			out = append(out, wire.PendingSummary{ID: p.ID, FromIP: p.FromIP, RequestedAt: p.RequestedAt.Unix()})
		}
		return wire.NewPendingResponse(out)

	case wire.AuthApprove:
		info, err := t.authMgr.Approve(req.UserID, req.Nickname)
		if err != nil || info == nil {
			return wire.NewApproveResponse(nil)
		}
		return wire.NewApproveResponse(&wire.NewUser{ID: info.ID, Token: info.Token})

	case wire.AuthDeny:
		return wire.NewBoolResponse(wire.OpAuth, t.authMgr.Deny(req.UserID))

	case wire.AuthRevoke:
		return wire.NewBoolResponse(wire.OpAuth, t.authMgr.Revoke(req.UserID))

	default:
		return wire.NewBoolResponse(wire.OpAuth, false)
	}
}
