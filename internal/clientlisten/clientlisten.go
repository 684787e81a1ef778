// Package clientlisten implements the Client Listener Task of spec.md
// §4.10: a TCP server enforcing config.MaxHosts concurrent connections,
// each served by a per-connection worker running the
// HANDSHAKE→AUTH→SERVING/DENIED state machine.
//
// Grounded on the teacher's internal/rpc server_core.go (accept loop +
// per-connection goroutine + connection cap) generalized from the
// teacher's bearer-token check to the asymmetric-then-symmetric
// handshake spec.md §4.2-§4.4 mandate, and on golang.org/x/sync/semaphore
// (a pack dependency, previously used by the teacher only for its
// internal worker pools) for the max_hosts cap.
package clientlisten

import (
	"context"
	"log/slog"
	"net"
	"strconv"

	"github.com/exclusivedisjunction/regisd/internal/auth"
	"github.com/exclusivedisjunction/regisd/internal/config"
	"github.com/exclusivedisjunction/regisd/internal/cryptostream"
	"github.com/exclusivedisjunction/regisd/internal/metric"
	"github.com/exclusivedisjunction/regisd/internal/supervise"
	"github.com/exclusivedisjunction/regisd/internal/wire"
	"golang.org/x/sync/semaphore"
)

// Task is the Client Listener worker (spec.md §4.10).
type Task struct {
	authMgr *auth.Manager
	store   *metric.Store
	cfg     *config.Provider
}

// NewTask constructs a Client Listener Task.
func NewTask(authMgr *auth.Manager, store *metric.Store, cfg *config.Provider) *Task {
	return &Task{authMgr: authMgr, store: store, cfg: cfg}
}

// Run implements supervise.Worker.
func (t *Task) Run(ctx context.Context, ctrl <-chan supervise.Control, log *slog.Logger) supervise.Exit {
	snap, err := t.cfg.Access()
	if err != nil {
		log.Error("clientlisten: no configuration installed", "error", err)
		return supervise.ExitConfiguration
	}
	boundPort := snap.HostsPort
	curMax := snap.MaxHosts
	sem := semaphore.NewWeighted(int64(curMax))

	ln, err := net.Listen("tcp", portAddr(boundPort))
	if err != nil {
		log.Error("clientlisten: bind failed", "port", boundPort, "error", err)
		return supervise.ExitSockets
	}
	defer ln.Close()

	accepted := make(chan net.Conn)
	acceptErr := make(chan error, 1)
	go acceptLoop(ln, accepted, acceptErr)

	for {
		select {
		case <-ctx.Done():
			return supervise.ExitImproperShutdown

		case conn := <-accepted:
			if !sem.TryAcquire(1) {
				log.Warn("clientlisten: max_hosts reached, rejecting", "addr", conn.RemoteAddr())
				conn.Close()
				continue
			}
			go func() {
				defer sem.Release(1)
				t.serve(ctx, conn, log)
			}()

		case err := <-acceptErr:
			log.Error("clientlisten: listener failed", "error", err)
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
				if newSnap.MaxHosts != curMax {
					sem = semaphore.NewWeighted(int64(newSnap.MaxHosts))
					curMax = newSnap.MaxHosts
				}
				if newSnap.HostsPort != boundPort {
					log.Info("clientlisten: rebinding on port change", "old", boundPort, "new", newSnap.HostsPort)
					newLn, bindErr := net.Listen("tcp", portAddr(newSnap.HostsPort))
					if bindErr != nil {
						log.Error("clientlisten: rebind failed", "port", newSnap.HostsPort, "error", bindErr)
						return supervise.ExitSockets
					}
					ln.Close()
					ln = newLn
					boundPort = newSnap.HostsPort
					// The old listener's accept loop reports its close on the
					// old channel; only the new listener's errors are watched.
					acceptErr = make(chan error, 1)
					go acceptLoop(ln, accepted, acceptErr)
				}
			}
		}
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

// serve runs the full per-connection state machine: HANDSHAKE, AUTH, then
// SERVING until the client disconnects or sends something unreadable
// (spec.md §4.10). Per-connection failures are isolated from the
// listener.
func (t *Task) serve(ctx context.Context, conn net.Conn, log *slog.Logger) {
	defer conn.Close()
	peer := remoteIP(conn)
	clog := log.With("peer", peer)

	sym, err := t.handshake(conn, clog)
	if err != nil {
		clog.Warn("clientlisten: handshake failed", "error", err)
		return
	}

	token, denied := t.auth(ctx, sym, peer, clog)
	if denied {
		return
	}

	t.serving(sym, token, clog)
}

// handshake implements the HANDSHAKE state: send the daemon's public
// key, receive the client's asymmetrically-encrypted symmetric key, and
// install the SymmetricStream for everything after.
func (t *Task) handshake(conn net.Conn, log *slog.Logger) (*cryptostream.SymmetricStream, error) {
	pub, err := t.authMgr.PublicKeyPEM()
	if err != nil {
		return nil, err
	}
	if err := wire.WriteFrame(conn, pub); err != nil {
		return nil, err
	}

	rsaStream := t.authMgr.RSAStream(conn)
	symKey, err := rsaStream.ReceiveBytes()
	if err != nil {
		return nil, err
	}

	return cryptostream.NewSymmetricStream(conn, symKey)
}

// auth implements the AUTH state. It returns the accepted session token
// and denied=false on success; denied=true means the connection has
// already been told its fate and should be closed.
func (t *Task) auth(ctx context.Context, sym *cryptostream.SymmetricStream, peer string, log *slog.Logger) (token string, denied bool) {
	var env wire.ConnectEnvelope
	if err := sym.ReceiveDeserialize(&env); err != nil {
		log.Warn("clientlisten: auth decode failed", "error", err)
		return "", true
	}

	switch {
	case env.Body.FirstTime != nil:
		return t.authFirstTime(ctx, sym, peer, log)
	case env.Body.Returning != nil:
		return t.authReturning(sym, *env.Body.Returning, peer, log)
	default:
		_ = sym.SendSerialize(wire.NewConnectDenyInvalid())
		return "", true
	}
}

func (t *Task) authFirstTime(ctx context.Context, sym *cryptostream.SymmetricStream, peer string, log *slog.Logger) (string, bool) {
	pendingID, err := t.authMgr.RegisterPending(peer)
	if err != nil {
		log.Warn("clientlisten: pending registration failed", "error", err)
		_ = sym.SendSerialize(wire.NewConnectDenyInvalid())
		return "", true
	}
	if err := sym.SendSerialize(wire.NewConnectPending(pendingID)); err != nil {
		return "", true
	}

	info, waitErr := t.authMgr.AwaitApproval(ctx, pendingID)
	switch {
	case waitErr == nil:
		_ = sym.SendSerialize(wire.NewConnectAccepted(info.Token))
		return info.Token, false
	case waitErr == auth.ErrDenied:
		_ = sym.SendSerialize(wire.NewConnectDenyInvalid())
		return "", true
	case waitErr == auth.ErrPendingTimedOut:
		_ = sym.SendSerialize(wire.NewConnectDenyTimedOut())
		return "", true
	default:
		_ = sym.SendSerialize(wire.NewConnectDenyInvalid())
		return "", true
	}
}

func (t *Task) authReturning(sym *cryptostream.SymmetricStream, token, peer string, log *slog.Logger) (string, bool) {
	switch t.authMgr.Authenticate(token, peer) {
	case auth.SignInOK:
		_ = sym.SendSerialize(wire.NewConnectApproved())
		return token, false
	case auth.SignInRevoked:
		_ = sym.SendSerialize(wire.NewConnectDenyRevoked())
		return "", true
	default:
		_ = sym.SendSerialize(wire.NewConnectDenyUserNotFound())
		return "", true
	}
}

// serving implements the SERVING state: one response per request, until
// the client disconnects or sends something undecodable.
func (t *Task) serving(sym *cryptostream.SymmetricStream, token string, log *slog.Logger) {
	for {
		var req wire.HostRequest
		if err := sym.ReceiveDeserialize(&req); err != nil {
			log.Debug("clientlisten: connection closed", "error", err)
			return
		}

		switch req.Kind {
		case wire.HostRequestStatus:
			sample, ok := t.store.Status()
			if !ok {
				sample = metric.Sample{}
			}
			if err := sym.SendSerialize(wire.NewStatusResponse(sample)); err != nil {
				return
			}

		case wire.HostRequestMetrics:
			window := t.store.Window(int(req.N))
			if err := sym.SendSerialize(wire.NewMetricsResponse(window)); err != nil {
				return
			}

		case wire.HostRequestAck:
			log.Debug("clientlisten: ack", "code", req.Code, "msg", req.Msg)

		default:
			log.Warn("clientlisten: unrecognized request kind", "kind", req.Kind)
			return
		}
	}
}

func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
