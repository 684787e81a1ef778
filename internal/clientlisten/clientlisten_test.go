package clientlisten

import (
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/exclusivedisjunction/regisd/internal/auth"
	"github.com/exclusivedisjunction/regisd/internal/config"
	"github.com/exclusivedisjunction/regisd/internal/cryptostream"
	"github.com/exclusivedisjunction/regisd/internal/metric"
	"github.com/exclusivedisjunction/regisd/internal/supervise"
	"github.com/exclusivedisjunction/regisd/internal/wire"
	"github.com/stretchr/testify/require"
)

func nullLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testManager(t *testing.T) *auth.Manager {
	t.Helper()
	dir := t.TempDir()
	m := auth.NewManager(auth.Paths{
		SigningKeyFile: filepath.Join(dir, "signing.key"),
		UserStoreFile:  filepath.Join(dir, "users.json"),
	}, auth.DefaultPendingQueueSize, nullLogger())
	require.NoError(t, m.Initialize())
	return m
}

func testProvider(t *testing.T, hostsPort uint16) *config.Provider {
	t.Helper()
	p := config.NewProvider(filepath.Join(t.TempDir(), "config.json"))
	cfg := config.Default()
	cfg.HostsPort = hostsPort
	cfg.MaxHosts = 2
	require.NoError(t, p.DirectSet(cfg))
	return p
}

func freePort(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()
	return uint16(ln.Addr().(*net.TCPAddr).Port)
}

// tryDialAndHandshake performs the client side of HANDSHAKE, returning an
// error instead of failing the test so callers can retry against a
// listener that is still starting up.
func tryDialAndHandshake(addr string) (net.Conn, *cryptostream.SymmetricStream, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	pemBytes, err := wire.ReadFrame(conn)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	pub, err := cryptostream.DecodePublicKeyPEM(pemBytes)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	symKey, err := cryptostream.GenerateSymmetricKey()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	asym := cryptostream.NewAsymmetricStream(conn, pub, nil)
	if err := asym.SendBytes(symKey); err != nil {
		conn.Close()
		return nil, nil, err
	}

	sym, err := cryptostream.NewSymmetricStream(conn, symKey)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, sym, nil
}

// dialAndHandshake retries tryDialAndHandshake until the listener is up.
func dialAndHandshake(t *testing.T, addr string) (net.Conn, *cryptostream.SymmetricStream) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, sym, err := tryDialAndHandshake(addr)
		if err == nil {
			return conn, sym
		}
		lastErr = err
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("handshake with %s did not succeed: %v", addr, lastErr)
	return nil, nil
}

func TestClientListenerFirstTimeApprovalAndServing(t *testing.T) {
	port := freePort(t)
	mgr := testManager(t)
	store := metric.NewStore(5)
	store.Push(metric.Sample{Timestamp: 100})
	cfg := testProvider(t, port)
	task := NewTask(mgr, store, cfg)

	ctrl := make(chan supervise.Control, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan supervise.Exit, 1)
	go func() { done <- task.Run(ctx, ctrl, nullLogger()) }()

	conn, sym := dialAndHandshake(t, portAddr(port))
	defer conn.Close()

	require.NoError(t, sym.SendSerialize(wire.NewConnectFirstTime()))

	var pendingResp wire.ConnectEnvelope
	require.NoError(t, sym.ReceiveDeserialize(&pendingResp))
	require.NotNil(t, pendingResp.Body.Pending)
	pendingID := *pendingResp.Body.Pending

	require.Eventually(t, func() bool {
		return len(mgr.Pending()) == 1
	}, time.Second, 10*time.Millisecond)

	info, err := mgr.Approve(pendingID, "alice")
	require.NoError(t, err)
	require.NotNil(t, info)

	var acceptedResp wire.ConnectEnvelope
	require.NoError(t, sym.ReceiveDeserialize(&acceptedResp))
	require.NotNil(t, acceptedResp.Body.Accepted)
	require.Equal(t, info.Token, *acceptedResp.Body.Accepted)

	require.NoError(t, sym.SendSerialize(wire.NewStatusRequest()))
	var statusResp wire.HostResponse
	require.NoError(t, sym.ReceiveDeserialize(&statusResp))
	require.NotNil(t, statusResp.Sample)
	require.EqualValues(t, 100, statusResp.Sample.Timestamp)

	ctrl <- supervise.Kill
	select {
	case exit := <-done:
		require.Equal(t, supervise.ExitOk, exit)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not honor Kill")
	}
}

func TestClientListenerReturningRevokedIsDenied(t *testing.T) {
	port := freePort(t)
	mgr := testManager(t)
	info, err := mgr.CreateUser("bob")
	require.NoError(t, err)
	require.True(t, mgr.Revoke(info.ID))

	store := metric.NewStore(5)
	cfg := testProvider(t, port)
	task := NewTask(mgr, store, cfg)

	ctrl := make(chan supervise.Control, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan supervise.Exit, 1)
	go func() { done <- task.Run(ctx, ctrl, nullLogger()) }()

	conn, sym := dialAndHandshake(t, portAddr(port))
	defer conn.Close()

	require.NoError(t, sym.SendSerialize(wire.NewConnectReturning(info.Token)))
	var resp wire.ConnectEnvelope
	require.NoError(t, sym.ReceiveDeserialize(&resp))
	require.NotNil(t, resp.Body.Deny)
	require.NotNil(t, resp.Body.Deny.Revoked)

	ctrl <- supervise.Kill
	<-done
}

func TestClientListenerReturningValidIsApproved(t *testing.T) {
	port := freePort(t)
	mgr := testManager(t)
	info, err := mgr.CreateUser("carol")
	require.NoError(t, err)

	store := metric.NewStore(5)
	cfg := testProvider(t, port)
	task := NewTask(mgr, store, cfg)

	ctrl := make(chan supervise.Control, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan supervise.Exit, 1)
	go func() { done <- task.Run(ctx, ctrl, nullLogger()) }()

	conn, sym := dialAndHandshake(t, portAddr(port))
	defer conn.Close()

	require.NoError(t, sym.SendSerialize(wire.NewConnectReturning(info.Token)))
	var resp wire.ConnectEnvelope
	require.NoError(t, sym.ReceiveDeserialize(&resp))
	require.NotNil(t, resp.Body.Approved)
	require.Nil(t, resp.Body.Accepted)

	ctrl <- supervise.Kill
	<-done
}

func TestClientListenerEnforcesMaxHosts(t *testing.T) {
	port := freePort(t)
	mgr := testManager(t)
	store := metric.NewStore(5)
	cfg := testProvider(t, port) // MaxHosts: 2

	task := NewTask(mgr, store, cfg)
	ctrl := make(chan supervise.Control, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan supervise.Exit, 1)
	go func() { done <- task.Run(ctx, ctrl, nullLogger()) }()

	require.Eventually(t, func() bool {
		c, err := net.Dial("tcp", portAddr(port))
		if err != nil {
			return false
		}
		c.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)

	// Open 2 long-lived handshake connections to hold both slots, then
	// confirm a 3rd is closed immediately by the server (no handshake byte).
	var conns []net.Conn
	for i := 0; i < 2; i++ {
		c, _ := dialAndHandshake(t, portAddr(port))
		conns = append(conns, c)
	}
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()

	third, err := net.Dial("tcp", portAddr(port))
	require.NoError(t, err)
	defer third.Close()
	third.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	_, readErr := third.Read(buf)
	require.Error(t, readErr) // closed without sending the handshake frame

	ctrl <- supervise.Kill
	<-done
}
