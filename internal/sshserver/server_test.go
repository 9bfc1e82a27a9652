// SPDX-License-Identifier: MPL-2.0

package sshserver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	gossh "golang.org/x/crypto/ssh"

	"github.com/nestnet/nestnet/internal/cli"
	"github.com/nestnet/nestnet/internal/dispatch"
	"github.com/nestnet/nestnet/internal/netemu"
	"github.com/nestnet/nestnet/internal/testutil"
)

type fakeNetwork struct {
	nodes []*netemu.Node
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{nodes: []*netemu.Node{
		{Name: "h1", Role: netemu.RoleHost, IP: netip.MustParsePrefix("10.0.0.1/8")},
		{Name: "s1", Role: netemu.RoleSwitch},
	}}
}

func (f *fakeNetwork) Start(context.Context) error { return nil }
func (f *fakeNetwork) Stop(context.Context) error { return nil }
func (f *fakeNetwork) WaitConnected(context.Context) error { return nil }
func (f *fakeNetwork) PingAll(context.Context) (float64, error) { return 0, nil }
func (f *fakeNetwork) PingPair(context.Context) (float64, error) { return 0, nil }
func (f *fakeNetwork) Operation(string) (dispatch.Operation, bool) { return nil, false }
func (f *fakeNetwork) Nodes() []*netemu.Node { return f.nodes }
func (f *fakeNetwork) Dump(context.Context) []string { return nil }
func (f *fakeNetwork) Net() []string { return []string{"h1 h1-eth0:s1-eth1"} }
func (f *fakeNetwork) LinkStatus(context.Context) []string { return nil }

func (f *fakeNetwork) Iperf(context.Context, dispatch.IperfOptions) ([]string, error) {
	return nil, nil
}

func (f *fakeNetwork) ConfigLink(context.Context, string, string, string) error { return nil }

func (f *fakeNetwork) Node(name string) (*netemu.Node, error) {
	for _, n := range f.nodes {
		if n.Name == name {
			return n, nil
		}
	}
	return nil, errors.New("no node " + name)
}

func newTestServer(opts ...Option) *Server {
	cfg := DefaultConfig()
	cfg.StartupTimeout = 10 * time.Second
	discard := log.New(io.Discard)
	opts = append([]Option{
		WithLogger(discard),
		WithCLIOptions(cli.Options{Dispatcher: dispatch.New(discard)}),
	}, opts...)
	return New(cfg, newFakeNetwork(), opts...)
}

func startTestServer(t *testing.T) *Server {
	t.Helper()
	srv := newTestServer()
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { testutil.MustStop(t, srv) })
	return srv
}

func dial(t *testing.T, srv *Server, password string) (*gossh.Client, error) {
	t.Helper()
	return gossh.Dial("tcp", srv.Address(), &gossh.ClientConfig{
		User:            User,
		Auth:            []gossh.AuthMethod{gossh.Password(password)},
		HostKeyCallback: gossh.InsecureIgnoreHostKey(), //nolint:gosec // test server
		Timeout:         10 * time.Second,
	})
}

func TestTokens(t *testing.T) {
	t.Parallel()

	clock := testutil.NewFakeClock(time.Time{})
	srv := newTestServer(WithClock(clock))

	token, err := srv.GenerateToken("console")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if len(token.Value) != 64 || token.Owner != "console" {
		t.Errorf("token = %+v", token)
	}
	if _, ok := srv.ValidateToken(token.Value); !ok {
		t.Error("fresh token should be valid")
	}
	if _, ok := srv.ValidateToken("bogus"); ok {
		t.Error("unknown token should be invalid")
	}

	clock.Advance(2 * time.Hour)
	if _, ok := srv.ValidateToken(token.Value); ok {
		t.Error("expired token should be invalid")
	}

	other, _ := srv.GenerateToken("console")
	srv.RevokeToken(other.Value)
	if _, ok := srv.ValidateToken(other.Value); ok {
		t.Error("revoked token should be invalid")
	}
}

func TestLifecycle(t *testing.T) {
	t.Parallel()

	srv := newTestServer()
	if srv.State() != StateCreated {
		t.Fatalf("State() = %s, want created", srv.State())
	}
	if _, err := srv.ConnectionInfo("x"); err == nil {
		t.Error("ConnectionInfo() before start should fail")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !srv.IsRunning() || srv.Port() == 0 {
		t.Errorf("State() = %s, Port() = %d", srv.State(), srv.Port())
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
	if err := srv.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := srv.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
	if srv.State() != StateStopped || !srv.State().IsTerminal() {
		t.Errorf("State() = %s, want stopped", srv.State())
	}
	if err := srv.Wait(); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}

func TestStart_Failures(t *testing.T) {
	t.Parallel()

	t.Run("canceled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		srv := newTestServer()
		if err := srv.Start(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Start() error = %v, want context.Canceled", err)
		}
		if srv.State() != StateFailed {
			t.Errorf("State() = %s, want failed", srv.State())
		}
	})

	t.Run("port in use", func(t *testing.T) {
		t.Parallel()

		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		defer l.Close()
		port, _ := strconv.Atoi(strings.TrimPrefix(l.Addr().String(), "127.0.0.1:"))

		srv := New(Config{Port: port}, newFakeNetwork(), WithLogger(log.New(io.Discard)))
		if err := srv.Start(context.Background()); err == nil {
			t.Fatal("Start() on a used port should fail")
		}
		if err := srv.Wait(); err == nil {
			t.Error("Wait() after a failed start should return the failure")
		}
		if srv.Address() != "" {
			t.Errorf("Address() = %q, want empty", srv.Address())
		}
	})
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()

	srv := newTestServer()
	if err := srv.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if srv.State() != StateStopped {
		t.Errorf("State() = %s, want stopped", srv.State())
	}
}

func TestSession_RunsCommand(t *testing.T) {
	t.Parallel()

	srv := startTestServer(t)
	info, err := srv.ConnectionInfo("test")
	if err != nil {
		t.Fatal(err)
	}
	client, err := dial(t, srv, string(info.Token))
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer client.Close()

	sess, err := client.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()
	out, err := sess.Output("nodes")
	if err != nil {
		t.Fatalf("nodes error = %v", err)
	}
	if !strings.Contains(string(out), "h1 s1") {
		t.Errorf("output = %q", out)
	}

	failing, err := client.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	defer failing.Close()
	var stderr bytes.Buffer
	failing.Stderr = &stderr
	err = failing.Run("frobnicate")
	var exitErr *gossh.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitStatus() != 1 {
		t.Errorf("Run(frobnicate) error = %v, want exit status 1", err)
	}
	if !strings.Contains(stderr.String(), "Unknown command") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestSession_Interactive(t *testing.T) {
	t.Parallel()

	srv := startTestServer(t)
	info, err := srv.ConnectionInfo("test")
	if err != nil {
		t.Fatal(err)
	}
	client, err := dial(t, srv, string(info.Token))
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer client.Close()

	sess, err := client.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()
	sess.Stdin = strings.NewReader("net\nexit\n")
	var out bytes.Buffer
	sess.Stdout = &out
	if err := sess.Shell(); err != nil {
		t.Fatal(err)
	}
	if err := sess.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !strings.Contains(out.String(), "h1 h1-eth0:s1-eth1") {
		t.Errorf("output = %q", out.String())
	}
}

func TestSession_RejectsBadToken(t *testing.T) {
	t.Parallel()

	srv := startTestServer(t)
	if _, err := dial(t, srv, "not-a-token"); err == nil {
		t.Error("dial with a bad token should fail")
	}
}
