package cache

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// respServer is a tiny in-process RESP endpoint supporting the commands the provider issues.
type respServer struct {
	ln       net.Listener
	mu       sync.Mutex
	store    map[string]string
	expiries map[string]int64
	commands []string
	password string
}

func newRESPServer(t *testing.T) *respServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &respServer{ln: ln, store: map[string]string{}, expiries: map[string]int64{}}
	go s.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *respServer) addr() string { return s.ln.Addr().String() }

func (s *respServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *respServer) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		if _, err := io.WriteString(conn, s.exec(args)); err != nil {
			return
		}
	}
}

func readCommand(r *bufio.Reader) ([]string, error) {
	header, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	count, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(header, "*")))
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, count)
	for i := 0; i < count; i++ {
		sizeLine, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(sizeLine, "$")))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func (s *respServer) exec(args []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, strings.Join(args, " "))

	switch strings.ToUpper(args[0]) {
	case "PING":
		return "+PONG\r\n"
	case "AUTH":
		if args[len(args)-1] != s.password {
			return "-WRONGPASS invalid password\r\n"
		}
		return "+OK\r\n"
	case "SELECT":
		return "+OK\r\n"
	case "GET":
		v, ok := s.store[args[1]]
		if !ok {
			return "$-1\r\n"
		}
		return fmt.Sprintf("$%d\r\n%s\r\n", len(v), v)
	case "SET":
		nx := strings.EqualFold(args[len(args)-1], "NX")
		if _, exists := s.store[args[1]]; nx && exists {
			return "$-1\r\n"
		}
		s.store[args[1]] = args[2]
		return "+OK\r\n"
	case "INCR":
		n, _ := strconv.ParseInt(s.store[args[1]], 10, 64)
		n++
		s.store[args[1]] = strconv.FormatInt(n, 10)
		return fmt.Sprintf(":%d\r\n", n)
	case "PEXPIRE":
		ms, _ := strconv.ParseInt(args[2], 10, 64)
		s.expiries[args[1]] = ms
		return ":1\r\n"
	case "DEL":
		delete(s.store, args[1])
		return ":1\r\n"
	default:
		return "-ERR unknown command\r\n"
	}
}

func (s *respServer) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func TestValkeyProviderRoundTrip(t *testing.T) {
	srv := newRESPServer(t)
	provider, err := NewValkeyProvider(ValkeyConfig{Addr: srv.addr()})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = provider.Get(ctx, "relay:incident:abc")
	assert.ErrorIs(t, err, ErrCacheMiss)

	stored, err := provider.SetNX(ctx, "relay:incident:abc", []byte(`{"key":"OPS-1"}`), time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)
	stored, err = provider.SetNX(ctx, "relay:incident:abc", []byte(`{"key":"OPS-2"}`), time.Minute)
	require.NoError(t, err)
	assert.False(t, stored, "second SetNX must not overwrite")

	value, err := provider.Get(ctx, "relay:incident:abc")
	require.NoError(t, err)
	assert.Equal(t, `{"key":"OPS-1"}`, string(value))

	found := false
	for _, cmd := range srv.sent() {
		if strings.HasPrefix(cmd, "SET relay:incident:abc") && strings.HasSuffix(cmd, "PX 60000 NX") {
			found = true
		}
	}
	assert.True(t, found, "expected SET ... PX 60000 NX, got %v", srv.sent())
}

func TestValkeyProviderIncrExpiresOnCreateOnly(t *testing.T) {
	srv := newRESPServer(t)
	provider, err := NewValkeyProvider(ValkeyConfig{Addr: srv.addr()})
	require.NoError(t, err)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := provider.Incr(ctx, "relay:count:abc", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	pexpires := 0
	for _, cmd := range srv.sent() {
		if strings.HasPrefix(cmd, "PEXPIRE") {
			pexpires++
		}
	}
	assert.Equal(t, 1, pexpires)
}

func TestValkeyProviderDel(t *testing.T) {
	srv := newRESPServer(t)
	provider, err := NewValkeyProvider(ValkeyConfig{Addr: srv.addr()})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = provider.Incr(ctx, "relay:count:abc", time.Hour)
	require.NoError(t, err)
	require.NoError(t, provider.Del(ctx, "relay:count:abc"))

	n, err := provider.Incr(ctx, "relay:count:abc", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestValkeyProviderAuthFailure(t *testing.T) {
	srv := newRESPServer(t)
	srv.mu.Lock()
	srv.password = "correct"
	srv.mu.Unlock()

	_, err := NewValkeyProvider(ValkeyConfig{Addr: srv.addr(), Password: "wrong"})
	assert.Error(t, err)
	_, err = NewValkeyProvider(ValkeyConfig{Addr: srv.addr(), Password: "correct", DB: 2})
	assert.NoError(t, err)
}

func TestValkeyProviderRequiresAddr(t *testing.T) {
	_, err := NewValkeyProvider(ValkeyConfig{})
	assert.Error(t, err)
}

func TestMemoryProviderSetNXAndIncr(t *testing.T) {
	p := NewMemoryProvider(nil)
	ctx := context.Background()

	ok, _ := p.SetNX(ctx, "k", []byte("v1"), time.Minute)
	assert.True(t, ok)
	ok, _ = p.SetNX(ctx, "k", []byte("v2"), time.Minute)
	assert.False(t, ok)

	v, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(v))

	n, _ := p.Incr(ctx, "c", 0)
	assert.Equal(t, int64(1), n)

	require.NoError(t, p.Del(ctx, "k"))
	_, err = p.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestBadgerProviderInMemory(t *testing.T) {
	p, err := NewBadgerProvider(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	defer p.Close()
	ctx := context.Background()

	_, err = p.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	ok, err := p.SetNX(ctx, "relay:incident:fp", []byte("OPS-9"), time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = p.SetNX(ctx, "relay:incident:fp", []byte("OPS-10"), time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := p.Get(ctx, "relay:incident:fp")
	require.NoError(t, err)
	assert.Equal(t, "OPS-9", string(v))

	for want := int64(1); want <= 2; want++ {
		n, err := p.Incr(ctx, "relay:count:fp", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
}

func TestBadgerProviderRequiresPath(t *testing.T) {
	_, err := NewBadgerProvider(BadgerConfig{})
	assert.Error(t, err)
}

func TestNoopProviderAlwaysMisses(t *testing.T) {
	var p Provider = NoopProvider{}
	ctx := context.Background()
	_ = p.Set(ctx, "k", []byte("v"), 0)
	_, err := p.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
