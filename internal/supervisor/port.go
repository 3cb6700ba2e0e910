package supervisor

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrPortNegotiation means neither the desired port nor an OS-assigned one
// could be test-bound.
var ErrPortNegotiation = errors.New("port negotiation failed")

// settleDelay gives the OS time to tear the test socket down before the
// server binds the same port; without it the server can race the close.
const settleDelay = 100 * time.Millisecond

// NegotiatePort tries the desired port first and falls back to an
// OS-assigned free one. Test binds target the loopback interface
// explicitly: binding without a host can silently prefer a different
// address family and miss a real conflict on the address the server will
// actually use.
func NegotiatePort(desired int) (int, error) {
	if l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", desired)); err == nil {
		_ = l.Close()
		time.Sleep(settleDelay)
		return desired, nil
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPortNegotiation, err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	time.Sleep(settleDelay)
	return port, nil
}
