package api

import (
	"fmt"
	"net"
	"strconv"
)

// findAvailablePort binds the first free TCP port in
// [basePort, basePort+maxAttempts) on host. The returned listener is
// already bound so the port cannot be lost to a race before serving.
func findAvailablePort(host string, basePort, maxAttempts int) (net.Listener, int, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		port := basePort + i
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			return ln, port, nil
		}
		lastErr = err
	}
	return nil, 0, fmt.Errorf("no free port in range %d-%d: %w",
		basePort, basePort+maxAttempts-1, lastErr)
}
