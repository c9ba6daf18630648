package stream

import "sync"

// globalStreamCap bounds concurrent SSE connections across all IPs.
const globalStreamCap = 1000

// connLimiter counts live SSE connections so one misbehaving client
// cannot hold every server slot.
type connLimiter struct {
	mu     sync.Mutex
	perIP  map[string]int
	active int
	ipCap  int
}

func newConnLimiter(ipCap int) *connLimiter {
	return &connLimiter{perIP: make(map[string]int), ipCap: ipCap}
}

// reserve claims a connection slot for ip. It reports false when either
// the per-IP or the global cap is already reached.
func (l *connLimiter) reserve(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.perIP[ip] >= l.ipCap || l.active >= globalStreamCap {
		return false
	}
	l.perIP[ip]++
	l.active++
	return true
}

// free returns a slot previously claimed with reserve.
func (l *connLimiter) free(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.active--
	if n := l.perIP[ip] - 1; n > 0 {
		l.perIP[ip] = n
	} else {
		delete(l.perIP, ip)
	}
}

// activeFor reports the live connection count for ip.
func (l *connLimiter) activeFor(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perIP[ip]
}
