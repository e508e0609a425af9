package admin

import (
	"encoding/csv"
	"io"
	"strconv"
	"sync"
)

// accessLogCap bounds the retained entries; older ones fall off.
const accessLogCap = 200

// AccessEntry is one recorded request.
type AccessEntry struct {
	At       string `json:"at"`
	RemoteIP string `json:"remote_ip"`
	Method   string `json:"method"`
	Path     string `json:"path"`
	Status   int    `json:"status"`
}

// AccessLog is a fixed-size ring of recent requests.
type AccessLog struct {
	mu      sync.Mutex
	entries []AccessEntry
	next    int
	full    bool
}

func NewAccessLog() *AccessLog {
	return &AccessLog{entries: make([]AccessEntry, accessLogCap)}
}

// Record appends one request, overwriting the oldest when full.
func (l *AccessLog) Record(at, remoteIP, method, path string, status int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = AccessEntry{At: at, RemoteIP: remoteIP, Method: method, Path: path, Status: status}
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
}

// Snapshot returns the retained entries, oldest first.
func (l *AccessLog) Snapshot() []AccessEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.full {
		out := make([]AccessEntry, l.next)
		copy(out, l.entries[:l.next])
		return out
	}
	out := make([]AccessEntry, 0, len(l.entries))
	out = append(out, l.entries[l.next:]...)
	out = append(out, l.entries[:l.next]...)
	return out
}

// WriteCSV streams the retained entries as CSV with a header row.
func (l *AccessLog) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"at", "remote_ip", "method", "path", "status"}); err != nil {
		return err
	}
	for _, e := range l.Snapshot() {
		if err := cw.Write([]string{e.At, e.RemoteIP, e.Method, e.Path, strconv.Itoa(e.Status)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
