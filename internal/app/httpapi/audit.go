package httpapi

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"
)

// defaultAuditDepth is how many entries each mess keeps in memory.
const defaultAuditDepth = 500

// auditEntry records one mutating request made by an authenticated caller.
type auditEntry struct {
	Time       time.Time `json:"time"`
	RequestID  string    `json:"requestId,omitempty"`
	User       string    `json:"user"`
	Role       string    `json:"role"`
	FacilityID string    `json:"facilityId"`
	MessID     string    `json:"messId"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	RemoteAddr string    `json:"remoteAddr,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
}

type tenantKey struct{ facilityID, messID string }

// auditTrail keeps a bounded history per mess so a busy mess never evicts
// another mess's entries. Entries are optionally mirrored to a journal.
type auditTrail struct {
	mu      sync.Mutex
	depth   int
	byMess  map[tenantKey][]auditEntry
	journal func(auditEntry) error
	onError func(error)
}

func newAuditTrail(depth int, journal func(auditEntry) error, onError func(error)) *auditTrail {
	if depth <= 0 {
		depth = defaultAuditDepth
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &auditTrail{depth: depth, byMess: make(map[tenantKey][]auditEntry), journal: journal, onError: onError}
}

func (t *auditTrail) record(e auditEntry) {
	k := tenantKey{e.FacilityID, e.MessID}
	t.mu.Lock()
	list := append(t.byMess[k], e)
	if over := len(list) - t.depth; over > 0 {
		list = append(list[:0:0], list[over:]...)
	}
	t.byMess[k] = list
	t.mu.Unlock()

	if t.journal != nil {
		if err := t.journal(e); err != nil {
			t.onError(err)
		}
	}
}

// recent returns up to limit entries of one mess, newest first.
func (t *auditTrail) recent(facilityID, messID string, limit int) []auditEntry {
	if limit <= 0 || limit > t.depth {
		limit = t.depth
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.byMess[tenantKey{facilityID, messID}]
	if limit > len(list) {
		limit = len(list)
	}
	out := make([]auditEntry, 0, limit)
	for i := len(list) - 1; len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out
}

// auditJournal appends entries to a file, one JSON object per line. It is
// registered with the application lifecycle so the file is closed on stop.
type auditJournal struct {
	mu  sync.Mutex
	enc *json.Encoder
	f   *os.File
}

func openAuditJournal(path string) (*auditJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	return &auditJournal{enc: json.NewEncoder(f), f: f}, nil
}

func (j *auditJournal) append(e auditEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return os.ErrClosed
	}
	return j.enc.Encode(e)
}

func (j *auditJournal) Name() string                { return "audit-journal" }
func (j *auditJournal) Start(context.Context) error { return nil }

func (j *auditJournal) Stop(context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return nil
	}
	err := j.f.Close()
	j.f = nil
	return err
}
