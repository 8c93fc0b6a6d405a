package httpapi

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/campusmess/messhall/internal/app/core"
)

func (h *handler) dashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	d, err := h.app.Analytics.Dashboard(r.Context(), caller(r), q.Get("from"), q.Get("to"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *handler) itemTrend(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.app.Analytics.ItemTrend(r.Context(), caller(r), pathVar(r, "id"), days)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// upload accepts one multipart "file" part.
func (h *handler) upload(w http.ResponseWriter, r *http.Request) {
	limit := h.app.Uploads.MaxSize()
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, core.NewValidationError("file", "a multipart file field is required"))
		return
	}
	defer file.Close()

	obj, err := h.app.Uploads.Upload(r.Context(), caller(r), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, obj)
}

func (h *handler) deleteUpload(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Uploads.Delete(r.Context(), caller(r), pathVar(r, "key")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) mealWindows(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"today":   h.app.Windows.Today(now),
		"windows": h.app.Windows.Snapshot(),
	})
}

func (h *handler) listAudit(w http.ResponseWriter, r *http.Request) {
	p := caller(r)
	if !p.IsAdmin() {
		h.fail(w, r, core.NewAccessDeniedError("audit", p.MessID, p.ID, "only mess admins may read the audit trail"))
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.audit.recent(p.FacilityID, p.MessID, limit))
}

type healthReport struct {
	Status     string    `json:"status"`
	Store      string    `json:"store"`
	Time       time.Time `json:"time"`
	Goroutines int       `json:"goroutines"`
	Memory     *memory   `json:"memory,omitempty"`
	Feed       feedStats `json:"liveFeed"`
}

type memory struct {
	TotalBytes     uint64  `json:"totalBytes"`
	AvailableBytes uint64  `json:"availableBytes"`
	UsedPercent    float64 `json:"usedPercent"`
	HeapBytes      uint64  `json:"heapBytes"`
}

type feedStats struct {
	Subscribers int   `json:"subscribers"`
	Dropped     int64 `json:"dropped"`
}

// health reports 503 while a backing store is unreachable. Host memory is
// informational.
func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	report := healthReport{
		Status:     "ok",
		Store:      "ok",
		Time:       time.Now().UTC(),
		Goroutines: runtime.NumGoroutine(),
		Feed:       feedStats{Subscribers: h.app.Feed.Subscribers(), Dropped: h.app.Feed.Dropped()},
	}
	status := http.StatusOK
	if err := h.app.Ping(ctx); err != nil {
		h.log.WithError(err).Warn("health check: store unreachable")
		report.Status, report.Store = "degraded", "unreachable"
		status = http.StatusServiceUnavailable
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		report.Memory = &memory{
			TotalBytes:     vm.Total,
			AvailableBytes: vm.Available,
			UsedPercent:    vm.UsedPercent,
			HeapBytes:      ms.HeapAlloc,
		}
	} else {
		report.Memory = &memory{HeapBytes: ms.HeapAlloc}
	}
	writeJSON(w, status, report)
}
