package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/mcpgate/mcpgate/internal/serverstate"
)

type engineStats struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
}

type statusResponse struct {
	Status     string       `json:"status"`
	Generation uint64       `json:"generation"`
	PID        int          `json:"pid,omitempty"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	UptimeSec  float64      `json:"uptime_sec,omitempty"`
	Engine     *engineStats `json:"engine,omitempty"`
	WSClients  int          `json:"ws_clients"`
}

// statusHandler reports gateway and engine-process health.
func (s *Server) statusHandler(w http.ResponseWriter, req *http.Request) {
	st := serverstate.Get()
	resp := statusResponse{
		Status:     st.Status,
		Generation: st.Generation,
		PID:        st.PID,
		WSClients:  s.notifier.Count(),
	}
	if !st.StartedAt.IsZero() {
		t := st.StartedAt
		resp.StartedAt = &t
		resp.UptimeSec = time.Since(t).Seconds()
	}
	if st.PID > 0 {
		if p, err := process.NewProcess(int32(st.PID)); err == nil {
			stats := engineStats{}
			if cpu, err := p.CPUPercent(); err == nil {
				stats.CPUPercent = cpu
			}
			if mem, err := p.MemoryInfo(); err == nil && mem != nil {
				stats.RSSBytes = mem.RSS
			}
			resp.Engine = &stats
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
