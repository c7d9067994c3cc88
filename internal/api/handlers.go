package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

func (h *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type cpuStats struct {
	NumCPU      int     `json:"num_cpu"`
	UsedPercent float64 `json:"used_percent"`
}

type memStats struct {
	TotalMB     float64 `json:"total_mb"`
	UsedMB      float64 `json:"used_mb"`
	UsedPercent float64 `json:"used_percent"`
}

type statsResponse struct {
	UptimeSeconds int64    `json:"uptime_seconds"`
	CacheEntries  int      `json:"cache_entries"`
	CPU           cpuStats `json:"cpu"`
	Memory        memStats `json:"memory"`
}

// stats reports process uptime and host resource usage alongside the
// cache entry count, following the teacher's handlers.Health/Stats split —
// /healthz is a pure liveness probe, /stats carries the gopsutil-backed
// runtime numbers.
func (h *Server) stats(c *gin.Context) {
	resp := statsResponse{
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		CPU:           cpuStats{NumCPU: runtime.NumCPU()},
	}

	if h.Cache != nil {
		resp.CacheEntries = h.Cache.Len()
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		resp.Memory = memStats{
			TotalMB:     float64(vm.Total) / 1024 / 1024,
			UsedMB:      float64(vm.Used) / 1024 / 1024,
			UsedPercent: vm.UsedPercent,
		}
	}
	if pct, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(pct) > 0 {
		resp.CPU.UsedPercent = pct[0]
	}

	c.JSON(http.StatusOK, resp)
}

// cacheDump reports every host-cache entry's name and expiry; the cached
// records themselves are not included.
func (h *Server) cacheDump(c *gin.Context) {
	if h.Cache == nil {
		c.JSON(http.StatusOK, gin.H{"entries": gin.H{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": h.Cache.Snapshot()})
}

// routesDump reports the ingress_clients and local_clients maps built at
// startup.
func (h *Server) routesDump(c *gin.Context) {
	if h.Routes == nil {
		c.JSON(http.StatusOK, gin.H{"ingress_clients": gin.H{}, "local_clients": gin.H{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ingress_clients": h.Routes.IngressHosts(),
		"local_clients":   h.Routes.LocalHosts(),
	})
}

// certsDump reports which SNI hostnames have a cached destination cert —
// never the key material itself.
func (h *Server) certsDump(c *gin.Context) {
	if h.Certs == nil {
		c.JSON(http.StatusOK, gin.H{"hosts": []string{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"hosts": h.Certs.Hosts()})
}
