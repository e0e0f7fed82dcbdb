package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/jwchen/keeper/internal/database"
)

// SourceQuota reports rate limiter usage per price source.
type SourceQuota interface {
	InFlight(key string) int
}

// SystemHandlers serves process and host health endpoints.
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	ledgerDB    *database.DB
	cacheDB     *database.DB
	quota       SourceQuota
	sourceIDs   []string
}

// NewSystemHandlers creates a new system handlers instance. quota may be nil,
// in which case per-source call counts are omitted from the status payload.
func NewSystemHandlers(log zerolog.Logger, dataDir string, ledgerDB, cacheDB *database.DB, quota SourceQuota, sourceIDs []string) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		ledgerDB:    ledgerDB,
		cacheDB:     cacheDB,
		quota:       quota,
		sourceIDs:   sourceIDs,
	}
}

// SystemStatusResponse is the payload for GET /api/system/status.
type SystemStatusResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	RAMPercent    float64 `json:"ram_percent"`
	DataDirMB     float64 `json:"data_dir_mb"`

	// Calls recorded in the current rate limit window, per price source.
	SourceCalls map[string]int `json:"source_calls,omitempty"`
}

// HandleSystemStatus returns uptime plus host CPU/RAM usage.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPct, ramPct := h.getSystemStats()

	resp := SystemStatusResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(h.startupTime).Seconds(),
		CPUPercent:    cpuPct,
		RAMPercent:    ramPct,
		DataDirMB:     h.getDirSize(h.dataDir),
	}
	if h.quota != nil {
		resp.SourceCalls = make(map[string]int, len(h.sourceIDs))
		for _, id := range h.sourceIDs {
			resp.SourceCalls[id] = h.quota.InFlight(id)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode system status")
	}
}

// DatabaseStatsResponse is the payload for GET /api/system/databases.
type DatabaseStatsResponse struct {
	LedgerPath   string  `json:"ledger_path"`
	LedgerSizeMB float64 `json:"ledger_size_mb"`
	CachePath    string  `json:"cache_path"`
	CacheSizeMB  float64 `json:"cache_size_mb"`
}

// HandleDatabaseStats returns on-disk sizes of the databases.
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	resp := DatabaseStatsResponse{}
	if h.ledgerDB != nil {
		resp.LedgerPath = h.ledgerDB.Path()
		resp.LedgerSizeMB = fileSizeMB(h.ledgerDB.Path())
	}
	if h.cacheDB != nil {
		resp.CachePath = h.cacheDB.Path()
		resp.CacheSizeMB = fileSizeMB(h.cacheDB.Path())
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode database stats")
	}
}

// getSystemStats calculates CPU and RAM usage percentages. The CPU sample
// uses a 100ms interval so the endpoint stays responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

// getDirSize calculates total size of a directory in MB.
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

func fileSizeMB(path string) float64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return float64(info.Size()) / 1024 / 1024
}
