package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/hynous/hynous-data/internal/domain"
	"github.com/hynous/hynous-data/internal/modules/heatmap"
	"github.com/hynous/hynous-data/internal/modules/hlp"
	"github.com/hynous/hynous-data/internal/modules/smartmoney"
	"github.com/hynous/hynous-data/internal/utils"
)

// healthChecker is the slice of the component surface the server reads.
type healthChecker interface {
	Name() string
	Healthy() bool
	Stats() map[string]interface{}
}

// activeComponents returns the enabled engines in a stable order.
func (s *Server) activeComponents() []healthChecker {
	c := s.components
	var out []healthChecker
	if c.Stream != nil {
		out = append(out, c.Stream)
	}
	if c.Poller != nil {
		out = append(out, c.Poller)
	}
	if c.HLP != nil {
		out = append(out, c.HLP)
	}
	if c.SmartMoney != nil {
		out = append(out, c.SmartMoney)
	}
	if c.Heatmap != nil {
		out = append(out, c.Heatmap)
	}
	return out
}

// handleHealth reports overall pipeline liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	for _, c := range s.activeComponents() {
		if !c.Healthy() {
			status = "degraded"
			break
		}
	}

	var discovered int64
	wsHealthy := false
	if s.components.Stream != nil {
		discovered = s.components.Stream.AddressesDiscovered()
		wsHealthy = s.components.Stream.Healthy()
	}

	positions, err := s.st.Positions.CountAll()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to count positions")
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":               status,
		"uptime_seconds":       int64(time.Since(s.startedAt).Seconds()),
		"addresses_discovered": discovered,
		"positions_tracked":    positions,
		"ws_healthy":           wsHealthy,
	})
}

type heatmapResponse struct {
	*heatmap.Heatmap
	DataAgeSeconds float64 `json:"data_age_seconds"`
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	if s.components.Heatmap == nil {
		s.writeError(w, http.StatusNotFound, "not_available")
		return
	}

	coin := chi.URLParam(r, "coin")
	hm, age, err := s.components.Heatmap.Get(coin)
	if err != nil {
		if errors.Is(err, domain.ErrNotAvailable) {
			s.writeError(w, http.StatusNotFound, "not_available")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, heatmapResponse{Heatmap: hm, DataAgeSeconds: age})
}

func (s *Server) handleHLPPositions(w http.ResponseWriter, r *http.Request) {
	positions := []domain.HLPSnapshot{}
	if s.components.HLP != nil {
		positions = s.components.HLP.Positions()
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"positions": positions,
		"count":     len(positions),
	})
}

func (s *Server) handleHLPSentiment(w http.ResponseWriter, r *http.Request) {
	if s.components.HLP == nil {
		s.writeError(w, http.StatusNotFound, "not_available")
		return
	}

	hours := utils.ClampInt(intQuery(r, "hours", 24), 1, 168)
	coins, err := s.components.HLP.Sentiment(hours)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to compute vault sentiment")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if coins == nil {
		coins = []hlp.CoinSentiment{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"hours": hours,
		"coins": coins,
	})
}

func (s *Server) handleOrderFlow(w http.ResponseWriter, r *http.Request) {
	if s.components.Flow == nil {
		s.writeError(w, http.StatusNotFound, "not_available")
		return
	}

	coin := chi.URLParam(r, "coin")
	s.writeJSON(w, http.StatusOK, s.components.Flow.Flows(coin))
}

func (s *Server) handleWhales(w http.ResponseWriter, r *http.Request) {
	if s.components.Whales == nil {
		s.writeError(w, http.StatusNotFound, "not_available")
		return
	}

	coin := chi.URLParam(r, "coin")
	report, err := s.components.Whales.Top(coin, intQuery(r, "top", 20))
	if err != nil {
		s.log.Error().Err(err).Str("coin", coin).Msg("Failed to rank whales")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSmartMoney(w http.ResponseWriter, r *http.Request) {
	if s.components.SmartMoney == nil {
		s.writeError(w, http.StatusNotFound, "not_available")
		return
	}

	filters := smartmoney.Filters{
		MinWinRate:  floatQuery(r, "min_win_rate", 0),
		Styles:      utils.ParseCSV(r.URL.Query().Get("styles")),
		ExcludeBots: boolQuery(r, "exclude_bots"),
		MinTrades:   intQuery(r, "min_trades", 0),
	}

	wallets, err := s.components.SmartMoney.Rankings(intQuery(r, "top", 20), filters)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to rank wallets")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if wallets == nil {
		wallets = []smartmoney.Ranking{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallets": wallets,
		"count":   len(wallets),
	})
}

func (s *Server) handleLiquidations(w http.ResponseWriter, r *http.Request) {
	coin := chi.URLParam(r, "coin")
	minutes := utils.ClampInt(intQuery(r, "minutes", 60), 1, 1440)

	events, err := s.st.Liquidations.RecentByCoin(coin, minutes)
	if err != nil {
		s.log.Error().Err(err).Str("coin", coin).Msg("Failed to query liquidations")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if events == nil {
		events = []domain.LiquidationEvent{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"coin":    coin,
		"minutes": minutes,
		"events":  events,
		"count":   len(events),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]interface{})
	for _, c := range s.activeComponents() {
		components[c.Name()] = c.Stats()
	}
	if s.components.Tracker != nil {
		components["change_tracker"] = s.components.Tracker.Stats()
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"rate_limiter": s.limiter.Stats(),
		"components":   components,
	})
}

func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
	}

	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		response["cpu_pct"] = pcts[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		response["memory"] = map[string]interface{}{
			"total_mb": vm.Total / 1024 / 1024,
			"used_mb":  vm.Used / 1024 / 1024,
			"used_pct": vm.UsedPercent,
		}
	}

	if dbStats, err := s.st.DB().GetStats(); err == nil {
		response["database"] = map[string]interface{}{
			"size_bytes":     dbStats.SizeBytes,
			"wal_size_bytes": dbStats.WALSizeBytes,
			"page_count":     dbStats.PageCount,
			"page_size":      dbStats.PageSize,
			"freelist_count": dbStats.FreelistCount,
		}
	} else {
		s.log.Error().Err(err).Msg("Failed to read database stats")
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleWatchlistList(w http.ResponseWriter, r *http.Request) {
	wallets, err := s.st.Watchlist.List()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list watchlist")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if wallets == nil {
		wallets = []domain.WatchedWallet{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallets": wallets,
		"count":   len(wallets),
	})
}

func (s *Server) handleWatchlistAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
		Label   string `json:"label"`
		Notes   string `json:"notes"`
		Tags    string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	addr, ok := utils.NormalizeAddress(req.Address)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	if err := s.st.Watchlist.Watch(addr, req.Label, req.Notes, req.Tags); err != nil {
		s.log.Error().Err(err).Str("address", addr).Msg("Failed to watch address")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if s.components.Tracker != nil {
		s.components.Tracker.SetWatched(addr, true)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": addr,
		"label":   req.Label,
		"notes":   req.Notes,
		"tags":    req.Tags,
		"active":  true,
	})
}

func (s *Server) handleWatchlistRemove(w http.ResponseWriter, r *http.Request) {
	addr, ok := utils.NormalizeAddress(chi.URLParam(r, "address"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	if err := s.st.Watchlist.Unwatch(addr); err != nil {
		s.log.Error().Err(err).Str("address", addr).Msg("Failed to unwatch address")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if s.components.Tracker != nil {
		s.components.Tracker.SetWatched(addr, false)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": addr,
		"active":  false,
	})
}

func (s *Server) handleWatchlistProfile(w http.ResponseWriter, r *http.Request) {
	addr, ok := utils.NormalizeAddress(chi.URLParam(r, "address"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	profile, err := s.st.Profiles.Get(addr)
	if err != nil {
		s.log.Error().Err(err).Str("address", addr).Msg("Failed to load profile")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if profile == nil {
		s.writeError(w, http.StatusNotFound, "not_available")
		return
	}

	s.writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleWatchlistChanges(w http.ResponseWriter, r *http.Request) {
	minutes := utils.ClampInt(intQuery(r, "minutes", 60), 1, 1440)

	events, err := s.st.Changes.Since(minutes)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to query change events")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if events == nil {
		events = []domain.ChangeEvent{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"minutes": minutes,
		"events":  events,
		"count":   len(events),
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}

func intQuery(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func floatQuery(r *http.Request, name string, def float64) float64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

func boolQuery(r *http.Request, name string) bool {
	raw := r.URL.Query().Get(name)
	return raw == "true" || raw == "1"
}
