package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/bondesk/pnl-ledger/internal/logger"
	"github.com/bondesk/pnl-ledger/internal/model"
	"github.com/bytedance/sonic"
)

const _tradeHistoryLimitDefault = 100

// Ledger is the read-only query surface the dashboard and reporting tools
// consume. All reads reflect the latest committed state.
type Ledger interface {
	ListPositions(ctx context.Context) ([]model.Position, error)
	TradeHistory(ctx context.Context, limit int) ([]model.Trade, error)
	DailyPnLHistory(ctx context.Context) ([]model.DailySummary, error)
	PositionSummary(ctx context.Context, asOf time.Time) ([]model.SummaryRow, error)
}

type Handler struct {
	ledger Ledger
	logger logger.Logger
}

func NewHandler(ledger Ledger, logger logger.Logger) *Handler {
	return &Handler{
		ledger: ledger,
		logger: logger,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /positions", h.positions)
	mux.HandleFunc("GET /positions/summary", h.summary)
	mux.HandleFunc("GET /trades", h.trades)
	mux.HandleFunc("GET /pnl/daily", h.dailyPnL)
	return mux
}

type positionResponse struct {
	Instrument    string  `json:"instrument"`
	AssetClass    string  `json:"asset_class"`
	Quantity      float64 `json:"quantity"`
	AvgCost       float64 `json:"avg_cost"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	LastPrice     float64 `json:"last_price"`
	PriceStale    bool    `json:"price_stale"`
	TradingDay    string  `json:"trading_day"`
	UpdatedAt     string  `json:"updated_at"`
}

func toPositionResponse(p model.Position) positionResponse {
	return positionResponse{
		Instrument:    p.Instrument,
		AssetClass:    string(p.AssetClass),
		Quantity:      p.Quantity,
		AvgCost:       p.AvgCost,
		RealizedPnL:   p.RealizedPnL,
		UnrealizedPnL: p.UnrealizedPnL,
		LastPrice:     p.LastPrice,
		PriceStale:    p.PriceStale,
		TradingDay:    p.TradingDay.Format("2006-01-02"),
		UpdatedAt:     p.UpdatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) positions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.ledger.ListPositions(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, toPositionResponse(p))
	}
	h.writeJSON(w, out)
}

type summaryResponse struct {
	positionResponse
	SODRealizedPnL   float64 `json:"sod_realized_pnl"`
	SODUnrealizedPnL float64 `json:"sod_unrealized_pnl"`
	IntradayPnL      float64 `json:"intraday_pnl"`
	AsOf             string  `json:"as_of"`
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "bad as_of, want RFC3339", http.StatusBadRequest)
			return
		}
		asOf = ts
	}

	rows, err := h.ledger.PositionSummary(r.Context(), asOf)
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]summaryResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, summaryResponse{
			positionResponse: toPositionResponse(row.Position),
			SODRealizedPnL:   row.SODRealizedPnL,
			SODUnrealizedPnL: row.SODUnrealizedPnL,
			IntradayPnL:      row.IntradayPnL,
			AsOf:             row.AsOf.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, out)
}

type tradeResponse struct {
	TradeID    string  `json:"trade_id"`
	Instrument string  `json:"instrument"`
	AssetClass string  `json:"asset_class"`
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price"`
	MarketTime string  `json:"market_time"`
	TradingDay string  `json:"trading_day"`
	Kind       string  `json:"kind"`
	SourceFile string  `json:"source_file"`
}

func (h *Handler) trades(w http.ResponseWriter, r *http.Request) {
	limit := _tradeHistoryLimitDefault
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	trades, err := h.ledger.TradeHistory(r.Context(), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]tradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, tradeResponse{
			TradeID:    t.ID,
			Instrument: t.Instrument,
			AssetClass: string(t.AssetClass),
			Quantity:   t.Quantity,
			Price:      t.Price,
			MarketTime: t.MarketTime.Format(time.RFC3339),
			TradingDay: t.TradingDay.Format("2006-01-02"),
			Kind:       string(t.Kind),
			SourceFile: t.SourceFile,
		})
	}
	h.writeJSON(w, out)
}

type dailyPnLResponse struct {
	Instrument    string  `json:"instrument"`
	TradingDay    string  `json:"trading_day"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Quantity      float64 `json:"quantity"`
}

func (h *Handler) dailyPnL(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.ledger.DailyPnLHistory(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]dailyPnLResponse, 0, len(summaries))
	for _, d := range summaries {
		out = append(out, dailyPnLResponse{
			Instrument:    d.Instrument,
			TradingDay:    d.TradingDay.Format("2006-01-02"),
			RealizedPnL:   d.RealizedPnL,
			UnrealizedPnL: d.UnrealizedPnL,
			Quantity:      d.Quantity,
		})
	}
	h.writeJSON(w, out)
}

func (h *Handler) writeJSON(w http.ResponseWriter, v interface{}) {
	body, err := sonic.Marshal(v)
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(body); err != nil {
		h.logger.Errorf("%s: can't write response", err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	h.logger.Errorf("%s: query failed", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
