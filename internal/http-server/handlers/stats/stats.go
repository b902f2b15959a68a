package stats

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"membergate/entity"
	"membergate/lib/api/response"
	"membergate/lib/sl"
)

const (
	defaultDays  = 7
	maxDays      = 90
	defaultLimit = 10
	maxLimit     = 50
)

type Core interface {
	GetLastDays(chatId int64, days int) ([]*entity.DayStat, error)
	TopCampaigns(chatId int64, since time.Time, limit int64) ([]*entity.CampaignCount, error)
}

// Days serves the daily join/leave series for a chat, newest day first.
func Days(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.stats")
		chatParam := chi.URLParam(r, "chatId")

		log := logger.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("chat_id", chatParam),
		)

		if handler == nil {
			log.Error("stats service not available")
			render.JSON(w, r, response.Error("Stats not available"))
			return
		}

		chatId, err := strconv.ParseInt(chatParam, 10, 64)
		if err != nil {
			log.Warn("invalid chat id")
			render.Status(r, 400)
			render.JSON(w, r, response.Error("Invalid chat id"))
			return
		}

		days := intQuery(r, "days", defaultDays, maxDays)

		series, err := handler.GetLastDays(chatId, days)
		if err != nil {
			log.Error("day stats", sl.Err(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Request failed: %v", err)))
			return
		}

		render.JSON(w, r, response.Ok(series))
	}
}

// TopCampaigns serves the campaign attribution leaders for a chat over
// the last `days` days.
func TopCampaigns(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.stats")
		chatParam := chi.URLParam(r, "chatId")

		log := logger.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("chat_id", chatParam),
		)

		if handler == nil {
			log.Error("stats service not available")
			render.JSON(w, r, response.Error("Stats not available"))
			return
		}

		chatId, err := strconv.ParseInt(chatParam, 10, 64)
		if err != nil {
			log.Warn("invalid chat id")
			render.Status(r, 400)
			render.JSON(w, r, response.Error("Invalid chat id"))
			return
		}

		days := intQuery(r, "days", 30, maxDays)
		limit := intQuery(r, "limit", defaultLimit, maxLimit)
		since := time.Now().AddDate(0, 0, -days)

		counts, err := handler.TopCampaigns(chatId, since, int64(limit))
		if err != nil {
			log.Error("top campaigns", sl.Err(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Request failed: %v", err)))
			return
		}

		render.JSON(w, r, response.Ok(counts))
	}
}

func intQuery(r *http.Request, name string, def, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return def
	}
	if value > max {
		return max
	}
	return value
}
