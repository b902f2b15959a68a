package targets

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"membergate/entity"
	"membergate/lib/api/cont"
	"membergate/lib/api/response"
	"membergate/lib/sl"
)

type Core interface {
	ListTargets(chatId int64) ([]*entity.RequiredTarget, error)
	AddTarget(target *entity.RequiredTarget) error
	RemoveTarget(chatId int64, target string) error
	ClearTargets(chatId int64) error
}

// List serves the required targets of a chat; chat id 0 is the global set.
func List(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log, chatId, ok := prepare(logger, w, r, handler == nil)
		if !ok {
			return
		}

		list, err := handler.ListTargets(chatId)
		if err != nil {
			log.Error("list targets", sl.Err(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Request failed: %v", err)))
			return
		}

		render.JSON(w, r, response.Ok(list))
	}
}

// Add registers a required target for a chat. Re-adding the same target is
// idempotent.
func Add(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log, chatId, ok := prepare(logger, w, r, handler == nil)
		if !ok {
			return
		}

		target := &entity.RequiredTarget{}
		if err := render.Bind(r, target); err != nil {
			log.Warn("invalid target", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}
		target.ChatId = chatId
		target.AddedBy = cont.GetClient(r.Context()).TelegramId

		if err := handler.AddTarget(target); err != nil {
			log.Error("add target", sl.Err(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Request failed: %v", err)))
			return
		}
		log.With(slog.String("target", target.Target)).Info("target added")

		render.JSON(w, r, response.Ok(target))
	}
}

// Remove deletes one required target, or all of them when the body names
// no target.
func Remove(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log, chatId, ok := prepare(logger, w, r, handler == nil)
		if !ok {
			return
		}

		target := r.URL.Query().Get("target")
		if target == "" {
			if err := handler.ClearTargets(chatId); err != nil {
				log.Error("clear targets", sl.Err(err))
				render.JSON(w, r, response.Error(fmt.Sprintf("Request failed: %v", err)))
				return
			}
			log.Info("targets cleared")
			render.JSON(w, r, response.Ok(nil))
			return
		}

		if err := handler.RemoveTarget(chatId, target); err != nil {
			log.Error("remove target", sl.Err(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Request failed: %v", err)))
			return
		}
		log.With(slog.String("target", target)).Info("target removed")

		render.JSON(w, r, response.Ok(nil))
	}
}

func prepare(logger *slog.Logger, w http.ResponseWriter, r *http.Request, unavailable bool) (*slog.Logger, int64, bool) {
	mod := sl.Module("http.handlers.targets")
	chatParam := chi.URLParam(r, "chatId")

	log := logger.With(
		mod,
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("chat_id", chatParam),
	)

	if unavailable {
		log.Error("target service not available")
		render.JSON(w, r, response.Error("Targets not available"))
		return log, 0, false
	}

	chatId, err := strconv.ParseInt(chatParam, 10, 64)
	if err != nil {
		log.Warn("invalid chat id")
		render.Status(r, 400)
		render.JSON(w, r, response.Error("Invalid chat id"))
		return log, 0, false
	}

	return log, chatId, true
}
