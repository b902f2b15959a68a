package campaigns

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"membergate/entity"
	"membergate/lib/api/cont"
	"membergate/lib/api/response"
	"membergate/lib/sl"
)

type Core interface {
	CreateCampaignLink(link *entity.CampaignLink) error
	ListCampaignLinks(chatId int64) ([]*entity.CampaignLink, error)
}

// Register maps an invite link to a campaign label for a chat.
func Register(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log, chatId, ok := prepare(logger, w, r, handler == nil)
		if !ok {
			return
		}

		link := &entity.CampaignLink{}
		if err := render.Bind(r, link); err != nil {
			log.Warn("invalid campaign link", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}
		link.Id = uuid.NewString()
		link.ChatId = chatId
		link.CreatedBy = cont.GetClient(r.Context()).TelegramId

		if err := handler.CreateCampaignLink(link); err != nil {
			log.Error("register campaign", sl.Err(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Request failed: %v", err)))
			return
		}
		log.With(slog.String("label", link.Label)).Info("campaign link registered")

		render.JSON(w, r, response.Ok(link))
	}
}

// List serves the campaign links registered for a chat, newest first.
func List(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log, chatId, ok := prepare(logger, w, r, handler == nil)
		if !ok {
			return
		}

		links, err := handler.ListCampaignLinks(chatId)
		if err != nil {
			log.Error("list campaigns", sl.Err(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Request failed: %v", err)))
			return
		}

		render.JSON(w, r, response.Ok(links))
	}
}

func prepare(logger *slog.Logger, w http.ResponseWriter, r *http.Request, unavailable bool) (*slog.Logger, int64, bool) {
	mod := sl.Module("http.handlers.campaigns")
	chatParam := chi.URLParam(r, "chatId")

	log := logger.With(
		mod,
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("chat_id", chatParam),
	)

	if unavailable {
		log.Error("campaign service not available")
		render.JSON(w, r, response.Error("Campaigns not available"))
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
