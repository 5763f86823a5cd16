package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/creator-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/creator-escrow/internal/dto"
	"github.com/ignatzorin/creator-escrow/internal/http/handlers/common"
	"github.com/ignatzorin/creator-escrow/internal/logger"
	"github.com/ignatzorin/creator-escrow/internal/models"
	"github.com/ignatzorin/creator-escrow/internal/pkg/apperror"
	"github.com/ignatzorin/creator-escrow/internal/service"
	"github.com/ignatzorin/creator-escrow/internal/storage"
	"github.com/ignatzorin/creator-escrow/internal/validation"
)

// ArtifactStore файловое хранилище артефактов сдачи.
type ArtifactStore interface {
	Save(ctx context.Context, bookingID uuid.UUID, originalName string, r io.Reader) (storage.StoredFile, error)
	Delete(ctx context.Context, relativePath string) error
	MaxUploadBytes() int64
}

// BookingHandler обслуживает жизненный цикл бронирования.
type BookingHandler struct {
	bookings  *service.BookingService
	artifacts ArtifactStore
	publicURL string
}

// NewBookingHandler создаёт хэндлер. publicURL префикс, под которым раздаются файлы артефактов.
func NewBookingHandler(bookings *service.BookingService, artifacts ArtifactStore, publicURL string) *BookingHandler {
	return &BookingHandler{
		bookings:  bookings,
		artifacts: artifacts,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// Create POST /api/bookings
func (h *BookingHandler) Create(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	var req dto.CheckoutRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.RespondError(c, err)
		return
	}

	serviceID, err := uuid.Parse(req.ServiceID)
	if err != nil {
		common.RespondError(c, apperror.New(apperror.ErrCodeValidation, "неверный service_id"))
		return
	}

	result, err := h.bookings.CreateBooking(c.Request.Context(), actor, service.CheckoutInput{
		ServiceID:     serviceID,
		Network:       req.Network,
		TxRef:         req.TxRef,
		SenderAddress: req.SenderAddress,
		Amount:        req.Amount,
	})
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// ListMine GET /api/bookings/my
func (h *BookingHandler) ListMine(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	var status *valueobject.BookingStatus
	if raw := common.OptionalQuery(c, "status"); raw != nil {
		s, err := valueobject.NewBookingStatus(*raw)
		if err != nil {
			common.RespondError(c, apperror.Wrap(err, apperror.ErrCodeValidation, "неверный статус"))
			return
		}
		status = &s
	}

	limit, offset := common.GetPagination(c)
	bookings, err := h.bookings.ListMine(c.Request.Context(), actor, status, limit, offset)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	common.RespondList(c, bookings, limit, offset)
}

// Get GET /api/bookings/:id
func (h *BookingHandler) Get(c *gin.Context) {
	actor, bookingID, ok := actorAndID(c)
	if !ok {
		return
	}

	details, err := h.bookings.Get(c.Request.Context(), actor, bookingID)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, details)
}

// History GET /api/bookings/:id/history
func (h *BookingHandler) History(c *gin.Context) {
	actor, bookingID, ok := actorAndID(c)
	if !ok {
		return
	}

	history, err := h.bookings.History(c.Request.Context(), actor, bookingID)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": history})
}

// Start POST /api/bookings/:id/start
func (h *BookingHandler) Start(c *gin.Context) {
	actor, bookingID, ok := actorAndID(c)
	if !ok {
		return
	}

	booking, err := h.bookings.StartWork(c.Request.Context(), actor, bookingID)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// Deliver POST /api/bookings/:id/deliver
// Принимает multipart (links, files) или JSON {"links": [...]}.
func (h *BookingHandler) Deliver(c *gin.Context) {
	actor, bookingID, ok := actorAndID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var in service.DeliveryInput

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := h.bookings.AuthorizeDelivery(ctx, actor, bookingID); err != nil {
			common.RespondError(c, err)
			return
		}
		form, err := c.MultipartForm()
		if err != nil {
			common.RespondError(c, apperror.Wrap(err, apperror.ErrCodeValidation, "некорректная multipart форма"))
			return
		}
		in.Links = nonEmpty(form.Value["links"])

		headers := form.File["files"]
		if len(headers) > validation.MaxArtifactFiles {
			common.RespondError(c, apperror.Newf(apperror.ErrCodeValidation, "не больше %d файлов", validation.MaxArtifactFiles))
			return
		}

		files, err := h.saveFiles(ctx, bookingID, headers)
		if err != nil {
			common.RespondError(c, err)
			return
		}
		in.Files = files
	} else {
		var req struct {
			Links []string `json:"links"`
		}
		if err := common.BindJSON(c, &req); err != nil {
			common.RespondError(c, err)
			return
		}
		in.Links = nonEmpty(req.Links)
	}

	booking, err := h.bookings.Deliver(ctx, actor, bookingID, in)
	if err != nil {
		h.discard(ctx, in.Files)
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// Accept POST /api/bookings/:id/accept
func (h *BookingHandler) Accept(c *gin.Context) {
	actor, bookingID, ok := actorAndID(c)
	if !ok {
		return
	}

	booking, err := h.bookings.Accept(c.Request.Context(), actor, bookingID)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// Reject POST /api/bookings/:id/reject
func (h *BookingHandler) Reject(c *gin.Context) {
	actor, bookingID, ok := actorAndID(c)
	if !ok {
		return
	}

	var req dto.RejectBookingRequest
	if c.Request.ContentLength != 0 {
		if err := common.BindJSON(c, &req); err != nil {
			common.RespondError(c, err)
			return
		}
	}

	booking, err := h.bookings.RejectByCreator(c.Request.Context(), actor, bookingID, req.Reason)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// ConfirmPayment POST /api/admin/bookings/:id/confirm-payment
func (h *BookingHandler) ConfirmPayment(c *gin.Context) {
	actor, bookingID, ok := actorAndID(c)
	if !ok {
		return
	}

	booking, err := h.bookings.ConfirmPayment(c.Request.Context(), actor, bookingID)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

func (h *BookingHandler) saveFiles(ctx context.Context, bookingID uuid.UUID, headers []*multipart.FileHeader) ([]service.ArtifactFile, error) {
	files := make([]service.ArtifactFile, 0, len(headers))
	for _, header := range headers {
		if header.Size > h.artifacts.MaxUploadBytes() {
			h.discard(ctx, files)
			return nil, apperror.Newf(apperror.ErrCodeValidation, "файл %s больше допустимого размера", header.Filename)
		}

		stored, err := h.saveOne(ctx, bookingID, header)
		if err != nil {
			h.discard(ctx, files)
			return nil, err
		}

		files = append(files, service.ArtifactFile{
			URI:      h.publicURL + "/" + stored.Path,
			MimeType: stored.MimeType,
			Size:     stored.Size,
		})
	}
	return files, nil
}

func (h *BookingHandler) saveOne(ctx context.Context, bookingID uuid.UUID, header *multipart.FileHeader) (storage.StoredFile, error) {
	src, err := header.Open()
	if err != nil {
		return storage.StoredFile{}, apperror.Wrap(err, apperror.ErrCodeValidation, "не удалось прочитать файл")
	}
	defer src.Close()

	stored, err := h.artifacts.Save(ctx, bookingID, header.Filename, src)
	switch {
	case errors.Is(err, storage.ErrUnsupportedType):
		return storage.StoredFile{}, apperror.Newf(apperror.ErrCodeValidation, "тип файла %s не поддерживается", header.Filename)
	case errors.Is(err, storage.ErrTooLarge):
		return storage.StoredFile{}, apperror.Newf(apperror.ErrCodeValidation, "файл %s больше допустимого размера", header.Filename)
	case err != nil:
		return storage.StoredFile{}, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось сохранить файл")
	}
	return stored, nil
}

// discard удаляет файлы, сохранённые до отказа в сдаче.
func (h *BookingHandler) discard(ctx context.Context, files []service.ArtifactFile) {
	for _, f := range files {
		rel := strings.TrimPrefix(strings.TrimPrefix(f.URI, h.publicURL), "/")
		if err := h.artifacts.Delete(context.WithoutCancel(ctx), rel); err != nil {
			logger.WithFields(logrus.Fields{"path": rel, "error": err.Error()}).Warn("failed to discard artifact file")
		}
	}
}

// actorAndID пишет ответ об ошибке сам и возвращает ok=false.
func actorAndID(c *gin.Context) (models.Actor, uuid.UUID, bool) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.RespondError(c, err)
		return models.Actor{}, uuid.Nil, false
	}
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return models.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
