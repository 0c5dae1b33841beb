package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mmdatafocus/lessons_backend/config"
	"github.com/mmdatafocus/lessons_backend/models"
	"github.com/mmdatafocus/lessons_backend/utils"
	"github.com/mmdatafocus/lessons_backend/workflow"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultPort = "8080"

var tracer = otel.Tracer("lessons-settlement")

// Gateway event types this service consumes.
const (
	eventCheckoutCompleted = "checkout.completed"
	eventPayoutCreated     = "payout.created"
	eventPayoutPaid        = "payout.paid"
	eventPayoutFailed      = "payout.failed"
	eventPayoutCanceled    = "payout.canceled"
)

type gatewayEvent struct {
	ID        string `json:"id" binding:"required"`
	Type      string `json:"type" binding:"required,gateway_event"`
	CreatedAt string `json:"created_at"`
	Data      struct {
		BookingId   string `json:"booking_id"`
		CheckoutRef string `json:"checkout_ref"`
		ChargeRef   string `json:"charge_ref"`
		PayoutRef   string `json:"payout_ref"`
		ProfileId   string `json:"profile_id"`
	} `json:"data"`
}

func isGatewayEventType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case eventCheckoutCompleted, eventPayoutCreated, eventPayoutPaid, eventPayoutFailed, eventPayoutCanceled:
		return true
	}
	return false
}

// gatewayWebhookHandler absorbs at-least-once delivery from the payment
// gateway. A best-effort redis lock keeps duplicate deliveries from piling
// up on one booking/payout; reliability never depends on it — the workflows
// serialize safely via MySQL advisory locks and the unique checkout ref.
func gatewayWebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		redisLock := config.GetRedisLock()

		var event gatewayEvent
		if err := c.ShouldBindJSON(&event); err != nil {
			config.LogError(logger, "server.go", "gatewayWebhookHandler", "BindJSON", nil, err)
			// Malformed delivery: ack/drop to avoid infinite retries.
			c.Status(http.StatusNoContent)
			return
		}

		correlationId := uuid.NewString()
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), correlationId)
		ctx = utils.SetEventIdInContext(ctx, event.ID)

		ctx, span := tracer.Start(ctx, "gateway.webhook",
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("gateway.event_id", event.ID),
				attribute.String("gateway.event_type", event.Type),
			))
		defer span.End()

		lockKey := event.Data.BookingId
		if lockKey == "" {
			lockKey = event.Data.PayoutRef
		}
		var lock *redislock.Lock
		if redisLock != nil && lockKey != "" {
			var lockErr error
			lock, lockErr = redisLock.Obtain(ctx, fmt.Sprintf("lock:%s", lockKey), 30*time.Second, nil)
			if lockErr == redislock.ErrNotObtained {
				logger.WithFields(logrus.Fields{
					"event_id":   event.ID,
					"event_type": event.Type,
					"lock_key":   lockKey,
				}).Warn("could not obtain redis lock; proceeding without redis lock")
				lock = nil
			} else if lockErr != nil {
				logger.WithFields(logrus.Fields{
					"event_id": event.ID,
					"lock_key": lockKey,
				}).Warn("error obtaining redis lock; proceeding without redis lock: " + lockErr.Error())
				lock = nil
			}
		}
		defer func() {
			if lock == nil {
				return
			}
			if releaseErr := lock.Release(ctx); releaseErr != nil {
				logger.WithFields(logrus.Fields{
					"event_id": event.ID,
					"lock_key": lockKey,
				}).Warn("failed to release redis lock: " + releaseErr.Error())
			}
		}()

		db := config.GetDB()
		if db == nil {
			// Still starting up; a non-2xx tells the gateway to retry.
			c.Status(http.StatusServiceUnavailable)
			return
		}

		switch event.Type {
		case eventCheckoutCompleted:
			result, err := workflow.Settle(ctx, db, logger, event.Data.BookingId, event.Data.CheckoutRef, event.Data.ChargeRef)
			if err != nil {
				respondWorkflowError(c, logger, event, err)
				return
			}
			if !result.AlreadyProcessed {
				workflow.NotifyRecalculation(ctx, logger, result.RecalcEntry)
			}
			c.JSON(http.StatusOK, result)

		case eventPayoutCreated:
			if err := workflow.AttachPayout(ctx, db, logger, event.Data.ChargeRef, event.Data.ProfileId, event.Data.PayoutRef); err != nil {
				c.Status(http.StatusInternalServerError)
				return
			}
			c.Status(http.StatusOK)

		case eventPayoutPaid:
			if err := workflow.MarkPayoutPaid(ctx, db, logger, event.Data.PayoutRef, time.Now().UTC()); err != nil {
				c.Status(http.StatusInternalServerError)
				return
			}
			c.Status(http.StatusOK)

		case eventPayoutFailed, eventPayoutCanceled:
			reason := models.CompensationReasonFailed
			if event.Type == eventPayoutCanceled {
				reason = models.CompensationReasonCanceled
			}
			result, err := workflow.Compensate(ctx, db, logger, event.Data.PayoutRef, reason)
			if err != nil {
				respondWorkflowError(c, logger, event, err)
				return
			}
			if !result.AlreadyProcessed {
				workflow.NotifyRecalculation(ctx, logger, result.RecalcEntry)
			}
			c.JSON(http.StatusOK, result)
		}
	}
}

// respondWorkflowError maps the settlement error taxonomy onto retry
// semantics for the gateway: 422 stops redelivery of events that can never
// succeed, 503 asks for a backoff retry, anything else retries as 500.
func respondWorkflowError(c *gin.Context, logger *logrus.Logger, event gatewayEvent, err error) {
	fields := logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
	}
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound), errors.Is(err, utils.ErrorInvariantViolation):
		logger.WithFields(fields).Error("webhook processing failed permanently: " + err.Error())
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorContention):
		logger.WithFields(fields).Warn("webhook processing contended; gateway will retry: " + err.Error())
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		logger.WithFields(fields).Error("webhook processing failed: " + err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transient failure"})
	}
}

type settleRequest struct {
	BookingId   string `json:"booking_id" binding:"required"`
	CheckoutRef string `json:"checkout_ref" binding:"required"`
	ChargeRef   string `json:"charge_ref"`
}

// settleHandler is the direct inbound path from the booking domain, for
// completed bookings whose charge was confirmed out-of-band.
func settleHandler(c *gin.Context) {
	logger := config.GetLogger()

	var req settleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := utils.SetCorrelationIdInContext(c.Request.Context(), uuid.NewString())
	result, err := workflow.Settle(ctx, config.GetDB(), logger, req.BookingId, req.CheckoutRef, req.ChargeRef)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrorRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, utils.ErrorContention):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "retryable": true})
		case errors.Is(err, utils.ErrorInvariantViolation):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "transient failure"})
		}
		return
	}
	if !result.AlreadyProcessed {
		workflow.NotifyRecalculation(ctx, logger, result.RecalcEntry)
	}
	c.JSON(http.StatusOK, result)
}

type admitRequest struct {
	TutorId     string   `json:"tutor_id" binding:"required"`
	ClientId    string   `json:"client_id" binding:"required"`
	ServiceName string   `json:"service_name"`
	Subjects    []string `json:"subjects"`
}

func admitFreeSessionHandler(c *gin.Context) {
	logger := config.GetLogger()

	var req admitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	booking, err := workflow.AdmitFreeSession(c.Request.Context(), config.GetDB(), logger, req.TutorId, req.ClientId, req.ServiceName, req.Subjects)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrorUnavailable):
			c.JSON(http.StatusConflict, gin.H{"code": "unavailable", "error": err.Error()})
		case errors.Is(err, utils.ErrorRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"code": "rate_limited", "error": err.Error()})
		default:
			config.LogError(logger, "server.go", "admitFreeSessionHandler", "AdmitFreeSession", req, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "transient failure"})
		}
		return
	}
	c.JSON(http.StatusCreated, booking)
}

func completeFreeSessionHandler(c *gin.Context) {
	logger := config.GetLogger()
	bookingId := c.Param("bookingId")

	ctx := utils.SetCorrelationIdInContext(c.Request.Context(), uuid.NewString())
	entry, err := workflow.CompleteFreeSession(ctx, config.GetDB(), logger, bookingId)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrorRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, utils.ErrorInvariantViolation):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "transient failure"})
		}
		return
	}
	workflow.NotifyRecalculation(ctx, logger, entry)
	c.JSON(http.StatusOK, entry)
}

func presenceOnlineHandler(c *gin.Context) {
	if err := models.SetTutorAvailable(c.Param("tutorId")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transient failure"})
		return
	}
	c.Status(http.StatusNoContent)
}

func presenceOfflineHandler(c *gin.Context) {
	if err := models.SetTutorUnavailable(c.Param("tutorId")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transient failure"})
		return
	}
	c.Status(http.StatusNoContent)
}

func presenceStatusHandler(c *gin.Context) {
	available, err := models.IsTutorAvailable(c.Param("tutorId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transient failure"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tutor_id": c.Param("tutorId"), "available": available})
}

func dequeueNextHandler(c *gin.Context) {
	entry, err := workflow.DequeueNext(c.Request.Context(), config.GetDB())
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transient failure"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

func markProcessedHandler(c *gin.Context) {
	entryId, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entry id"})
		return
	}
	if err := workflow.MarkRecalculationProcessed(c.Request.Context(), config.GetDB(), entryId); err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no unprocessed entry with that id"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transient failure"})
		return
	}
	c.Status(http.StatusNoContent)
}

func profileTransactionsHandler(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	txns, err := models.GetTransactionsByProfileId(config.GetDB().WithContext(c.Request.Context()), c.Param("profileId"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transient failure"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

func bookingTransactionsHandler(c *gin.Context) {
	txns, err := models.GetTransactionsByBookingId(config.GetDB().WithContext(c.Request.Context()), c.Param("bookingId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transient failure"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func newRouter(logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(customErrorLogger(logger))
	r.Use(cors.Default())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/webhooks/gateway", gatewayWebhookHandler())
	r.POST("/settlements", settleHandler)

	r.POST("/free-sessions", admitFreeSessionHandler)
	r.POST("/free-sessions/:bookingId/complete", completeFreeSessionHandler)

	// Toggle-on and heartbeat are the same write: refresh-or-create.
	r.POST("/presence/:tutorId", presenceOnlineHandler)
	r.POST("/presence/:tutorId/heartbeat", presenceOnlineHandler)
	r.DELETE("/presence/:tutorId", presenceOfflineHandler)
	r.GET("/presence/:tutorId", presenceStatusHandler)

	r.GET("/recalculations/next", dequeueNextHandler)
	r.POST("/recalculations/:id/processed", markProcessedHandler)

	r.GET("/profiles/:profileId/transactions", profileTransactionsHandler)
	r.GET("/bookings/:bookingId/transactions", bookingTransactionsHandler)

	return r
}

func main() {
	logger := config.GetLogger()

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := v.RegisterValidation("gateway_event", isGatewayEventType); err != nil {
			logger.Error("failed to register gateway_event validation: " + err.Error())
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: newRouter(logger),
	}

	// Start listening first (Cloud Run wants the port open fast), then bring
	// up the dependencies with retries.
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Fatal("listen failed: " + err.Error())
		}
	}()

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()
	config.ConnectRedisWithRetry()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
