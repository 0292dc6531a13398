package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/roteira-app/roteira/app/models"
	"github.com/roteira-app/roteira/internal/pkg/database"
	"github.com/roteira-app/roteira/internal/pkg/payments"
)

// webhookReconciler is the reconciler surface the webhook handler drives.
type webhookReconciler interface {
	RecordEvent(ctx context.Context, n payments.Notification, payload []byte) (bool, *models.PaymentWebhookEvent, error)
	MarkProcessed(ctx context.Context, eventID uint, processingErr error) error
	ProcessNotification(ctx context.Context, n payments.Notification) error
}

// HandleMercadoPagoWebhook ingests provider notifications. Every outcome is
// acknowledged with 200, including storage failures while persisting the
// event: a local error must never trigger the provider's retry/backoff
// policy, and the pending sweep recovers anything that slips through.
func HandleMercadoPagoWebhook(c *fiber.Ctx) error {
	return processMercadoPagoWebhook(c, payments.NewReconcilerFromDB(database.GetDB()))
}

func processMercadoPagoWebhook(c *fiber.Ctx, rec webhookReconciler) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	n := payments.ParseNotification(func(key string) string { return c.Query(key) }, rawBody)

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	created, stored, err := rec.RecordEvent(ctx, n, rawBody)
	if err != nil {
		log.Errorf("mercadopago webhook: persist event: %v", err)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": false})
	}
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	if n.Kind != payments.NotificationPayment {
		_ = rec.MarkProcessed(ctx, stored.ID, nil)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	procErr := rec.ProcessNotification(ctx, n)
	if procErr != nil {
		log.Errorf("mercadopago webhook: payment %s: %v", n.PaymentID, procErr)
	}
	_ = rec.MarkProcessed(ctx, stored.ID, procErr)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": procErr == nil})
}
