package payments

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/roteira-app/roteira/app/models"
	"github.com/roteira-app/roteira/internal/pkg/mail"
)

// mailConfirmation returns a Notify hook that emails the buyer after a
// winning completion. Lookup and send run outside the grant path; failures
// are logged and never affect reconciliation.
func mailConfirmation(db *gorm.DB) func(intent *models.PurchaseIntent, payment *Payment) {
	return func(intent *models.PurchaseIntent, payment *Payment) {
		var user models.User
		if err := db.First(&user, intent.UserID).Error; err != nil {
			log.Printf("purchase confirmation: user %d: %v", intent.UserID, err)
			return
		}
		plan, ok := PlanByType(intent.PlanType)
		if !ok {
			return
		}
		go func() {
			body := fmt.Sprintf(
				"<p>Olá %s,</p><p>Recebemos seu pagamento de R$ %.2f (%s). Bons roteiros!</p>",
				user.Name, float64(intent.AmountCents)/100, plan.Title,
			)
			msg := mail.Message{To: user.Email, Subject: "Roteira - pagamento confirmado", Body: body}
			if err := mail.Send(msg); err != nil {
				log.Printf("purchase confirmation: mail to %s: %v", user.Email, err)
			}
		}()
	}
}
