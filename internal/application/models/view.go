package models

import "time"

// View is the JSON shape returned to clients. Amounts are euros.
type View struct {
	ID string `json:"id"`
	Applicant

	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	PaidAt    *time.Time `json:"paidAt"`

	PaymentMethod PaymentMethod `json:"paymentMethod,omitempty"`
	PaymentID     string        `json:"paymentId,omitempty"`
	Amount        float64       `json:"amount,omitempty"`
}

func (a *Application) View() View {
	return View{
		ID:            a.ID.String(),
		Applicant:     a.Applicant,
		Status:        a.Status,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
		PaidAt:        a.PaidAt,
		PaymentMethod: a.PaymentMethod,
		PaymentID:     a.PaymentID,
		Amount:        CentsToEuros(a.AmountCents),
	}
}

// Views maps a listing to its client shape, never returning nil.
func Views(apps []*Application) []View {
	out := make([]View, 0, len(apps))
	for _, a := range apps {
		out = append(out, a.View())
	}
	return out
}
