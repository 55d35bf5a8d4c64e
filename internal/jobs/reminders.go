package jobs

import (
	"context"
	"fmt"
	"time"
)

// ReminderWindow is how far back orders are considered for reminders.
const ReminderWindow = 7 * 24 * time.Hour

// Reminder is one order reminder addressed to the ordering customer.
type Reminder struct {
	OrderID   string    `json:"order_id"`
	Email     string    `json:"email"`
	OrderDate time.Time `json:"order_date"`
	SentAt    time.Time `json:"sent_at"`
}

// Notifier delivers reminders.
type Notifier interface {
	Notify(ctx context.Context, reminders []Reminder) error
}

// Reminders sends a reminder for every order placed within ReminderWindow.
type Reminders struct {
	Reader   Reader
	Notifier Notifier
	Clock    Clock
}

func (r *Reminders) Name() string { return "order_reminders" }

func (r *Reminders) Run(ctx context.Context) error {
	now := r.Clock.now()
	since := now.Add(-ReminderWindow)
	orders, err := r.Reader.ListOrders(ctx)
	if err != nil {
		return fmt.Errorf("reminder orders: %w", err)
	}
	customers, err := r.Reader.ListCustomers(ctx)
	if err != nil {
		return fmt.Errorf("reminder customers: %w", err)
	}
	emails := make(map[string]string, len(customers))
	for _, c := range customers {
		emails[c.ID] = c.Email
	}
	var reminders []Reminder
	for _, o := range orders {
		if o.OrderDate.Before(since) {
			continue
		}
		reminders = append(reminders, Reminder{
			OrderID:   o.ID,
			Email:     emails[o.CustomerID],
			OrderDate: o.OrderDate,
			SentAt:    now,
		})
	}
	if len(reminders) == 0 {
		return nil
	}
	return r.Notifier.Notify(ctx, reminders)
}
