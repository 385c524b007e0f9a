//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"

	"student-offer-automation/internal/domain"
	"student-offer-automation/internal/domain/model"
)

func TestCardRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	repo := NewCardRepo(testPool)
	ctx := context.Background()

	t.Run("consume until capacity then exhaust", func(t *testing.T) {
		cleanup(t)

		card := &model.Card{Number: "4242424242424242", ExpMonth: "12", ExpYear: "2030", CVV: "123", MaxUsage: 2, Active: true}
		if err := repo.Save(ctx, nil, card); err != nil {
			t.Fatalf("save: %v", err)
		}
		if card.ID == 0 {
			t.Fatal("save did not assign an id")
		}

		for i := 0; i < 2; i++ {
			if err := repo.MarkConsumed(ctx, nil, card.ID, "job@example.com"); err != nil {
				t.Fatalf("consume %d: %v", i+1, err)
			}
		}
		if err := repo.MarkConsumed(ctx, nil, card.ID, "job@example.com"); !errors.Is(err, domain.ErrResourceExhausted) {
			t.Fatalf("err = %v, want ErrResourceExhausted", err)
		}

		avail, err := repo.ListAvailable(ctx)
		if err != nil {
			t.Fatalf("ListAvailable: %v", err)
		}
		if len(avail) != 0 {
			t.Fatalf("available = %d, want 0 after exhaustion", len(avail))
		}
	})

	t.Run("available ordering spreads load", func(t *testing.T) {
		cleanup(t)

		worn := &model.Card{Number: "4000000000000002", ExpMonth: "11", ExpYear: "2029", CVV: "456", UsageCount: 3, MaxUsage: 5, Active: true}
		fresh := &model.Card{Number: "4000000000000010", ExpMonth: "10", ExpYear: "2028", CVV: "789", MaxUsage: 5, Active: true}
		for _, c := range []*model.Card{worn, fresh} {
			if err := repo.Save(ctx, nil, c); err != nil {
				t.Fatalf("save: %v", err)
			}
		}

		avail, err := repo.ListAvailable(ctx)
		if err != nil {
			t.Fatalf("ListAvailable: %v", err)
		}
		if len(avail) != 2 || avail[0].ID != fresh.ID {
			t.Fatalf("ordering = %+v, want least-used first", avail)
		}
	})

	t.Run("duplicate number rejected", func(t *testing.T) {
		cleanup(t)
		card := &model.Card{Number: "4242424242424242", ExpMonth: "12", ExpYear: "2030", CVV: "123", Active: true}
		if err := repo.Save(ctx, nil, card); err != nil {
			t.Fatalf("save: %v", err)
		}
		dup := &model.Card{Number: "4242424242424242", ExpMonth: "01", ExpYear: "2031", CVV: "999", Active: true}
		if err := repo.Save(ctx, nil, dup); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("err = %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("inactive card never listed", func(t *testing.T) {
		cleanup(t)
		card := &model.Card{Number: "4242424242424242", ExpMonth: "12", ExpYear: "2030", CVV: "123", MaxUsage: 5, Active: true}
		if err := repo.Save(ctx, nil, card); err != nil {
			t.Fatalf("save: %v", err)
		}
		if err := repo.SetActive(ctx, nil, card.ID, false); err != nil {
			t.Fatalf("SetActive: %v", err)
		}
		avail, err := repo.ListAvailable(ctx)
		if err != nil {
			t.Fatalf("ListAvailable: %v", err)
		}
		if len(avail) != 0 {
			t.Fatalf("available = %d, want 0", len(avail))
		}
		if err := repo.MarkConsumed(ctx, nil, card.ID, "x"); !errors.Is(err, domain.ErrResourceExhausted) {
			t.Fatalf("err = %v, want ErrResourceExhausted for inactive card", err)
		}
	})
}
