package main

import (
	"context"

	"reconledger/internal/domain"
	"reconledger/internal/usecase"
	"reconledger/internal/variance"
)

func runBagAssign(ctx context.Context, e env, args []string) int {
	f := newFlags("bag assign", e)
	var date, source, sourceID, expected, employee, device, shift string
	f.StringVar(&date, "date", "", "assignment date (YYYY-MM-DD)")
	f.StringVar(&source, "source", "", "source system")
	f.StringVar(&sourceID, "source-id", "", "identifier in the source system")
	f.StringVar(&expected, "expected", "", "expected cash amount")
	f.StringVar(&employee, "employee", "", "employee id")
	f.StringVar(&device, "device", "", "POS device id")
	f.StringVar(&shift, "shift", "", "shift id")
	if !f.parse(args) {
		return 1
	}
	day, err := domain.ParseDate(date)
	if err != nil {
		return fail(e, err)
	}
	amount, err := variance.ParseAmount("expected", expected)
	if err != nil {
		return fail(e, err)
	}
	a, ok := f.open(ctx, e)
	if !ok {
		return 1
	}
	defer a.Close()

	assignment, err := a.Gateway.AssignBag(ctx, usecase.AssignBagInput{
		AssignmentDate:   day,
		SourceSystem:     source,
		SourceIdentifier: sourceID,
		ExpectedAmount:   amount,
		EmployeeID:       employee,
		POSDeviceID:      device,
		ShiftID:          shift,
	})
	if err != nil {
		return fail(e, err)
	}
	return writeJSON(e, assignment)
}

func runBagVerify(ctx context.Context, e env, args []string) int {
	f := newFlags("bag verify", e)
	var id, counted, by, notes string
	f.StringVar(&id, "id", "", "bag id")
	f.StringVar(&counted, "counted", "", "counted cash amount")
	f.StringVar(&by, "by", "", "who counted the bag")
	f.StringVar(&notes, "notes", "", "free-form notes")
	if !f.parse(args) || !required(e, "id", id) {
		return 1
	}
	amount, err := variance.ParseAmount("counted", counted)
	if err != nil {
		return fail(e, err)
	}
	a, ok := f.open(ctx, e)
	if !ok {
		return 1
	}
	defer a.Close()

	verification, err := a.Gateway.VerifyBag(ctx, usecase.VerifyBagInput{
		BagID:         id,
		CountedAmount: amount,
		CountedBy:     by,
		Notes:         notes,
	})
	if err != nil {
		return fail(e, err)
	}
	return writeJSON(e, verification)
}

func runBagGet(ctx context.Context, e env, args []string) int {
	return runBagByID(ctx, e, args, "get", func(ctx context.Context, g *usecase.Gateway, id string) (any, error) {
		return g.GetBag(ctx, id)
	})
}

func runBagDelete(ctx context.Context, e env, args []string) int {
	return runBagByID(ctx, e, args, "delete", func(ctx context.Context, g *usecase.Gateway, id string) (any, error) {
		if err := g.DeleteBag(ctx, id); err != nil {
			return nil, err
		}
		return map[string]string{"deleted": id}, nil
	})
}

func runBagByID(ctx context.Context, e env, args []string, name string, call func(context.Context, *usecase.Gateway, string) (any, error)) int {
	f := newFlags("bag "+name, e)
	var id string
	f.StringVar(&id, "id", "", "bag id")
	if !f.parse(args) || !required(e, "id", id) {
		return 1
	}
	a, ok := f.open(ctx, e)
	if !ok {
		return 1
	}
	defer a.Close()

	out, err := call(ctx, a.Gateway, id)
	if err != nil {
		return fail(e, err)
	}
	return writeJSON(e, out)
}

func runBagUnverified(ctx context.Context, e env, args []string) int {
	f := newFlags("bag unverified", e)
	if !f.parse(args) {
		return 1
	}
	a, ok := f.open(ctx, e)
	if !ok {
		return 1
	}
	defer a.Close()

	bags, err := a.Gateway.ListUnverifiedBags(ctx)
	if err != nil {
		return fail(e, err)
	}
	if bags == nil {
		bags = []domain.BlindBag{}
	}
	return writeJSON(e, bags)
}

func runBagDiscrepancies(ctx context.Context, e env, args []string) int {
	f := newFlags("bag discrepancies", e)
	var from, to, absolute, percent string
	f.StringVar(&from, "from", "", "first assignment day (YYYY-MM-DD)")
	f.StringVar(&to, "to", "", "last assignment day (YYYY-MM-DD)")
	f.StringVar(&absolute, "threshold", "", "absolute materiality (default: configured)")
	f.StringVar(&percent, "threshold-percent", "", "percent materiality (default: configured)")
	if !f.parse(args) {
		return 1
	}
	rng, err := parseRange(from, to)
	if err != nil {
		return fail(e, err)
	}
	var threshold *variance.Threshold
	if absolute != "" || percent != "" {
		if absolute == "" {
			absolute = "0"
		}
		if percent == "" {
			percent = "0"
		}
		th, err := variance.ParseThreshold(absolute, percent)
		if err != nil {
			return fail(e, err)
		}
		threshold = &th
	}
	a, ok := f.open(ctx, e)
	if !ok {
		return 1
	}
	defer a.Close()

	records, err := a.Gateway.ListDiscrepancies(ctx, rng, threshold)
	if err != nil {
		return fail(e, err)
	}
	if records == nil {
		records = []domain.Discrepancy{}
	}
	return writeJSON(e, records)
}
