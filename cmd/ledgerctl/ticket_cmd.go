package main

import (
	"context"
	"fmt"

	"reconledger/internal/usecase"
)

func runTicketIngest(ctx context.Context, e env, args []string) int {
	f := newFlags("ticket ingest", e)
	var id, payload, payloadFile string
	f.StringVar(&id, "id", "", "ticket id (generated when empty)")
	f.StringVar(&payload, "payload", "", "ticket payload JSON")
	f.StringVar(&payloadFile, "payload-file", "", "ticket payload JSON file (- for stdin)")
	if !f.parse(args) {
		return 1
	}
	raw, err := readPayload(payload, payloadFile)
	if err != nil {
		fmt.Fprintln(e.stderr, err)
		return 1
	}
	a, ok := f.open(ctx, e)
	if !ok {
		return 1
	}
	defer a.Close()

	ticket, isNew, err := a.Gateway.IngestTicket(ctx, usecase.IngestTicketInput{TicketID: id, Payload: raw})
	if err != nil {
		return fail(e, err)
	}
	return writeJSON(e, map[string]any{"ticket": ticket, "is_new": isNew})
}

func runTicketModify(ctx context.Context, e env, args []string) int {
	f := newFlags("ticket modify", e)
	var id, payload, payloadFile string
	f.StringVar(&id, "id", "", "ticket id")
	f.StringVar(&payload, "payload", "", "ticket payload JSON")
	f.StringVar(&payloadFile, "payload-file", "", "ticket payload JSON file (- for stdin)")
	if !f.parse(args) || !required(e, "id", id) {
		return 1
	}
	raw, err := readPayload(payload, payloadFile)
	if err != nil {
		fmt.Fprintln(e.stderr, err)
		return 1
	}
	a, ok := f.open(ctx, e)
	if !ok {
		return 1
	}
	defer a.Close()

	ticket, err := a.Gateway.ModifyTicket(ctx, id, raw)
	if err != nil {
		return fail(e, err)
	}
	return writeJSON(e, ticket)
}

func runTicketClose(ctx context.Context, e env, args []string) int {
	return runTicketByID(ctx, e, args, "close", func(ctx context.Context, g *usecase.Gateway, id string) (any, error) {
		return g.CloseTicket(ctx, id)
	})
}

func runTicketGet(ctx context.Context, e env, args []string) int {
	return runTicketByID(ctx, e, args, "get", func(ctx context.Context, g *usecase.Gateway, id string) (any, error) {
		return g.GetTicket(ctx, id)
	})
}

func runTicketHistory(ctx context.Context, e env, args []string) int {
	return runTicketByID(ctx, e, args, "history", func(ctx context.Context, g *usecase.Gateway, id string) (any, error) {
		return g.GetTicketHistory(ctx, id)
	})
}

func runTicketCheck(ctx context.Context, e env, args []string) int {
	return runTicketByID(ctx, e, args, "check", func(ctx context.Context, g *usecase.Gateway, id string) (any, error) {
		return g.CheckTicketConsistency(ctx, id)
	})
}

func runTicketByID(ctx context.Context, e env, args []string, name string, call func(context.Context, *usecase.Gateway, string) (any, error)) int {
	f := newFlags("ticket "+name, e)
	var id string
	f.StringVar(&id, "id", "", "ticket id")
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

func runTicketOpen(ctx context.Context, e env, args []string) int {
	f := newFlags("ticket open", e)
	if !f.parse(args) {
		return 1
	}
	a, ok := f.open(ctx, e)
	if !ok {
		return 1
	}
	defer a.Close()

	tickets, err := a.Gateway.ListOpenTickets(ctx)
	if err != nil {
		return fail(e, err)
	}
	return writeJSON(e, tickets)
}

func runTicketHeartbeat(ctx context.Context, e env, args []string) int {
	f := newFlags("ticket heartbeat", e)
	var open []string
	f.StringSliceVar(&open, "open", nil, "ticket ids still open at the source")
	if !f.parse(args) {
		return 1
	}
	a, ok := f.open(ctx, e)
	if !ok {
		return 1
	}
	defer a.Close()

	closed, err := a.Gateway.TicketHeartbeat(ctx, open)
	if err != nil {
		return fail(e, err)
	}
	if closed == nil {
		closed = []string{}
	}
	return writeJSON(e, map[string]any{"closed": closed})
}
