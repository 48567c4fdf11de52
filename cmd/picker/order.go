package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/banshee-data/picker/internal/api"
	"github.com/banshee-data/picker/internal/db"
	"github.com/banshee-data/picker/internal/httputil"
	"github.com/banshee-data/picker/internal/planner"
)

// orderClient is the part of api.Client the subcommands use.
type orderClient interface {
	SubmitOrder(ctx context.Context, req api.OrderRequest) (api.OrderResponse, error)
	RecentFulfilments(ctx context.Context, limit int) ([]db.Fulfilment, error)
}

// parseOrderArgs reads "[-id ID] sku[=name] ..." into a request.
func parseOrderArgs(args []string) (api.OrderRequest, error) {
	fs := flag.NewFlagSet("order", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	id := fs.String("id", "", "Order id (generated by the server when empty)")
	if err := fs.Parse(args); err != nil {
		return api.OrderRequest{}, err
	}

	req := api.OrderRequest{ID: *id}
	for _, arg := range fs.Args() {
		sku, name, _ := strings.Cut(arg, "=")
		if strings.TrimSpace(sku) == "" {
			return api.OrderRequest{}, fmt.Errorf("empty sku in %q", arg)
		}
		req.Items = append(req.Items, planner.Item{SKU: sku, Name: name})
	}
	if len(req.Items) == 0 {
		return api.OrderRequest{}, errors.New("order needs at least one sku")
	}
	return req, nil
}

func runOrder(ctx context.Context, w io.Writer, c orderClient, args []string) error {
	req, err := parseOrderArgs(args)
	if err != nil {
		return err
	}

	resp, err := c.SubmitOrder(ctx, req)
	if err != nil {
		var se *httputil.StatusError
		if errors.As(err, &se) {
			var oe api.OrderError
			if json.Unmarshal(se.Body, &oe) == nil && oe.Error != "" {
				printResult(w, oe.Result)
				return errors.New(oe.Error)
			}
		}
		return err
	}

	printResult(w, resp.Result)
	if resp.Complete {
		fmt.Fprintf(w, "order %s complete (fulfilment %s)\n", resp.OrderID, resp.FulfilmentID)
	} else {
		fmt.Fprintf(w, "order %s partially fulfilled (fulfilment %s)\n", resp.OrderID, resp.FulfilmentID)
	}
	return nil
}

func printResult(w io.Writer, res planner.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SKU\tSLOT\tOUTCOME")
	for _, p := range res.Picks {
		fmt.Fprintf(tw, "%s\t%s\tpicked\n", p.SKU, p.SlotID)
	}
	for _, sku := range res.Unfulfilled {
		fmt.Fprintf(tw, "%s\t-\tunfulfilled\n", sku)
	}
	for _, slot := range res.FlaggedSlots {
		fmt.Fprintf(tw, "-\t%s\tflagged\n", slot)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d pick attempts\n", res.Attempts)
}

func runHistory(ctx context.Context, w io.Writer, c orderClient, args []string) error {
	limit := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid history limit %q", args[0])
		}
		limit = n
	}

	recent, err := c.RecentFulfilments(ctx, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORDED\tORDER\tPICKED\tUNFULFILLED\tFLAGGED\tCOMPLETE")
	for _, f := range recent {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%t\n",
			f.RecordedAt.Format("2006-01-02 15:04:05"), f.OrderID,
			len(f.Picks), len(f.Unfulfilled), len(f.FlaggedSlots), f.Complete)
	}
	return tw.Flush()
}
