package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/gyeh/hdprod/internal/apperr"
	"github.com/gyeh/hdprod/internal/model"
	"github.com/gyeh/hdprod/internal/normalize"
	"github.com/gyeh/hdprod/internal/production"
)

// parseDay reads a date flag. Empty values yield the zero time.
func parseDay(field, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	d := normalize.ParseDate(v)
	if d == nil {
		return time.Time{}, apperr.Invalid(field, "%q is not a date (want YYYY-MM-DD)", v)
	}
	return model.Day(*d), nil
}

// optDay is parseDay returning nil for an empty value.
func optDay(field, v string) (*time.Time, error) {
	d, err := parseDay(field, v)
	if err != nil || d.IsZero() {
		return nil, err
	}
	return &d, nil
}

func parsePrice(field, v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, apperr.Invalid(field, "%q is not a number", v)
	}
	return d, nil
}

// optID returns the int64 flag name when it was set on cmd.
func optID(cmd *cobra.Command, name string) *int64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetInt64(name)
	if err != nil {
		return nil
	}
	return &v
}

// parseEntry reads PROCEDURE_ID=QUANTITY[@PRICE].
func parseEntry(v string) (production.DayEntry, error) {
	procPart, rest, ok := strings.Cut(v, "=")
	if !ok {
		return production.DayEntry{}, apperr.Invalid("item", "%q: want PROCEDURE_ID=QUANTITY[@PRICE]", v)
	}
	procID, err := strconv.ParseInt(strings.TrimSpace(procPart), 10, 64)
	if err != nil {
		return production.DayEntry{}, apperr.Invalid("item", "%q: bad procedure id", v)
	}
	qtyPart, pricePart, hasPrice := strings.Cut(rest, "@")
	qty, err := strconv.Atoi(strings.TrimSpace(qtyPart))
	if err != nil {
		return production.DayEntry{}, apperr.Invalid("item", "%q: bad quantity", v)
	}
	e := production.DayEntry{ProcedureID: procID, Quantity: qty}
	if hasPrice {
		price, err := parsePrice("item", strings.TrimSpace(pricePart))
		if err != nil {
			return production.DayEntry{}, err
		}
		e.ExplicitPrice = &price
	}
	return e, nil
}

func refString(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func refID(id *int64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprint(*id)
}

func dayString(t *time.Time) string {
	if t == nil {
		return "open"
	}
	return t.Format(time.DateOnly)
}
