package main

import (
	"time"

	"github.com/dustin/go-humanize"
)

// parseSize converts a human-readable size such as "100", "10M" or
// "1GiB" into bytes.
func parseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

// parseDate parses a 2006-01-02 date into epoch seconds.
func parseDate(s string) (int64, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}
