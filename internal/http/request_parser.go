package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"penny/internal/core"
)

// maxJSONBodyBytes bounds a single-expense request body.
const maxJSONBodyBytes = 1 << 20

var (
	errInvalidID     = errors.New("invalid expense id")
	errMalformedJSON = errors.New("malformed JSON request")
)

// ParseExpenseID reads the {id} path segment as a positive integer.
func ParseExpenseID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.PathValue("id"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", errInvalidID, raw)
	}
	return id, nil
}

// DecodeNewExpense reads a NewExpense from a JSON body. Field-level format
// errors come back as *core.ValidationError so they are reported like any
// other validation failure.
func DecodeNewExpense(w http.ResponseWriter, r *http.Request) (core.NewExpense, error) {
	var n core.NewExpense
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if err := dec.Decode(&n); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return n, err
		case errors.Is(err, core.ErrInvalidDate):
			return n, &core.ValidationError{Field: "date", Err: core.ErrInvalidDate}
		case errors.Is(err, core.ErrInvalidAmount):
			return n, &core.ValidationError{Field: "amount", Err: core.ErrInvalidAmount}
		}
		return n, fmt.Errorf("%w: %v", errMalformedJSON, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("%w: trailing data after object", errMalformedJSON)
	}
	return n, nil
}
