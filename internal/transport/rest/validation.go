package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"thinqscribe-payments/internal/domain"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type selfReportRequest struct {
	Completed *bool `json:"completed"`
}

func (req selfReportRequest) validate() error {
	verr := domain.NewValidationError()
	if req.Completed == nil {
		verr.Add("completed", "completed is required")
	}
	return verr.OrNil()
}

type statementRequest struct {
	Month string `json:"month"`
}

// month parses YYYY-MM in loc; empty means the current month.
func (req statementRequest) month(now time.Time) (time.Time, error) {
	if req.Month == "" {
		return now, nil
	}
	t, err := time.ParseInLocation("2006-01", req.Month, now.Location())
	if err != nil {
		verr := domain.NewValidationError()
		verr.Add("month", "month must be YYYY-MM")
		return time.Time{}, verr
	}
	return t, nil
}
