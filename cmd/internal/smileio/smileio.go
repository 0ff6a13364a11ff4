// Package smileio holds the JSON input schema shared by the volatility
// command-line tools and resolves it into year-fraction expiries.
package smileio

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meenmo/volsurf/calendar"
	"github.com/meenmo/volsurf/config"
	"github.com/meenmo/volsurf/utils"
)

// SmileSet is a valuation date plus one smile per expiry.
//
// Conventions:
// - vols and errors are decimals (e.g., 0.2 means 20%)
// - each smile gives either an expiry date or a tenor from the valuation date
type SmileSet struct {
	ValuationDate string      `json:"valuation_date" validate:"required,datetime=2006-01-02"`
	DayCount      string      `json:"day_count" validate:"omitempty,oneof=ACT/365F ACT/360 30/360 30E/360"`
	Holidays      []string    `json:"holidays" validate:"dive,datetime=2006-01-02"`
	Smiles        []SmileJSON `json:"smiles" validate:"required,min=1,dive"`
}

type SmileJSON struct {
	Expiry  string    `json:"expiry,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Tenor   string    `json:"tenor,omitempty"`
	Forward float64   `json:"forward" validate:"gt=0"`
	Strikes []float64 `json:"strikes" validate:"required,min=1,dive,gt=0"`
	Vols    []float64 `json:"vols" validate:"required,dive,gt=0"`
	Errors  []float64 `json:"errors,omitempty" validate:"omitempty,dive,gt=0"`
}

// Resolved is a SmileSet in year fractions, sorted by expiry.
type Resolved struct {
	Expiries []float64
	Forwards []float64
	Strikes  [][]float64
	Vols     [][]float64
	// Errors is nil unless every smile carries errors.
	Errors [][]float64
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		s := sl.Current().Interface().(SmileJSON)
		if strings.TrimSpace(s.Expiry) == "" && strings.TrimSpace(s.Tenor) == "" {
			sl.ReportError(s.Expiry, "Expiry", "expiry", "expiry_or_tenor", "")
		}
		if len(s.Vols) != len(s.Strikes) {
			sl.ReportError(s.Vols, "Vols", "vols", "len_strikes", "")
		}
		if s.Errors != nil && len(s.Errors) != len(s.Strikes) {
			sl.ReportError(s.Errors, "Errors", "errors", "len_strikes", "")
		}
	}, SmileJSON{})
	return v
}

// Validate checks the struct tags.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}

// Resolve converts expiry dates and tenors to year fractions from the
// valuation date. Tenor expiries are rolled Modified Following on the
// holiday calendar.
func (s SmileSet) Resolve() (*Resolved, error) {
	valuation, err := utils.ParseDate(s.ValuationDate)
	if err != nil {
		return nil, fmt.Errorf("invalid valuation_date: %v", err)
	}
	cal, err := calendar.Parse(s.Holidays)
	if err != nil {
		return nil, err
	}
	dayCount := s.DayCount
	if dayCount == "" {
		dayCount = "ACT/365F"
	}

	type row struct {
		t   float64
		in  SmileJSON
		tag string
	}
	rows := make([]row, 0, len(s.Smiles))
	for _, sm := range s.Smiles {
		var (
			expiry time.Time
			tag    string
		)
		if strings.TrimSpace(sm.Expiry) != "" {
			expiry, err = utils.ParseDate(sm.Expiry)
			tag = sm.Expiry
		} else {
			expiry, err = utils.AddTenor(valuation, sm.Tenor)
			expiry = cal.Adjust(expiry)
			tag = sm.Tenor
		}
		if err != nil {
			return nil, fmt.Errorf("invalid expiry %q: %v", tag, err)
		}
		t := utils.YearFraction(valuation, expiry, dayCount)
		if !(t > 0) {
			return nil, fmt.Errorf("expiry %q is not after valuation_date", tag)
		}
		rows = append(rows, row{t: t, in: sm, tag: tag})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].t < rows[j].t })

	out := &Resolved{}
	withErrors := true
	for i, r := range rows {
		if i > 0 && r.t == rows[i-1].t {
			return nil, fmt.Errorf("expiries %q and %q coincide", rows[i-1].tag, r.tag)
		}
		out.Expiries = append(out.Expiries, r.t)
		out.Forwards = append(out.Forwards, r.in.Forward)
		out.Strikes = append(out.Strikes, r.in.Strikes)
		out.Vols = append(out.Vols, r.in.Vols)
		out.Errors = append(out.Errors, r.in.Errors)
		withErrors = withErrors && r.in.Errors != nil
	}
	if !withErrors {
		out.Errors = nil
	}
	return out, nil
}

// LoadConfig reads the optional YAML config and builds its logger on w.
// Every record of one run carries the same run_id.
func LoadConfig(path string, w io.Writer) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(strings.TrimSpace(path))
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := cfg.Logging.NewLogger(w).With("run_id", uuid.New().String())
	return cfg, logger, nil
}

// ReadInput reads path, or stdin when path is empty.
func ReadInput(stdin io.Reader, path string) ([]byte, error) {
	if path != "" {
		return os.ReadFile(path)
	}
	return io.ReadAll(stdin)
}

// IsTerminal reports whether r is an interactive terminal, meaning no
// input was piped in.
func IsTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	stat, err := f.Stat()
	return err == nil && (stat.Mode()&os.ModeCharDevice) != 0
}

// Decode unmarshals and validates raw into v.
func Decode(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to parse JSON input: %v", err)
	}
	return Validate(v)
}

// WriteJSON prints v as one JSON line. When v cannot be encoded, for
// example a non-finite float, it prints {"error": ...} instead and returns
// the encoding error.
func WriteJSON(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		encErr := fmt.Errorf("failed to encode output: %w", err)
		b, _ = json.Marshal(map[string]string{"error": encErr.Error()})
		fmt.Fprintln(w, string(b))
		return encErr
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
