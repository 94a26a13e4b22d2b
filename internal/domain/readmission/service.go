package readmission

import (
	"time"

	"github.com/rs/zerolog"
)

// FilterOptions are the values a user may pick from for each filter.
type FilterOptions struct {
	Age           []string   `json:"age"`
	AdmissionType []string   `json:"admission_type"`
	Insulin       []string   `json:"insulin"`
	Gender        []string   `json:"gender"`
	Race          []string   `json:"race"`
	Stay          *StayRange `json:"stay,omitempty"`
	Records       int        `json:"records"`
}

// Observer is notified after every dashboard recompute.
type Observer interface {
	ObserveRecompute(elapsed time.Duration, matched, total int)
}

// Service recomputes dashboards over a loaded dataset. It holds no mutable
// state and is safe for concurrent use.
type Service struct {
	ds       *Dataset
	logger   zerolog.Logger
	strict   bool
	observer Observer
}

func NewService(ds *Dataset, logger zerolog.Logger) *Service {
	return &Service{ds: ds, logger: logger}
}

// SetStrict makes Dashboard and Listing reject criteria that Validate refuses
// instead of returning an empty view.
func (s *Service) SetStrict(strict bool) {
	s.strict = strict
}

// SetObserver registers o to receive recompute timings. Call before serving.
func (s *Service) SetObserver(o Observer) {
	s.observer = o
}

// Dataset returns the underlying dataset.
func (s *Service) Dataset() *Dataset {
	return s.ds
}

func (s *Service) Options() FilterOptions {
	opts := FilterOptions{
		Age:           s.ds.Categories(FieldAge),
		AdmissionType: s.ds.Categories(FieldAdmissionType),
		Insulin:       s.ds.Categories(FieldInsulin),
		Gender:        s.ds.Categories(FieldGender),
		Race:          s.ds.Categories(FieldRace),
		Records:       s.ds.Len(),
	}
	if rng, ok := s.ds.StayBounds(); ok {
		opts.Stay = &rng
	}
	return opts
}

func (s *Service) Validate(c FilterCriteria) error {
	return s.ds.Validate(c)
}

func (s *Service) Dashboard(c FilterCriteria) (*Dashboard, error) {
	return s.DashboardWithColumns(c, DefaultColumns)
}

func (s *Service) DashboardWithColumns(c FilterCriteria, columns []Column) (*Dashboard, error) {
	if s.strict {
		if err := s.ds.Validate(c); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	d, err := Recompute(s.ds, c, columns)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	if s.observer != nil {
		s.observer.ObserveRecompute(elapsed, d.Matched, d.Total)
	}
	s.logger.Debug().
		Int("matched", d.Matched).
		Int("total", d.Total).
		Str("band", d.Gauge.Band).
		Dur("elapsed", elapsed).
		Msg("dashboard recomputed")
	return d, nil
}

// View applies c to the dataset, honouring strict validation.
func (s *Service) View(c FilterCriteria) (FilteredView, error) {
	if s.strict {
		if err := s.ds.Validate(c); err != nil {
			return FilteredView{}, err
		}
	}
	return Apply(s.ds, c), nil
}

func (s *Service) Listing(c FilterCriteria, columns []Column) (Listing, error) {
	view, err := s.View(c)
	if err != nil {
		return Listing{}, err
	}
	return Project(view, columns)
}
