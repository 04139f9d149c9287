package mock

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Cities the service accepts.
var Cities = []string{"Москва", "Санкт-Петербург", "Казань"}

// ProductTypes the service accepts.
var ProductTypes = []string{"электроника", "одежда", "обувь"}

// Reception statuses.
const (
	StatusInProgress = "in_progress"
	StatusClose      = "close"
)

var (
	errPVZNotFound          = errors.New("pvz not found")
	errActiveReception      = errors.New("pvz already has a reception in progress")
	errNoActiveReception    = errors.New("no reception in progress")
	errNoProductOrReception = errors.New("no reception in progress or it has no products")
)

// PVZ is a pick-up point.
type PVZ struct {
	ID               uuid.UUID `json:"id"`
	RegistrationDate time.Time `json:"registrationDate"`
	City             string    `json:"city"`
}

// Reception is a batch of products accepted by a PVZ.
type Reception struct {
	ID       uuid.UUID `json:"id"`
	DateTime time.Time `json:"dateTime"`
	PVZID    uuid.UUID `json:"pvzId"`
	Status   string    `json:"status"`
}

// Product is one item of a reception.
type Product struct {
	ID          uuid.UUID `json:"id"`
	DateTime    time.Time `json:"dateTime"`
	Type        string    `json:"type"`
	ReceptionID uuid.UUID `json:"receptionId"`
}

type receptionRecord struct {
	Reception
	products []*Product
}

type pvzRecord struct {
	PVZ
	receptions []*receptionRecord
}

func (p *pvzRecord) open() *receptionRecord {
	if n := len(p.receptions); n > 0 && p.receptions[n-1].Status == StatusInProgress {
		return p.receptions[n-1]
	}
	return nil
}

// store keeps every PVZ in memory in registration order.
type store struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*pvzRecord
	order []*pvzRecord
	now   func() time.Time
}

func newStore(now func() time.Time) *store {
	return &store{byID: make(map[uuid.UUID]*pvzRecord), now: now}
}

func (s *store) createPVZ(city string) PVZ {
	rec := &pvzRecord{PVZ: PVZ{ID: uuid.New(), RegistrationDate: s.now().UTC(), City: city}}

	s.mu.Lock()
	s.byID[rec.ID] = rec
	s.order = append(s.order, rec)
	s.mu.Unlock()
	return rec.PVZ
}

func (s *store) openReception(pvzID uuid.UUID) (Reception, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[pvzID]
	if !ok {
		return Reception{}, errPVZNotFound
	}
	if p.open() != nil {
		return Reception{}, errActiveReception
	}
	rec := &receptionRecord{Reception: Reception{
		ID:       uuid.New(),
		DateTime: s.now().UTC(),
		PVZID:    pvzID,
		Status:   StatusInProgress,
	}}
	p.receptions = append(p.receptions, rec)
	return rec.Reception, nil
}

func (s *store) addProduct(pvzID uuid.UUID, productType string) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[pvzID]
	if !ok {
		return Product{}, errPVZNotFound
	}
	rec := p.open()
	if rec == nil {
		return Product{}, errNoActiveReception
	}
	prod := &Product{ID: uuid.New(), DateTime: s.now().UTC(), Type: productType, ReceptionID: rec.ID}
	rec.products = append(rec.products, prod)
	return *prod, nil
}

func (s *store) deleteLastProduct(pvzID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[pvzID]
	if !ok {
		return errPVZNotFound
	}
	rec := p.open()
	if rec == nil || len(rec.products) == 0 {
		return errNoProductOrReception
	}
	rec.products = rec.products[:len(rec.products)-1]
	return nil
}

func (s *store) closeReception(pvzID uuid.UUID) (Reception, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[pvzID]
	if !ok {
		return Reception{}, errPVZNotFound
	}
	rec := p.open()
	if rec == nil {
		return Reception{}, errNoActiveReception
	}
	rec.Status = StatusClose
	return rec.Reception, nil
}

// ReceptionView is a reception with its products as returned by GET /pvz.
type ReceptionView struct {
	Reception Reception `json:"reception"`
	Products  []Product `json:"products"`
}

// PVZView is one entry of the GET /pvz response.
type PVZView struct {
	PVZ        PVZ             `json:"pvz"`
	Receptions []ReceptionView `json:"receptions"`
}

type listParams struct {
	start, end *time.Time
	page       int
	limit      int
}

// list returns one page of PVZs that have at least one reception inside
// the date range. Without a range every PVZ is listed.
func (s *store) list(p listParams) []PVZView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inRange := func(t time.Time) bool {
		if p.start != nil && t.Before(*p.start) {
			return false
		}
		if p.end != nil && t.After(*p.end) {
			return false
		}
		return true
	}
	filtered := p.start != nil || p.end != nil

	var views []PVZView
	for _, rec := range s.order {
		view := PVZView{PVZ: rec.PVZ, Receptions: []ReceptionView{}}
		for _, r := range rec.receptions {
			if !inRange(r.DateTime) {
				continue
			}
			rv := ReceptionView{Reception: r.Reception, Products: make([]Product, 0, len(r.products))}
			for _, prod := range r.products {
				rv.Products = append(rv.Products, *prod)
			}
			view.Receptions = append(view.Receptions, rv)
		}
		if filtered && len(view.Receptions) == 0 {
			continue
		}
		views = append(views, view)
	}

	sort.SliceStable(views, func(i, j int) bool {
		return views[i].PVZ.RegistrationDate.After(views[j].PVZ.RegistrationDate)
	})

	from := (p.page - 1) * p.limit
	if from >= len(views) {
		return []PVZView{}
	}
	to := from + p.limit
	if to > len(views) {
		to = len(views)
	}
	return views[from:to]
}

func (s *store) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
