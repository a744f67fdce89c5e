package partner

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/validate"
)

// Entry is a registered partner plus the settings it was built from.
type Entry struct {
	Partner  Partner
	Settings Settings
}

// Registry keeps partners in their configured order.
type Registry struct {
	mu      sync.RWMutex
	entries []*Entry
	byCode  map[string]*Entry
}

func NewRegistry() *Registry {
	return &Registry{byCode: make(map[string]*Entry)}
}

// Register appends p. Codes are case-insensitive and must be unique.
func (r *Registry) Register(p Partner, s Settings) error {
	code := strings.ToUpper(p.Code())
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byCode[code]; dup {
		return fmt.Errorf("partner %s registered twice", code)
	}
	e := &Entry{Partner: p, Settings: s}
	r.entries = append(r.entries, e)
	r.byCode[code] = e
	return nil
}

func (r *Registry) Get(code string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byCode[strings.ToUpper(code)]
	return e, ok
}

// All returns every entry in configured order.
func (r *Registry) All() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Banks returns the active bank partners in configured order. This is the
// eligibility sweep order.
func (r *Registry) Banks() []*Entry {
	var out []*Entry
	for _, e := range r.All() {
		if e.Settings.Active && e.Partner.Kind() == KindBank {
			out = append(out, e)
		}
	}
	return out
}

// ForPhone returns the active mobile-money operator serving phone's prefix.
func (r *Registry) ForPhone(phone string) (*Entry, bool) {
	prefix := validate.OperatorPrefix(phone)
	if prefix == "" {
		return nil, false
	}
	for _, e := range r.All() {
		if !e.Settings.Active || e.Partner.Kind() != KindMobileMoney {
			continue
		}
		for _, p := range e.Settings.Prefixes {
			if p == prefix {
				return e, true
			}
		}
	}
	return nil, false
}
