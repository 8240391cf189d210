package tenant

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrBusinessNotFound is returned by [Registry.BusinessIDFromPhone] and
// [Registry.Config] when no business matches the lookup.
var ErrBusinessNotFound = errors.New("tenant: business not found")

// Registry holds the loaded set of [BusinessConfig] records and the
// phone-number → business-ID index. It is read-mostly: every call looks up
// its business on the hot path, while reloads are rare, full-registry swaps
// gated behind a write lock — no per-call hot swap (§3 Ownership).
type Registry struct {
	mu          sync.RWMutex
	byBusiness  map[string]BusinessConfig
	byNumber    map[string]string // E.164 -> businessID
	initialized bool

	path      string
	lastHash  [sha256.Size]byte
	lastMtime time.Time
}

// NewRegistry returns an empty, uninitialized Registry. Call [Registry.Load]
// before serving any calls.
func NewRegistry() *Registry {
	return &Registry{
		byBusiness: make(map[string]BusinessConfig),
		byNumber:   make(map[string]string),
	}
}

// Load reads and validates the registry file at path, replacing the current
// in-memory snapshot atomically. Safe to call again later to reload.
func (r *Registry) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("tenant: open registry %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("tenant: read registry %q: %w", path, err)
	}

	if err := r.loadBytes(data); err != nil {
		return err
	}

	r.path = path
	r.lastHash = sha256.Sum256(data)
	if info, err := f.Stat(); err == nil {
		r.lastMtime = info.ModTime()
	}
	return nil
}

// loadBytes decodes, validates, and installs a registry snapshot from raw
// YAML bytes.
func (r *Registry) loadBytes(data []byte) error {
	var rf registryFile
	dec := yaml.NewDecoder(bytesReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil {
		return fmt.Errorf("tenant: decode registry yaml: %w", err)
	}

	byBusiness := make(map[string]BusinessConfig, len(rf.Businesses))
	byNumber := make(map[string]string)
	var errs []error

	for i, biz := range rf.Businesses {
		prefix := fmt.Sprintf("businesses[%d]", i)
		if biz.BusinessID == "" {
			errs = append(errs, fmt.Errorf("%s.business_id is required", prefix))
			continue
		}
		if _, dup := byBusiness[biz.BusinessID]; dup {
			errs = append(errs, fmt.Errorf("%s.business_id %q is a duplicate", prefix, biz.BusinessID))
			continue
		}
		if err := validateBusiness(biz); err != nil {
			errs = append(errs, fmt.Errorf("%s (%s): %w", prefix, biz.BusinessID, err))
			continue
		}
		byBusiness[biz.BusinessID] = biz
		for _, num := range biz.IncomingNumbers {
			if prev, dup := byNumber[num]; dup {
				errs = append(errs, fmt.Errorf("%s: number %q already bound to business %q", prefix, num, prev))
				continue
			}
			byNumber[num] = biz.BusinessID
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("tenant: registry validation failed: %w", err)
	}

	r.mu.Lock()
	r.byBusiness = byBusiness
	r.byNumber = byNumber
	r.initialized = true
	r.mu.Unlock()

	slog.Info("tenant registry loaded", "businesses", len(byBusiness), "numbers", len(byNumber))
	return nil
}

// validateBusiness checks feature-dependent required fields, e.g. calendar
// credentials are required iff appointment booking is enabled.
func validateBusiness(biz BusinessConfig) error {
	var errs []error
	if biz.Features.AppointmentBookingEnabled {
		switch biz.Calendar.Provider {
		case "google":
			if biz.Calendar.Google.ServiceAccountJSON == "" || biz.Calendar.Google.CalendarID == "" {
				errs = append(errs, errors.New("calendar.google requires service_account_json and calendar_id"))
			}
		case "microsoft":
			if biz.Calendar.Microsoft.ClientID == "" || biz.Calendar.Microsoft.ClientSecret == "" || biz.Calendar.Microsoft.CalendarID == "" {
				errs = append(errs, errors.New("calendar.microsoft requires client_id, client_secret and calendar_id"))
			}
		default:
			errs = append(errs, fmt.Errorf("appointment_booking_enabled requires calendar.provider to be google or microsoft, got %q", biz.Calendar.Provider))
		}
	}
	if biz.Features.EmergencyEnabled && biz.Emergency.TransferNumber == "" {
		errs = append(errs, errors.New("emergency_enabled requires emergency.transfer_number"))
	}
	if biz.Email.Provider != "" && biz.Email.FromAddress == "" {
		errs = append(errs, errors.New("email.from_address is required when email.provider is set"))
	}
	return errors.Join(errs...)
}

// IsInitialized reports whether the registry has successfully loaded at
// least one snapshot.
func (r *Registry) IsInitialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized
}

// BusinessIDFromPhone resolves the called E.164 number to a business ID.
// Returns [ErrBusinessNotFound] if no business claims that number.
func (r *Registry) BusinessIDFromPhone(calledNumber string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byNumber[calledNumber]
	if !ok {
		return "", fmt.Errorf("%w: number %q", ErrBusinessNotFound, calledNumber)
	}
	return id, nil
}

// Config returns a copy of the [BusinessConfig] for businessID.
func (r *Registry) Config(businessID string) (BusinessConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.byBusiness[businessID]
	if !ok {
		return BusinessConfig{}, fmt.Errorf("%w: id %q", ErrBusinessNotFound, businessID)
	}
	return cfg, nil
}

// Reload re-reads the registry file set by the last [Registry.Load] call.
// It is a convenience for operator-triggered reloads (e.g. SIGHUP) and for
// the background [Watcher]. Intended as the only mutation path per §3's
// "any mutation requires a global reload" rule.
func (r *Registry) Reload() error {
	r.mu.RLock()
	path := r.path
	r.mu.RUnlock()
	if path == "" {
		return errors.New("tenant: Reload called before Load")
	}
	return r.Load(path)
}

// bytesReaderImpl mirrors the teacher's minimal io.Reader wrapper — avoids
// pulling in bytes.Reader just for this one call site.
type bytesReaderImpl struct {
	data []byte
	pos  int
}

func bytesReader(b []byte) io.Reader { return &bytesReaderImpl{data: b} }

func (r *bytesReaderImpl) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
