package domain

import (
	"strings"
	"time"
	"unicode"
)

// ValidityWindow is how long the parking portal honours a single submission.
const ValidityWindow = 24 * time.Hour

// RegistrationStatus is a derived display state. It is never persisted.
type RegistrationStatus string

const (
	RegistrationStatusNeverSubmitted RegistrationStatus = "NEVER_SUBMITTED"
	RegistrationStatusLive           RegistrationStatus = "LIVE"
	RegistrationStatusExpiring       RegistrationStatus = "EXPIRING"
	RegistrationStatusExpired        RegistrationStatus = "EXPIRED"
)

// RegistrationFields is the guest, vehicle and visit data sent to the parking portal.
type RegistrationFields struct {
	FirstName         string
	LastName          string
	LicensePlate      string
	LicensePlateState string
	CarYear           string
	CarMake           string
	CarModel          string
	CarColor          string
	ResidentVisiting  string
	ApartmentVisiting string
	PhoneNumber       *string
	Email             string
}

// Registration is the aggregate for a stored guest parking request.
type Registration struct {
	ID      string
	OwnerID string
	RegistrationFields
	CreatedAt       time.Time
	LastSubmittedAt *time.Time
	ExpiresAt       *time.Time
	SubmissionCount int
	AutoReregister  bool
	IsActive        bool
}

// ExpiryFor returns the expiry instant of a submission made at submittedAt.
func ExpiryFor(submittedAt time.Time) time.Time {
	return submittedAt.Add(ValidityWindow)
}

// Normalize trims every field, title-cases names and upper-cases plate data.
func (f RegistrationFields) Normalize() RegistrationFields {
	f.FirstName = titleCase(f.FirstName)
	f.LastName = titleCase(f.LastName)
	f.LicensePlate = strings.ToUpper(strings.TrimSpace(f.LicensePlate))
	f.LicensePlateState = strings.ToUpper(strings.TrimSpace(f.LicensePlateState))
	f.CarYear = strings.TrimSpace(f.CarYear)
	f.CarMake = strings.TrimSpace(f.CarMake)
	f.CarModel = strings.TrimSpace(f.CarModel)
	f.CarColor = strings.TrimSpace(f.CarColor)
	f.ResidentVisiting = strings.TrimSpace(f.ResidentVisiting)
	f.ApartmentVisiting = strings.TrimSpace(f.ApartmentVisiting)
	f.Email = strings.TrimSpace(f.Email)
	if f.PhoneNumber != nil {
		phone := strings.TrimSpace(*f.PhoneNumber)
		if phone == "" {
			f.PhoneNumber = nil
		} else {
			f.PhoneNumber = &phone
		}
	}
	return f
}

// Validate returns the problems keyed by field name. An empty map means the fields are usable.
func (f RegistrationFields) Validate() map[string]string {
	problems := map[string]string{}
	required := map[string]string{
		"first_name":          f.FirstName,
		"last_name":           f.LastName,
		"license_plate":       f.LicensePlate,
		"license_plate_state": f.LicensePlateState,
		"car_year":            f.CarYear,
		"car_make":            f.CarMake,
		"car_model":           f.CarModel,
		"car_color":           f.CarColor,
		"resident_visiting":   f.ResidentVisiting,
		"apartment_visiting":  f.ApartmentVisiting,
		"email":               f.Email,
	}
	for name, val := range required {
		if strings.TrimSpace(val) == "" {
			problems[name] = "required"
		}
	}
	if _, missing := problems["license_plate_state"]; !missing && !isLetters(f.LicensePlateState, 2) {
		problems["license_plate_state"] = "must be a two letter region code"
	}
	if _, missing := problems["car_year"]; !missing && !isDigits(f.CarYear, 4) {
		problems["car_year"] = "must be a four digit year"
	}
	if _, missing := problems["email"]; !missing && !strings.Contains(f.Email, "@") {
		problems["email"] = "must be an email address"
	}
	return problems
}

// HasBeenSubmitted reports whether the portal ever accepted this registration.
func (r *Registration) HasBeenSubmitted() bool {
	return r.ExpiresAt != nil
}

// IsExpired reports whether a submitted registration's window has closed.
func (r *Registration) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// IsExpiringSoon reports whether expiry falls within [now, now+window].
func (r *Registration) IsExpiringSoon(now time.Time, window time.Duration) bool {
	if r.ExpiresAt == nil {
		return false
	}
	return withinWindow(*r.ExpiresAt, now, window)
}

// IsRenewalCandidate applies the unattended renewal rule.
func (r *Registration) IsRenewalCandidate(now time.Time, lead time.Duration) bool {
	return r.IsActive && r.AutoReregister && r.IsExpiringSoon(now, lead)
}

// Status derives the display state at now.
func (r *Registration) Status(now time.Time, noticeWindow time.Duration) RegistrationStatus {
	switch {
	case !r.HasBeenSubmitted():
		return RegistrationStatusNeverSubmitted
	case r.IsExpired(now):
		return RegistrationStatusExpired
	case r.IsExpiringSoon(now, noticeWindow):
		return RegistrationStatusExpiring
	default:
		return RegistrationStatusLive
	}
}

func withinWindow(at, now time.Time, window time.Duration) bool {
	return !at.Before(now) && !at.After(now.Add(window))
}

func titleCase(val string) string {
	words := strings.Fields(val)
	for i, word := range words {
		runes := []rune(strings.ToLower(word))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

func isLetters(val string, n int) bool {
	if len(val) != n {
		return false
	}
	for _, r := range val {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func isDigits(val string, n int) bool {
	if len(val) != n {
		return false
	}
	for _, r := range val {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
