package dto

import (
	"time"

	"github.com/spec-kit/guestpass-service/internal/domain"
)

// CreateRegistrationRequest payload. SubmitNow sends it to the portal right after saving.
type CreateRegistrationRequest struct {
	FirstName         string  `json:"first_name"`
	LastName          string  `json:"last_name"`
	LicensePlate      string  `json:"license_plate"`
	LicensePlateState string  `json:"license_plate_state"`
	CarYear           string  `json:"car_year"`
	CarMake           string  `json:"car_make"`
	CarModel          string  `json:"car_model"`
	CarColor          string  `json:"car_color"`
	ResidentVisiting  string  `json:"resident_visiting"`
	ApartmentVisiting string  `json:"apartment_visiting"`
	PhoneNumber       *string `json:"phone_number"`
	Email             string  `json:"email"`
	SubmitNow         bool    `json:"submit_now"`
}

// Fields maps the payload onto the domain form.
func (r CreateRegistrationRequest) Fields() domain.RegistrationFields {
	return domain.RegistrationFields{
		FirstName:         r.FirstName,
		LastName:          r.LastName,
		LicensePlate:      r.LicensePlate,
		LicensePlateState: r.LicensePlateState,
		CarYear:           r.CarYear,
		CarMake:           r.CarMake,
		CarModel:          r.CarModel,
		CarColor:          r.CarColor,
		ResidentVisiting:  r.ResidentVisiting,
		ApartmentVisiting: r.ApartmentVisiting,
		PhoneNumber:       r.PhoneNumber,
		Email:             r.Email,
	}
}

// SetActiveRequest payload.
type SetActiveRequest struct {
	Active *bool `json:"active"`
}

// SetAutoReregisterRequest payload.
type SetAutoReregisterRequest struct {
	Enabled *bool `json:"enabled"`
}

// RegistrationResponse is the API view of a registration.
type RegistrationResponse struct {
	ID                string                    `json:"id"`
	OwnerID           string                    `json:"owner_id"`
	FirstName         string                    `json:"first_name"`
	LastName          string                    `json:"last_name"`
	LicensePlate      string                    `json:"license_plate"`
	LicensePlateState string                    `json:"license_plate_state"`
	CarYear           string                    `json:"car_year"`
	CarMake           string                    `json:"car_make"`
	CarModel          string                    `json:"car_model"`
	CarColor          string                    `json:"car_color"`
	ResidentVisiting  string                    `json:"resident_visiting"`
	ApartmentVisiting string                    `json:"apartment_visiting"`
	PhoneNumber       *string                   `json:"phone_number"`
	Email             string                    `json:"email"`
	CreatedAt         time.Time                 `json:"created_at"`
	LastSubmittedAt   *time.Time                `json:"last_submitted_at"`
	ExpiresAt         *time.Time                `json:"expires_at"`
	SubmissionCount   int                       `json:"submission_count"`
	AutoReregister    bool                      `json:"auto_reregister"`
	IsActive          bool                      `json:"is_active"`
	Status            domain.RegistrationStatus `json:"status"`
}

// NewRegistrationResponse renders reg with its status derived at now.
func NewRegistrationResponse(reg *domain.Registration, now time.Time, noticeWindow time.Duration) RegistrationResponse {
	return RegistrationResponse{
		ID:                reg.ID,
		OwnerID:           reg.OwnerID,
		FirstName:         reg.FirstName,
		LastName:          reg.LastName,
		LicensePlate:      reg.LicensePlate,
		LicensePlateState: reg.LicensePlateState,
		CarYear:           reg.CarYear,
		CarMake:           reg.CarMake,
		CarModel:          reg.CarModel,
		CarColor:          reg.CarColor,
		ResidentVisiting:  reg.ResidentVisiting,
		ApartmentVisiting: reg.ApartmentVisiting,
		PhoneNumber:       reg.PhoneNumber,
		Email:             reg.Email,
		CreatedAt:         reg.CreatedAt,
		LastSubmittedAt:   reg.LastSubmittedAt,
		ExpiresAt:         reg.ExpiresAt,
		SubmissionCount:   reg.SubmissionCount,
		AutoReregister:    reg.AutoReregister,
		IsActive:          reg.IsActive,
		Status:            reg.Status(now, noticeWindow),
	}
}

// SubmissionOutcome reports an inline submission attempted on create.
type SubmissionOutcome struct {
	OK     bool   `json:"ok"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}
