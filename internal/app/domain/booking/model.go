// Package booking defines the catalog, booking, and payment entities.
package booking

import "github.com/afrobizconnect/client-go/internal/app/domain/user"

// Service is a bookable catalog entry published by a provider.
type Service struct {
	ID           string        `json:"id"`
	BusinessID   string        `json:"businessId"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Category     string        `json:"category"`
	Subcategory  string        `json:"subcategory,omitempty"`
	Price        Price         `json:"price"`
	Duration     *Duration     `json:"duration,omitempty"`
	Location     *Venue        `json:"location,omitempty"`
	Availability Availability  `json:"availability"`
	Requirements []string      `json:"requirements,omitempty"`
	Features     []string      `json:"features"`
	Gallery      []string      `json:"gallery"`
	Rating       float64       `json:"rating,omitempty"`
	ReviewCount  int           `json:"reviewCount,omitempty"`
	IsActive     bool          `json:"isActive"`
	CreatedAt    string        `json:"createdAt"`
	UpdatedAt    string        `json:"updatedAt"`
}

// PriceType states how a service is charged.
type PriceType string

const (
	PriceFixed  PriceType = "fixed"
	PriceHourly PriceType = "hourly"
	PriceDaily  PriceType = "daily"
	PriceCustom PriceType = "custom"
)

// Price is an amount in a currency with a charging model.
type Price struct {
	Amount   float64   `json:"amount"`
	Currency string    `json:"currency"`
	Type     PriceType `json:"type"`
}

// Duration is a service's nominal length.
type Duration struct {
	Amount int    `json:"amount"`
	Unit   string `json:"unit"` // minutes, hours, days
}

// Venue states where the service is delivered.
type Venue struct {
	Type        string            `json:"type"` // business, customer, both
	Address     string            `json:"address,omitempty"`
	Coordinates *user.Coordinates `json:"coordinates,omitempty"`
	Notes       string            `json:"notes,omitempty"`
}

// Availability is the provider's bookable schedule.
type Availability struct {
	Schedule       map[string]DaySchedule `json:"schedule"`
	Exceptions     []ScheduleException    `json:"exceptions,omitempty"`
	AdvanceBooking AdvanceBookingWindow   `json:"advanceBooking"`
}

// DaySchedule is one weekday's open slots.
type DaySchedule struct {
	IsAvailable bool       `json:"isAvailable"`
	Slots       []TimeSlot `json:"slots"`
}

// ScheduleException overrides the weekly schedule for a date.
type ScheduleException struct {
	Date        string     `json:"date"`
	IsAvailable bool       `json:"isAvailable"`
	Reason      string     `json:"reason,omitempty"`
	Slots       []TimeSlot `json:"slots,omitempty"`
}

// AdvanceBookingWindow bounds how far ahead bookings may be placed.
type AdvanceBookingWindow struct {
	Min int `json:"min"` // minimum hours in advance
	Max int `json:"max"` // maximum days in advance
}

// TimeSlot is an HH:mm interval.
type TimeSlot struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	IsBooked bool   `json:"isBooked,omitempty"`
}

// Status is the booking lifecycle state, mutated only by server responses.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
	StatusRefunded   Status = "refunded"
)

// Request is the payload for creating a booking.
type Request struct {
	ServiceID     string        `json:"serviceId"`
	Date          string        `json:"date"` // YYYY-MM-DD
	TimeSlot      TimeSlot      `json:"timeSlot"`
	Duration      int           `json:"duration,omitempty"` // minutes
	Location      *Venue        `json:"location,omitempty"`
	Requirements  []string      `json:"requirements,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
}

// Booking is a confirmed reservation of a service.
type Booking struct {
	ID               string      `json:"id"`
	CustomerID       string      `json:"customerId"`
	BusinessID       string      `json:"businessId"`
	ServiceID        string      `json:"serviceId"`
	Service          Service     `json:"service"`
	Status           Status      `json:"status"`
	Date             string      `json:"date"`
	TimeSlot         TimeSlot    `json:"timeSlot"`
	Duration         int         `json:"duration"`
	Location         Venue       `json:"location"`
	Pricing          Pricing     `json:"pricing"`
	Payment          PaymentInfo `json:"payment"`
	Requirements     []string    `json:"requirements,omitempty"`
	Notes            string      `json:"notes,omitempty"`
	CustomerNotes    string      `json:"customerNotes,omitempty"`
	BusinessNotes    string      `json:"businessNotes,omitempty"`
	ConfirmationCode string      `json:"confirmationCode"`
	CreatedAt        string      `json:"createdAt"`
	UpdatedAt        string      `json:"updatedAt"`
}

// Pricing is the booking's cost breakdown.
type Pricing struct {
	Subtotal   float64 `json:"subtotal"`
	ServiceFee float64 `json:"serviceFee"`
	Taxes      float64 `json:"taxes"`
	Total      float64 `json:"total"`
	Currency   string  `json:"currency"`
}

// PaymentMethod identifies how a booking is paid.
type PaymentMethod struct {
	Type     string          `json:"type"` // credit_card, debit_card, mobile_money, bank_transfer, cash
	Provider string          `json:"provider,omitempty"`
	Token    string          `json:"token,omitempty"`
	Details  *PaymentDetails `json:"details,omitempty"`
}

// PaymentDetails are masked display fields for a saved method.
type PaymentDetails struct {
	CardNumber  string `json:"cardNumber,omitempty"`
	ExpiryMonth int    `json:"expiryMonth,omitempty"`
	ExpiryYear  int    `json:"expiryYear,omitempty"`
	HolderName  string `json:"holderName,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// PaymentStatus is the payment lifecycle state.
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentProcessing        PaymentStatus = "processing"
	PaymentCompleted         PaymentStatus = "completed"
	PaymentFailed            PaymentStatus = "failed"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
)

// PaymentInfo is the server-reported payment record on a booking.
type PaymentInfo struct {
	ID            string        `json:"id"`
	Method        PaymentMethod `json:"method"`
	Status        PaymentStatus `json:"status"`
	Amount        float64       `json:"amount"`
	Currency      string        `json:"currency"`
	TransactionID string        `json:"transactionId,omitempty"`
	ProcessedAt   string        `json:"processedAt,omitempty"`
	FailureReason string        `json:"failureReason,omitempty"`
}

// Review is a customer's rating of a completed booking.
type Review struct {
	ID         string   `json:"id"`
	BookingID  string   `json:"bookingId"`
	CustomerID string   `json:"customerId"`
	BusinessID string   `json:"businessId"`
	ServiceID  string   `json:"serviceId"`
	Rating     int      `json:"rating"` // 1-5
	Comment    string   `json:"comment,omitempty"`
	Images     []string `json:"images,omitempty"`
	CreatedAt  string   `json:"createdAt"`
	UpdatedAt  string   `json:"updatedAt"`
}

// Refund is the server's acknowledgement of a refund request.
type Refund struct {
	RefundID                string  `json:"refundId"`
	Status                  string  `json:"status"`
	Amount                  float64 `json:"amount"`
	EstimatedProcessingTime string  `json:"estimatedProcessingTime"`
}

// ServiceFilters narrow a catalog listing.
type ServiceFilters struct {
	Category string
	Search   string
	PriceMin float64
	PriceMax float64
	Rating   float64
	Page     int
	Limit    int
}

// BookingFilters narrow a booking listing.
type BookingFilters struct {
	Statuses  []Status
	DateFrom  string
	DateTo    string
	ServiceID string
}

// AvailabilityQuery asks for open slots on a service.
type AvailabilityQuery struct {
	ServiceID string `json:"serviceId"`
	Date      string `json:"date,omitempty"`
	DateEnd   string `json:"dateEnd,omitempty"`
	Duration  int    `json:"duration,omitempty"`
}

// AvailabilityResult is the server's answer to an AvailabilityQuery.
type AvailabilityResult struct {
	Available bool       `json:"available"`
	Slots     []DaySlots `json:"slots"`
}

// DaySlots groups open slots by date.
type DaySlots struct {
	Date  string     `json:"date"`
	Slots []TimeSlot `json:"slots"`
}
