package booking

import (
	"strings"
	"time"

	"github.com/afrobizconnect/client-go/internal/app/domain/booking"
	"github.com/afrobizconnect/client-go/internal/app/domain/user"
)

// Built-in catalog served when the API is unreachable. Read-only: the app
// stays browsable offline, while anything transactional requires the server.

func weekdays(start, end string) map[string]booking.DaySchedule {
	open := booking.DaySchedule{IsAvailable: true, Slots: []booking.TimeSlot{{Start: start, End: end}}}
	return map[string]booking.DaySchedule{
		"monday": open, "tuesday": open, "wednesday": open,
		"thursday": open, "friday": open,
	}
}

func fallbackCatalog() []booking.Service {
	now := time.Now().UTC().Format(time.RFC3339)

	hair := weekdays("09:00", "17:00")
	hair["saturday"] = booking.DaySchedule{IsAvailable: true, Slots: []booking.TimeSlot{{Start: "10:00", End: "16:00"}}}
	hair["sunday"] = booking.DaySchedule{IsAvailable: false}

	catering := weekdays("08:00", "20:00")
	catering["saturday"] = booking.DaySchedule{IsAvailable: true, Slots: []booking.TimeSlot{{Start: "08:00", End: "20:00"}}}
	catering["sunday"] = booking.DaySchedule{IsAvailable: true, Slots: []booking.TimeSlot{{Start: "10:00", End: "18:00"}}}

	tailor := weekdays("08:00", "17:00")
	tailor["saturday"] = booking.DaySchedule{IsAvailable: true, Slots: []booking.TimeSlot{{Start: "09:00", End: "15:00"}}}
	tailor["sunday"] = booking.DaySchedule{IsAvailable: false}

	return []booking.Service{
		{
			ID:          "1",
			BusinessID:  "business-1",
			Name:        "Professional Hair Styling",
			Description: "Expert hair styling and treatment services for all hair types",
			Category:    "Beauty",
			Subcategory: "Hair Care",
			Price:       booking.Price{Amount: 150, Currency: "NAD", Type: booking.PriceFixed},
			Duration:    &booking.Duration{Amount: 90, Unit: "minutes"},
			Location: &booking.Venue{
				Type:        "business",
				Address:     "Windhoek, Namibia",
				Coordinates: &user.Coordinates{Latitude: -22.5609, Longitude: 17.0658},
			},
			Availability: booking.Availability{
				Schedule:       hair,
				AdvanceBooking: booking.AdvanceBookingWindow{Min: 2, Max: 30},
			},
			Requirements: []string{"Clean hair preferred"},
			Features:     []string{"Professional styling", "Hair treatment", "Consultation"},
			Gallery:      []string{"https://images.unsplash.com/photo-1560066984-138dadb4c035?w=400&h=300&fit=crop"},
			Rating:       4.8,
			ReviewCount:  127,
			IsActive:     true,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		{
			ID:          "2",
			BusinessID:  "business-2",
			Name:        "Traditional African Cuisine Catering",
			Description: "Authentic African dishes for events and celebrations",
			Category:    "Food",
			Subcategory: "Catering",
			Price:       booking.Price{Amount: 80, Currency: "NAD", Type: booking.PriceHourly},
			Duration:    &booking.Duration{Amount: 4, Unit: "hours"},
			Location:    &booking.Venue{Type: "customer", Address: "Windhoek Area"},
			Availability: booking.Availability{
				Schedule:       catering,
				AdvanceBooking: booking.AdvanceBookingWindow{Min: 24, Max: 60},
			},
			Requirements: []string{"Kitchen access", "Minimum 10 people"},
			Features:     []string{"Traditional recipes", "Fresh ingredients", "Setup included"},
			Gallery:      []string{"https://images.unsplash.com/photo-1546833999-b9f581a1996d?w=400&h=300&fit=crop"},
			Rating:       4.9,
			ReviewCount:  89,
			IsActive:     true,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		{
			ID:          "3",
			BusinessID:  "business-3",
			Name:        "Custom Tailoring & Alterations",
			Description: "Professional tailoring services for traditional and modern clothing",
			Category:    "Fashion",
			Subcategory: "Tailoring",
			Price:       booking.Price{Amount: 200, Currency: "NAD", Type: booking.PriceFixed},
			Duration:    &booking.Duration{Amount: 3, Unit: "days"},
			Location:    &booking.Venue{Type: "business", Address: "Katutura, Windhoek"},
			Availability: booking.Availability{
				Schedule:       tailor,
				AdvanceBooking: booking.AdvanceBookingWindow{Min: 48, Max: 90},
			},
			Requirements: []string{"Fabric provided by customer", "Measurements required"},
			Features:     []string{"Custom fitting", "Traditional designs", "Modern styles"},
			Gallery:      []string{"https://images.unsplash.com/photo-1445205170230-053b83016050?w=400&h=300&fit=crop"},
			Rating:       4.7,
			ReviewCount:  156,
			IsActive:     true,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}
}

// fallbackServices applies the listing filters to the built-in catalog.
func fallbackServices(f booking.ServiceFilters) []booking.Service {
	out := make([]booking.Service, 0)
	search := strings.ToLower(strings.TrimSpace(f.Search))
	for _, svc := range fallbackCatalog() {
		if f.Category != "" && !strings.EqualFold(svc.Category, f.Category) {
			continue
		}
		if f.Rating > 0 && svc.Rating < f.Rating {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(svc.Name), search) &&
			!strings.Contains(strings.ToLower(svc.Description), search) &&
			!strings.Contains(strings.ToLower(svc.Category), search) {
			continue
		}
		out = append(out, svc)
	}
	return out
}

func fallbackFeatured() []booking.Service {
	return fallbackCatalog()
}

func fallbackPaymentMethods() []booking.PaymentMethod {
	return []booking.PaymentMethod{
		{
			Type:     "mobile_money",
			Provider: "mtn_mobile_money",
			Details:  &booking.PaymentDetails{PhoneNumber: "*****1234"},
		},
		{
			Type:     "credit_card",
			Provider: "visa",
			Details: &booking.PaymentDetails{
				CardNumber:  "****1234",
				ExpiryMonth: 12,
				ExpiryYear:  2025,
				HolderName:  "John Doe",
			},
		},
	}
}
