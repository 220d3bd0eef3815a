package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/eventure/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// RegistrationService handles event signups. Paid registrations start as a
// PENDING registration tied to a PENDING deposit intent; only reconciliation
// moves them forward, and the sweeper removes the ones nobody paid for.
type RegistrationService struct {
	db        *sql.DB
	intents   *IntentService
	validator *ValidationHelper
}

func NewRegistrationService(db *sql.DB, intents *IntentService) *RegistrationService {
	return &RegistrationService{
		db:        db,
		intents:   intents,
		validator: NewValidationHelper(),
	}
}

// InitiateDeposit creates the deposit intent and its pending registration as
// one unit and returns transfer instructions. Capacity is enforced here, at
// intent creation; reconciliation later only increments the count.
func (s *RegistrationService) InitiateDeposit(eventID, userID, phone string) (*PaymentInstructions, error) {
	event := &models.Event{}
	err := s.db.QueryRow(`
		SELECT id, organizer_id, status, COALESCE(price, 0), capacity, registered_count
		FROM events
		WHERE id = $1`, eventID).
		Scan(&event.ID, &event.OrganizerID, &event.Status, &event.Price,
			&event.Capacity, &event.RegisteredCount)
	if err != nil {
		return nil, err
	}

	if event.Status != models.EventStatusPublished {
		return nil, ErrEventNotPublished
	}
	if event.Price <= 0 {
		return nil, ErrEventNotPaid
	}
	if event.RegisteredCount >= event.Capacity {
		return nil, ErrEventFull
	}

	var existing int
	err = s.db.QueryRow(`
		SELECT COUNT(1) FROM registrations
		WHERE event_id = $1 AND user_id = $2 AND status IN ($3, $4)`,
		eventID, userID, models.RegistrationStatusRegistered, models.RegistrationStatusDeposited).
		Scan(&existing)
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrAlreadyRegistered
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	intent, err := s.intents.CreateDepositIntentTx(tx, userID, eventID, event.Price)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(`
		INSERT INTO registrations (id, event_id, user_id, status, phone, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), eventID, userID, models.RegistrationStatusPending,
		phone, intent.ID, time.Now())
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.intents.instructionsFor(intent.OrderCode, intent.Amount)
}

// CreateFree registers a user for a free event, taking a capacity slot
// immediately.
func (s *RegistrationService) CreateFree(eventID, userID string) (*models.Registration, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	event := &models.Event{}
	err = tx.QueryRow(`
		SELECT id, status, capacity, registered_count
		FROM events
		WHERE id = $1`, eventID).
		Scan(&event.ID, &event.Status, &event.Capacity, &event.RegisteredCount)
	if err != nil {
		return nil, err
	}
	if event.Status != models.EventStatusPublished {
		return nil, ErrEventNotPublished
	}
	if event.RegisteredCount >= event.Capacity {
		return nil, ErrEventFull
	}

	var existing int
	if err := tx.QueryRow(`
		SELECT COUNT(1) FROM registrations WHERE event_id = $1 AND user_id = $2`,
		eventID, userID).Scan(&existing); err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrAlreadyRegistered
	}

	registration := &models.Registration{
		ID:        uuid.New().String(),
		EventID:   eventID,
		UserID:    userID,
		Status:    models.RegistrationStatusRegistered,
		CreatedAt: time.Now(),
	}

	if _, err := tx.Exec(`
		INSERT INTO registrations (id, event_id, user_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		registration.ID, eventID, userID, registration.Status, registration.CreatedAt); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(`
		UPDATE events SET registered_count = registered_count + 1 WHERE id = $1`,
		eventID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return registration, nil
}

// Cancel removes the user's registration and releases its capacity slot.
func (s *RegistrationService) Cancel(eventID, userID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRow(`
		SELECT status FROM registrations WHERE event_id = $1 AND user_id = $2`,
		eventID, userID).Scan(&status)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`
		DELETE FROM registrations WHERE event_id = $1 AND user_id = $2`,
		eventID, userID); err != nil {
		return err
	}

	// Pending registrations never took a capacity slot.
	if status != models.RegistrationStatusPending {
		if _, err := tx.Exec(`
			UPDATE events SET registered_count = registered_count - 1 WHERE id = $1`,
			eventID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// InitiateEventDeposit starts a paid registration
// @Summary Initiate an event deposit
// @Description Create a PENDING deposit intent plus registration and return transfer instructions
// @Tags registrations
// @Accept json
// @Produce json
// @Param eventId path string true "Event ID"
// @Success 201 {object} PaymentInstructions
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /events/{eventId}/deposit [post]
func (s *RegistrationService) InitiateEventDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	eventID := chi.URLParam(r, "eventId")

	var req struct {
		Phone string `json:"phone" validate:"required"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1_048_576))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	instructions, err := s.InitiateDeposit(eventID, userID, req.Phone)
	if err != nil {
		switch err {
		case sql.ErrNoRows:
			SendErrorResponse(w, "Event not found", http.StatusNotFound, nil)
		case ErrEventNotPublished, ErrEventNotPaid, ErrEventFull:
			SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		case ErrAlreadyRegistered:
			SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
		default:
			log.Printf("[REGISTRATION] Failed to initiate deposit for event %s: %v", eventID, err)
			SendErrorResponse(w, "Failed to initiate deposit", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(instructions)
}

// Register signs the caller up for a free event
// @Summary Register for an event
// @Tags registrations
// @Produce json
// @Param eventId path string true "Event ID"
// @Success 201 {object} models.Registration
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /events/{eventId}/register [post]
func (s *RegistrationService) Register(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	registration, err := s.CreateFree(chi.URLParam(r, "eventId"), userID)
	if err != nil {
		switch err {
		case sql.ErrNoRows:
			SendErrorResponse(w, "Event not found", http.StatusNotFound, nil)
		case ErrEventNotPublished, ErrEventFull:
			SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		case ErrAlreadyRegistered:
			SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
		default:
			SendErrorResponse(w, "Failed to register", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(registration)
}

// Unregister cancels the caller's registration
// @Summary Cancel a registration
// @Tags registrations
// @Produce json
// @Param eventId path string true "Event ID"
// @Success 200 {object} object{message=string}
// @Failure 404 {object} ErrorResponse
// @Router /events/{eventId}/register [delete]
func (s *RegistrationService) Unregister(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	if err := s.Cancel(chi.URLParam(r, "eventId"), userID); err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Registration not found", http.StatusNotFound, nil)
			return
		}
		SendErrorResponse(w, "Failed to cancel registration", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Registration cancelled successfully"})
}

// GetRegistrationStatus reports whether the caller is registered
// @Summary Registration status
// @Tags registrations
// @Produce json
// @Param eventId path string true "Event ID"
// @Success 200 {object} object{isRegistered=bool,status=string}
// @Router /events/{eventId}/registration [get]
func (s *RegistrationService) GetRegistrationStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var status string
	var createdAt time.Time
	err := s.db.QueryRow(`
		SELECT status, created_at FROM registrations WHERE event_id = $1 AND user_id = $2`,
		chi.URLParam(r, "eventId"), userID).Scan(&status, &createdAt)

	w.Header().Set("Content-Type", "application/json")
	if err == sql.ErrNoRows {
		json.NewEncoder(w).Encode(map[string]any{"isRegistered": false, "status": nil, "registeredAt": nil})
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch registration status", http.StatusInternalServerError, nil)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"isRegistered": true,
		"status":       status,
		"registeredAt": createdAt,
	})
}
