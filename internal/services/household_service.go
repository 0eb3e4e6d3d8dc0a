package services

import (
	"bytes"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"github.com/fintrack/backend/internal/models"
)

const inviteQRTTL = 24 * time.Hour

// HouseholdService manages shared-budget groups and the invite flow
// that brings members into them.
type HouseholdService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *ValidationHelper
}

func NewHouseholdService(db *sql.DB, redisClient *redis.Client) *HouseholdService {
	return &HouseholdService{
		db:        db,
		redis:     redisClient,
		validator: NewValidationHelper(),
	}
}

type createHouseholdRequest struct {
	Name string `json:"name" validate:"required,min=2,max=60"`
}

type joinHouseholdRequest struct {
	InviteCode string `json:"inviteCode" validate:"required,len=8"`
}

// CreateHousehold creates a household and makes the caller its first member
// @Summary Create a household
// @Description Create a shared-budget household; the caller joins it immediately
// @Tags households
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param household body createHouseholdRequest true "Household data"
// @Success 201 {object} models.Household
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /households [post]
func (s *HouseholdService) CreateHousehold(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req createHouseholdRequest
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

	household := models.Household{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(req.Name),
		InviteCode: generateInviteCode(),
		CreatedAt:  time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		SendErrorResponse(w, "Failed to create household", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(r.Context(), `
        INSERT INTO households (id, name, invite_code, created_at)
        VALUES ($1, $2, $3, $4)
    `, household.ID, household.Name, household.InviteCode, household.CreatedAt)
	if err != nil {
		log.Printf("[HOUSEHOLD] Failed to create household for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to create household", http.StatusInternalServerError, nil)
		return
	}

	_, err = tx.ExecContext(r.Context(),
		`UPDATE users SET household_id = $1, updated_at = NOW() WHERE id = $2`,
		household.ID, userID)
	if err != nil {
		log.Printf("[HOUSEHOLD] Failed to add creator %s to household %s: %v", userID, household.ID, err)
		SendErrorResponse(w, "Failed to create household", http.StatusInternalServerError, nil)
		return
	}

	if err := tx.Commit(); err != nil {
		SendErrorResponse(w, "Failed to create household", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[HOUSEHOLD] User %s created household %s (%s)", userID, household.ID, household.Name)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(household)
}

// JoinHousehold adds the caller to a household by invite code
// @Summary Join a household
// @Description Join an existing household using its invite code
// @Tags households
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param invite body joinHouseholdRequest true "Invite code"
// @Success 200 {object} models.Household
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /households/join [post]
func (s *HouseholdService) JoinHousehold(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req joinHouseholdRequest
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

	code := strings.ToUpper(strings.TrimSpace(req.InviteCode))

	var household models.Household
	err := s.db.QueryRowContext(r.Context(), `
        SELECT id, name, invite_code, created_at
        FROM households
        WHERE invite_code = $1
    `, code).Scan(&household.ID, &household.Name, &household.InviteCode, &household.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Invalid invite code", http.StatusNotFound, nil)
		} else {
			log.Printf("[HOUSEHOLD] Failed to look up invite code: %v", err)
			SendErrorResponse(w, "Failed to join household", http.StatusInternalServerError, nil)
		}
		return
	}

	_, err = s.db.ExecContext(r.Context(),
		`UPDATE users SET household_id = $1, updated_at = NOW() WHERE id = $2`,
		household.ID, userID)
	if err != nil {
		log.Printf("[HOUSEHOLD] Failed to add user %s to household %s: %v", userID, household.ID, err)
		SendErrorResponse(w, "Failed to join household", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[HOUSEHOLD] User %s joined household %s", userID, household.ID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(household)
}

// GetInviteQR returns a QR image encoding the caller's household invite
// @Summary Get household invite QR
// @Description Generate a QR code carrying the invite payload for the caller's household
// @Tags households
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{payload=string,qrImage=string}
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /households/invite/qr [get]
func (s *HouseholdService) GetInviteQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var household models.Household
	err := s.db.QueryRowContext(r.Context(), `
        SELECT h.id, h.name, h.invite_code, h.created_at
        FROM households h
        JOIN users u ON u.household_id = h.id
        WHERE u.id = $1
    `, userID).Scan(&household.ID, &household.Name, &household.InviteCode, &household.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "You are not in a household", http.StatusNotFound, nil)
		} else {
			log.Printf("[HOUSEHOLD] Failed to fetch household for user %s: %v", userID, err)
			SendErrorResponse(w, "Failed to generate invite", http.StatusInternalServerError, nil)
		}
		return
	}

	payload, qrImage, err := s.buildInvitePayload(r, household)
	if err != nil {
		log.Printf("[HOUSEHOLD] Failed to build invite QR for household %s: %v", household.ID, err)
		SendErrorResponse(w, "Failed to generate invite", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"payload": payload,
		"qrImage": qrImage,
	})
}

// buildInvitePayload packs the invite into an opaque base64 blob and
// renders it as a PNG QR image. The payload is also parked in Redis so
// clients can verify it has not gone stale.
func (s *HouseholdService) buildInvitePayload(r *http.Request, household models.Household) (string, string, error) {
	inviteData := map[string]interface{}{
		"household":  household.Name,
		"inviteCode": household.InviteCode,
		"timestamp":  time.Now().Unix(),
		"nonce":      generateNonce(),
	}

	jsonData, err := json.Marshal(inviteData)
	if err != nil {
		return "", "", err
	}

	payload := base64.URLEncoding.EncodeToString(jsonData)

	if s.redis != nil {
		key := fmt.Sprintf("invite:%s", payload)
		if err := s.redis.Set(r.Context(), key, jsonData, inviteQRTTL).Err(); err != nil {
			log.Printf("[HOUSEHOLD] Failed to park invite payload in Redis: %v", err)
		}
	}

	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	return payload, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Invite codes come from an unambiguous alphabet (no 0/O, 1/I).
func generateInviteCode() string {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, 8)
	rand.Read(b)
	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(b)
}

func generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
