// Package server exposes the intake and admin HTTP surface.
package server

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/kuroedu/kuro-backend/internal/config"
	"github.com/kuroedu/kuro-backend/internal/model"
	"github.com/kuroedu/kuro-backend/internal/notify"
	"github.com/kuroedu/kuro-backend/internal/reminder"
	"github.com/kuroedu/kuro-backend/internal/signature"
	"github.com/kuroedu/kuro-backend/internal/store"
	"github.com/kuroedu/kuro-backend/internal/workflow"
)

const dateLayout = "2006-01-02"

// maxBodyBytes caps JSON request bodies at 1 MiB.
const maxBodyBytes = 1 << 20

// Server wires the HTTP handlers to the store and the outbound integrations.
type Server struct {
	cfg        *config.Config
	store      *store.Store
	dispatcher *notify.Dispatcher
	sweeper    *reminder.Sweeper
	signatures *signature.Client
	workflow   *workflow.Client
	validate   *validator.Validate
	logger     *log.Logger
}

// New creates the server.
func New(cfg *config.Config, st *store.Store, dispatcher *notify.Dispatcher, sweeper *reminder.Sweeper, signatures *signature.Client, wf *workflow.Client, logger *log.Logger) *Server {
	return &Server{
		cfg:        cfg,
		store:      st,
		dispatcher: dispatcher,
		sweeper:    sweeper,
		signatures: signatures,
		workflow:   wf,
		validate:   validator.New(),
		logger:     logger,
	}
}

// Router builds the route table. CORS, security headers, and request logging
// wrap the whole router so preflight requests are answered even for
// method-restricted routes.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/intake", s.handleIntake).Methods(http.MethodPost)
	r.HandleFunc("/api/signatures/envelopes", s.handleSignatureEnvelope).Methods(http.MethodPost)

	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.Use(s.requireAdmin)
	admin.HandleFunc("/clients", s.handleListClients).Methods(http.MethodGet)
	admin.HandleFunc("/clients/{clientId}", s.handleClientDetail).Methods(http.MethodGet)
	admin.HandleFunc("/export.csv", s.handleExportCSV).Methods(http.MethodGet)
	admin.HandleFunc("/reminders/run", s.handleRunReminders).Methods(http.MethodPost)

	return s.logMiddleware(securityHeaders(s.corsMiddleware(r)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type intakeRequest struct {
	Name             string   `json:"name" validate:"required"`
	Email            string   `json:"email" validate:"required,email"`
	Phone            string   `json:"phone"`
	Subject          string   `json:"subject"`
	Message          string   `json:"message"`
	SourcePage       string   `json:"sourcePage"`
	ReminderOptIn    bool     `json:"reminderOptIn"`
	WhatsappOptIn    bool     `json:"whatsappOptIn"`
	VisaExpiryDate   string   `json:"visaExpiryDate" validate:"omitempty,datetime=2006-01-02"`
	ReminderChannels []string `json:"reminderChannels" validate:"omitempty,dive,oneof=email sms whatsapp"`
	ReminderType     string   `json:"reminderType"`
}

func (s *Server) handleIntake(w http.ResponseWriter, r *http.Request) {
	var req intakeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.VisaExpiryDate = strings.TrimSpace(req.VisaExpiryDate)
	if req.SourcePage == "" {
		req.SourcePage = "Website contact form"
	}
	if req.ReminderType == "" {
		req.ReminderType = "Visa expiry"
	}
	if len(req.ReminderChannels) == 0 {
		req.ReminderChannels = []string{"email"}
	}

	if err := s.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Validation failed",
			"details": validationDetails(err),
		})
		return
	}

	clientID := newClientID()

	var visaExpiry *time.Time
	if req.VisaExpiryDate != "" {
		parsed, err := time.ParseInLocation(dateLayout, req.VisaExpiryDate, s.cfg.LocalTimezone)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Visa expiry date must be a valid ISO date"})
			return
		}
		visaExpiry = &parsed
	}

	client := &model.Client{
		ClientID:       clientID,
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		Subject:        strings.TrimSpace(req.Subject),
		Message:        strings.TrimSpace(req.Message),
		SourcePage:     req.SourcePage,
		ReminderOptIn:  req.ReminderOptIn,
		WhatsAppOptIn:  req.WhatsappOptIn,
		VisaExpiryDate: visaExpiry,
	}
	if err := s.store.CreateClient(client); err != nil {
		s.logger.Printf("intake: create client: %v", err)
		s.internalError(w)
		return
	}

	if req.ReminderOptIn && visaExpiry != nil {
		if err := s.store.AddReminder(&model.Reminder{
			ClientID:         clientID,
			ReminderType:     req.ReminderType,
			ReminderDate:     *visaExpiry,
			DeliveryChannels: strings.Join(req.ReminderChannels, ","),
		}); err != nil {
			s.logger.Printf("intake: add reminder: %v", err)
			s.internalError(w)
			return
		}
	}

	// Confirmation email and workflow card are deliberately detached from
	// request latency; failures are logged, never surfaced to the submitter.
	confirmation := notify.IntakeConfirmation{
		To:             req.Email,
		Name:           req.Name,
		ClientID:       clientID,
		ReminderOptIn:  req.ReminderOptIn,
		VisaExpiryDate: req.VisaExpiryDate,
	}
	go func() {
		if err := s.dispatcher.SendIntakeConfirmation(context.Background(), confirmation); err != nil {
			s.logger.Printf("intake: confirmation email for %s: %v", clientID, err)
		}
	}()
	card := workflow.Card{
		Name:         req.Name,
		ClientID:     clientID,
		Email:        req.Email,
		Phone:        req.Phone,
		ReminderDate: req.VisaExpiryDate,
	}
	go func() {
		if err := s.workflow.CreateCard(context.Background(), card); err != nil {
			s.logger.Printf("intake: workflow card for %s: %v", clientID, err)
		}
	}()

	writeJSON(w, http.StatusCreated, map[string]string{
		"status":   "success",
		"message":  "Thanks for reaching out! We will contact you shortly.",
		"clientId": clientID,
	})
}

func (s *Server) handleListClients(w http.ResponseWriter, _ *http.Request) {
	clients, err := s.store.ListClients()
	if err != nil {
		s.logger.Printf("admin: list clients: %v", err)
		s.internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": clients})
}

func (s *Server) handleClientDetail(w http.ResponseWriter, r *http.Request) {
	clientID := mux.Vars(r)["clientId"]

	client, err := s.store.FindClient(clientID)
	if err != nil {
		s.logger.Printf("admin: find client %s: %v", clientID, err)
		s.internalError(w)
		return
	}
	if client == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
		return
	}

	reminders, err := s.store.RemindersForClient(clientID)
	if err != nil {
		s.logger.Printf("admin: reminders for %s: %v", clientID, err)
		s.internalError(w)
		return
	}
	documents, err := s.store.DocumentsForClient(clientID)
	if err != nil {
		s.logger.Printf("admin: documents for %s: %v", clientID, err)
		s.internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"client":    client,
		"reminders": reminders,
		"documents": documents,
	})
}

func (s *Server) handleExportCSV(w http.ResponseWriter, _ *http.Request) {
	clients, err := s.store.ListClients()
	if err != nil {
		s.logger.Printf("admin: export: %v", err)
		s.internalError(w)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("clients-%d.csv", time.Now().UnixMilli())))

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"client_id", "name", "email", "phone", "subject", "message",
		"source_page", "reminder_opt_in", "whatsapp_opt_in", "visa_expiry_date", "created_at",
	})
	for _, c := range clients {
		expiry := ""
		if c.VisaExpiryDate != nil {
			expiry = c.VisaExpiryDate.Format(dateLayout)
		}
		_ = cw.Write([]string{
			c.ClientID,
			c.Name,
			c.Email,
			c.Phone,
			flattenNewlines(c.Subject),
			flattenNewlines(c.Message),
			c.SourcePage,
			boolFlag(c.ReminderOptIn),
			boolFlag(c.WhatsAppOptIn),
			expiry,
			c.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()
}

func (s *Server) handleRunReminders(w http.ResponseWriter, r *http.Request) {
	processed, err := s.sweeper.ProcessWindow(r.Context())
	if err != nil {
		s.logger.Printf("admin: manual reminder run: %v", err)
		s.internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "queued", "processed": processed})
}

type signatureRequest struct {
	ClientID     string `json:"clientId" validate:"required"`
	SignerName   string `json:"signerName" validate:"required"`
	SignerEmail  string `json:"signerEmail" validate:"required,email"`
	DocumentType string `json:"documentType"`
}

func (s *Server) handleSignatureEnvelope(w http.ResponseWriter, r *http.Request) {
	var req signatureRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.DocumentType == "" {
		req.DocumentType = "Visa Agreement"
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Validation failed",
			"details": validationDetails(err),
		})
		return
	}

	client, err := s.store.FindClient(req.ClientID)
	if err != nil {
		s.logger.Printf("signatures: find client %s: %v", req.ClientID, err)
		s.internalError(w)
		return
	}
	if client == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Client not found"})
		return
	}

	result, err := s.signatures.RequestSignature(r.Context(), signature.Request{
		ClientID:     req.ClientID,
		SignerName:   req.SignerName,
		SignerEmail:  req.SignerEmail,
		DocumentType: req.DocumentType,
	})
	if err != nil {
		s.logger.Printf("signatures: request for %s: %v", req.ClientID, err)
		s.internalError(w)
		return
	}
	if result.Status == "disabled" {
		writeJSON(w, http.StatusServiceUnavailable, result)
		return
	}

	if err := s.store.AddSignedDocument(&model.SignedDocument{
		ClientID:     req.ClientID,
		EnvelopeID:   result.EnvelopeID,
		DocumentType: req.DocumentType,
		Status:       "sent",
	}); err != nil {
		s.logger.Printf("signatures: record envelope for %s: %v", req.ClientID, err)
		s.internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Admin-Token") != s.cfg.AdminToken {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware mirrors the original deployment's behavior: with no
// configured origins anything is allowed, otherwise only listed origins are
// echoed back.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowed := splitOrigins(s.cfg.AllowedOrigins)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if len(allowed) == 0 {
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			} else {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
		} else if origin != "" && contains(allowed, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}

		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Token, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cross-Origin-Resource-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

// decodeJSON reads a size-capped JSON body into dst. It writes the error
// response itself and reports whether decoding succeeded.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
		return false
	}
	return true
}

func (s *Server) internalError(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "Unable to process your request right now.",
	})
}

// newClientID builds a human-legible opaque identifier like KURO-1A2B3C4D.
func newClientID() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "KURO-" + raw[:8]
}

func validationDetails(err error) map[string]string {
	details := make(map[string]string)
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) {
		for _, fe := range fieldErrors {
			details[fe.Field()] = fmt.Sprintf("failed on the %q rule", fe.Tag())
		}
	}
	return details
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func contains(values []string, want string) bool {
	for _, value := range values {
		if value == want {
			return true
		}
	}
	return false
}

func flattenNewlines(value string) string {
	return strings.ReplaceAll(value, "\n", " ")
}

func boolFlag(value bool) string {
	if value {
		return "1"
	}
	return "0"
}
