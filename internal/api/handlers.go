package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kalambet/sentio/internal/pipeline"
	"github.com/kalambet/sentio/internal/sentiment"
	"github.com/kalambet/sentio/internal/storage"
)

type handlers struct {
	svc    Service
	logger *zap.Logger
}

type summarizeRequest struct {
	Text string `json:"text" validate:"notblank"`
}

type translateRequest struct {
	Text           string `json:"text" validate:"notblank"`
	TargetLanguage string `json:"targetLanguage" validate:"notblank"`
}

type generateCodeRequest struct {
	Description string `json:"description" validate:"notblank"`
	Language    string `json:"language" validate:"notblank"`
}

type processRequest struct {
	Message string `json:"message" validate:"notblank"`
}

type productRequest struct {
	Name        string  `json:"name" validate:"notblank"`
	Description string  `json:"description"`
	Price       float64 `json:"price" validate:"gt=0"`
	Category    string  `json:"category" validate:"notblank"`
}

type searchRequest struct {
	Query string  `json:"query" validate:"notblank"`
	TopK  flexInt `json:"topK"`
}

type reindexRequest struct {
	BatchSize flexInt `json:"batchSize"`
}

// flexInt accepts a JSON number or a numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		b = []byte(s)
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("topK must be an integer, got %s", b)
	}
	*f = flexInt(n)
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// decode reads a JSON body into dst and validates it. On failure it writes a
// 400 response and returns false.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", describeValidation(err))
		return false
	}
	return true
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "notblank":
			msgs = append(msgs, fe.Field()+" is required")
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"messages":   stats.Messages,
		"indexState": stats.IndexState,
		"indexMode":  stats.IndexMode,
	})
}

func (h *handlers) summarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := h.svc.Summarize(r.Context(), req.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": out})
}

func (h *handlers) translate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := h.svc.Translate(r.Context(), req.Text, req.TargetLanguage)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"translation": out})
}

func (h *handlers) generateCode(w http.ResponseWriter, r *http.Request) {
	var req generateCodeRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := h.svc.GenerateCode(r.Context(), req.Description, req.Language)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": out})
}

func (h *handlers) processMessage(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.ProcessMessage(r.Context(), req.Message)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 0, 0)
	msgs, err := h.svc.History(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(msgs))
}

func (h *handlers) bySentiment(w http.ResponseWriter, r *http.Request) {
	label, err := sentiment.ParseLabel(chi.URLParam(r, "sentiment"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return
	}
	msgs, err := h.svc.BySentiment(r.Context(), label, parseIntParam(r, "limit", 0, 0))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(msgs))
}

func (h *handlers) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !decode(w, r, &req) {
		return
	}
	prod, err := h.svc.CreateProduct(r.Context(), pipeline.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prod)
}

func (h *handlers) listProducts(w http.ResponseWriter, r *http.Request) {
	prods, err := h.svc.Products(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilProducts(prods))
}

func (h *handlers) productsByCategory(w http.ResponseWriter, r *http.Request) {
	prods, err := h.svc.ProductsByCategory(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilProducts(prods))
}

func (h *handlers) semanticSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decode(w, r, &req) {
		return
	}
	msgs, err := h.svc.SemanticSearch(r.Context(), req.Query, int(req.TopK))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(msgs))
}

func (h *handlers) reindex(w http.ResponseWriter, r *http.Request) {
	var req reindexRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Reindex(r.Context(), int(req.BatchSize))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func nonNil(msgs []storage.Message) []storage.Message {
	if msgs == nil {
		return []storage.Message{}
	}
	return msgs
}

func nonNilProducts(prods []storage.Product) []storage.Product {
	if prods == nil {
		return []storage.Product{}
	}
	return prods
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
