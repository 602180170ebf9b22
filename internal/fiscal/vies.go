package fiscal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storefront/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// VIESClient validates EU VAT numbers through the VIES REST API.
type VIESClient struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

func NewVIESClient(url string, timeout time.Duration) *VIESClient {
	return &VIESClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: util.Named("vies"),
	}
}

type viesRequest struct {
	CountryCode string `json:"countryCode"`
	VATNumber   string `json:"vatNumber"`
}

type viesResponse struct {
	Valid     bool   `json:"valid"`
	Name      string `json:"name"`
	UserError string `json:"userError"`
}

// Validate checks taxID for countryCode. Transport failures are returned as errors;
// a registry answer of "not valid" is a Result with Valid=false.
func (c *VIESClient) Validate(ctx context.Context, taxID, countryCode string) (Result, error) {
	ctx, span := util.StartSpan(ctx, "VIESClient.Validate",
		attribute.String("country_code", countryCode))
	defer span.End()

	countryCode = strings.ToUpper(countryCode)
	number := SplitVATNumber(NormalizeFiscalCode(taxID), countryCode)
	if countryCode == "GR" {
		countryCode = "EL"
	}

	body, err := json.Marshal(viesRequest{CountryCode: countryCode, VATNumber: number})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		util.FiscalValidationsTotal.WithLabelValues("error").Inc()
		util.FailSpan(span, err)
		return Result{}, fmt.Errorf("vies request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		util.FiscalValidationsTotal.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("vies returned status %d", resp.StatusCode)
	}

	var out viesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		util.FiscalValidationsTotal.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("failed to decode vies response: %w", err)
	}

	if out.UserError != "" && out.UserError != "VALID" && out.UserError != "INVALID" {
		util.FiscalValidationsTotal.WithLabelValues("error").Inc()
		c.logger.Warn("VIES service error", zap.String("user_error", out.UserError))
		return Result{}, fmt.Errorf("vies service error: %s", out.UserError)
	}

	if !out.Valid {
		util.FiscalValidationsTotal.WithLabelValues("invalid").Inc()
		return Result{Valid: false, Message: "The fiscal code is not registered for VAT in VIES."}, nil
	}

	util.FiscalValidationsTotal.WithLabelValues("valid").Inc()
	return Result{Valid: true, Name: out.Name}, nil
}
