package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/VishwesGopal13/Automotive-Service/internal/models"
)

// ModelServiceClient calls a model gateway over HTTP. It exposes both capabilities:
// POST /classify and POST /validate.
type ModelServiceClient struct {
	baseURL string
	client  *http.Client
}

// NewModelServiceClient constructs a client targeting the provided base URL. The per-attempt
// deadline comes from the caller's context; the client timeout is only a backstop.
func NewModelServiceClient(baseURL string) *ModelServiceClient {
	return &ModelServiceClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type classifyRequest struct {
	CustomerID string          `json:"customer_id"`
	Vehicle    models.Vehicle  `json:"vehicle"`
	Location   models.GeoPoint `json:"location"`
	Complaint  string          `json:"complaint"`
}

type validateRequest struct {
	JobSpec          models.JobSpec          `json:"job_spec"`
	TechnicianReport models.TechnicianReport `json:"technician_report"`
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// ClassifyComplaint implements Classifier.
func (c *ModelServiceClient) ClassifyComplaint(ctx context.Context, complaint models.Complaint) (*models.JobSpec, error) {
	var spec models.JobSpec
	err := c.post(ctx, "/classify", classifyRequest{
		CustomerID: complaint.CustomerID,
		Vehicle:    complaint.Vehicle,
		Location:   complaint.Location,
		Complaint:  complaint.Text,
	}, &spec)
	if err != nil {
		return nil, err
	}
	return &spec, nil
}

// ValidateWork implements WorkAssessor.
func (c *ModelServiceClient) ValidateWork(ctx context.Context, spec models.JobSpec, report models.TechnicianReport) (*models.ValidationReport, error) {
	var out models.ValidationReport
	if err := c.post(ctx, "/validate", validateRequest{JobSpec: spec, TechnicianReport: report}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *ModelServiceClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		switch {
		case resp.StatusCode == http.StatusUnprocessableEntity && eb.Code == "not_vehicle_related":
			return NotVehicleRelated(eb.Error)
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("model service %s failed: %s", path, resp.Status)
		default:
			return Permanent(fmt.Errorf("model service %s rejected request: %s %s", path, resp.Status, strings.TrimSpace(eb.Error)))
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// a garbled body is treated like any other transient failure
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
