package model

import (
	"strings"
	"time"
)

// ModelStatus is the lifecycle stage of a model record.
type ModelStatus string

const (
	ModelStatusQueued   ModelStatus = "queued"
	ModelStatusTraining ModelStatus = "training"
	ModelStatusQA       ModelStatus = "qa"
	ModelStatusLive     ModelStatus = "live"
	ModelStatusReady    ModelStatus = "ready"
	ModelStatusFailed   ModelStatus = "failed"
	ModelStatusPending  ModelStatus = "pending"
	ModelStatusPilot    ModelStatus = "pilot"
)

var knownStatuses = map[ModelStatus]bool{
	ModelStatusQueued:   true,
	ModelStatusTraining: true,
	ModelStatusQA:       true,
	ModelStatusLive:     true,
	ModelStatusReady:    true,
	ModelStatusFailed:   true,
	ModelStatusPending:  true,
	ModelStatusPilot:    true,
}

// ParseModelStatus normalizes s and reports whether it is a known status.
func ParseModelStatus(s string) (ModelStatus, bool) {
	st := ModelStatus(strings.ToLower(strings.TrimSpace(s)))
	return st, knownStatuses[st]
}

// IsInitial reports whether a model may be created in this status.
func (s ModelStatus) IsInitial() bool {
	return s == ModelStatusTraining || s == ModelStatusQueued
}

// Model is a user-owned AI model record.
type Model struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Domain      string      `json:"domain"`
	BaseModel   string      `json:"baseModel"`
	Dataset     string      `json:"dataset"`
	Status      ModelStatus `json:"status"`
	Metrics     []string    `json:"metrics"`
	Highlights  []string    `json:"highlights"`
	LastTrained *string     `json:"lastTrained"`
	UserID      string      `json:"userId"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// CreateModelInput carries the fields accepted on create.
type CreateModelInput struct {
	Name        string   `json:"name"`
	Domain      string   `json:"domain"`
	BaseModel   string   `json:"baseModel"`
	Dataset     string   `json:"dataset"`
	Status      string   `json:"status,omitempty"`
	Metrics     []string `json:"metrics,omitempty"`
	Highlights  []string `json:"highlights,omitempty"`
	LastTrained *string  `json:"lastTrained,omitempty"`
}

// UpdateModelInput is a partial update. Nil fields are left untouched.
type UpdateModelInput struct {
	Name        *string   `json:"name,omitempty"`
	Domain      *string   `json:"domain,omitempty"`
	BaseModel   *string   `json:"baseModel,omitempty"`
	Dataset     *string   `json:"dataset,omitempty"`
	Status      *string   `json:"status,omitempty"`
	Metrics     *[]string `json:"metrics,omitempty"`
	Highlights  *[]string `json:"highlights,omitempty"`
	LastTrained *string   `json:"lastTrained,omitempty"`
}

// ModelPatch is an update in storage form: sequences already encoded.
type ModelPatch struct {
	Name        *string
	Domain      *string
	BaseModel   *string
	Dataset     *string
	Status      *ModelStatus
	Metrics     *string
	Highlights  *string
	LastTrained *string
	UpdatedAt   time.Time
}

// ModelRecord is the storage form of a model.
type ModelRecord struct {
	ID          string
	UserID      string
	Name        string
	Domain      string
	BaseModel   string
	Dataset     string
	Status      ModelStatus
	Metrics     string
	Highlights  string
	LastTrained *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ToModel decodes the stored sequences.
func (r *ModelRecord) ToModel() (*Model, error) {
	metrics, err := DecodeSequence(r.Metrics)
	if err != nil {
		return nil, err
	}
	highlights, err := DecodeSequence(r.Highlights)
	if err != nil {
		return nil, err
	}
	return &Model{
		ID:          r.ID,
		Name:        r.Name,
		Domain:      r.Domain,
		BaseModel:   r.BaseModel,
		Dataset:     r.Dataset,
		Status:      r.Status,
		Metrics:     metrics,
		Highlights:  highlights,
		LastTrained: r.LastTrained,
		UserID:      r.UserID,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}
