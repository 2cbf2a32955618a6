package model

import (
	"fmt"
	"time"
)

const (
	ResourceEmployees = "employees"
	ResourceVehicles  = "vehicles"

	EventResourceReserved = "resourceReserved"
	EventResourceReleased = "resourceReleased"

	ReleaseReasonExplicit = "explicit"
	ReleaseReasonExpired  = "expired"
)

// ResourceKinds lists every lockable resource kind in query output order.
var ResourceKinds = []string{ResourceEmployees, ResourceVehicles}

// LockRequest is the body accepted by the reserve and release endpoints.
type LockRequest struct {
	Date         string `json:"date" validate:"required,datetime=2006-01-02"`
	Type         string `json:"type" validate:"required,max=64,scope_label"`
	ResourceType string `json:"resourceType" validate:"required,oneof=employees vehicles"`
	ID           int64  `json:"id" validate:"required,gt=0"`
}

// Key identifies one reservation slot. Type is not part of it.
func (r LockRequest) Key() LockKey {
	return LockKey{Date: r.Date, ResourceType: r.ResourceType, ID: r.ID}
}

type LockKey struct {
	Date         string
	ResourceType string
	ID           int64
}

func (k LockKey) String() string {
	return fmt.Sprintf("%s|%s|%d", k.Date, k.ResourceType, k.ID)
}

// ResourceLock is a soft, time-limited claim on an employee or vehicle for a day.
type ResourceLock struct {
	Key          string    `bson:"_id" json:"-"`
	Date         string    `bson:"date" json:"date"`
	Type         string    `bson:"type" json:"type"`
	ResourceType string    `bson:"resource_type" json:"resourceType"`
	ResourceID   int64     `bson:"resource_id" json:"id"`
	ReservedBy   string    `bson:"reserved_by,omitempty" json:"reservedBy,omitempty"`
	CreatedAt    time.Time `bson:"created_at" json:"createdAt"`
	ExpiresAt    time.Time `bson:"expires_at" json:"expiresAt"`
}

func NewResourceLock(req LockRequest, reservedBy string, now time.Time, ttl time.Duration) *ResourceLock {
	return &ResourceLock{
		Key:          req.Key().String(),
		Date:         req.Date,
		Type:         req.Type,
		ResourceType: req.ResourceType,
		ResourceID:   req.ID,
		ReservedBy:   reservedBy,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
}

func (l *ResourceLock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

func (l *ResourceLock) LockKey() LockKey {
	return LockKey{Date: l.Date, ResourceType: l.ResourceType, ID: l.ResourceID}
}

// LockSet maps resource kind to the reserved ids for one date.
type LockSet map[string][]int64

func NewLockSet() LockSet {
	set := make(LockSet, len(ResourceKinds))
	for _, kind := range ResourceKinds {
		set[kind] = []int64{}
	}
	return set
}

// LockEventPayload is the wire shape shared by WebSocket frames and Kafka values.
type LockEventPayload struct {
	Date         string `json:"date"`
	Type         string `json:"type"`
	ResourceType string `json:"resourceType"`
	ID           int64  `json:"id"`
}

type LockEvent struct {
	Name    string           `json:"event"`
	Payload LockEventPayload `json:"data"`
	Reason  string           `json:"reason,omitempty"`
	At      time.Time        `json:"at"`
}

func NewLockEvent(name string, lock *ResourceLock, reason string, at time.Time) LockEvent {
	return LockEvent{
		Name: name,
		Payload: LockEventPayload{
			Date:         lock.Date,
			Type:         lock.Type,
			ResourceType: lock.ResourceType,
			ID:           lock.ResourceID,
		},
		Reason: reason,
		At:     at,
	}
}
