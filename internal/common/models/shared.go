package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ContextKey string

const (
	// ActorIDKey carries the acting user or system component when no JWT claims are present.
	ActorIDKey ContextKey = "actor_id"
)

type AuditAction string

const (
	AuditActionCreate        AuditAction = "CREATE"
	AuditActionUpdate        AuditAction = "UPDATE"
	AuditActionDelete        AuditAction = "DELETE"
	AuditActionBulkOperation AuditAction = "BULK_OPERATION"
	AuditActionRetention     AuditAction = "RETENTION"
)

type Change struct {
	Old interface{} `bson:"old" json:"old"`
	New interface{} `bson:"new" json:"new"`
}

type AuditLog struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Action    AuditAction        `bson:"action" json:"action"`
	Module    string             `bson:"module" json:"module"`                       // The module/collection name
	RecordID  string             `bson:"record_id" json:"record_id"`                 // The ID of the record being modified
	ActorID   string             `bson:"actor_id" json:"actor_id"`                   // User ID who performed the action
	Changes   map[string]Change  `bson:"changes,omitempty" json:"changes,omitempty"` // field -> {old, new}
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}

// Log is one application log line persisted by the DB log sink
type Log struct {
	Message       string    `bson:"message" json:"message"`
	Caller        string    `bson:"caller,omitempty" json:"caller,omitempty"`
	OperationID   string    `bson:"operation_id,omitempty" json:"operation_id,omitempty"`
	ApplicationID string    `bson:"application_id" json:"application_id"`
	LogLevelId    int       `bson:"log_level_id" json:"log_level_id"`
	CreatedOnUtc  time.Time `bson:"created_on_utc" json:"created_on_utc"`
}

// EntityRecord is a generic domain record addressed by entity name.
type EntityRecord struct {
	ID        string                 `json:"id" bson:"_id"`
	Entity    string                 `json:"entity" bson:"entity"`
	Data      map[string]interface{} `json:"data" bson:"data"`
	CreatedBy string                 `json:"created_by,omitempty" bson:"created_by,omitempty"`
	UpdatedBy string                 `json:"updated_by,omitempty" bson:"updated_by,omitempty"`
	CreatedAt time.Time              `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" bson:"updated_at"`
	Deleted   bool                   `json:"__deleted" bson:"deleted"`
	DeletedAt *time.Time             `json:"deleted_at,omitempty" bson:"deleted_at,omitempty"`
}
