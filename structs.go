package leads

import (
	"strings"
	"time"
)

// DataType is the declared type of a lead attribute
type DataType string

const (
	DataTypeText    DataType = "Text"
	DataTypeNumber  DataType = "Number"
	DataTypeDate    DataType = "Date"
	DataTypeBoolean DataType = "Boolean"
)

// Status is the approval state of a lead application
type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

// ParseStatus accepts any casing of the three statuses. A blank status is Pending; older rows
// written before approvals existed carry no status at all.
func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pending":
		return StatusPending, true
	case "approved":
		return StatusApproved, true
	case "rejected":
		return StatusRejected, true
	}
	return "", false
}

// Reserved record fields. Attribute names may not collide with these and payload keys matching
// them are ignored by the codec.
const (
	FieldID          = "id"
	FieldSubmitterID = "submitterId"
	FieldCreatedAt   = "createdAt"
	FieldStatus      = "status"
)

var reservedFields = map[string]struct{}{
	normalize(FieldID):          {},
	normalize(FieldSubmitterID): {},
	normalize(FieldCreatedAt):   {},
	normalize(FieldStatus):      {},
}

// AttributeDefinition is one administrator-defined lead column.
type AttributeDefinition struct {
	Name     string   `json:"name"`
	DataType DataType `json:"data_type"`
	Required bool     `json:"required"`
}

// Key is the normalized name the catalog and the backends index on.
func (a AttributeDefinition) Key() string {
	return normalize(a.Name)
}

// StoredRecord is a lead exactly as the backend holds it: values are canonical text keyed by
// normalized attribute name and may include attributes the catalog no longer has.
type StoredRecord struct {
	ID          int64             `json:"lead_id"`
	SubmitterID int64             `json:"submitter_id"`
	CreatedAt   time.Time         `json:"created_at"`
	Status      Status            `json:"status"`
	ApprovedBy  *int64            `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time        `json:"approved_at,omitempty"`
	Values      map[string]string `json:"values"`
}

// Record is a lead projected against the current catalog. Fields are keyed by attribute display
// name and hold string, float64, time.Time or bool depending on the attribute's DataType.
type Record struct {
	ID          int64          `json:"id"`
	SubmitterID int64          `json:"submitterId"`
	CreatedAt   time.Time      `json:"createdAt"`
	Status      Status         `json:"status"`
	ApprovedBy  *int64         `json:"approvedBy,omitempty"`
	ApprovedAt  *time.Time     `json:"approvedAt,omitempty"`
	Fields      map[string]any `json:"fields"`
}

// Identity is what the identity provider hands us for every request. It is trusted as given.
type Identity struct {
	SubmitterID     int64
	IsAdministrator bool
}

// Submitter is the directory entry for a user who owns or approves leads.
type Submitter struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ApplicationView composes a lead with its submitter and approval details. It is built at read
// time and never persisted.
type ApplicationView struct {
	Record         Record     `json:"record"`
	SubmitterName  string     `json:"submitterName"`
	SubmitterEmail string     `json:"submitterEmail"`
	Status         Status     `json:"status"`
	ApprovedBy     *int64     `json:"approvedBy,omitempty"`
	ApprovedByName string     `json:"approvedByName,omitempty"`
	ApprovedAt     *time.Time `json:"approvedAt,omitempty"`
}

// Result is the outcome handed back to the management surface: a success flag and a message
// fit for showing to a person.
type Result struct {
	OK       bool   `json:"success"`
	Message  string `json:"message"`
	Code     Code   `json:"code,omitempty"`
	RecordID int64  `json:"recordId,omitempty"`
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
