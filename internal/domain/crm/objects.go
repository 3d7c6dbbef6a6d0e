// Package crm holds the domain model for records pulled from the upstream
// CRM and the pure aggregation logic computed over them. Everything here is
// read-only from the CRM's point of view: records are snapshots, never
// written back.
package crm

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Object types exposed by the CRM search API.
const (
	ObjectTypeContacts  = "contacts"
	ObjectTypeCompanies = "companies"
	ObjectTypeDeals     = "deals"
	ObjectTypeTasks     = "tasks"
)

// Terminal deal stages. Stage values are free-form strings in the CRM;
// only these two sentinels denote a closed deal. Anything else is open.
const (
	StageClosedWon  = "closedwon"
	StageClosedLost = "closedlost"
)

// TaskStatusCompleted is the sentinel status for finished tasks.
const TaskStatusCompleted = "COMPLETED"

// Property names used across search queries and record parsing.
const (
	PropCreateDate     = "createdate"
	PropCloseDate      = "closedate"
	PropDealStage      = "dealstage"
	PropAmount         = "amount"
	PropPipeline       = "pipeline"
	PropDealName       = "dealname"
	PropFirstName      = "firstname"
	PropLastName       = "lastname"
	PropEmail          = "email"
	PropCompanyName    = "name"
	PropTaskStatus     = "hs_task_status"
	PropTaskSubject    = "hs_task_subject"
	PropTaskCompleted  = "hs_task_completion_date"
	PropTaskDue        = "hs_timestamp"
	PropLastModified   = "hs_lastmodifieddate"
)

// Record is a raw CRM record as returned by the list/search endpoints:
// an identifier plus a flat bag of string properties. Absent and null
// properties are both represented as missing keys.
type Record struct {
	ID         string
	Properties map[string]string
}

// Prop returns the named property or "" when absent.
func (r Record) Prop(name string) string {
	return r.Properties[name]
}

// ParseAmount parses a CRM monetary amount. CRM amounts are free-text
// decimal strings; absent or unparseable values are treated as zero, never
// as an error.
func ParseAmount(raw string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseTime parses a CRM timestamp property. The API emits either RFC 3339
// strings or epoch milliseconds depending on the endpoint; both are
// accepted. Absent or malformed values yield nil.
func ParseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		t := time.UnixMilli(ms).UTC()
		return &t
	}
	return nil
}

// Deal is a parsed deal snapshot.
type Deal struct {
	ID        string
	Name      string
	Stage     string
	Pipeline  string
	Amount    decimal.Decimal
	CreatedAt *time.Time
	ClosedAt  *time.Time
}

// IsWon reports whether the deal is in the closed-won terminal stage.
func (d Deal) IsWon() bool { return d.Stage == StageClosedWon }

// IsLost reports whether the deal is in the closed-lost terminal stage.
func (d Deal) IsLost() bool { return d.Stage == StageClosedLost }

// IsOpen reports whether the deal is in neither terminal stage. Unknown
// stage strings count as open.
func (d Deal) IsOpen() bool { return !d.IsWon() && !d.IsLost() }

// DealFromRecord parses a raw deal record. Missing fields degrade to zero
// values; nothing here ever fails.
func DealFromRecord(r Record) Deal {
	return Deal{
		ID:        r.ID,
		Name:      r.Prop(PropDealName),
		Stage:     r.Prop(PropDealStage),
		Pipeline:  r.Prop(PropPipeline),
		Amount:    ParseAmount(r.Prop(PropAmount)),
		CreatedAt: ParseTime(r.Prop(PropCreateDate)),
		ClosedAt:  ParseTime(r.Prop(PropCloseDate)),
	}
}

// DealsFromRecords parses a batch of raw deal records.
func DealsFromRecords(records []Record) []Deal {
	deals := make([]Deal, len(records))
	for i, r := range records {
		deals[i] = DealFromRecord(r)
	}
	return deals
}

// Contact is a parsed contact snapshot. Used for counting and name
// resolution only.
type Contact struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	CreatedAt *time.Time
}

// FullName joins first and last name, falling back to the email address
// when both are empty.
func (c Contact) FullName() string {
	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	if name == "" {
		return c.Email
	}
	return name
}

// ContactFromRecord parses a raw contact record.
func ContactFromRecord(r Record) Contact {
	return Contact{
		ID:        r.ID,
		FirstName: r.Prop(PropFirstName),
		LastName:  r.Prop(PropLastName),
		Email:     r.Prop(PropEmail),
		CreatedAt: ParseTime(r.Prop(PropCreateDate)),
	}
}

// Company is a parsed company snapshot.
type Company struct {
	ID        string
	Name      string
	CreatedAt *time.Time
}

// CompanyFromRecord parses a raw company record.
func CompanyFromRecord(r Record) Company {
	return Company{
		ID:        r.ID,
		Name:      r.Prop(PropCompanyName),
		CreatedAt: ParseTime(r.Prop(PropCreateDate)),
	}
}

// Task is a parsed task snapshot.
type Task struct {
	ID          string
	Subject     string
	Status      string
	CreatedAt   *time.Time
	CompletedAt *time.Time
	DueAt       *time.Time
}

// IsCompleted reports whether the task is finished. Both the sentinel
// status and a non-nil completion date are required; CRM data routinely
// carries one without the other.
func (t Task) IsCompleted() bool {
	return t.Status == TaskStatusCompleted && t.CompletedAt != nil
}

// TaskFromRecord parses a raw task record.
func TaskFromRecord(r Record) Task {
	return Task{
		ID:          r.ID,
		Subject:     r.Prop(PropTaskSubject),
		Status:      r.Prop(PropTaskStatus),
		CreatedAt:   ParseTime(r.Prop(PropCreateDate)),
		CompletedAt: ParseTime(r.Prop(PropTaskCompleted)),
		DueAt:       ParseTime(r.Prop(PropTaskDue)),
	}
}
