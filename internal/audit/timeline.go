package audit

import "time"

// Filters narrows the audit trail. From and To are inclusive dates.
type Filters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// Entry is one row of audit_logs joined with the acting user.
type Entry struct {
	ID         int64
	At         time.Time
	ActorID    int64
	ActorName  string
	ActorEmail string
	Action     string
	Entity     string
	EntityID   string
	Meta       string
}

// Actor returns the display name of whoever caused the change.
func (e Entry) Actor() string {
	switch {
	case e.ActorID == 0:
		return "system"
	case e.ActorName != "":
		return e.ActorName
	case e.ActorEmail != "":
		return e.ActorEmail
	default:
		return "#deleted user"
	}
}

// Paging is forward/back navigation without a total count.
type Paging struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result holds one page of the trail.
type Result struct {
	Entries []Entry
	Paging  Paging
}
