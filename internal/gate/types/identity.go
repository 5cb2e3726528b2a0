package types

// Employee is the read-only identity record a credential resolves to.
// The dashboard owns these rows; the engine never writes them.
type Employee struct {
	ID               string
	CardNumber       string
	FirstName        string
	LastName         string
	DepartmentID     string
	ZoneID           string
	AccessPermission bool
	Active           bool
}

// DisplayName is the name denormalised onto audit rows.
func (e Employee) DisplayName() string {
	switch {
	case e.FirstName == "":
		return e.LastName
	case e.LastName == "":
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}

// Device is a physical reader identified by its serial. Zone and door are
// optional administrative groupings. Dialect names the response vocabulary
// the firmware expects; empty means "use the configured default".
type Device struct {
	ID       string
	Serial   string
	Name     string
	Location string
	ZoneID   string
	DoorID   string
	Dialect  string
}

// AccessRule is a pre-evaluated time window supplied by the policy
// collaborator. A rule targets either a single device (DeviceID) or every
// device in a zone (ZoneID).
type AccessRule struct {
	ID         string
	EmployeeID string
	DeviceID   string
	ZoneID     string
	Days       []string // lower-case English weekday names
	StartTime  string   // HH:MM or HH:MM:SS, inclusive
	EndTime    string   // HH:MM or HH:MM:SS, exclusive
	Active     bool
}
