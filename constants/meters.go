package constants

// DefaultMeterNames is the predefined meter catalogue offered when a tenant
// is created without an explicit meter list.
var DefaultMeterNames = []string{
	"Electricity",
	"Gas",
	"Cold Water",
	"Hot Water",
}
