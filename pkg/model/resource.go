package model

// ResourceType names one of the seven quota fields tracked per user.
type ResourceType string

const (
	ResourceMemory      ResourceType = "memory_limit"
	ResourceCPU         ResourceType = "cpu_limit"
	ResourceDisk        ResourceType = "disk_limit"
	ResourceServers     ResourceType = "server_limit"
	ResourceDatabases   ResourceType = "database_limit"
	ResourceBackups     ResourceType = "backup_limit"
	ResourceAllocations ResourceType = "allocation_limit"
)

// ResourceTypes lists every quota field in presentation order.
var ResourceTypes = []ResourceType{
	ResourceMemory,
	ResourceCPU,
	ResourceDisk,
	ResourceServers,
	ResourceDatabases,
	ResourceBackups,
	ResourceAllocations,
}

// ServerResourceTypes lists the fields a single server carries. server_limit
// is a count of servers, not a per-server column, so it is absent here.
var ServerResourceTypes = []ResourceType{
	ResourceMemory,
	ResourceCPU,
	ResourceDisk,
	ResourceDatabases,
	ResourceBackups,
	ResourceAllocations,
}

func KnownResource(t ResourceType) bool {
	switch t {
	case ResourceMemory, ResourceCPU, ResourceDisk, ResourceServers,
		ResourceDatabases, ResourceBackups, ResourceAllocations:
		return true
	default:
		return false
	}
}

// ResourceVector is a complete set of the seven quota fields. Handlers
// validate the key set at the JSON boundary; everything below the boundary
// works on this fixed-field struct.
type ResourceVector struct {
	Memory      int `json:"memory_limit"`
	CPU         int `json:"cpu_limit"`
	Disk        int `json:"disk_limit"`
	Servers     int `json:"server_limit"`
	Databases   int `json:"database_limit"`
	Backups     int `json:"backup_limit"`
	Allocations int `json:"allocation_limit"`
}

func (v ResourceVector) Get(t ResourceType) int {
	switch t {
	case ResourceMemory:
		return v.Memory
	case ResourceCPU:
		return v.CPU
	case ResourceDisk:
		return v.Disk
	case ResourceServers:
		return v.Servers
	case ResourceDatabases:
		return v.Databases
	case ResourceBackups:
		return v.Backups
	case ResourceAllocations:
		return v.Allocations
	default:
		return 0
	}
}

func (v *ResourceVector) Set(t ResourceType, value int) {
	switch t {
	case ResourceMemory:
		v.Memory = value
	case ResourceCPU:
		v.CPU = value
	case ResourceDisk:
		v.Disk = value
	case ResourceServers:
		v.Servers = value
	case ResourceDatabases:
		v.Databases = value
	case ResourceBackups:
		v.Backups = value
	case ResourceAllocations:
		v.Allocations = value
	}
}

// Merge returns a copy of v with every entry of fields applied on top.
// Unknown keys are dropped.
func (v ResourceVector) Merge(fields map[ResourceType]int) ResourceVector {
	merged := v
	for t, value := range fields {
		if KnownResource(t) {
			merged.Set(t, value)
		}
	}
	return merged
}

// ExceedsCeiling reports whether value breaks a ceiling. A ceiling of zero
// conventionally means unlimited.
func ExceedsCeiling(ceiling, value int) bool {
	return ceiling > 0 && value > ceiling
}
