package policy

// Wildcard in an allow or deny list matches every tool.
const Wildcard = "*"

// FallbackRole is the role whose policy applies to any role the policy does
// not define.
const FallbackRole = "user"

type Policy struct {
	Roles            map[string]RolePolicy `yaml:"roles" json:"roles"`
	ToolRestrictions ToolRestrictions      `yaml:"tool_restrictions" json:"tool_restrictions"`
	TimeRestrictions TimeRestrictions      `yaml:"time_restrictions" json:"time_restrictions"`
}

// RolePolicy binds tool allow/deny lists to a role. RateLimit and
// MaxConcurrent are declarative; a single-pass filter holds no state to
// enforce them with.
type RolePolicy struct {
	AllowedTools  []string `yaml:"allowed_tools" json:"allowed_tools"`
	DeniedTools   []string `yaml:"denied_tools" json:"denied_tools"`
	RateLimit     int      `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
	MaxConcurrent int      `yaml:"max_concurrent,omitempty" json:"max_concurrent,omitempty"`
}

type ToolRestrictions struct {
	FileOperations    FileRestrictions    `yaml:"file_operations" json:"file_operations"`
	NetworkOperations NetworkRestrictions `yaml:"network_operations" json:"network_operations"`
	SystemOperations  SystemRestrictions  `yaml:"system_operations" json:"system_operations"`
}

type FileRestrictions struct {
	AllowedExtensions []string `yaml:"allowed_extensions" json:"allowed_extensions"`
	ForbiddenPaths    []string `yaml:"forbidden_paths" json:"forbidden_paths"`
	MaxFileSize       string   `yaml:"max_file_size,omitempty" json:"max_file_size,omitempty"`
}

// NetworkRestrictions lists forbidden domains as substrings of the target
// URL. Entries in CIDR form also match URLs whose host is an address in the
// range. AllowedDomains and AllowedPorts are declarative.
type NetworkRestrictions struct {
	AllowedDomains   []string `yaml:"allowed_domains,omitempty" json:"allowed_domains,omitempty"`
	ForbiddenDomains []string `yaml:"forbidden_domains" json:"forbidden_domains"`
	AllowedPorts     []int    `yaml:"allowed_ports,omitempty" json:"allowed_ports,omitempty"`
}

type SystemRestrictions struct {
	ForbiddenCommands []string `yaml:"forbidden_commands" json:"forbidden_commands"`
	MaxExecutionTime  int      `yaml:"max_execution_time,omitempty" json:"max_execution_time,omitempty"`
}

// TimeRestrictions limits operations to [AllowedHours[0], AllowedHours[1])
// in Timezone when BusinessHoursOnly is set.
type TimeRestrictions struct {
	BusinessHoursOnly bool   `yaml:"business_hours_only" json:"business_hours_only"`
	AllowedHours      []int  `yaml:"allowed_hours,omitempty" json:"allowed_hours,omitempty"`
	Timezone          string `yaml:"timezone,omitempty" json:"timezone,omitempty"`
}

// Check names the stage of evaluation that produced a decision.
type Check string

const (
	CheckNone     Check = ""
	CheckTime     Check = "time"
	CheckTool     Check = "tool"
	CheckFile     Check = "file"
	CheckNetwork  Check = "network"
	CheckSystem   Check = "system"
	CheckInternal Check = "internal"
)

// Request is one access decision to make.
type Request struct {
	Tool      string
	Params    map[string]any
	Role      string
	SessionID string
	ClientIP  string
}

// EvalResult is the outcome of evaluating a Request. Role is the role whose
// policy was applied, which differs from RequestedRole after a fallback.
type EvalResult struct {
	Allowed       bool
	Reason        string
	Check         Check
	Role          string
	RequestedRole string
}
