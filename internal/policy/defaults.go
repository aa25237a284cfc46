package policy

// DefaultPolicy is used when no policy file exists or the file cannot be
// loaded.
func DefaultPolicy() *Policy {
	return &Policy{
		Roles: map[string]RolePolicy{
			"admin": {
				AllowedTools:  []string{Wildcard},
				DeniedTools:   []string{},
				RateLimit:     1000,
				MaxConcurrent: 10,
			},
			"user": {
				AllowedTools: []string{
					"search_web", "read_file", "list_files",
					"get_weather", "calculate", "translate",
				},
				DeniedTools: []string{
					"execute_command", "write_file", "delete_file",
					"system_call", "docker_exec", "network_request",
				},
				RateLimit:     100,
				MaxConcurrent: 3,
			},
			"guest": {
				AllowedTools:  []string{"search_web", "get_weather", "calculate"},
				DeniedTools:   []string{Wildcard},
				RateLimit:     20,
				MaxConcurrent: 1,
			},
		},
		ToolRestrictions: ToolRestrictions{
			FileOperations: FileRestrictions{
				AllowedExtensions: []string{".txt", ".json", ".csv", ".md"},
				ForbiddenPaths:    []string{"/etc", "/root", "/home", "/var"},
				MaxFileSize:       "10MB",
			},
			NetworkOperations: NetworkRestrictions{
				AllowedDomains:   []string{"api.github.com", "httpbin.org"},
				ForbiddenDomains: []string{"localhost", "127.0.0.1", "10.0.0.0/8"},
				AllowedPorts:     []int{80, 443},
			},
			SystemOperations: SystemRestrictions{
				ForbiddenCommands: []string{"rm", "delete", "format", "dd"},
				MaxExecutionTime:  30,
			},
		},
		TimeRestrictions: TimeRestrictions{
			BusinessHoursOnly: false,
			AllowedHours:      []int{9, 17},
			Timezone:          "UTC",
		},
	}
}
