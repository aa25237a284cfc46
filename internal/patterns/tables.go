package patterns

// ---------------------------------------------------------------------------
// Secret patterns (declaration order is match order)
// ---------------------------------------------------------------------------

var builtinSecrets = []Pattern{
	// API keys and tokens
	SecretPattern{mustMatcher("API_KEY", `\b[A-Za-z0-9]{32}\b`)},
	SecretPattern{mustMatcher("OPENAI_KEY", `\bsk-[A-Za-z0-9]{48}\b`)},
	SecretPattern{mustMatcher("GITHUB_TOKEN", `\bghp_[A-Za-z0-9]{36}\b`)},
	SecretPattern{mustMatcher("GITLAB_TOKEN", `\bglpat-[A-Za-z0-9_\-]{20}\b`)},
	SecretPattern{mustMatcher("AWS_ACCESS_KEY", `\bAKIA[0-9A-Z]{16}\b`)},
	SecretPattern{mustMatcher("UUID_TOKEN", `\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)},

	// Connection strings
	SecretPattern{mustMatcher("DATABASE_URL", `(?:mysql|postgresql|mongodb)://[^\s]+`)},
	SecretPattern{mustMatcher("JDBC_URL", `jdbc:[^\s]+`)},

	// Key material
	SecretPattern{mustMatcher("PRIVATE_KEY", `-----BEGIN [A-Z ]+ KEY-----[\s\S]*?-----END [A-Z ]+ KEY-----`)},
	SecretPattern{mustMatcher("CERTIFICATE", `-----BEGIN CERTIFICATE-----[\s\S]*?-----END CERTIFICATE-----`)},

	// Assignments: the last group is the value
	SecretPattern{mustMatcher("PASSWORD", `(password|passwd|pwd)\s*[:=]\s*["']?([^\s"',]+)`)},
	SecretPattern{mustMatcher("SECRET", `(secret|token|key)\s*[:=]\s*["']?([^\s"',]+)`)},
	SecretPattern{mustMatcher("API_KEY", `api[_-]?key\s*[:=]\s*["']?([^\s"',]+)`)},
}

// ---------------------------------------------------------------------------
// PII patterns
// ---------------------------------------------------------------------------

var builtinPII = []Pattern{
	PIIPattern{mustMatcher("EMAIL", `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},

	PIIPattern{mustMatcher("PHONE", `\b(?:\+?1[-.]?)?\(?[0-9]{3}\)?[-.]?[0-9]{3}[-.]?[0-9]{4}\b`)},
	PIIPattern{mustMatcher("INTERNATIONAL_PHONE", `\+[1-9]\d{1,14}\b`)},

	PIIPattern{mustMatcher("SSN", `\b\d{3}-\d{2}-\d{4}\b`)},
	PIIPattern{mustMatcher("SSN", `\b\d{3}\s\d{2}\s\d{4}\b`)},

	PIIPattern{mustMatcher("VISA_CC", `\b4[0-9]{12}(?:[0-9]{3})?\b`)},
	PIIPattern{mustMatcher("MASTERCARD_CC", `\b5[1-5][0-9]{14}\b`)},
	PIIPattern{mustMatcher("AMEX_CC", `\b3[47][0-9]{13}\b`)},

	PIIPattern{mustMatcher("IP_ADDRESS", `\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`)},

	PIIPattern{mustMatcher("SENSITIVE_URL", `https?://[^\s]+(?:token|key|password|secret)=[^\s&]+`)},
}

// ---------------------------------------------------------------------------
// Injection phrasing
// ---------------------------------------------------------------------------

var builtinInjection = []Pattern{
	// Direct command injection
	InjectionPattern{mustMatcher("INSTRUCTION_OVERRIDE", `(ignore|forget|disregard).*(previous|above|earlier).*(instruction|prompt|rule)`)},
	InjectionPattern{mustMatcher("PRIVILEGE_ESCALATION", `(system|admin|root|developer).*(mode|access|privilege)`)},
	InjectionPattern{mustMatcher("CODE_EXECUTION", `(execute|run|eval|exec).*(command|code|script)`)},

	// Role manipulation
	InjectionPattern{mustMatcher("ROLE_MANIPULATION", `you.*(are|act|behave|pretend).*(now|as).*(admin|root|system|developer)`)},
	InjectionPattern{mustMatcher("PERSONA_SWITCH", `(new|different|updated).*(role|persona|character|identity)`)},

	// Context escape
	InjectionPattern{mustMatcher("CONTEXT_ESCAPE", `(break|exit|escape).*(out|from).*(context|sandbox|container)`)},
	InjectionPattern{mustMatcher("JAILBREAK", `(jailbreak|bypass|override|circumvent)`)},

	// Information extraction
	InjectionPattern{mustMatcher("SECRET_EXTRACTION", `(reveal|show|display|print).*(secret|key|password|token|credential)`)},
	InjectionPattern{mustMatcher("ENUMERATION", `(list|enumerate|dump).*(file|directory|user|process)`)},

	// Social engineering
	InjectionPattern{mustMatcher("URGENCY_OVERRIDE", `(emergency|urgent|critical).*(override|bypass|exception)`)},
	InjectionPattern{mustMatcher("DEBUG_MODE", `(test|debug|maintenance).*(mode|access|privilege)`)},

	InjectionPattern{mustMatcher("ENCODING_SMUGGLING", `(translate|convert|encode|decode).*(to|into).*(code|script|command)`)},

	// Container and host access
	InjectionPattern{mustMatcher("CONTAINER_EXEC", `(docker|container|kubernetes|k8s).*(exec|run|shell|bash)`)},
	InjectionPattern{mustMatcher("HOST_MOUNT", `(mount|volume|bind).*(host|filesystem|directory)`)},
	InjectionPattern{mustMatcher("FILESYSTEM_TRAVERSAL", `(read|write|delete|modify).*(file|directory|path).*(/|\\|\.\.)`)},
	InjectionPattern{mustMatcher("NETWORK_EGRESS", `(curl|wget|http|ftp|ssh).*(download|upload|connect|request)`)},

	// Explicit override phrasing
	InjectionPattern{mustMatcher("INSTRUCTION_OVERRIDE", `ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|rules?)`)},
	InjectionPattern{mustMatcher("INSTRUCTION_OVERRIDE", `disregard\s+(all\s+)?(previous|prior|your)\s+(previous\s+)?(instructions?|rules?|guidelines?)`)},
	InjectionPattern{mustMatcher("INSTRUCTION_OVERRIDE", `forget\s+(all\s+)?(your|previous)\s+(instructions?|rules?)`)},
	InjectionPattern{mustMatcher("INSTRUCTION_OVERRIDE", `override\s+(all\s+)?(safety|security)\s+(rules?|protocols?|guidelines?)`)},
	InjectionPattern{mustMatcher("INSTRUCTION_OVERRIDE", `you\s+are\s+now\s+(free|unrestricted|unfiltered)`)},
	InjectionPattern{mustMatcher("INSTRUCTION_OVERRIDE", `new\s+instructions?:\s+`)},

	InjectionPattern{mustMatcher("PROMPT_EXFILTRATION", `(show|reveal|display|print|output)\s+(me\s+)?(your|the)\s+(system\s+)?prompt`)},
	InjectionPattern{mustMatcher("PROMPT_EXFILTRATION", `repeat\s+(your\s+)?(system\s+)?(prompt|instructions?)`)},

	InjectionPattern{mustMatcher("SECURITY_BYPASS", `(disable|turn\s+off|bypass|skip|ignore)\s+(toolwarden|security|guard|policy|policies)`)},
	InjectionPattern{mustMatcher("SECURITY_BYPASS", `--no-?(verify|check|security|guard|policy)`)},

	InjectionPattern{mustMatcher("INDIRECT_INJECTION", `system:\s*(ignore|forget|override|you\s+are)`)},
	InjectionPattern{mustMatcher("INDIRECT_INJECTION", `\[INST\]`)},
	InjectionPattern{mustMatcher("INDIRECT_INJECTION", `<\|im_start\|>system`)},
	InjectionPattern{mustMatcher("INDIRECT_INJECTION", `begin\s+hidden\s+instructions?`)},
	InjectionPattern{mustMatcher("INDIRECT_INJECTION", `important:\s*(ignore|disregard|override)`)},
}

// riskKeywords raise the risk score once per case-insensitive occurrence.
var riskKeywords = []string{
	"sudo", "chmod", "chown", "rm -rf", "format", "delete", "drop table",
	"union select", "script>", "javascript:", "eval(", "exec(",
	"system(", "shell_exec", "passthru", "proc_open",
	"base64_decode", "unserialize", "include", "require",
}
