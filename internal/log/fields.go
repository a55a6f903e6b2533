package log

// Common field names for structured logging.
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldError      = "error"
	FieldUserID     = "user_id"
	FieldBackend    = "backend"
	FieldEntity     = "entity"
	FieldKind       = "kind"
)

// Components used across the binaries.
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentGateway  = "gateway"
	ComponentBridge   = "bridge"
	ComponentBackend  = "backend"
	ComponentSession  = "session"
	ComponentSecurity = "security"
)
