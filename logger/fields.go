package logger

// Standard field key constants for structured logging.
const (
	FieldComponent  = "component"
	FieldCapability = "capability"
	FieldProvider   = "provider"
	FieldOperation  = "operation"
	FieldStatus     = "status"
	FieldJobID      = "job_id"
	FieldState      = "state"
	FieldError      = "error"
	FieldDuration   = "duration_ms"
	FieldAttempt    = "attempt"
)

// Fields builds a map[string]interface{} from alternating key-value pairs.
//
//	log.Info("cutover complete", logger.Fields("capability", "database", "provider", "b"))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}
