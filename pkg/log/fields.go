package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches pkg/middleware/auth.go keys)
	FieldUserID = "user_id"
	FieldRole   = "role"

	// Service
	FieldService   = "service"
	FieldComponent = "component"

	// Chat
	FieldClientID  = "client_id"
	FieldRoomKey   = "room_key"
	FieldMessageID = "message_id"
	FieldEvent     = "event"
	FieldAckID     = "ack_id"
	FieldErrorCode = "error_code"

	// gRPC
	FieldGRPCMethod = "grpc_method"
	FieldGRPCCode   = "grpc_code"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
