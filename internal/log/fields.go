package log

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldSubcomponent = "subcomponent"
	FieldRequestID    = "request_id"
	FieldClientIP     = "client_ip"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldQuery        = "query"
	FieldStatusCode   = "status_code"
	FieldDuration     = "duration_ms"
	FieldUserAgent    = "user_agent"
	FieldSuccess      = "success"
	FieldError        = "error"
	FieldErrorType    = "error_type"
	FieldOperation    = "operation"
	FieldBackend      = "backend"

	FieldOutlet      = "outlet"
	FieldProductLine = "product_line"
	FieldWeek        = "week"
	FieldYear        = "year"
	FieldRevenue     = "revenue"
	FieldRows        = "rows"
	FieldPosition    = "position"
	FieldRemoved     = "removed"
	FieldVersion     = "version"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentSales   = "sales"
	ComponentAuth    = "auth"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentSheets  = "sheets"
	ComponentCache   = "cache"
	ComponentBackend = "backend"
)

// Operations defines standard operation names
const (
	OpRead       = "read"
	OpWrite      = "write"
	OpAppend     = "append"
	OpDeleteAt   = "delete_at"
	OpDeleteLast = "delete_last"
	OpDeleteKey  = "delete_matching"
	OpInitOutlet = "initialize_outlet"
	OpSummary    = "summary"
	OpKPI        = "kpi"
	OpSync       = "sync"
	OpLogin      = "login"
	OpLogout     = "logout"
	OpShutdown   = "shutdown"
	OpStartup    = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation = "validation_error"
	ErrorTypeStore      = "store_error"
	ErrorTypeAuth       = "auth_error"
	ErrorTypeNotFound   = "not_found_error"
	ErrorTypeConflict   = "conflict_error"
	ErrorTypeInternal   = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithClientIP adds client IP field
func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithErrorType adds one of the ErrorType categories
func (f LogFields) WithErrorType(t string) LogFields {
	f[FieldErrorType] = t
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithRecord adds the fields identifying a sales row.
func (f LogFields) WithRecord(outlet, productLine string, week, year int) LogFields {
	f[FieldOutlet] = outlet
	f[FieldProductLine] = productLine
	f[FieldWeek] = week
	f[FieldYear] = year
	return f
}

// WithDataset adds the size and, when known, version of a dataset.
func (f LogFields) WithDataset(rows int, version int64) LogFields {
	f[FieldRows] = rows
	if version > 0 {
		f[FieldVersion] = version
	}
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	if query != "" {
		f[FieldQuery] = query
	}
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
