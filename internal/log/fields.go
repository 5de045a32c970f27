package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldExpenseID   = "expense_id"
	FieldUserID      = "user_id"
	FieldBucket      = "bucket"
	FieldObjectPath  = "object_path"
	FieldImageURL    = "image_url"
	FieldAmount      = "amount"
	FieldMerchant    = "merchant"
	FieldCategory    = "category"
	FieldStatus      = "status"
	FieldContentType = "content_type"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentExpense   = "expense"
	ComponentStorage   = "storage"
	ComponentBlob      = "blob"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentIngest    = "ingest"
	ComponentCleanup   = "cleanup"
	ComponentExtract   = "extract"
	ComponentThumbnail = "thumbnail"
	ComponentAuth      = "auth"
	ComponentFeed      = "feed"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpUpload   = "upload"
	OpDownload = "download"
	OpExtract  = "extract"
	OpResize   = "resize"
	OpParse    = "parse"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)
