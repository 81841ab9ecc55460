package log

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldAccountID = "account_id"
	FieldUserID    = "user_id"
	FieldParentID  = "parent_id"
	FieldExpenseID = "expense_id"
	FieldBudgetID  = "budget_id"
	FieldCategory  = "category"
	FieldAmount    = "amount_cents"
	FieldPeriod    = "period"
	FieldAttempt   = "attempt"
	FieldBatch     = "batch"
	FieldCount     = "count"
	FieldOperation = "operation"
	FieldError     = "error"
	FieldBackend   = "backend"
	FieldRole      = "role"
	FieldEmail     = "email"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentSession    = "session"
	ComponentLedger     = "ledger"
	ComponentIdentity   = "identity"
	ComponentStore      = "store"
	ComponentAMQP       = "amqp"
	ComponentReconciler = "reconciler"
	ComponentCache      = "cache"
	ComponentBackend    = "backend"
	ComponentExport     = "export"
)

// Operations defines standard operation names
const (
	OpLogin      = "login"
	OpRegister   = "register"
	OpLogout     = "logout"
	OpFetch      = "fetch"
	OpAdd        = "add"
	OpUpdate     = "update"
	OpDelete     = "delete"
	OpSetBudget  = "set_budget"
	OpReconcile  = "reconcile"
	OpExport     = "export"
	OpStartup    = "startup"
	OpShutdown   = "shutdown"
)
