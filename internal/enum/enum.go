package enum

// ── Group A: Staff roles (CHECK constrained in DB) ──

const (
	StaffRoleOwner   = "OWNER"
	StaffRoleManager = "MANAGER"
	StaffRoleCashier = "CASHIER"
	StaffRoleKitchen = "KITCHEN"
)

// ── Group B: Audit trail vocabulary (free text in DB) ──

const (
	AuditActionStockDecrement    = "STOCK_DECREMENT"
	AuditActionStockIncrement    = "STOCK_INCREMENT"
	AuditActionStatusChange      = "ORDER_STATUS_CHANGE"
	AuditActionTransactionFailed = "TRANSACTION_FAILED"
)

const (
	AuditTableIngredients = "ingredients"
	AuditTableOrders      = "orders"
)

// ── Group C: Stock movement reasons ──

const (
	MovementOrderCreated    = "ORDER_CREATED"
	MovementAddonAttached   = "ADDON_ATTACHED"
	MovementAddonDetached   = "ADDON_DETACHED"
	MovementQuantityChanged = "QUANTITY_CHANGED"
	MovementOrderCancelled  = "ORDER_CANCELLED"
)

// ── Group D: Post-commit event types and broadcast rooms ──

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderCancelled     = "order.cancelled"
	EventOrderCompleted     = "order.completed"
	EventOrderItemUpdated   = "order.item_updated"
	EventStockWarning       = "inventory.stock_warning"
)

const (
	RoomOrders    = "orders"
	RoomInventory = "inventory"
)
