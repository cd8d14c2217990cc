package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type OrderStatus string

const (
	OrderStatusDRAFT     OrderStatus = "DRAFT"
	OrderStatusPENDING   OrderStatus = "PENDING"
	OrderStatusPREPARING OrderStatus = "PREPARING"
	OrderStatusREADY     OrderStatus = "READY"
	OrderStatusSERVED    OrderStatus = "SERVED"
	OrderStatusCOMPLETED OrderStatus = "COMPLETED"
	OrderStatusCANCELLED OrderStatus = "CANCELLED"
)

type OrderType string

const (
	OrderTypeDINEIN   OrderType = "DINE_IN"
	OrderTypeTAKEOUT  OrderType = "TAKEOUT"
	OrderTypeDELIVERY OrderType = "DELIVERY"
)

type TableStatus string

const (
	TableStatusAVAILABLE TableStatus = "AVAILABLE"
	TableStatusOCCUPIED  TableStatus = "OCCUPIED"
)

type Staff struct {
	ID             uuid.UUID `json:"id"`
	Username       string    `json:"username"`
	FullName       string    `json:"full_name"`
	Role           string    `json:"role"`
	HashedPassword string    `json:"hashed_password"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

type DiningTable struct {
	ID        uuid.UUID   `json:"id"`
	Label     string      `json:"label"`
	Status    TableStatus `json:"status"`
	IsActive  bool        `json:"is_active"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type Ingredient struct {
	ID           uuid.UUID      `json:"id"`
	Name         string         `json:"name"`
	Unit         string         `json:"unit"`
	CurrentStock pgtype.Numeric `json:"current_stock"`
	MinimumStock pgtype.Numeric `json:"minimum_stock"`
	CostPerUnit  pgtype.Numeric `json:"cost_per_unit"`
	IsActive     bool           `json:"is_active"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type MenuItem struct {
	ID       uuid.UUID      `json:"id"`
	Name     string         `json:"name"`
	Price    pgtype.Numeric `json:"price"`
	IsActive bool           `json:"is_active"`
}

type Addon struct {
	ID       uuid.UUID      `json:"id"`
	GroupID  uuid.UUID      `json:"group_id"`
	Name     string         `json:"name"`
	Price    pgtype.Numeric `json:"price"`
	IsActive bool           `json:"is_active"`
}

// RecipeComponent is one ingredient link of a menu item or add-on recipe.
type RecipeComponent struct {
	IngredientID uuid.UUID      `json:"ingredient_id"`
	Quantity     pgtype.Numeric `json:"quantity"`
}

type Order struct {
	ID              uuid.UUID          `json:"id"`
	OrderNumber     string             `json:"order_number"`
	Status          OrderStatus        `json:"status"`
	OrderType       OrderType          `json:"order_type"`
	TableID         pgtype.UUID        `json:"table_id"`
	CustomerName    pgtype.Text        `json:"customer_name"`
	CustomerPhone   pgtype.Text        `json:"customer_phone"`
	DeliveryAddress pgtype.Text        `json:"delivery_address"`
	Notes           pgtype.Text        `json:"notes"`
	Subtotal        pgtype.Numeric     `json:"subtotal"`
	TaxAmount       pgtype.Numeric     `json:"tax_amount"`
	DeliveryFee     pgtype.Numeric     `json:"delivery_fee"`
	TotalAmount     pgtype.Numeric     `json:"total_amount"`
	CreatedBy       pgtype.UUID        `json:"created_by"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	CompletedAt     pgtype.Timestamptz `json:"completed_at"`
	CancelledAt     pgtype.Timestamptz `json:"cancelled_at"`
}

type OrderItem struct {
	ID           uuid.UUID      `json:"id"`
	OrderID      uuid.UUID      `json:"order_id"`
	MenuItemID   uuid.UUID      `json:"menu_item_id"`
	MenuItemName string         `json:"menu_item_name"`
	Quantity     int32          `json:"quantity"`
	UnitPrice    pgtype.Numeric `json:"unit_price"`
	TotalPrice   pgtype.Numeric `json:"total_price"`
	Notes        pgtype.Text    `json:"notes"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// OrderItemAddon stores the add-on quantity per one unit of the parent item.
type OrderItemAddon struct {
	ID          uuid.UUID      `json:"id"`
	OrderItemID uuid.UUID      `json:"order_item_id"`
	AddonID     uuid.UUID      `json:"addon_id"`
	AddonName   string         `json:"addon_name"`
	Quantity    int32          `json:"quantity"`
	UnitPrice   pgtype.Numeric `json:"unit_price"`
	TotalPrice  pgtype.Numeric `json:"total_price"`
	CreatedAt   time.Time      `json:"created_at"`
}

type OrderStockMovement struct {
	ID            uuid.UUID      `json:"id"`
	OrderID       uuid.UUID      `json:"order_id"`
	OrderItemID   pgtype.UUID    `json:"order_item_id"`
	AddonID       pgtype.UUID    `json:"addon_id"`
	IngredientID  uuid.UUID      `json:"ingredient_id"`
	QuantityDelta pgtype.Numeric `json:"quantity_delta"`
	Reason        string         `json:"reason"`
	CreatedAt     time.Time      `json:"created_at"`
}

type AuditLog struct {
	ID        int64       `json:"id"`
	Action    string      `json:"action"`
	TableName string      `json:"table_name"`
	RecordID  pgtype.UUID `json:"record_id"`
	OrderID   pgtype.UUID `json:"order_id"`
	OldValues []byte      `json:"old_values"`
	NewValues []byte      `json:"new_values"`
	Detail    pgtype.Text `json:"detail"`
	ActorID   pgtype.UUID `json:"actor_id"`
	CreatedAt time.Time   `json:"created_at"`
}
