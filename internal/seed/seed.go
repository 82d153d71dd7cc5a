package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"github.com/smallbiznis/orderdesk/internal/sla"
	pkgdb "github.com/smallbiznis/orderdesk/pkg/db"
	"gorm.io/gorm"
)

type demoItem struct {
	sku      string
	name     string
	category string
	brand    string
	quantity int
	price    float64
}

type demoOrder struct {
	orderNo   string
	customer  string
	email     string
	phone     string
	channel   string
	storeName string
	payment   string
	orderType string
	status    orderdomain.Status
	priority  orderdomain.Priority
	target    time.Duration
	age       time.Duration
	items     []demoItem
}

// demoOrders spans every SLA outcome once the first sweep runs: compliant,
// near breach, breached and finished.
var demoOrders = []demoOrder{
	{
		orderNo: "CG-TOPS-0001-A789B0", customer: "John Smith", email: "john.smith@example.com", phone: "0891234567",
		channel: "SHOPEE", storeName: "Tops Central World", payment: "COD", orderType: "HGH-HD-STD",
		status: orderdomain.StatusDelivered, priority: orderdomain.PriorityHigh, target: 5 * time.Minute, age: 3 * time.Hour,
		items: []demoItem{
			{sku: "DAIRY-001", name: "Fresh Milk", category: "Dairy", brand: "Meiji", quantity: 2, price: 62},
			{sku: "BAKERY-014", name: "Whole Wheat Bread", category: "Bakery", brand: "Farmhouse", quantity: 1, price: 55},
			{sku: "EGG-003", name: "Free Range Eggs", category: "Fresh", brand: "CP", quantity: 1, price: 119},
		},
	},
	{
		orderNo: "CG-TOPS-0002-B123C4", customer: "Sarah Johnson", email: "sarah.j@example.com", phone: "0812345678",
		channel: "LAZADA", storeName: "Tops สุขุมวิท 39", payment: "CARD", orderType: "HGH-HD-STD",
		status: orderdomain.StatusShipped, priority: orderdomain.PriorityMedium, target: time.Hour, age: 45 * time.Minute,
		items: []demoItem{
			{sku: "VEG-101", name: "Organic Vegetables Box", category: "Fresh", brand: "Royal Project", quantity: 1, price: 450},
			{sku: "MEAT-022", name: "Chicken Breast", category: "Meat", brand: "Betagro", quantity: 2, price: 129},
		},
	},
	{
		orderNo: "CG-TOPS-0003-H012I3", customer: "David Miller", email: "d.miller@example.com", phone: "0845678901",
		channel: "GRAB", storeName: "Tops Central Plaza ลาดพร้าว", payment: "COD", orderType: "HGH-HD-STD",
		status: orderdomain.StatusProcessing, priority: orderdomain.PriorityUrgent, target: 5 * time.Minute, age: 11 * time.Minute,
		items: []demoItem{
			{sku: "BEV-007", name: "Bottled Water 6 Pack", category: "Beverages", brand: "Singha", quantity: 2, price: 65},
			{sku: "SNK-031", name: "Potato Chips", category: "Snacks", brand: "Lay's", quantity: 3, price: 30},
		},
	},
	{
		orderNo: "CG-TOPS-0004-C456D7", customer: "Alice Brown", email: "alice.brown@example.com", phone: "0867890123",
		channel: "GRAB", storeName: "Tops สีลม คอมเพล็กซ์", payment: "COD", orderType: "HGH-HD-STD",
		status: orderdomain.StatusProcessing, priority: orderdomain.PriorityHigh, target: 5 * time.Minute, age: 4*time.Minute + 30*time.Second,
		items: []demoItem{
			{sku: "BEV-044", name: "Cold Brew Coffee", category: "Beverages", brand: "Starbucks", quantity: 1, price: 95},
			{sku: "RTE-012", name: "Club Sandwich", category: "Ready to Eat", brand: "Tops", quantity: 1, price: 79},
		},
	},
	{
		orderNo: "CG-TOPS-0005-E789F0", customer: "Robert Wilson", email: "robert.w@example.com", phone: "0878901234",
		channel: "LAZADA", storeName: "Tops ทองหล่อ", payment: "CARD", orderType: "HGH-HD-STD",
		status: orderdomain.StatusPending, priority: orderdomain.PriorityMedium, target: time.Hour, age: 20 * time.Minute,
		items: []demoItem{
			{sku: "HLT-005", name: "Protein Shake", category: "Health", brand: "Optimum", quantity: 1, price: 280},
		},
	},
	{
		orderNo: "CG-TOPS-0006-K321L9", customer: "Nattaya Chai", email: "nattaya.c@example.com", phone: "0823456789",
		channel: "LINE_MAN", storeName: "Tops เอกมัย", payment: "PROMPTPAY", orderType: "HGH-CC-STD",
		status: orderdomain.StatusPending, priority: orderdomain.PriorityLow, target: 5 * time.Minute, age: 25 * time.Minute,
		items: []demoItem{
			{sku: "FRT-019", name: "Thai Mango", category: "Fresh", brand: "Tops", quantity: 3, price: 89},
			{sku: "DAIRY-020", name: "Greek Yogurt", category: "Dairy", brand: "Dutchie", quantity: 4, price: 35},
		},
	},
	{
		orderNo: "CG-TOPS-0007-M654N2", customer: "Somchai Prasert", email: "somchai.p@example.com", phone: "0834567890",
		channel: "SHOPEE", storeName: "Tops จตุจักร", payment: "CARD", orderType: "HGH-HD-STD",
		status: orderdomain.StatusCancelled, priority: orderdomain.PriorityMedium, target: 5 * time.Minute, age: 26 * time.Hour,
		items: []demoItem{
			{sku: "HH-008", name: "Dish Soap", category: "Household", brand: "Sunlight", quantity: 2, price: 45},
		},
	},
}

// EnsureDemoOrders inserts the sample orders that are not present yet,
// matched by order number, and reports how many were created. SLA fields
// start at zero elapsed; the first sweep computes them.
func EnsureDemoOrders(ctx context.Context, db *gorm.DB, node *snowflake.Node, now time.Time) (int, error) {
	if db == nil {
		return 0, errors.New("seed database handle is required")
	}
	if node == nil {
		return 0, errors.New("seed id generator is required")
	}

	created := 0
	for _, demo := range demoOrders {
		ok, err := ensureOrder(ctx, db, node, demo, now)
		if err != nil {
			return created, fmt.Errorf("seed order %s: %w", demo.orderNo, err)
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// ensureOrder writes one order with its items atomically. A duplicate key
// means another process seeded the same order first.
func ensureOrder(ctx context.Context, db *gorm.DB, node *snowflake.Node, demo demoOrder, now time.Time) (bool, error) {
	var created bool
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		created, err = ensureOrderTx(ctx, tx, node, demo, now)
		return err
	})
	if pkgdb.IsDuplicateKeyErr(err) {
		return false, nil
	}
	return created, err
}

func ensureOrderTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, demo demoOrder, now time.Time) (bool, error) {
	var existing orderdomain.Order
	err := tx.WithContext(ctx).Where("order_no = ?", demo.orderNo).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	now = now.UTC()
	orderDate := now.Add(-demo.age)
	order := orderdomain.Order{
		ID:               node.Generate(),
		OrderNo:          demo.orderNo,
		CustomerID:       "CUST-" + demo.phone,
		CustomerName:     demo.customer,
		CustomerEmail:    demo.email,
		CustomerPhone:    demo.phone,
		OrderDate:        orderDate,
		Status:           demo.status,
		Channel:          demo.channel,
		BusinessUnit:     "TOPS",
		OrderType:        demo.orderType,
		ShippingCity:     "Bangkok",
		ShippingCountry:  "TH",
		PaymentMethod:    demo.payment,
		PaymentStatus:    paymentStatus(demo),
		SLATargetSeconds: int64(demo.target / time.Second),
		SLAStatus:        sla.StatusCompliant,
		Priority:         demo.priority,
		StoreName:        demo.storeName,
		CreatedAt:        orderDate,
		UpdatedAt:        updatedAt(demo, orderDate, now),
	}

	for _, item := range demo.items {
		total := item.price * float64(item.quantity)
		order.TotalAmount += total
		order.Items = append(order.Items, orderdomain.OrderItem{
			ID:              node.Generate(),
			OrderID:         order.ID,
			ProductID:       item.sku,
			ProductName:     item.name,
			ProductSKU:      item.sku,
			Quantity:        item.quantity,
			UnitPrice:       item.price,
			TotalPrice:      total,
			ProductCategory: item.category,
			ProductBrand:    item.brand,
			CreatedAt:       orderDate,
			UpdatedAt:       orderDate,
		})
	}

	if err := tx.WithContext(ctx).Create(&order).Error; err != nil {
		return false, err
	}
	return true, nil
}

func paymentStatus(demo demoOrder) string {
	if demo.payment == "COD" && demo.status.IsActive() {
		return "PENDING"
	}
	return "PAID"
}

// updatedAt places delivered orders' last change an hour after they were
// placed so processing time averages have something to report.
func updatedAt(demo demoOrder, orderDate, now time.Time) time.Time {
	if demo.status == orderdomain.StatusDelivered {
		done := orderDate.Add(time.Hour)
		if done.After(now) {
			return now
		}
		return done
	}
	return orderDate
}
