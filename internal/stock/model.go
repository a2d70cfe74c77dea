package stock

// Group and Product carry the field names legacy peers put on the wire.
type Group struct {
	GroupID     int64  `json:"groupId"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Product struct {
	ProductID   int64   `json:"productId"`
	GroupID     int64   `json:"groupId"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Producer    string  `json:"producer"`
	Price       float64 `json:"price"`
	Quantity    int64   `json:"quantity"`
}

type Pair[A, B any] struct {
	First  A `json:"first"`
	Second B `json:"second"`
}

// QuantityChange is (productId, amount).
type QuantityChange = Pair[int64, int64]

// QuantitiesChange is (productIds, amount).
type QuantitiesChange = Pair[[]int64, int64]

// JoinedProduct is one row of the products/groups join, rendered as text:
// productId, groupName, name, description, producer, price, quantity.
type JoinedProduct [7]string

const (
	JoinedProductID = iota
	JoinedGroupName
	JoinedName
	JoinedDescription
	JoinedProducer
	JoinedPrice
	JoinedQuantity
)
