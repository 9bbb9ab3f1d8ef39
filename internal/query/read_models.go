package query

import "github.com/example/grocery-orders/internal/readmodel"

type OrderItemReadModel = readmodel.OrderItemReadModel
type AddressReadModel = readmodel.AddressReadModel
type OrderReadModel = readmodel.OrderReadModel
