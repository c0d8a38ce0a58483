package models

import "fmt"

// OrderStatus is the closed set of order lifecycle states
type OrderStatus string

// Order statuses
const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// transitions lists the legal target states for each source state.
// Terminal states have no entry.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:    {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped: {OrderStatusDelivered, OrderStatusCancelled},
}

// AllOrderStatuses returns every status in lifecycle order
func AllOrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusPaid,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled,
	}
}

// ParseOrderStatus validates s against the enumeration
func ParseOrderStatus(s string) (OrderStatus, error) {
	for _, st := range AllOrderStatuses() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// Valid reports whether s is one of the five statuses
func (s OrderStatus) Valid() bool {
	_, err := ParseOrderStatus(string(s))
	return err == nil
}

// Terminal reports whether no transition leaves s
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransition reports whether from -> to is in the transition table
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RealizedSaleStatuses are the statuses reporting counts as completed sales.
// Reports depend on this set; keep it stable.
func RealizedSaleStatuses() []OrderStatus {
	return []OrderStatus{OrderStatusPaid, OrderStatusShipped, OrderStatusDelivered}
}

// IsRealizedSale reports whether s is in RealizedSaleStatuses
func IsRealizedSale(s OrderStatus) bool {
	for _, st := range RealizedSaleStatuses() {
		if st == s {
			return true
		}
	}
	return false
}
