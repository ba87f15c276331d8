package domain

import "time"

// CartItem — позиция корзины. Цены не хранятся: их даёт каталог при оформлении.
type CartItem struct {
	ProductID string `json:"productId"`
	Qty       int32  `json:"qty"`
}

// Cart — серверная корзина клиента.
type Cart struct {
	CustomerID string     `json:"customerId"`
	Items      []CartItem `json:"items"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// SetQty заменяет количество товара; qty <= 0 удаляет позицию.
func (c *Cart) SetQty(productID string, qty int32) {
	for i := range c.Items {
		if c.Items[i].ProductID != productID {
			continue
		}
		if qty <= 0 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return
		}
		c.Items[i].Qty = qty
		return
	}
	if qty > 0 {
		c.Items = append(c.Items, CartItem{ProductID: productID, Qty: qty})
	}
}

// Add увеличивает количество товара в корзине.
func (c *Cart) Add(productID string, qty int32) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Qty += qty
			return
		}
	}
	c.Items = append(c.Items, CartItem{ProductID: productID, Qty: qty})
}

// Remove удаляет позицию. Возвращает false, если её не было.
func (c *Cart) Remove(productID string) bool {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true
		}
	}
	return false
}
