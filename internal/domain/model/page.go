package model

// Page — параметры постраничной выборки.
type Page struct {
	// Page — номер страницы (с 1)
	Page int
	// Limit — размер страницы
	Limit int
}

// Offset возвращает смещение для SQL OFFSET.
func (p Page) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}
