package domain

import "github.com/shopspring/decimal"

// UnitConversion описывает пересчёт количества из единицы измерения варианта
// в базовую единицу хранения. Чистая функция без состояния.
type UnitConversion struct {
	// Unit — единица измерения, в которой пришло количество (например, "box").
	Unit string
	// BaseUnit — базовая единица хранения остатков (например, "pcs").
	BaseUnit string
	// Factor — сколько базовых единиц содержится в одной Unit.
	Factor decimal.Decimal
}

// NewUnitConversion создаёт пересчёт единиц, проверяя коэффициент.
func NewUnitConversion(unit, baseUnit string, factor decimal.Decimal) (UnitConversion, error) {
	if !factor.IsPositive() {
		return UnitConversion{}, ErrConversionFactorInvalid
	}
	return UnitConversion{Unit: unit, BaseUnit: baseUnit, Factor: factor}, nil
}

// ToBase переводит количество из Unit в базовую единицу.
func (c UnitConversion) ToBase(qty decimal.Decimal) decimal.Decimal {
	return qty.Mul(c.Factor)
}

// FromBase переводит количество из базовой единицы обратно в Unit.
func (c UnitConversion) FromBase(qty decimal.Decimal) decimal.Decimal {
	return qty.Div(c.Factor)
}

// Identity возвращает тождественный пересчёт для товаров, учитываемых в базовой единице.
func Identity(baseUnit string) UnitConversion {
	return UnitConversion{Unit: baseUnit, BaseUnit: baseUnit, Factor: decimal.NewFromInt(1)}
}
